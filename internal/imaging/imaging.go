// Package imaging validates and normalizes uploaded portrait images before
// they are handed to the generation gateway.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

var (
	ErrEmpty    = errors.New("imaging: empty image data")
	ErrNotImage = errors.New("imaging: data is not a supported still image")
	ErrEncoding = errors.New("imaging: invalid base64 payload")
)

// Info describes a decoded image header.
type Info struct {
	Format string
	MIME   string
	Width  int
	Height int
}

// DecodeBase64 accepts raw standard base64 or a data URI and returns the bytes.
func DecodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrEmpty
	}
	if strings.HasPrefix(s, "data:") {
		idx := strings.Index(s, ",")
		if idx < 0 || !strings.Contains(s[:idx], ";base64") {
			return nil, ErrEncoding
		}
		s = s[idx+1:]
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		// Browsers occasionally strip padding.
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
		}
	}
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	return data, nil
}

// EncodeBase64 is the transport encoding used for images in JSON payloads.
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// Inspect decodes the image header without decoding pixel data.
func Inspect(data []byte) (Info, error) {
	if len(data) == 0 {
		return Info{}, ErrEmpty
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrNotImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Info{}, fmt.Errorf("%w: zero dimensions", ErrNotImage)
	}
	return Info{
		Format: format,
		MIME:   mimeForFormat(format),
		Width:  cfg.Width,
		Height: cfg.Height,
	}, nil
}

// Normalize returns data unchanged when both sides fit within maxDim.
// Larger images are scaled down preserving aspect ratio and re-encoded as PNG.
func Normalize(data []byte, maxDim int) ([]byte, Info, error) {
	info, err := Inspect(data)
	if err != nil {
		return nil, Info{}, err
	}
	if maxDim <= 0 || (info.Width <= maxDim && info.Height <= maxDim) {
		return data, info, nil
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, Info{}, fmt.Errorf("%w: %v", ErrNotImage, err)
	}
	width, height := fitWithin(info.Width, info.Height, maxDim)
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, Info{}, fmt.Errorf("imaging: encode png: %w", err)
	}
	return buf.Bytes(), Info{Format: "png", MIME: "image/png", Width: width, Height: height}, nil
}

// DataURI builds the data URI form expected by hosted model inputs.
func DataURI(data []byte, mime string) string {
	if strings.TrimSpace(mime) == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + EncodeBase64(data)
}

// SniffMIME returns the MIME type of data, defaulting to image/png.
func SniffMIME(data []byte) string {
	if info, err := Inspect(data); err == nil {
		return info.MIME
	}
	return "image/png"
}

func fitWithin(width, height, maxDim int) (int, int) {
	if width >= height {
		h := height * maxDim / width
		if h < 1 {
			h = 1
		}
		return maxDim, h
	}
	w := width * maxDim / height
	if w < 1 {
		w = 1
	}
	return w, maxDim
}

func mimeForFormat(format string) string {
	switch format {
	case "jpeg":
		return "image/jpeg"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return "image/png"
	}
}
