package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color/palette"
	"image/gif"

	"golang.org/x/image/draw"
)

// DefaultFPS is used for animations that do not set a frame rate.
const DefaultFPS = 10

// EncodeGIF assembles frames, in order, into a looping animated GIF played
// at fps. Every frame is scaled to the size of the first one and dithered
// onto the web-safe palette.
func EncodeGIF(frames [][]byte, fps int) ([]byte, error) {
	if len(frames) == 0 {
		return nil, ErrEmpty
	}
	if fps <= 0 {
		fps = DefaultFPS
	}
	// GIF delays are in hundredths of a second.
	delay := (100 + fps/2) / fps
	if delay < 1 {
		delay = 1
	}

	anim := &gif.GIF{LoopCount: 0}
	var bounds image.Rectangle
	for i, data := range frames {
		src, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: frame %d: %v", ErrNotImage, i, err)
		}
		if i == 0 {
			bounds = image.Rectangle{Max: src.Bounds().Size()}
		}
		if src.Bounds().Size() != bounds.Size() {
			scaled := image.NewRGBA(bounds)
			draw.CatmullRom.Scale(scaled, bounds, src, src.Bounds(), draw.Src, nil)
			src = scaled
		}
		frame := image.NewPaletted(bounds, palette.WebSafe)
		draw.FloydSteinberg.Draw(frame, bounds, src, src.Bounds().Min)
		anim.Image = append(anim.Image, frame)
		anim.Delay = append(anim.Delay, delay)
	}

	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, anim); err != nil {
		return nil, fmt.Errorf("imaging: encode gif: %w", err)
	}
	return buf.Bytes(), nil
}
