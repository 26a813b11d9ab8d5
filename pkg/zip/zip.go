// Package zip bundles generated assets into a single archive.
package zip

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// Asset is one archive entry.
type Asset struct {
	Filename string
	MIME     string
	Data     []byte
}

// archiveEpoch keeps archives byte-for-byte reproducible.
var archiveEpoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// ArchiveAssets returns the zip archive of assets in order.
func ArchiveAssets(assets []Asset) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := WriteArchive(buf, assets); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteArchive streams the zip archive of assets to w. Filenames must be
// unique, relative and free of ".." segments. Already-compressed images are
// stored; everything else is deflated.
func WriteArchive(w io.Writer, assets []Asset) error {
	zw := zip.NewWriter(w)
	seen := make(map[string]struct{}, len(assets))
	for _, asset := range assets {
		name, err := cleanName(asset.Filename)
		if err != nil {
			return err
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("zip: duplicate entry %q", name)
		}
		seen[name] = struct{}{}

		header := &zip.FileHeader{
			Name:     name,
			Method:   methodFor(asset.MIME),
			Modified: archiveEpoch,
		}
		fw, err := zw.CreateHeader(header)
		if err != nil {
			return fmt.Errorf("zip: create %q: %w", name, err)
		}
		if _, err := fw.Write(asset.Data); err != nil {
			return fmt.Errorf("zip: write %q: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("zip: finalize: %w", err)
	}
	return nil
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	cleaned := path.Clean(name)
	if name == "" || cleaned == "." || path.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("zip: invalid entry name %q", name)
	}
	return cleaned, nil
}

func methodFor(mime string) uint16 {
	switch strings.ToLower(mime) {
	case "image/png", "image/jpeg", "image/webp", "image/gif", "application/zip":
		return zip.Store
	default:
		return zip.Deflate
	}
}
