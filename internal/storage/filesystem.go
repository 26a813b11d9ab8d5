// Package storage writes generated frames and archives to a local directory.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/velinussage/pfp-animate/internal/domain"
	"github.com/velinussage/pfp-animate/internal/imaging"
)

// FrameStore persists grid frames under a root directory. Frame files are
// named after their step so a grid can be reassembled from the directory.
type FrameStore struct {
	root string
}

// NewFrameStore creates root when needed.
func NewFrameStore(root string) (*FrameStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("storage: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure root: %w", err)
	}
	return &FrameStore{root: root}, nil
}

// Root returns the configured directory.
func (s *FrameStore) Root() string {
	if s == nil {
		return ""
	}
	return s.root
}

// WriteFrame stores data as <step name>.<ext>, the extension following the
// image format, and returns the path written.
func (s *FrameStore) WriteFrame(ctx context.Context, step domain.Step, data []byte) (string, error) {
	if step.Name == "" {
		return "", errors.New("storage: frame has no step name")
	}
	return s.write(ctx, step.Name+extensionFor(data), data)
}

// WriteArchive stores a grid archive as <prefix>-grid.zip.
func (s *FrameStore) WriteArchive(ctx context.Context, prefix string, data []byte) (string, error) {
	return s.write(ctx, prefix+"-grid.zip", data)
}

// WriteAnimation stores an animated GIF as <prefix>-<motion>.gif.
func (s *FrameStore) WriteAnimation(ctx context.Context, prefix, motion string, data []byte) (string, error) {
	return s.write(ctx, prefix+"-"+motion+".gif", data)
}

func (s *FrameStore) write(ctx context.Context, name string, data []byte) (string, error) {
	if s == nil {
		return "", errors.New("storage: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clean, err := sanitizeName(name)
	if err != nil {
		return "", err
	}
	full := filepath.Join(s.root, clean)
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("storage: write %s: %w", clean, err)
	}
	return full, nil
}

// sanitizeName accepts a single path element only.
func sanitizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("storage: invalid file name %q", name)
	}
	return name, nil
}

func extensionFor(data []byte) string {
	switch imaging.SniffMIME(data) {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".png"
	}
}
