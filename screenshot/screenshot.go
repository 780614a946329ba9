// Package screenshot decodes viewport screenshots sent as data URLs and
// stores them as PNG files.
package screenshot

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/use-agent/scrollsnap/models"
)

// ErrMalformed is returned for payloads that are not "<meta>,<base64>".
var ErrMalformed = errors.New("screenshot: malformed data URL")

// ErrTooLarge is returned when the image header declares more pixels than
// allowed. No pixel data is decoded in that case.
var ErrTooLarge = errors.New("screenshot: image too large")

// DefaultMaxPixels caps decoded images when no explicit limit is set.
const DefaultMaxPixels = 40_000_000

// Decode parses a data URL of the form "data:image/png;base64,<payload>".
// Everything before the first comma is ignored. PNG, JPEG, GIF, WebP and BMP
// payloads are accepted, up to DefaultMaxPixels.
func Decode(dataURL string) (image.Image, string, error) {
	return DecodeLimit(dataURL, DefaultMaxPixels)
}

// DecodeLimit is Decode with an explicit pixel cap. The header is read first
// so an oversized image is rejected before its pixel buffer is allocated.
// maxPixels <= 0 selects DefaultMaxPixels.
func DecodeLimit(dataURL string, maxPixels int) (image.Image, string, error) {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	_, payload, ok := strings.Cut(dataURL, ",")
	if !ok {
		return nil, "", ErrMalformed
	}
	payload = strings.TrimSpace(payload)

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return nil, "", fmt.Errorf("screenshot: base64: %w", err)
		}
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, "", fmt.Errorf("screenshot: decode header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, "", fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrTooLarge, cfg.Width, cfg.Height, maxPixels)
	}

	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, "", fmt.Errorf("screenshot: decode image: %w", err)
	}
	return img, format, nil
}

// Saver writes screenshots to disk, optionally outlining changed elements.
type Saver struct {
	// Annotate draws boxes around highlighted records.
	Annotate bool
	// MaxPixels bounds width×height of accepted screenshots; 0 means
	// DefaultMaxPixels.
	MaxPixels int
}

// Save decodes dataURL and writes it as a PNG at path. When highlight is
// non-empty and annotation is enabled, each record's box is drawn on top.
// It returns the written path.
func (s *Saver) Save(dataURL, path string, highlight []models.Record) (string, error) {
	img, _, err := DecodeLimit(dataURL, s.MaxPixels)
	if err != nil {
		return "", err
	}
	if s.Annotate && len(highlight) > 0 {
		img = Annotate(img, BoxesFromRecords(highlight))
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("screenshot: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("screenshot: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := png.Encode(tmp, img); err != nil {
		tmp.Close()
		return "", fmt.Errorf("screenshot: encode png: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("screenshot: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("screenshot: rename into %s: %w", path, err)
	}
	return path, nil
}

// EncodeDataURL renders a PNG payload as a data URL.
func EncodeDataURL(pngData []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngData)
}
