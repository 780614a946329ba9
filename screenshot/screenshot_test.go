package screenshot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/use-agent/scrollsnap/models"
)

func pngDataURL(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return EncodeDataURL(buf.Bytes())
}

// headerOnlyPNG returns a PNG whose IHDR declares w×h pixels but carries no
// image data.
func headerOnlyPNG(w, h uint32) string {
	chunk := func(buf *bytes.Buffer, typ string, data []byte) {
		binary.Write(buf, binary.BigEndian, uint32(len(data)))
		body := append([]byte(typ), data...)
		buf.Write(body)
		binary.Write(buf, binary.BigEndian, crc32.ChecksumIEEE(body))
	}
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], w)
	binary.BigEndian.PutUint32(ihdr[4:], h)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 6 // RGBA

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	chunk(&buf, "IHDR", ihdr)
	chunk(&buf, "IDAT", nil)
	chunk(&buf, "IEND", nil)
	return EncodeDataURL(buf.Bytes())
}

func TestDecode(t *testing.T) {
	img, format, err := Decode(pngDataURL(t, 4, 3))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if format != "png" || img.Bounds().Dx() != 4 || img.Bounds().Dy() != 3 {
		t.Errorf("Decode() = %s %v", format, img.Bounds())
	}
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"no comma", "data:image/png;base64"},
		{"bad base64", "data:image/png;base64,@@@"},
		{"not an image", "data:image/png;base64,aGVsbG8gd29ybGQ="},
		{"huge dimensions", headerOnlyPNG(200000, 200000)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := Decode(tt.in); err == nil {
				t.Errorf("Decode(%q) succeeded", tt.in)
			}
		})
	}
}

func TestDecode_RejectsOversizedHeader(t *testing.T) {
	_, _, err := Decode(headerOnlyPNG(200000, 200000))
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("Decode() error = %v, want ErrTooLarge", err)
	}
}

func TestSaver_MaxPixels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shot.png")

	s := &Saver{MaxPixels: 100}
	if _, err := s.Save(pngDataURL(t, 20, 20), path, nil); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("Save() error = %v, want ErrTooLarge", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("oversized screenshot was written: %v", err)
	}

	s.MaxPixels = 400
	if _, err := s.Save(pngDataURL(t, 20, 20), path, nil); err != nil {
		t.Fatalf("Save() at the limit: %v", err)
	}
}

func TestSaver_AnnotatesHighlights(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "shot.png")

	s := &Saver{Annotate: true}
	rec := models.NewRecord("webElementId", "7", "xpath", "//a", "text", "x",
		"x", "2", "y", "2", "width", "10", "height", "10")

	got, err := s.Save(pngDataURL(t, 20, 20), path, []models.Record{rec})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if got != path {
		t.Errorf("Save() path = %q, want %q", got, path)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open saved: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("saved file is not a PNG: %v", err)
	}

	r, g, b, _ := img.At(4, 2).RGBA()
	if r <= g || r <= b {
		t.Errorf("box edge pixel not red: r=%d g=%d b=%d", r, g, b)
	}
}

func TestBoxesFromRecords_SkipsMissingGeometry(t *testing.T) {
	recs := []models.Record{
		models.NewRecord("x", "1", "y", "1", "width", "5", "height", "5"),
		models.NewRecord("x", "1", "y", "1"),
		models.NewRecord("x", "a", "y", "1", "width", "5", "height", "5"),
		models.NewRecord("x", "1", "y", "1", "width", "0", "height", "5"),
	}
	if got := BoxesFromRecords(recs); len(got) != 1 {
		t.Errorf("BoxesFromRecords() = %d boxes, want 1", len(got))
	}
}
