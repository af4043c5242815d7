package media

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func writeImage(t *testing.T, name string, w, h int) string {
	t.Helper()

	var buf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	var err error
	switch filepath.Ext(name) {
	case ".png":
		err = png.Encode(&buf, img)
	case ".jpg":
		err = jpeg.Encode(&buf, img, nil)
	default:
		t.Fatalf("unsupported test image format %s", name)
	}
	if err != nil {
		t.Fatalf("Failed to encode %s: %v", name, err)
	}

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func TestProbe(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		file string
		w, h int
	}{
		{"png", "a.png", 12, 34},
		{"jpeg", "b.jpg", 5, 7},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := writeImage(t, tt.file, tt.w, tt.h)
			dims, err := Probe(path)
			if err != nil {
				t.Fatalf("Probe failed: %v", err)
			}
			if dims.Width != tt.w || dims.Height != tt.h {
				t.Errorf("dimensions = %dx%d, want %dx%d", dims.Width, dims.Height, tt.w, tt.h)
			}
		})
	}
}

func TestProbeZipHasNoDimensions(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "frames.zip")
	if err := os.WriteFile(path, []byte("PK\x03\x04"), 0o644); err != nil {
		t.Fatal(err)
	}

	dims, err := Probe(path)
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if dims != (Dimensions{}) {
		t.Errorf("zip dimensions = %+v, want zero", dims)
	}
}

func TestProbeCorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "broken.png")
	if err := os.WriteFile(path, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Probe(path); err == nil {
		t.Error("Probe succeeded on corrupt data")
	}
}

func TestProbeMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Probe(filepath.Join(t.TempDir(), "absent.png")); err == nil {
		t.Error("Probe succeeded on missing file")
	}
}
