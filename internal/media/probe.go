package media

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"gallery-sync/internal/logging"

	// Image format decoders
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"  // BMP format support
	_ "golang.org/x/image/webp" // WebP format support
)

// Dimensions holds probed image width and height.
type Dimensions struct {
	Width  int
	Height int
}

// GetImageDimensions returns image dimensions without fully decoding
// the pixel data.
func GetImageDimensions(path string) (*Dimensions, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := file.Close(); err != nil {
			logging.Warn("failed to close image file %s: %v", path, err)
		}
	}()

	config, _, err := image.DecodeConfig(file)
	if err != nil {
		return nil, err
	}

	return &Dimensions{Width: config.Width, Height: config.Height}, nil
}

// Probe determines the dimensions of a media file on disk.
//
// The fast path reads only the image header. If that fails (some
// encoders write headers DecodeConfig rejects), the file is fully
// decoded via imaging as a fallback. Archive files (.zip animation
// frames) have no meaningful dimensions and probe as 0x0 without error.
func Probe(path string) (Dimensions, error) {
	if strings.ToLower(filepath.Ext(path)) == ".zip" {
		return Dimensions{}, nil
	}

	if dims, err := GetImageDimensions(path); err == nil {
		return *dims, nil
	}

	img, err := imaging.Open(path)
	if err != nil {
		return Dimensions{}, fmt.Errorf("failed to probe image %s: %w", path, err)
	}

	bounds := img.Bounds()
	return Dimensions{Width: bounds.Dx(), Height: bounds.Dy()}, nil
}
