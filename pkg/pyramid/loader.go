package pyramid

import (
	"fmt"
	"image"
	"os"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// LoadImage loads a single raster from disk. TIFF and WebP are supported in
// addition to the formats imaging registers by default.
func LoadImage(path string) (image.Image, error) {
	// Try imaging.Open (registered decoders)
	if img, err := imaging.Open(path); err == nil {
		return img, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if strings.Contains(strings.ToLower(path), ".webp") {
		if img, err := webp.Decode(f); err == nil {
			return img, nil
		}
		if _, err := f.Seek(0, 0); err != nil {
			return nil, err
		}
	}
	if img, _, err := image.Decode(f); err == nil {
		return img, nil
	}
	return nil, fmt.Errorf("image: unknown format for %s", path)
}

// Load builds a pyramid from level files ordered from finest to coarsest.
func Load(paths []string, meta Metadata) (*Pyramid, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no level files given")
	}
	levels := make([]image.Image, len(paths))
	for i, path := range paths {
		img, err := LoadImage(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load level %d: %w", i, err)
		}
		levels[i] = img
	}
	return New(levels, meta)
}

// Synthesize builds a pyramid from a single base raster by repeatedly
// halving it. Useful when the source storage is single-resolution but the
// pipeline wants coarser levels to pick from.
func Synthesize(base image.Image, numLevels int, meta Metadata) (*Pyramid, error) {
	if numLevels < 1 {
		return nil, fmt.Errorf("numLevels must be at least 1, got %d", numLevels)
	}
	levels := make([]image.Image, 0, numLevels)
	levels = append(levels, base)
	w, h := base.Bounds().Dx(), base.Bounds().Dy()
	for i := 1; i < numLevels; i++ {
		w, h = w/2, h/2
		if w < 1 || h < 1 {
			break
		}
		levels = append(levels, imaging.Resize(levels[i-1], w, h, imaging.Lanczos))
	}
	return New(levels, meta)
}

// SaveImage writes an image to disk with the format chosen by extension.
// WebP output goes through the cgo-free encoder, everything else through
// imaging.
func SaveImage(img image.Image, path string, quality int) error {
	if strings.HasSuffix(strings.ToLower(path), ".webp") {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return webp.Encode(f, img, &webp.Options{Quality: float32(quality)})
	}
	return imaging.Save(img, path, imaging.JPEGQuality(quality))
}
