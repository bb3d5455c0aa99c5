package extract

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"github.com/slidekit/patchembed/pkg/pyramid"
	"github.com/slidekit/patchembed/pkg/tensor"
	"github.com/slidekit/patchembed/pkg/tiling"
)

// Channels is the number of color channels fed to the embedding stage.
const Channels = 3

// Extractor reads fixed-size, normalized pixel tensors out of a pyramid.
type Extractor struct {
	pyr *pyramid.Pyramid
}

// NewExtractor creates an extractor over a pyramid.
func NewExtractor(p *pyramid.Pyramid) *Extractor {
	return &Extractor{pyr: p}
}

// TargetWidth returns the side length of the tensors Extract produces for
// the given parameters.
func (e *Extractor) TargetWidth(params Params) int {
	ew := e.extractionWidth(params)
	if params.ResizeFactor == 1 {
		return ew
	}
	return int(math.Round(float64(ew) * params.ResizeFactor))
}

// extractionWidth is the patch side length at the extraction level, before
// the resize stage.
func (e *Extractor) extractionWidth(params Params) int {
	ds := e.pyr.LevelDownsamples()[params.Level]
	return int(math.Round(float64(params.PatchWidth) / ds))
}

// Extract reads the pixels covering box (level-0 coordinates) from the
// extraction level and returns them as a (Channels, w, w) tensor with values
// in [0,1], where w is TargetWidth(params).
//
// Boundary boxes clipped by the image extent are zero-padded on the trailing
// edges to the declared width before the resize stage, so every grid cell
// yields a tensor of the same shape.
func (e *Extractor) Extract(box tiling.Box, params Params) (tensor.Tensor, error) {
	region, err := e.pyr.ReadRegion(box.Rect(), params.Level)
	if err != nil {
		return tensor.Tensor{}, fmt.Errorf("failed to read patch region: %w", err)
	}

	ew := e.extractionWidth(params)
	if region.Bounds().Dx() > ew || region.Bounds().Dy() > ew {
		region = imaging.Crop(region, image.Rect(0, 0, ew, ew))
	}
	if region.Bounds().Dx() < ew || region.Bounds().Dy() < ew {
		padded := imaging.New(ew, ew, color.NRGBA{})
		region = imaging.Paste(padded, region, image.Pt(0, 0))
	}

	if params.ResizeFactor != 1 {
		w := int(math.Round(float64(ew) * params.ResizeFactor))
		region = imaging.Resize(region, w, w, imaging.Lanczos)
	}

	return toTensor(region), nil
}

// toTensor reorders the raster into channel-row-column layout and
// normalizes 8-bit samples into [0,1].
func toTensor(img *image.NRGBA) tensor.Tensor {
	b := img.Bounds()
	h, w := b.Dy(), b.Dx()
	t := tensor.New(Channels, h, w)
	for y := 0; y < h; y++ {
		row := y * img.Stride
		for x := 0; x < w; x++ {
			px := row + x*4
			t.Set(0, y, x, float32(img.Pix[px+0])/255.0)
			t.Set(1, y, x, float32(img.Pix[px+1])/255.0)
			t.Set(2, y, x, float32(img.Pix[px+2])/255.0)
		}
	}
	return t
}
