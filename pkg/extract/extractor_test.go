package extract

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/slidekit/patchembed/pkg/pyramid"
	"github.com/slidekit/patchembed/pkg/tiling"
)

// solidImage creates an image filled with one color.
func solidImage(width, height int, c color.NRGBA) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func singleLevel(t *testing.T, img image.Image) *pyramid.Pyramid {
	t.Helper()
	pyr, err := pyramid.New([]image.Image{img}, pyramid.Metadata{})
	if err != nil {
		t.Fatalf("pyramid.New failed: %v", err)
	}
	return pyr
}

func TestExtractShapeAndNormalization(t *testing.T) {
	pyr := singleLevel(t, solidImage(256, 256, color.NRGBA{255, 128, 0, 255}))
	ex := NewExtractor(pyr)
	params := Params{Level: 0, ResizeFactor: 1, PatchWidth: 64, Downsample: 1}

	patch, err := ex.Extract(tiling.Box{X0: 0, Y0: 0, X1: 64, Y1: 64}, params)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if patch.Channels != Channels || patch.Height != 64 || patch.Width != 64 {
		t.Fatalf("shape = (%d,%d,%d), want (3,64,64)", patch.Channels, patch.Height, patch.Width)
	}
	if got := patch.At(0, 10, 10); got != 1.0 {
		t.Errorf("red channel = %f, want 1.0", got)
	}
	if got := patch.At(1, 10, 10); math.Abs(float64(got)-128.0/255.0) > 1e-6 {
		t.Errorf("green channel = %f, want 128/255", got)
	}
	if got := patch.At(2, 10, 10); got != 0 {
		t.Errorf("blue channel = %f, want 0", got)
	}
}

func TestExtractBoundaryPatchIsPadded(t *testing.T) {
	pyr := singleLevel(t, solidImage(100, 50, color.NRGBA{255, 255, 255, 255}))
	ex := NewExtractor(pyr)
	params := Params{Level: 0, ResizeFactor: 1, PatchWidth: 20, Downsample: 1}

	// final row: the box extends past the bottom edge
	patch, err := ex.Extract(tiling.Box{X0: 80, Y0: 40, X1: 100, Y1: 60}, params)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if patch.Height != 20 || patch.Width != 20 {
		t.Fatalf("shape = (%d,%d), want declared (20,20)", patch.Height, patch.Width)
	}
	if got := patch.At(0, 5, 5); got != 1 {
		t.Errorf("in-image pixel = %f, want 1", got)
	}
	if got := patch.At(0, 15, 5); got != 0 {
		t.Errorf("padded pixel = %f, want 0", got)
	}
}

func TestExtractResizesToTargetWidth(t *testing.T) {
	pyr := singleLevel(t, solidImage(256, 256, color.NRGBA{200, 200, 200, 255}))
	ex := NewExtractor(pyr)
	params := Params{Level: 0, ResizeFactor: 0.5, PatchWidth: 64, Downsample: 2}

	if want := 32; ex.TargetWidth(params) != want {
		t.Fatalf("TargetWidth = %d, want %d", ex.TargetWidth(params), want)
	}

	patch, err := ex.Extract(tiling.Box{X0: 0, Y0: 0, X1: 64, Y1: 64}, params)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if patch.Height != 32 || patch.Width != 32 {
		t.Fatalf("shape = (%d,%d), want (32,32)", patch.Height, patch.Width)
	}
	// uniform input stays uniform through the resampler
	if got := patch.At(0, 16, 16); math.Abs(float64(got)-200.0/255.0) > 0.01 {
		t.Errorf("resized value = %f, want about 200/255", got)
	}
}

func TestExtractFromCoarserLevel(t *testing.T) {
	levels := []image.Image{
		solidImage(128, 128, color.NRGBA{10, 10, 10, 255}),
		solidImage(64, 64, color.NRGBA{250, 250, 250, 255}),
	}
	pyr, err := pyramid.New(levels, pyramid.Metadata{})
	if err != nil {
		t.Fatalf("pyramid.New failed: %v", err)
	}
	ex := NewExtractor(pyr)
	params := Params{Level: 1, ResizeFactor: 1, PatchWidth: 64, Downsample: 1}

	patch, err := ex.Extract(tiling.Box{X0: 0, Y0: 0, X1: 64, Y1: 64}, params)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	// level 1 pixels, not level 0
	if got := patch.At(0, 0, 0); math.Abs(float64(got)-250.0/255.0) > 1e-6 {
		t.Errorf("value = %f, want 250/255 from level 1", got)
	}
	// the 64px level-0 box is 32px at level 1
	if patch.Height != 32 || patch.Width != 32 {
		t.Fatalf("shape = (%d,%d), want (32,32)", patch.Height, patch.Width)
	}
}
