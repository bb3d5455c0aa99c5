package embed

import (
	"fmt"
	"image"

	"github.com/slidekit/patchembed/pkg/store"
)

// Canvas is the output raster of a run: one embedding vector per grid
// cell, stored as Dim planes of Rows x Cols float32 values (arena + index,
// no per-cell allocation). Cell (r, c) maps to source pixel
// (c*ScaleX, r*ScaleY).
type Canvas struct {
	Data             []float32
	Dim              int
	Rows             int
	Cols             int
	ScaleX           float64
	ScaleY           float64
	CoordinateSystem string
}

// NewCanvas allocates a zero-initialized canvas.
func NewCanvas(dim, rows, cols int, scaleX, scaleY float64, coordinateSystem string) *Canvas {
	return &Canvas{
		Data:             make([]float32, dim*rows*cols),
		Dim:              dim,
		Rows:             rows,
		Cols:             cols,
		ScaleX:           scaleX,
		ScaleY:           scaleY,
		CoordinateSystem: coordinateSystem,
	}
}

// Set writes the vector of cell (row, col). Every cell is written exactly
// once during a run, so writes need no locking even when batches overlap.
func (c *Canvas) Set(row, col int, vec []float32) error {
	if len(vec) != c.Dim {
		return fmt.Errorf("vector has %d values, canvas has %d channels", len(vec), c.Dim)
	}
	if row < 0 || row >= c.Rows || col < 0 || col >= c.Cols {
		return fmt.Errorf("cell (%d,%d) outside canvas %dx%d", row, col, c.Rows, c.Cols)
	}
	plane := c.Rows * c.Cols
	for ch, v := range vec {
		c.Data[ch*plane+row*c.Cols+col] = v
	}
	return nil
}

// At returns a copy of the vector at cell (row, col).
func (c *Canvas) At(row, col int) []float32 {
	plane := c.Rows * c.Cols
	vec := make([]float32, c.Dim)
	for ch := range vec {
		vec[ch] = c.Data[ch*plane+row*c.Cols+col]
	}
	return vec
}

// SpatialImage converts the canvas into its persisted form.
func (c *Canvas) SpatialImage() *store.SpatialImage {
	return &store.SpatialImage{
		Channels:         c.Dim,
		Rows:             c.Rows,
		Cols:             c.Cols,
		ScaleX:           c.ScaleX,
		ScaleY:           c.ScaleY,
		CoordinateSystem: c.CoordinateSystem,
		Data:             append([]float32(nil), c.Data...),
	}
}

// ChannelImage renders one canvas channel as a min-max normalized grayscale
// image, for previews.
func (c *Canvas) ChannelImage(channel int) (*image.NRGBA, error) {
	if channel < 0 || channel >= c.Dim {
		return nil, fmt.Errorf("channel %d outside canvas with %d channels", channel, c.Dim)
	}
	plane := c.Rows * c.Cols
	values := c.Data[channel*plane : (channel+1)*plane]

	lo, hi := values[0], values[0]
	for _, v := range values {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	span := hi - lo
	if span == 0 {
		span = 1
	}

	img := image.NewNRGBA(image.Rect(0, 0, c.Cols, c.Rows))
	for i, v := range values {
		g := uint8((v - lo) / span * 255)
		px := i * 4
		img.Pix[px+0] = g
		img.Pix[px+1] = g
		img.Pix[px+2] = g
		img.Pix[px+3] = 255
	}
	return img, nil
}
