package models

import (
	"context"

	"github.com/slidekit/patchembed/pkg/tensor"
)

// Dummy embeds every patch as the value of its top-left pixel across
// channels. Useful as a plumbing check: the output canvas is a thumbnail of
// the input.
type Dummy struct {
	channels int
}

// NewDummy creates a dummy extractor for rasters with the given channel
// count.
func NewDummy(channels int) *Dummy {
	return &Dummy{channels: channels}
}

// OutputDim returns the channel count of the input rasters.
func (d *Dummy) OutputDim() int {
	return d.channels
}

// Forward returns the (0,0) pixel of each patch.
func (d *Dummy) Forward(_ context.Context, batch tensor.Batch) ([][]float32, error) {
	out := make([][]float32, batch.N)
	for i := 0; i < batch.N; i++ {
		item := batch.Item(i)
		vec := make([]float32, d.channels)
		for c := 0; c < d.channels && c < item.Channels; c++ {
			vec[c] = item.At(c, 0, 0)
		}
		out[i] = vec
	}
	return out, nil
}

func init() {
	Register("dummy", func(string) (FeatureExtractor, error) {
		return NewDummy(3), nil
	})
}
