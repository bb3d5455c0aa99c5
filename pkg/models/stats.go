package models

import (
	"context"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/slidekit/patchembed/pkg/tensor"
)

// statsPerChannel is the number of summary statistics Stats emits per
// channel: mean, standard deviation, minimum and maximum.
const statsPerChannel = 4

// Stats embeds every patch as per-channel summary statistics. It is a cheap
// baseline model: no weights, deterministic, and the resulting canvas still
// carries enough texture to sanity-check registration.
type Stats struct {
	channels int
}

// NewStats creates a statistical extractor for rasters with the given
// channel count.
func NewStats(channels int) *Stats {
	return &Stats{channels: channels}
}

// OutputDim returns statsPerChannel values per channel.
func (s *Stats) OutputDim() int {
	return s.channels * statsPerChannel
}

// Forward computes mean, stddev, min and max per channel for every patch.
func (s *Stats) Forward(_ context.Context, batch tensor.Batch) ([][]float32, error) {
	plane := make([]float64, batch.Height*batch.Width)
	out := make([][]float32, batch.N)
	for i := 0; i < batch.N; i++ {
		item := batch.Item(i)
		vec := make([]float32, 0, s.OutputDim())
		for c := 0; c < s.channels; c++ {
			for j := range plane {
				plane[j] = float64(item.Data[c*len(plane)+j])
			}
			mean, std := stat.MeanStdDev(plane, nil)
			vec = append(vec,
				float32(mean),
				float32(std),
				float32(floats.Min(plane)),
				float32(floats.Max(plane)),
			)
		}
		out[i] = vec
	}
	return out, nil
}

func init() {
	Register("stats", func(string) (FeatureExtractor, error) {
		return NewStats(3), nil
	})
}
