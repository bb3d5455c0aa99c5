// Package store is the container boundary: it persists the embedding
// canvas and the patch geometry back into the same store the pyramid came
// from, under deterministic keys.
package store

import (
	"context"
	"errors"
)

// PatchesKey is the fixed key the patch geometry collection is registered
// under.
const PatchesKey = "embedding_patches"

// ImageKey returns the key the embedding image of a model is registered
// under.
func ImageKey(modelName string) string {
	return "embedding_" + modelName
}

// ErrNotFound is returned when a key has no value in the store.
var ErrNotFound = errors.New("store: key not found")

// SpatialImage is a persisted raster whose pixels are float32 vectors,
// together with the affine transform mapping its pixels back to the source
// coordinate system.
type SpatialImage struct {
	Channels int
	Rows     int
	Cols     int
	// ScaleX and ScaleY map canvas pixel (r, c) to source pixel
	// (c*ScaleX, r*ScaleY).
	ScaleX float64
	ScaleY float64
	// CoordinateSystem identifies the source coordinate system the
	// transform is relative to.
	CoordinateSystem string
	// Data holds Channels planes of Rows*Cols values each.
	Data []float32
}

// Store persists run outputs. Commit must be atomic: after a failed commit
// neither key may be observable with the new value.
type Store interface {
	// Commit registers the embedding image and the patch geometry in one
	// logical write.
	Commit(ctx context.Context, imageKey string, img *SpatialImage, shapesKey string, shapes []byte) error

	// Image reads a previously committed embedding image.
	Image(ctx context.Context, key string) (*SpatialImage, error)

	// Shapes reads a previously committed geometry collection.
	Shapes(ctx context.Context, key string) ([]byte, error)

	// Close releases the underlying resources.
	Close() error
}
