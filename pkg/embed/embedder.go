package embed

import (
	"context"
	"fmt"

	"github.com/slidekit/patchembed/pkg/models"
	"github.com/slidekit/patchembed/pkg/tensor"
)

// BatchEmbedder wraps a feature extractor and takes care of batching
// concerns: a single patch is promoted to a batch of one, and the model's
// output is checked against its declared dimensionality.
type BatchEmbedder struct {
	model  models.FeatureExtractor
	device string
}

// NewBatchEmbedder wraps an already constructed model.
func NewBatchEmbedder(model models.FeatureExtractor, device string) *BatchEmbedder {
	return &BatchEmbedder{model: model, device: device}
}

// LoadBatchEmbedder resolves a model name and wraps it. An unknown name
// fails here, before any extraction work.
func LoadBatchEmbedder(name, device string) (*BatchEmbedder, error) {
	model, err := models.Load(name, device)
	if err != nil {
		return nil, err
	}
	return NewBatchEmbedder(model, device), nil
}

// OutputDim returns the embedding dimensionality of the wrapped model.
func (b *BatchEmbedder) OutputDim() int {
	return b.model.OutputDim()
}

// Embed runs a batch of patches through the model and returns one vector
// per patch, in input order.
func (b *BatchEmbedder) Embed(ctx context.Context, patches []tensor.Tensor) ([][]float32, error) {
	batch, err := tensor.Stack(patches)
	if err != nil {
		return nil, fmt.Errorf("failed to stack batch: %w", err)
	}
	vecs, err := b.model.Forward(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	if len(vecs) != batch.N {
		return nil, fmt.Errorf("model returned %d vectors for a batch of %d", len(vecs), batch.N)
	}
	dim := b.model.OutputDim()
	for i, vec := range vecs {
		if len(vec) != dim {
			return nil, fmt.Errorf("vector %d has %d values, model declares %d", i, len(vec), dim)
		}
	}
	return vecs, nil
}

// EmbedOne embeds a single patch as a batch of one.
func (b *BatchEmbedder) EmbedOne(ctx context.Context, patch tensor.Tensor) ([]float32, error) {
	vecs, err := b.Embed(ctx, []tensor.Tensor{patch})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}
