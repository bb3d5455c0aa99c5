package embed

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/slidekit/patchembed/pkg/extract"
	"github.com/slidekit/patchembed/pkg/models"
	"github.com/slidekit/patchembed/pkg/pyramid"
	"github.com/slidekit/patchembed/pkg/store"
	"github.com/slidekit/patchembed/pkg/tensor"
	"github.com/slidekit/patchembed/pkg/tiling"
)

// DefaultBatchSize is used when RunConfig.BatchSize is zero.
const DefaultBatchSize = 32

// DefaultDevice is used when RunConfig.Device is empty.
const DefaultDevice = "cpu"

// RunConfig is the per-run configuration surface.
type RunConfig struct {
	// Model is a registered feature-extractor name.
	Model string
	// PatchWidth is the logical patch width in pixels at the target
	// magnification.
	PatchWidth int
	// Level is the pyramid level to extract from, or extract.LevelUnset.
	Level int
	// Magnification is the objective-equivalent target scale, or 0.
	Magnification float64
	// Overlap is the overlap between neighbouring patches in logical
	// pixels.
	Overlap int
	// BatchSize is the number of patches per inference batch.
	BatchSize int
	// Device is the compute target handed to the model.
	Device string
}

// Assembler drives a run end to end: level selection, tiling, batched
// extraction and inference, canvas assembly and persistence.
type Assembler struct {
	store      store.Store
	logger     *slog.Logger
	pool       *ants.Pool
	queueDepth int
}

// Option configures an Assembler.
type Option func(*Assembler) error

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(a *Assembler) error {
		if logger == nil {
			logger = slog.Default()
		}
		a.logger = logger
		return nil
	}
}

// WithPoolSize sets the number of workers extracting patches within a
// batch. Default is runtime.NumCPU().
func WithPoolSize(size int) Option {
	return func(a *Assembler) error {
		if size < 1 {
			size = 1
		}
		if a.pool != nil {
			a.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		a.pool = pool
		return nil
	}
}

// WithQueueDepth bounds how many extracted batches may wait for inference.
// Default is 2, enough to overlap extraction of the next batch with
// inference of the current one.
func WithQueueDepth(depth int) Option {
	return func(a *Assembler) error {
		if depth < 1 {
			depth = 1
		}
		a.queueDepth = depth
		return nil
	}
}

// NewAssembler creates an assembler persisting into st.
func NewAssembler(st store.Store, opts ...Option) (*Assembler, error) {
	if st == nil {
		return nil, fmt.Errorf("assembler needs a store")
	}

	pool, err := ants.NewPool(runtime.NumCPU())
	if err != nil {
		return nil, err
	}
	a := &Assembler{
		store:      st,
		logger:     slog.Default(),
		pool:       pool,
		queueDepth: 2,
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			a.pool.Release()
			return nil, err
		}
	}
	return a, nil
}

// Close releases the extraction pool.
func (a *Assembler) Close() {
	a.pool.Release()
}

// Run resolves the model by name and computes the embedding image. The
// canvas is registered under store.ImageKey(cfg.Model) and the grid
// geometry under store.PatchesKey; either both writes happen or neither.
func (a *Assembler) Run(ctx context.Context, pyr *pyramid.Pyramid, cfg RunConfig) (*Canvas, error) {
	if cfg.Device == "" {
		cfg.Device = DefaultDevice
	}
	model, err := models.Load(cfg.Model, cfg.Device)
	if err != nil {
		return nil, err
	}
	return a.RunWithModel(ctx, pyr, model, cfg.Model, cfg)
}

// RunWithModel computes the embedding image with a caller-supplied model;
// name determines the output key.
func (a *Assembler) RunWithModel(ctx context.Context, pyr *pyramid.Pyramid, model models.FeatureExtractor, name string, cfg RunConfig) (*Canvas, error) {
	if cfg.PatchWidth <= 0 {
		return nil, fmt.Errorf("patch width must be positive, got %d", cfg.PatchWidth)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}

	selector := extract.Selector{Logger: a.logger}
	params, err := selector.Select(pyr.Metadata(), pyr.LevelDownsamples(), cfg.PatchWidth, cfg.Level, cfg.Magnification)
	if err != nil {
		a.logger.Error("skipping embedding, extraction parameters unresolved", "error", err)
		return nil, err
	}

	width, height := pyr.Bounds()
	scaledOverlap := int(math.Round(params.Downsample * float64(cfg.Overlap)))
	grid, err := tiling.Build(width, height, params.PatchWidth, scaledOverlap)
	if err != nil {
		return nil, err
	}

	rows, cols := grid.Shape()
	step := float64(params.PatchWidth - scaledOverlap)
	canvas := NewCanvas(model.OutputDim(), rows, cols, step, step, pyr.CoordinateSystem())
	embedder := NewBatchEmbedder(model, cfg.Device)
	extractor := extract.NewExtractor(pyr)

	a.logger.Info("computing patch embeddings",
		"patches", grid.Len(), "level", params.Level, "batch_size", cfg.BatchSize, "output_dim", model.OutputDim())

	if err := a.assemble(ctx, extractor, embedder, grid, params, cfg.BatchSize, canvas); err != nil {
		return nil, err
	}

	geometry, err := grid.MarshalGeoJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize patch geometry: %w", err)
	}
	if err := a.store.Commit(ctx, store.ImageKey(name), canvas.SpatialImage(), store.PatchesKey, geometry); err != nil {
		return nil, fmt.Errorf("failed to persist embeddings: %w", err)
	}

	a.logger.Info("patch embeddings saved", "key", store.ImageKey(name), "rows", rows, "cols", cols)
	return canvas, nil
}

// extractedBatch carries one batch from the extraction stage to the
// inference stage.
type extractedBatch struct {
	patches []tiling.Patch
	tensors []tensor.Tensor
}

// assemble iterates the grid in fixed-size batches, overlapping extraction
// of batch i+1 with inference of batch i through a bounded channel. Each
// canvas cell is written exactly once, so the result is identical for any
// batch size or queue depth.
func (a *Assembler) assemble(ctx context.Context, extractor *extract.Extractor, embedder *BatchEmbedder, grid *tiling.Grid, params extract.Params, batchSize int, canvas *Canvas) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		extractMu  sync.Mutex
		extractErr error
	)
	setExtractErr := func(err error) {
		extractMu.Lock()
		if extractErr == nil {
			extractErr = err
			cancel()
		}
		extractMu.Unlock()
	}

	batches := make(chan extractedBatch, a.queueDepth)
	go func() {
		defer close(batches)
		all := grid.Patches()
		for start := 0; start < len(all); start += batchSize {
			if ctx.Err() != nil {
				return
			}
			end := min(start+batchSize, len(all))
			chunk := all[start:end]
			tensors := make([]tensor.Tensor, len(chunk))

			var wg sync.WaitGroup
			for i := range chunk {
				wg.Add(1)
				i := i
				patch := chunk[i]
				task := func() {
					defer wg.Done()
					t, err := extractor.Extract(patch.Box, params)
					if err != nil {
						setExtractErr(fmt.Errorf("patch (%d,%d): %w", patch.Row, patch.Col, err))
						return
					}
					tensors[i] = t
				}
				if err := a.pool.Submit(task); err != nil {
					task()
				}
			}
			wg.Wait()

			extractMu.Lock()
			failed := extractErr != nil
			extractMu.Unlock()
			if failed {
				return
			}

			select {
			case batches <- extractedBatch{patches: chunk, tensors: tensors}:
			case <-ctx.Done():
				return
			}
		}
	}()

	for batch := range batches {
		vecs, err := embedder.Embed(ctx, batch.tensors)
		if err != nil {
			cancel()
			for range batches {
			}
			return err
		}
		for i, patch := range batch.patches {
			if err := canvas.Set(patch.Row, patch.Col, vecs[i]); err != nil {
				cancel()
				for range batches {
				}
				return err
			}
		}
	}

	extractMu.Lock()
	defer extractMu.Unlock()
	if extractErr != nil {
		return fmt.Errorf("patch extraction failed: %w", extractErr)
	}
	return ctx.Err()
}
