// Package models holds the feature extractors a patch batch can be run
// through, addressable by name.
package models

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/slidekit/patchembed/pkg/tensor"
)

// FeatureExtractor turns a batch of pixel tensors into one embedding vector
// per patch. Implementations must be safe for use from a single pipeline
// goroutine; they are loaded once and shared read-only across batches.
type FeatureExtractor interface {
	// Forward embeds a batch of shape (N, C, H, W) and returns N vectors of
	// OutputDim values each.
	Forward(ctx context.Context, batch tensor.Batch) ([][]float32, error)

	// OutputDim is the length of every vector Forward returns.
	OutputDim() int
}

// Factory builds a feature extractor for a compute device ("cpu" unless an
// implementation supports more).
type Factory func(device string) (FeatureExtractor, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a feature extractor available under the given name.
// Registering the same name twice panics; this is a wiring error.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("models: duplicate registration of %q", name))
	}
	registry[name] = factory
}

// Names returns the registered model names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load resolves a model name into a feature extractor. Names of the form
// "ollama/<model>" resolve to a remote Ollama embedding model; everything
// else must have been registered. An unknown name is a configuration error
// and must abort the run before any extraction work begins.
func Load(name, device string) (FeatureExtractor, error) {
	if remote, ok := strings.CutPrefix(name, "ollama/"); ok {
		return NewOllama("", remote)
	}

	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf(
			"%q is not a valid model name, valid names are: %s (or ollama/<model>)",
			name, strings.Join(Names(), ", "),
		)
	}
	return factory(device)
}
