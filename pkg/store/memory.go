package store

import (
	"context"
	"sync"
)

// Memory is an in-process store, mainly for tests and dry runs. Commits
// apply both writes under one lock, so readers never observe a partial
// commit.
type Memory struct {
	mu     sync.RWMutex
	images map[string][]byte
	shapes map[string][]byte
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		images: map[string][]byte{},
		shapes: map[string][]byte{},
	}
}

// Commit registers both outputs. The image is serialized before the lock
// is taken, so a codec failure leaves the store untouched.
func (m *Memory) Commit(_ context.Context, imageKey string, img *SpatialImage, shapesKey string, shapes []byte) error {
	encoded, err := MarshalSpatialImage(img)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.images[imageKey] = encoded
	m.shapes[shapesKey] = append([]byte(nil), shapes...)
	return nil
}

// Image reads a committed embedding image.
func (m *Memory) Image(_ context.Context, key string) (*SpatialImage, error) {
	m.mu.RLock()
	encoded, ok := m.images[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return UnmarshalSpatialImage(encoded)
}

// Shapes reads a committed geometry collection.
func (m *Memory) Shapes(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	shapes, ok := m.shapes[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), shapes...), nil
}

// Close is a no-op for the in-memory store.
func (m *Memory) Close() error {
	return nil
}
