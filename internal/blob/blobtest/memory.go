// Package blobtest provides an in-memory blob.Store for tests.
package blobtest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"image-platform/internal/blob"
)

// Memory hands out locations "loc-1", "loc-2", ... in write order.
type Memory struct {
	mu    sync.Mutex
	blobs map[string][]byte
	types map[string]string

	PutErr error
	Puts   int
}

var _ blob.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{blobs: map[string][]byte{}, types: map[string]string{}}
}

func (m *Memory) Put(_ context.Context, data []byte, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PutErr != nil {
		return "", m.PutErr
	}
	m.Puts++
	loc := fmt.Sprintf("loc-%d", m.Puts)
	m.blobs[loc] = bytes.Clone(data)
	m.types[loc] = contentType
	return loc, nil
}

func (m *Memory) Open(_ context.Context, location string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[location]
	if !ok {
		return nil, fmt.Errorf("%w: %s", blob.ErrUnknownLocation, location)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Has reports whether location was written.
func (m *Memory) Has(location string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blobs[location]
	return ok
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blobs)
}
