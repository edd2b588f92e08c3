// Package storagetest provides an in-memory MetadataStore with failure
// injection for tests.
package storagetest

import (
	"context"
	"fmt"
	"sync"

	"image-platform/internal/models"
	"image-platform/internal/storage"
)

type Memory struct {
	mu      sync.Mutex
	records map[string]models.ImageRecord

	// Set to make the matching call fail.
	PutErr    error
	ScanErr   error
	UpdateErr error

	Puts    int
	Updates int
}

var _ storage.MetadataStore = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{records: map[string]models.ImageRecord{}}
}

func (m *Memory) Put(_ context.Context, rec *models.ImageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PutErr != nil {
		return m.PutErr
	}
	m.Puts++
	m.records[rec.ImageID] = *rec
	return nil
}

func (m *Memory) Get(_ context.Context, imageID string) (*models.ImageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[imageID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, imageID)
	}
	return &rec, nil
}

func (m *Memory) ScanAll(_ context.Context) ([]models.ImageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ScanErr != nil {
		return nil, m.ScanErr
	}
	out := make([]models.ImageRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	return out, nil
}

func (m *Memory) UpdateField(_ context.Context, imageID string, field models.Field, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	rec, ok := m.records[imageID]
	if !ok {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, imageID)
	}
	switch field {
	case models.FieldProcessed:
		v, ok := value.(bool)
		if !ok {
			return fmt.Errorf("%w: %s", storage.ErrUnknownField, field)
		}
		rec.Processed = v
	case models.FieldDerivedArtifact:
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("%w: %s", storage.ErrUnknownField, field)
		}
		rec.DerivedArtifact = v
	default:
		return fmt.Errorf("%w: %s", storage.ErrUnknownField, field)
	}
	m.Updates++
	m.records[imageID] = rec
	return nil
}

func (m *Memory) Close() error {
	return nil
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
