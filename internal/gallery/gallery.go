package gallery

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"image-platform/internal/models"
	"image-platform/internal/storage"
)

var ErrQuery = errors.New("gallery query failed")

type Service struct {
	records storage.MetadataStore
}

func New(records storage.MetadataStore) *Service {
	return &Service{records: records}
}

// List returns every record, newest first, whether processed or not.
// An empty store yields an empty, non-nil slice.
func (s *Service) List(ctx context.Context) ([]models.ImageRecord, error) {
	const op = "gallery.List"

	records, err := s.records.ScanAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrQuery, err)
	}
	if records == nil {
		records = []models.ImageRecord{}
	}

	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ImageID < b.ImageID
	})
	return records, nil
}
