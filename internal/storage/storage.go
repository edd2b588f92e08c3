package storage

import (
	"context"
	"errors"
	"fmt"

	"image-platform/internal/models"
)

var (
	ErrNotFound     = errors.New("image record not found")
	ErrUnknownField = errors.New("field cannot be updated")
)

// MetadataStore persists image records keyed by image id.
// Implementations are safe for concurrent use.
type MetadataStore interface {
	Put(ctx context.Context, rec *models.ImageRecord) error
	Get(ctx context.Context, imageID string) (*models.ImageRecord, error)
	ScanAll(ctx context.Context) ([]models.ImageRecord, error)
	// UpdateField returns ErrNotFound when no record matches; callers decide
	// whether that is fatal.
	UpdateField(ctx context.Context, imageID string, field models.Field, value any) error
	Close() error
}

// fieldValue checks that value has the right type for field.
func fieldValue(field models.Field, value any) (any, error) {
	switch field {
	case models.FieldProcessed:
		v, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: %s expects bool, got %T", ErrUnknownField, field, value)
		}
		return v, nil
	case models.FieldDerivedArtifact:
		v, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s expects string, got %T", ErrUnknownField, field, value)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
}
