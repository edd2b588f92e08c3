package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"image-platform/internal/models"
)

const recordPrefix = "image/"

// Badger keeps records as JSON values in an embedded key-value store.
type Badger struct {
	db *badger.DB
}

func NewBadger(path string) (*Badger, error) {
	const op = "storage.NewBadger"

	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Badger{db: db}, nil
}

func recordKey(imageID string) []byte {
	return []byte(recordPrefix + imageID)
}

func (s *Badger) Close() error {
	return s.db.Close()
}

func (s *Badger) Put(_ context.Context, rec *models.ImageRecord) error {
	const op = "storage.Badger.Put"

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(rec.ImageID), data)
	}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Badger) Get(_ context.Context, imageID string) (*models.ImageRecord, error) {
	const op = "storage.Badger.Get"

	var rec models.ImageRecord
	err := s.db.View(func(txn *badger.Txn) error {
		return readRecord(txn, imageID, &rec)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &rec, nil
}

func (s *Badger) ScanAll(ctx context.Context) ([]models.ImageRecord, error) {
	const op = "storage.Badger.ScanAll"

	records := []models.ImageRecord{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(recordPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec models.ImageRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return records, nil
}

// UpdateField does a read-modify-write inside one transaction; badger retries
// are left to the caller on ErrConflict.
func (s *Badger) UpdateField(_ context.Context, imageID string, field models.Field, value any) error {
	const op = "storage.Badger.UpdateField"

	v, err := fieldValue(field, value)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		var rec models.ImageRecord
		if err := readRecord(txn, imageID, &rec); err != nil {
			return err
		}

		switch field {
		case models.FieldProcessed:
			rec.Processed = v.(bool)
		case models.FieldDerivedArtifact:
			rec.DerivedArtifact = v.(string)
		}

		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return txn.Set(recordKey(imageID), data)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func readRecord(txn *badger.Txn, imageID string, rec *models.ImageRecord) error {
	item, err := txn.Get(recordKey(imageID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, imageID)
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, rec)
	})
}
