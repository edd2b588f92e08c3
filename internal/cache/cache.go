// Package cache puts a Redis read-through cache in front of gallery listings.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"image-platform/internal/models"
	"image-platform/internal/storage"
)

const (
	listKey = "images:all"
	genKey  = "images:gen"
)

// Store caches ScanAll results of the wrapped store. Every write bumps a
// generation counter and listings are cached per generation; a scan that
// overlapped a write fills a slot no later reader looks at.
// Redis failures never fail a call.
type Store struct {
	storage.MetadataStore

	rdb *redis.Client
	ttl time.Duration
	log *zap.Logger
}

var _ storage.MetadataStore = (*Store)(nil)

// NewClient connects to addr and verifies the connection.
func NewClient(ctx context.Context, addr string) (*redis.Client, error) {
	const op = "cache.NewClient"

	rdb := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}
	return rdb, nil
}

func New(next storage.MetadataStore, rdb *redis.Client, ttl time.Duration, log *zap.Logger) *Store {
	return &Store{MetadataStore: next, rdb: rdb, ttl: ttl, log: log}
}

func (s *Store) Put(ctx context.Context, rec *models.ImageRecord) error {
	if err := s.MetadataStore.Put(ctx, rec); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *Store) UpdateField(ctx context.Context, imageID string, field models.Field, value any) error {
	if err := s.MetadataStore.UpdateField(ctx, imageID, field, value); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *Store) ScanAll(ctx context.Context) ([]models.ImageRecord, error) {
	key, err := s.slot(ctx)
	if err != nil {
		s.log.Warn("cache generation read failed", zap.Error(err))
		return s.MetadataStore.ScanAll(ctx)
	}

	raw, err := s.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var records []models.ImageRecord
		uerr := json.Unmarshal(raw, &records)
		if uerr == nil {
			return records, nil
		}
		s.log.Warn("discarding corrupt cached listing", zap.Error(uerr))
	case !errors.Is(err, redis.Nil):
		s.log.Warn("cache read failed", zap.Error(err))
	}

	records, err := s.MetadataStore.ScanAll(ctx)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(records); err == nil {
		if err := s.rdb.Set(ctx, key, raw, s.ttl).Err(); err != nil {
			s.log.Warn("cache write failed", zap.Error(err))
		}
	}
	return records, nil
}

// slot names the listing key for the current generation. It must be read before
// the wrapped store is scanned.
func (s *Store) slot(ctx context.Context) (string, error) {
	gen, err := s.rdb.Get(ctx, genKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	return listKey + ":" + strconv.FormatInt(gen, 10), nil
}

func (s *Store) Close() error {
	if err := s.rdb.Close(); err != nil {
		s.log.Warn("error closing redis client", zap.Error(err))
	}
	return s.MetadataStore.Close()
}

func (s *Store) invalidate(ctx context.Context) {
	if err := s.rdb.Incr(ctx, genKey).Err(); err != nil {
		s.log.Warn("cache invalidation failed", zap.Error(err))
	}
}
