package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"image-platform/internal/models"
)

type Postgres struct {
	pool *pgxpool.Pool
	db   *sql.DB // for migrations
}

var columns = map[models.Field]string{
	models.FieldProcessed:       "processed",
	models.FieldDerivedArtifact: "derived_artifact",
}

// NewPostgres opens a pool and brings the schema up to date.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	const op = "storage.NewPostgres"

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	db := stdlib.OpenDBFromPool(pool)
	if err := RunMigrations(db); err != nil {
		db.Close()
		pool.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Postgres{pool: pool, db: db}, nil
}

func (s *Postgres) Close() error {
	err := s.db.Close()
	s.pool.Close()
	return err
}

func (s *Postgres) Put(ctx context.Context, rec *models.ImageRecord) error {
	const op = "storage.Postgres.Put"

	_, err := s.pool.Exec(ctx,
		`INSERT INTO images (image_id, blob_location, derived_artifact, created_at, processed)
		VALUES ($1, $2, $3, $4, $5)`,
		rec.ImageID, rec.BlobLocation, rec.DerivedArtifact, rec.CreatedAt, rec.Processed)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Postgres) Get(ctx context.Context, imageID string) (*models.ImageRecord, error) {
	const op = "storage.Postgres.Get"

	var rec models.ImageRecord
	err := s.pool.QueryRow(ctx,
		`SELECT image_id, blob_location, derived_artifact, created_at, processed
		FROM images WHERE image_id = $1`, imageID).
		Scan(&rec.ImageID, &rec.BlobLocation, &rec.DerivedArtifact, &rec.CreatedAt, &rec.Processed)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w: %s", op, ErrNotFound, imageID)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &rec, nil
}

func (s *Postgres) ScanAll(ctx context.Context) ([]models.ImageRecord, error) {
	const op = "storage.Postgres.ScanAll"

	rows, err := s.pool.Query(ctx,
		`SELECT image_id, blob_location, derived_artifact, created_at, processed FROM images`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	records, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.ImageRecord])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return records, nil
}

func (s *Postgres) UpdateField(ctx context.Context, imageID string, field models.Field, value any) error {
	const op = "storage.Postgres.UpdateField"

	v, err := fieldValue(field, value)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	// column comes from the fixed map above, never from input
	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE images SET %s = $2 WHERE image_id = $1`, columns[field]), imageID, v)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w: %s", op, ErrNotFound, imageID)
	}
	return nil
}
