package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

type MinIOConfig struct {
	Endpoint  string // host:port, no scheme
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

type MinIO struct {
	client *minio.Client
	bucket string
	base   string
	log    *zap.Logger
	now    func() time.Time
}

func NewMinIO(ctx context.Context, cfg MinIOConfig, log *zap.Logger) (*MinIO, error) {
	const op = "blob.NewMinIO"

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	store := &MinIO{
		client: client,
		bucket: cfg.Bucket,
		base:   fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.Bucket),
		log:    log,
		now:    time.Now,
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		log.Info("bucket created", zap.String("bucket", cfg.Bucket))
	}

	return store, nil
}

func (s *MinIO) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	const op = "blob.MinIO.Put"

	key := NewKey(s.now(), contentType)
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	s.log.Debug("blob stored", zap.String("key", key), zap.Int("size", len(data)))
	return s.base + "/" + key, nil
}

func (s *MinIO) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	const op = "blob.MinIO.Open"

	key, err := keyFromLocation(s.base, location)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return obj, nil
}
