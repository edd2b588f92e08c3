// Package ingest turns one upload into a blob write, a metadata record and a
// best-effort processing dispatch.
package ingest

import (
	"context"
	"fmt"
	"mime"
	"strings"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"image-platform/internal/blob"
	"image-platform/internal/dispatch"
	"image-platform/internal/metrics"
	"image-platform/internal/models"
	"image-platform/internal/storage"
)

type Result struct {
	ImageID      string
	BlobLocation string
}

type Coordinator struct {
	blobs      blob.Store
	records    storage.MetadataStore
	dispatcher dispatch.Dispatcher
	metrics    *metrics.Metrics
	log        *zap.Logger

	maxBytes        int64
	dispatchTimeout time.Duration
	newID           func() string
	now             func() time.Time

	inflight sync.WaitGroup
}

type Option func(*Coordinator)

func WithMaxBytes(n int64) Option {
	return func(c *Coordinator) { c.maxBytes = n }
}

// WithDispatchTimeout bounds each dispatch independently of the request that
// triggered it.
func WithDispatchTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.dispatchTimeout = d }
}

func WithIDGenerator(f func() string) Option {
	return func(c *Coordinator) { c.newID = f }
}

func WithClock(f func() time.Time) Option {
	return func(c *Coordinator) { c.now = f }
}

func New(blobs blob.Store, records storage.MetadataStore, dispatcher dispatch.Dispatcher,
	m *metrics.Metrics, log *zap.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		blobs:           blobs,
		records:         records,
		dispatcher:      dispatcher,
		metrics:         m,
		log:             log,
		maxBytes:        models.MaxUploadBytes,
		dispatchTimeout: 10 * time.Second,
		newID:           uuid.NewString,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ingest stores data and records it. It returns once the metadata record is
// committed; the processing dispatch runs afterwards and its outcome never
// reaches the caller. Nothing here is idempotent.
func (c *Coordinator) Ingest(ctx context.Context, data []byte, contentType string) (Result, error) {
	const op = "ingest.Ingest"

	start := time.Now()
	defer func() { c.metrics.IngestDuration.Observe(time.Since(start).Seconds()) }()

	mediaType, err := c.validate(data, contentType)
	if err != nil {
		c.metrics.Ingest.WithLabelValues(metrics.ResultValidation).Inc()
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}

	location, err := c.blobs.Put(ctx, data, mediaType)
	if err != nil {
		c.metrics.Ingest.WithLabelValues(metrics.ResultBlobError).Inc()
		c.log.Error("blob write failed", zap.Int("size", len(data)), zap.Error(err))
		return Result{}, fmt.Errorf("%s: %w: %w", op, ErrBlobWrite, err)
	}

	rec := &models.ImageRecord{
		ImageID:         c.newID(),
		BlobLocation:    location,
		DerivedArtifact: models.DataURI(mediaType, data),
		CreatedAt:       c.now().UTC(),
		Processed:       false,
	}
	if err := c.records.Put(ctx, rec); err != nil {
		orphan := &OrphanedBlobError{BlobLocation: location, Err: err}
		c.reportOrphan(rec.ImageID, orphan)
		return Result{}, fmt.Errorf("%s: %w", op, orphan)
	}

	c.dispatchAsync(rec.ImageID)

	c.metrics.Ingest.WithLabelValues(metrics.ResultSuccess).Inc()
	c.log.Info("image ingested",
		zap.String("image_id", rec.ImageID),
		zap.String("blob_location", location),
		zap.Int("size", len(data)))

	return Result{ImageID: rec.ImageID, BlobLocation: location}, nil
}

func (c *Coordinator) validate(data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty upload", ErrValidation)
	}
	if int64(len(data)) > c.maxBytes {
		return "", fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrValidation, len(data), c.maxBytes)
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("%w: content type %q: %v", ErrValidation, contentType, err)
	}
	if !strings.HasPrefix(mediaType, "image/") {
		return "", fmt.Errorf("%w: content type %q is not an image", ErrValidation, mediaType)
	}
	return mediaType, nil
}

func (c *Coordinator) reportOrphan(imageID string, orphan *OrphanedBlobError) {
	c.metrics.Ingest.WithLabelValues(metrics.ResultMetadataError).Inc()
	c.metrics.OrphanedBlobs.Inc()
	c.log.Error("metadata write failed, blob orphaned",
		zap.String("event", "orphaned_blob"),
		zap.String("image_id", imageID),
		zap.String("blob_location", orphan.BlobLocation),
		zap.Error(orphan.Err))

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("event", "orphaned_blob")
		scope.SetTag("blob_location", orphan.BlobLocation)
		sentry.CaptureException(orphan)
	})
}

// dispatchAsync sends the trigger on its own goroutine with a context detached
// from the request, so a finished or canceled request never aborts it.
func (c *Coordinator) dispatchAsync(imageID string) {
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()

		ctx, cancel := context.WithTimeout(context.Background(), c.dispatchTimeout)
		defer cancel()

		if err := c.dispatcher.Dispatch(ctx, imageID); err != nil {
			c.metrics.Dispatch.WithLabelValues(metrics.ResultFailed).Inc()
			c.log.Error("dispatch failed, record stays pending",
				zap.String("event", "dispatch_failed"),
				zap.String("image_id", imageID),
				zap.Error(err))
			sentry.WithScope(func(scope *sentry.Scope) {
				scope.SetTag("event", "dispatch_failed")
				scope.SetTag("image_id", imageID)
				sentry.CaptureException(err)
			})
			return
		}

		c.metrics.Dispatch.WithLabelValues(metrics.ResultSent).Inc()
		c.log.Debug("dispatch sent", zap.String("image_id", imageID))
	}()
}

// Wait blocks until every dispatch started so far has finished.
func (c *Coordinator) Wait() {
	c.inflight.Wait()
}
