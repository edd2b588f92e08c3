// Package worker consumes processing triggers and completes image records.
package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"image-platform/internal/blob"
	"image-platform/internal/metrics"
	"image-platform/internal/models"
	"image-platform/internal/storage"
)

type Config struct {
	ThumbnailWidth  int
	ThumbnailHeight int
	JPEGQuality     int
	WatermarkText   string
}

func ConfigFrom(cfg models.WorkerConfig) Config {
	return Config{
		ThumbnailWidth:  cfg.ThumbnailWidth,
		ThumbnailHeight: cfg.ThumbnailHeight,
		JPEGQuality:     cfg.JPEGQuality,
		WatermarkText:   cfg.WatermarkText,
	}
}

type Processor struct {
	records storage.MetadataStore
	blobs   blob.Store
	metrics *metrics.Metrics
	log     *zap.Logger
	opts    renderOptions
}

func NewProcessor(records storage.MetadataStore, blobs blob.Store, m *metrics.Metrics,
	log *zap.Logger, cfg Config) *Processor {
	opts := renderOptions{
		width:     cfg.ThumbnailWidth,
		height:    cfg.ThumbnailHeight,
		quality:   cfg.JPEGQuality,
		watermark: cfg.WatermarkText,
	}
	if opts.width <= 0 {
		opts.width = 200
	}
	if opts.height <= 0 {
		opts.height = 200
	}
	if opts.quality <= 0 || opts.quality > 100 {
		opts.quality = 80
	}
	return &Processor{records: records, blobs: blobs, metrics: m, log: log, opts: opts}
}

// Process handles one trigger. A trigger for an unknown record is logged and
// dropped. On failure the record is left untouched.
func (p *Processor) Process(ctx context.Context, imageID string) error {
	const op = "worker.Process"

	rec, err := p.records.Get(ctx, imageID)
	if errors.Is(err, storage.ErrNotFound) {
		p.missing(imageID)
		return nil
	}
	if err != nil {
		return p.fail(imageID, fmt.Errorf("%s: %w", op, err))
	}

	artifact, err := p.derive(ctx, rec)
	if err != nil {
		return p.fail(imageID, fmt.Errorf("%s: %s: %w", op, imageID, err))
	}

	if err := p.Complete(ctx, imageID, artifact); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (p *Processor) derive(ctx context.Context, rec *models.ImageRecord) (string, error) {
	rc, err := p.blobs.Open(ctx, rec.BlobLocation)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	return render(rc, p.opts)
}

// Complete stores artifact and marks the record processed. The artifact is
// written first so a record is never processed without its derivative.
func (p *Processor) Complete(ctx context.Context, imageID, artifact string) error {
	const op = "worker.Complete"

	err := p.records.UpdateField(ctx, imageID, models.FieldDerivedArtifact, artifact)
	if err == nil {
		err = p.records.UpdateField(ctx, imageID, models.FieldProcessed, true)
	}
	switch {
	case errors.Is(err, storage.ErrNotFound):
		p.missing(imageID)
		return nil
	case err != nil:
		return p.fail(imageID, fmt.Errorf("%s: %w", op, err))
	}

	p.metrics.WorkerResults.WithLabelValues(metrics.ResultCompleted).Inc()
	p.log.Info("image processed", zap.String("image_id", imageID))
	return nil
}

func (p *Processor) missing(imageID string) {
	p.metrics.WorkerResults.WithLabelValues(metrics.ResultMissing).Inc()
	p.log.Warn("record not found, skipping", zap.String("image_id", imageID))
}

// fail counts and reports err.
func (p *Processor) fail(imageID string, err error) error {
	p.metrics.WorkerResults.WithLabelValues(metrics.ResultFailed).Inc()
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("image_id", imageID)
		sentry.CaptureException(err)
	})
	return err
}
