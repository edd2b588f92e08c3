// Package monitor reports records that never got processed.
package monitor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"image-platform/internal/metrics"
	"image-platform/internal/storage"
)

// Pending watches for records that stay unprocessed past a threshold. Since
// dispatch is never retried, such a record is the only trace of a lost trigger.
type Pending struct {
	records  storage.MetadataStore
	metrics  *metrics.Metrics
	log      *zap.Logger
	after    time.Duration
	interval time.Duration
	now      func() time.Time
}

func NewPending(records storage.MetadataStore, m *metrics.Metrics, log *zap.Logger,
	after, interval time.Duration) *Pending {
	if after <= 0 {
		after = 10 * time.Minute
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Pending{
		records:  records,
		metrics:  m,
		log:      log,
		after:    after,
		interval: interval,
		now:      time.Now,
	}
}

// Run checks once immediately and then on every tick until ctx is done.
func (p *Pending) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if _, err := p.Check(ctx); err != nil {
			p.log.Warn("pending check failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Check returns how many records are stale and publishes the count.
func (p *Pending) Check(ctx context.Context) (int, error) {
	const op = "monitor.Pending.Check"

	records, err := p.records.ScanAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	cutoff := p.now().Add(-p.after)
	var stale []string
	for _, rec := range records {
		if !rec.Processed && rec.CreatedAt.Before(cutoff) {
			stale = append(stale, rec.ImageID)
		}
	}

	p.metrics.PendingStale.Set(float64(len(stale)))
	if len(stale) > 0 {
		p.log.Warn("records still pending",
			zap.String("event", "pending_records"),
			zap.Int("count", len(stale)),
			zap.Duration("older_than", p.after),
			zap.Strings("image_ids", stale))
	}
	return len(stale), nil
}
