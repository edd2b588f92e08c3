package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"image-platform/internal/metrics"
	"image-platform/internal/models"
	"image-platform/internal/storage/storagetest"
)

func TestCheckCountsStaleRecords(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	store := storagetest.NewMemory()
	ctx := context.Background()
	for _, rec := range []models.ImageRecord{
		{ImageID: "stale", CreatedAt: now.Add(-time.Hour)},
		{ImageID: "fresh", CreatedAt: now.Add(-time.Minute)},
		{ImageID: "done", CreatedAt: now.Add(-time.Hour), Processed: true},
	} {
		rec := rec
		require.NoError(t, store.Put(ctx, &rec))
	}

	core, logs := observer.New(zapcore.DebugLevel)
	m := metrics.New(prometheus.NewRegistry())
	p := NewPending(store, m, zap.New(core), 10*time.Minute, time.Minute)
	p.now = func() time.Time { return now }

	n, err := p.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PendingStale))

	entries := logs.FilterField(zap.String("event", "pending_records")).All()
	require.Len(t, entries, 1)
	assert.Equal(t, []interface{}{"stale"}, entries[0].ContextMap()["image_ids"])
}

func TestCheckResetsGauge(t *testing.T) {
	store := storagetest.NewMemory()
	m := metrics.New(prometheus.NewRegistry())
	m.PendingStale.Set(7)

	p := NewPending(store, m, zap.NewNop(), 0, 0)
	n, err := p.Check(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, testutil.ToFloat64(m.PendingStale))
}

func TestCheckScanFailure(t *testing.T) {
	store := storagetest.NewMemory()
	store.ScanErr = errors.New("down")
	p := NewPending(store, metrics.New(prometheus.NewRegistry()), zap.NewNop(), 0, 0)

	_, err := p.Check(context.Background())
	assert.ErrorContains(t, err, "down")
}

func TestRunStopsOnCancel(t *testing.T) {
	p := NewPending(storagetest.NewMemory(), metrics.New(prometheus.NewRegistry()), zap.NewNop(), 0, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
