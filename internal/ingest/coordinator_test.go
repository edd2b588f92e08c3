package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"image-platform/internal/blob/blobtest"
	"image-platform/internal/dispatch/dispatchtest"
	"image-platform/internal/metrics"
	"image-platform/internal/models"
	"image-platform/internal/storage/storagetest"
)

type fixture struct {
	blobs      *blobtest.Memory
	records    *storagetest.Memory
	dispatcher *dispatchtest.Recorder
	metrics    *metrics.Metrics
	logs       *observer.ObservedLogs
	c          *Coordinator
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	f := &fixture{
		blobs:      blobtest.NewMemory(),
		records:    storagetest.NewMemory(),
		dispatcher: &dispatchtest.Recorder{},
		metrics:    metrics.New(prometheus.NewRegistry()),
		logs:       logs,
	}
	seq := 0
	opts = append([]Option{WithIDGenerator(func() string {
		seq++
		return fmt.Sprintf("id-%d", seq)
	})}, opts...)
	f.c = New(f.blobs, f.records, f.dispatcher, f.metrics, zap.New(core), opts...)
	return f
}

func png10k() []byte {
	return append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0x42}, 10*1024)...)
}

func TestIngestSuccess(t *testing.T) {
	f := newFixture(t, WithClock(func() time.Time {
		return time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	}))
	data := png10k()

	res, err := f.c.Ingest(context.Background(), data, "image/png")
	require.NoError(t, err)
	f.c.Wait()

	assert.Equal(t, Result{ImageID: "id-1", BlobLocation: "loc-1"}, res)

	rec, err := f.records.Get(context.Background(), "id-1")
	require.NoError(t, err)
	assert.Equal(t, "loc-1", rec.BlobLocation)
	assert.False(t, rec.Processed)
	assert.Equal(t, models.DataURI("image/png", data), rec.DerivedArtifact)
	assert.Equal(t, time.UTC, rec.CreatedAt.Location())

	assert.Equal(t, []string{"id-1"}, f.dispatcher.IDs())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Ingest.WithLabelValues(metrics.ResultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Dispatch.WithLabelValues(metrics.ResultSent)))
}

func TestIngestStripsContentTypeParams(t *testing.T) {
	f := newFixture(t)
	_, err := f.c.Ingest(context.Background(), []byte("gif"), "image/gif; charset=binary")
	require.NoError(t, err)

	rec, err := f.records.Get(context.Background(), "id-1")
	require.NoError(t, err)
	assert.Equal(t, "data:image/gif;base64,Z2lm", rec.DerivedArtifact)
}

func TestIngestRejectsWithoutSideEffects(t *testing.T) {
	cases := map[string]struct {
		data        []byte
		contentType string
	}{
		"empty":        {nil, "image/png"},
		"oversized":    {make([]byte, 6<<20), "image/png"},
		"one over max": {make([]byte, models.MaxUploadBytes+1), "image/png"},
		"not an image": {[]byte("hello"), "text/plain"},
		"bad mime":     {[]byte("hello"), ";;"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)

			_, err := f.c.Ingest(context.Background(), tc.data, tc.contentType)
			f.c.Wait()

			assert.ErrorIs(t, err, ErrValidation)
			assert.Equal(t, 0, f.blobs.Puts)
			assert.Equal(t, 0, f.records.Puts)
			assert.Empty(t, f.dispatcher.IDs())
			assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Ingest.WithLabelValues(metrics.ResultValidation)))
		})
	}
}

func TestIngestAcceptsExactLimit(t *testing.T) {
	f := newFixture(t, WithMaxBytes(16))
	_, err := f.c.Ingest(context.Background(), make([]byte, 16), "image/png")
	assert.NoError(t, err)

	_, err = f.c.Ingest(context.Background(), make([]byte, 17), "image/png")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestIngestBlobFailureLeavesNothing(t *testing.T) {
	f := newFixture(t)
	f.blobs.PutErr = errors.New("s3 unavailable")

	_, err := f.c.Ingest(context.Background(), png10k(), "image/png")
	f.c.Wait()

	assert.ErrorIs(t, err, ErrBlobWrite)
	assert.NotErrorIs(t, err, ErrMetadataWrite)

	all, scanErr := f.records.ScanAll(context.Background())
	require.NoError(t, scanErr)
	assert.Empty(t, all)
	assert.Empty(t, f.dispatcher.IDs())
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.OrphanedBlobs))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Ingest.WithLabelValues(metrics.ResultBlobError)))
}

func TestIngestMetadataFailureReportsOrphan(t *testing.T) {
	f := newFixture(t)
	f.records.PutErr = errors.New("connection refused")

	_, err := f.c.Ingest(context.Background(), png10k(), "image/png")
	f.c.Wait()

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMetadataWrite)
	var orphan *OrphanedBlobError
	require.ErrorAs(t, err, &orphan)
	assert.Equal(t, "loc-1", orphan.BlobLocation)

	// the blob stays; nothing rolls it back
	assert.True(t, f.blobs.Has("loc-1"))
	assert.Empty(t, f.dispatcher.IDs())

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.OrphanedBlobs))
	entries := f.logs.FilterField(zap.String("event", "orphaned_blob")).All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Equal(t, "loc-1", entries[0].ContextMap()["blob_location"])
}

func TestIngestDispatchFailureIsNotSurfaced(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.Err = errors.New("broker down")

	res, err := f.c.Ingest(context.Background(), png10k(), "image/png")
	require.NoError(t, err)
	f.c.Wait()

	rec, err := f.records.Get(context.Background(), res.ImageID)
	require.NoError(t, err)
	assert.False(t, rec.Processed)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Dispatch.WithLabelValues(metrics.ResultFailed)))
	assert.Equal(t, 1, f.logs.FilterField(zap.String("event", "dispatch_failed")).Len())
}

func TestIngestDoesNotWaitForDispatch(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.Block = make(chan struct{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := f.c.Ingest(context.Background(), png10k(), "image/png")
		assert.NoError(t, err)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("ingest blocked on dispatch")
	}
	assert.Empty(t, f.dispatcher.IDs())

	close(f.dispatcher.Block)
	f.c.Wait()
	assert.Equal(t, []string{"id-1"}, f.dispatcher.IDs())
}

func TestIngestDispatchSurvivesRequestCancel(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.Block = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	_, err := f.c.Ingest(ctx, png10k(), "image/png")
	require.NoError(t, err)
	cancel()

	close(f.dispatcher.Block)
	f.c.Wait()
	assert.Equal(t, []string{"id-1"}, f.dispatcher.IDs())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Dispatch.WithLabelValues(metrics.ResultSent)))
}

func TestIngestTwiceIsNotDeduplicated(t *testing.T) {
	f := newFixture(t)
	f.c.newID = uuid.NewString

	data := png10k()
	a, err := f.c.Ingest(context.Background(), data, "image/png")
	require.NoError(t, err)
	b, err := f.c.Ingest(context.Background(), data, "image/png")
	require.NoError(t, err)
	f.c.Wait()

	assert.NotEqual(t, a.ImageID, b.ImageID)
	assert.NotEqual(t, a.BlobLocation, b.BlobLocation)
	assert.Equal(t, 2, f.records.Len())
	assert.Equal(t, 2, f.blobs.Len())
	assert.ElementsMatch(t, []string{a.ImageID, b.ImageID}, f.dispatcher.IDs())
}
