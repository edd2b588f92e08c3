package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"image-platform/internal/models"
	"image-platform/internal/storage"
	"image-platform/internal/storage/storagetest"
)

const ttl = 30 * time.Second

func newStore(t *testing.T, next storage.MetadataStore) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb, err := NewClient(context.Background(), mr.Addr())
	require.NoError(t, err)

	s := New(next, rdb, ttl, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func ids(records []models.ImageRecord) []string {
	out := make([]string, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.ImageID)
	}
	return out
}

func TestListingIsServedFromCache(t *testing.T) {
	next := storagetest.NewMemory()
	s, mr := newStore(t, next)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, &models.ImageRecord{ImageID: "a"}))
	first, err := s.ScanAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(first))
	assert.Equal(t, ttl, mr.TTL(listKey+":1"))

	// written behind the cache's back, so only the cached copy is visible
	require.NoError(t, next.Put(ctx, &models.ImageRecord{ImageID: "b"}))
	cached, err := s.ScanAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(cached))
}

func TestWritesInvalidateListing(t *testing.T) {
	next := storagetest.NewMemory()
	s, _ := newStore(t, next)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, &models.ImageRecord{ImageID: "a"}))
	_, err := s.ScanAll(ctx)
	require.NoError(t, err)

	require.NoError(t, s.UpdateField(ctx, "a", models.FieldProcessed, true))
	got, err := s.ScanAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Processed)

	require.NoError(t, s.Put(ctx, &models.ImageRecord{ImageID: "b"}))
	got, err = s.ScanAll(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, ids(got))
}

func TestFailedWriteKeepsListing(t *testing.T) {
	next := storagetest.NewMemory()
	s, mr := newStore(t, next)
	ctx := context.Background()

	_, err := s.ScanAll(ctx)
	require.NoError(t, err)

	next.PutErr = errors.New("db down")
	assert.Error(t, s.Put(ctx, &models.ImageRecord{ImageID: "a"}))
	assert.False(t, mr.Exists(genKey))
}

func TestListingExpires(t *testing.T) {
	next := storagetest.NewMemory()
	s, mr := newStore(t, next)
	ctx := context.Background()

	_, err := s.ScanAll(ctx)
	require.NoError(t, err)
	require.NoError(t, next.Put(ctx, &models.ImageRecord{ImageID: "a"}))

	mr.FastForward(ttl + time.Second)
	got, err := s.ScanAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(got))
}

// pausedScan holds its first ScanAll after reading from the store, so a
// write can land between the read and the cache fill.
type pausedScan struct {
	*storagetest.Memory
	scanned chan struct{}
	resume  chan struct{}
	once    sync.Once
}

func (p *pausedScan) ScanAll(ctx context.Context) ([]models.ImageRecord, error) {
	records, err := p.Memory.ScanAll(ctx)
	p.once.Do(func() {
		close(p.scanned)
		<-p.resume
	})
	return records, err
}

func TestScanOverlappingWriteDoesNotHideIt(t *testing.T) {
	next := &pausedScan{
		Memory:  storagetest.NewMemory(),
		scanned: make(chan struct{}),
		resume:  make(chan struct{}),
	}
	s, _ := newStore(t, next)
	ctx := context.Background()

	type result struct {
		records []models.ImageRecord
		err     error
	}
	done := make(chan result, 1)
	go func() {
		records, err := s.ScanAll(ctx)
		done <- result{records, err}
	}()

	<-next.scanned
	require.NoError(t, s.Put(ctx, &models.ImageRecord{ImageID: "id-1"}))
	close(next.resume)

	overlapped := <-done
	require.NoError(t, overlapped.err)
	assert.Empty(t, overlapped.records)

	got, err := s.ScanAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"id-1"}, ids(got))
}

func TestCompletionVisibleAfterOverlappingScan(t *testing.T) {
	next := &pausedScan{
		Memory:  storagetest.NewMemory(),
		scanned: make(chan struct{}),
		resume:  make(chan struct{}),
	}
	ctx := context.Background()
	require.NoError(t, next.Memory.Put(ctx, &models.ImageRecord{ImageID: "id-1"}))
	s, _ := newStore(t, next)

	done := make(chan error, 1)
	go func() {
		_, err := s.ScanAll(ctx)
		done <- err
	}()

	<-next.scanned
	require.NoError(t, s.UpdateField(ctx, "id-1", models.FieldProcessed, true))
	close(next.resume)
	require.NoError(t, <-done)

	got, err := s.ScanAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Processed)
}

func TestUnreachableRedisFallsThrough(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	next := storagetest.NewMemory()
	s := New(next, rdb, time.Minute, zaptest.NewLogger(t))
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, &models.ImageRecord{ImageID: "a"}))
	require.NoError(t, s.UpdateField(ctx, "a", models.FieldProcessed, true))

	got, err := s.ScanAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Processed)
}

func TestStoreErrorsPassThrough(t *testing.T) {
	next := storagetest.NewMemory()
	next.ScanErr = errors.New("scan failed")
	s, _ := newStore(t, next)

	_, err := s.ScanAll(context.Background())
	assert.EqualError(t, err, "scan failed")
}
