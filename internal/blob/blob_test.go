package blob

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKey(t *testing.T) {
	now := time.UnixMilli(1700000000123)

	png := NewKey(now, "image/png")
	assert.True(t, strings.HasPrefix(png, "1700000000123-"), png)
	assert.True(t, strings.HasSuffix(png, ".png"), png)

	assert.True(t, strings.HasSuffix(NewKey(now, "image/jpeg"), ".jpg"))
	assert.True(t, strings.HasSuffix(NewKey(now, "image/gif"), ".gif"))
	assert.NotEqual(t, NewKey(now, "image/png"), NewKey(now, "image/png"))
}

func TestKeyFromLocation(t *testing.T) {
	key, err := keyFromLocation("http://host/files", "http://host/files/1-a.png")
	require.NoError(t, err)
	assert.Equal(t, "1-a.png", key)

	for _, loc := range []string{
		"http://other/files/1-a.png",
		"http://host/files/",
		"http://host/files/../secret",
		"http://host/files/dir/1-a.png",
	} {
		_, err := keyFromLocation("http://host/files", loc)
		assert.ErrorIs(t, err, ErrUnknownLocation, loc)
	}
}

func TestLocalPutOpen(t *testing.T) {
	root := t.TempDir()
	s, err := NewLocal(root, "http://localhost:5001/")
	require.NoError(t, err)
	ctx := context.Background()

	loc, err := s.Put(ctx, []byte("pixels"), "image/png")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(loc, "http://localhost:5001/files/"), loc)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, filepath.Base(loc), entries[0].Name())

	rc, err := s.Open(ctx, loc)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "pixels", string(data))
}

func TestLocalPutDistinctLocations(t *testing.T) {
	s, err := NewLocal(t.TempDir(), "http://localhost:5001")
	require.NoError(t, err)

	a, err := s.Put(context.Background(), []byte("same"), "image/png")
	require.NoError(t, err)
	b, err := s.Put(context.Background(), []byte("same"), "image/png")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestLocalOpenForeignLocation(t *testing.T) {
	s, err := NewLocal(t.TempDir(), "http://localhost:5001")
	require.NoError(t, err)

	_, err = s.Open(context.Background(), "http://mock-s3.local/123-a.png")
	assert.ErrorIs(t, err, ErrUnknownLocation)
}

func TestLocalPutCanceled(t *testing.T) {
	s, err := NewLocal(t.TempDir(), "http://localhost:5001")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Put(ctx, []byte("x"), "image/png")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestS3CredentialsFallBackToDefaultChain(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "env-key")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "env-secret")
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(t.TempDir(), "none"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(t.TempDir(), "none"))
	ctx := context.Background()

	awsCfg, err := loadAWSConfig(ctx, S3Config{Region: "us-east-1"})
	require.NoError(t, err)
	creds, err := awsCfg.Credentials.Retrieve(ctx)
	require.NoError(t, err)
	assert.Equal(t, "env-key", creds.AccessKeyID)

	awsCfg, err = loadAWSConfig(ctx, S3Config{Region: "us-east-1", AccessKey: "static-key", SecretKey: "static-secret"})
	require.NoError(t, err)
	creds, err = awsCfg.Credentials.Retrieve(ctx)
	require.NoError(t, err)
	assert.Equal(t, "static-key", creds.AccessKeyID)
	assert.Equal(t, "static-secret", creds.SecretAccessKey)
}
