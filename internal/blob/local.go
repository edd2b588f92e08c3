package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FilesRoute is where the HTTP server exposes a Local store's directory.
const FilesRoute = "/files"

// Local writes blobs to a directory that the HTTP server serves under FilesRoute.
type Local struct {
	root string
	base string
	now  func() time.Time
}

func NewLocal(root, publicURL string) (*Local, error) {
	const op = "blob.NewLocal"

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Local{
		root: root,
		base: strings.TrimRight(publicURL, "/") + FilesRoute,
		now:  time.Now,
	}, nil
}

func (s *Local) Root() string {
	return s.root
}

func (s *Local) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	const op = "blob.Local.Put"

	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	key := NewKey(s.now(), contentType)
	path := filepath.Join(s.root, key)

	// write to a temp name first so a half-written file is never served
	tmp := path + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return s.base + "/" + key, nil
}

func (s *Local) Open(_ context.Context, location string) (io.ReadCloser, error) {
	const op = "blob.Local.Open"

	key, err := keyFromLocation(s.base, location)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	f, err := os.Open(filepath.Join(s.root, key))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return f, nil
}
