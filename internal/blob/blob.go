package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var ErrUnknownLocation = errors.New("location does not belong to this store")

// Store holds original upload bytes. Put returns a location that stays valid
// for the lifetime of the blob; Open accepts only locations it produced.
type Store interface {
	Put(ctx context.Context, data []byte, contentType string) (string, error)
	Open(ctx context.Context, location string) (io.ReadCloser, error)
}

// NewKey returns "<unix-ms>-<uuid><ext>". The random part keeps concurrent
// uploads in the same millisecond apart.
func NewKey(now time.Time, contentType string) string {
	return fmt.Sprintf("%d-%s%s", now.UnixMilli(), uuid.NewString(), extension(contentType))
}

func extension(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	}
	if m := mimetype.Lookup(contentType); m != nil {
		return m.Extension()
	}
	return ""
}

func keyFromLocation(base, location string) (string, error) {
	key, ok := strings.CutPrefix(location, base+"/")
	if !ok || key == "" || strings.Contains(key, "/") || strings.Contains(key, "..") {
		return "", fmt.Errorf("%w: %s", ErrUnknownLocation, location)
	}
	return key, nil
}
