// Package dispatchtest provides a recording dispatch.Dispatcher for tests.
package dispatchtest

import (
	"context"
	"sync"

	"image-platform/internal/dispatch"
)

type Recorder struct {
	mu  sync.Mutex
	ids []string

	// Err, when set, fails every Dispatch after recording the attempt.
	Err error
	// Block, when non-nil, holds Dispatch until it is closed or ctx ends.
	Block chan struct{}
}

var _ dispatch.Dispatcher = (*Recorder)(nil)

func (r *Recorder) Dispatch(ctx context.Context, imageID string) error {
	if r.Block != nil {
		select {
		case <-r.Block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, imageID)
	return r.Err
}

func (r *Recorder) Close() error {
	return nil
}

func (r *Recorder) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}
