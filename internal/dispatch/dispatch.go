// Package dispatch carries the one-way "process this image" trigger from the
// ingestion path to the processing worker. Messages hold only the image id and
// no reply is ever expected.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"image-platform/internal/models"
)

var ErrMalformedEvent = errors.New("malformed dispatch event")

// Dispatcher sends a trigger for one image. A nil error means the transport
// accepted the message, not that processing happened.
type Dispatcher interface {
	Dispatch(ctx context.Context, imageID string) error
	Close() error
}

// Handler processes one delivered image id.
type Handler func(ctx context.Context, imageID string) error

// Consumer delivers events to a Handler until ctx is done. Handler errors are
// the handler's to report; consumers never redeliver.
type Consumer interface {
	Consume(ctx context.Context, h Handler) error
	Close() error
}

func Encode(imageID string) ([]byte, error) {
	return json.Marshal(models.DispatchEvent{ImageID: imageID})
}

func Decode(body []byte) (string, error) {
	var ev models.DispatchEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if ev.ImageID == "" {
		return "", fmt.Errorf("%w: empty imageId", ErrMalformedEvent)
	}
	return ev.ImageID, nil
}
