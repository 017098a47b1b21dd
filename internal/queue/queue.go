// Package queue carries job descriptors from the request tier to worker slots
// with at-least-once delivery.
package queue

import (
	"context"
	"encoding/json"

	"gifpipe/internal/models"
	"gifpipe/internal/pkg/errors"
)

// Handler processes one descriptor. A nil return acknowledges it; an error
// makes it visible again until the attempt limit is reached.
type Handler func(ctx context.Context, d models.Descriptor) error

// Producer publishes descriptors.
type Producer interface {
	Enqueue(ctx context.Context, d models.Descriptor) error
}

// Consumer feeds one worker slot. Consume blocks until ctx is done.
type Consumer interface {
	Consume(ctx context.Context, slot int, h Handler) error
}

func encode(d models.Descriptor) ([]byte, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, errors.Wrap(err, "queue.encode", "marshal descriptor")
	}
	return b, nil
}

func decode(raw []byte) (models.Descriptor, error) {
	var d models.Descriptor
	if err := json.Unmarshal(raw, &d); err != nil {
		return models.Descriptor{}, errors.WrapWithCode(err, errors.CodeBadRequest, "queue.decode", "malformed descriptor")
	}
	if d.ID == "" {
		return models.Descriptor{}, errors.New(errors.CodeBadRequest, "descriptor without id")
	}
	return d, nil
}

func unavailable(err error, op string) error {
	return errors.WrapWithCode(err, errors.CodeUnavailable, op, "job broker unavailable")
}

// retryable reports whether a failed descriptor has attempts left.
func retryable(d models.Descriptor, maxAttempts int) bool {
	return d.Attempt+1 < maxAttempts
}
