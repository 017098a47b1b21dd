package queue

import (
	"context"

	"gifpipe/internal/models"
	"gifpipe/internal/pkg/errors"
	"gifpipe/internal/pkg/logger"
)

// LocalQueue is an in-process channel queue for single-process deployments.
// Descriptors do not survive a restart.
type LocalQueue struct {
	ch          chan models.Descriptor
	maxAttempts int
	log         *logger.Logger
}

func NewLocalQueue(buffer, maxAttempts int, log *logger.Logger) *LocalQueue {
	if buffer <= 0 {
		buffer = 1
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &LocalQueue{
		ch:          make(chan models.Descriptor, buffer),
		maxAttempts: maxAttempts,
		log:         log.WithComponent("queue"),
	}
}

func (q *LocalQueue) Enqueue(ctx context.Context, d models.Descriptor) error {
	select {
	case q.ch <- d:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return errors.Unavailable("local queue full")
	}
}

func (q *LocalQueue) Len() int { return len(q.ch) }

func (q *LocalQueue) Consume(ctx context.Context, slot int, h Handler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d := <-q.ch:
			if err := h(ctx, d); err != nil {
				q.retry(d, err)
			}
		}
	}
}

func (q *LocalQueue) retry(d models.Descriptor, cause error) {
	log := q.log.WithJobID(d.ID)
	if !retryable(d, q.maxAttempts) {
		log.Error("giving up on job", "attempt", d.Attempt+1, "error", cause.Error())
		return
	}
	d.Attempt++
	select {
	case q.ch <- d:
		log.Warn("job requeued", "attempt", d.Attempt, "error", cause.Error())
	default:
		log.Error("queue full, job dropped", "attempt", d.Attempt, "error", cause.Error())
	}
}
