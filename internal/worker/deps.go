package worker

import (
	"context"

	"gifpipe/internal/models"
	"gifpipe/internal/pkg/logger"
	"gifpipe/internal/queue"
)

// JobProcessor runs one job. It is satisfied by *processor.Processor.
type JobProcessor interface {
	ProcessJob(ctx context.Context, d models.Descriptor) error
}

type Deps struct {
	Consumer    queue.Consumer
	Processor   JobProcessor
	Concurrency int
	Log         *logger.Logger
}
