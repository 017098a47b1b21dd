// Package worker runs the consumer slots that feed the job processor.
package worker

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"gifpipe/internal/models"
	"gifpipe/internal/pkg/logger"
)

// Run starts d.Concurrency slots and blocks until ctx is done and every
// in-flight job has returned. Jobs run on a context detached from ctx, so a
// shutdown stops new claims without interrupting a transform.
func Run(ctx context.Context, d Deps) error {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("worker")

	slots := d.Concurrency
	if slots < 1 {
		slots = 1
	}

	handler := func(ctx context.Context, desc models.Descriptor) (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				log.WithJobID(desc.ID).Error("panic in job handler", "panic", fmt.Sprint(rec))
				err = fmt.Errorf("job %s panicked: %v", desc.ID, rec)
			}
		}()

		jobCtx := logger.ContextWithJobID(context.WithoutCancel(ctx), desc.ID)
		jobLog := log.WithJobID(desc.ID)

		jobLog.Info("processing job", "attempt", desc.Attempt)
		startTime := time.Now()

		err = d.Processor.ProcessJob(jobCtx, desc)
		if err != nil {
			jobLog.Error("job not acknowledged",
				"error", err.Error(),
				"duration_ms", time.Since(startTime).Milliseconds(),
			)
			return err
		}
		jobLog.Info("job finished",
			"duration_ms", time.Since(startTime).Milliseconds(),
		)
		return nil
	}

	log.Info("worker started", "slots", slots)

	g, gctx := errgroup.WithContext(ctx)
	for slot := 0; slot < slots; slot++ {
		g.Go(func() error {
			return d.Consumer.Consume(gctx, slot, handler)
		})
	}

	err := g.Wait()
	log.Info("worker stopped")
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
