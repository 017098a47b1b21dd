// Package processor runs one conversion job from source blob to published GIF.
package processor

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"gifpipe/internal/ledger"
	"gifpipe/internal/media"
	"gifpipe/internal/models"
	"gifpipe/internal/pkg/errors"
	"gifpipe/internal/pkg/logger"
	"gifpipe/internal/ports"
	"gifpipe/internal/repositories"
)

// ErrRetry is returned when a job's outcome could not be recorded and the
// broker should deliver it again.
var ErrRetry = stderrors.New("job outcome not recorded, redeliver")

// Transformer renders a GIF from a local video.
type Transformer interface {
	Transform(ctx context.Context, input string, opts media.Options, outDir string) (media.Result, error)
}

type Deps struct {
	Ledger     ledger.Ledger
	SP         ports.StorageProvider
	Engine     Transformer
	History    repositories.JobRecorder
	ScratchDir string
	Log        *logger.Logger
}

type Processor struct {
	ledger  ledger.Ledger
	engine  Transformer
	history repositories.JobRecorder
	log     *logger.Logger

	inputHandler  *InputHandler
	outputHandler *OutputHandler
	cleanup       *Cleanup
}

func New(d Deps) *Processor {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("processor")

	history := d.History
	if history == nil {
		history = repositories.NopRecorder{}
	}

	return &Processor{
		ledger:        d.Ledger,
		engine:        d.Engine,
		history:       history,
		log:           log,
		inputHandler:  NewInputHandler(d.SP, d.ScratchDir),
		outputHandler: NewOutputHandler(d.SP, log),
		cleanup:       NewCleanup(log),
	}
}

// ProcessJob runs the pipeline for d. It returns nil once a terminal status
// is recorded, whether the job succeeded or failed, and an error wrapping
// ErrRetry when the status could not be written.
// A panic in any stage is recorded as a FAILURE like any other stage error.
func (p *Processor) ProcessJob(ctx context.Context, d models.Descriptor) (err error) {
	log := p.log.FromContext(ctx).WithJobID(d.ID)

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("panic recovered", "panic", fmt.Sprint(rec))
			perr := errors.New(errors.CodeInternal, fmt.Sprintf("panic: %v", rec))
			perr.Op = "processor.job"
			err = p.failJob(ctx, d, perr)
		}
	}()

	cur, err := p.ledger.Get(ctx, d.ID)
	if err != nil {
		return retry(err, "processor.status")
	}
	if cur.State.Terminal() {
		log.Info("job already finished, acknowledging", "state", string(cur.State))
		return nil
	}

	if err := p.ledger.Put(ctx, models.NewStatus(d.ID, models.StateRunning)); err != nil {
		return retry(err, "processor.status")
	}
	p.record(ctx, "running", p.history.MarkRunning(ctx, d.ID))

	workDir := p.inputHandler.WorkDir(d.ID)
	defer p.cleanup.RemoveWorkDir(d.ID, workDir)

	start := time.Now()
	log.Info("starting conversion", "source", d.SourceKey, "attempt", d.Attempt)

	input, err := p.inputHandler.Materialize(ctx, d)
	if err != nil {
		return p.failJob(ctx, d, errors.Wrap(err, "processor.inputs", "failed to fetch source"))
	}

	res, err := p.engine.Transform(ctx, input, d.Options, workDir)
	if err != nil {
		return p.failJob(ctx, d, errors.Wrap(err, "processor.transform", "conversion failed"))
	}

	keys, err := p.outputHandler.Publish(ctx, d, res)
	if err != nil {
		return p.failJob(ctx, d, errors.Wrap(err, "processor.outputs", "failed to publish gif"))
	}

	st := models.NewStatus(d.ID, models.StateSuccess)
	st.ArtifactKey = keys.GIF
	st.PreviewKey = keys.Preview
	st.Width, st.Height = res.Width, res.Height
	if err := p.ledger.Put(ctx, st); err != nil {
		return retry(err, "processor.status")
	}
	p.record(ctx, "succeeded", p.history.MarkSucceeded(ctx, st))

	// The source goes only after SUCCESS is durable so a redelivery can redo the work.
	p.outputHandler.Release(ctx, d)

	log.Info("job completed",
		"artifact", keys.GIF,
		"width", res.Width,
		"height", res.Height,
		"overlay", res.OverlayApplied,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (p *Processor) failJob(ctx context.Context, d models.Descriptor, cause error) error {
	log := p.log.FromContext(ctx).WithJobID(d.ID)

	var appErr *errors.Error
	if errors.As(cause, &appErr) {
		log.Error("job failed",
			"code", string(appErr.Code),
			"op", appErr.Op,
			"error", cause.Error(),
		)
	} else {
		log.Error("job failed", "error", cause.Error())
	}

	st := models.Failed(d.ID, cause.Error(), errors.Trace(cause))
	if err := p.ledger.Put(ctx, st); err != nil {
		return retry(err, "processor.status")
	}
	p.record(ctx, "failed", p.history.MarkFailed(ctx, d.ID, st.Error))
	return nil
}

func (p *Processor) record(ctx context.Context, event string, err error) {
	if err != nil {
		p.log.FromContext(ctx).Warn("job history update failed", "event", event, "error", err.Error())
	}
}

func retry(err error, op string) error {
	return stderrors.Join(ErrRetry, errors.Wrap(err, op, "status store unavailable"))
}
