package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stagehand/internal/jobs"
	"stagehand/internal/logging"
	"stagehand/internal/services"
)

// Start requeues jobs stranded by an earlier shutdown and launches the poll
// loop that claims ready work.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return errors.New("pipeline already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.runCtx = runCtx
	o.cancel = cancel
	o.running = true
	o.wg.Add(1)
	o.mu.Unlock()

	o.requeueStranded(runCtx)
	go o.runLoop(runCtx)
	return nil
}

// Stop cancels the run context and waits for the poll loop and every
// in-flight phase goroutine to finish.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	cancel := o.cancel
	o.running = false
	o.cancel = nil
	o.runCtx = nil
	o.mu.Unlock()

	cancel()
	o.wg.Wait()
}

func (o *Orchestrator) runLoop(ctx context.Context) {
	defer o.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		claimed, err := o.claimNext(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			o.logger.Error("claim next job failed", logging.Error(err))
			o.waitOrShutdown(ctx, time.Duration(o.cfg.Workflow.ErrorRetryInterval)*time.Second)
			continue
		}
		if claimed {
			continue
		}
		o.waitOrShutdown(ctx, o.pollInterval)
	}
}

// claimNext starts at most one phase. Queued jobs are claimed unconditionally;
// review and finalization wait for their operator-set marker attributes.
func (o *Orchestrator) claimNext(ctx context.Context) (bool, error) {
	candidates, err := o.registry.List(ctx, jobs.StatusQueued, jobs.StatusAwaitingReview, jobs.StatusReadyForFinalization)
	if err != nil {
		return false, err
	}
	for _, job := range candidates {
		var startErr error
		switch job.Status {
		case jobs.StatusQueued:
			startErr = o.StartProduce(ctx, job.ID)
		case jobs.StatusAwaitingReview:
			if job.Attr(jobs.AttrReviewRequested) == "" {
				continue
			}
			startErr = o.StartRender(ctx, job.ID, nil)
		case jobs.StatusReadyForFinalization:
			if job.Attr(jobs.AttrFinalizeRequested) == "" {
				continue
			}
			startErr = o.StartFinalize(ctx, job.ID, job.Attr(jobs.AttrInstrumental))
		default:
			continue
		}
		if startErr != nil {
			// A validation error means the job moved on since the
			// listing; let the next pass see the fresh status.
			if errors.Is(startErr, services.ErrValidation) {
				continue
			}
			return false, startErr
		}
		return true, nil
	}
	return false, nil
}

// requeueStranded returns jobs left mid-phase by an unclean shutdown to their
// phase entry point. Phase bodies check for existing outputs, so re-running
// them repeats no expensive work.
func (o *Orchestrator) requeueStranded(ctx context.Context) {
	stranded, err := o.registry.List(ctx, jobs.StatusProcessing, jobs.StatusReviewing, jobs.StatusRendering, jobs.StatusFinalizing)
	if err != nil {
		o.logger.Warn("scan for stranded jobs failed", logging.Error(err))
		return
	}
	for _, job := range stranded {
		target := jobs.StatusQueued
		var attrs map[string]string
		switch job.Status {
		case jobs.StatusReviewing, jobs.StatusRendering:
			target = jobs.StatusAwaitingReview
			attrs = map[string]string{jobs.AttrReviewRequested: "true"}
		case jobs.StatusFinalizing:
			target = jobs.StatusReadyForFinalization
			attrs = map[string]string{jobs.AttrFinalizeRequested: "true"}
		}
		from := job.Status
		if _, err := o.Transition(ctx, job.ID, target, attrs); err != nil {
			o.logger.Warn("requeue stranded job failed",
				logging.String(logging.FieldJobID, job.ID),
				logging.String(logging.FieldStatus, string(from)),
				logging.Error(err),
			)
			continue
		}
		o.appendLog(job.ID, fmt.Sprintf("Requeued after restart: %s -> %s", from, target))
		o.logger.Info("stranded job requeued",
			logging.String(logging.FieldJobID, job.ID),
			logging.String("from", string(from)),
			logging.String("to", string(target)),
		)
	}
}

func (o *Orchestrator) waitOrShutdown(ctx context.Context, wait time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(wait):
	}
}
