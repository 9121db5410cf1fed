package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"stagehand/internal/config"
	"stagehand/internal/encoding"
	"stagehand/internal/finalize"
	"stagehand/internal/joblog"
	"stagehand/internal/jobs"
	"stagehand/internal/logging"
	"stagehand/internal/lyrics"
	"stagehand/internal/notifications"
	"stagehand/internal/produce"
	"stagehand/internal/render"
	"stagehand/internal/services"
	"stagehand/internal/staging"
)

// ProduceRunner executes the processing phase for one job.
type ProduceRunner interface {
	Run(ctx context.Context, job *jobs.Job) (map[string]string, error)
}

// RenderRunner executes the reviewing and rendering phases. ApplyCorrections
// turns the corrections file into subtitles; RenderPreview produces the
// review video.
type RenderRunner interface {
	ApplyCorrections(ctx context.Context, job *jobs.Job) (map[string]string, error)
	RenderPreview(ctx context.Context, job *jobs.Job) (map[string]string, error)
}

// FinalizeRunner executes the finalizing phase: master render, variant
// encodes, and library delivery.
type FinalizeRunner interface {
	Run(ctx context.Context, job *jobs.Job) (map[string]string, error)
}

// Orchestrator coordinates phase execution against the job registry.
type Orchestrator struct {
	cfg          *config.Config
	registry     jobs.Registry
	log          joblog.Store
	notifier     notifications.Service
	logger       *slog.Logger
	encoder      *encoding.Encoder
	pollInterval time.Duration

	produce  ProduceRunner
	render   RenderRunner
	finalize FinalizeRunner

	mu      sync.Mutex
	running bool
	runCtx  context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs an orchestrator with the production phase runners. The
// encoder is shared so the hardware probe runs once per process.
func New(cfg *config.Config, registry jobs.Registry, log joblog.Store, notifier notifications.Service, logger *slog.Logger) *Orchestrator {
	encoder := encoding.NewEncoder(cfg, logging.NewComponentLogger(logger, "encoding"))
	o := newOrchestrator(cfg, registry, log, notifier, logger)
	o.encoder = encoder
	o.produce = produce.NewRunner(cfg, log, logger)
	o.render = render.NewRunner(cfg, log, logger)
	o.finalize = finalize.NewRunner(cfg, encoder, log, logger)
	return o
}

// NewWithRunners constructs an orchestrator with caller-supplied runners.
// Used in tests.
func NewWithRunners(cfg *config.Config, registry jobs.Registry, log joblog.Store, notifier notifications.Service, produceRunner ProduceRunner, renderRunner RenderRunner, finalizeRunner FinalizeRunner, logger *slog.Logger) *Orchestrator {
	o := newOrchestrator(cfg, registry, log, notifier, logger)
	o.produce = produceRunner
	o.render = renderRunner
	o.finalize = finalizeRunner
	return o
}

func newOrchestrator(cfg *config.Config, registry jobs.Registry, log joblog.Store, notifier notifications.Service, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		cfg:          cfg,
		registry:     registry,
		log:          log,
		notifier:     notifier,
		logger:       logging.NewComponentLogger(logger, "pipeline"),
		pollInterval: time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
	}
}

// Encoder exposes the shared encoder so the daemon can run the hardware probe
// at startup.
func (o *Orchestrator) Encoder() *encoding.Encoder {
	return o.encoder
}

// Transition moves the job to status: it closes the open timeline record,
// opens a new one, merges attrs last-write-wins (empty values remove keys),
// and persists the whole record. Progress moves to the canonical mark for the
// status; the error status has no mark and keeps the job's prior progress.
//
// This is the only way status and timeline change. The registry replaces
// whole records, so concurrent writers resolve last-write-wins; phase bodies
// stay idempotent to make the occasional lost update harmless.
func (o *Orchestrator) Transition(ctx context.Context, jobID string, status jobs.Status, attrs map[string]string) (*jobs.Job, error) {
	job, err := o.registry.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	job.BeginPhase(status, time.Now().UTC())
	job.MergeAttrs(attrs)
	job.Status = status
	if mark, ok := jobs.ProgressFor(status); ok {
		job.Progress = mark
	}
	if err := o.registry.Put(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Retry returns an errored job to the queue. Attributes survive, so phases
// skip work whose outputs already exist; the stale error details clear when
// processing starts again.
func (o *Orchestrator) Retry(ctx context.Context, jobID string) (*jobs.Job, error) {
	job, err := o.registry.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != jobs.StatusError {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "retry",
			fmt.Sprintf("job is %s; only errored jobs can be retried", job.Status), nil)
	}
	retried, err := o.Transition(ctx, jobID, jobs.StatusQueued, nil)
	if err != nil {
		return nil, err
	}
	o.appendLog(jobID, "Retry requested; job returned to queue")
	return retried, nil
}

// StartProduce claims a queued job and schedules the processing phase.
func (o *Orchestrator) StartProduce(ctx context.Context, jobID string) error {
	job, err := o.registry.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != jobs.StatusQueued {
		return services.Wrap(services.ErrValidation, "pipeline", "produce",
			fmt.Sprintf("job is %s, not %s", job.Status, jobs.StatusQueued), nil)
	}
	if _, err := o.Transition(ctx, jobID, jobs.StatusProcessing, clearAttrs(jobs.AttrError, jobs.AttrErrorPhase)); err != nil {
		return err
	}
	o.appendLog(jobID, "Processing started")
	o.schedule(jobID, jobs.StatusProcessing, o.runProduce)
	return nil
}

// StartRender claims a job awaiting review and schedules correction apply and
// preview render. A non-empty payload replaces the corrections file first;
// callers that already wrote corrections through RequestReview pass nil.
func (o *Orchestrator) StartRender(ctx context.Context, jobID string, payload []byte) error {
	job, err := o.registry.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != jobs.StatusAwaitingReview {
		return services.Wrap(services.ErrValidation, "pipeline", "render",
			fmt.Sprintf("job is %s, not %s", job.Status, jobs.StatusAwaitingReview), nil)
	}
	if err := o.storeCorrections(jobID, payload); err != nil {
		return err
	}
	attrs := clearAttrs(jobs.AttrReviewRequested, jobs.AttrError, jobs.AttrErrorPhase)
	if _, err := o.Transition(ctx, jobID, jobs.StatusReviewing, attrs); err != nil {
		return err
	}
	o.appendLog(jobID, "Review accepted; rendering preview")
	o.schedule(jobID, jobs.StatusReviewing, o.runRender)
	return nil
}

// StartFinalize claims a reviewed job and schedules the finalizing phase. The
// selection picks the instrumental track for the deliverables; empty keeps
// the default behavior.
func (o *Orchestrator) StartFinalize(ctx context.Context, jobID, selection string) error {
	if err := validateSelection(selection); err != nil {
		return err
	}
	job, err := o.registry.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != jobs.StatusReadyForFinalization {
		return services.Wrap(services.ErrValidation, "pipeline", "finalize",
			fmt.Sprintf("job is %s, not %s", job.Status, jobs.StatusReadyForFinalization), nil)
	}
	attrs := clearAttrs(jobs.AttrFinalizeRequested, jobs.AttrError, jobs.AttrErrorPhase)
	attrs[jobs.AttrInstrumental] = selection
	if _, err := o.Transition(ctx, jobID, jobs.StatusFinalizing, attrs); err != nil {
		return err
	}
	o.appendLog(jobID, "Finalizing started")
	o.schedule(jobID, jobs.StatusFinalizing, o.runFinalize)
	return nil
}

// RequestReview stores an edited corrections payload and marks the job for
// the daemon poll loop to pick up. The job stays in awaiting_review until the
// loop claims it.
func (o *Orchestrator) RequestReview(ctx context.Context, jobID string, payload []byte) (*jobs.Job, error) {
	job, err := o.registry.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != jobs.StatusAwaitingReview {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "review",
			fmt.Sprintf("job is %s, not %s", job.Status, jobs.StatusAwaitingReview), nil)
	}
	if err := o.storeCorrections(jobID, payload); err != nil {
		return nil, err
	}
	job.SetAttr(jobs.AttrReviewRequested, "true")
	if err := o.registry.Put(ctx, job); err != nil {
		return nil, err
	}
	o.appendLog(jobID, "Review submitted")
	return job, nil
}

// RequestFinalize marks a reviewed job for finalization with the chosen
// instrumental selection.
func (o *Orchestrator) RequestFinalize(ctx context.Context, jobID, selection string) (*jobs.Job, error) {
	if err := validateSelection(selection); err != nil {
		return nil, err
	}
	job, err := o.registry.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != jobs.StatusReadyForFinalization {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "finalize",
			fmt.Sprintf("job is %s, not %s", job.Status, jobs.StatusReadyForFinalization), nil)
	}
	job.SetAttr(jobs.AttrFinalizeRequested, "true")
	if selection != "" {
		job.SetAttr(jobs.AttrInstrumental, selection)
	}
	if err := o.registry.Put(ctx, job); err != nil {
		return nil, err
	}
	o.appendLog(jobID, "Finalization requested")
	return job, nil
}

// storeCorrections validates a corrections payload and writes it to the
// job's workspace. A nil payload leaves the existing file alone.
func (o *Orchestrator) storeCorrections(jobID string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	var corrections lyrics.Corrections
	if err := json.Unmarshal(payload, &corrections); err != nil {
		return services.Wrap(services.ErrValidation, "pipeline", "review", "parse corrections payload", err)
	}
	if err := corrections.Validate(); err != nil {
		return services.Wrap(services.ErrValidation, "pipeline", "review", "corrections payload", err)
	}
	ws := staging.JobWorkspace(o.cfg.Paths.StagingDir, jobID)
	if err := lyrics.Save(ws.CorrectionsPath(), corrections); err != nil {
		return services.Wrap(services.ErrTransient, "pipeline", "review", "store corrections payload", err)
	}
	return nil
}

func validateSelection(selection string) error {
	switch selection {
	case "", finalize.SelectionStem, finalize.SelectionOriginal:
		return nil
	default:
		return services.Wrap(services.ErrValidation, "pipeline", "finalize",
			fmt.Sprintf("unknown instrumental selection %q", selection), nil)
	}
}

// schedule runs a phase body in a goroutine tracked by the orchestrator's
// wait group, under the run context so Stop can cancel it. Entry points
// called outside a running loop fall back to the background context.
func (o *Orchestrator) schedule(jobID string, status jobs.Status, body func(ctx context.Context, jobID string)) {
	o.mu.Lock()
	ctx := o.runCtx
	if ctx == nil {
		ctx = context.Background()
	}
	o.wg.Add(1)
	o.mu.Unlock()

	ctx = services.WithJobID(ctx, jobID)
	ctx = services.WithPhase(ctx, string(status))
	ctx = services.WithRequestID(ctx, uuid.NewString())
	go func() {
		defer o.wg.Done()
		body(ctx, jobID)
	}()
}

func (o *Orchestrator) runProduce(ctx context.Context, jobID string) {
	logger := logging.WithContext(ctx, o.logger)
	job, err := o.registry.Get(ctx, jobID)
	if err != nil {
		logger.Error("fetch job for processing", logging.Error(err))
		return
	}

	started := time.Now()
	logger.Info("phase started", logging.String(logging.FieldStatus, string(jobs.StatusProcessing)))
	attrs, runErr := o.produce.Run(ctx, job)
	if runErr != nil {
		o.failPhase(ctx, jobID, string(jobs.StatusProcessing), attrs, runErr)
		return
	}

	updated, err := o.Transition(ctx, jobID, jobs.StatusAwaitingReview, attrs)
	if err != nil {
		o.reportTransitionFailure(ctx, jobs.StatusAwaitingReview, err)
		return
	}
	logger.Info("phase completed",
		logging.String(logging.FieldStatus, string(jobs.StatusAwaitingReview)),
		logging.Duration("phase_duration", time.Since(started)),
	)
	o.appendLog(jobID, "Lyrics draft ready for review")
	o.notify(ctx, notifications.EventReviewReady, updated, nil)
}

func (o *Orchestrator) runRender(ctx context.Context, jobID string) {
	logger := logging.WithContext(ctx, o.logger)
	job, err := o.registry.Get(ctx, jobID)
	if err != nil {
		logger.Error("fetch job for rendering", logging.Error(err))
		return
	}

	started := time.Now()
	logger.Info("phase started", logging.String(logging.FieldStatus, string(jobs.StatusReviewing)))
	attrs, runErr := o.render.ApplyCorrections(ctx, job)
	if runErr != nil {
		o.failPhase(ctx, jobID, string(jobs.StatusReviewing), attrs, runErr)
		return
	}
	job, err = o.Transition(ctx, jobID, jobs.StatusRendering, attrs)
	if err != nil {
		o.reportTransitionFailure(ctx, jobs.StatusRendering, err)
		return
	}

	attrs, runErr = o.render.RenderPreview(ctx, job)
	if runErr != nil {
		o.failPhase(ctx, jobID, string(jobs.StatusRendering), attrs, runErr)
		return
	}
	updated, err := o.Transition(ctx, jobID, jobs.StatusReadyForFinalization, attrs)
	if err != nil {
		o.reportTransitionFailure(ctx, jobs.StatusReadyForFinalization, err)
		return
	}
	logger.Info("phase completed",
		logging.String(logging.FieldStatus, string(jobs.StatusReadyForFinalization)),
		logging.Duration("phase_duration", time.Since(started)),
	)
	o.appendLog(jobID, "Preview ready; awaiting finalization")
	o.notify(ctx, notifications.EventFinalizeReady, updated, nil)
}

func (o *Orchestrator) runFinalize(ctx context.Context, jobID string) {
	logger := logging.WithContext(ctx, o.logger)
	job, err := o.registry.Get(ctx, jobID)
	if err != nil {
		logger.Error("fetch job for finalizing", logging.Error(err))
		return
	}

	started := time.Now()
	logger.Info("phase started", logging.String(logging.FieldStatus, string(jobs.StatusFinalizing)))
	attrs, runErr := o.finalize.Run(ctx, job)
	if runErr != nil {
		o.failPhase(ctx, jobID, string(jobs.StatusFinalizing), attrs, runErr)
		return
	}

	updated, err := o.Transition(ctx, jobID, jobs.StatusComplete, attrs)
	if err != nil {
		o.reportTransitionFailure(ctx, jobs.StatusComplete, err)
		return
	}
	logger.Info("phase completed",
		logging.String(logging.FieldStatus, string(jobs.StatusComplete)),
		logging.Duration("phase_duration", time.Since(started)),
	)
	o.appendLog(jobID, "Job complete")
	o.notify(ctx, notifications.EventJobComplete, updated, notifications.Payload{
		"brandCode": updated.Attr(jobs.AttrBrandCode),
		"shareLink": updated.Attr(jobs.AttrShareLink),
	})
}

// failPhase records a phase failure: the job moves to the error status with
// the message and failing phase in its attributes, keeping any attribute
// updates the phase managed to produce so a retry can skip finished work.
// Cancellation during shutdown is not a failure; the job keeps its working
// status and the next Start requeues it.
func (o *Orchestrator) failPhase(ctx context.Context, jobID, phase string, attrs map[string]string, cause error) {
	logger := logging.WithContext(ctx, o.logger)
	if errors.Is(cause, context.Canceled) && ctx.Err() != nil {
		logger.Debug("phase interrupted by shutdown", logging.String(logging.FieldPhase, phase))
		return
	}

	merged := make(map[string]string, len(attrs)+2)
	for key, value := range attrs {
		merged[key] = value
	}
	merged[jobs.AttrError] = cause.Error()
	merged[jobs.AttrErrorPhase] = phase

	logger.Error("phase failed",
		logging.String(logging.FieldPhase, phase),
		logging.String("error_kind", services.Kind(cause)),
		logging.String(logging.FieldAlert, "phase_failure"),
		logging.Error(cause),
	)
	o.appendLog(jobID, fmt.Sprintf("Phase %s failed: %v", phase, cause))

	job, err := o.Transition(ctx, jobID, jobs.StatusError, merged)
	if err != nil {
		o.reportTransitionFailure(ctx, jobs.StatusError, err)
		return
	}
	o.notify(ctx, notifications.EventJobFailed, job, notifications.Payload{
		"phase": phase,
		"error": cause.Error(),
	})
}

func (o *Orchestrator) reportTransitionFailure(ctx context.Context, status jobs.Status, err error) {
	logger := logging.WithContext(ctx, o.logger)
	if errors.Is(err, context.Canceled) {
		logger.Debug("shutdown before status change persisted", logging.String(logging.FieldStatus, string(status)))
		return
	}
	logger.Error("persist status change",
		logging.String(logging.FieldStatus, string(status)),
		logging.Error(err),
	)
}

func (o *Orchestrator) notify(ctx context.Context, event notifications.Event, job *jobs.Job, extra notifications.Payload) {
	if o.notifier == nil {
		return
	}
	payload := notifications.Payload{"track": job.DisplayName()}
	for key, value := range extra {
		if value != "" {
			payload[key] = value
		}
	}
	if err := o.notifier.Publish(ctx, event, payload); err != nil {
		logging.WithContext(ctx, o.logger).Warn("notification publish failed",
			logging.String("event", string(event)),
			logging.Error(err),
		)
	}
}

func (o *Orchestrator) appendLog(jobID, line string) {
	if o.log == nil {
		return
	}
	if err := o.log.Append(jobID, line); err != nil {
		o.logger.Warn("append job log", logging.String(logging.FieldJobID, jobID), logging.Error(err))
	}
}

// clearAttrs builds an attribute update that removes the given keys.
func clearAttrs(keys ...string) map[string]string {
	attrs := make(map[string]string, len(keys))
	for _, key := range keys {
		attrs[key] = ""
	}
	return attrs
}
