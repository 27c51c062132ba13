package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"lectern/internal/analysis"
	"lectern/internal/config"
	"lectern/internal/download"
	"lectern/internal/extraction"
	"lectern/internal/logging"
	"lectern/internal/notifications"
	"lectern/internal/records"
	"lectern/internal/segmentation"
	"lectern/internal/services"
	"lectern/internal/stage"
	"lectern/internal/tasks"
	"lectern/internal/thumbnail"
	"lectern/internal/transcription"
)

// Orchestrator drives videos through the stage graph. It owns the worker
// pool, routes claimed tasks to stage handlers, and finalizes each task row
// according to the stage outcome: completion enqueues successors, retryable
// failures requeue with a growing delay, exhausted failures end the run.
type Orchestrator struct {
	cfg      *config.Config
	store    *records.Store
	tasks    *tasks.Store
	handlers map[string]stage.Handler
	notifier notifications.Service
	logger   *slog.Logger
	pool     *tasks.Pool
	now      func() time.Time
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithHandler replaces the handler for a stage. Used by tests to substitute
// fakes for handlers that shell out.
func WithHandler(stageName string, handler stage.Handler) Option {
	return func(o *Orchestrator) {
		o.handlers[stageName] = handler
	}
}

// WithNotifier replaces the notification service.
func WithNotifier(notifier notifications.Service) Option {
	return func(o *Orchestrator) {
		o.notifier = notifier
	}
}

// WithClock overrides the time source used for retry scheduling.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// New constructs an orchestrator with the production stage handlers.
func New(cfg *config.Config, store *records.Store, logger *slog.Logger, opts ...Option) (*Orchestrator, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	o := &Orchestrator{
		cfg:      cfg,
		store:    store,
		tasks:    tasks.NewStore(store.DB()),
		handlers: make(map[string]stage.Handler, len(stageDefs)),
		notifier: notifications.NewService(cfg),
		logger:   logging.NewComponentLogger(logger, "pipeline"),
		now:      time.Now,
	}

	downloader, err := download.NewDownloader(cfg, store, logger)
	if err != nil {
		return nil, fmt.Errorf("build downloader: %w", err)
	}
	transcriber, err := transcription.NewTranscriber(cfg, store, logger)
	if err != nil {
		return nil, fmt.Errorf("build transcriber: %w", err)
	}
	o.handlers[StageDownload] = downloader
	o.handlers[StageExtraction] = extraction.NewExtractor(cfg, store, logger)
	o.handlers[StageThumbnail] = thumbnail.NewThumbnailer(cfg, store, logger)
	o.handlers[StageTranscription] = transcriber
	o.handlers[StageAnalysis] = analysis.NewHandler(cfg, store, logger)
	o.handlers[StageSegmentation] = segmentation.NewSegmenter(cfg, store, logger)

	for _, opt := range opts {
		opt(o)
	}

	o.pool = tasks.NewPool(o.tasks, o, logger, tasks.PoolConfig{
		Workers:            cfg.Workflow.WorkerCount,
		PollInterval:       time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		ErrorRetryInterval: time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		HeartbeatInterval:  time.Duration(cfg.Workflow.HeartbeatInterval) * time.Second,
		HeartbeatTimeout:   time.Duration(cfg.Workflow.HeartbeatTimeout) * time.Second,
	})
	return o, nil
}

// Start launches the worker pool.
func (o *Orchestrator) Start(ctx context.Context) error {
	return o.pool.Start(ctx)
}

// Stop drains the worker pool and blocks until in-flight tasks settle.
func (o *Orchestrator) Stop() {
	o.pool.Stop()
}

// Health reports readiness of every registered stage handler.
func (o *Orchestrator) Health(ctx context.Context) []stage.Health {
	names := []string{
		StageDownload,
		StageExtraction,
		StageThumbnail,
		StageTranscription,
		StageAnalysis,
		StageSegmentation,
	}
	checks := make([]stage.Health, 0, len(names))
	for _, name := range names {
		handler, ok := o.handlers[name]
		if !ok {
			checks = append(checks, stage.Unhealthy(name, "no handler registered"))
			continue
		}
		checks = append(checks, handler.HealthCheck(ctx))
	}
	return checks
}

// HandleTask processes one claimed task end to end. It always finalizes the
// task row before returning.
func (o *Orchestrator) HandleTask(ctx context.Context, task *tasks.Task) {
	ctx = services.WithVideoID(ctx, task.VideoID)
	ctx = services.WithRunID(ctx, task.RunID)
	ctx = services.WithStage(ctx, task.Stage)
	log := logging.WithContext(ctx, o.logger)

	def, ok := stageDefs[task.Stage]
	if !ok {
		log.Error("unknown stage on task", logging.String("task_stage", task.Stage))
		o.finalize(ctx, log, o.tasks.Cancel(ctx, task.ID, "unknown stage "+task.Stage))
		return
	}

	video, err := o.store.RequireVideo(ctx, task.VideoID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			log.Warn("video removed, cancelling task", logging.Error(err))
			o.finalize(ctx, log, o.tasks.Cancel(ctx, task.ID, "video missing"))
			return
		}
		// Store hiccup: give the row back to the queue untouched.
		log.Error("load video", logging.Error(err))
		o.finalize(ctx, log, o.tasks.Requeue(ctx, task.ID, task.Attempt, o.now().Add(o.errorRetryInterval()), err.Error()))
		return
	}

	if err := o.store.MarkRunRunning(ctx, task.RunID); err != nil {
		log.Warn("mark run running", logging.Error(err))
	}

	if def.state != "" && video.State != def.state {
		if err := o.store.TransitionState(ctx, video.ID, def.state); err != nil {
			o.handleFailure(ctx, log, def, task, video, err, 0)
			return
		}
		video.State = def.state
	}

	artifact, err := stage.DecodeArtifact(task.PayloadJSON)
	if err != nil {
		o.handleFailure(ctx, log, def, task, video,
			services.Wrap(services.ErrValidation, task.Stage, "decode-payload", "task payload is not valid JSON", err), 0)
		return
	}

	handler, ok := o.handlers[task.Stage]
	if !ok {
		o.handleFailure(ctx, log, def, task, video,
			services.Wrap(services.ErrConfiguration, task.Stage, "route", "no handler registered", nil), 0)
		return
	}

	o.logStage(ctx, video.ID, task.Stage, records.OutcomeStarted,
		fmt.Sprintf("attempt %d", task.Attempt), "", 0)
	log.Info("stage started", logging.Int(logging.FieldAttempt, task.Attempt))

	started := o.now()
	err = handler.Prepare(ctx, video)
	var produced *stage.Artifact
	if err == nil {
		produced, err = handler.Execute(ctx, video, artifact)
	}
	elapsedMS := time.Since(started).Milliseconds()

	switch {
	case err == nil:
		o.handleSuccess(ctx, log, def, task, video, produced, elapsedMS)
	case ctx.Err() != nil:
		// The context died mid-stage; detach so the bookkeeping writes
		// still land before shutdown.
		background := context.WithoutCancel(ctx)
		o.logStage(background, video.ID, task.Stage, records.OutcomeCancelled, "shutdown interrupted stage", "", elapsedMS)
		log.Warn("stage cancelled, requeueing")
		o.finalize(background, log, o.tasks.Requeue(background, task.ID, task.Attempt, o.now(), "interrupted by shutdown"))
	default:
		o.handleFailure(ctx, log, def, task, video, err, elapsedMS)
	}
}

func (o *Orchestrator) handleSuccess(ctx context.Context, log *slog.Logger, def stageDef, task *tasks.Task, video *records.Video, produced *stage.Artifact, elapsedMS int64) {
	o.logStage(ctx, video.ID, task.Stage, records.OutcomeCompleted, "", "", elapsedMS)
	log.Info("stage completed", logging.Int64("duration_ms", elapsedMS))

	payload, err := stage.EncodeArtifact(produced)
	if err != nil {
		log.Error("encode artifact", logging.Error(err))
		payload = ""
	}

	// Completion and fan-out commit together; a crash between the two
	// writes would otherwise leave a succeeded task with no continuation
	// and nothing for the stale-task reclaimer to revive.
	successors := make([]tasks.Spec, 0, len(def.successors))
	for _, successor := range def.successors {
		successors = append(successors, tasks.Spec{
			RunID:       task.RunID,
			VideoID:     video.ID,
			Stage:       successor,
			Attempt:     1,
			RunAfter:    o.now(),
			PayloadJSON: payload,
		})
	}
	o.finalize(ctx, log, o.tasks.CompleteAndEnqueue(ctx, task.ID, successors))

	if task.Stage == StageThumbnail {
		thumbPath := ""
		if produced != nil {
			thumbPath = produced.ThumbnailPath
		}
		if _, err := o.store.SettleThumbnail(ctx, video.ID, records.ThumbnailSucceeded, thumbPath); err != nil {
			log.Error("settle thumbnail", logging.Error(err))
		}
	}
	if def.joinsAfter {
		o.tryJoin(ctx, log, task.RunID, video.ID, payload)
	}
	if task.Stage == StageSegmentation {
		o.finishRun(ctx, log, task.RunID, video)
	}
}

func (o *Orchestrator) handleFailure(ctx context.Context, log *slog.Logger, def stageDef, task *tasks.Task, video *records.Video, err error, elapsedMS int64) {
	// Every failed attempt leaves an audit entry, including the ones that
	// die before the handler runs (bad payload, refused transition).
	o.logStage(ctx, video.ID, task.Stage, records.OutcomeError, "stage failed", err.Error(), elapsedMS)

	policy := def.retry(o.cfg)
	if services.Retryable(err) && task.Attempt < policy.MaxAttempts {
		delay := time.Duration(policy.BaseDelaySeconds*task.Attempt) * time.Second
		log.Warn("stage failed, scheduling retry",
			logging.Int(logging.FieldAttempt, task.Attempt),
			logging.Duration("delay", delay),
			logging.Error(err))
		o.finalize(ctx, log, o.tasks.Requeue(ctx, task.ID, task.Attempt+1, o.now().Add(delay), err.Error()))
		return
	}

	o.finalize(ctx, log, o.tasks.Fail(ctx, task.ID, err.Error()))

	if task.Stage == StageThumbnail {
		// A missing thumbnail never sinks the run; mark the branch
		// settled so the join barrier can release.
		log.Warn("thumbnail branch failed, continuing without preview", logging.Error(err))
		if _, settleErr := o.store.SettleThumbnail(ctx, video.ID, records.ThumbnailFailed, ""); settleErr != nil {
			log.Error("settle thumbnail", logging.Error(settleErr))
		}
		o.tryJoin(ctx, log, task.RunID, video.ID, task.PayloadJSON)
		return
	}

	details := services.Details(err)
	log.Error("stage failed permanently",
		logging.Int(logging.FieldAttempt, task.Attempt),
		logging.String("kind", details.Kind),
		logging.String("operation", details.Operation),
		logging.String("hint", details.Hint),
		logging.Error(err))
	if markErr := o.store.MarkError(ctx, video.ID, err.Error()); markErr != nil {
		log.Error("mark video errored", logging.Error(markErr))
	}
	if finishErr := o.store.FinishRun(ctx, task.RunID, records.RunFailed, err.Error()); finishErr != nil {
		log.Error("finish run", logging.Error(finishErr))
	}
	if notifyErr := o.notifier.NotifyError(ctx, err, task.Stage); notifyErr != nil {
		log.Warn("send error notification", logging.Error(notifyErr))
	}
}

// tryJoin releases the segmentation join barrier. Both the analysis chain
// and the thumbnail branch call it after settling; the guarded claim makes
// sure only one of them enqueues the segmentation task.
func (o *Orchestrator) tryJoin(ctx context.Context, log *slog.Logger, runID string, videoID int64, payload string) {
	// The claim and the enqueue commit together. Rolling back on a failed
	// enqueue leaves the video in analyzing so the other branch's settle
	// can release the barrier later.
	tx, err := o.store.DB().BeginTx(ctx, nil)
	if err != nil {
		log.Error("begin join transaction", logging.Error(err))
		return
	}
	defer func() { _ = tx.Rollback() }()

	claimed, err := o.store.ClaimSegmentingTx(ctx, tx, videoID)
	if err != nil {
		log.Error("claim segmenting", logging.Error(err))
		return
	}
	if !claimed {
		return
	}
	spec := tasks.Spec{RunID: runID, VideoID: videoID, Stage: StageSegmentation, Attempt: 1, RunAfter: o.now(), PayloadJSON: payload}
	if err := o.tasks.EnqueueTx(ctx, tx, spec); err != nil {
		log.Error("enqueue segmentation", logging.Error(err))
		return
	}
	if err := tx.Commit(); err != nil {
		log.Error("commit join", logging.Error(err))
	}
}

func (o *Orchestrator) finishRun(ctx context.Context, log *slog.Logger, runID string, video *records.Video) {
	if err := o.store.MarkCompleted(ctx, video.ID); err != nil {
		log.Error("mark video completed", logging.Error(err))
	}
	if err := o.store.FinishRun(ctx, runID, records.RunSucceeded, ""); err != nil {
		log.Error("finish run", logging.Error(err))
	}
	segments, err := o.store.ListSegments(ctx, video.ID)
	if err != nil {
		log.Warn("list segments for notification", logging.Error(err))
	}
	if err := o.notifier.NotifyVideoCompleted(ctx, video.Title, len(segments)); err != nil {
		log.Warn("send completion notification", logging.Error(err))
	}
	log.Info("run finished", logging.Int("segments", len(segments)))
}

func (o *Orchestrator) logStage(ctx context.Context, videoID int64, stageName string, outcome records.Outcome, message, detail string, durationMS int64) {
	entry := &records.StageLogEntry{
		VideoID:     videoID,
		Stage:       stageName,
		Outcome:     outcome,
		Message:     message,
		ErrorDetail: detail,
		DurationMS:  durationMS,
	}
	if err := o.store.AppendStageLog(ctx, entry); err != nil {
		o.logger.Error("append stage log", logging.String(logging.FieldStage, stageName), logging.Error(err))
	}
}

// finalize reports task finalization errors; the row state is the source of
// truth, so a failed update is loud but not fatal.
func (o *Orchestrator) finalize(_ context.Context, log *slog.Logger, err error) {
	if err != nil {
		log.Error("finalize task", logging.Error(err))
	}
}

func (o *Orchestrator) errorRetryInterval() time.Duration {
	interval := time.Duration(o.cfg.Workflow.ErrorRetryInterval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return interval
}
