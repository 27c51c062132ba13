package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"lectern/internal/logging"
	"lectern/internal/records"
	"lectern/internal/services"
	"lectern/internal/stage"
	"lectern/internal/tasks"
	"lectern/internal/testsupport"
)

type fakeHandler struct {
	name    string
	execute func(ctx context.Context, video *records.Video, artifact *stage.Artifact) (*stage.Artifact, error)

	mu    sync.Mutex
	calls int
}

func (h *fakeHandler) Prepare(ctx context.Context, video *records.Video) error { return nil }

func (h *fakeHandler) Execute(ctx context.Context, video *records.Video, artifact *stage.Artifact) (*stage.Artifact, error) {
	h.mu.Lock()
	h.calls++
	h.mu.Unlock()
	if h.execute != nil {
		return h.execute(ctx, video, artifact)
	}
	return artifact, nil
}

func (h *fakeHandler) HealthCheck(ctx context.Context) stage.Health { return stage.Healthy(h.name) }

func (h *fakeHandler) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

type fakeNotifier struct {
	mu        sync.Mutex
	submitted []string
	completed []int
	errStages []string
}

func (f *fakeNotifier) NotifyVideoSubmitted(ctx context.Context, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, title)
	return nil
}

func (f *fakeNotifier) NotifyVideoCompleted(ctx context.Context, title string, segments int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, segments)
	return nil
}

func (f *fakeNotifier) NotifyError(ctx context.Context, err error, contextLabel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errStages = append(f.errStages, contextLabel)
	return nil
}

func (f *fakeNotifier) NotifyCleanupCompleted(ctx context.Context, deleted int, freedMB float64) error {
	return nil
}

func (f *fakeNotifier) TestNotification(ctx context.Context) error { return nil }

type testHarness struct {
	orch     *Orchestrator
	store    *records.Store
	tasks    *tasks.Store
	notifier *fakeNotifier
	handlers map[string]*fakeHandler
	now      time.Time
}

func newHarness(t *testing.T, opts ...Option) *testHarness {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	store := testsupport.MustOpenStore(t, cfg)

	h := &testHarness{
		store:    store,
		tasks:    tasks.NewStore(store.DB()),
		notifier: &fakeNotifier{},
		handlers: make(map[string]*fakeHandler),
		now:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	stageNames := []string{
		StageDownload, StageExtraction, StageThumbnail,
		StageTranscription, StageAnalysis, StageSegmentation,
	}
	allOpts := []Option{
		WithNotifier(h.notifier),
		WithClock(func() time.Time { return h.now }),
	}
	for _, name := range stageNames {
		fh := &fakeHandler{name: name}
		h.handlers[name] = fh
		allOpts = append(allOpts, WithHandler(name, fh))
	}
	allOpts = append(allOpts, opts...)

	orch, err := New(cfg, store, logging.NewNop(), allOpts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.orch = orch
	return h
}

// drain claims and handles due tasks until the queue is empty.
func (h *testHarness) drain(ctx context.Context, t *testing.T) {
	t.Helper()
	for i := 0; i < 50; i++ {
		task, err := h.tasks.ClaimNextDue(ctx, h.now.Add(time.Hour))
		if err != nil {
			t.Fatalf("claim task: %v", err)
		}
		if task == nil {
			return
		}
		h.orch.HandleTask(ctx, task)
	}
	t.Fatal("queue did not drain after 50 tasks")
}

func TestSubmitEnqueuesDownload(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	video, run, err := h.orch.Submit(ctx, "https://example.com/watch?v=abc")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if run.Status != records.RunQueued {
		t.Fatalf("run status = %s, want queued", run.Status)
	}
	rows, err := h.tasks.TasksForRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("TasksForRun: %v", err)
	}
	if len(rows) != 1 || rows[0].Stage != StageDownload {
		t.Fatalf("expected one download task, got %+v", rows)
	}
	if rows[0].VideoID != video.ID {
		t.Fatalf("task video = %d, want %d", rows[0].VideoID, video.ID)
	}
	if len(h.notifier.submitted) != 1 {
		t.Fatalf("expected one submit notification, got %d", len(h.notifier.submitted))
	}
}

func TestSubmitRejectsEmptyURL(t *testing.T) {
	h := newHarness(t)
	if _, _, err := h.orch.Submit(context.Background(), "  "); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestFullRunCompletesThroughJoin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.handlers[StageDownload].execute = func(_ context.Context, _ *records.Video, a *stage.Artifact) (*stage.Artifact, error) {
		out := *a
		out.AssetPath = "/media/videos/lecture.mp4"
		out.DurationSeconds = 900
		return &out, nil
	}
	h.handlers[StageExtraction].execute = func(_ context.Context, _ *records.Video, a *stage.Artifact) (*stage.Artifact, error) {
		out := *a
		out.AudioPath = "/media/audio/audio_1.wav"
		return &out, nil
	}
	h.handlers[StageThumbnail].execute = func(_ context.Context, _ *records.Video, a *stage.Artifact) (*stage.Artifact, error) {
		out := *a
		out.ThumbnailPath = "/media/thumbnails/thumb_1.jpg"
		return &out, nil
	}

	video, run, err := h.orch.Submit(ctx, "https://example.com/watch?v=abc")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	h.drain(ctx, t)

	for name, fh := range h.handlers {
		if fh.callCount() != 1 {
			t.Errorf("stage %s ran %d times, want 1", name, fh.callCount())
		}
	}

	got, err := h.store.RequireVideo(ctx, video.ID)
	if err != nil {
		t.Fatalf("RequireVideo: %v", err)
	}
	if got.State != records.StateCompleted {
		t.Fatalf("video state = %s, want completed", got.State)
	}
	if got.ThumbnailState != records.ThumbnailSucceeded {
		t.Fatalf("thumbnail state = %s, want succeeded", got.ThumbnailState)
	}
	if got.ThumbnailPath != "/media/thumbnails/thumb_1.jpg" {
		t.Fatalf("thumbnail path = %q", got.ThumbnailPath)
	}

	finished, err := h.store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if finished.Status != records.RunSucceeded {
		t.Fatalf("run status = %s, want succeeded", finished.Status)
	}
	if len(h.notifier.completed) != 1 {
		t.Fatalf("expected one completion notification, got %d", len(h.notifier.completed))
	}

	logs, err := h.store.RecentLogs(ctx, video.ID, 50)
	if err != nil {
		t.Fatalf("RecentLogs: %v", err)
	}
	outcomes := map[string]int{}
	for _, entry := range logs {
		if entry.Outcome == records.OutcomeCompleted {
			outcomes[entry.Stage]++
		}
	}
	for _, name := range []string{StageDownload, StageExtraction, StageThumbnail, StageTranscription, StageAnalysis, StageSegmentation} {
		if outcomes[name] != 1 {
			t.Errorf("stage %s has %d completed log entries, want 1", name, outcomes[name])
		}
	}
}

func TestThumbnailFailureDoesNotSinkRun(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.handlers[StageThumbnail].execute = func(_ context.Context, _ *records.Video, _ *stage.Artifact) (*stage.Artifact, error) {
		return nil, services.Wrap(services.ErrValidation, StageThumbnail, "capture", "no video stream", nil)
	}

	video, run, err := h.orch.Submit(ctx, "https://example.com/watch?v=abc")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	h.drain(ctx, t)

	got, err := h.store.RequireVideo(ctx, video.ID)
	if err != nil {
		t.Fatalf("RequireVideo: %v", err)
	}
	if got.State != records.StateCompleted {
		t.Fatalf("video state = %s, want completed despite thumbnail failure", got.State)
	}
	if got.ThumbnailState != records.ThumbnailFailed {
		t.Fatalf("thumbnail state = %s, want failed", got.ThumbnailState)
	}
	finished, err := h.store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if finished.Status != records.RunSucceeded {
		t.Fatalf("run status = %s, want succeeded", finished.Status)
	}
	if h.handlers[StageSegmentation].callCount() != 1 {
		t.Fatalf("segmentation ran %d times, want 1", h.handlers[StageSegmentation].callCount())
	}
}

func TestRetryableFailureRequeuesWithGrowingDelay(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.handlers[StageExtraction].execute = func(_ context.Context, _ *records.Video, _ *stage.Artifact) (*stage.Artifact, error) {
		return nil, services.Wrap(services.ErrExternalTool, StageExtraction, "extract", "ffmpeg crashed", nil)
	}

	video, run, err := h.orch.Submit(ctx, "https://example.com/watch?v=abc")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// Run the download task, then work through the extraction attempts by
	// hand so the scheduled delays are observable.
	task, err := h.tasks.ClaimNextDue(ctx, h.now)
	if err != nil || task == nil || task.Stage != StageDownload {
		t.Fatalf("expected download task, got %+v err %v", task, err)
	}
	h.orch.HandleTask(ctx, task)

	claimExtraction := func() *tasks.Task {
		t.Helper()
		for i := 0; i < 3; i++ {
			claimed, claimErr := h.tasks.ClaimNextDue(ctx, h.now.Add(time.Hour))
			if claimErr != nil {
				t.Fatalf("claim: %v", claimErr)
			}
			if claimed == nil {
				t.Fatal("no due task")
			}
			if claimed.Stage == StageExtraction {
				return claimed
			}
			h.orch.HandleTask(ctx, claimed)
		}
		t.Fatal("extraction task never surfaced")
		return nil
	}

	// Attempt 1 fails: requeued for attempt 2 after base*1 seconds.
	h.orch.HandleTask(ctx, claimExtraction())
	rows, err := h.tasks.TasksForRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("TasksForRun: %v", err)
	}
	var extTask *tasks.Task
	for _, row := range rows {
		if row.Stage == StageExtraction {
			extTask = row
		}
	}
	if extTask == nil || extTask.Status != tasks.StatusQueued || extTask.Attempt != 2 {
		t.Fatalf("after first failure: %+v", extTask)
	}
	wantDelay := 60 * time.Second
	if gotDelay := extTask.RunAfter.Sub(h.now); gotDelay != wantDelay {
		t.Fatalf("first retry delay = %s, want %s", gotDelay, wantDelay)
	}

	// Attempt 2 fails: delay doubles to base*2.
	h.orch.HandleTask(ctx, claimExtraction())
	refreshed, err := h.tasks.GetTask(ctx, extTask.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if refreshed.Attempt != 3 {
		t.Fatalf("attempt = %d, want 3", refreshed.Attempt)
	}
	if gotDelay := refreshed.RunAfter.Sub(h.now); gotDelay != 2*wantDelay {
		t.Fatalf("second retry delay = %s, want %s", gotDelay, 2*wantDelay)
	}

	// Attempt 3 exhausts the policy: task fails, run fails, video errors.
	h.orch.HandleTask(ctx, claimExtraction())
	final, err := h.tasks.GetTask(ctx, extTask.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if final.Status != tasks.StatusFailed {
		t.Fatalf("final task status = %s, want failed", final.Status)
	}
	got, err := h.store.RequireVideo(ctx, video.ID)
	if err != nil {
		t.Fatalf("RequireVideo: %v", err)
	}
	if got.State != records.StateError {
		t.Fatalf("video state = %s, want error", got.State)
	}
	finishedRun, err := h.store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if finishedRun.Status != records.RunFailed {
		t.Fatalf("run status = %s, want failed", finishedRun.Status)
	}
	if len(h.notifier.errStages) != 1 || h.notifier.errStages[0] != StageExtraction {
		t.Fatalf("error notifications = %v", h.notifier.errStages)
	}
}

func TestCancelledStageRequeuesSameAttempt(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.handlers[StageDownload].execute = func(taskCtx context.Context, _ *records.Video, _ *stage.Artifact) (*stage.Artifact, error) {
		cancel()
		return nil, taskCtx.Err()
	}

	_, run, err := h.orch.Submit(context.Background(), "https://example.com/watch?v=abc")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	task, err := h.tasks.ClaimNextDue(context.Background(), h.now)
	if err != nil || task == nil {
		t.Fatalf("claim: %v", err)
	}
	h.orch.HandleTask(ctx, task)

	rows, err := h.tasks.TasksForRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("TasksForRun: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one task, got %d", len(rows))
	}
	if rows[0].Status != tasks.StatusQueued || rows[0].Attempt != 1 {
		t.Fatalf("cancelled task = %+v, want queued attempt 1", rows[0])
	}
}

func TestHandleTaskCancelsWhenVideoMissing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	video, run, err := h.orch.Submit(ctx, "https://example.com/watch?v=abc")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := h.store.RemoveVideo(ctx, video.ID); err != nil {
		t.Fatalf("RemoveVideo: %v", err)
	}

	task, err := h.tasks.ClaimNextDue(ctx, h.now)
	if err != nil || task == nil {
		t.Fatalf("claim: %v", err)
	}
	h.orch.HandleTask(ctx, task)

	rows, err := h.tasks.TasksForRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("TasksForRun: %v", err)
	}
	if rows[0].Status != tasks.StatusCancelled {
		t.Fatalf("task status = %s, want cancelled", rows[0].Status)
	}
}

func TestTriggerAnalysisRequiresTranscript(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	video := testsupport.NewVideo(t, h.store, "Lecture", "https://example.com/v", records.SourceRemote)

	if _, err := h.orch.TriggerAnalysis(ctx, video.ID); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestTriggerAnalysisRerunsIntoSegmentation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// A finished video with a transcript and a stale thumbnail outcome.
	video := testsupport.NewVideo(t, h.store, "Lecture", "https://example.com/v", records.SourceRemote)
	if err := h.store.UpsertTranscript(ctx, &records.Transcript{VideoID: video.ID, Content: "full transcript text"}); err != nil {
		t.Fatalf("UpsertTranscript: %v", err)
	}
	if _, err := h.store.SettleThumbnail(ctx, video.ID, records.ThumbnailSucceeded, "/media/thumb.jpg"); err != nil {
		t.Fatalf("SettleThumbnail: %v", err)
	}
	if err := h.store.MarkCompleted(ctx, video.ID); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}

	run, err := h.orch.TriggerAnalysis(ctx, video.ID)
	if err != nil {
		t.Fatalf("TriggerAnalysis: %v", err)
	}
	h.drain(ctx, t)

	if h.handlers[StageAnalysis].callCount() != 1 {
		t.Fatalf("analysis ran %d times, want 1", h.handlers[StageAnalysis].callCount())
	}
	if h.handlers[StageSegmentation].callCount() != 1 {
		t.Fatalf("segmentation ran %d times, want 1", h.handlers[StageSegmentation].callCount())
	}
	if h.handlers[StageDownload].callCount() != 0 {
		t.Fatal("download should not run on an analysis trigger")
	}

	got, err := h.store.RequireVideo(ctx, video.ID)
	if err != nil {
		t.Fatalf("RequireVideo: %v", err)
	}
	if got.State != records.StateCompleted {
		t.Fatalf("video state = %s, want completed", got.State)
	}
	finished, err := h.store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if finished.Status != records.RunSucceeded {
		t.Fatalf("run status = %s, want succeeded", finished.Status)
	}
}

func TestTriggerRejectedWhileRunActive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	video, _, err := h.orch.Submit(ctx, "https://example.com/watch?v=abc")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := h.store.UpsertTranscript(ctx, &records.Transcript{VideoID: video.ID, Content: "text"}); err != nil {
		t.Fatalf("UpsertTranscript: %v", err)
	}
	if _, err := h.orch.TriggerAnalysis(ctx, video.ID); !errors.Is(err, services.ErrAlreadyRunning) {
		t.Fatalf("expected already-running error, got %v", err)
	}
}

func TestRunStatusReportsTasks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, run, err := h.orch.Submit(ctx, "https://example.com/watch?v=abc")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	got, rows, err := h.orch.RunStatus(ctx, run.ID)
	if err != nil {
		t.Fatalf("RunStatus: %v", err)
	}
	if got.ID != run.ID || len(rows) != 1 {
		t.Fatalf("run %s with %d tasks", got.ID, len(rows))
	}
	if _, _, err := h.orch.RunStatus(ctx, "no-such-run"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestHealthReportsEveryStage(t *testing.T) {
	h := newHarness(t)
	checks := h.orch.Health(context.Background())
	if len(checks) != 6 {
		t.Fatalf("expected 6 health checks, got %d", len(checks))
	}
	for _, check := range checks {
		if !check.Ready {
			t.Errorf("stage %s unhealthy: %s", check.Name, check.Detail)
		}
	}
}

func TestResubmitStartsPendingVideo(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	video, err := h.store.NewVideo(ctx, "Lecture", "https://example.com/watch?v=abc", records.SourceRemote)
	if err != nil {
		t.Fatalf("NewVideo: %v", err)
	}
	run, err := h.orch.Resubmit(ctx, video.ID)
	if err != nil {
		t.Fatalf("Resubmit: %v", err)
	}
	rows, err := h.tasks.TasksForRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("TasksForRun: %v", err)
	}
	if len(rows) != 1 || rows[0].Stage != StageDownload {
		t.Fatalf("expected one download task, got %+v", rows)
	}
}

func TestResubmitRejectsVideoMidPipeline(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	video, err := h.store.NewVideo(ctx, "Lecture", "https://example.com/watch?v=abc", records.SourceRemote)
	if err != nil {
		t.Fatalf("NewVideo: %v", err)
	}
	if err := h.store.TransitionState(ctx, video.ID, records.StateDownloading); err != nil {
		t.Fatalf("TransitionState: %v", err)
	}
	if _, err := h.orch.Resubmit(ctx, video.ID); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRetriedDownloadStillCompletesRun(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var downloadCalls int
	h.handlers[StageDownload].execute = func(_ context.Context, _ *records.Video, a *stage.Artifact) (*stage.Artifact, error) {
		downloadCalls++
		if downloadCalls < 3 {
			return nil, services.Wrap(services.ErrExternalTool, StageDownload, "fetch", "network reset", nil)
		}
		out := *a
		out.AssetPath = "/media/videos/lecture.mp4"
		out.DurationSeconds = 900
		return &out, nil
	}

	video, run, err := h.orch.Submit(ctx, "https://example.com/watch?v=abc")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	h.drain(ctx, t)

	got, err := h.store.RequireVideo(ctx, video.ID)
	if err != nil {
		t.Fatalf("RequireVideo: %v", err)
	}
	if got.State != records.StateCompleted {
		t.Fatalf("video state = %s, want completed after retries", got.State)
	}
	finished, err := h.store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if finished.Status != records.RunSucceeded {
		t.Fatalf("run status = %s, want succeeded", finished.Status)
	}

	logs, err := h.store.RecentLogs(ctx, video.ID, 100)
	if err != nil {
		t.Fatalf("RecentLogs: %v", err)
	}
	var downloadErrors, downloadCompleted int
	for _, entry := range logs {
		if entry.Stage != StageDownload {
			continue
		}
		switch entry.Outcome {
		case records.OutcomeError:
			downloadErrors++
		case records.OutcomeCompleted:
			downloadCompleted++
		}
	}
	if downloadErrors != 2 || downloadCompleted != 1 {
		t.Fatalf("download log = %d errors + %d completed, want 2 + 1", downloadErrors, downloadCompleted)
	}
}

func TestMalformedPayloadLeavesErrorLogEntry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	video, run, err := h.orch.Submit(ctx, "https://example.com/watch?v=abc")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	// Drop the submitted task and plant one whose payload cannot decode,
	// so the failure happens before any handler runs.
	first, err := h.tasks.ClaimNextDue(ctx, h.now)
	if err != nil || first == nil {
		t.Fatalf("claim: %v", err)
	}
	if err := h.tasks.Cancel(ctx, first.ID, "replaced"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	bad, err := h.tasks.Enqueue(ctx, run.ID, video.ID, StageDownload, 1, h.now, "{not json")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	claimed, err := h.tasks.ClaimNextDue(ctx, h.now)
	if err != nil || claimed == nil || claimed.ID != bad.ID {
		t.Fatalf("claim planted task: %v %+v", err, claimed)
	}
	h.orch.HandleTask(ctx, claimed)

	got, err := h.store.RequireVideo(ctx, video.ID)
	if err != nil {
		t.Fatalf("RequireVideo: %v", err)
	}
	if got.State != records.StateError {
		t.Fatalf("video state = %s, want error", got.State)
	}
	logs, err := h.store.RecentLogs(ctx, video.ID, 100)
	if err != nil {
		t.Fatalf("RecentLogs: %v", err)
	}
	var errored int
	for _, entry := range logs {
		if entry.Stage == StageDownload && entry.Outcome == records.OutcomeError {
			errored++
		}
	}
	if errored != 1 {
		t.Fatalf("download error log entries = %d, want 1", errored)
	}
	if h.handlers[StageDownload].callCount() != 0 {
		t.Fatal("handler ran despite undecodable payload")
	}
}
