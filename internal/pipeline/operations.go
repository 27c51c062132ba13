package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"lectern/internal/logging"
	"lectern/internal/records"
	"lectern/internal/services"
	"lectern/internal/tasks"
)

// Submit registers a remote video and starts a run for it. The title is
// filled in by the download stage once the source has been probed.
func (o *Orchestrator) Submit(ctx context.Context, sourceURL string) (*records.Video, *records.Run, error) {
	sourceURL = strings.TrimSpace(sourceURL)
	if sourceURL == "" {
		return nil, nil, services.Wrap(services.ErrValidation, "", "submit", "source URL is required", nil)
	}
	video, err := o.store.NewVideo(ctx, "", sourceURL, records.SourceRemote)
	if err != nil {
		return nil, nil, err
	}
	run, err := o.startRun(ctx, video)
	if err != nil {
		return nil, nil, err
	}
	return video, run, nil
}

// AddLocal registers a video file already on disk and starts a run for it.
// An empty title defaults to the file name.
func (o *Orchestrator) AddLocal(ctx context.Context, path, title string) (*records.Video, *records.Run, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil, services.Wrap(services.ErrValidation, "", "add", "file path is required", nil)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, nil, services.Wrap(services.ErrValidation, "", "add",
			fmt.Sprintf("cannot resolve path %s", path), err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, nil, services.Wrap(services.ErrValidation, "", "add",
			fmt.Sprintf("cannot read %s", absPath), err)
	}
	if info.IsDir() {
		return nil, nil, services.Wrap(services.ErrValidation, "", "add",
			fmt.Sprintf("%s is a directory", absPath), nil)
	}
	if title == "" {
		base := filepath.Base(absPath)
		title = strings.TrimSuffix(base, filepath.Ext(base))
	}
	video, err := o.store.NewVideo(ctx, title, absPath, records.SourceLocal)
	if err != nil {
		return nil, nil, err
	}
	run, err := o.startRun(ctx, video)
	if err != nil {
		return nil, nil, err
	}
	return video, run, nil
}

// Resubmit starts the full pipeline for a pending video, or restarts it for
// a finished or errored one. Videos mid-pipeline are rejected.
func (o *Orchestrator) Resubmit(ctx context.Context, videoID int64) (*records.Run, error) {
	video, err := o.store.RequireVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if video.State != records.StatePending {
		if err := o.store.ResetForResubmit(ctx, videoID); err != nil {
			return nil, err
		}
		video.State = records.StatePending
	}
	return o.startRun(ctx, video)
}

// TriggerAnalysis re-runs summary and segment identification against the
// stored transcript, then flows into segmentation through the usual join.
// The thumbnail branch does not re-run; its previous outcome is carried
// forward so the join barrier can release.
func (o *Orchestrator) TriggerAnalysis(ctx context.Context, videoID int64) (*records.Run, error) {
	video, err := o.store.RequireVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}
	transcript, err := o.store.GetTranscript(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if transcript == nil || strings.TrimSpace(transcript.Content) == "" {
		return nil, services.Wrap(services.ErrValidation, StageAnalysis, "trigger",
			fmt.Sprintf("video %d has no transcript to analyze", videoID), nil)
	}
	return o.startPartialRun(ctx, video, StageAnalysis)
}

// TriggerSegmentation re-cuts clips from the stored segment plan without
// re-running analysis.
func (o *Orchestrator) TriggerSegmentation(ctx context.Context, videoID int64) (*records.Run, error) {
	video, err := o.store.RequireVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}
	segments, err := o.store.ListSegments(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return nil, services.Wrap(services.ErrValidation, StageSegmentation, "trigger",
			fmt.Sprintf("video %d has no segments to cut", videoID), nil)
	}
	return o.startPartialRun(ctx, video, StageSegmentation)
}

// RunStatus returns a run together with its task rows.
func (o *Orchestrator) RunStatus(ctx context.Context, runID string) (*records.Run, []*tasks.Task, error) {
	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	if run == nil {
		return nil, nil, services.Wrap(services.ErrNotFound, "", "run-status",
			fmt.Sprintf("run %s not found", runID), nil)
	}
	taskRows, err := o.tasks.TasksForRun(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	return run, taskRows, nil
}

// SendTestNotification pushes a test message through the configured channel.
func (o *Orchestrator) SendTestNotification(ctx context.Context) error {
	return o.notifier.TestNotification(ctx)
}

// startRun claims the single-flight run slot and enqueues the download
// stage. CreateRun rejects a second active run for the same video.
func (o *Orchestrator) startRun(ctx context.Context, video *records.Video) (*records.Run, error) {
	run, err := o.store.CreateRun(ctx, video.ID)
	if err != nil {
		return nil, err
	}
	if _, err := o.tasks.Enqueue(ctx, run.ID, video.ID, StageDownload, 1, o.now(), ""); err != nil {
		return nil, err
	}
	label := video.Title
	if label == "" {
		label = video.SourceURL
	}
	if notifyErr := o.notifier.NotifyVideoSubmitted(ctx, label); notifyErr != nil {
		o.logger.Warn("send submit notification", logging.Error(notifyErr))
	}
	o.logger.Info("run started",
		logging.Int64(logging.FieldVideoID, video.ID),
		logging.String(logging.FieldRunID, run.ID),
		logging.String(logging.FieldStage, StageDownload))
	return run, nil
}

// startPartialRun starts a run at a mid-pipeline stage. Terminal videos are
// reset first, and the thumbnail branch outcome is restored from the
// existing record so the segmentation join does not stall waiting for a
// branch that will never run.
func (o *Orchestrator) startPartialRun(ctx context.Context, video *records.Video, stageName string) (*records.Run, error) {
	if video.State.IsTerminal() {
		if err := o.store.ResetForResubmit(ctx, video.ID); err != nil {
			return nil, err
		}
		thumbState := records.ThumbnailFailed
		if video.ThumbnailPath != "" {
			thumbState = records.ThumbnailSucceeded
		}
		if _, err := o.store.SettleThumbnail(ctx, video.ID, thumbState, video.ThumbnailPath); err != nil {
			return nil, err
		}
	}
	run, err := o.store.CreateRun(ctx, video.ID)
	if err != nil {
		return nil, err
	}
	if _, err := o.tasks.Enqueue(ctx, run.ID, video.ID, stageName, 1, o.now(), ""); err != nil {
		return nil, err
	}
	o.logger.Info("partial run started",
		logging.Int64(logging.FieldVideoID, video.ID),
		logging.String(logging.FieldRunID, run.ID),
		logging.String(logging.FieldStage, stageName))
	return run, nil
}
