package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"lectern/internal/cleanup"
	"lectern/internal/config"
	"lectern/internal/logging"
	"lectern/internal/pipeline"
	"lectern/internal/records"
	"lectern/internal/stage"
	"lectern/internal/tasks"
)

// Daemon owns the long-running services and enforces single-instance
// execution through a lock file beside the logs.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *records.Store
	orch    *pipeline.Orchestrator
	sweeper *cleanup.Sweeper
	cleaner *cleanup.Scheduler
	logPath string

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status is a point-in-time snapshot of daemon state.
type Status struct {
	Running     bool
	PID         int
	DBPath      string
	LockPath    string
	VideoCounts map[records.State]int
	TaskCounts  map[tasks.Status]int
	StageHealth []stage.Health
	DiskFreeMB  float64
}

// VideoDetail bundles a video with its stored artifacts for status views.
type VideoDetail struct {
	Video      *records.Video
	Transcript *records.Transcript
	Summary    *records.Summary
	Segments   []*records.Segment
}

// New wires a daemon from already-constructed services.
func New(cfg *config.Config, store *records.Store, logger *slog.Logger, orch *pipeline.Orchestrator, sweeper *cleanup.Sweeper, cleaner *cleanup.Scheduler) (*Daemon, error) {
	if cfg == nil || store == nil || orch == nil {
		return nil, errors.New("daemon requires config, store, and orchestrator")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := filepath.Join(cfg.Paths.LogDir, "lecternd.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		orch:     orch,
		sweeper:  sweeper,
		cleaner:  cleaner,
		logPath:  filepath.Join(cfg.Paths.LogDir, "lectern.log"),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the instance lock and launches the pipeline workers and
// the cleanup schedule.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("ensure lock directory: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another lectern daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.orch.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start pipeline: %w", err)
	}
	if d.cleaner != nil {
		if err := d.cleaner.Start(); err != nil {
			d.logger.Warn("start cleanup schedule", logging.Error(err))
		}
	}
	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop halts background processing and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cleaner != nil {
		d.cleaner.Stop()
	}
	d.orch.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close stops the daemon and closes the store.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// LogPath returns the daemon log file location.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status reports daemon, store, and stage readiness in one snapshot.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:  d.running.Load(),
		PID:      os.Getpid(),
		DBPath:   d.store.Path(),
		LockPath: d.lockPath,
	}
	videoCounts, err := d.store.CountByState(ctx)
	if err != nil {
		d.logger.Warn("count videos", logging.Error(err))
	} else {
		status.VideoCounts = videoCounts
	}
	taskCounts, err := tasks.NewStore(d.store.DB()).CountByStatus(ctx)
	if err != nil {
		d.logger.Warn("count tasks", logging.Error(err))
	} else {
		status.TaskCounts = taskCounts
	}
	status.StageHealth = d.orch.Health(ctx)
	if free, _, err := cleanup.DiskFree(d.cfg.Paths.MediaDir); err != nil {
		d.logger.Warn("read free space", logging.Error(err))
	} else {
		status.DiskFreeMB = float64(free) / (1024 * 1024)
	}
	return status
}

// Submit registers a remote video and starts processing it.
func (d *Daemon) Submit(ctx context.Context, sourceURL string) (*records.Video, *records.Run, error) {
	return d.orch.Submit(ctx, sourceURL)
}

// AddLocal registers an on-disk file and starts processing it.
func (d *Daemon) AddLocal(ctx context.Context, path, title string) (*records.Video, *records.Run, error) {
	return d.orch.AddLocal(ctx, path, title)
}

// Resubmit reruns the full pipeline for a finished video.
func (d *Daemon) Resubmit(ctx context.Context, videoID int64) (*records.Run, error) {
	return d.orch.Resubmit(ctx, videoID)
}

// TriggerAnalysis reruns analysis and segmentation for a video.
func (d *Daemon) TriggerAnalysis(ctx context.Context, videoID int64) (*records.Run, error) {
	return d.orch.TriggerAnalysis(ctx, videoID)
}

// TriggerSegmentation recuts clips from the stored segment plan.
func (d *Daemon) TriggerSegmentation(ctx context.Context, videoID int64) (*records.Run, error) {
	return d.orch.TriggerSegmentation(ctx, videoID)
}

// RunStatus returns a run with its task rows.
func (d *Daemon) RunStatus(ctx context.Context, runID string) (*records.Run, []*tasks.Task, error) {
	return d.orch.RunStatus(ctx, runID)
}

// ListVideos returns videos filtered by optional states.
func (d *Daemon) ListVideos(ctx context.Context, states []records.State) ([]*records.Video, error) {
	return d.store.ListVideos(ctx, states...)
}

// DescribeVideo returns a video together with its stored artifacts.
func (d *Daemon) DescribeVideo(ctx context.Context, videoID int64) (*VideoDetail, error) {
	video, err := d.store.RequireVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}
	detail := &VideoDetail{Video: video}
	if detail.Transcript, err = d.store.GetTranscript(ctx, videoID); err != nil {
		return nil, err
	}
	if detail.Summary, err = d.store.GetSummary(ctx, videoID); err != nil {
		return nil, err
	}
	if detail.Segments, err = d.store.ListSegments(ctx, videoID); err != nil {
		return nil, err
	}
	return detail, nil
}

// RemoveVideo deletes a video record and everything attached to it.
func (d *Daemon) RemoveVideo(ctx context.Context, videoID int64) (bool, error) {
	return d.store.RemoveVideo(ctx, videoID)
}

// RecentLogs returns the newest stage log entries for a video.
func (d *Daemon) RecentLogs(ctx context.Context, videoID int64, limit int) ([]*records.StageLogEntry, error) {
	return d.store.RecentLogs(ctx, videoID, limit)
}

// Clean runs one cleanup sweep immediately.
func (d *Daemon) Clean(ctx context.Context) (cleanup.Result, error) {
	if d.sweeper == nil {
		return cleanup.Result{}, errors.New("cleanup sweeper unavailable")
	}
	return d.sweeper.Sweep(ctx)
}

// TestNotification pushes a test message through the notification channel.
func (d *Daemon) TestNotification(ctx context.Context) error {
	return d.orch.SendTestNotification(ctx)
}
