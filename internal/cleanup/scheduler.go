package cleanup

import (
	"context"
	"fmt"
	"time"

	"log/slog"

	"github.com/go-co-op/gocron"

	"lectern/internal/config"
	"lectern/internal/logging"
	"lectern/internal/notifications"
)

// Scheduler runs periodic cleanup sweeps in the daemon.
type Scheduler struct {
	cfg       *config.Config
	sweeper   *Sweeper
	notifier  notifications.Service
	logger    *slog.Logger
	scheduler *gocron.Scheduler
}

// NewScheduler wires a sweeper onto a gocron scheduler. The returned
// scheduler does nothing until Start is called, and Start is a no-op when
// cleanup is disabled in configuration.
func NewScheduler(cfg *config.Config, sweeper *Sweeper, notifier notifications.Service, logger *slog.Logger) *Scheduler {
	schedLogger := logger
	if schedLogger != nil {
		schedLogger = schedLogger.With(logging.String(logging.FieldComponent, "cleanup-scheduler"))
	}
	inner := gocron.NewScheduler(time.UTC)
	inner.SingletonModeAll()
	return &Scheduler{
		cfg:       cfg,
		sweeper:   sweeper,
		notifier:  notifier,
		logger:    schedLogger,
		scheduler: inner,
	}
}

// Start registers the sweep job and begins running it asynchronously.
func (s *Scheduler) Start() error {
	if !s.cfg.Cleanup.Enabled {
		if s.logger != nil {
			s.logger.Info("cleanup disabled; scheduler idle")
		}
		return nil
	}
	interval := s.cfg.Cleanup.IntervalHours
	if interval <= 0 {
		interval = 6
	}
	if _, err := s.scheduler.Every(interval).Hours().Do(s.runSweep); err != nil {
		return fmt.Errorf("cleanup: schedule sweep: %w", err)
	}
	s.scheduler.StartAsync()
	if s.logger != nil {
		s.logger.Info("cleanup scheduled", logging.Int("interval_hours", interval))
	}
	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

func (s *Scheduler) runSweep() {
	ctx := context.Background()
	result, err := s.sweeper.Sweep(ctx)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("cleanup sweep failed", logging.Error(err))
		}
		return
	}
	if result.DeletedFiles == 0 {
		return
	}
	if s.notifier != nil {
		if err := s.notifier.NotifyCleanupCompleted(ctx, result.DeletedFiles, result.FreedMB); err != nil && s.logger != nil {
			s.logger.Warn("cleanup notification failed", logging.Error(err))
		}
	}
}
