package tasks

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"lectern/internal/logging"
	"lectern/internal/services"
)

// Handler consumes a claimed task. Implementations finalize the task row
// themselves (complete, requeue, or fail); a handler that returns while the
// task is still running leaves it to the stale reclaimer.
type Handler interface {
	HandleTask(ctx context.Context, task *Task)
}

// PoolConfig carries worker pool timing knobs.
type PoolConfig struct {
	Workers            int
	PollInterval       time.Duration
	ErrorRetryInterval time.Duration
	HeartbeatInterval  time.Duration
	HeartbeatTimeout   time.Duration
}

// Pool claims due tasks with a fixed set of workers and hands them to a
// Handler. One reclaim pass per poll cycle requeues abandoned work.
type Pool struct {
	store   *Store
	handler Handler
	logger  *slog.Logger
	cfg     PoolConfig

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPool constructs a worker pool.
func NewPool(store *Store, handler Handler, logger *slog.Logger, cfg PoolConfig) *Pool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.ErrorRetryInterval <= 0 {
		cfg.ErrorRetryInterval = cfg.PollInterval
	}
	return &Pool{
		store:   store,
		handler: handler,
		logger:  logging.NewComponentLogger(logger, "task-pool"),
		cfg:     cfg,
	}
}

// Start begins background processing.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return errors.New("task pool already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true

	p.wg.Add(p.cfg.Workers)
	for i := 0; i < p.cfg.Workers; i++ {
		go p.runWorker(runCtx, i == 0)
	}
	return nil
}

// Stop terminates background processing and waits for in-flight tasks.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	p.running = false
	p.cancel = nil
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
}

// runWorker is one poll loop. Only the first worker runs the reclaim pass so
// concurrent sweeps do not pile up.
func (p *Pool) runWorker(ctx context.Context, runReclaimer bool) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if runReclaimer && p.cfg.HeartbeatTimeout > 0 {
			cutoff := time.Now().Add(-p.cfg.HeartbeatTimeout)
			if reclaimed, err := p.store.ReclaimStale(ctx, cutoff); err != nil {
				p.logger.Warn("reclaim stale tasks failed; stuck tasks may remain",
					logging.Error(err),
					logging.String(logging.FieldEventType, "task_reclaim_failed"),
					logging.String(logging.FieldErrorHint, "check task database access"),
				)
			} else if reclaimed > 0 {
				p.logger.Info("reclaimed stale tasks", logging.Int64("count", reclaimed))
			}
		}

		task, err := p.store.ClaimNextDue(ctx, time.Now())
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			p.logger.Error("failed to claim next task",
				logging.Error(err),
				logging.String(logging.FieldEventType, "task_claim_failed"),
				logging.String(logging.FieldErrorHint, "check task database access"),
			)
			p.sleep(ctx, p.cfg.ErrorRetryInterval)
			continue
		}
		if task == nil {
			p.sleep(ctx, p.cfg.PollInterval)
			continue
		}

		p.processTask(ctx, task)
	}
}

func (p *Pool) processTask(ctx context.Context, task *Task) {
	taskCtx := services.WithVideoID(ctx, task.VideoID)
	taskCtx = services.WithRunID(taskCtx, task.RunID)
	taskCtx = services.WithStage(taskCtx, task.Stage)

	heartbeatCtx, stopHeartbeat := context.WithCancel(taskCtx)
	var hbWG sync.WaitGroup
	if p.cfg.HeartbeatInterval > 0 {
		hbWG.Add(1)
		go p.heartbeatLoop(heartbeatCtx, &hbWG, task.ID)
	}

	p.handler.HandleTask(taskCtx, task)

	stopHeartbeat()
	hbWG.Wait()
}

func (p *Pool) heartbeatLoop(ctx context.Context, wg *sync.WaitGroup, taskID int64) {
	defer wg.Done()
	ticker := time.NewTicker(p.cfg.HeartbeatInterval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, p.logger)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.store.Heartbeat(ctx, taskID); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				logger.Warn("task heartbeat update failed", logging.Error(err))
			}
		}
	}
}

func (p *Pool) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
