package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/rickgao/crypto-etl/internal/model"
)

// ErrStopped is returned by RunNow once the scheduler is stopped.
var ErrStopped = errors.New("scheduler stopped")

// Runner executes one pipeline cycle.
type Runner interface {
	Run(ctx context.Context) *model.RunResult
}

// RunnerFunc is a function adapter for Runner.
type RunnerFunc func(ctx context.Context) *model.RunResult

func (f RunnerFunc) Run(ctx context.Context) *model.RunResult {
	return f(ctx)
}

// Config holds scheduler configuration.
type Config struct {
	Interval time.Duration // Time between run starts (default: 5m)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{Interval: 5 * time.Minute}
}

// Stats summarizes the runs so far.
type Stats struct {
	Runs                int64
	Failures            int64
	ConsecutiveFailures int64
	LastRun             *model.RunResult
}

// Scheduler runs a Runner immediately and then on every interval tick.
type Scheduler struct {
	cfg    Config
	runner Runner
	logger *slog.Logger

	active *semaphore.Weighted

	runs        atomic.Int64
	failures    atomic.Int64
	consecutive atomic.Int64
	last        atomic.Pointer[model.RunResult]
	stopped     atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Scheduler.
func New(cfg Config, runner Runner, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	return &Scheduler{
		cfg:    cfg,
		runner: runner,
		logger: logger,
		active: semaphore.NewWeighted(1),
	}
}

// Start begins the schedule. The first run starts right away.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.loop()

	s.logger.Info("scheduler started", "interval", s.cfg.Interval)
	return nil
}

// Stop prevents further runs and waits for an in-flight run to return.
// The in-flight run sees its context cancelled; the loader still finishes
// the sub-batch it is committing.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.stopped.Store(true)
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped", "runs", s.runs.Load(), "failures", s.failures.Load())
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunNow runs the pipeline outside the schedule, waiting for any active run
// to finish first. ctx bounds both the wait and the run; Stop does not wait
// for manual runs.
func (s *Scheduler) RunNow(ctx context.Context) (*model.RunResult, error) {
	if s.stopped.Load() {
		return nil, ErrStopped
	}
	return s.runExclusive(ctx, "manual")
}

// Stats returns run counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Runs:                s.runs.Load(),
		Failures:            s.failures.Load(),
		ConsecutiveFailures: s.consecutive.Load(),
		LastRun:             s.last.Load(),
	}
}

// loop is the main scheduling loop.
func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	// Run immediately on start.
	s.runExclusive(s.ctx, "schedule")

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.runExclusive(s.ctx, "schedule")
		}
	}
}

// runExclusive runs the pipeline while holding the single active-run slot.
func (s *Scheduler) runExclusive(ctx context.Context, trigger string) (*model.RunResult, error) {
	if err := s.active.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.active.Release(1)

	// Stop may have raced with the acquire.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.stopped.Load() {
		return nil, ErrStopped
	}

	res := s.runner.Run(ctx)
	s.record(res, trigger)
	return res, nil
}

func (s *Scheduler) record(res *model.RunResult, trigger string) {
	s.runs.Add(1)
	s.last.Store(res)

	if res.Succeeded() {
		if n := s.consecutive.Swap(0); n > 0 {
			s.logger.Info("pipeline recovered", "after_failures", n, "trigger", trigger)
		}
		return
	}

	s.failures.Add(1)
	n := s.consecutive.Add(1)
	s.logger.Warn("scheduled run failed; retrying at next interval",
		"trigger", trigger,
		"consecutive_failures", n,
		"next_in", s.cfg.Interval,
		"error", res.Err,
	)
}
