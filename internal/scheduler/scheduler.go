// Package scheduler drives ingestion cycles and expiry sweeps on fixed intervals.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/johnrirwin/nordicwire/internal/aggregator"
	"github.com/johnrirwin/nordicwire/internal/logging"
	"github.com/johnrirwin/nordicwire/internal/models"
)

// Runner is what the scheduler triggers.
type Runner interface {
	RunCycle(ctx context.Context) (models.CycleReport, error)
	Cleanup(ctx context.Context, now time.Time) (models.CleanupReport, error)
}

type Config struct {
	CycleInterval   time.Duration
	CleanupInterval time.Duration
}

// Scheduler runs a cycle and a cleanup as soon as it starts, then again on
// every tick. A non-positive interval disables that job.
type Scheduler struct {
	runner Runner
	cfg    Config
	logger *logging.Logger
	now    func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(runner Runner, cfg Config, logger *logging.Logger) *Scheduler {
	return &Scheduler{runner: runner, cfg: cfg, logger: logger, now: time.Now}
}

// Start launches the job loops. Calling Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)

	s.logger.Info("Scheduler starting", logging.WithFields(map[string]interface{}{
		"cycle_interval":   s.cfg.CycleInterval.String(),
		"cleanup_interval": s.cfg.CleanupInterval.String(),
	}))

	s.loop(ctx, s.cfg.CycleInterval, s.runCycle)
	s.loop(ctx, s.cfg.CleanupInterval, s.runCleanup)
}

// Stop cancels the loops and waits for an in-flight job to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, job func(context.Context)) {
	if interval <= 0 {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		job(ctx)
		for {
			select {
			case <-ticker.C:
				job(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (s *Scheduler) runCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	report, err := s.runner.RunCycle(ctx)
	switch {
	case errors.Is(err, aggregator.ErrCycleInProgress):
		s.logger.Debug("Scheduled cycle skipped, previous cycle still running")
	case err != nil:
		s.logger.Error("Scheduled cycle failed", logging.WithField("error", err.Error()))
	default:
		s.logger.Debug("Scheduled cycle finished", logging.WithField("summary", report.Summary()))
	}
}

func (s *Scheduler) runCleanup(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	if _, err := s.runner.Cleanup(ctx, s.now()); err != nil {
		s.logger.Error("Scheduled cleanup failed", logging.WithField("error", err.Error()))
	}
}
