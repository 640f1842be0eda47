package deduplication

import (
	"context"
	"log/slog"
	"time"
)

// Runner runs one reconciliation pass
type Runner interface {
	RunOnce(ctx context.Context) error
}

// Scheduler runs a reconciliation pass every day at midnight UTC
type Scheduler struct {
	runner     Runner
	runOnStart bool
	logger     *slog.Logger

	now   func() time.Time
	after func(d time.Duration) <-chan time.Time
}

// NewScheduler creates a scheduler. When runOnStart is set the first pass runs
// immediately instead of at the next midnight.
func NewScheduler(runner Runner, runOnStart bool, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		runner:     runner,
		runOnStart: runOnStart,
		logger:     logger.With("component", "scheduler"),
		now:        time.Now,
		after:      time.After,
	}
}

// NextRun returns the first UTC midnight strictly after now
func NextRun(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
}

// Run blocks until ctx is done. Pass failures are logged and the loop
// continues with the next scheduled run.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.runOnStart {
		s.runPass(ctx)
	}

	for {
		now := s.now()
		next := NextRun(now)
		s.logger.Info("next reconciliation pass scheduled", "at", next.Format(time.RFC3339), "in", next.Sub(now).Round(time.Second))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.after(next.Sub(now)):
		}
		s.runPass(ctx)
	}
}

func (s *Scheduler) runPass(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := s.now()
	if err := s.runner.RunOnce(ctx); err != nil {
		s.logger.Error("reconciliation pass failed", "error", err, "duration", s.now().Sub(start))
		return
	}
	s.logger.Info("reconciliation pass complete", "duration", s.now().Sub(start))
}
