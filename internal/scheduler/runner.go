package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"pennywise/internal/recurring"
	"pennywise/pkg/logger"
	"pennywise/pkg/trace"
)

// BatchExecutor runs one pass over the due rules.
type BatchExecutor interface {
	RunDueRules(ctx context.Context, now time.Time) (*recurring.BatchReport, error)
	Now() time.Time
}

// Runner triggers a batch pass on a fixed interval.
type Runner struct {
	executor   BatchExecutor
	interval   time.Duration
	runTimeout time.Duration
	logger     *zap.Logger
}

func NewRunner(executor BatchExecutor, interval, runTimeout time.Duration, logger *zap.Logger) *Runner {
	if runTimeout <= 0 || runTimeout > interval {
		runTimeout = interval
	}
	return &Runner{
		executor:   executor,
		interval:   interval,
		runTimeout: runTimeout,
		logger:     logger,
	}
}

// Run executes a pass immediately, then once per interval, until ctx ends.
// Passes never overlap: a slow pass delays the next tick.
func (r *Runner) Run(ctx context.Context) {
	r.logger.Info("Recurring scheduler started",
		zap.Duration("interval", r.interval),
		zap.Duration("run_timeout", r.runTimeout),
	)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Recurring scheduler stopped")
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single bounded pass and logs its outcome.
func (r *Runner) RunOnce(ctx context.Context) *recurring.BatchReport {
	ctx, cancel := context.WithTimeout(ctx, r.runTimeout)
	defer cancel()
	ctx = trace.WithContext(ctx, trace.NewID())
	log := logger.WithTrace(ctx, r.logger)

	report, err := r.executor.RunDueRules(ctx, r.executor.Now())
	if err != nil {
		log.Error("Recurring batch failed", zap.Error(err))
		return nil
	}
	if report.Failed > 0 || report.AdvanceFailed > 0 {
		log.Warn("Recurring batch finished with failures",
			zap.Int("failed", report.Failed),
			zap.Int("advance_failed", report.AdvanceFailed),
		)
	}
	return report
}
