package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"stock_sim/internal/domain"
)

// Sweeper runs one sweep.
type Sweeper interface {
	RunSweep(ctx context.Context, force bool) (*SweepReport, error)
}

// Scheduler triggers a sweep every interval until its context ends. Ticks never overlap:
// a slow sweep delays the next one.
type Scheduler struct {
	sweeper  Sweeper
	interval time.Duration
	logger   *slog.Logger

	// OnReport, when set, receives every completed report.
	OnReport func(*SweepReport)
}

// NewScheduler creates a scheduler.
func NewScheduler(sweeper Sweeper, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{sweeper: sweeper, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("Sweep scheduler started", slog.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Sweep scheduler stopping...")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs one sweep. A panic is logged and the scheduler keeps going; the failed tick
// is retried wholesale on the next interval.
func (s *Scheduler) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Sweep panic recovered", slog.Any("panic", r))
		}
	}()

	report, err := s.sweeper.RunSweep(ctx, false)
	switch {
	case errors.Is(err, domain.ErrMarketClosed):
		s.logger.Debug("Market closed, sweep skipped")
	case errors.Is(err, context.Canceled):
	case domain.IsRetriable(err):
		s.logger.Warn("Sweep aborted, retrying next tick", slog.Any("error", err))
	case err != nil:
		s.logger.Error("Sweep failed", slog.Any("error", err))
	default:
		if s.OnReport != nil {
			s.OnReport(report)
		}
	}
}
