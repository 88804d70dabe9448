package watchdog

import (
	"context"
	"fmt"
	"time"

	"github.com/mileusna/crontab"
)

const (
	// DefaultIntervalMinutes is the sweep period.
	DefaultIntervalMinutes = 1
	sweepTimeout           = time.Minute
)

// Scheduler runs Sweep on a crontab schedule until its context ends.
type Scheduler struct {
	watchdog   *Watchdog
	ctab       *crontab.Crontab
	interval   int
	staleAfter time.Duration
	now        func() time.Time
}

// NewScheduler sweeps every intervalMinutes for tasks older than staleAfter.
func NewScheduler(w *Watchdog, intervalMinutes int, staleAfter time.Duration) *Scheduler {
	if intervalMinutes <= 0 {
		intervalMinutes = DefaultIntervalMinutes
	}
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Scheduler{
		watchdog:   w,
		ctab:       crontab.New(),
		interval:   intervalMinutes,
		staleAfter: staleAfter,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Expression returns the cron expression of the sweep job.
func (s *Scheduler) Expression() string {
	return fmt.Sprintf("*/%d * * * *", s.interval)
}

// Run sweeps once immediately, then on schedule, and blocks until ctx ends.
func (s *Scheduler) Run(ctx context.Context) error {
	s.sweep(ctx)

	if err := s.ctab.AddJob(s.Expression(), func() { s.sweep(ctx) }); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	s.watchdog.logger.Info().
		Str("schedule", s.Expression()).
		Dur("stale_after", s.staleAfter).
		Msg("watchdog: sweep scheduled")

	<-ctx.Done()
	s.ctab.Shutdown()
	return nil
}

func (s *Scheduler) sweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	jobCtx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()
	if _, _, err := s.watchdog.Sweep(jobCtx, s.now().Add(-s.staleAfter)); err != nil {
		s.watchdog.logger.Error().Err(err).Msg("watchdog: sweep failed")
	}
}
