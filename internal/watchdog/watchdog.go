// Package watchdog refunds generation tasks that never settled, typically
// because the process running them died mid-call or a refund did not land.
package watchdog

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"bananabot/internal/domain"
	"bananabot/internal/ledger"
	"bananabot/internal/metrics"
)

// DefaultStaleAfter is the age after which a processing task is presumed lost.
const DefaultStaleAfter = 5 * time.Minute

// StaleNotifier is told about each refunded task. Failures are ignored.
type StaleNotifier interface {
	NotifyStaleRefund(ctx context.Context, task domain.Task, balance int64) error
}

// Watchdog sweeps stale tasks.
type Watchdog struct {
	tasks    domain.TaskRepository
	ledger   ledger.Store
	notifier StaleNotifier
	logger   zerolog.Logger
}

// New builds a Watchdog. notifier may be nil.
func New(tasks domain.TaskRepository, store ledger.Store, notifier StaleNotifier, logger zerolog.Logger) *Watchdog {
	return &Watchdog{
		tasks:    tasks,
		ledger:   store,
		notifier: notifier,
		logger:   logger.With().Str("component", "watchdog").Logger(),
	}
}

// Sweep refunds every processing task created before cutoff and retries
// refunds that were claimed but never confirmed. A task is refunded only by
// the caller that moves it to refunding (or claims it there), so concurrent
// sweeps and a late orchestrator never refund twice. A failed refund leaves
// the task refunding for a later sweep. It returns the number of refunded
// tasks and the credits returned.
func (w *Watchdog) Sweep(ctx context.Context, cutoff time.Time) (int, int64, error) {
	stale, err := w.tasks.ListStale(ctx, cutoff)
	if err != nil {
		metrics.SweepsTotal.WithLabelValues("error").Inc()
		return 0, 0, fmt.Errorf("list stale tasks: %w", err)
	}

	var (
		count int
		total int64
	)
	for _, task := range stale {
		if err := ctx.Err(); err != nil {
			metrics.SweepsTotal.WithLabelValues("canceled").Inc()
			return count, total, err
		}
		log := w.logger.With().Str("task_id", task.ID).Int64("user_id", task.UserID).Str("status", string(task.Status)).Logger()

		won, err := w.claim(ctx, task, cutoff)
		if err != nil {
			log.Error().Err(err).Msg("watchdog: claim failed")
			continue
		}
		if !won {
			log.Debug().Msg("watchdog: task settled concurrently")
			continue
		}

		balance, err := w.ledger.Refund(context.WithoutCancel(ctx), task.UserID, task.Cost)
		if err != nil {
			metrics.RefundFailures.WithLabelValues("watchdog").Inc()
			log.Error().Err(err).Int64("amount", task.Cost).Msg("watchdog: refund failed; task stays refunding")
			continue
		}
		if _, err := w.tasks.Transition(context.WithoutCancel(ctx), task.ID, domain.TaskStatusRefunded); err != nil {
			log.Error().Err(err).Int64("amount", task.Cost).Msg("watchdog: refund landed but task not marked refunded")
		}
		count++
		total += task.Cost
		metrics.SweptTasks.Inc()
		metrics.RefundedCredits.WithLabelValues("stale").Add(float64(task.Cost))
		log.Info().
			Int64("amount", task.Cost).
			Dur("age", cutoff.Sub(task.CreatedAt)).
			Msg("watchdog: stale task refunded")

		if w.notifier != nil {
			if err := w.notifier.NotifyStaleRefund(ctx, task, balance); err != nil {
				log.Warn().Err(err).Msg("watchdog: notify failed")
			}
		}
	}

	metrics.SweepsTotal.WithLabelValues("ok").Inc()
	if count > 0 {
		w.logger.Info().Int("count", count).Int64("total", total).Msg("watchdog: sweep finished")
	}
	return count, total, nil
}

func (w *Watchdog) claim(ctx context.Context, task domain.Task, cutoff time.Time) (bool, error) {
	switch task.Status {
	case domain.TaskStatusProcessing:
		return w.tasks.Transition(ctx, task.ID, domain.TaskStatusRefunding)
	case domain.TaskStatusRefunding:
		return w.tasks.ClaimRefund(ctx, task.ID, cutoff)
	}
	return false, nil
}
