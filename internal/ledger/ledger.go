// Package ledger owns per-user credit balances. Every backend reserves
// atomically: a reservation either debits the full amount or leaves the
// balance untouched, and no balance ever drops below zero.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"bananabot/internal/metrics"
)

var (
	// ErrInsufficientBalance is returned by Reserve when the balance does not
	// cover the amount. The balance is unchanged.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrBonusClaimed is returned when the (user, kind) bonus was already paid.
	ErrBonusClaimed = errors.New("bonus already claimed")
	// ErrInvalidAmount rejects non-positive reserve, refund and bonus amounts.
	ErrInvalidAmount = errors.New("amount must be positive")
)

// BonusKind names a one-time credit grant.
type BonusKind string

const (
	BonusWelcome      BonusKind = "welcome"
	BonusSubscription BonusKind = "subscription"
	BonusChannel      BonusKind = "channel"
	BonusChat         BonusKind = "chat"
	BonusReferral     BonusKind = "referral"
)

// ParseBonusKind validates a bonus kind.
func ParseBonusKind(v string) (BonusKind, error) {
	switch k := BonusKind(v); k {
	case BonusWelcome, BonusSubscription, BonusChannel, BonusChat, BonusReferral:
		return k, nil
	}
	return "", fmt.Errorf("unknown bonus kind %q", v)
}

// Store is the credit ledger contract shared by all backends.
type Store interface {
	// Open grants initial credits on first contact and reports whether the
	// account was created. Existing balances are untouched.
	Open(ctx context.Context, user int64, initial int64) (bool, error)
	Balance(ctx context.Context, user int64) (int64, error)
	// Reserve debits amount when the balance covers it.
	Reserve(ctx context.Context, user int64, amount int64) error
	// Refund unconditionally credits amount back.
	Refund(ctx context.Context, user int64, amount int64) (int64, error)
	// Adjust applies a signed delta with a floor of zero.
	Adjust(ctx context.Context, user int64, delta int64) (int64, error)
	// ClaimBonus credits amount once per (user, kind).
	ClaimBonus(ctx context.Context, user int64, kind BonusKind, amount int64) (int64, error)
}

// Instrumented decorates a Store with metrics and structured logs.
type Instrumented struct {
	next   Store
	logger zerolog.Logger
}

// NewInstrumented wraps next.
func NewInstrumented(next Store, logger zerolog.Logger) *Instrumented {
	return &Instrumented{next: next, logger: logger.With().Str("component", "ledger").Logger()}
}

func (l *Instrumented) Open(ctx context.Context, user int64, initial int64) (bool, error) {
	created, err := l.next.Open(ctx, user, initial)
	metrics.LedgerOperations.WithLabelValues("open", metrics.Result(err)).Inc()
	if err != nil {
		l.logger.Error().Err(err).Int64("user_id", user).Msg("ledger: open failed")
	} else if created {
		l.logger.Info().Int64("user_id", user).Int64("initial", initial).Msg("ledger: account opened")
	}
	return created, err
}

func (l *Instrumented) Balance(ctx context.Context, user int64) (int64, error) {
	return l.next.Balance(ctx, user)
}

func (l *Instrumented) Reserve(ctx context.Context, user int64, amount int64) error {
	err := l.next.Reserve(ctx, user, amount)
	switch {
	case err == nil:
		metrics.LedgerOperations.WithLabelValues("reserve", "ok").Inc()
		l.logger.Debug().Int64("user_id", user).Int64("amount", amount).Msg("ledger: reserved")
	case errors.Is(err, ErrInsufficientBalance):
		metrics.LedgerOperations.WithLabelValues("reserve", "insufficient").Inc()
	default:
		metrics.LedgerOperations.WithLabelValues("reserve", "error").Inc()
		l.logger.Error().Err(err).Int64("user_id", user).Int64("amount", amount).Msg("ledger: reserve failed")
	}
	return err
}

func (l *Instrumented) Refund(ctx context.Context, user int64, amount int64) (int64, error) {
	balance, err := l.next.Refund(ctx, user, amount)
	metrics.LedgerOperations.WithLabelValues("refund", metrics.Result(err)).Inc()
	if err != nil {
		l.logger.Error().Err(err).Int64("user_id", user).Int64("amount", amount).Msg("ledger: refund failed")
		return balance, err
	}
	l.logger.Info().Int64("user_id", user).Int64("amount", amount).Int64("balance", balance).Msg("ledger: refunded")
	return balance, nil
}

func (l *Instrumented) Adjust(ctx context.Context, user int64, delta int64) (int64, error) {
	balance, err := l.next.Adjust(ctx, user, delta)
	metrics.LedgerOperations.WithLabelValues("adjust", metrics.Result(err)).Inc()
	if err != nil {
		l.logger.Error().Err(err).Int64("user_id", user).Int64("delta", delta).Msg("ledger: adjust failed")
		return balance, err
	}
	l.logger.Info().Int64("user_id", user).Int64("delta", delta).Int64("balance", balance).Msg("ledger: adjusted")
	return balance, nil
}

func (l *Instrumented) ClaimBonus(ctx context.Context, user int64, kind BonusKind, amount int64) (int64, error) {
	balance, err := l.next.ClaimBonus(ctx, user, kind, amount)
	switch {
	case err == nil:
		metrics.LedgerOperations.WithLabelValues("bonus", "ok").Inc()
		l.logger.Info().Int64("user_id", user).Str("kind", string(kind)).Int64("amount", amount).Msg("ledger: bonus granted")
	case errors.Is(err, ErrBonusClaimed):
		metrics.LedgerOperations.WithLabelValues("bonus", "duplicate").Inc()
	default:
		metrics.LedgerOperations.WithLabelValues("bonus", "error").Inc()
		l.logger.Error().Err(err).Int64("user_id", user).Str("kind", string(kind)).Msg("ledger: bonus failed")
	}
	return balance, err
}

var _ Store = (*Instrumented)(nil)
