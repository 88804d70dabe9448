package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// UserRepository defines access methods for users.
type UserRepository interface {
	// Create inserts the user unless it already exists and reports whether a
	// new row was written. The stored user is returned either way.
	Create(ctx context.Context, user *User) (*User, bool, error)
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	SetPreferredTier(ctx context.Context, id int64, tier Tier) error
}

// TaskRepository persists in-flight generation tasks.
type TaskRepository interface {
	Open(ctx context.Context, task *Task) error
	// Transition moves a task from to.Source() to to. It reports false when
	// the task no longer holds the source status, so exactly one caller wins
	// each step.
	Transition(ctx context.Context, id string, to TaskStatus) (bool, error)
	// ListStale returns processing tasks created before cutoff and refunding
	// tasks last touched before cutoff, oldest first.
	ListStale(ctx context.Context, cutoff time.Time) ([]Task, error)
	// ClaimRefund takes over a refunding task untouched since cutoff by
	// bumping its update time. Only one caller wins each claim.
	ClaimRefund(ctx context.Context, id string, cutoff time.Time) (bool, error)
	GetByID(ctx context.Context, id string) (*Task, error)
}

// RecordRepository persists generation records.
type RecordRepository interface {
	Save(ctx context.Context, record *GenerationRecord) error
	GetByID(ctx context.Context, id string) (*GenerationRecord, error)
	CountByUser(ctx context.Context, userID int64) (int64, error)
}

// PurchaseRepository persists credit package purchases.
type PurchaseRepository interface {
	Create(ctx context.Context, purchase *Purchase) error
	// MarkPaid flips a pending purchase to paid. It returns
	// ErrDuplicateOperation when the purchase is already paid.
	MarkPaid(ctx context.Context, id string, paidAt time.Time) (*Purchase, error)
	ListByUser(ctx context.Context, userID int64, limit int) ([]Purchase, error)
	TotalPaidByUser(ctx context.Context, userID int64) (decimal.Decimal, error)
}

// StatsRepository aggregates administrative counters.
type StatsRepository interface {
	Summary(ctx context.Context) (*Stats, error)
}
