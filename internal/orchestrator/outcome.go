package orchestrator

import (
	"bananabot/internal/domain"
	"bananabot/internal/providers/image"
)

// Outcome is the result of one run. It is exactly one of Success,
// ProviderRejected, TransientFailure or InsufficientBalance.
type Outcome interface {
	// Kind is a stable label used in logs and metrics.
	Kind() string
	outcome()
}

// Success carries the produced artifact and the persisted record. Record.ID
// is empty when the record could not be saved, so it cannot be replayed.
type Success struct {
	TaskID   string
	Record   domain.GenerationRecord
	Artifact image.Artifact
}

// ProviderRejected means the provider refused the input or returned nothing.
// Refunded is the amount returned; zero means the refund is pending with
// the watchdog.
type ProviderRejected struct {
	TaskID   string
	Reason   string
	Refunded int64
}

// TransientFailure means the provider call failed or timed out. The request
// may be retried as is. Refunded follows ProviderRejected.
type TransientFailure struct {
	TaskID     string
	Diagnostic string
	Refunded   int64
}

// InsufficientBalance is returned before dispatch. Nothing was charged and no
// task exists.
type InsufficientBalance struct {
	Required int64
	Balance  int64
}

func (Success) Kind() string             { return "success" }
func (ProviderRejected) Kind() string    { return "rejected" }
func (TransientFailure) Kind() string    { return "transient" }
func (InsufficientBalance) Kind() string { return "insufficient_balance" }

func (Success) outcome()             {}
func (ProviderRejected) outcome()    {}
func (TransientFailure) outcome()    {}
func (InsufficientBalance) outcome() {}
