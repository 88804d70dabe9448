package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PurchaseStatus enumerates the purchase lifecycle.
type PurchaseStatus string

const (
	PurchaseStatusPending PurchaseStatus = "pending"
	PurchaseStatusPaid    PurchaseStatus = "paid"
)

// Purchase records a credit package order. Amount is credited once, when the
// purchase moves to paid.
type Purchase struct {
	ID        string
	UserID    int64
	Package   string
	Amount    int64
	Price     decimal.Decimal
	Status    PurchaseStatus
	CreatedAt time.Time
	PaidAt    *time.Time
}

// Stats summarizes bot activity for administrators.
type Stats struct {
	Users       int64
	Generations int64
	Revenue     decimal.Decimal
}
