package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"bananabot/internal/domain"
	"bananabot/internal/infra"
	"bananabot/internal/sqlinline"
)

// PurchaseRepositoryPG implements domain.PurchaseRepository.
type PurchaseRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewPurchaseRepository creates a new purchase repository.
func NewPurchaseRepository(sql infra.SQLExecutor) *PurchaseRepositoryPG {
	return &PurchaseRepositoryPG{sql: sql}
}

// Create inserts a pending purchase.
func (r *PurchaseRepositoryPG) Create(ctx context.Context, p *domain.Purchase) error {
	if p == nil || p.UserID == 0 || p.Amount <= 0 {
		return domain.ErrInvalidInput
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	p.Status = domain.PurchaseStatusPending
	_, err := r.sql.Exec(ctx, sqlinline.QInsertPurchase, p.ID, p.UserID, p.Package, p.Amount, p.Price.String(), p.CreatedAt)
	return err
}

// MarkPaid transitions a pending purchase to paid exactly once.
func (r *PurchaseRepositoryPG) MarkPaid(ctx context.Context, id string, paidAt time.Time) (*domain.Purchase, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	p, err := scanPurchase(r.sql.QueryRow(ctx, sqlinline.QMarkPurchasePaid, id, paidAt))
	if err == nil {
		return p, nil
	}
	if !infra.IsNoRows(err) {
		return nil, err
	}

	var status string
	if err := r.sql.QueryRow(ctx, sqlinline.QSelectPurchaseStatus, id).Scan(&status); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return nil, domain.ErrDuplicateOperation
}

// ListByUser returns the newest purchases first.
func (r *PurchaseRepositoryPG) ListByUser(ctx context.Context, userID int64, limit int) ([]domain.Purchase, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.sql.Query(ctx, sqlinline.QListPurchasesByUser, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// TotalPaidByUser sums the price of paid purchases.
func (r *PurchaseRepositoryPG) TotalPaidByUser(ctx context.Context, userID int64) (decimal.Decimal, error) {
	var raw string
	if err := r.sql.QueryRow(ctx, sqlinline.QSumPaidByUser, userID).Scan(&raw); err != nil {
		return decimal.Zero, err
	}
	return parseMoney(raw)
}

func scanPurchase(row pgx.Row) (*domain.Purchase, error) {
	var (
		p      domain.Purchase
		price  string
		status string
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.Package, &p.Amount, &price, &status, &p.CreatedAt, &p.PaidAt); err != nil {
		return nil, err
	}
	amount, err := parseMoney(price)
	if err != nil {
		return nil, err
	}
	p.Price = amount
	p.Status = domain.PurchaseStatus(status)
	return &p, nil
}

func parseMoney(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	return d, nil
}
