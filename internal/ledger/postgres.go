package ledger

import (
	"context"

	"bananabot/internal/infra"
	"bananabot/internal/sqlinline"
)

// Postgres keeps balances in the credit_balances table. Reservation is one
// conditional UPDATE, so concurrent reservations for a user serialize on the
// row lock and the balance >= amount predicate.
type Postgres struct {
	sql infra.SQLExecutor
}

// NewPostgres returns a ledger over the given executor.
func NewPostgres(sql infra.SQLExecutor) *Postgres {
	return &Postgres{sql: sql}
}

func (p *Postgres) Open(ctx context.Context, user int64, initial int64) (bool, error) {
	tag, err := p.sql.Exec(ctx, sqlinline.QOpenBalance, user, max(initial, 0))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (p *Postgres) Balance(ctx context.Context, user int64) (int64, error) {
	var balance int64
	if err := p.sql.QueryRow(ctx, sqlinline.QSelectBalance, user).Scan(&balance); err != nil {
		if infra.IsNoRows(err) {
			return 0, nil
		}
		return 0, err
	}
	return balance, nil
}

func (p *Postgres) Reserve(ctx context.Context, user int64, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	var balance int64
	if err := p.sql.QueryRow(ctx, sqlinline.QReserveCredits, user, amount).Scan(&balance); err != nil {
		if infra.IsNoRows(err) {
			return ErrInsufficientBalance
		}
		return err
	}
	return nil
}

func (p *Postgres) Refund(ctx context.Context, user int64, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	var balance int64
	if err := p.sql.QueryRow(ctx, sqlinline.QRefundCredits, user, amount).Scan(&balance); err != nil {
		return 0, err
	}
	return balance, nil
}

func (p *Postgres) Adjust(ctx context.Context, user int64, delta int64) (int64, error) {
	var balance int64
	if err := p.sql.QueryRow(ctx, sqlinline.QAdjustCredits, user, delta).Scan(&balance); err != nil {
		return 0, err
	}
	return balance, nil
}

func (p *Postgres) ClaimBonus(ctx context.Context, user int64, kind BonusKind, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	var balance int64
	if err := p.sql.QueryRow(ctx, sqlinline.QClaimBonus, user, string(kind), amount).Scan(&balance); err != nil {
		if infra.IsNoRows(err) {
			current, berr := p.Balance(ctx, user)
			if berr != nil {
				return 0, berr
			}
			return current, ErrBonusClaimed
		}
		return 0, err
	}
	return balance, nil
}

var _ Store = (*Postgres)(nil)
