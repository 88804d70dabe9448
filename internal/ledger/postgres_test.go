package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"bananabot/internal/sqlinline"
	"bananabot/internal/testutil/pgxstub"
)

func TestPostgresReserveNoRowsIsInsufficient(t *testing.T) {
	l := NewPostgres(&pgxstub.Executor{})
	if err := l.Reserve(context.Background(), 1, 4); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
}

func TestPostgresReserveUsesConditionalUpdate(t *testing.T) {
	exec := &pgxstub.Executor{QueryRowFn: func(query string, args []any) pgx.Row {
		return pgxstub.NewRow(int64(2))
	}}
	if err := NewPostgres(exec).Reserve(context.Background(), 1, 1); err != nil {
		t.Fatalf("Reserve error: %v", err)
	}
	call := exec.LastCall()
	if call.Query != sqlinline.QReserveCredits {
		t.Fatalf("unexpected query %q", call.Marker())
	}
	if call.Args[0] != int64(1) || call.Args[1] != int64(1) {
		t.Fatalf("args = %v", call.Args)
	}
}

func TestPostgresOpenReportsCreation(t *testing.T) {
	exec := &pgxstub.Executor{ExecFn: func(query string, args []any) (pgconn.CommandTag, error) {
		return pgconn.NewCommandTag("INSERT 0 0"), nil
	}}
	created, err := NewPostgres(exec).Open(context.Background(), 1, 3)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if created {
		t.Fatalf("expected existing account")
	}
}

func TestPostgresClaimBonusDuplicate(t *testing.T) {
	exec := &pgxstub.Executor{QueryRowFn: func(query string, args []any) pgx.Row {
		if query == sqlinline.QSelectBalance {
			return pgxstub.NewRow(int64(8))
		}
		return pgxstub.Row{Err: pgx.ErrNoRows}
	}}
	balance, err := NewPostgres(exec).ClaimBonus(context.Background(), 1, BonusSubscription, 5)
	if !errors.Is(err, ErrBonusClaimed) {
		t.Fatalf("err = %v, want ErrBonusClaimed", err)
	}
	if balance != 8 {
		t.Fatalf("balance = %d, want 8", balance)
	}
}

func TestPostgresBalanceMissingIsZero(t *testing.T) {
	balance, err := NewPostgres(&pgxstub.Executor{}).Balance(context.Background(), 1)
	if err != nil || balance != 0 {
		t.Fatalf("balance = %d err = %v", balance, err)
	}
}

func TestPostgresPropagatesDriverErrors(t *testing.T) {
	boom := errors.New("connection reset")
	exec := &pgxstub.Executor{QueryRowFn: func(query string, args []any) pgx.Row {
		return pgxstub.Row{Err: boom}
	}}
	if err := NewPostgres(exec).Reserve(context.Background(), 1, 1); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if _, err := NewPostgres(exec).Adjust(context.Background(), 1, -3); !errors.Is(err, boom) {
		t.Fatalf("adjust err = %v", err)
	}
}
