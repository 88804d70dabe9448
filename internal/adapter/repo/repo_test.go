package repo

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"bananabot/internal/domain"
	"bananabot/internal/sqlinline"
	"bananabot/internal/testutil/pgxstub"
)

func TestUserCreateReportsExisting(t *testing.T) {
	now := time.Now().UTC()
	exec := &pgxstub.Executor{QueryRowFn: func(query string, args []any) pgx.Row {
		return pgxstub.NewRow(int64(42), "alice", "Alice", "en", "pro", int64(0), now, now, false)
	}}
	repo := NewUserRepository(exec)

	u, created, err := repo.Create(context.Background(), &domain.User{ID: 42, Username: "@alice"})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if created {
		t.Fatalf("expected existing user")
	}
	if u.PreferredTier != domain.TierPro {
		t.Fatalf("tier = %q", u.PreferredTier)
	}
	call := exec.LastCall()
	if call.Query != sqlinline.QInsertUser {
		t.Fatalf("unexpected query")
	}
	if call.Args[1] != "alice" {
		t.Fatalf("username arg = %v, want alice without @", call.Args[1])
	}
	if call.Args[4] != "standard" {
		t.Fatalf("tier arg = %v", call.Args[4])
	}
}

func TestUserGetByUsernameNotFound(t *testing.T) {
	repo := NewUserRepository(&pgxstub.Executor{})
	if _, err := repo.GetByUsername(context.Background(), "@ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := repo.GetByUsername(context.Background(), " @ "); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("blank username err = %v", err)
	}
}

func TestTaskTransitionLosingRaceIsNotAnError(t *testing.T) {
	repo := NewTaskRepository(&pgxstub.Executor{})
	won, err := repo.Transition(context.Background(), uuid.NewString(), domain.TaskStatusRefunded)
	if err != nil {
		t.Fatalf("Transition error: %v", err)
	}
	if won {
		t.Fatalf("expected lost transition")
	}
}

func TestTaskTransitionGuardsOnSourceStatus(t *testing.T) {
	exec := &pgxstub.Executor{QueryRowFn: func(query string, args []any) pgx.Row {
		return pgxstub.NewRow("t1")
	}}
	won, err := NewTaskRepository(exec).Transition(context.Background(), "t1", domain.TaskStatusRefunded)
	if err != nil || !won {
		t.Fatalf("Transition = %v, %v", won, err)
	}
	call := exec.LastCall()
	if call.Args[1] != "refunded" || call.Args[2] != "refunding" {
		t.Fatalf("args = %v, want refunded from refunding", call.Args)
	}
}

func TestTaskClaimRefund(t *testing.T) {
	cutoff := time.Now().Add(-5 * time.Minute)
	won, err := NewTaskRepository(&pgxstub.Executor{}).ClaimRefund(context.Background(), "t1", cutoff)
	if err != nil || won {
		t.Fatalf("ClaimRefund on no row = %v, %v", won, err)
	}

	exec := &pgxstub.Executor{QueryRowFn: func(query string, args []any) pgx.Row {
		return pgxstub.NewRow("t1")
	}}
	won, err = NewTaskRepository(exec).ClaimRefund(context.Background(), "t1", cutoff)
	if err != nil || !won {
		t.Fatalf("ClaimRefund = %v, %v", won, err)
	}
	if exec.LastCall().Query != sqlinline.QClaimTaskRefund || exec.LastCall().Args[1] != cutoff {
		t.Fatalf("unexpected call %+v", exec.LastCall())
	}
}

func TestTaskTransitionRejectsNonTerminal(t *testing.T) {
	repo := NewTaskRepository(&pgxstub.Executor{})
	if _, err := repo.Transition(context.Background(), "x", domain.TaskStatusProcessing); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("err = %v", err)
	}
}

func TestTaskListStale(t *testing.T) {
	created := time.Now().Add(-10 * time.Minute)
	exec := &pgxstub.Executor{QueryFn: func(query string, args []any) (pgx.Rows, error) {
		return &pgxstub.Rows{Data: [][]any{
			{"t1", int64(1), int64(4), "processing", created, created},
			{"t2", int64(2), int64(1), "processing", created, created},
		}}, nil
	}}
	tasks, err := NewTaskRepository(exec).ListStale(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("ListStale error: %v", err)
	}
	if len(tasks) != 2 || tasks[0].Cost != 4 || tasks[1].UserID != 2 {
		t.Fatalf("tasks = %+v", tasks)
	}
}

func TestRecordSaveAssignsIDAndEncodesRefs(t *testing.T) {
	exec := &pgxstub.Executor{}
	rec := &domain.GenerationRecord{
		UserID: 9,
		Params: domain.GenerationParams{Prompt: "p", InputRefs: []string{" a ", ""}, Ratio: "1:1", Cost: 1, Tier: domain.TierStandard, Resolution: "1K"},
	}
	if err := NewRecordRepository(exec).Save(context.Background(), rec); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if _, err := uuid.Parse(rec.ID); err != nil {
		t.Fatalf("record id %q is not a uuid", rec.ID)
	}
	refs, ok := exec.LastCall().Args[3].([]byte)
	if !ok || string(refs) != `["a"]` {
		t.Fatalf("refs arg = %v", exec.LastCall().Args[3])
	}
}

func TestRecordGetByIDDecodes(t *testing.T) {
	id := uuid.NewString()
	now := time.Now()
	exec := &pgxstub.Executor{QueryRowFn: func(query string, args []any) pgx.Row {
		return pgxstub.NewRow(id, int64(5), "a cat", []byte(`["u1","u2"]`), "16:9", int64(4), "pro", "2K", "k", "https://x/y.png", now)
	}}
	rec, err := NewRecordRepository(exec).GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if len(rec.Params.InputRefs) != 2 || rec.Params.Tier != domain.TierPro || rec.Params.Resolution != "2K" || rec.Params.Cost != 4 {
		t.Fatalf("record = %+v", rec)
	}
	if _, err := NewRecordRepository(exec).GetByID(context.Background(), "not-a-uuid"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("invalid id err = %v", err)
	}
}

func TestPurchaseMarkPaidAlreadyPaid(t *testing.T) {
	exec := &pgxstub.Executor{QueryRowFn: func(query string, args []any) pgx.Row {
		if query == sqlinline.QSelectPurchaseStatus {
			return pgxstub.NewRow("paid")
		}
		return pgxstub.Row{Err: pgx.ErrNoRows}
	}}
	_, err := NewPurchaseRepository(exec).MarkPaid(context.Background(), uuid.NewString(), time.Now())
	if !errors.Is(err, domain.ErrDuplicateOperation) {
		t.Fatalf("err = %v, want ErrDuplicateOperation", err)
	}
}

func TestPurchaseMarkPaidMissing(t *testing.T) {
	_, err := NewPurchaseRepository(&pgxstub.Executor{}).MarkPaid(context.Background(), uuid.NewString(), time.Now())
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestPurchaseCreateSendsDecimalText(t *testing.T) {
	exec := &pgxstub.Executor{}
	p := &domain.Purchase{UserID: 1, Package: "mini", Amount: 8, Price: decimal.RequireFromString("79")}
	if err := NewPurchaseRepository(exec).Create(context.Background(), p); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if exec.LastCall().Args[4] != "79" {
		t.Fatalf("price arg = %v", exec.LastCall().Args[4])
	}
	if p.Status != domain.PurchaseStatusPending {
		t.Fatalf("status = %q", p.Status)
	}
}

func TestStatsSummary(t *testing.T) {
	exec := &pgxstub.Executor{QueryRowFn: func(query string, args []any) pgx.Row {
		return pgxstub.NewRow(int64(3), int64(10), "457.50")
	}}
	s, err := NewStatsRepository(exec).Summary(context.Background())
	if err != nil {
		t.Fatalf("Summary error: %v", err)
	}
	if s.Users != 3 || s.Generations != 10 || !s.Revenue.Equal(decimal.RequireFromString("457.5")) {
		t.Fatalf("stats = %+v", s)
	}
}

func TestQueriesCarryMarkers(t *testing.T) {
	for _, q := range []string{sqlinline.QInsertUser, sqlinline.QTransitionTask, sqlinline.QInsertRecord, sqlinline.QMarkPurchasePaid, sqlinline.QStatsSummary} {
		if !strings.HasPrefix(q, "--sql ") {
			t.Fatalf("query lacks marker: %q", q[:20])
		}
	}
}
