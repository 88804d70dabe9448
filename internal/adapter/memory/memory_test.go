package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bananabot/internal/domain"
)

func TestUserCreateIsIdempotent(t *testing.T) {
	users := New().Users()
	ctx := context.Background()

	u, created, err := users.Create(ctx, &domain.User{ID: 1, Username: "@Bob"})
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "Bob", u.Username)
	require.Equal(t, domain.TierStandard, u.PreferredTier)

	_, created, err = users.Create(ctx, &domain.User{ID: 1, Username: "other"})
	require.NoError(t, err)
	require.False(t, created)

	found, err := users.GetByUsername(ctx, "@bob")
	require.NoError(t, err)
	require.Equal(t, int64(1), found.ID)

	require.NoError(t, users.SetPreferredTier(ctx, 1, domain.TierPro))
	found, err = users.GetByID(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, domain.TierPro, found.PreferredTier)

	require.ErrorIs(t, users.SetPreferredTier(ctx, 99, domain.TierPro), domain.ErrNotFound)
}

func TestTaskTransitionHasSingleWinner(t *testing.T) {
	tasks := New().Tasks()
	ctx := context.Background()
	require.NoError(t, tasks.Open(ctx, &domain.Task{ID: "t1", UserID: 1, Cost: 4}))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			to := domain.TaskStatusCompleted
			if i%2 == 0 {
				to = domain.TaskStatusRefunding
			}
			won, err := tasks.Transition(ctx, "t1", to)
			assert.NoError(t, err)
			if won {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()
	require.Equal(t, int32(1), wins.Load())
}

func TestTaskListStaleOrdersOldestFirst(t *testing.T) {
	tasks := New().Tasks()
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, tasks.Open(ctx, &domain.Task{ID: "new", Cost: 1, CreatedAt: now.Add(-6 * time.Minute)}))
	require.NoError(t, tasks.Open(ctx, &domain.Task{ID: "old", Cost: 1, CreatedAt: now.Add(-20 * time.Minute)}))
	require.NoError(t, tasks.Open(ctx, &domain.Task{ID: "fresh", Cost: 1, CreatedAt: now}))
	require.NoError(t, tasks.Open(ctx, &domain.Task{ID: "done", Cost: 1, CreatedAt: now.Add(-time.Hour)}))
	_, err := tasks.Transition(ctx, "done", domain.TaskStatusCompleted)
	require.NoError(t, err)

	stale, err := tasks.ListStale(ctx, now.Add(-5*time.Minute))
	require.NoError(t, err)
	require.Len(t, stale, 2)
	require.Equal(t, "old", stale[0].ID)
	require.Equal(t, "new", stale[1].ID)
}

func TestRefundedRequiresRefundingFirst(t *testing.T) {
	tasks := New().Tasks()
	ctx := context.Background()
	require.NoError(t, tasks.Open(ctx, &domain.Task{ID: "t1", UserID: 1, Cost: 2}))

	won, err := tasks.Transition(ctx, "t1", domain.TaskStatusRefunded)
	require.NoError(t, err)
	require.False(t, won)

	won, err = tasks.Transition(ctx, "t1", domain.TaskStatusRefunding)
	require.NoError(t, err)
	require.True(t, won)
	won, err = tasks.Transition(ctx, "t1", domain.TaskStatusCompleted)
	require.NoError(t, err)
	require.False(t, won)
	won, err = tasks.Transition(ctx, "t1", domain.TaskStatusRefunded)
	require.NoError(t, err)
	require.True(t, won)

	_, err = tasks.Transition(ctx, "t1", domain.TaskStatusProcessing)
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestListStaleIncludesAbandonedRefunds(t *testing.T) {
	store := New()
	tasks := store.Tasks()
	ctx := context.Background()
	now := time.Now().UTC()
	store.now = func() time.Time { return now.Add(-10 * time.Minute) }
	require.NoError(t, tasks.Open(ctx, &domain.Task{ID: "stuck", Cost: 3, CreatedAt: now.Add(-10 * time.Minute)}))
	won, err := tasks.Transition(ctx, "stuck", domain.TaskStatusRefunding)
	require.NoError(t, err)
	require.True(t, won)
	store.now = func() time.Time { return now }

	stale, err := tasks.ListStale(ctx, now.Add(-5*time.Minute))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	require.Equal(t, domain.TaskStatusRefunding, stale[0].Status)

	won, err = tasks.ClaimRefund(ctx, "stuck", now.Add(-5*time.Minute))
	require.NoError(t, err)
	require.True(t, won)
	won, err = tasks.ClaimRefund(ctx, "stuck", now.Add(-5*time.Minute))
	require.NoError(t, err)
	require.False(t, won)

	stale, err = tasks.ListStale(ctx, now.Add(-5*time.Minute))
	require.NoError(t, err)
	require.Empty(t, stale)
}

func TestPurchaseMarkPaidOnce(t *testing.T) {
	store := New()
	ctx := context.Background()
	p := &domain.Purchase{UserID: 1, Package: "mini", Amount: 8, Price: decimal.NewFromInt(79)}
	require.NoError(t, store.Purchases().Create(ctx, p))

	paid, err := store.Purchases().MarkPaid(ctx, p.ID, time.Now())
	require.NoError(t, err)
	require.Equal(t, domain.PurchaseStatusPaid, paid.Status)

	_, err = store.Purchases().MarkPaid(ctx, p.ID, time.Now())
	require.ErrorIs(t, err, domain.ErrDuplicateOperation)

	_, err = store.Purchases().MarkPaid(ctx, "missing", time.Now())
	require.ErrorIs(t, err, domain.ErrNotFound)

	total, err := store.Purchases().TotalPaidByUser(ctx, 1)
	require.NoError(t, err)
	require.True(t, total.Equal(decimal.NewFromInt(79)))

	stats, err := store.Stats().Summary(ctx)
	require.NoError(t, err)
	require.True(t, stats.Revenue.Equal(decimal.NewFromInt(79)))
}

func TestRecordsCountAndCopy(t *testing.T) {
	records := New().Records()
	ctx := context.Background()
	rec := &domain.GenerationRecord{UserID: 3, Params: domain.GenerationParams{Prompt: "x", InputRefs: []string{"a"}}}
	require.NoError(t, records.Save(ctx, rec))
	require.NotEmpty(t, rec.ID)

	got, err := records.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	got.Params.InputRefs[0] = "mutated"

	again, err := records.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, "a", again.Params.InputRefs[0])

	n, err := records.CountByUser(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}
