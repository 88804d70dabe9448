// Package memory holds mutex-guarded in-process repositories used when
// STORE_BACKEND=memory and by service tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bananabot/internal/domain"
)

// Store keeps every repository in one process-local structure.
type Store struct {
	mu        sync.RWMutex
	users     map[int64]domain.User
	tasks     map[string]domain.Task
	records   map[string]domain.GenerationRecord
	purchases map[string]domain.Purchase
	now       func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		users:     make(map[int64]domain.User),
		tasks:     make(map[string]domain.Task),
		records:   make(map[string]domain.GenerationRecord),
		purchases: make(map[string]domain.Purchase),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Users returns the store as a domain.UserRepository.
func (s *Store) Users() *UserRepository { return &UserRepository{s} }

// Tasks returns the store as a domain.TaskRepository.
func (s *Store) Tasks() *TaskRepository { return &TaskRepository{s} }

// Records returns the store as a domain.RecordRepository.
func (s *Store) Records() *RecordRepository { return &RecordRepository{s} }

// Purchases returns the store as a domain.PurchaseRepository.
func (s *Store) Purchases() *PurchaseRepository { return &PurchaseRepository{s} }

// Stats returns the store as a domain.StatsRepository.
func (s *Store) Stats() *StatsRepository { return &StatsRepository{s} }

type UserRepository struct{ s *Store }

func (r *UserRepository) Create(ctx context.Context, user *domain.User) (*domain.User, bool, error) {
	if user == nil || user.ID == 0 {
		return nil, false, domain.ErrInvalidInput
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if existing, ok := r.s.users[user.ID]; ok {
		return &existing, false, nil
	}
	u := *user
	u.Username = strings.TrimPrefix(strings.TrimSpace(u.Username), "@")
	if u.PreferredTier == "" {
		u.PreferredTier = domain.TierStandard
	}
	u.CreatedAt = r.s.now()
	u.UpdatedAt = u.CreatedAt
	r.s.users[u.ID] = u
	return &u, true, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &u, nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		return nil, domain.ErrNotFound
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users {
		if strings.EqualFold(u.Username, username) {
			return &u, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *UserRepository) SetPreferredTier(ctx context.Context, id int64, tier domain.Tier) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	u.PreferredTier = domain.ParseTier(string(tier))
	u.UpdatedAt = r.s.now()
	r.s.users[id] = u
	return nil
}

type TaskRepository struct{ s *Store }

func (r *TaskRepository) Open(ctx context.Context, task *domain.Task) error {
	if task == nil || task.ID == "" {
		return domain.ErrInvalidInput
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tasks[task.ID]; ok {
		return domain.ErrDuplicateOperation
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = r.s.now()
	}
	task.UpdatedAt = task.CreatedAt
	task.Status = domain.TaskStatusProcessing
	r.s.tasks[task.ID] = *task
	return nil
}

func (r *TaskRepository) Transition(ctx context.Context, id string, to domain.TaskStatus) (bool, error) {
	from, ok := to.Source()
	if !ok {
		return false, domain.ErrInvalidInput
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tasks[id]
	if !ok || t.Status != from {
		return false, nil
	}
	t.Status = to
	t.UpdatedAt = r.s.now()
	r.s.tasks[id] = t
	return true, nil
}

func (r *TaskRepository) ListStale(ctx context.Context, cutoff time.Time) ([]domain.Task, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.Task
	for _, t := range r.s.tasks {
		switch {
		case t.Status == domain.TaskStatusProcessing && t.CreatedAt.Before(cutoff):
			out = append(out, t)
		case t.Status == domain.TaskStatusRefunding && t.UpdatedAt.Before(cutoff):
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *TaskRepository) ClaimRefund(ctx context.Context, id string, cutoff time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tasks[id]
	if !ok || t.Status != domain.TaskStatusRefunding || !t.UpdatedAt.Before(cutoff) {
		return false, nil
	}
	t.UpdatedAt = r.s.now()
	r.s.tasks[id] = t
	return true, nil
}

func (r *TaskRepository) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.tasks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &t, nil
}

type RecordRepository struct{ s *Store }

func (r *RecordRepository) Save(ctx context.Context, record *domain.GenerationRecord) error {
	if record == nil {
		return domain.ErrInvalidInput
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = r.s.now()
	}
	rec := *record
	rec.Params.InputRefs = domain.NormalizeRefs(record.Params.InputRefs)
	r.s.mu.Lock()
	r.s.records[rec.ID] = rec
	r.s.mu.Unlock()
	return nil
}

func (r *RecordRepository) GetByID(ctx context.Context, id string) (*domain.GenerationRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rec, ok := r.s.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	rec.Params.InputRefs = append([]string(nil), rec.Params.InputRefs...)
	return &rec, nil
}

func (r *RecordRepository) CountByUser(ctx context.Context, userID int64) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var n int64
	for _, rec := range r.s.records {
		if rec.UserID == userID {
			n++
		}
	}
	return n, nil
}

type PurchaseRepository struct{ s *Store }

func (r *PurchaseRepository) Create(ctx context.Context, p *domain.Purchase) error {
	if p == nil || p.UserID == 0 || p.Amount <= 0 {
		return domain.ErrInvalidInput
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = r.s.now()
	}
	p.Status = domain.PurchaseStatusPending
	r.s.mu.Lock()
	r.s.purchases[p.ID] = *p
	r.s.mu.Unlock()
	return nil
}

func (r *PurchaseRepository) MarkPaid(ctx context.Context, id string, paidAt time.Time) (*domain.Purchase, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.purchases[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if p.Status == domain.PurchaseStatusPaid {
		return nil, domain.ErrDuplicateOperation
	}
	p.Status = domain.PurchaseStatusPaid
	p.PaidAt = &paidAt
	r.s.purchases[id] = p
	return &p, nil
}

func (r *PurchaseRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]domain.Purchase, error) {
	if limit <= 0 {
		limit = 20
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.Purchase
	for _, p := range r.s.purchases {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *PurchaseRepository) TotalPaidByUser(ctx context.Context, userID int64) (decimal.Decimal, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	total := decimal.Zero
	for _, p := range r.s.purchases {
		if p.UserID == userID && p.Status == domain.PurchaseStatusPaid {
			total = total.Add(p.Price)
		}
	}
	return total, nil
}

type StatsRepository struct{ s *Store }

func (r *StatsRepository) Summary(ctx context.Context) (*domain.Stats, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	stats := &domain.Stats{
		Users:       int64(len(r.s.users)),
		Generations: int64(len(r.s.records)),
		Revenue:     decimal.Zero,
	}
	for _, p := range r.s.purchases {
		if p.Status == domain.PurchaseStatusPaid {
			stats.Revenue = stats.Revenue.Add(p.Price)
		}
	}
	return stats, nil
}

var (
	_ domain.UserRepository     = (*UserRepository)(nil)
	_ domain.TaskRepository     = (*TaskRepository)(nil)
	_ domain.RecordRepository   = (*RecordRepository)(nil)
	_ domain.PurchaseRepository = (*PurchaseRepository)(nil)
	_ domain.StatsRepository    = (*StatsRepository)(nil)
)
