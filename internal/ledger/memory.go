package ledger

import (
	"context"
	"sync"
)

type bonusKey struct {
	user int64
	kind BonusKind
}

// Memory is a process-local ledger guarded by a single mutex.
type Memory struct {
	mu       sync.Mutex
	balances map[int64]int64
	claims   map[bonusKey]struct{}
}

// NewMemory returns an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{
		balances: make(map[int64]int64),
		claims:   make(map[bonusKey]struct{}),
	}
}

func (m *Memory) Open(ctx context.Context, user int64, initial int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.balances[user]; ok {
		return false, nil
	}
	m.balances[user] = max(initial, 0)
	return true, nil
}

func (m *Memory) Balance(ctx context.Context, user int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[user], nil
}

func (m *Memory) Reserve(ctx context.Context, user int64, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balances[user] < amount {
		return ErrInsufficientBalance
	}
	m.balances[user] -= amount
	return nil
}

func (m *Memory) Refund(ctx context.Context, user int64, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[user] += amount
	return m.balances[user], nil
}

func (m *Memory) Adjust(ctx context.Context, user int64, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[user] = max(m.balances[user]+delta, 0)
	return m.balances[user], nil
}

func (m *Memory) ClaimBonus(ctx context.Context, user int64, kind BonusKind, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := bonusKey{user: user, kind: kind}
	if _, ok := m.claims[key]; ok {
		return m.balances[user], ErrBonusClaimed
	}
	m.claims[key] = struct{}{}
	m.balances[user] += amount
	return m.balances[user], nil
}

var _ Store = (*Memory)(nil)
