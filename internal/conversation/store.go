package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Store persists conversation state between events.
type Store interface {
	// Load returns the saved state or a fresh Idle state.
	Load(ctx context.Context, user int64) (*State, error)
	Save(ctx context.Context, state *State) error
	Delete(ctx context.Context, user int64) error
}

// MemoryStore keeps states in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	states map[int64]State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[int64]State)}
}

func (m *MemoryStore) Load(ctx context.Context, user int64) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[user]
	if !ok {
		return NewState(user), nil
	}
	st.InputRefs = append([]string(nil), st.InputRefs...)
	return &st, nil
}

func (m *MemoryStore) Save(ctx context.Context, state *State) error {
	if state == nil {
		return nil
	}
	st := *state
	st.InputRefs = append([]string(nil), state.InputRefs...)
	st.UpdatedAt = time.Now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()
	if st.Current() == StepIdle {
		delete(m.states, st.UserID)
		return nil
	}
	m.states[st.UserID] = st
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, user int64) error {
	m.mu.Lock()
	delete(m.states, user)
	m.mu.Unlock()
	return nil
}

// RedisStore keeps states as JSON values that expire after TTL of
// inactivity.
type RedisStore struct {
	client goredis.Cmdable
	prefix string
	ttl    time.Duration
}

const defaultStateTTL = 24 * time.Hour

// NewRedisStore creates a Redis-backed store under prefix+"conv:". A
// non-positive ttl uses 24h.
func NewRedisStore(client goredis.Cmdable, prefix string, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultStateTTL
	}
	return &RedisStore{client: client, prefix: prefix + "conv:", ttl: ttl}
}

// Key returns the Redis key holding user's state.
func (r *RedisStore) Key(user int64) string {
	return r.prefix + strconv.FormatInt(user, 10)
}

func (r *RedisStore) Load(ctx context.Context, user int64) (*State, error) {
	raw, err := r.client.Get(ctx, r.Key(user)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return NewState(user), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode conversation: %w", err)
	}
	st.UserID = user
	return &st, nil
}

func (r *RedisStore) Save(ctx context.Context, state *State) error {
	if state == nil {
		return nil
	}
	if state.Current() == StepIdle {
		return r.Delete(ctx, state.UserID)
	}
	state.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode conversation: %w", err)
	}
	return r.client.Set(ctx, r.Key(state.UserID), raw, r.ttl).Err()
}

func (r *RedisStore) Delete(ctx context.Context, user int64) error {
	return r.client.Del(ctx, r.Key(user)).Err()
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*RedisStore)(nil)
)
