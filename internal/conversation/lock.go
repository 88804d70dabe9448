package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	goredislib "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Locker serializes conversation transitions per user.
type Locker interface {
	Lock(ctx context.Context, user int64) (unlock func(), err error)
}

// LocalLocker is an in-process keyed mutex. Entries are dropped when the
// last holder or waiter releases them.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[int64]*userLock
}

type userLock struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[int64]*userLock)}
}

func (l *LocalLocker) Lock(ctx context.Context, user int64) (func(), error) {
	l.mu.Lock()
	ul, ok := l.locks[user]
	if !ok {
		ul = &userLock{ch: make(chan struct{}, 1)}
		l.locks[user] = ul
	}
	ul.refs++
	l.mu.Unlock()

	select {
	case ul.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(user, ul)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-ul.ch
			l.release(user, ul)
		})
	}, nil
}

func (l *LocalLocker) release(user int64, ul *userLock) {
	l.mu.Lock()
	ul.refs--
	if ul.refs == 0 {
		delete(l.locks, user)
	}
	l.mu.Unlock()
}

// RedisLocker holds a redsync mutex per user so several engine instances
// can share one conversation store.
type RedisLocker struct {
	rs     *redsync.Redsync
	prefix string
	expiry time.Duration
	logger zerolog.Logger
}

// NewRedisLocker builds a redsync-backed locker.
func NewRedisLocker(client *goredislib.Client, prefix string, expiry time.Duration, logger zerolog.Logger) *RedisLocker {
	if expiry <= 0 {
		expiry = 30 * time.Second
	}
	return &RedisLocker{
		rs:     redsync.New(goredis.NewPool(client)),
		prefix: prefix + "lock:conv:",
		expiry: expiry,
		logger: logger.With().Str("component", "conversation_lock").Logger(),
	}
}

// Key returns the name of user's mutex.
func (r *RedisLocker) Key(user int64) string {
	return fmt.Sprintf("%s%d", r.prefix, user)
}

func (r *RedisLocker) Lock(ctx context.Context, user int64) (func(), error) {
	mutex := r.rs.NewMutex(r.Key(user), redsync.WithExpiry(r.expiry), redsync.WithTries(64))
	if err := mutex.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("lock conversation %d: %w", user, err)
	}
	return func() {
		if _, err := mutex.UnlockContext(context.WithoutCancel(ctx)); err != nil {
			r.logger.Error().Err(err).Int64("user_id", user).Msg("conversation_lock: unlock failed")
		}
	}, nil
}

var (
	_ Locker = (*LocalLocker)(nil)
	_ Locker = (*RedisLocker)(nil)
)
