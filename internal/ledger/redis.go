package ledger

import (
	"context"
	"errors"
	"strconv"

	goredis "github.com/redis/go-redis/v9"
)

// Redis keeps balances as integer keys and bonus claims as a hash field per
// kind. Both keys of a user share a hash tag so scripts stay cluster-safe.
type Redis struct {
	client    goredis.Cmdable
	keyPrefix string
}

// RedisOption configures Redis.
type RedisOption func(*Redis)

// WithKeyPrefix sets the Redis key prefix (default "bananabot:ledger:").
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *Redis) { r.keyPrefix = prefix }
}

// NewRedis creates a Redis-backed ledger.
func NewRedis(client goredis.Cmdable, opts ...RedisOption) *Redis {
	r := &Redis{client: client, keyPrefix: "bananabot:ledger:"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redis) balanceKey(user int64) string {
	return r.keyPrefix + "{" + strconv.FormatInt(user, 10) + "}:balance"
}

func (r *Redis) bonusKey(user int64) string {
	return r.keyPrefix + "{" + strconv.FormatInt(user, 10) + "}:bonus"
}

// reserveScript debits only when the balance covers the amount.
// KEYS[1] = balance key
// ARGV[1] = amount
//
// Returns the new balance, or -1 when the balance is insufficient.
var reserveScript = goredis.NewScript(`
local balance = tonumber(redis.call("GET", KEYS[1]) or "0")
local amount = tonumber(ARGV[1])
if balance < amount then
    return -1
end
return redis.call("DECRBY", KEYS[1], amount)
`)

// adjustScript applies a signed delta with a zero floor.
// KEYS[1] = balance key
// ARGV[1] = delta
var adjustScript = goredis.NewScript(`
local balance = tonumber(redis.call("GET", KEYS[1]) or "0") + tonumber(ARGV[1])
if balance < 0 then
    balance = 0
end
redis.call("SET", KEYS[1], balance)
return balance
`)

// bonusScript credits once per hash field.
// KEYS[1] = balance key
// KEYS[2] = bonus hash key
// ARGV[1] = kind
// ARGV[2] = amount
//
// Returns the new balance, or -1 when already claimed.
var bonusScript = goredis.NewScript(`
if redis.call("HSETNX", KEYS[2], ARGV[1], ARGV[2]) == 0 then
    return -1
end
return redis.call("INCRBY", KEYS[1], tonumber(ARGV[2]))
`)

func (r *Redis) Open(ctx context.Context, user int64, initial int64) (bool, error) {
	return r.client.SetNX(ctx, r.balanceKey(user), max(initial, 0), 0).Result()
}

func (r *Redis) Balance(ctx context.Context, user int64) (int64, error) {
	balance, err := r.client.Get(ctx, r.balanceKey(user)).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	return balance, err
}

func (r *Redis) Reserve(ctx context.Context, user int64, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	res, err := reserveScript.Run(ctx, r.client, []string{r.balanceKey(user)}, amount).Int64()
	if err != nil {
		return err
	}
	if res < 0 {
		return ErrInsufficientBalance
	}
	return nil
}

func (r *Redis) Refund(ctx context.Context, user int64, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	return r.client.IncrBy(ctx, r.balanceKey(user), amount).Result()
}

func (r *Redis) Adjust(ctx context.Context, user int64, delta int64) (int64, error) {
	return adjustScript.Run(ctx, r.client, []string{r.balanceKey(user)}, delta).Int64()
}

func (r *Redis) ClaimBonus(ctx context.Context, user int64, kind BonusKind, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	res, err := bonusScript.Run(ctx, r.client, []string{r.balanceKey(user), r.bonusKey(user)}, string(kind), amount).Int64()
	if err != nil {
		return 0, err
	}
	if res < 0 {
		current, berr := r.Balance(ctx, user)
		if berr != nil {
			return 0, berr
		}
		return current, ErrBonusClaimed
	}
	return res, nil
}

var _ Store = (*Redis)(nil)
