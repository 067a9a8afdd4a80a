package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrementScript adds ARGV[1] and opens the window on first write.
// A key without a TTL (left over from a failed PEXPIRE) is given one.
var incrementScript = redis.NewScript(`
local n = redis.call('INCRBY', KEYS[1], ARGV[1])
if n == tonumber(ARGV[1]) or redis.call('PTTL', KEYS[1]) < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return n
`)

// acquireScript charges ARGV[1] only if the result stays within ARGV[3].
var acquireScript = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
if cur + tonumber(ARGV[1]) > tonumber(ARGV[3]) then
	return 0
end
local n = redis.call('INCRBY', KEYS[1], ARGV[1])
if n == tonumber(ARGV[1]) or redis.call('PTTL', KEYS[1]) < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 1
`)

// releaseScript subtracts at most the current count. DECRBY keeps the TTL.
var releaseScript = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
local d = math.min(cur, tonumber(ARGV[1]))
if d > 0 then
	return redis.call('DECRBY', KEYS[1], d)
end
return cur
`)

// Redis is a Limiter whose counters live in Redis, shared across processes.
// Each client has one integer key whose TTL is the rest of the window.
type Redis struct {
	rdb    redis.Cmdable
	limits Limits
	keyFn  func(client string) string
}

// NewRedis creates a Redis-backed limiter. keyFn maps a client name to its
// counter key; nil uses "ratelimit:<client>".
func NewRedis(rdb redis.Cmdable, limits Limits, keyFn func(client string) string) *Redis {
	if keyFn == nil {
		keyFn = func(client string) string { return "ratelimit:" + client }
	}
	return &Redis{rdb: rdb, limits: limits, keyFn: keyFn}
}

func (r *Redis) count(ctx context.Context, client string) (int, error) {
	n, err := r.rdb.Get(ctx, r.keyFn(client)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read counter for %s: %w", client, err)
	}
	return n, nil
}

func (r *Redis) Allow(ctx context.Context, client string) (bool, error) {
	if client == "" {
		return false, ErrEmptyClient
	}
	n, err := r.count(ctx, client)
	if err != nil {
		return false, err
	}
	return n < r.limits.For(client).MaxAttempts, nil
}

func (r *Redis) Increment(ctx context.Context, client string, amount int) (int, error) {
	if err := checkArgs(client, amount); err != nil {
		return 0, err
	}
	lim := r.limits.For(client)
	n, err := incrementScript.Run(ctx, r.rdb, []string{r.keyFn(client)}, amount, lim.Decay.Milliseconds()).Int()
	if err != nil {
		return 0, fmt.Errorf("increment counter for %s: %w", client, err)
	}
	return n, nil
}

func (r *Redis) Acquire(ctx context.Context, client string, amount int) (bool, error) {
	if err := checkArgs(client, amount); err != nil {
		return false, err
	}
	lim := r.limits.For(client)
	ok, err := acquireScript.Run(ctx, r.rdb, []string{r.keyFn(client)}, amount, lim.Decay.Milliseconds(), lim.MaxAttempts).Int()
	if err != nil {
		return false, fmt.Errorf("acquire for %s: %w", client, err)
	}
	return ok == 1, nil
}

func (r *Redis) Release(ctx context.Context, client string, amount int) error {
	if err := checkArgs(client, amount); err != nil {
		return err
	}
	if err := releaseScript.Run(ctx, r.rdb, []string{r.keyFn(client)}, amount).Err(); err != nil {
		return fmt.Errorf("release for %s: %w", client, err)
	}
	return nil
}

func (r *Redis) Remaining(ctx context.Context, client string) (int, error) {
	if client == "" {
		return 0, ErrEmptyClient
	}
	n, err := r.count(ctx, client)
	if err != nil {
		return 0, err
	}
	return max(r.limits.For(client).MaxAttempts-n, 0), nil
}

func (r *Redis) AvailableIn(ctx context.Context, client string) (time.Duration, error) {
	if client == "" {
		return 0, ErrEmptyClient
	}
	ttl, err := r.rdb.PTTL(ctx, r.keyFn(client)).Result()
	if err != nil {
		return 0, fmt.Errorf("read window for %s: %w", client, err)
	}
	// -2 (missing) and -1 (no expiry) both mean no open window
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

func (r *Redis) Clear(ctx context.Context, client string) error {
	if err := r.rdb.Del(ctx, r.keyFn(client)).Err(); err != nil {
		return fmt.Errorf("clear counter for %s: %w", client, err)
	}
	return nil
}

var _ Limiter = (*Redis)(nil)
