package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

// Policy is the budget of one limiter instance.
type Policy struct {
	// Points is the number of requests admitted per window.
	Points int
	// Duration is the window length, started by the first request.
	Duration time.Duration
	// BlockDuration, when positive, rejects the key for this long once the
	// budget is exceeded. Zero rejects only until the window ends.
	BlockDuration time.Duration
}

// Validate reports whether p is usable.
func (p Policy) Validate() error {
	if p.Points <= 0 {
		return errors.New("rate policy points must be positive")
	}
	if p.Duration <= 0 {
		return errors.New("rate policy duration must be positive")
	}
	if p.BlockDuration < 0 {
		return errors.New("rate policy block duration must not be negative")
	}
	return nil
}

// Result describes an admitted request.
type Result struct {
	Remaining int
	ResetIn   time.Duration
}

// Limiter admits or rejects requests per key. A rejection is returned as a
// *LimitedError.
type Limiter interface {
	Consume(ctx context.Context, key string) (Result, error)
}

// KEYS[1] counter, KEYS[2] block marker
// ARGV[1] points, ARGV[2] window ms, ARGV[3] block ms
// Returns {remaining, ms}; remaining is -1 on rejection.
const consumeScript = `
local blocked = redis.call("PTTL", KEYS[2])
if blocked > 0 then
  return {-1, blocked}
end
local count = redis.call("INCR", KEYS[1])
local ttl = redis.call("PTTL", KEYS[1])
if count == 1 or ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
  ttl = tonumber(ARGV[2])
end
local points = tonumber(ARGV[1])
if count > points then
  local block = tonumber(ARGV[3])
  if block > 0 then
    redis.call("SET", KEYS[2], "1", "PX", block)
    redis.call("DEL", KEYS[1])
    return {-1, block}
  end
  return {-1, ttl}
end
return {points - count, ttl}
`

var consumeLua = redis.NewScript(consumeScript)

// RedisLimiter keeps counters in Redis so budgets survive restarts and are
// shared across replicas.
type RedisLimiter struct {
	redis  redis.UniversalClient
	prefix string
	policy Policy
}

// NewRedisLimiter creates a [RedisLimiter]. prefix namespaces the keys of this
// instance, e.g. "rl:login".
func NewRedisLimiter(client redis.UniversalClient, prefix string, policy Policy) (*RedisLimiter, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &RedisLimiter{redis: client, prefix: prefix, policy: policy}, nil
}

func (l *RedisLimiter) counterKey(key string) string {
	return l.prefix + ":" + key
}

func (l *RedisLimiter) blockKey(key string) string {
	return l.prefix + ":blk:" + key
}

// Consume spends one point for key.
func (l *RedisLimiter) Consume(ctx context.Context, key string) (Result, error) {
	vals, err := consumeLua.Run(
		ctx,
		l.redis,
		[]string{l.counterKey(key), l.blockKey(key)},
		l.policy.Points,
		l.policy.Duration.Milliseconds(),
		l.policy.BlockDuration.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Result{}, oops.Code("RATE_CONSUME_FAILED").
			With("prefix", l.prefix).
			Wrap(fmt.Errorf("%w: %v", ErrRedisUnavailable, err))
	}
	if len(vals) != 2 {
		return Result{}, oops.Code("RATE_CONSUME_FAILED").With("prefix", l.prefix).Errorf("unexpected script reply")
	}

	wait := time.Duration(vals[1]) * time.Millisecond
	if vals[0] < 0 {
		return Result{}, &LimitedError{RetryAfter: wait}
	}
	return Result{Remaining: int(vals[0]), ResetIn: wait}, nil
}

// Reset clears the counter and block marker of key.
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	if err := l.redis.Del(ctx, l.counterKey(key), l.blockKey(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
