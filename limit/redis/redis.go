// Package redis provides a Redis-backed fixed-window Limiter.
//
// Window state is stored in Redis strings with an atomic Lua script for
// check-and-consume. This makes the budget shared across gateway instances.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/lumenlab/aigateway"
)

// Limiter is a Redis-backed fixed-window rate limiter.
type Limiter struct {
	client    goredis.Cmdable
	limits    map[string]aigateway.WindowLimit
	keyPrefix string
}

var _ aigateway.Limiter = (*Limiter)(nil)

// Option configures Limiter.
type Option func(*Limiter)

// WithKeyPrefix sets the Redis key prefix (default "aigateway:limit:").
func WithKeyPrefix(prefix string) Option {
	return func(l *Limiter) { l.keyPrefix = prefix }
}

// New creates a Redis-backed Limiter with per-provider window budgets.
// The client must be a connected *goredis.Client or *goredis.ClusterClient.
func New(client goredis.Cmdable, limits map[string]aigateway.WindowLimit, opts ...Option) *Limiter {
	l := &Limiter{
		client:    client,
		limits:    limits,
		keyPrefix: "aigateway:limit:",
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) key(provider, operation string) string {
	return l.keyPrefix + provider + ":" + operation
}

// consumeScript atomically consumes one unit of a fixed window.
// KEYS[1] = window counter key
// ARGV[1] = window budget (total)
// ARGV[2] = window length in milliseconds
//
// Returns:
//
//	{1, remaining}    = consumed OK
//	{0, reset_ms}     = budget exhausted, reset_ms until the window resets
var consumeScript = goredis.NewScript(`
local key = KEYS[1]
local total = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])

local remaining = redis.call('GET', key)
if remaining == false then
  redis.call('SET', key, total - 1, 'PX', window_ms)
  return {1, total - 1}
end

remaining = tonumber(remaining)
if remaining <= 0 then
  local ttl = redis.call('PTTL', key)
  if ttl < 0 then
    ttl = 0
  end
  return {0, ttl}
end

redis.call('DECR', key)
return {1, remaining - 1}
`)

// CheckAndConsume consumes one unit of budget for (provider, operation).
func (l *Limiter) CheckAndConsume(ctx context.Context, provider, operation string) error {
	limit, ok := l.limits[provider]
	if !ok || limit.Requests <= 0 {
		return nil
	}

	res, err := consumeScript.Run(ctx, l.client,
		[]string{l.key(provider, operation)},
		limit.Requests,
		limit.Window.Std().Milliseconds(),
	).Int64Slice()
	if err != nil {
		return fmt.Errorf("aigateway/redis: consume %s:%s: %w", provider, operation, err)
	}
	if len(res) != 2 {
		return fmt.Errorf("aigateway/redis: unexpected script reply for %s:%s", provider, operation)
	}

	if res[0] == 0 {
		retryAfter := int((time.Duration(res[1])*time.Millisecond + time.Second - 1) / time.Second)
		return aigateway.NewErrorWithStatus(
			fmt.Sprintf("rate limit exceeded for %s:%s, try again in %d seconds", provider, operation, retryAfter),
			aigateway.KindRateLimitExceeded,
			429,
			retryAfter,
		)
	}
	return nil
}
