package aigateway

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Limiter gates outbound provider calls.
type Limiter interface {
	// CheckAndConsume consumes one unit of budget for the
	// (provider, operation) pair. It returns a *Error with
	// KindRateLimitExceeded and a RetryAfter hint when the current
	// window's budget is exhausted; no budget is consumed on that path.
	CheckAndConsume(ctx context.Context, provider, operation string) error
}

// WindowLimit is the rate budget for one provider: Requests calls per Window.
type WindowLimit struct {
	Requests int
	Window   Duration
}

// WindowLimits extracts the per-provider rate budgets from a config.
func (c Config) WindowLimits() map[string]WindowLimit {
	limits := make(map[string]WindowLimit, len(c.Providers))
	for name, pc := range c.Providers {
		limits[name] = WindowLimit{Requests: pc.RequestsPerWindow, Window: pc.Window}
	}
	return limits
}

// MemoryLimiter is an in-memory fixed-window Limiter keyed by
// (provider, operation). Suitable for single-instance deployments; the
// limit/redis subpackage shares one window across instances.
//
// The window is deliberately fixed rather than sliding: minor burstiness at
// window boundaries is accepted in exchange for O(1) state per key and no
// background sweeping.
type MemoryLimiter struct {
	mu     sync.Mutex
	limits map[string]WindowLimit
	states map[string]*windowState
	now    func() time.Time
}

type windowState struct {
	remaining int
	resetAt   time.Time
	total     int
}

var _ Limiter = (*MemoryLimiter)(nil)

// NewMemoryLimiter creates a limiter with per-provider window budgets.
// Providers absent from limits are not limited.
func NewMemoryLimiter(limits map[string]WindowLimit) *MemoryLimiter {
	return &MemoryLimiter{
		limits: limits,
		states: make(map[string]*windowState),
		now:    time.Now,
	}
}

// CheckAndConsume consumes one unit of budget for (provider, operation).
func (l *MemoryLimiter) CheckAndConsume(_ context.Context, provider, operation string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	limit, ok := l.limits[provider]
	if !ok || limit.Requests <= 0 {
		return nil
	}

	key := provider + ":" + operation
	now := l.now()

	st, ok := l.states[key]
	if !ok {
		st = &windowState{
			remaining: limit.Requests,
			resetAt:   now.Add(limit.Window.Std()),
			total:     limit.Requests,
		}
		l.states[key] = st
	}

	if !now.Before(st.resetAt) {
		st.remaining = st.total
		st.resetAt = now.Add(limit.Window.Std())
	}

	if st.remaining <= 0 {
		retryAfter := int((st.resetAt.Sub(now) + time.Second - 1) / time.Second)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return NewErrorWithStatus(
			fmt.Sprintf("rate limit exceeded for %s:%s, try again in %d seconds", provider, operation, retryAfter),
			KindRateLimitExceeded,
			429,
			retryAfter,
		)
	}

	st.remaining--
	return nil
}

// Remaining returns the budget left in the current window for
// (provider, operation). Unlimited pairs report -1.
func (l *MemoryLimiter) Remaining(provider, operation string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	limit, ok := l.limits[provider]
	if !ok || limit.Requests <= 0 {
		return -1
	}

	st, ok := l.states[provider+":"+operation]
	if !ok {
		return limit.Requests
	}
	if !l.now().Before(st.resetAt) {
		return st.total
	}
	return st.remaining
}
