package aigateway

import (
	"context"
	"time"
)

// Executor wraps a remote operation with bounded retry attempts.
//
// Provider rate-limit signals (429) sleep for the provider's retry-after
// hint; overload signals (503) back off exponentially. Everything else, and
// attempt exhaustion, surfaces the final error. Retries are invisible to the
// caller: the result is one final success or one final *Error.
type Executor struct {
	// MaxAttempts bounds the total attempt count (default 3).
	MaxAttempts int

	// Unit scales all sleeps: retry-after hints and 2^attempt backoff are
	// multiples of Unit. Defaults to one second; tests shrink it.
	Unit time.Duration

	// DefaultRetryAfter is the sleep (in Units) for a 429 that carries no
	// retry-after hint (default 5).
	DefaultRetryAfter int
}

func (e Executor) maxAttempts() int {
	if e.MaxAttempts > 0 {
		return e.MaxAttempts
	}
	return defaultMaxRetries
}

func (e Executor) unit() time.Duration {
	if e.Unit > 0 {
		return e.Unit
	}
	return time.Second
}

func (e Executor) defaultRetryAfter() int {
	if e.DefaultRetryAfter > 0 {
		return e.DefaultRetryAfter
	}
	return 5
}

// Do runs op up to MaxAttempts times. Each attempt gets its own deadline of
// timeout (no per-attempt deadline if timeout is zero).
func (e Executor) Do(ctx context.Context, timeout time.Duration, op func(ctx context.Context) (Result, error)) (Result, error) {
	var lastErr *Error

	for attempt := 1; attempt <= e.maxAttempts(); attempt++ {
		result, err := e.attempt(ctx, timeout, op)
		if err == nil {
			return result, nil
		}

		lastErr = AsError(err)

		if attempt == e.maxAttempts() {
			break
		}

		var delay time.Duration
		switch lastErr.Kind {
		case KindRateLimitExceeded:
			after := lastErr.RetryAfter
			if after <= 0 {
				after = e.defaultRetryAfter()
			}
			delay = time.Duration(after) * e.unit()
		case KindModelOverloaded:
			delay = (1 << attempt) * e.unit()
		default:
			return Result{}, lastErr
		}

		if err := sleep(ctx, delay); err != nil {
			return Result{}, AsError(err)
		}
	}

	return Result{}, lastErr
}

func (e Executor) attempt(ctx context.Context, timeout time.Duration, op func(ctx context.Context) (Result, error)) (Result, error) {
	if timeout <= 0 {
		return op(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return op(attemptCtx)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
