package aigateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Gateway is the single entry point composing validation, rate limiting,
// retry, and usage tracking around provider calls.
type Gateway struct {
	cfg       Config
	providers map[string]Provider
	limiter   Limiter
	tracker   *Tracker
	logger    *slog.Logger
	retryUnit time.Duration
	slots     map[string]chan struct{}
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLimiter sets the rate limiter.
func WithLimiter(l Limiter) Option {
	return func(g *Gateway) { g.limiter = l }
}

// WithTracker sets the usage tracker.
func WithTracker(t *Tracker) Option {
	return func(g *Gateway) { g.tracker = t }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// WithRetryUnit scales retry sleeps. Intended for tests; the default is one
// second.
func WithRetryUnit(d time.Duration) Option {
	return func(g *Gateway) { g.retryUnit = d }
}

// New creates a Gateway with the given config and provider adapters.
// Default components (in-memory fixed-window limiter, in-memory tracker
// with no sink, slog.Default) are used unless overridden via options.
func New(cfg Config, providers []Provider, opts ...Option) (*Gateway, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("aigateway: at least one provider is required")
	}

	provMap := make(map[string]Provider, len(providers))
	for _, p := range providers {
		provMap[p.Name()] = p
	}

	g := &Gateway{
		cfg:       cfg,
		providers: provMap,
		slots:     make(map[string]chan struct{}, len(providers)),
	}

	for _, opt := range opts {
		opt(g)
	}

	// Apply defaults after options.
	if g.limiter == nil {
		g.limiter = NewMemoryLimiter(cfg.WindowLimits())
	}
	if g.tracker == nil {
		g.tracker = NewTracker(cfg.Tracking)
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}

	for name := range provMap {
		if n := cfg.Provider(name).MaxConcurrency; n > 0 {
			g.slots[name] = make(chan struct{}, n)
		}
	}

	return g, nil
}

// Invoke runs one gateway call: validate params, consume rate budget, run
// the adapter through the retry executor, record the outcome, and return the
// canonical result. Validation and rate-limit rejections are cheap failures
// that never reach the provider and are not recorded as usage.
func (g *Gateway) Invoke(ctx context.Context, provider, operation string, params Params, onProgress ProgressFunc) (string, error) {
	adapter, ok := g.providers[provider]
	if !ok {
		return "", NewError(fmt.Sprintf("unknown provider %q", provider), KindInvalidRequest)
	}
	if !adapter.Supports(operation) {
		return "", NewError(fmt.Sprintf("provider %q does not support %q", provider, operation), KindInvalidRequest)
	}

	if err := adapter.Validate(operation, params); err != nil {
		return "", AsError(err)
	}

	if err := g.limiter.CheckAndConsume(ctx, provider, operation); err != nil {
		return "", AsError(err)
	}

	if slot := g.slots[provider]; slot != nil {
		select {
		case slot <- struct{}{}:
			defer func() { <-slot }()
		case <-ctx.Done():
			return "", AsError(ctx.Err())
		}
	}

	pc := g.cfg.Provider(provider)
	exec := Executor{MaxAttempts: pc.MaxRetries, Unit: g.retryUnit}

	start := time.Now()
	result, err := exec.Do(ctx, pc.Timeout.Std(), func(attemptCtx context.Context) (Result, error) {
		return adapter.Execute(attemptCtx, operation, params, onProgress)
	})
	latency := time.Since(start)

	rec := UsageRecord{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		Provider:  provider,
		Operation: operation,
		Success:   err == nil,
		Latency:   latency,
		Tokens:    result.Tokens,
	}

	if err != nil {
		ge := AsError(err)
		rec.Err = ge
		g.tracker.Record(rec)
		g.logger.Warn("invoke_failed",
			"provider", provider,
			"operation", operation,
			"kind", ge.Kind.String(),
			"latency_ms", latency.Milliseconds(),
			"error", ge.Message,
		)
		return "", ge
	}

	g.tracker.Record(rec)
	g.logger.Info("invoke",
		"provider", provider,
		"operation", operation,
		"latency_ms", latency.Milliseconds(),
	)
	return result.Output, nil
}

// QueryUsage returns usage records within the timeframe, optionally filtered
// by provider (empty string means all providers).
func (g *Gateway) QueryUsage(provider string, timeframe time.Duration) []UsageRecord {
	return g.tracker.Query(provider, timeframe)
}
