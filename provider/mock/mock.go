// Package mock provides a configurable test double for the gateway
// Provider interface.
package mock

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/lumenlab/aigateway"
)

// Provider is a mock AI provider for testing.
type Provider struct {
	name        string
	operations  []string
	latency     time.Duration
	failAfter   int
	callCount   atomic.Int64
	staticErr   error
	result      aigateway.Result
	validateErr error
	executeFunc func(operation string, params aigateway.Params) (aigateway.Result, error)
}

var _ aigateway.Provider = (*Provider)(nil)

// Option configures a mock Provider.
type Option func(*Provider)

// New creates a mock provider with the given options.
func New(opts ...Option) *Provider {
	p := &Provider{
		name:       "mock",
		operations: []string{aigateway.OpGenerateImage},
		result:     aigateway.Result{Output: "https://example.com/mock-output.png", Tokens: 30},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WithName sets the provider name.
func WithName(name string) Option {
	return func(p *Provider) { p.name = name }
}

// WithOperations sets the supported operations.
func WithOperations(ops ...string) Option {
	return func(p *Provider) { p.operations = ops }
}

// WithLatency adds simulated latency to each call.
func WithLatency(d time.Duration) Option {
	return func(p *Provider) { p.latency = d }
}

// WithFailAfter makes the provider fail after N successful calls.
func WithFailAfter(n int) Option {
	return func(p *Provider) { p.failAfter = n }
}

// WithError makes every call return this error.
func WithError(err error) Option {
	return func(p *Provider) { p.staticErr = err }
}

// WithResult sets the result returned by the mock.
func WithResult(r aigateway.Result) Option {
	return func(p *Provider) { p.result = r }
}

// WithValidateError makes Validate return this error.
func WithValidateError(err error) Option {
	return func(p *Provider) { p.validateErr = err }
}

// WithExecuteFunc sets a custom execute function.
func WithExecuteFunc(fn func(operation string, params aigateway.Params) (aigateway.Result, error)) Option {
	return func(p *Provider) { p.executeFunc = fn }
}

// Calls returns the number of Execute invocations, retries included.
func (p *Provider) Calls() int64 { return p.callCount.Load() }

func (p *Provider) Name() string { return p.name }

func (p *Provider) Supports(operation string) bool {
	for _, op := range p.operations {
		if op == operation {
			return true
		}
	}
	return false
}

func (p *Provider) Validate(string, aigateway.Params) error {
	return p.validateErr
}

func (p *Provider) Execute(ctx context.Context, operation string, params aigateway.Params, progress aigateway.ProgressFunc) (aigateway.Result, error) {
	if p.latency > 0 {
		select {
		case <-time.After(p.latency):
		case <-ctx.Done():
			return aigateway.Result{}, ctx.Err()
		}
	}

	count := p.callCount.Add(1)

	if p.staticErr != nil {
		return aigateway.Result{}, p.staticErr
	}

	if p.failAfter > 0 && int(count) > p.failAfter {
		return aigateway.Result{}, aigateway.NewError("mock provider exhausted", aigateway.KindProcessingError)
	}

	if p.executeFunc != nil {
		return p.executeFunc(operation, params)
	}

	if progress != nil {
		progress(100)
	}
	return p.result, nil
}
