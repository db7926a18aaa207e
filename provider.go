package aigateway

import "context"

// Result is the normalized outcome of a provider operation.
type Result struct {
	// Output is the canonical result: an output URL for media operations,
	// generated text for content and code operations.
	Output string

	// Tokens is the token count reported by the provider, 0 if the
	// operation has no token accounting.
	Tokens int64
}

// Provider is the interface that AI provider adapters must implement.
type Provider interface {
	// Name returns the provider identifier (e.g. "fal", "openai", "deepai").
	Name() string

	// Supports returns true if this provider offers the given operation.
	Supports(operation string) bool

	// Validate checks operation params against the provider's schema.
	// It must not perform any network I/O and returns a *Error with
	// KindInvalidRequest on failure.
	Validate(operation string, params Params) error

	// Execute performs the remote call for one attempt. All failures are
	// normalized into *Error before returning.
	Execute(ctx context.Context, operation string, params Params, progress ProgressFunc) (Result, error)
}
