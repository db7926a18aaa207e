package aigateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a gateway failure. Every error surfaced by the gateway
// carries exactly one Kind.
type Kind int

const (
	// KindProcessingError is the catch-all: malformed provider responses,
	// missing result fields, failed output verification, unclassified failures.
	KindProcessingError Kind = iota

	// KindInvalidAPIKey means the provider rejected our credentials.
	KindInvalidAPIKey

	// KindRateLimitExceeded means either the local limiter or the provider
	// refused the call for rate reasons.
	KindRateLimitExceeded

	// KindModelOverloaded means the provider signalled transient overload.
	KindModelOverloaded

	// KindInvalidRequest means local input validation failed.
	KindInvalidRequest

	// KindTimeout means a single attempt exceeded its configured deadline.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindInvalidAPIKey:
		return "invalid_api_key"
	case KindRateLimitExceeded:
		return "rate_limit_exceeded"
	case KindModelOverloaded:
		return "model_overloaded"
	case KindInvalidRequest:
		return "invalid_request"
	case KindTimeout:
		return "timeout"
	default:
		return "processing_error"
	}
}

// Error is the gateway error value. It is created at the point a call fails
// and never mutated afterwards.
type Error struct {
	Message    string
	Kind       Kind
	StatusCode int // HTTP status if known, 0 otherwise
	RetryAfter int // provider retry hint in seconds, 0 if absent
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("aigateway: %s (%s, status %d)", e.Message, e.Kind, e.StatusCode)
	}
	return fmt.Sprintf("aigateway: %s (%s)", e.Message, e.Kind)
}

// NewError creates a gateway error with the given message and kind.
func NewError(message string, kind Kind) *Error {
	return &Error{Message: message, Kind: kind}
}

// NewErrorWithStatus creates a gateway error carrying an HTTP status code and
// a retry-after hint in seconds.
func NewErrorWithStatus(message string, kind Kind, statusCode, retryAfter int) *Error {
	return &Error{Message: message, Kind: kind, StatusCode: statusCode, RetryAfter: retryAfter}
}

// FromStatus maps an HTTP status returned by a provider into a gateway error.
// KindInvalidRequest is reserved for local validation, so unclassified
// statuses, a provider 400 included, become KindProcessingError.
func FromStatus(statusCode int, message string, retryAfter int) *Error {
	var kind Kind
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = KindInvalidAPIKey
	case http.StatusTooManyRequests:
		kind = KindRateLimitExceeded
	case http.StatusServiceUnavailable:
		kind = KindModelOverloaded
	default:
		kind = KindProcessingError
	}
	return &Error{Message: message, Kind: kind, StatusCode: statusCode, RetryAfter: retryAfter}
}

// AsError coerces any error into a gateway *Error. Foreign errors become
// KindProcessingError, deadline expiry becomes KindTimeout. An error that is
// already a gateway error is returned unchanged.
func AsError(err error) *Error {
	var ge *Error
	if errors.As(err, &ge) {
		return ge
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError("attempt deadline exceeded", KindTimeout)
	}
	return NewError(err.Error(), KindProcessingError)
}

// IsRetryable reports whether the error is a transient provider condition
// that the retry executor may retry (rate limiting or overload).
func IsRetryable(err error) bool {
	var ge *Error
	if !errors.As(err, &ge) {
		return false
	}
	return ge.Kind == KindRateLimitExceeded || ge.Kind == KindModelOverloaded
}

// IsFatal reports whether the error must surface immediately without retry.
func IsFatal(err error) bool {
	var ge *Error
	if !errors.As(err, &ge) {
		return false
	}
	return ge.Kind == KindInvalidAPIKey || ge.Kind == KindInvalidRequest
}
