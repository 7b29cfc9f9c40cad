package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument         = errors.New("invalid argument")
	ErrNotFound                = errors.New("not found")
	ErrConflict                = errors.New("conflict")
	ErrRateLimited             = errors.New("rate limited")
	ErrUpstreamTimeout         = errors.New("upstream timeout")
	ErrUpstreamRateLimit       = errors.New("upstream rate limit")
	ErrUpstreamPaymentRequired = errors.New("upstream payment required")
	ErrUpstream                = errors.New("upstream error")
	ErrTransport               = errors.New("transport error")
	ErrSchemaInvalid           = errors.New("schema invalid")
	ErrPersistence             = errors.New("persistence error")
	ErrInternal                = errors.New("internal error")
)

// UpstreamError is a non-2xx reply from a model provider.
type UpstreamError struct {
	Provider string
	Status   int
	Body     string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Status, e.Body)
}

// Unwrap maps the status onto the sentinel callers branch on.
func (e *UpstreamError) Unwrap() error {
	switch e.Status {
	case 429:
		return ErrUpstreamRateLimit
	case 402:
		return ErrUpstreamPaymentRequired
	}
	return ErrUpstream
}

// Retryable reports whether the status is a transient server-side failure.
func (e *UpstreamError) Retryable() bool { return e.Status >= 500 }

// ParseError means the model reply held no usable evaluation. Raw keeps the reply.
type ParseError struct {
	Raw    string
	Reason string
}

func (e *ParseError) Error() string { return "schema invalid: " + e.Reason }

func (e *ParseError) Unwrap() error { return ErrSchemaInvalid }

// ErrorCode returns the stable API code for err.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidArgument):
		return "INVALID_ARGUMENT"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrConflict):
		return "CONFLICT"
	case errors.Is(err, ErrRateLimited):
		return "RATE_LIMITED"
	case errors.Is(err, ErrUpstreamRateLimit):
		return "UPSTREAM_RATE_LIMIT"
	case errors.Is(err, ErrUpstreamPaymentRequired):
		return "UPSTREAM_PAYMENT_REQUIRED"
	case errors.Is(err, ErrUpstreamTimeout):
		return "UPSTREAM_TIMEOUT"
	case errors.Is(err, ErrSchemaInvalid):
		return "SCHEMA_INVALID"
	case errors.Is(err, ErrUpstream), errors.Is(err, ErrTransport):
		return "UPSTREAM_ERROR"
	case errors.Is(err, ErrPersistence):
		return "PERSISTENCE_ERROR"
	default:
		return "INTERNAL"
	}
}
