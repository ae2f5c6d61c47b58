// Package upstream implements the resilient API client layer shared by the
// tracker and SCM clients: a request pipeline combining cache lookup, rate
// limiting, circuit breaking, retry with backoff, and response caching, plus
// the typed error taxonomy surfaced to callers.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sprintforge/sprintforge/pkg/resilience"
)

// Kind identifies an error class in the surfaced taxonomy.
type Kind string

// Error taxonomy kinds.
const (
	KindValidation      Kind = "ValidationError"
	KindNotFound        Kind = "NotFound"
	KindAuth            Kind = "AuthError"
	KindRateLimit       Kind = "RateLimitExceeded"
	KindCircuitOpen     Kind = "CircuitOpen"
	KindUpstreamFailure Kind = "UpstreamFailure"
	KindUpstreamTimeout Kind = "UpstreamTimeout"
	KindPartialResult   Kind = "PartialResult"
	KindInternal        Kind = "InternalError"
)

// Error is a typed upstream error. Message is user-facing; Debug preserves
// the original error text and never reaches user-facing surfaces.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}

	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the cause for errors.Is/As.
func (e *Error) Unwrap() error { return e.cause }

// NewError builds a typed error.
func NewError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// KindOf extracts the taxonomy kind from err, defaulting to InternalError.
func KindOf(err error) Kind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}

	if errors.Is(err, resilience.ErrCircuitOpen) {
		return KindCircuitOpen
	}

	if errors.Is(err, resilience.ErrRateLimitExceeded) {
		return KindRateLimit
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindUpstreamTimeout
	}

	return KindInternal
}

// statusError is an HTTP response treated as an error, before taxonomy
// classification.
type statusError struct {
	status     int
	body       string
	retryAfter int // Seconds; 0 when absent.
}

func (e *statusError) Error() string {
	return fmt.Sprintf("upstream status %d", e.status)
}

// retriable reports whether err may succeed on retry: 5xx responses, 429,
// connection errors, and timeouts. Other 4xx responses are terminal.
func retriable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.status >= http.StatusInternalServerError || se.status == http.StatusTooManyRequests
	}

	// Connection errors and timeouts surface as non-status errors.
	var typed *Error
	if errors.As(err, &typed) {
		return false
	}

	return !errors.Is(err, context.Canceled)
}

// countsForBreaker reports whether err should move the circuit breaker:
// 5xx responses, connection errors, and timeouts. 429 is retriable but is
// an upstream throttle, not a provider failure, so it does not count.
func countsForBreaker(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.status >= http.StatusInternalServerError
	}

	return retriable(err)
}

// classifyStatus maps a terminal HTTP status onto the taxonomy.
func classifyStatus(se *statusError) *Error {
	switch {
	case se.status == http.StatusUnauthorized || se.status == http.StatusForbidden:
		return NewError(KindAuth, "upstream rejected credentials", se)
	case se.status == http.StatusNotFound:
		return NewError(KindNotFound, "entity not found upstream", se)
	case se.status == http.StatusTooManyRequests:
		return NewError(KindRateLimit, "upstream throttled the request", se)
	case se.status >= http.StatusInternalServerError:
		return NewError(KindUpstreamTimeout, "upstream failed after retries", se)
	default:
		return NewError(KindUpstreamFailure, fmt.Sprintf("upstream returned %d", se.status), se)
	}
}
