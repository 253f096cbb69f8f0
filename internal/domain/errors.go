package domain

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorCode is the stable error taxonomy exposed to callers.
// Provider-level errors are normalized to one of these at the adapter
// boundary; raw upstream error shapes never reach consumers.
type ErrorCode string

const (
	// ErrValidation marks bad input. Never retried.
	ErrValidation ErrorCode = "VALIDATION"
	// ErrRateLimited marks throttling. Retryable after RetryAfter.
	ErrRateLimited ErrorCode = "RATE_LIMITED"
	// ErrAuth marks an authentication failure against an upstream.
	// Fatal at the configuration level, never retried.
	ErrAuth ErrorCode = "AUTH"
	// ErrQuotaExceeded marks an exhausted upstream quota. Terminal.
	ErrQuotaExceeded ErrorCode = "QUOTA_EXCEEDED"
	// ErrBudgetExceeded marks a consumed cost budget. Terminal.
	ErrBudgetExceeded ErrorCode = "BUDGET_EXCEEDED"
	// ErrUpstreamUnavailable marks a transient upstream failure.
	ErrUpstreamUnavailable ErrorCode = "UPSTREAM_UNAVAILABLE"
	// ErrCircuitOpen marks a short-circuited call. The caller must be
	// able to tell this apart from exhausted retries.
	ErrCircuitOpen ErrorCode = "CIRCUIT_OPEN"
	// ErrNotFound marks an unknown resource id.
	ErrNotFound ErrorCode = "NOT_FOUND"
	// ErrInternal marks an unexpected failure. Logged with full context,
	// generic message to the caller.
	ErrInternal ErrorCode = "INTERNAL"
)

// Error is the typed error carried across component boundaries.
type Error struct {
	Code    ErrorCode
	Message string
	// RetryAfter is set for RATE_LIMITED errors so callers can back off.
	RetryAfter time.Duration
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a typed error.
// Parameters:
//   - code: taxonomy code.
//   - message: human-readable message safe to surface to callers.
// Returns:
//   - *Error: the typed error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError wraps a cause with a taxonomy code.
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// RateLimitedError creates a RATE_LIMITED error with retry-after info.
func RateLimitedError(message string, retryAfter time.Duration) *Error {
	return &Error{Code: ErrRateLimited, Message: message, RetryAfter: retryAfter}
}

// CodeOf extracts the taxonomy code from any error.
// Unclassified errors report ErrInternal.
func CodeOf(err error) ErrorCode {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ErrInternal
}

// Retryable reports whether an error is worth retrying.
// Only throttling and transient upstream failures qualify; circuit-open
// is excluded so short-circuited calls do not consume a retry budget.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case ErrRateLimited, ErrUpstreamUnavailable:
		return true
	}
	return false
}

// RetryAfterOf extracts the retry-after hint, zero when absent.
func RetryAfterOf(err error) time.Duration {
	var de *Error
	if errors.As(err, &de) {
		return de.RetryAfter
	}
	return 0
}

// HTTPStatus maps a taxonomy code to an HTTP response status.
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case ErrValidation:
		return http.StatusBadRequest
	case ErrRateLimited:
		return http.StatusTooManyRequests
	case ErrAuth:
		return http.StatusUnauthorized
	case ErrQuotaExceeded, ErrBudgetExceeded:
		return http.StatusPaymentRequired
	case ErrNotFound:
		return http.StatusNotFound
	case ErrUpstreamUnavailable, ErrCircuitOpen:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
