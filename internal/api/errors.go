package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorKind classifies provider failures.
type ErrorKind string

const (
	ErrAuthFailure ErrorKind = "auth_failure"
	ErrRateLimited ErrorKind = "rate_limited"
	ErrUnavailable ErrorKind = "unavailable"
	ErrMalformed   ErrorKind = "malformed"
	ErrTimeout     ErrorKind = "timeout"
)

// Retryable reports whether a failure of this kind may succeed on retry.
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrRateLimited, ErrUnavailable, ErrTimeout, ErrMalformed:
		return true
	}
	return false
}

// ProviderError is returned by every adapter failure except cancellation.
type ProviderError struct {
	Kind       ErrorKind
	Provider   string
	StatusCode int
	Err        error
	// Permanent marks a request that fails the same way on every attempt,
	// such as a conversation with no user turn or a 4xx rejection.
	Permanent bool
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("provider %s: %s", e.Provider, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a non-permanent ProviderError of a
// retryable kind.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return !pe.Permanent && pe.Kind.Retryable()
	}
	return false
}

// APIError represents an error with status code
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// KindForStatus maps an HTTP status code onto an ErrorKind.
func KindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrAuthFailure
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ErrTimeout
	case status >= 500:
		return ErrUnavailable
	default:
		return ErrMalformed
	}
}

// statusError builds a ProviderError from a non-2xx response.
// Malformed statuses are client errors, so they are not retried.
func statusError(providerID string, status int, msg string) *ProviderError {
	kind := KindForStatus(status)
	return &ProviderError{
		Kind:       kind,
		Provider:   providerID,
		StatusCode: status,
		Err:        errors.New(msg),
		Permanent:  kind == ErrMalformed,
	}
}

// transportError classifies a failure that happened before a status code
// was available. Parent cancellation is passed through untouched.
func transportError(ctx context.Context, providerID string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return context.Canceled
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &ProviderError{Kind: ErrTimeout, Provider: providerID, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &ProviderError{Kind: ErrTimeout, Provider: providerID, Err: err}
	}
	return &ProviderError{Kind: ErrUnavailable, Provider: providerID, Err: err}
}

func malformed(providerID string, format string, args ...any) *ProviderError {
	return &ProviderError{Kind: ErrMalformed, Provider: providerID, Err: fmt.Errorf(format, args...)}
}
