package dns

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrProviderUnavailable is returned when a provider cannot be constructed
// at startup, before any network activity.
var ErrProviderUnavailable = errors.New("dns provider unavailable")

// ServiceError is an error response from the DNS service.
type ServiceError struct {
	StatusCode int
	Code       string
	Message    string
	RequestID  string
}

func (e *ServiceError) Error() string {
	msg := fmt.Sprintf("service error: http status %d", e.StatusCode)
	if e.Code != "" {
		msg += ", code " + e.Code
	}
	if e.RequestID != "" {
		msg += ", request id " + e.RequestID
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// Retryable reports whether the request may succeed if sent again.
func (e *ServiceError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// IsRetryable reports whether err is worth another attempt. Throttling and
// server-side service errors are; other service errors, cancellation and
// errors marked Permanent are not. Transport failures are retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pe *permanentError
	if errors.As(err, &pe) {
		return false
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return true
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err so that IsRetryable reports false for it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}
