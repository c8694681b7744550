package research

import (
	"errors"
	"fmt"
	"time"
)

// withInteraction formats an error message, appending the interaction ID
// when one is known so callers can resume the operation later.
func withInteraction(msg, id string) string {
	if id == "" {
		return msg
	}
	return fmt.Sprintf("%s (interaction_id: %s)", msg, id)
}

// AuthError indicates missing or rejected credentials. Auth failures are
// fatal and never retried.
type AuthError struct {
	Message       string
	InteractionID string
}

func (e *AuthError) Error() string { return withInteraction(e.Message, e.InteractionID) }

// NetworkError indicates a connectivity failure that persisted after the
// retry budget was exhausted, or a response too malformed to carry on with.
type NetworkError struct {
	Message       string
	InteractionID string
	RetryCount    int
}

func (e *NetworkError) Error() string { return withInteraction(e.Message, e.InteractionID) }

// TimeoutError indicates an operation ran past its total timeout.
type TimeoutError struct {
	Message       string
	InteractionID string
	Elapsed       time.Duration
}

func (e *TimeoutError) Error() string { return withInteraction(e.Message, e.InteractionID) }

// APIError indicates the remote service reported an explicit failure.
type APIError struct {
	Message       string
	InteractionID string
	StatusCode    int
	Code          string
}

func (e *APIError) Error() string { return withInteraction(e.Message, e.InteractionID) }

// CancelledError indicates the caller cancelled an operation in flight. The
// remote computation keeps running server-side; Partial holds any report
// text received before cancellation. It wraps the context error, so
// errors.Is(err, context.Canceled) still holds.
type CancelledError struct {
	Message       string
	InteractionID string
	Partial       string
	Cause         error
}

func (e *CancelledError) Error() string { return withInteraction(e.Message, e.InteractionID) }

func (e *CancelledError) Unwrap() error { return e.Cause }

// InteractionID returns the interaction ID carried by a taxonomy error, or
// "" when the error carries none.
func InteractionID(err error) string {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.InteractionID
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return netErr.InteractionID
	}
	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return timeoutErr.InteractionID
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.InteractionID
	}
	var cancelErr *CancelledError
	if errors.As(err, &cancelErr) {
		return cancelErr.InteractionID
	}
	return ""
}
