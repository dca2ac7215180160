package backends

import (
	"context"
	"errors"
	"fmt"

	"github.com/openforge/commons/pkg/notifications"
)

// Backend delivers push messages to one channel. Each message is handed to
// a backend once; there is no redelivery.
type Backend interface {
	Name() string

	Handle(ctx context.Context, msg *notifications.NotificationMessage) error

	// SupportsBackend reports whether msg.Backends entry backend is served
	// by this backend.
	SupportsBackend(backend string) bool
}

// BackendError is a failed delivery attempt. Retryable marks failures a
// later attempt could fix (timeouts, 5xx, 429); the notifier records it in
// the DLQ entry and does not retry.
type BackendError struct {
	Backend   string
	Operation string
	Retryable bool
	Err       error
}

func (e *BackendError) Error() string {
	kind := "permanent"
	if e.Retryable {
		kind = "retryable"
	}
	return fmt.Sprintf("%s backend error (%s, %s): %v", e.Backend, e.Operation, kind, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// NewBackendError creates a new backend error
func NewBackendError(backend, operation string, retryable bool, err error) *BackendError {
	return &BackendError{
		Backend:   backend,
		Operation: operation,
		Retryable: retryable,
		Err:       err,
	}
}

// IsRetryable reports whether err wraps a retryable BackendError. Errors
// from unknown sources are treated as permanent.
func IsRetryable(err error) bool {
	var be *BackendError
	return errors.As(err, &be) && be.Retryable
}
