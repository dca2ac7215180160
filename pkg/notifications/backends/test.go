package backends

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/openforge/commons/pkg/notifications"
)

// TestBackend is a mock backend that injects failures so tests can verify
// routing, DLQ handling and error classification.
type TestBackend struct {
	name     string
	mu       sync.RWMutex
	config   TestBackendConfig
	messages []TestBackendMessage
}

// TestBackendConfig configures the test backend behavior
type TestBackendConfig struct {
	// Name overrides the backend name. Defaults to "test".
	Name string

	// FailureMode determines how the backend should fail
	FailureMode FailureMode

	// FailureCount is N for FailureModeFirstNFail.
	FailureCount int

	// FailureDelay adds artificial latency before processing
	FailureDelay time.Duration

	// FailureMessage is the error message to return
	FailureMessage string

	// RecordMessages enables recording of all processed messages for verification
	RecordMessages bool
}

// FailureMode defines how the test backend should behave
type FailureMode string

const (
	// FailureModeNone processes all messages successfully
	FailureModeNone FailureMode = "none"

	// FailureModeAlways always fails with a retryable error
	FailureModeAlways FailureMode = "always"

	// FailureModePermanent always fails with a permanent (non-retryable) error
	FailureModePermanent FailureMode = "permanent"

	// FailureModeFirstNFail fails the first N messages, then succeeds
	FailureModeFirstNFail FailureMode = "first_n_fail"
)

// TestBackendMessage records a processed message for verification
type TestBackendMessage struct {
	Message   *notifications.NotificationMessage
	Timestamp time.Time
	Success   bool
	Error     error
}

// NewTestBackend creates a new test backend
func NewTestBackend(config TestBackendConfig) *TestBackend {
	name := config.Name
	if name == "" {
		name = "test"
	}
	return &TestBackend{
		name:     name,
		config:   config,
		messages: make([]TestBackendMessage, 0),
	}
}

// Name returns the backend name
func (b *TestBackend) Name() string {
	return b.name
}

// Handle processes a notification message according to the configured failure mode
func (b *TestBackend) Handle(ctx context.Context, msg *notifications.NotificationMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.config.FailureDelay > 0 {
		select {
		case <-time.After(b.config.FailureDelay):
		case <-ctx.Done():
		}
	}

	var err error
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = NewBackendError(b.name, "send", true, ctxErr)
	} else {
		err = b.failure()
	}

	if b.config.RecordMessages {
		b.messages = append(b.messages, TestBackendMessage{
			Message:   msg,
			Timestamp: time.Now(),
			Success:   err == nil,
			Error:     err,
		})
	}

	return err
}

func (b *TestBackend) failure() error {
	errMsg := b.config.FailureMessage

	switch b.config.FailureMode {
	case FailureModeNone, "":
		return nil

	case FailureModeAlways:
		if errMsg == "" {
			errMsg = "simulated retryable failure"
		}
		return NewBackendError(b.name, "send", true, errors.New(errMsg))

	case FailureModePermanent:
		if errMsg == "" {
			errMsg = "simulated permanent failure"
		}
		return NewBackendError(b.name, "send", false, errors.New(errMsg))

	case FailureModeFirstNFail:
		attempt := len(b.messages)
		if attempt < b.config.FailureCount {
			return NewBackendError(b.name, "send", true,
				fmt.Errorf("simulated failure %d/%d", attempt+1, b.config.FailureCount))
		}
		return nil
	}

	return NewBackendError(b.name, "send", false,
		fmt.Errorf("unknown failure mode: %s", b.config.FailureMode))
}

// SupportsBackend checks if this backend should process the message
func (b *TestBackend) SupportsBackend(backend string) bool {
	return backend == b.name
}

// GetMessages returns all recorded messages (for test verification)
func (b *TestBackend) GetMessages() []TestBackendMessage {
	b.mu.RLock()
	defer b.mu.RUnlock()

	messages := make([]TestBackendMessage, len(b.messages))
	copy(messages, b.messages)
	return messages
}

// GetMessageCount returns the number of processed messages
func (b *TestBackend) GetMessageCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.messages)
}

// GetFailureCount returns the number of failed messages
func (b *TestBackend) GetFailureCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := 0
	for _, msg := range b.messages {
		if !msg.Success {
			count++
		}
	}
	return count
}

// SetFailureMode dynamically changes the failure mode
func (b *TestBackend) SetFailureMode(mode FailureMode) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.config.FailureMode = mode
}
