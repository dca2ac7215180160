package backends

import (
	"context"

	"github.com/hashicorp/go-hclog"

	"github.com/openforge/commons/pkg/notifications"
)

// AuditBackend logs all notifications for compliance and debugging
type AuditBackend struct {
	logger hclog.Logger
}

// NewAuditBackend creates a new audit backend
func NewAuditBackend(logger hclog.Logger) *AuditBackend {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &AuditBackend{
		logger: logger.Named("audit"),
	}
}

// Name returns the backend identifier
func (b *AuditBackend) Name() string {
	return "audit"
}

// SupportsBackend checks if this backend should process the message
func (b *AuditBackend) SupportsBackend(backend string) bool {
	return backend == "audit"
}

// Handle logs the message.
func (b *AuditBackend) Handle(ctx context.Context, msg *notifications.NotificationMessage) error {
	args := []interface{}{
		"id", msg.ID,
		"notification_id", msg.NotificationID,
		"type", msg.Type,
		"priority", msg.Priority.String(),
		"user_id", msg.Recipient.UserID,
		"timestamp", msg.Timestamp,
	}
	if msg.TypeName != "" {
		args = append(args, "type_name", msg.TypeName)
	}
	if msg.Subject != "" {
		args = append(args, "subject", msg.Subject)
	}
	if msg.Body != "" {
		args = append(args, "body", msg.Body)
	}
	if msg.URL != "" {
		args = append(args, "url", msg.URL)
	}
	if len(msg.Data) > 0 {
		args = append(args, "data", msg.Data)
	}

	b.logger.Info("notification", args...)
	return nil
}
