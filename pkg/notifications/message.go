package notifications

import (
	"time"

	"github.com/google/uuid"
)

// NotificationMessage is the push envelope published for each stored
// notification.
type NotificationMessage struct {
	// Message metadata
	ID             string    `json:"id"`              // Unique message ID (UUID)
	NotificationID uint      `json:"notification_id"` // Stored notification row
	Type           TypeID    `json:"type"`
	TypeName       string    `json:"type_name,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	Priority       Priority  `json:"priority"` // 0=low, 1=normal, 2=high, 3=urgent

	Recipient Recipient `json:"recipient"`

	// Resolved content
	Subject string `json:"subject"`
	Body    string `json:"body"`
	URL     string `json:"url,omitempty"` // Client redirect path

	// Data is the stored data bag, kept for audit/debugging.
	Data map[string]any `json:"data,omitempty"`

	// Backend routing (which backends should process this)
	Backends []string `json:"backends"` // ["audit", "ntfy"]

	// Set by the notifier when delivery fails
	LastError      string   `json:"last_error,omitempty"`
	FailedBackends []string `json:"failed_backends,omitempty"`
}

// Recipient is the user a push message is delivered to.
type Recipient struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username,omitempty"`
}

// NewMessage builds the push envelope for a projected notification.
func NewMessage(cn ClientNotification, backends []string) *NotificationMessage {
	msg := &NotificationMessage{
		ID:             uuid.New().String(),
		NotificationID: cn.ID,
		Type:           cn.Type,
		Timestamp:      time.Now(),
		Priority:       cn.Priority,
		Recipient:      Recipient{UserID: cn.UserID},
		Data:           cn.Data,
		Backends:       backends,
	}
	if cn.TypeName != nil {
		msg.TypeName = *cn.TypeName
	}
	if cn.Title != nil {
		msg.Subject = *cn.Title
	}
	if cn.Text != nil {
		msg.Body = *cn.Text
	}
	if cn.Redirect != nil {
		msg.URL = cn.Redirect.Path()
	}
	return msg
}
