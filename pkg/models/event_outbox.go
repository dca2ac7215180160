package models

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// EventOutbox stores stored events awaiting publication to the events topic.
// Rows are written in the same transaction as the Event they carry, so a
// relay can publish every persisted event at least once.
type EventOutbox struct {
	ID uint `gorm:"primaryKey" json:"id"`

	EventID   uint   `gorm:"not null;index:idx_event_outbox_event_id" json:"eventId"`
	EventType string `gorm:"type:varchar(64);not null" json:"eventType"`

	// Partition key for the events topic: {target_type}:{target_id}
	PartitionKey string `gorm:"type:varchar(64);not null" json:"partitionKey"`

	// Idempotency key: {event_id}:{content_hash}
	IdempotentKey string `gorm:"type:varchar(128);not null;uniqueIndex" json:"idempotentKey"`

	Payload map[string]interface{} `gorm:"serializer:json;type:jsonb;not null" json:"payload"`

	Status          string     `gorm:"type:varchar(20);not null;default:'pending';index:idx_event_outbox_status" json:"status"` // 'pending', 'published', 'failed'
	PublishedAt     *time.Time `json:"publishedAt,omitempty"`
	PublishAttempts int        `gorm:"default:0" json:"publishAttempts"`
	LastError       string     `gorm:"type:text" json:"lastError,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name.
func (EventOutbox) TableName() string {
	return "event_outbox"
}

// OutboxStatus constants
const (
	OutboxStatusPending   = "pending"
	OutboxStatusPublished = "published"
	OutboxStatusFailed    = "failed"
)

// GenerateIdempotentKey creates a unique key for an event publication.
func GenerateIdempotentKey(eventID uint, contentHash string) string {
	return fmt.Sprintf("%d:%s", eventID, contentHash)
}

// ComputeContentHash computes SHA-256 hash of the payload.
func ComputeContentHash(payload interface{}) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash), nil
}

// BeforeCreate hook to ensure required fields.
func (o *EventOutbox) BeforeCreate(tx *gorm.DB) error {
	if o.EventID == 0 {
		return fmt.Errorf("event_id is required")
	}
	if o.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if o.Payload == nil {
		return fmt.Errorf("payload is required")
	}

	if o.IdempotentKey == "" {
		hash, err := ComputeContentHash(o.Payload)
		if err != nil {
			return err
		}
		o.IdempotentKey = GenerateIdempotentKey(o.EventID, hash)
	}
	if o.Status == "" {
		o.Status = OutboxStatusPending
	}

	return nil
}

// NewEventOutboxEntry builds the outbox row for a stored event.
func NewEventOutboxEntry(event *Event) (*EventOutbox, error) {
	if event == nil || event.ID == 0 {
		return nil, fmt.Errorf("stored event is required")
	}

	payload := map[string]interface{}{
		"id":          event.ID,
		"event_type":  event.EventType,
		"actor_id":    event.ActorID,
		"target_type": event.TargetType,
		"target_id":   event.TargetID,
		"public":      event.Public,
		"event_data":  map[string]any(event.EventData),
		"created_at":  event.CreatedAt,
	}

	contentHash, err := ComputeContentHash(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to compute content hash: %w", err)
	}

	return &EventOutbox{
		EventID:       event.ID,
		EventType:     event.EventType,
		PartitionKey:  fmt.Sprintf("%s:%d", event.TargetType, event.TargetID),
		IdempotentKey: GenerateIdempotentKey(event.ID, contentHash),
		Payload:       payload,
		Status:        OutboxStatusPending,
	}, nil
}

// FindPendingEventOutbox retrieves pending outbox entries, oldest first.
func FindPendingEventOutbox(db *gorm.DB, limit int) ([]EventOutbox, error) {
	var entries []EventOutbox

	err := db.
		Where("status = ?", OutboxStatusPending).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&entries).Error

	return entries, err
}

// MarkAsPublished marks the outbox entry as successfully published.
func (o *EventOutbox) MarkAsPublished(db *gorm.DB) error {
	now := time.Now()
	o.Status = OutboxStatusPublished
	o.PublishedAt = &now

	return db.Model(o).Updates(map[string]interface{}{
		"status":       OutboxStatusPublished,
		"published_at": now,
		"updated_at":   now,
	}).Error
}

// MarkAsFailed marks the outbox entry as failed with error details.
func (o *EventOutbox) MarkAsFailed(db *gorm.DB, err error) error {
	o.PublishAttempts++
	o.Status = OutboxStatusFailed
	o.LastError = err.Error()

	return db.Model(o).Updates(map[string]interface{}{
		"status":           OutboxStatusFailed,
		"publish_attempts": o.PublishAttempts,
		"last_error":       err.Error(),
		"updated_at":       time.Now(),
	}).Error
}

// Retry resets the outbox entry status to pending.
func (o *EventOutbox) Retry(db *gorm.DB) error {
	o.Status = OutboxStatusPending
	o.LastError = ""

	return db.Model(o).Updates(map[string]interface{}{
		"status":     OutboxStatusPending,
		"last_error": "",
		"updated_at": time.Now(),
	}).Error
}

// DeleteOldPublishedEventOutbox removes published entries older than the
// given duration.
func DeleteOldPublishedEventOutbox(db *gorm.DB, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	result := db.
		Where("status = ? AND published_at < ?", OutboxStatusPublished, cutoff).
		Delete(&EventOutbox{})

	return result.RowsAffected, result.Error
}

// GetFailedEventOutbox retrieves failed entries for retry, most recent first.
func GetFailedEventOutbox(db *gorm.DB, limit int) ([]EventOutbox, error) {
	var entries []EventOutbox
	err := db.
		Where("status = ?", OutboxStatusFailed).
		Order("updated_at DESC").
		Limit(limit).
		Find(&entries).Error

	return entries, err
}

// CountEventOutboxByStatus returns the count of entries for a given status.
func CountEventOutboxByStatus(db *gorm.DB, status string) (int64, error) {
	var count int64
	err := db.Model(&EventOutbox{}).
		Where("status = ?", status).
		Count(&count).Error

	return count, err
}
