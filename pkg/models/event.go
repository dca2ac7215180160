package models

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gorm.io/gorm"
)

// Event is an immutable fact raised by a business action: who did what to
// which entity. Rows are written once by the ingestion pipeline and read by
// timeline and history queries.
type Event struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// EventType is the canonical key into the event type registry.
	EventType string `gorm:"type:varchar(64);not null;index:idx_events_type" json:"eventType"`

	ActorID    uint   `gorm:"not null;index:idx_events_actor" json:"actorId"`
	TargetType string `gorm:"type:varchar(32);not null;index:idx_events_target,priority:1" json:"targetType"`
	TargetID   uint   `gorm:"not null;index:idx_events_target,priority:2" json:"targetId"`

	// EventData is the schema-validated payload.
	EventData JSONMap `gorm:"type:jsonb;not null" json:"eventData"`

	// Public controls visibility in timelines. No column default: a zero
	// value must reach the database as false.
	Public bool `gorm:"not null" json:"public"`

	CreatedAt time.Time `gorm:"index:idx_events_created" json:"createdAt"`
}

// TableName specifies the table name.
func (Event) TableName() string {
	return "events"
}

// EventQuery pages through events.
type EventQuery struct {
	Limit          int
	Offset         int
	IncludePrivate bool

	// Since, when set, excludes events created before it.
	Since time.Time
}

// Default and maximum page sizes for event and notification listings.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// Create inserts the event. Events are never updated afterwards.
func (e *Event) Create(db *gorm.DB) error {
	if err := validation.ValidateStruct(e,
		validation.Field(&e.EventType, validation.Required, validation.Length(1, 64)),
		validation.Field(&e.TargetType, validation.Required, validation.Length(1, 32)),
	); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	if e.EventData == nil {
		e.EventData = JSONMap{}
	}

	return db.Create(e).Error
}

// FindEventsForTarget returns events about one entity, newest first.
func FindEventsForTarget(db *gorm.DB, targetType string, targetID uint, q EventQuery) ([]Event, error) {
	if err := validation.Validate(targetType, validation.Required); err != nil {
		return nil, fmt.Errorf("target type: %w", err)
	}

	return findEvents(
		db.Where("target_type = ? AND target_id = ?", targetType, targetID), q)
}

// FindEventsForActor returns events raised by one identity, newest first.
func FindEventsForActor(db *gorm.DB, actorID uint, q EventQuery) ([]Event, error) {
	return findEvents(db.Where("actor_id = ?", actorID), q)
}

func findEvents(tx *gorm.DB, q EventQuery) ([]Event, error) {
	limit, offset := normalizePage(q.Limit, q.Offset)

	if !q.IncludePrivate {
		tx = tx.Where("public = ?", true)
	}
	if !q.Since.IsZero() {
		tx = tx.Where("created_at >= ?", q.Since)
	}

	var events []Event
	err := tx.
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&events).Error

	return events, err
}

// CountEvents returns the number of stored events of the given type, or of
// all types when eventType is empty.
func CountEvents(db *gorm.DB, eventType string) (int64, error) {
	var count int64
	tx := db.Model(&Event{})
	if eventType != "" {
		tx = tx.Where("event_type = ?", eventType)
	}
	err := tx.Count(&count).Error
	return count, err
}
