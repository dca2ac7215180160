package models

import (
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gorm.io/gorm"
)

// Notification is a per-recipient delivery record created by fan-out. It is
// mutated only by read-state transitions and deleted only by its owner.
type Notification struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// UserID is the recipient.
	UserID uint `gorm:"not null;index:idx_notifications_user_read,priority:1" json:"userId"`

	// NotificationType is the integer key into the notification type registry.
	NotificationType int `gorm:"not null" json:"notificationType"`

	ActorID     *uint   `json:"actorId,omitempty"`
	TargetType  *string `gorm:"type:varchar(32)" json:"targetType,omitempty"`
	TargetID    *uint   `json:"targetId,omitempty"`
	RelatedType *string `gorm:"type:varchar(32)" json:"relatedType,omitempty"`
	RelatedID   *uint   `json:"relatedId,omitempty"`

	Data JSONMap `gorm:"type:jsonb;not null" json:"data"`

	HighPriority bool       `gorm:"not null" json:"highPriority"`
	Read         bool       `gorm:"not null;index:idx_notifications_user_read,priority:2" json:"read"`
	ReadAt       *time.Time `json:"readAt,omitempty"`

	CreatedAt time.Time `gorm:"index:idx_notifications_created" json:"createdAt"`
}

// TableName specifies the table name.
func (Notification) TableName() string {
	return "notifications"
}

// NotificationQuery pages through one user's notifications.
type NotificationQuery struct {
	UnreadOnly bool
	Limit      int
	Offset     int
}

// BeforeCreate keeps read_at consistent with read. Bulk read-state updates
// below always write both columns together.
func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.NotificationType == 0 {
		return errors.New("notification_type is required")
	}
	if n.Read && n.ReadAt == nil {
		now := time.Now()
		n.ReadAt = &now
	}
	if !n.Read {
		n.ReadAt = nil
	}
	if n.Data == nil {
		n.Data = JSONMap{}
	}
	return nil
}

// Create inserts the notification.
func (n *Notification) Create(db *gorm.DB) error {
	if err := validation.ValidateStruct(n,
		validation.Field(&n.UserID, validation.Required),
		validation.Field(&n.NotificationType, validation.Required),
	); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	return db.Create(n).Error
}

// ListNotifications returns a user's notifications, newest first.
func ListNotifications(db *gorm.DB, userID uint, q NotificationQuery) ([]Notification, error) {
	if err := validation.Validate(userID, validation.Required); err != nil {
		return nil, fmt.Errorf("user id: %w", err)
	}
	limit, offset := normalizePage(q.Limit, q.Offset)

	tx := db.Where("user_id = ?", userID)
	if q.UnreadOnly {
		tx = tx.Where("read = ?", false)
	}

	var notifications []Notification
	err := tx.
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&notifications).Error

	return notifications, err
}

// MarkNotificationsRead marks the given ids read for userID. Ids owned by
// other users are ignored. Returns the number of rows changed.
func MarkNotificationsRead(db *gorm.DB, userID uint, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	if err := validation.Validate(userID, validation.Required); err != nil {
		return 0, fmt.Errorf("user id: %w", err)
	}

	result := db.Model(&Notification{}).
		Where("user_id = ? AND id IN ? AND read = ?", userID, ids, false).
		Updates(map[string]interface{}{
			"read":    true,
			"read_at": time.Now(),
		})

	return result.RowsAffected, result.Error
}

// MarkAllNotificationsRead marks every unread notification of userID read.
func MarkAllNotificationsRead(db *gorm.DB, userID uint) (int64, error) {
	if err := validation.Validate(userID, validation.Required); err != nil {
		return 0, fmt.Errorf("user id: %w", err)
	}

	result := db.Model(&Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Updates(map[string]interface{}{
			"read":    true,
			"read_at": time.Now(),
		})

	return result.RowsAffected, result.Error
}

// DeleteNotifications removes the given ids owned by userID.
func DeleteNotifications(db *gorm.DB, userID uint, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	if err := validation.Validate(userID, validation.Required); err != nil {
		return 0, fmt.Errorf("user id: %w", err)
	}

	result := db.
		Where("user_id = ? AND id IN ?", userID, ids).
		Delete(&Notification{})

	return result.RowsAffected, result.Error
}

// CountUnreadNotifications returns the unread count for userID.
func CountUnreadNotifications(db *gorm.DB, userID uint) (int64, error) {
	var count int64
	err := db.Model(&Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Count(&count).Error

	return count, err
}
