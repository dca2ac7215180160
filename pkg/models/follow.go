package models

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Follow records that FollowerID follows a user or a project.
type Follow struct {
	ID uint `gorm:"primaryKey" json:"id"`

	FollowerID     uint   `gorm:"not null;uniqueIndex:idx_follow_pair,priority:1" json:"followerId"`
	FollowableType string `gorm:"type:varchar(32);not null;uniqueIndex:idx_follow_pair,priority:2;index:idx_follow_followable,priority:1" json:"followableType"`
	FollowableID   uint   `gorm:"not null;uniqueIndex:idx_follow_pair,priority:3;index:idx_follow_followable,priority:2" json:"followableId"`

	CreatedAt time.Time `json:"createdAt"`
}

// TableName specifies the table name.
func (Follow) TableName() string {
	return "follows"
}

// ErrFollowSelf is returned when a user tries to follow themselves.
var ErrFollowSelf = fmt.Errorf("cannot follow yourself")

// Create records the follow. Following twice is a no-op.
func (f *Follow) Create(db *gorm.DB) error {
	if err := validation.ValidateStruct(f,
		validation.Field(&f.FollowerID, validation.Required),
		validation.Field(&f.FollowableType, validation.Required, validation.In(KindUser, KindProject)),
		validation.Field(&f.FollowableID, validation.Required),
	); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	if f.FollowableType == KindUser && f.FollowableID == f.FollowerID {
		return ErrFollowSelf
	}

	return db.
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(f).Error
}

// FindFollowerIDs returns the ids of users following any of the given
// entities of followableType.
func FindFollowerIDs(db *gorm.DB, followableType string, ids []uint) ([]uint, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var followers []uint
	err := db.Model(&Follow{}).
		Where("followable_type = ? AND followable_id IN ?", followableType, ids).
		Distinct().
		Pluck("follower_id", &followers).Error
	return followers, err
}
