package models

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gorm.io/gorm"
)

// User is a platform identity. The pipeline reads it for recipient lookups
// and actor display info.
type User struct {
	ID uint `gorm:"primaryKey" json:"id"`

	Username    string `gorm:"type:varchar(64);uniqueIndex;not null" json:"username"`
	DisplayName string `gorm:"type:varchar(128)" json:"displayName"`
	AvatarURL   string `gorm:"type:varchar(512)" json:"avatarUrl"`

	IsAdmin     bool       `gorm:"not null;index" json:"isAdmin"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// OwnerIDs reports the user itself as the owning identity.
func (u *User) OwnerIDs() []uint {
	return []uint{u.ID}
}

// Create creates a new user in the database.
func (u *User) Create(db *gorm.DB) error {
	if err := validation.ValidateStruct(u,
		validation.Field(&u.Username, validation.Required, validation.Length(1, 64)),
	); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	return db.Create(u).Error
}

// Get retrieves a user by ID.
func (u *User) Get(db *gorm.DB, id uint) error {
	if err := validation.Validate(id, validation.Required); err != nil {
		return err
	}

	return db.First(u, id).Error
}

// UpdateLastLogin records a login time.
func (u *User) UpdateLastLogin(db *gorm.DB, at time.Time) error {
	if err := validation.Validate(u.ID, validation.Required); err != nil {
		return err
	}
	u.LastLoginAt = &at

	return db.Model(u).Update("last_login_at", at).Error
}

// FindUsersByID returns the users with the given ids. Unknown ids are skipped.
func FindUsersByID(db *gorm.DB, ids []uint) ([]User, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var users []User
	err := db.Where("id IN ?", ids).Find(&users).Error
	return users, err
}

// FindUsersByUsername returns the users with the given usernames.
func FindUsersByUsername(db *gorm.DB, usernames []string) ([]User, error) {
	if len(usernames) == 0 {
		return nil, nil
	}

	var users []User
	err := db.Where("username IN ?", usernames).Find(&users).Error
	return users, err
}

// FindAdmins returns every administrator.
func FindAdmins(db *gorm.DB) ([]User, error) {
	var users []User
	err := db.Where("is_admin = ?", true).Order("id ASC").Find(&users).Error
	return users, err
}
