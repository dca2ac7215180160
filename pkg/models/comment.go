package models

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gorm.io/gorm"
)

// Comment is attached to a commentable entity: a project, or another
// comment when it is a reply.
type Comment struct {
	ID uint `gorm:"primaryKey" json:"id"`

	AuthorID        uint   `gorm:"not null;index" json:"authorId"`
	CommentableType string `gorm:"type:varchar(32);not null;index:idx_comment_commentable,priority:1" json:"commentableType"`
	CommentableID   uint   `gorm:"not null;index:idx_comment_commentable,priority:2" json:"commentableId"`
	Body            string `gorm:"type:text;not null" json:"body"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// OwnerIDs reports the comment author.
func (c *Comment) OwnerIDs() []uint {
	return []uint{c.AuthorID}
}

// Create creates a new comment in the database.
func (c *Comment) Create(db *gorm.DB) error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.AuthorID, validation.Required),
		validation.Field(&c.CommentableType, validation.Required, validation.In(KindProject, KindComment)),
		validation.Field(&c.CommentableID, validation.Required),
		validation.Field(&c.Body, validation.Required),
	); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	return db.Create(c).Error
}

// Get retrieves a comment by ID.
func (c *Comment) Get(db *gorm.DB, id uint) error {
	if err := validation.Validate(id, validation.Required); err != nil {
		return err
	}

	return db.First(c, id).Error
}

// FindCommentAuthorIDs returns the distinct authors of comments attached to
// any of the given entities.
func FindCommentAuthorIDs(db *gorm.DB, commentableType string, ids []uint) ([]uint, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var authors []uint
	err := db.Model(&Comment{}).
		Where("commentable_type = ? AND commentable_id IN ?", commentableType, ids).
		Distinct().
		Pluck("author_id", &authors).Error
	return authors, err
}
