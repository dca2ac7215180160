package models

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Project is a hosted project.
type Project struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// AuthorID is the owning user.
	AuthorID uint   `gorm:"not null;index" json:"authorId"`
	Title    string `gorm:"type:varchar(255);not null" json:"title"`

	// ForkedFromID is set on forks.
	ForkedFromID *uint `gorm:"index" json:"forkedFromId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// OwnerIDs reports the project author.
func (p *Project) OwnerIDs() []uint {
	return []uint{p.AuthorID}
}

// Create creates a new project in the database.
func (p *Project) Create(db *gorm.DB) error {
	if err := validation.ValidateStruct(p,
		validation.Field(&p.AuthorID, validation.Required),
		validation.Field(&p.Title, validation.Required, validation.Length(1, 255)),
	); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	return db.Create(p).Error
}

// Get retrieves a project by ID.
func (p *Project) Get(db *gorm.DB, id uint) error {
	if err := validation.Validate(id, validation.Required); err != nil {
		return err
	}

	return db.First(p, id).Error
}

// ProjectCollaborator grants a user access to a project.
type ProjectCollaborator struct {
	ID uint `gorm:"primaryKey" json:"id"`

	ProjectID uint   `gorm:"not null;uniqueIndex:idx_collaborator_pair,priority:1" json:"projectId"`
	UserID    uint   `gorm:"not null;uniqueIndex:idx_collaborator_pair,priority:2;index" json:"userId"`
	Role      string `gorm:"type:varchar(32);not null" json:"role"`

	CreatedAt time.Time `json:"createdAt"`
}

// Collaborator roles.
const (
	RoleEditor     = "editor"
	RoleMaintainer = "maintainer"
)

// Create adds the collaborator. Adding an existing pair is a no-op.
func (c *ProjectCollaborator) Create(db *gorm.DB) error {
	if c.Role == "" {
		c.Role = RoleEditor
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.ProjectID, validation.Required),
		validation.Field(&c.UserID, validation.Required),
		validation.Field(&c.Role, validation.In(RoleEditor, RoleMaintainer)),
	); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	return db.
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(c).Error
}

// FindCollaboratorIDs returns the user ids collaborating on any of projectIDs.
func FindCollaboratorIDs(db *gorm.DB, projectIDs []uint) ([]uint, error) {
	if len(projectIDs) == 0 {
		return nil, nil
	}

	var ids []uint
	err := db.Model(&ProjectCollaborator{}).
		Where("project_id IN ?", projectIDs).
		Distinct().
		Pluck("user_id", &ids).Error
	return ids, err
}
