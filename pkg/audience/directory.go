package audience

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/openforge/commons/pkg/models"
)

// Directory is the relationship-query surface audience strategies read
// from.
type Directory interface {
	// FindTarget fetches the entity an event is about.
	FindTarget(ctx context.Context, targetType string, id uint) (Entity, error)

	// Followers returns the users following any of ids.
	Followers(ctx context.Context, followableType string, ids []uint) ([]uint, error)

	// Collaborators returns the collaborators of any of projectIDs.
	Collaborators(ctx context.Context, projectIDs []uint) ([]uint, error)

	// CommentAuthors returns the authors of comments on any of ids.
	CommentAuthors(ctx context.Context, commentableType string, ids []uint) ([]uint, error)

	UsersByID(ctx context.Context, ids []uint) ([]Member, error)
	UsersByName(ctx context.Context, usernames []string) ([]Member, error)
	Admins(ctx context.Context) ([]Member, error)
}

// DBDirectory implements Directory with GORM.
type DBDirectory struct {
	db *gorm.DB
}

// NewDBDirectory returns a directory reading from db.
func NewDBDirectory(db *gorm.DB) *DBDirectory {
	return &DBDirectory{db: db}
}

func (d *DBDirectory) FindTarget(ctx context.Context, targetType string, id uint) (Entity, error) {
	db := d.db.WithContext(ctx)

	switch targetType {
	case models.KindUser:
		var u models.User
		if err := u.Get(db, id); err != nil {
			return nil, err
		}
		return &u, nil
	case models.KindProject:
		var p models.Project
		if err := p.Get(db, id); err != nil {
			return nil, err
		}
		return &p, nil
	case models.KindComment:
		var c models.Comment
		if err := c.Get(db, id); err != nil {
			return nil, err
		}
		return &c, nil
	default:
		return nil, fmt.Errorf("unsupported target type %q", targetType)
	}
}

func (d *DBDirectory) Followers(ctx context.Context, followableType string, ids []uint) ([]uint, error) {
	return models.FindFollowerIDs(d.db.WithContext(ctx), followableType, ids)
}

func (d *DBDirectory) Collaborators(ctx context.Context, projectIDs []uint) ([]uint, error) {
	return models.FindCollaboratorIDs(d.db.WithContext(ctx), projectIDs)
}

func (d *DBDirectory) CommentAuthors(ctx context.Context, commentableType string, ids []uint) ([]uint, error) {
	return models.FindCommentAuthorIDs(d.db.WithContext(ctx), commentableType, ids)
}

func (d *DBDirectory) UsersByID(ctx context.Context, ids []uint) ([]Member, error) {
	users, err := models.FindUsersByID(d.db.WithContext(ctx), ids)
	if err != nil {
		return nil, err
	}
	return usersToMembers(users), nil
}

func (d *DBDirectory) UsersByName(ctx context.Context, usernames []string) ([]Member, error) {
	users, err := models.FindUsersByUsername(d.db.WithContext(ctx), usernames)
	if err != nil {
		return nil, err
	}
	return usersToMembers(users), nil
}

func (d *DBDirectory) Admins(ctx context.Context) ([]Member, error) {
	users, err := models.FindAdmins(d.db.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	return usersToMembers(users), nil
}

func usersToMembers(users []models.User) []Member {
	out := make([]Member, 0, len(users))
	for _, u := range users {
		out = append(out, Member{UserID: u.ID, Username: u.Username})
	}
	return out
}

func idsToMembers(ids []uint) []Member {
	out := make([]Member, 0, len(ids))
	for _, id := range ids {
		out = append(out, Member{UserID: id})
	}
	return out
}
