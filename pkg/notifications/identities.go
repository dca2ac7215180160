package notifications

import (
	"context"

	"gorm.io/gorm"

	"github.com/openforge/commons/pkg/models"
)

// Actor is the display info of the identity that caused a notification.
type Actor struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Identities looks up actor display info. Missing ids are absent from the
// result.
type Identities interface {
	LookupActors(ctx context.Context, ids []uint) (map[uint]Actor, error)
}

// DBIdentities reads actors from the users table.
type DBIdentities struct {
	db *gorm.DB
}

// NewDBIdentities returns an identity lookup backed by db.
func NewDBIdentities(db *gorm.DB) *DBIdentities {
	return &DBIdentities{db: db}
}

// LookupActors implements Identities.
func (d *DBIdentities) LookupActors(ctx context.Context, ids []uint) (map[uint]Actor, error) {
	users, err := models.FindUsersByID(d.db.WithContext(ctx), ids)
	if err != nil {
		return nil, err
	}

	out := make(map[uint]Actor, len(users))
	for _, u := range users {
		out[u.ID] = ActorFromUser(u)
	}
	return out, nil
}

// ActorFromUser converts a user row. Name falls back to the username.
func ActorFromUser(u models.User) Actor {
	name := u.DisplayName
	if name == "" {
		name = u.Username
	}
	return Actor{
		ID:        u.ID,
		Name:      name,
		Username:  u.Username,
		AvatarURL: u.AvatarURL,
	}
}
