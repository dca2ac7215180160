package audience

import (
	"context"

	"github.com/openforge/commons/pkg/models"
)

// Payload fields read by the built-in strategies.
const (
	PayloadMentions = "mentions"
	PayloadUserID   = "user_id"
)

// DefaultStrategies returns the built-in strategies reading from dir.
func DefaultStrategies(dir Directory) []Strategy {
	return []Strategy{
		{
			Name: Owner,
			Target: &TargetLookup{
				Kinds:  []string{models.KindProject, models.KindComment},
				Fields: Entity.OwnerIDs,
			},
		},
		{
			Name: TargetUser,
			Target: &TargetLookup{
				Kinds:  []string{models.KindUser},
				Fields: Entity.OwnerIDs,
			},
		},
		{
			Name: OwnerFollowers,
			Query: &Query{
				Relation:  "follows",
				Filters:   []string{"followable_type = user"},
				DependsOn: &Dependency{Audience: Owner, Field: memberUserID},
				Lookup: func(ctx context.Context, _ Input, keys []uint) ([]Member, error) {
					ids, err := dir.Followers(ctx, models.KindUser, keys)
					return idsToMembers(ids), err
				},
			},
		},
		{
			Name: ProjectFollowers,
			Query: &Query{
				Relation: "follows",
				Filters:  []string{"followable_type = project"},
				Key:      targetIDOfKind(models.KindProject),
				Lookup: func(ctx context.Context, _ Input, keys []uint) ([]Member, error) {
					ids, err := dir.Followers(ctx, models.KindProject, keys)
					return idsToMembers(ids), err
				},
			},
		},
		{
			Name: ActorFollowers,
			Query: &Query{
				Relation: "follows",
				Filters:  []string{"followable_type = user"},
				Key:      actorID,
				Lookup: func(ctx context.Context, _ Input, keys []uint) ([]Member, error) {
					ids, err := dir.Followers(ctx, models.KindUser, keys)
					return idsToMembers(ids), err
				},
			},
		},
		{
			Name: Collaborators,
			Query: &Query{
				Relation: "project_collaborators",
				Key:      targetIDOfKind(models.KindProject),
				Lookup: func(ctx context.Context, _ Input, keys []uint) ([]Member, error) {
					ids, err := dir.Collaborators(ctx, keys)
					return idsToMembers(ids), err
				},
			},
		},
		{
			Name: ThreadParticipants,
			Query: &Query{
				Relation: "comments",
				Key:      targetID,
				Lookup: func(ctx context.Context, in Input, keys []uint) ([]Member, error) {
					ids, err := dir.CommentAuthors(ctx, in.Event.TargetType, keys)
					return idsToMembers(ids), err
				},
			},
		},
		{
			Name: Mentioned,
			Query: &Query{
				Relation: "users",
				Filters:  []string{"username in payload.mentions"},
				Lookup: func(ctx context.Context, in Input, _ []uint) ([]Member, error) {
					names := in.Payload.Strings(PayloadMentions)
					if len(names) == 0 {
						return nil, nil
					}
					return dir.UsersByName(ctx, names)
				},
			},
		},
		{
			Name: Invitee,
			Query: &Query{
				Relation: "users",
				Key: func(in Input) []uint {
					if id, ok := in.Payload.Uint(PayloadUserID); ok && id != 0 {
						return []uint{id}
					}
					return nil
				},
				Lookup: func(ctx context.Context, _ Input, keys []uint) ([]Member, error) {
					return dir.UsersByID(ctx, keys)
				},
			},
		},
		{
			Name: Admins,
			Query: &Query{
				Relation: "users",
				Filters:  []string{"is_admin = true"},
				Lookup: func(ctx context.Context, _ Input, _ []uint) ([]Member, error) {
					return dir.Admins(ctx)
				},
			},
		},
	}
}

// DefaultTable returns the table of built-in strategies. It panics if the
// built-in table is inconsistent.
func DefaultTable(dir Directory) *Table {
	t, err := NewTable(DefaultStrategies(dir)...)
	if err != nil {
		panic("audience: invalid default table: " + err.Error())
	}
	return t
}

func memberUserID(m Member) uint {
	return m.UserID
}

func actorID(in Input) []uint {
	return []uint{in.Event.ActorID}
}

func targetID(in Input) []uint {
	return []uint{in.Event.TargetID}
}

func targetIDOfKind(kind string) func(Input) []uint {
	return func(in Input) []uint {
		if in.Event.TargetType != kind {
			return nil
		}
		return []uint{in.Event.TargetID}
	}
}
