package audience

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openforge/commons/pkg/models"
)

type ownedEntity struct {
	owners []uint
}

func (e ownedEntity) OwnerIDs() []uint { return e.owners }

// fakeDirectory serves relationship queries from maps.
type fakeDirectory struct {
	targets     map[string]map[uint]Entity
	followers   map[string]map[uint][]uint
	collabs     map[uint][]uint
	authors     map[uint][]uint
	users       map[uint]string
	admins      []uint
	failFollows bool
	panicCollab bool

	targetFetches atomic.Int32
	followerCalls atomic.Int32
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		targets:   map[string]map[uint]Entity{},
		followers: map[string]map[uint][]uint{},
		collabs:   map[uint][]uint{},
		authors:   map[uint][]uint{},
		users:     map[uint]string{},
	}
}

func (f *fakeDirectory) FindTarget(_ context.Context, targetType string, id uint) (Entity, error) {
	f.targetFetches.Add(1)
	if e, ok := f.targets[targetType][id]; ok {
		return e, nil
	}
	return nil, errors.New("not found")
}

func (f *fakeDirectory) Followers(_ context.Context, followableType string, ids []uint) ([]uint, error) {
	f.followerCalls.Add(1)
	if f.failFollows {
		return nil, errors.New("follows table unavailable")
	}
	var out []uint
	for _, id := range ids {
		out = append(out, f.followers[followableType][id]...)
	}
	return out, nil
}

func (f *fakeDirectory) Collaborators(_ context.Context, projectIDs []uint) ([]uint, error) {
	if f.panicCollab {
		panic("collaborators exploded")
	}
	var out []uint
	for _, id := range projectIDs {
		out = append(out, f.collabs[id]...)
	}
	return out, nil
}

func (f *fakeDirectory) CommentAuthors(_ context.Context, _ string, ids []uint) ([]uint, error) {
	var out []uint
	for _, id := range ids {
		out = append(out, f.authors[id]...)
	}
	return out, nil
}

func (f *fakeDirectory) UsersByID(_ context.Context, ids []uint) ([]Member, error) {
	var out []Member
	for _, id := range ids {
		if name, ok := f.users[id]; ok {
			out = append(out, Member{UserID: id, Username: name})
		}
	}
	return out, nil
}

func (f *fakeDirectory) UsersByName(_ context.Context, names []string) ([]Member, error) {
	var out []Member
	for id, name := range f.users {
		for _, n := range names {
			if n == name {
				out = append(out, Member{UserID: id, Username: name})
			}
		}
	}
	return out, nil
}

func (f *fakeDirectory) Admins(_ context.Context) ([]Member, error) {
	return f.UsersByID(context.Background(), f.admins)
}

func newTestResolver(t *testing.T, dir Directory) *Resolver {
	t.Helper()
	r, err := NewResolver(ResolverConfig{Table: DefaultTable(dir), Directory: dir})
	require.NoError(t, err)
	return r
}

func projectEvent(actor, project uint) Input {
	return Input{
		Event: &models.Event{
			ID:         1,
			EventType:  "project_star",
			ActorID:    actor,
			TargetType: models.KindProject,
			TargetID:   project,
		},
		Payload: models.JSONMap{},
	}
}

func TestResolve_OwnerFollowers(t *testing.T) {
	dir := newFakeDirectory()
	dir.targets[models.KindProject] = map[uint]Entity{42: ownedEntity{owners: []uint{3}}}
	dir.followers[models.KindUser] = map[uint][]uint{3: {5, 9}}

	r := newTestResolver(t, dir)
	got, err := r.Resolve(context.Background(), projectEvent(7, 42),
		[]Name{Owner, OwnerFollowers, ProjectFollowers})
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, []uint{3}, got[Owner].Slice())
	assert.Equal(t, []uint{5, 9}, got[OwnerFollowers].Slice())
	assert.Empty(t, got[ProjectFollowers])
	assert.Equal(t, int32(1), dir.targetFetches.Load(), "target fetched once")
}

func TestResolve_PrerequisiteNotRequested(t *testing.T) {
	dir := newFakeDirectory()
	dir.targets[models.KindProject] = map[uint]Entity{42: ownedEntity{owners: []uint{3}}}
	dir.followers[models.KindUser] = map[uint][]uint{3: {5}}

	r := newTestResolver(t, dir)
	got, err := r.Resolve(context.Background(), projectEvent(7, 42), []Name{OwnerFollowers})
	require.NoError(t, err)

	assert.Equal(t, map[Name]Set{OwnerFollowers: NewSet(5)}, got)
}

func TestResolve_EmptyPrerequisite(t *testing.T) {
	dir := newFakeDirectory()
	dir.targets[models.KindProject] = map[uint]Entity{42: ownedEntity{}}
	dir.followers[models.KindUser] = map[uint][]uint{0: {5}}

	r := newTestResolver(t, dir)
	got, err := r.Resolve(context.Background(), projectEvent(7, 42), []Name{Owner, OwnerFollowers})
	require.NoError(t, err)

	assert.Empty(t, got[Owner])
	assert.Empty(t, got[OwnerFollowers])
	assert.Equal(t, int32(0), dir.followerCalls.Load(), "dependent lookup skipped")
}

func TestResolve_FailureIsolation(t *testing.T) {
	dir := newFakeDirectory()
	dir.targets[models.KindProject] = map[uint]Entity{42: ownedEntity{owners: []uint{3}}}
	dir.failFollows = true
	dir.panicCollab = true

	r := newTestResolver(t, dir)
	got, err := r.Resolve(context.Background(), projectEvent(7, 42),
		[]Name{Owner, ProjectFollowers, Collaborators})
	require.Error(t, err)

	assert.Equal(t, []uint{3}, got[Owner].Slice())
	assert.Empty(t, got[ProjectFollowers])
	assert.Empty(t, got[Collaborators])

	var lookupErr *LookupError
	require.ErrorAs(t, err, &lookupErr)
	assert.Contains(t, err.Error(), string(ProjectFollowers))
	assert.Contains(t, err.Error(), "panic")
}

func TestResolve_MissingTarget(t *testing.T) {
	dir := newFakeDirectory()
	dir.followers[models.KindProject] = map[uint][]uint{42: {8}}

	r := newTestResolver(t, dir)
	got, err := r.Resolve(context.Background(), projectEvent(7, 42),
		[]Name{Owner, OwnerFollowers, ProjectFollowers})
	require.Error(t, err)

	assert.Empty(t, got[Owner])
	assert.Empty(t, got[OwnerFollowers])
	assert.Equal(t, []uint{8}, got[ProjectFollowers].Slice())
}

func TestResolve_UnknownName(t *testing.T) {
	r := newTestResolver(t, newFakeDirectory())

	got, err := r.Resolve(context.Background(), projectEvent(7, 42), []Name{"nobody"})
	require.Error(t, err)
	assert.Equal(t, map[Name]Set{"nobody": {}}, got)
}

func TestResolve_PayloadStrategies(t *testing.T) {
	dir := newFakeDirectory()
	dir.users = map[uint]string{1: "alice", 2: "bob", 4: "root"}
	dir.admins = []uint{4}
	dir.authors = map[uint][]uint{42: {1, 2, 1}}

	in := projectEvent(7, 42)
	in.Payload = models.JSONMap{
		PayloadMentions: []any{"alice", "ghost"},
		PayloadUserID:   float64(2),
	}

	r := newTestResolver(t, dir)
	got, err := r.Resolve(context.Background(), in,
		[]Name{Mentioned, Invitee, Admins, ThreadParticipants, TargetUser})
	require.NoError(t, err)

	assert.Equal(t, []uint{1}, got[Mentioned].Slice())
	assert.Equal(t, []uint{2}, got[Invitee].Slice())
	assert.Equal(t, []uint{4}, got[Admins].Slice())
	assert.Equal(t, []uint{1, 2}, got[ThreadParticipants].Slice())
	assert.Empty(t, got[TargetUser], "target is not a user")
}

func TestNewTable(t *testing.T) {
	lookup := func(context.Context, Input, []uint) ([]Member, error) { return nil, nil }

	tests := []struct {
		name       string
		strategies []Strategy
		wantErr    string
	}{
		{
			name:       "neither kind",
			strategies: []Strategy{{Name: "a"}},
			wantErr:    "neither",
		},
		{
			name: "both kinds",
			strategies: []Strategy{{
				Name:   "a",
				Target: &TargetLookup{Kinds: []string{"user"}, Fields: Entity.OwnerIDs},
				Query:  &Query{Lookup: lookup},
			}},
			wantErr: "both",
		},
		{
			name: "unknown prerequisite",
			strategies: []Strategy{{
				Name:  "a",
				Query: &Query{Lookup: lookup, DependsOn: &Dependency{Audience: "b", Field: memberUserID}},
			}},
			wantErr: "unknown strategy",
		},
		{
			name: "cycle",
			strategies: []Strategy{
				{Name: "a", Query: &Query{Lookup: lookup, DependsOn: &Dependency{Audience: "b", Field: memberUserID}}},
				{Name: "b", Query: &Query{Lookup: lookup, DependsOn: &Dependency{Audience: "a", Field: memberUserID}}},
			},
			wantErr: "cycle",
		},
		{
			name: "duplicate",
			strategies: []Strategy{
				{Name: "a", Query: &Query{Lookup: lookup}},
				{Name: "a", Query: &Query{Lookup: lookup}},
			},
			wantErr: "duplicate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTable(tt.strategies...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("default table is valid", func(t *testing.T) {
		table := DefaultTable(newFakeDirectory())
		for _, name := range Names() {
			assert.True(t, table.Has(name), name)
		}
	})
}
