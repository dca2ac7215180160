package audience

import "sort"

// Name identifies an audience strategy.
type Name string

const (
	// Owner is the author of the event's target project or comment.
	Owner Name = "owner"

	// TargetUser is the user the event is about, e.g. the followed user.
	TargetUser Name = "target_user"

	// OwnerFollowers are the followers of the target's owner. Resolved after
	// Owner.
	OwnerFollowers Name = "owner_followers"

	ProjectFollowers   Name = "project_followers"
	ActorFollowers     Name = "actor_followers"
	Collaborators      Name = "collaborators"
	ThreadParticipants Name = "thread_participants"
	Mentioned          Name = "mentioned"
	Invitee            Name = "invitee"
	Admins             Name = "admins"
)

var known = map[Name]struct{}{
	Owner:              {},
	TargetUser:         {},
	OwnerFollowers:     {},
	ProjectFollowers:   {},
	ActorFollowers:     {},
	Collaborators:      {},
	ThreadParticipants: {},
	Mentioned:          {},
	Invitee:            {},
	Admins:             {},
}

// IsKnown reports whether name is one of the built-in strategies.
func IsKnown(name Name) bool {
	_, ok := known[name]
	return ok
}

// Names returns the built-in strategy names in lexical order.
func Names() []Name {
	out := make([]Name, 0, len(known))
	for n := range known {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Set is a deduplicated set of recipient user ids.
type Set map[uint]struct{}

// NewSet returns a set holding ids.
func NewSet(ids ...uint) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add inserts id. Zero is never a valid user id and is dropped.
func (s Set) Add(id uint) {
	if id != 0 {
		s[id] = struct{}{}
	}
}

// Has reports whether id is in the set.
func (s Set) Has(id uint) bool {
	_, ok := s[id]
	return ok
}

// Slice returns the ids in ascending order.
func (s Set) Slice() []uint {
	out := make([]uint, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Union returns the union of sets.
func Union(sets ...Set) Set {
	out := Set{}
	for _, s := range sets {
		for id := range s {
			out.Add(id)
		}
	}
	return out
}
