package audience

import (
	"context"
	"fmt"
	"strings"

	"github.com/openforge/commons/pkg/models"
)

// Entity is a target entity that can name the identities owning it.
type Entity interface {
	OwnerIDs() []uint
}

// Member is one resolved recipient.
type Member struct {
	UserID   uint
	Username string
}

// Input is the event being resolved together with its validated payload.
type Input struct {
	Event   *models.Event
	Payload models.JSONMap
}

// TargetLookup reads recipients directly off the event's target entity.
type TargetLookup struct {
	// Kinds lists the target types this lookup applies to. Events about
	// any other kind resolve to nobody.
	Kinds []string

	// Fields projects user ids off the fetched entity.
	Fields func(Entity) []uint
}

func (t *TargetLookup) applies(kind string) bool {
	for _, k := range t.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Query resolves recipients through a relationship lookup.
type Query struct {
	// Relation names the relation queried, for logging.
	Relation string

	// Filters describes static filters the lookup applies, for logging.
	Filters []string

	// Key derives the filter values from the event when the query has no
	// prerequisite. A nil Key means the lookup takes no key.
	Key func(Input) []uint

	// DependsOn makes the query wait for another strategy and use values
	// projected off its members as keys.
	DependsOn *Dependency

	Lookup func(ctx context.Context, in Input, keys []uint) ([]Member, error)
}

// Dependency names a prerequisite strategy and the field read off each of
// its members.
type Dependency struct {
	Audience Name
	Field    func(Member) uint
}

// Strategy is a named rule for deriving recipients from an event. Exactly
// one of Target or Query is set.
type Strategy struct {
	Name   Name
	Target *TargetLookup
	Query  *Query
}

func (s Strategy) prerequisite() (Name, bool) {
	if s.Query != nil && s.Query.DependsOn != nil {
		return s.Query.DependsOn.Audience, true
	}
	return "", false
}

// Table is the immutable audience dependency table.
type Table struct {
	strategies map[Name]Strategy
}

// NewTable validates strategies and builds a table.
func NewTable(strategies ...Strategy) (*Table, error) {
	t := &Table{strategies: make(map[Name]Strategy, len(strategies))}

	for _, s := range strategies {
		if s.Name == "" {
			return nil, fmt.Errorf("strategy name is required")
		}
		if _, dup := t.strategies[s.Name]; dup {
			return nil, fmt.Errorf("duplicate strategy %q", s.Name)
		}
		switch {
		case s.Target != nil && s.Query != nil:
			return nil, fmt.Errorf("strategy %q sets both target and query", s.Name)
		case s.Target == nil && s.Query == nil:
			return nil, fmt.Errorf("strategy %q sets neither target nor query", s.Name)
		case s.Target != nil && (s.Target.Fields == nil || len(s.Target.Kinds) == 0):
			return nil, fmt.Errorf("strategy %q: target lookup needs kinds and fields", s.Name)
		case s.Query != nil && s.Query.Lookup == nil:
			return nil, fmt.Errorf("strategy %q: query lookup is required", s.Name)
		case s.Query != nil && s.Query.DependsOn != nil && s.Query.DependsOn.Field == nil:
			return nil, fmt.Errorf("strategy %q: dependency field is required", s.Name)
		}
		t.strategies[s.Name] = s
	}

	for name, s := range t.strategies {
		dep, ok := s.prerequisite()
		if !ok {
			continue
		}
		if _, exists := t.strategies[dep]; !exists {
			return nil, fmt.Errorf("strategy %q depends on unknown strategy %q", name, dep)
		}
		if path := t.cycleFrom(name); path != nil {
			return nil, fmt.Errorf("dependency cycle: %s", strings.Join(path, " -> "))
		}
	}

	return t, nil
}

// cycleFrom follows prerequisites from start and returns the path when it
// returns to a strategy already visited.
func (t *Table) cycleFrom(start Name) []string {
	seen := map[Name]bool{}
	path := []string{}
	for cur := start; ; {
		path = append(path, string(cur))
		if seen[cur] {
			return path
		}
		seen[cur] = true

		dep, ok := t.strategies[cur].prerequisite()
		if !ok {
			return nil
		}
		cur = dep
	}
}

// Lookup returns the strategy registered under name.
func (t *Table) Lookup(name Name) (Strategy, bool) {
	s, ok := t.strategies[name]
	return s, ok
}

// Has reports whether name is registered.
func (t *Table) Has(name Name) bool {
	_, ok := t.strategies[name]
	return ok
}

// closure returns names plus every transitive prerequisite. Unknown names
// are skipped.
func (t *Table) closure(names []Name) []Name {
	seen := map[Name]bool{}
	var out []Name
	for _, n := range names {
		for cur := n; ; {
			s, ok := t.strategies[cur]
			if !ok || seen[cur] {
				break
			}
			seen[cur] = true
			out = append(out, cur)

			dep, ok := s.prerequisite()
			if !ok {
				break
			}
			cur = dep
		}
	}
	return out
}
