package notifications

import (
	"errors"
	"fmt"
	"sort"
)

// TypeID is the integer key of a notification type.
type TypeID int

const (
	ProjectStarred    TypeID = 1
	ProjectForked     TypeID = 2
	ProjectCommented  TypeID = 3
	CommentReplied    TypeID = 4
	UserFollowed      TypeID = 5
	CollaboratorAdded TypeID = 6
	ProjectUpdated    TypeID = 7
	ProjectCreated    TypeID = 8
	ContentReported   TypeID = 9
)

// ErrUnknownType is returned for a notification type id missing from the
// registry.
var ErrUnknownType = errors.New("unknown notification type")

// Priority ranks how prominently a notification is shown.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

// High reports whether the priority sets the high_priority flag.
func (p Priority) High() bool {
	return p >= PriorityHigh
}

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// MarshalYAML renders the priority by name.
func (p Priority) MarshalYAML() (interface{}, error) {
	return p.String(), nil
}

// RedirectStrategy selects how a notification's client redirect is built.
type RedirectStrategy string

const (
	// RedirectFixed uses a fixed entity type and an id read from the data bag.
	RedirectFixed RedirectStrategy = "fixed"

	// RedirectDynamic reads both the entity type and the id from the data bag.
	RedirectDynamic RedirectStrategy = "dynamic"

	// RedirectCustomURL uses a literal URL stored in the data bag.
	RedirectCustomURL RedirectStrategy = "custom_url"
)

// Redirect declares how to build a client redirect from a data bag.
type Redirect struct {
	Strategy RedirectStrategy `yaml:"strategy"`

	// Fixed
	Type       string    `yaml:"type,omitempty"`
	IDField    string    `yaml:"id_field,omitempty"`
	SubIDField string    `yaml:"sub_id_field,omitempty"`
	Alternate  *Redirect `yaml:"alternate,omitempty"`

	// Dynamic
	TypeField string `yaml:"type_field,omitempty"`

	// Custom URL
	URLField string `yaml:"url_field,omitempty"`
}

// Template holds the text shown for a notification. Placeholders use
// {{field}} syntax.
type Template struct {
	Title string `yaml:"title"`
	Body  string `yaml:"body"`
}

// Type is a notification type registry entry.
type Type struct {
	ID       TypeID   `yaml:"id"`
	Name     string   `yaml:"name"`
	Priority Priority `yaml:"priority"`
	Redirect Redirect `yaml:"redirect"`
	Template Template `yaml:"template"`
}

// TypeRegistry is the immutable notification type registry.
type TypeRegistry struct {
	types map[TypeID]Type
}

// NewTypeRegistry validates types and builds a registry.
func NewTypeRegistry(types ...Type) (*TypeRegistry, error) {
	r := &TypeRegistry{types: make(map[TypeID]Type, len(types))}
	for _, t := range types {
		if t.ID <= 0 {
			return nil, fmt.Errorf("notification type %q: id must be positive", t.Name)
		}
		if _, dup := r.types[t.ID]; dup {
			return nil, fmt.Errorf("duplicate notification type id %d", t.ID)
		}
		if err := t.Redirect.validate(); err != nil {
			return nil, fmt.Errorf("notification type %d: %w", t.ID, err)
		}
		r.types[t.ID] = t
	}
	return r, nil
}

func (r Redirect) validate() error {
	switch r.Strategy {
	case RedirectFixed:
		if r.Type == "" || r.IDField == "" {
			return errors.New("fixed redirect needs type and id field")
		}
	case RedirectDynamic:
		if r.TypeField == "" || r.IDField == "" {
			return errors.New("dynamic redirect needs type and id fields")
		}
	case RedirectCustomURL:
		if r.URLField == "" {
			return errors.New("custom url redirect needs a url field")
		}
	default:
		return fmt.Errorf("unknown redirect strategy %q", r.Strategy)
	}
	if r.Alternate != nil {
		if r.Alternate.Strategy != RedirectFixed {
			return errors.New("alternate redirect must be fixed")
		}
		return r.Alternate.validate()
	}
	return nil
}

// Lookup returns the type registered under id.
func (r *TypeRegistry) Lookup(id TypeID) (Type, bool) {
	t, ok := r.types[id]
	return t, ok
}

// Has reports whether id is registered.
func (r *TypeRegistry) Has(id TypeID) bool {
	_, ok := r.types[id]
	return ok
}

// All returns every registered type ordered by id.
func (r *TypeRegistry) All() []Type {
	out := make([]Type, 0, len(r.types))
	for _, t := range r.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DefaultTypes returns the built-in notification types.
func DefaultTypes() *TypeRegistry {
	r, err := NewTypeRegistry(
		Type{
			ID:       ProjectStarred,
			Name:     "project_starred",
			Priority: PriorityNormal,
			Redirect: Redirect{Strategy: RedirectFixed, Type: "project", IDField: "target_id"},
			Template: Template{
				Title: "New star",
				Body:  "{{actor_name}} starred {{project_title}}",
			},
		},
		Type{
			ID:       ProjectForked,
			Name:     "project_forked",
			Priority: PriorityNormal,
			Redirect: Redirect{
				Strategy:  RedirectFixed,
				Type:      "project",
				IDField:   "fork_id",
				Alternate: &Redirect{Strategy: RedirectFixed, Type: "project", IDField: "target_id"},
			},
			Template: Template{
				Title: "Project forked",
				Body:  "{{actor_name}} forked {{project_title}} as {{fork_title}}",
			},
		},
		Type{
			ID:       ProjectCommented,
			Name:     "project_commented",
			Priority: PriorityNormal,
			Redirect: Redirect{Strategy: RedirectFixed, Type: "project", IDField: "target_id", SubIDField: "comment_id"},
			Template: Template{
				Title: "New comment on {{project_title}}",
				Body:  "{{actor_name}}: {{comment_text}}",
			},
		},
		Type{
			ID:       CommentReplied,
			Name:     "comment_replied",
			Priority: PriorityNormal,
			Redirect: Redirect{Strategy: RedirectDynamic, TypeField: "context_type", IDField: "context_id"},
			Template: Template{
				Title: "New reply",
				Body:  "{{actor_name}} replied: {{comment_text}}",
			},
		},
		Type{
			ID:       UserFollowed,
			Name:     "user_followed",
			Priority: PriorityLow,
			Redirect: Redirect{Strategy: RedirectFixed, Type: "user", IDField: "actor_id"},
			Template: Template{
				Title: "New follower",
				Body:  "{{actor_name}} (@{{actor_username}}) started following you",
			},
		},
		Type{
			ID:       CollaboratorAdded,
			Name:     "collaborator_added",
			Priority: PriorityHigh,
			Redirect: Redirect{Strategy: RedirectFixed, Type: "project", IDField: "target_id"},
			Template: Template{
				Title: "You were added to {{project_title}}",
				Body:  "{{actor_name}} added you to {{project_title}} as {{role}}",
			},
		},
		Type{
			ID:       ProjectUpdated,
			Name:     "project_updated",
			Priority: PriorityLow,
			Redirect: Redirect{Strategy: RedirectFixed, Type: "project", IDField: "target_id"},
			Template: Template{
				Title: "{{project_title}} was updated",
				Body:  "{{actor_name}} updated {{project_title}}. {{update_summary}}",
			},
		},
		Type{
			ID:       ProjectCreated,
			Name:     "project_created",
			Priority: PriorityLow,
			Redirect: Redirect{Strategy: RedirectFixed, Type: "project", IDField: "target_id"},
			Template: Template{
				Title: "New project",
				Body:  "{{actor_name}} published {{project_title}}",
			},
		},
		Type{
			ID:       ContentReported,
			Name:     "content_reported",
			Priority: PriorityUrgent,
			Redirect: Redirect{Strategy: RedirectCustomURL, URLField: "report_url"},
			Template: Template{
				Title: "Content reported",
				Body:  "{{actor_name}} reported content: {{reason}}",
			},
		},
	)
	if err != nil {
		panic("notifications: invalid default types: " + err.Error())
	}
	return r
}
