package events

import (
	"errors"
	"fmt"
	"sort"

	"github.com/openforge/commons/pkg/audience"
	"github.com/openforge/commons/pkg/notifications"
)

// Related names the secondary reference stored on notifications, e.g. the
// comment inside a project.
type Related struct {
	Type    string `yaml:"type"`
	IDField string `yaml:"id_field"`
}

// Entry is one event type registry entry.
type Entry struct {
	Key    Key     `yaml:"key"`
	Schema *Schema `yaml:"-"`

	// LogToDatabase is false for ephemeral events that only trigger hooks.
	LogToDatabase bool `yaml:"log_to_database"`

	// Public is the default timeline visibility.
	Public bool `yaml:"public"`

	// NotifyTargets lists the audience strategies to notify, in order.
	NotifyTargets []audience.Name `yaml:"notify_targets,omitempty"`

	// NotificationType is zero for event types that notify nobody.
	NotificationType notifications.TypeID `yaml:"notification_type,omitempty"`

	// DataFields are copied from the payload into the notification data bag.
	DataFields []string `yaml:"data_fields,omitempty"`

	Related *Related `yaml:"related,omitempty"`

	// ExcludeActor drops the actor from the recipients. The built-in types
	// leave it off, so fan-out reaches every member of the audience union.
	ExcludeActor bool `yaml:"exclude_actor"`
}

// Notifies reports whether events of this type fan out notifications.
func (e Entry) Notifies() bool {
	return len(e.NotifyTargets) > 0 && e.NotificationType != 0
}

// Registry is the immutable event type registry.
type Registry struct {
	entries map[Key]Entry
	types   *notifications.TypeRegistry
}

// NewRegistry validates entries against the notification type registry and
// the built-in audience strategies.
func NewRegistry(types *notifications.TypeRegistry, entries ...Entry) (*Registry, error) {
	if types == nil {
		return nil, errors.New("notification type registry is required")
	}

	r := &Registry{entries: make(map[Key]Entry, len(entries)), types: types}
	for _, e := range entries {
		if e.Key == "" || Normalize(string(e.Key)) != e.Key {
			return nil, fmt.Errorf("event key %q is not canonical", e.Key)
		}
		if _, dup := r.entries[e.Key]; dup {
			return nil, fmt.Errorf("duplicate event type %q", e.Key)
		}
		if e.Schema == nil {
			return nil, fmt.Errorf("event type %q has no schema", e.Key)
		}
		for _, target := range e.NotifyTargets {
			if !audience.IsKnown(target) {
				return nil, fmt.Errorf("event type %q notifies unknown audience %q", e.Key, target)
			}
		}
		if e.NotificationType != 0 && !types.Has(e.NotificationType) {
			return nil, fmt.Errorf("event type %q uses unknown notification type %d", e.Key, e.NotificationType)
		}
		if len(e.NotifyTargets) > 0 && e.NotificationType == 0 {
			return nil, fmt.Errorf("event type %q has notify targets but no notification type", e.Key)
		}
		r.entries[e.Key] = e
	}

	return r, nil
}

// Lookup returns the entry for key. The key must already be canonical.
func (r *Registry) Lookup(key Key) (Entry, bool) {
	e, ok := r.entries[key]
	return e, ok
}

// Keys returns the registered keys in lexical order.
func (r *Registry) Keys() []Key {
	out := make([]Key, 0, len(r.entries))
	for k := range r.entries {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Entries returns every entry ordered by key.
func (r *Registry) Entries() []Entry {
	keys := r.Keys()
	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		out = append(out, r.entries[k])
	}
	return out
}

// Types returns the notification type registry the entries refer to.
func (r *Registry) Types() *notifications.TypeRegistry {
	return r.types
}

// Validate checks payload against the schema registered for key and returns
// the normalized payload. It has no side effects.
func (r *Registry) Validate(key Key, payload map[string]any) (Payload, error) {
	e, ok := r.entries[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, key)
	}

	out, err := e.Schema.Validate(payload)
	if err != nil {
		var violation *SchemaViolation
		if errors.As(err, &violation) {
			violation.EventType = key
		}
		return nil, err
	}
	return out, nil
}
