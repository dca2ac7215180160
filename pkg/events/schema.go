package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/openforge/commons/pkg/models"
)

// Payload is a schema-validated event payload.
type Payload = models.JSONMap

// Kind is the primitive type a payload field must hold.
type Kind string

const (
	KindString Kind = "string"
	KindNumber Kind = "number"
	KindBool   Kind = "bool"
	KindMap    Kind = "map"
	KindList   Kind = "list"
)

// Field describes one payload field.
type Field struct {
	Name     string
	Kind     Kind
	Required bool

	// Default is applied when an optional field is absent.
	Default any

	// Elem restricts list elements to one kind. Empty allows any element.
	Elem Kind
}

// Schema is the payload contract for one event type.
type Schema struct {
	Fields []Field
}

// Fields merged into every payload by the ingestion pipeline.
const (
	FieldActorID    = "actor_id"
	FieldTargetType = "target_type"
	FieldTargetID   = "target_id"
)

// NewSchema returns a schema with the actor and target fields followed by
// the given type-specific fields.
func NewSchema(fields ...Field) *Schema {
	base := []Field{
		{Name: FieldActorID, Kind: KindNumber, Required: true},
		{Name: FieldTargetType, Kind: KindString, Required: true},
		{Name: FieldTargetID, Kind: KindNumber, Required: true},
	}
	return &Schema{Fields: append(base, fields...)}
}

// Required is shorthand for a required field.
func Required(name string, kind Kind) Field {
	return Field{Name: name, Kind: kind, Required: true}
}

// Optional is shorthand for an optional field with a default.
func Optional(name string, kind Kind, def any) Field {
	return Field{Name: name, Kind: kind, Default: def}
}

// Validate checks payload against the schema and returns a normalized copy
// with defaults applied. Fields the schema does not declare pass through.
// The input is never modified.
func (s *Schema) Validate(payload map[string]any) (Payload, error) {
	in := make(map[string]any, len(payload))
	for k, v := range payload {
		// A null optional field, typed or not, is treated as absent.
		if _, isNil := validation.Indirect(v); isNil && !s.isRequired(k) {
			continue
		}
		in[k] = v
	}

	keys := make([]*validation.KeyRules, 0, len(s.Fields))
	for _, f := range s.Fields {
		kr := validation.Key(f.Name, validation.NotNil, kindRule(f))
		if !f.Required {
			kr = kr.Optional()
		}
		keys = append(keys, kr)
	}

	err := validation.Validate(in, validation.Map(keys...).AllowExtraKeys())
	if err != nil {
		return nil, toViolation(err)
	}

	out := make(Payload, len(in)+len(s.Fields))
	for k, v := range in {
		out[k] = v
	}
	for _, f := range s.Fields {
		v, ok := in[f.Name]
		if !ok {
			if f.Default != nil {
				out[f.Name] = normalize(f.Kind, f.Default)
			}
			continue
		}
		out[f.Name] = normalize(f.Kind, v)
	}

	return out, nil
}

func (s *Schema) isRequired(name string) bool {
	for _, f := range s.Fields {
		if f.Name == name {
			return f.Required
		}
	}
	return false
}

func kindRule(f Field) validation.Rule {
	return validation.By(func(value interface{}) error {
		if value == nil {
			return nil
		}
		if !matchesKind(f.Kind, value) {
			return fmt.Errorf("must be a %s", f.Kind)
		}
		if f.Kind == KindList && f.Elem != "" {
			rv := reflect.ValueOf(value)
			for i := 0; i < rv.Len(); i++ {
				if !matchesKind(f.Elem, rv.Index(i).Interface()) {
					return fmt.Errorf("element %d must be a %s", i, f.Elem)
				}
			}
		}
		return nil
	})
}

func matchesKind(kind Kind, value any) bool {
	switch kind {
	case KindString:
		_, ok := value.(string)
		return ok
	case KindNumber:
		_, ok := toFloat(value)
		return ok
	case KindBool:
		_, ok := value.(bool)
		return ok
	case KindMap:
		switch value.(type) {
		case map[string]any, models.JSONMap:
			return true
		}
		return false
	case KindList:
		if value == nil {
			return false
		}
		k := reflect.TypeOf(value).Kind()
		return k == reflect.Slice || k == reflect.Array
	}
	return false
}

// normalize converts a valid value into its JSON-decoded form so stored
// payloads and fresh payloads look the same.
func normalize(kind Kind, value any) any {
	switch kind {
	case KindNumber:
		f, _ := toFloat(value)
		return f
	case KindMap:
		if m, ok := value.(models.JSONMap); ok {
			return map[string]any(m.Clone())
		}
		m := value.(map[string]any)
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out
	case KindList:
		rv := reflect.ValueOf(value)
		out := make([]any, rv.Len())
		for i := range out {
			elem := rv.Index(i).Interface()
			if f, ok := toFloat(elem); ok {
				elem = f
			}
			out[i] = elem
		}
		return out
	}
	return value
}

func toFloat(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// toViolation reports the first offending field in name order.
func toViolation(err error) error {
	var errs validation.Errors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return &SchemaViolation{Reason: err.Error()}
	}

	fields := make([]string, 0, len(errs))
	for field := range errs {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	first := fields[0]
	return &SchemaViolation{Field: first, Reason: errs[first].Error()}
}
