package events

import (
	"errors"
	"fmt"
)

// ErrUnknownEventType is returned for an event type missing from the
// registry.
var ErrUnknownEventType = errors.New("unknown event type")

// SchemaViolation reports a payload that does not match its schema.
type SchemaViolation struct {
	EventType Key
	Field     string
	Reason    string
}

func (e *SchemaViolation) Error() string {
	switch {
	case e.Field == "":
		return fmt.Sprintf("invalid %s payload: %s", e.EventType, e.Reason)
	case e.EventType == "":
		return fmt.Sprintf("field %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s payload: field %s: %s", e.EventType, e.Field, e.Reason)
}
