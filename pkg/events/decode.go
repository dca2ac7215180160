package events

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// DecodePayload decodes a validated payload into out, a pointer to a struct
// with `mapstructure` tags. Numbers stored as float64 convert to integer
// fields.
func DecodePayload(payload map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return fmt.Errorf("create payload decoder: %w", err)
	}
	if err := dec.Decode(payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

// BasePayload holds the fields merged into every payload.
type BasePayload struct {
	ActorID    uint   `mapstructure:"actor_id"`
	TargetType string `mapstructure:"target_type"`
	TargetID   uint   `mapstructure:"target_id"`
}
