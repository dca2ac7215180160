package pipeline

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/openforge/commons/pkg/events"
	"github.com/openforge/commons/pkg/models"
)

// Hook reacts to a validated event. For stored event types it runs only
// once the event is stored; for the others it runs after validation. Hooks
// run in the background; their errors are logged and dropped.
type Hook func(ctx context.Context, key events.Key, payload events.Payload) error

// RegisterHook adds a hook for key. Hooks must be registered before the
// pipeline starts ingesting.
func (p *Pipeline) RegisterHook(key events.Key, h Hook) {
	p.hooks[key] = append(p.hooks[key], h)
}

func (p *Pipeline) runHooks(ctx context.Context, key events.Key, payload events.Payload) {
	for i, h := range p.hooks[key] {
		h := h
		snapshot := payload.Clone()
		name := fmt.Sprintf("hook:%s:%d", key, i)
		p.spawner.Go(ctx, name, func(ctx context.Context) error {
			return h(ctx, key, snapshot)
		})
	}
}

// RecordLogin stores the login time of the acting user.
func RecordLogin(db *gorm.DB) Hook {
	return func(ctx context.Context, _ events.Key, payload events.Payload) error {
		var base events.BasePayload
		if err := events.DecodePayload(payload, &base); err != nil {
			return err
		}

		u := &models.User{ID: base.ActorID}
		if err := u.UpdateLastLogin(db.WithContext(ctx), time.Now()); err != nil {
			return fmt.Errorf("error recording login for user %d: %w", base.ActorID, err)
		}
		return nil
	}
}
