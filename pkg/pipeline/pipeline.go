// Package pipeline ingests business events: it validates them against the
// event type registry, stores them, and hands notifying events to a
// background fan-out.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/openforge/commons/pkg/audience"
	"github.com/openforge/commons/pkg/background"
	"github.com/openforge/commons/pkg/events"
	"github.com/openforge/commons/pkg/models"
	"github.com/openforge/commons/pkg/notifications"
)

// Config holds configuration for the pipeline.
type Config struct {
	DB *gorm.DB

	// Registry defaults to events.DefaultRegistry().
	Registry *events.Registry

	// Resolver defaults to the built-in strategies over DB.
	Resolver *audience.Resolver

	// Fanout defaults to a fan-out writer over DB with no push sink.
	Fanout *notifications.Fanout

	// Spawner runs hooks and fan-out. Defaults to a new spawner.
	Spawner *background.Spawner

	// Outbox writes an EventOutbox row with every stored event.
	Outbox bool

	Logger hclog.Logger
}

// Pipeline is the event ingestion entry point.
type Pipeline struct {
	db       *gorm.DB
	registry *events.Registry
	resolver *audience.Resolver
	fanout   *notifications.Fanout
	spawner  *background.Spawner
	outbox   bool
	hooks    map[events.Key][]Hook
	logger   hclog.Logger
}

// New creates a pipeline with the default hooks registered.
func New(cfg Config) (*Pipeline, error) {
	if cfg.DB == nil {
		return nil, errors.New("database is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
	if cfg.Registry == nil {
		cfg.Registry = events.DefaultRegistry()
	}
	if cfg.Resolver == nil {
		r, err := audience.NewResolver(audience.ResolverConfig{
			Table:     audience.DefaultTable(audience.NewDBDirectory(cfg.DB)),
			Directory: audience.NewDBDirectory(cfg.DB),
			Logger:    cfg.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("error creating audience resolver: %w", err)
		}
		cfg.Resolver = r
	}
	if cfg.Fanout == nil {
		f, err := notifications.NewFanout(notifications.FanoutConfig{
			DB:     cfg.DB,
			Types:  cfg.Registry.Types(),
			Logger: cfg.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("error creating fan-out: %w", err)
		}
		cfg.Fanout = f
	}
	if cfg.Spawner == nil {
		cfg.Spawner = background.NewSpawner(cfg.Logger)
	}

	p := &Pipeline{
		db:       cfg.DB,
		registry: cfg.Registry,
		resolver: cfg.Resolver,
		fanout:   cfg.Fanout,
		spawner:  cfg.Spawner,
		outbox:   cfg.Outbox,
		hooks:    make(map[events.Key][]Hook),
		logger:   cfg.Logger.Named("pipeline"),
	}
	p.RegisterHook(events.UserLogin, RecordLogin(cfg.DB))

	return p, nil
}

// Spawner returns the spawner running hooks and fan-out.
func (p *Pipeline) Spawner() *background.Spawner {
	return p.spawner
}

// Registry returns the event type registry.
func (p *Pipeline) Registry() *events.Registry {
	return p.registry
}

// Option adjusts a single Ingest call.
type Option func(*ingestOptions)

type ingestOptions struct {
	forcePrivate bool
}

// ForcePrivate stores the event as private regardless of the type default.
func ForcePrivate() Option {
	return func(o *ingestOptions) {
		o.forcePrivate = true
	}
}

// Ingest validates and stores one event, then schedules its notifications.
// It returns the stored event, or nil when the type is unknown, the payload
// is invalid, the type is not stored, or the write failed. Hooks and
// fan-out run in the background and never affect the result.
func (p *Pipeline) Ingest(
	ctx context.Context,
	eventType string,
	actorID uint,
	targetType string,
	targetID uint,
	payload map[string]any,
	opts ...Option,
) *models.Event {
	var o ingestOptions
	for _, opt := range opts {
		opt(&o)
	}

	key := events.Normalize(eventType)
	entry, ok := p.registry.Lookup(key)
	if !ok {
		p.logger.Warn("unknown event type", "event_type", eventType)
		return nil
	}

	merged := make(map[string]any, len(payload)+3)
	for k, v := range payload {
		merged[k] = v
	}
	merged[events.FieldActorID] = actorID
	merged[events.FieldTargetType] = targetType
	merged[events.FieldTargetID] = targetID

	validated, err := p.registry.Validate(key, merged)
	if err != nil {
		var violation *events.SchemaViolation
		if errors.As(err, &violation) {
			p.logger.Warn("event payload rejected",
				"event_type", key,
				"field", violation.Field,
				"reason", violation.Reason)
		} else {
			p.logger.Warn("event payload rejected", "event_type", key, "error", err)
		}
		return nil
	}

	if !entry.LogToDatabase {
		p.runHooks(ctx, key, validated)
		return nil
	}

	event := &models.Event{
		EventType:  string(key),
		ActorID:    actorID,
		TargetType: targetType,
		TargetID:   targetID,
		EventData:  validated,
		Public:     entry.Public && !o.forcePrivate,
	}
	if err := p.store(ctx, event); err != nil {
		p.logger.Error("error storing event", "event_type", key, "error", err)
		return nil
	}

	p.runHooks(ctx, key, validated)

	if entry.Notifies() {
		name := fmt.Sprintf("fanout:%s:%d", key, event.ID)
		p.spawner.Go(ctx, name, func(ctx context.Context) error {
			return p.notify(ctx, entry, event, validated)
		})
	}

	return event
}

func (p *Pipeline) store(ctx context.Context, event *models.Event) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := event.Create(tx); err != nil {
			return fmt.Errorf("error creating event: %w", err)
		}
		if !p.outbox {
			return nil
		}

		entry, err := models.NewEventOutboxEntry(event)
		if err != nil {
			return err
		}
		if err := tx.Create(entry).Error; err != nil {
			return fmt.Errorf("error creating outbox entry: %w", err)
		}
		return nil
	})
}

// notify resolves the audiences of a stored event and fans out one
// notification per recipient.
func (p *Pipeline) notify(ctx context.Context, entry events.Entry, event *models.Event, payload events.Payload) error {
	in := audience.Input{Event: event, Payload: payload}

	sets, err := p.resolver.Resolve(ctx, in, entry.NotifyTargets)
	if err != nil {
		// Failed strategies contribute empty sets; the rest still notify.
		p.logger.Warn("audience resolution incomplete", "event_id", event.ID, "error", err)
	}

	delivery := notifications.Delivery{
		Event:     event,
		Type:      entry.NotificationType,
		Data:      dataFor(entry, payload),
		Related:   relatedFor(entry, payload),
		Audiences: pick(sets, entry.NotifyTargets),
	}
	if entry.ExcludeActor {
		delivery.ExcludeUserID = event.ActorID
	}

	_, err = p.fanout.FanOut(ctx, delivery)
	return err
}

func dataFor(entry events.Entry, payload events.Payload) map[string]any {
	data := make(map[string]any, len(entry.DataFields))
	for _, field := range entry.DataFields {
		if v, ok := payload[field]; ok {
			data[field] = v
		}
	}
	return data
}

func relatedFor(entry events.Entry, payload events.Payload) *notifications.Ref {
	if entry.Related == nil {
		return nil
	}
	id, ok := payload.Uint(entry.Related.IDField)
	if !ok || id == 0 {
		return nil
	}
	return &notifications.Ref{Type: entry.Related.Type, ID: id}
}

// pick keeps the sets of the requested audiences; prerequisites resolved
// along the way are not recipients.
func pick(sets map[audience.Name]audience.Set, names []audience.Name) map[audience.Name]audience.Set {
	out := make(map[audience.Name]audience.Set, len(names))
	for _, name := range names {
		if s, ok := sets[name]; ok {
			out[name] = s
		}
	}
	return out
}

// EventsForTarget returns the events about one entity, newest first.
func (p *Pipeline) EventsForTarget(ctx context.Context, targetType string, targetID uint, q models.EventQuery) ([]models.Event, error) {
	out, err := models.FindEventsForTarget(p.db.WithContext(ctx), targetType, targetID, q)
	if err != nil {
		return nil, fmt.Errorf("error listing events for target: %w", err)
	}
	return out, nil
}

// EventsForActor returns the events raised by one identity, newest first.
func (p *Pipeline) EventsForActor(ctx context.Context, actorID uint, q models.EventQuery) ([]models.Event, error) {
	out, err := models.FindEventsForActor(p.db.WithContext(ctx), actorID, q)
	if err != nil {
		return nil, fmt.Errorf("error listing events for actor: %w", err)
	}
	return out, nil
}
