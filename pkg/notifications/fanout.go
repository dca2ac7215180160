package notifications

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/openforge/commons/pkg/audience"
	"github.com/openforge/commons/pkg/models"
)

// DefaultConcurrency bounds parallel row inserts for one fan-out.
const DefaultConcurrency = 8

// WriteError reports a notification row that could not be created for one
// recipient.
type WriteError struct {
	UserID uint
	Err    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("create notification for user %d: %v", e.UserID, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Sink receives push messages for freshly stored notifications.
type Sink interface {
	Publish(ctx context.Context, msgs ...*NotificationMessage) error
}

// Ref is a typed entity reference.
type Ref struct {
	Type string
	ID   uint
}

// Delivery is one event's resolved fan-out request.
type Delivery struct {
	Event *models.Event
	Type  TypeID

	// Data is copied into every row.
	Data map[string]any

	Related   *Ref
	Audiences map[audience.Name]audience.Set

	// ExcludeUserID, when non-zero, is never notified.
	ExcludeUserID uint
}

// Recipients returns the deduplicated union of every audience, minus the
// excluded user, in ascending order.
func (d Delivery) Recipients() []uint {
	sets := make([]audience.Set, 0, len(d.Audiences))
	for _, s := range d.Audiences {
		sets = append(sets, s)
	}
	all := audience.Union(sets...)
	if d.ExcludeUserID != 0 {
		delete(all, d.ExcludeUserID)
	}
	return all.Slice()
}

// FanoutConfig holds configuration for fan-out.
type FanoutConfig struct {
	DB    *gorm.DB
	Types *TypeRegistry

	// Concurrency bounds parallel inserts. Defaults to DefaultConcurrency.
	Concurrency int

	// Sink and Projector are optional. When both are set, stored rows are
	// published as push messages to Backends.
	Sink      Sink
	Projector *Projector
	Backends  []string

	Logger hclog.Logger
}

// Fanout writes one notification row per recipient.
type Fanout struct {
	db          *gorm.DB
	types       *TypeRegistry
	concurrency int
	sink        Sink
	projector   *Projector
	backends    []string
	logger      hclog.Logger
}

// NewFanout creates a fan-out writer.
func NewFanout(cfg FanoutConfig) (*Fanout, error) {
	if cfg.DB == nil {
		return nil, errors.New("database is required")
	}
	if cfg.Types == nil {
		cfg.Types = DefaultTypes()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}

	return &Fanout{
		db:          cfg.DB,
		types:       cfg.Types,
		concurrency: cfg.Concurrency,
		sink:        cfg.Sink,
		projector:   cfg.Projector,
		backends:    cfg.Backends,
		logger:      cfg.Logger.Named("fanout"),
	}, nil
}

// FanOut creates one row per unique recipient of d. Each row gets a single
// attempt; failures are logged, aggregated in the returned error, and never
// stop the other rows. The returned rows are the ones stored, ordered by
// recipient.
func (f *Fanout) FanOut(ctx context.Context, d Delivery) ([]models.Notification, error) {
	if d.Event == nil {
		return nil, errors.New("event is required")
	}
	t, ok := f.types.Lookup(d.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, d.Type)
	}

	recipients := d.Recipients()
	if len(recipients) == 0 {
		return nil, nil
	}

	var (
		mu     sync.Mutex
		stored []models.Notification
		errs   *multierror.Error
	)

	g := new(errgroup.Group)
	g.SetLimit(f.concurrency)

	for _, userID := range recipients {
		userID := userID
		g.Go(func() error {
			n := f.newRow(d, t, userID)
			err := n.Create(f.db.WithContext(ctx))

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				werr := &WriteError{UserID: userID, Err: err}
				f.logger.Warn("notification write failed",
					"event_id", d.Event.ID,
					"user_id", userID,
					"error", err)
				errs = multierror.Append(errs, werr)
				return nil
			}
			stored = append(stored, *n)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(stored, func(i, j int) bool { return stored[i].UserID < stored[j].UserID })

	f.logger.Debug("fan-out complete",
		"event_id", d.Event.ID,
		"type", d.Type,
		"recipients", len(recipients),
		"stored", len(stored))

	f.publish(ctx, stored)

	return stored, errs.ErrorOrNil()
}

func (f *Fanout) newRow(d Delivery, t Type, userID uint) *models.Notification {
	actorID := d.Event.ActorID
	targetType := d.Event.TargetType
	targetID := d.Event.TargetID

	n := &models.Notification{
		UserID:           userID,
		NotificationType: int(d.Type),
		ActorID:          &actorID,
		TargetType:       &targetType,
		TargetID:         &targetID,
		Data:             models.JSONMap(d.Data).Clone(),
		HighPriority:     t.Priority.High(),
	}
	if d.Related != nil {
		relatedType := d.Related.Type
		relatedID := d.Related.ID
		n.RelatedType = &relatedType
		n.RelatedID = &relatedID
	}
	return n
}

func (f *Fanout) publish(ctx context.Context, stored []models.Notification) {
	if f.sink == nil || f.projector == nil || len(stored) == 0 {
		return
	}

	projected := f.projector.ProjectAll(ctx, stored)
	msgs := make([]*NotificationMessage, 0, len(projected))
	for _, cn := range projected {
		msgs = append(msgs, NewMessage(cn, f.backends))
	}

	if err := f.sink.Publish(ctx, msgs...); err != nil {
		f.logger.Warn("push publish failed", "messages", len(msgs), "error", err)
	}
}
