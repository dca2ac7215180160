package notifications

import (
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/valyala/fasttemplate"

	"github.com/openforge/commons/pkg/models"
)

// RedirectTarget is where a client navigates when a notification is opened.
// Either URL is set or Type and ID are.
type RedirectTarget struct {
	Type      string          `json:"type,omitempty"`
	ID        uint            `json:"id,omitempty"`
	SubID     *uint           `json:"subId,omitempty"`
	URL       string          `json:"url,omitempty"`
	Alternate *RedirectTarget `json:"alternate,omitempty"`
}

// Path renders the target as a client path, e.g. /projects/42#comment-7.
func (t *RedirectTarget) Path() string {
	if t == nil {
		return ""
	}
	if t.URL != "" {
		return t.URL
	}

	path := fmt.Sprintf("/%ss/%d", t.Type, t.ID)
	if t.SubID != nil {
		path += fmt.Sprintf("#comment-%d", *t.SubID)
	}
	return path
}

// ClientNotification is the client-facing view of a stored notification.
// Presentation fields are nil when the type is unknown.
type ClientNotification struct {
	ID     uint   `json:"id"`
	UserID uint   `json:"userId"`
	Type   TypeID `json:"type"`

	TypeName *string `json:"typeName"`

	ActorID     *uint   `json:"actorId,omitempty"`
	Actor       *Actor  `json:"actor,omitempty"`
	TargetType  *string `json:"targetType,omitempty"`
	TargetID    *uint   `json:"targetId,omitempty"`
	RelatedType *string `json:"relatedType,omitempty"`
	RelatedID   *uint   `json:"relatedId,omitempty"`

	Data map[string]any `json:"data"`

	Priority     Priority   `json:"priority"`
	HighPriority bool       `json:"highPriority"`
	Read         bool       `json:"read"`
	ReadAt       *time.Time `json:"readAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`

	Redirect *RedirectTarget `json:"redirect"`
	Title    *string         `json:"title"`
	Text     *string         `json:"text"`
}

// ProjectorConfig holds configuration for the projector.
type ProjectorConfig struct {
	Types *TypeRegistry

	// Identities is optional. Without it no actor info is attached.
	Identities Identities

	Logger hclog.Logger
}

// Projector turns stored notifications into their client view.
type Projector struct {
	types      *TypeRegistry
	identities Identities
	logger     hclog.Logger
}

// NewProjector creates a projector.
func NewProjector(cfg ProjectorConfig) *Projector {
	if cfg.Types == nil {
		cfg.Types = DefaultTypes()
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
	return &Projector{
		types:      cfg.Types,
		identities: cfg.Identities,
		logger:     cfg.Logger.Named("projector"),
	}
}

// Project returns the client view of n.
func (p *Projector) Project(ctx context.Context, n models.Notification) ClientNotification {
	return p.ProjectAll(ctx, []models.Notification{n})[0]
}

// ProjectAll projects ns, looking up every actor in one batch.
func (p *Projector) ProjectAll(ctx context.Context, ns []models.Notification) []ClientNotification {
	actors := p.lookupActors(ctx, ns)

	out := make([]ClientNotification, 0, len(ns))
	for _, n := range ns {
		var actor *Actor
		if n.ActorID != nil {
			if a, ok := actors[*n.ActorID]; ok {
				actor = &a
			}
		}
		out = append(out, p.project(n, actor))
	}
	return out
}

func (p *Projector) lookupActors(ctx context.Context, ns []models.Notification) map[uint]Actor {
	if p.identities == nil {
		return nil
	}

	seen := map[uint]bool{}
	var ids []uint
	for _, n := range ns {
		if n.ActorID != nil && !seen[*n.ActorID] {
			seen[*n.ActorID] = true
			ids = append(ids, *n.ActorID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	actors, err := p.identities.LookupActors(ctx, ids)
	if err != nil {
		p.logger.Warn("actor lookup failed", "actors", len(ids), "error", err)
		return nil
	}
	return actors
}

func (p *Projector) project(n models.Notification, actor *Actor) ClientNotification {
	cn := ClientNotification{
		ID:           n.ID,
		UserID:       n.UserID,
		Type:         TypeID(n.NotificationType),
		ActorID:      n.ActorID,
		Actor:        actor,
		TargetType:   n.TargetType,
		TargetID:     n.TargetID,
		RelatedType:  n.RelatedType,
		RelatedID:    n.RelatedID,
		Data:         n.Data,
		HighPriority: n.HighPriority,
		Read:         n.Read,
		ReadAt:       n.ReadAt,
		CreatedAt:    n.CreatedAt,
	}

	t, ok := p.types.Lookup(cn.Type)
	if !ok {
		p.logger.Debug("projecting unknown notification type",
			"notification_id", n.ID, "type", n.NotificationType)
		return cn
	}

	data := n.Data
	name := t.Name
	title := fill(t.Template.Title, data, actor)
	text := fill(t.Template.Body, data, actor)

	cn.TypeName = &name
	cn.Priority = t.Priority
	cn.Title = &title
	cn.Text = &text
	cn.Redirect = resolveRedirect(t.Redirect, data)
	return cn
}

// resolveRedirect applies the custom URL, dynamic and fixed rules in that
// order.
func resolveRedirect(r Redirect, data models.JSONMap) *RedirectTarget {
	if r.Strategy == RedirectCustomURL {
		if url := data.GetString(r.URLField); url != "" {
			return &RedirectTarget{URL: url}
		}
	}

	if r.Strategy == RedirectDynamic {
		typ := data.GetString(r.TypeField)
		id, ok := data.Uint(r.IDField)
		if typ == "" || !ok {
			return nil
		}
		return &RedirectTarget{Type: typ, ID: id}
	}

	if r.Type == "" {
		return nil
	}
	id, ok := data.Uint(r.IDField)
	if !ok {
		return nil
	}

	target := &RedirectTarget{Type: r.Type, ID: id}
	if r.SubIDField != "" {
		if sub, ok := data.Uint(r.SubIDField); ok {
			target.SubID = &sub
		}
	}
	if r.Alternate != nil {
		target.Alternate = resolveRedirect(*r.Alternate, data)
	}
	return target
}

// Template placeholders available besides the data bag.
const (
	PlaceholderActorName     = "actor_name"
	PlaceholderActorUsername = "actor_username"
	PlaceholderActorAvatar   = "actor_avatar"
)

// fill substitutes {{field}} placeholders. Unknown placeholders render as
// the empty string.
func fill(template string, data models.JSONMap, actor *Actor) string {
	if !strings.Contains(template, "{{") {
		return template
	}

	return fasttemplate.ExecuteFuncString(template, "{{", "}}", func(w io.Writer, tag string) (int, error) {
		tag = strings.TrimSpace(tag)

		if actor != nil {
			switch tag {
			case PlaceholderActorName:
				return io.WriteString(w, actor.Name)
			case PlaceholderActorUsername:
				return io.WriteString(w, actor.Username)
			case PlaceholderActorAvatar:
				return io.WriteString(w, actor.AvatarURL)
			}
		}

		v, ok := data[tag]
		if !ok || v == nil {
			return 0, nil
		}
		return io.WriteString(w, formatValue(v))
	})
}

func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}
