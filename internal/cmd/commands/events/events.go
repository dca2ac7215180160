package events

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/araddon/dateparse"
	"gopkg.in/yaml.v3"

	"github.com/openforge/commons/internal/cmd/base"
	"github.com/openforge/commons/pkg/models"
)

type Command struct {
	*base.Command

	flagConfig     string
	flagTargetType string
	flagTargetID   uint
	flagActor      uint
	flagSince      string
	flagLimit      int
	flagOffset     int
	flagPrivate    bool
	flagFormat     string
}

func (c *Command) Synopsis() string {
	return "List stored events for a target or an actor"
}

func (c *Command) Help() string {
	return `Usage: commons events [-target-type=<kind> -target-id=<id> | -actor=<id>]

  This command lists stored events, newest first. Private events are
  hidden unless -private is set.` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("events", flag.ContinueOnError))

	f.StringVar(
		&c.flagConfig, "config", "", "Path to the commons config file (default: commons.hcl)",
	)
	f.StringVar(
		&c.flagTargetType, "target-type", "", "Kind of the target, e.g. project",
	)
	f.UintVar(
		&c.flagTargetID, "target-id", 0, "ID of the target",
	)
	f.UintVar(
		&c.flagActor, "actor", 0, "ID of the actor",
	)
	f.StringVar(
		&c.flagSince, "since", "", "Only events at or after this time, e.g. \"2024-05-01\" or \"May 1, 2024 10:00\"",
	)
	f.IntVar(
		&c.flagLimit, "limit", models.DefaultPageSize, "Maximum number of events",
	)
	f.IntVar(
		&c.flagOffset, "offset", 0, "Number of events to skip",
	)
	f.BoolVar(
		&c.flagPrivate, "private", false, "Include private events",
	)
	f.StringVar(
		&c.flagFormat, "format", "text", "Output format (text|yaml)",
	)

	return f
}

func (c *Command) Run(args []string) int {
	if err := c.Flags().Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	byTarget := c.flagTargetType != "" || c.flagTargetID != 0
	switch {
	case byTarget && c.flagActor != 0:
		c.UI.Error("use either the target flags or -actor, not both")
		return 1
	case byTarget && (c.flagTargetType == "" || c.flagTargetID == 0):
		c.UI.Error("target-type and target-id must be set together")
		return 1
	case !byTarget && c.flagActor == 0:
		c.UI.Error("either the target flags or -actor is required")
		return 1
	}
	if c.flagFormat != "text" && c.flagFormat != "yaml" {
		c.UI.Error(fmt.Sprintf("unsupported format %q", c.flagFormat))
		return 1
	}

	q := models.EventQuery{
		Limit:          c.flagLimit,
		Offset:         c.flagOffset,
		IncludePrivate: c.flagPrivate,
	}
	if c.flagSince != "" {
		since, err := dateparse.ParseAny(c.flagSince)
		if err != nil {
			c.UI.Error(fmt.Sprintf("error parsing since: %v", err))
			return 1
		}
		q.Since = since
	}

	srv, err := c.Server(c.flagConfig)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	defer srv.Close(context.Background())

	ctx := context.Background()
	var list []models.Event
	if byTarget {
		list, err = srv.Pipeline.EventsForTarget(ctx, c.flagTargetType, c.flagTargetID, q)
	} else {
		list, err = srv.Pipeline.EventsForActor(ctx, c.flagActor, q)
	}
	if err != nil {
		c.UI.Error(fmt.Sprintf("error listing events: %v", err))
		return 1
	}

	if c.flagFormat == "yaml" {
		out, err := yaml.Marshal(toRows(list))
		if err != nil {
			c.UI.Error(fmt.Sprintf("error encoding events: %v", err))
			return 1
		}
		c.UI.Output(string(out))
		return 0
	}

	if len(list) == 0 {
		c.UI.Info("No events found")
		return 0
	}
	for _, e := range list {
		c.UI.Output(fmt.Sprintf("%d\t%s\t%s\tactor=%d\t%s:%d\tpublic=%t",
			e.ID, e.CreatedAt.Format(time.RFC3339), e.EventType, e.ActorID, e.TargetType, e.TargetID, e.Public))
	}
	return 0
}

type row struct {
	ID         uint           `yaml:"id"`
	Type       string         `yaml:"type"`
	ActorID    uint           `yaml:"actor_id"`
	TargetType string         `yaml:"target_type"`
	TargetID   uint           `yaml:"target_id"`
	Public     bool           `yaml:"public"`
	CreatedAt  time.Time      `yaml:"created_at"`
	Data       map[string]any `yaml:"data,omitempty"`
}

func toRows(list []models.Event) []row {
	rows := make([]row, 0, len(list))
	for _, e := range list {
		rows = append(rows, row{
			ID:         e.ID,
			Type:       e.EventType,
			ActorID:    e.ActorID,
			TargetType: e.TargetType,
			TargetID:   e.TargetID,
			Public:     e.Public,
			CreatedAt:  e.CreatedAt,
			Data:       e.EventData,
		})
	}
	return rows
}
