package emit

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"

	"github.com/openforge/commons/internal/cmd/base"
	"github.com/openforge/commons/pkg/events"
	"github.com/openforge/commons/pkg/pipeline"
)

type Command struct {
	*base.Command

	flagConfig     string
	flagType       string
	flagActor      uint
	flagTargetType string
	flagTargetID   uint
	flagPayload    string
	flagPrivate    bool
}

func (c *Command) Synopsis() string {
	return "Ingest one event through the pipeline"
}

func (c *Command) Help() string {
	return `Usage: commons emit -type=<event type> -actor=<user id> [options]

  This command validates and stores one event and waits for its
  notifications to be delivered.

  Example:

    commons emit -type=project_star -actor=7 -target-type=project \
      -target-id=42 -payload='{"project_title":"demo"}'` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("emit", flag.ContinueOnError))

	f.StringVar(
		&c.flagConfig, "config", "", "Path to the commons config file (default: commons.hcl)",
	)
	f.StringVar(
		&c.flagType, "type", "", "(Required) Event type, e.g. project_star",
	)
	f.UintVar(
		&c.flagActor, "actor", 0, "(Required) ID of the user who caused the event",
	)
	f.StringVar(
		&c.flagTargetType, "target-type", "", "Kind of the entity acted upon",
	)
	f.UintVar(
		&c.flagTargetID, "target-id", 0, "ID of the entity acted upon",
	)
	f.StringVar(
		&c.flagPayload, "payload", "", "Event payload as a JSON object",
	)
	f.BoolVar(
		&c.flagPrivate, "private", false, "Hide the event from public timelines",
	)

	return f
}

func (c *Command) Run(args []string) int {
	if err := c.Flags().Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	if c.flagType == "" {
		c.UI.Error("type flag is required")
		return 1
	}
	if c.flagActor == 0 {
		c.UI.Error("actor flag is required")
		return 1
	}

	payload := map[string]any{}
	if c.flagPayload != "" {
		if err := json.Unmarshal([]byte(c.flagPayload), &payload); err != nil {
			c.UI.Error(fmt.Sprintf("error parsing payload: %v", err))
			return 1
		}
	}

	srv, err := c.Server(c.flagConfig)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	// Close drains the fan-out before exiting.
	defer srv.Close(context.Background())

	entry, ok := srv.Registry.Lookup(events.Normalize(c.flagType))
	if !ok {
		c.UI.Error(fmt.Sprintf("unknown event type %q", c.flagType))
		return 1
	}

	var opts []pipeline.Option
	if c.flagPrivate {
		opts = append(opts, pipeline.ForcePrivate())
	}

	event := srv.Pipeline.Ingest(context.Background(),
		c.flagType, c.flagActor, c.flagTargetType, c.flagTargetID, payload, opts...)
	if event == nil {
		if entry.LogToDatabase {
			c.UI.Error("event was not stored, see the log for details")
			return 1
		}
		c.UI.Info(fmt.Sprintf("Handled %s event (not stored)", entry.Key))
		return 0
	}

	c.UI.Info(fmt.Sprintf("Stored %s event %d", event.EventType, event.ID))
	return 0
}
