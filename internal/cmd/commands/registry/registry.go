package registry

import (
	"flag"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/openforge/commons/internal/cmd/base"
	"github.com/openforge/commons/pkg/events"
	"github.com/openforge/commons/pkg/notifications"
)

type Command struct {
	*base.Command

	flagEvent string
}

func (c *Command) Synopsis() string {
	return "Print the event and notification type registries"
}

func (c *Command) Help() string {
	return `Usage: commons registry [-event=<event type>]

  This command prints the built-in event types with their payload fields
  and the notification types they produce, as YAML.` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("registry", flag.ContinueOnError))

	f.StringVar(
		&c.flagEvent, "event", "", "Only print this event type",
	)

	return f
}

type field struct {
	Name     string      `yaml:"name"`
	Kind     events.Kind `yaml:"kind"`
	Required bool        `yaml:"required"`
	Default  any         `yaml:"default,omitempty"`
}

type eventEntry struct {
	events.Entry `yaml:",inline"`
	Fields       []field `yaml:"fields"`
}

type dump struct {
	Events            []eventEntry         `yaml:"events"`
	NotificationTypes []notifications.Type `yaml:"notification_types,omitempty"`
}

func (c *Command) Run(args []string) int {
	if err := c.Flags().Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	reg := events.DefaultRegistry()

	entries := reg.Entries()
	if c.flagEvent != "" {
		entry, ok := reg.Lookup(events.Normalize(c.flagEvent))
		if !ok {
			c.UI.Error(fmt.Sprintf("unknown event type %q", c.flagEvent))
			return 1
		}
		entries = []events.Entry{entry}
	}

	var d dump
	for _, e := range entries {
		ee := eventEntry{Entry: e}
		if e.Schema != nil {
			for _, f := range e.Schema.Fields {
				ee.Fields = append(ee.Fields, field{
					Name:     f.Name,
					Kind:     f.Kind,
					Required: f.Required,
					Default:  f.Default,
				})
			}
		}
		d.Events = append(d.Events, ee)
	}
	if c.flagEvent == "" {
		d.NotificationTypes = reg.Types().All()
	}

	out, err := yaml.Marshal(d)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error encoding registry: %v", err))
		return 1
	}
	c.UI.Output(string(out))
	return 0
}
