package dlq

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"time"

	"github.com/openforge/commons/internal/cmd/base"
	"github.com/openforge/commons/pkg/kafka"
	"github.com/openforge/commons/pkg/notifications"
)

type Command struct {
	*base.Command

	flagConfig  string
	flagLimit   int
	flagTimeout time.Duration
}

func (c *Command) Synopsis() string {
	return "Inspect push notifications in the dead letter queue"
}

func (c *Command) Help() string {
	return `Usage: commons dlq

  This command reads push notifications that failed delivery from the
  dead letter topic and prints one JSON document per message. Messages
  are not consumed.` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("dlq", flag.ContinueOnError))

	f.StringVar(
		&c.flagConfig, "config", "", "Path to the commons config file (default: commons.hcl)",
	)
	f.IntVar(
		&c.flagLimit, "limit", 20, "Maximum number of messages to read",
	)
	f.DurationVar(
		&c.flagTimeout, "timeout", 10*time.Second, "How long to wait for messages",
	)

	return f
}

func (c *Command) Run(args []string) int {
	if err := c.Flags().Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}
	if c.flagLimit < 1 {
		c.UI.Error("limit must be at least 1")
		return 1
	}

	cfg, err := c.LoadConfig(c.flagConfig)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error loading config: %v", err))
		return 1
	}

	monitor, err := notifications.NewDLQMonitor(kafka.GetBrokers(cfg), kafka.GetDLQTopic(cfg))
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	defer monitor.Close()

	ctx, cancel := context.WithTimeout(context.Background(), c.flagTimeout)
	defer cancel()

	msgs, err := monitor.GetDLQMessages(ctx, c.flagLimit)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	if len(msgs) == 0 {
		c.UI.Info("Dead letter queue is empty")
		return 0
	}

	for _, m := range msgs {
		out, err := json.Marshal(m)
		if err != nil {
			c.UI.Error(fmt.Sprintf("error encoding message %s: %v", m.MessageID, err))
			return 1
		}
		c.UI.Output(string(out))
	}
	return 0
}
