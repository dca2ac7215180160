package outbox

import (
	"context"
	"flag"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/openforge/commons/internal/cmd/base"
	"github.com/openforge/commons/pkg/relay"
)

type Command struct {
	*base.Command

	flagConfig string
}

func (c *Command) Synopsis() string {
	return "Print event outbox counts per status"
}

func (c *Command) Help() string {
	return `Usage: commons outbox

  This command prints how many event outbox entries are pending, published
  and failed.` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("outbox", flag.ContinueOnError))

	f.StringVar(
		&c.flagConfig, "config", "", "Path to the commons config file (default: commons.hcl)",
	)

	return f
}

func (c *Command) Run(args []string) int {
	if err := c.Flags().Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	srv, err := c.Server(c.flagConfig)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	defer srv.Close(context.Background())

	stats, err := relay.Stats(srv.DB)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error reading outbox stats: %v", err))
		return 1
	}

	out, err := yaml.Marshal(stats)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error encoding stats: %v", err))
		return 1
	}
	c.UI.Output(string(out))
	return 0
}
