package notifications

import (
	"context"
	"flag"
	"fmt"

	"github.com/openforge/commons/internal/cmd/base"
)

type ReadCommand struct {
	*base.Command

	flagConfig string
	flagUser   uint
	flagIDs    string
}

func (c *ReadCommand) Synopsis() string {
	return "Mark notifications read"
}

func (c *ReadCommand) Help() string {
	return `Usage: commons notifications read -user=<id> -ids=<id,...>

  This command marks the given notifications of a user read. Ids owned by
  other users are ignored.` + c.Flags().Help()
}

func (c *ReadCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("read", flag.ContinueOnError))
	f.StringVar(&c.flagConfig, "config", "", "Path to the commons config file (default: commons.hcl)")
	f.UintVar(&c.flagUser, "user", 0, "(Required) ID of the recipient")
	f.StringVar(&c.flagIDs, "ids", "", "(Required) Comma separated notification ids")
	return f
}

func (c *ReadCommand) Run(args []string) int {
	if err := c.Flags().Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}
	if c.flagUser == 0 {
		c.UI.Error("user flag is required")
		return 1
	}
	ids, err := parseIDs(c.flagIDs)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	srv, err := c.Server(c.flagConfig)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	defer srv.Close(context.Background())

	n, err := srv.Notifications.MarkRead(context.Background(), c.flagUser, ids)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	c.UI.Info(fmt.Sprintf("Marked %d notification(s) read", n))
	return 0
}

type ReadAllCommand struct {
	*base.Command

	flagConfig string
	flagUser   uint
}

func (c *ReadAllCommand) Synopsis() string {
	return "Mark every notification of a user read"
}

func (c *ReadAllCommand) Help() string {
	return `Usage: commons notifications read-all -user=<id>` + c.Flags().Help()
}

func (c *ReadAllCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("read-all", flag.ContinueOnError))
	f.StringVar(&c.flagConfig, "config", "", "Path to the commons config file (default: commons.hcl)")
	f.UintVar(&c.flagUser, "user", 0, "(Required) ID of the recipient")
	return f
}

func (c *ReadAllCommand) Run(args []string) int {
	if err := c.Flags().Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}
	if c.flagUser == 0 {
		c.UI.Error("user flag is required")
		return 1
	}

	srv, err := c.Server(c.flagConfig)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	defer srv.Close(context.Background())

	n, err := srv.Notifications.MarkAllRead(context.Background(), c.flagUser)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	c.UI.Info(fmt.Sprintf("Marked %d notification(s) read", n))
	return 0
}

type DeleteCommand struct {
	*base.Command

	flagConfig string
	flagUser   uint
	flagIDs    string
}

func (c *DeleteCommand) Synopsis() string {
	return "Delete notifications"
}

func (c *DeleteCommand) Help() string {
	return `Usage: commons notifications delete -user=<id> -ids=<id,...>

  This command deletes the given notifications of a user. Ids owned by
  other users are ignored.` + c.Flags().Help()
}

func (c *DeleteCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("delete", flag.ContinueOnError))
	f.StringVar(&c.flagConfig, "config", "", "Path to the commons config file (default: commons.hcl)")
	f.UintVar(&c.flagUser, "user", 0, "(Required) ID of the recipient")
	f.StringVar(&c.flagIDs, "ids", "", "(Required) Comma separated notification ids")
	return f
}

func (c *DeleteCommand) Run(args []string) int {
	if err := c.Flags().Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}
	if c.flagUser == 0 {
		c.UI.Error("user flag is required")
		return 1
	}
	ids, err := parseIDs(c.flagIDs)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	srv, err := c.Server(c.flagConfig)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	defer srv.Close(context.Background())

	n, err := srv.Notifications.Delete(context.Background(), c.flagUser, ids)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	c.UI.Info(fmt.Sprintf("Deleted %d notification(s)", n))
	return 0
}

type CountCommand struct {
	*base.Command

	flagConfig string
	flagUser   uint
}

func (c *CountCommand) Synopsis() string {
	return "Print a user's unread notification count"
}

func (c *CountCommand) Help() string {
	return `Usage: commons notifications count -user=<id>` + c.Flags().Help()
}

func (c *CountCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("count", flag.ContinueOnError))
	f.StringVar(&c.flagConfig, "config", "", "Path to the commons config file (default: commons.hcl)")
	f.UintVar(&c.flagUser, "user", 0, "(Required) ID of the recipient")
	return f
}

func (c *CountCommand) Run(args []string) int {
	if err := c.Flags().Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}
	if c.flagUser == 0 {
		c.UI.Error("user flag is required")
		return 1
	}

	srv, err := c.Server(c.flagConfig)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	defer srv.Close(context.Background())

	n, err := srv.Notifications.UnreadCount(context.Background(), c.flagUser)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	c.UI.Output(fmt.Sprintf("%d", n))
	return 0
}
