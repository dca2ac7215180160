package notifications

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"strings"

	"github.com/openforge/commons/internal/cmd/base"
	"github.com/openforge/commons/pkg/models"
	"github.com/openforge/commons/pkg/notifications"
)

type ListCommand struct {
	*base.Command

	flagConfig string
	flagUser   uint
	flagUnread bool
	flagLimit  int
	flagOffset int
	flagFormat string
}

func (c *ListCommand) Synopsis() string {
	return "List a user's notifications"
}

func (c *ListCommand) Help() string {
	return `Usage: commons notifications list -user=<id>

  This command lists a user's notifications, newest first, rendered the
  way clients see them.` + c.Flags().Help()
}

func (c *ListCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("list", flag.ContinueOnError))

	f.StringVar(
		&c.flagConfig, "config", "", "Path to the commons config file (default: commons.hcl)",
	)
	f.UintVar(
		&c.flagUser, "user", 0, "(Required) ID of the recipient",
	)
	f.BoolVar(
		&c.flagUnread, "unread", false, "Only list unread notifications",
	)
	f.IntVar(
		&c.flagLimit, "limit", models.DefaultPageSize, "Maximum number of notifications",
	)
	f.IntVar(
		&c.flagOffset, "offset", 0, "Number of notifications to skip",
	)
	f.StringVar(
		&c.flagFormat, "format", "text", "Output format (text|json)",
	)

	return f
}

func (c *ListCommand) Run(args []string) int {
	if err := c.Flags().Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}
	if c.flagUser == 0 {
		c.UI.Error("user flag is required")
		return 1
	}
	if c.flagFormat != "text" && c.flagFormat != "json" {
		c.UI.Error(fmt.Sprintf("unsupported format %q", c.flagFormat))
		return 1
	}

	srv, err := c.Server(c.flagConfig)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	defer srv.Close(context.Background())

	list, err := srv.Notifications.List(context.Background(), c.flagUser, c.flagUnread, c.flagLimit, c.flagOffset)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	if c.flagFormat == "json" {
		out, err := json.MarshalIndent(list, "", "  ")
		if err != nil {
			c.UI.Error(fmt.Sprintf("error encoding notifications: %v", err))
			return 1
		}
		c.UI.Output(string(out))
		return 0
	}

	if len(list) == 0 {
		c.UI.Info("No notifications")
		return 0
	}
	for _, n := range list {
		c.UI.Output(formatLine(n))
	}
	return 0
}

func formatLine(n notifications.ClientNotification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d\t", n.ID)
	if n.Read {
		b.WriteString("read\t")
	} else {
		b.WriteString("unread\t")
	}
	if n.HighPriority {
		b.WriteString("! ")
	}
	switch {
	case n.Text != nil:
		b.WriteString(*n.Text)
	case n.TypeName != nil:
		b.WriteString(*n.TypeName)
	default:
		fmt.Fprintf(&b, "type %d", n.Type)
	}
	if path := n.Redirect.Path(); path != "" {
		fmt.Fprintf(&b, "\t%s", path)
	}
	return b.String()
}
