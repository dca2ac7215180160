package notifications

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mitchellh/cli"

	"github.com/openforge/commons/internal/cmd/base"
)

type Command struct {
	*base.Command
}

func (c *Command) Synopsis() string {
	return "Read and manage a user's notifications"
}

func (c *Command) Help() string {
	return `Usage: commons notifications <subcommand> [options] [args]

  This command groups subcommands acting on one user's notifications.`
}

func (c *Command) Run(args []string) int {
	return cli.RunResultHelp
}

// parseIDs parses a comma separated list of notification ids.
func parseIDs(s string) ([]uint, error) {
	var ids []uint
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseUint(part, 10, 64)
		if err != nil || id == 0 {
			return nil, fmt.Errorf("invalid notification id %q", part)
		}
		ids = append(ids, uint(id))
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("at least one notification id is required")
	}
	return ids, nil
}
