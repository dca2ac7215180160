package cmd

import (
	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"

	"github.com/openforge/commons/internal/cmd/base"
	"github.com/openforge/commons/internal/cmd/commands/dlq"
	"github.com/openforge/commons/internal/cmd/commands/emit"
	"github.com/openforge/commons/internal/cmd/commands/events"
	"github.com/openforge/commons/internal/cmd/commands/migrate"
	"github.com/openforge/commons/internal/cmd/commands/notifications"
	"github.com/openforge/commons/internal/cmd/commands/outbox"
	"github.com/openforge/commons/internal/cmd/commands/registry"
	"github.com/openforge/commons/internal/cmd/commands/relay"
	"github.com/openforge/commons/internal/cmd/commands/version"
)

// Commands is the mapping of all available commands.
var Commands map[string]cli.CommandFactory

func initCommands(log hclog.Logger, ui cli.Ui) {
	b := base.NewCommand(log, ui)

	Commands = map[string]cli.CommandFactory{
		"dlq": func() (cli.Command, error) {
			return &dlq.Command{Command: b}, nil
		},
		"emit": func() (cli.Command, error) {
			return &emit.Command{Command: b}, nil
		},
		"events": func() (cli.Command, error) {
			return &events.Command{Command: b}, nil
		},
		"migrate": func() (cli.Command, error) {
			return &migrate.Command{Command: b}, nil
		},
		"notifications": func() (cli.Command, error) {
			return &notifications.Command{Command: b}, nil
		},
		"notifications list": func() (cli.Command, error) {
			return &notifications.ListCommand{Command: b}, nil
		},
		"notifications read": func() (cli.Command, error) {
			return &notifications.ReadCommand{Command: b}, nil
		},
		"notifications read-all": func() (cli.Command, error) {
			return &notifications.ReadAllCommand{Command: b}, nil
		},
		"notifications delete": func() (cli.Command, error) {
			return &notifications.DeleteCommand{Command: b}, nil
		},
		"notifications count": func() (cli.Command, error) {
			return &notifications.CountCommand{Command: b}, nil
		},
		"outbox": func() (cli.Command, error) {
			return &outbox.Command{Command: b}, nil
		},
		"registry": func() (cli.Command, error) {
			return &registry.Command{Command: b}, nil
		},
		"relay": func() (cli.Command, error) {
			return &relay.Command{Command: b}, nil
		},
		"version": func() (cli.Command, error) {
			return &version.Command{Command: b}, nil
		},
	}
}
