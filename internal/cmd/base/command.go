// Package base holds the pieces shared by every CLI command.
package base

import (
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"
	"github.com/spf13/afero"

	"github.com/openforge/commons/internal/config"
	"github.com/openforge/commons/internal/server"
)

// Command is embedded by every command.
type Command struct {
	Log hclog.Logger
	UI  cli.Ui

	// Fs is the filesystem configuration is read from. Defaults to the OS.
	Fs afero.Fs
}

// NewCommand returns a Command writing to log and ui.
func NewCommand(log hclog.Logger, ui cli.Ui) *Command {
	return &Command{
		Log: log,
		UI:  ui,
		Fs:  afero.NewOsFs(),
	}
}

// LoadConfig loads the configuration at path and applies its log level.
func (c *Command) LoadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = config.DefaultConfigFile
	}
	fs := c.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}

	cfg, err := config.Load(fs, path)
	if err != nil {
		return nil, err
	}
	c.Log.SetLevel(hclog.LevelFromString(cfg.LogLevel))
	return cfg, nil
}

// Server loads the configuration at path and wires the services. Callers
// close the returned server.
func (c *Command) Server(path string) (*server.Server, error) {
	cfg, err := c.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	srv, err := server.New(cfg, c.Log)
	if err != nil {
		return nil, fmt.Errorf("error initializing server: %w", err)
	}
	return srv, nil
}
