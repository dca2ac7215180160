package migrate

import (
	"context"
	"flag"
	"fmt"

	"github.com/openforge/commons/internal/cmd/base"
	"github.com/openforge/commons/internal/migrate"
)

type Command struct {
	*base.Command

	flagConfig string
}

func (c *Command) Synopsis() string {
	return "Apply the database schema migrations"
}

func (c *Command) Help() string {
	return `Usage: commons migrate

  This command applies every pending schema migration to the configured
  database and prints the resulting version.` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("migrate", flag.ContinueOnError))

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

	sqlDB, err := srv.DB.DB()
	if err != nil {
		c.UI.Error(fmt.Sprintf("error getting database handle: %v", err))
		return 1
	}

	driver := srv.Config.Database.Driver
	if err := migrate.RunMigrations(sqlDB, driver); err != nil {
		c.UI.Error(fmt.Sprintf("error running migrations: %v", err))
		return 1
	}

	version, dirty, err := migrate.GetMigrationVersion(sqlDB, driver)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error reading migration version: %v", err))
		return 1
	}
	c.UI.Info(fmt.Sprintf("Database is at migration version %d (dirty=%t)", version, dirty))
	return 0
}
