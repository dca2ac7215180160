package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	_ "github.com/lib/pq" // PostgreSQL driver; the sqlite driver comes with golang-migrate

	"github.com/openforge/commons/internal/migrate"
)

func main() {
	driver := flag.String("driver", "postgres", "Database driver (postgres|sqlite)")
	dsn := flag.String("dsn", "", "Database connection string")
	help := flag.Bool("help", false, "Show help message")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Applies the commons schema migrations to PostgreSQL or SQLite.\n\n")
		fmt.Fprintf(os.Stderr, "OPTIONS:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEXAMPLES:\n\n")
		fmt.Fprintf(os.Stderr, "  %s -driver=postgres -dsn=\"host=localhost user=postgres password=postgres dbname=commons port=5432 sslmode=disable\"\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -driver=sqlite -dsn=\".commons/commons.db\"\n\n", os.Args[0])
	}
	flag.Parse()

	if *help {
		flag.Usage()
		os.Exit(0)
	}

	log := hclog.New(&hclog.LoggerOptions{Name: "commons-migrate"})

	if *dsn == "" {
		log.Error("-dsn flag is required; run with -help for usage information")
		os.Exit(1)
	}
	if *driver != "postgres" && *driver != "sqlite" {
		log.Error("unsupported driver", "driver", *driver)
		os.Exit(1)
	}

	sqlDB, err := sql.Open(*driver, *dsn)
	if err != nil {
		log.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		log.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	log.Info("connected to database", "driver", *driver)

	if err := migrate.RunMigrations(sqlDB, *driver); err != nil {
		log.Error("migration failed", "error", err)
		os.Exit(1)
	}

	version, dirty, err := migrate.GetMigrationVersion(sqlDB, *driver)
	if err != nil {
		log.Warn("could not read migration version", "error", err)
	}
	log.Info("migrations complete", "version", version, "dirty", dirty)
}
