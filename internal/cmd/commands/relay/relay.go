package relay

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openforge/commons/internal/cmd/base"
	"github.com/openforge/commons/internal/config"
	"github.com/openforge/commons/pkg/kafka"
	"github.com/openforge/commons/pkg/relay"
)

// cleanupInterval is how often published entries are pruned.
const cleanupInterval = time.Hour

type Command struct {
	*base.Command

	flagConfig      string
	flagOnce        bool
	flagRetryFailed int
}

func (c *Command) Synopsis() string {
	return "Publish stored events from the outbox to the events topic"
}

func (c *Command) Help() string {
	return `Usage: commons relay

  This command polls the event outbox and publishes pending entries to
  the events topic until interrupted. Published entries older than the
  configured cleanup_after are removed every hour.` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("relay", flag.ContinueOnError))

	f.StringVar(
		&c.flagConfig, "config", "", "Path to the commons config file (default: commons.hcl)",
	)
	f.BoolVar(
		&c.flagOnce, "once", false, "Publish a single batch and exit",
	)
	f.IntVar(
		&c.flagRetryFailed, "retry-failed", 0, "Republish up to this many failed entries before starting",
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

	cfg := srv.Config
	r, err := relay.New(relay.Config{
		DB:           srv.DB,
		Brokers:      kafka.GetBrokers(cfg),
		Topic:        kafka.GetEventsTopic(cfg),
		PollInterval: config.Duration(cfg.Relay.PollInterval),
		BatchSize:    cfg.Relay.BatchSize,
		Logger:       c.Log,
	})
	if err != nil {
		c.UI.Error(fmt.Sprintf("error creating relay: %v", err))
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if c.flagRetryFailed > 0 {
		n, err := r.RetryFailed(ctx, c.flagRetryFailed)
		if err != nil {
			c.UI.Error(fmt.Sprintf("error retrying failed entries: %v", err))
			r.Stop()
			return 1
		}
		c.UI.Info(fmt.Sprintf("Republished %d failed entries", n))
	}

	if c.flagOnce {
		defer r.Stop()
		n, err := r.ProcessBatch(ctx)
		if err != nil {
			c.UI.Error(fmt.Sprintf("error processing batch: %v", err))
			return 1
		}
		c.UI.Info(fmt.Sprintf("Published %d entries", n))
		return 0
	}

	cleanupAfter := config.Duration(cfg.Relay.CleanupAfter)
	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := r.CleanupOldEntries(cleanupAfter); err != nil {
					c.Log.Error("error cleaning up outbox", "error", err)
				}
			}
		}
	}()

	err = r.Start(ctx)
	r.Stop()
	if err != nil && !errors.Is(err, context.Canceled) {
		c.UI.Error(fmt.Sprintf("relay stopped: %v", err))
		return 1
	}
	c.UI.Info("Relay stopped")
	return 0
}
