package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/openforge/commons/internal/config"
	"github.com/openforge/commons/pkg/background"
	"github.com/openforge/commons/pkg/cache"
	"github.com/openforge/commons/pkg/database"
	"github.com/openforge/commons/pkg/events"
	"github.com/openforge/commons/pkg/kafka"
	"github.com/openforge/commons/pkg/notifications"
	"github.com/openforge/commons/pkg/pipeline"
)

// Server contains the wired services shared by the commands.
type Server struct {
	// Config is the config for the server.
	Config *config.Config

	// DB is the database for the server.
	DB *gorm.DB

	// Logger is the logger for the server.
	Logger hclog.Logger

	// Registry is the event type registry.
	Registry *events.Registry

	// Pipeline ingests events.
	Pipeline *pipeline.Pipeline

	// Notifications is the per-user notification surface.
	Notifications *notifications.Service

	// Publisher is set when push delivery is enabled.
	Publisher *notifications.Publisher

	// Redis is set when the identity cache is enabled.
	Redis *redis.Client
}

// New connects to the database and wires the pipeline from cfg.
func New(cfg *config.Config, log hclog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if log == nil {
		log = hclog.NewNullLogger()
	}

	db, err := database.Connect(cfg.DatabaseConfig(), log)
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	s := &Server{
		Config:   cfg,
		DB:       db,
		Logger:   log,
		Registry: events.DefaultRegistry(),
	}
	if err := s.wire(); err != nil {
		_ = s.Close(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Server) wire() error {
	cfg, log := s.Config, s.Logger

	var identities notifications.Identities = notifications.NewDBIdentities(s.DB)
	if cfg.Redis != nil && cfg.Redis.Enabled {
		s.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cached, err := cache.NewIdentityCache(cache.IdentityConfig{
			Client: s.Redis,
			Source: identities,
			TTL:    config.Duration(cfg.Redis.TTL),
			Logger: log,
		})
		if err != nil {
			return fmt.Errorf("error creating identity cache: %w", err)
		}
		identities = cached
		log.Info("identity cache enabled", "addr", cfg.Redis.Addr)
	}

	projector := notifications.NewProjector(notifications.ProjectorConfig{
		Types:      s.Registry.Types(),
		Identities: identities,
		Logger:     log,
	})

	fanoutCfg := notifications.FanoutConfig{
		DB:          s.DB,
		Types:       s.Registry.Types(),
		Concurrency: cfg.Pipeline.FanoutConcurrency,
		Logger:      log,
	}
	if cfg.Pipeline.Push {
		pub, err := notifications.NewPublisher(notifications.PublisherConfig{
			Brokers: kafka.GetBrokers(cfg),
			Topic:   kafka.GetNotificationsTopic(cfg),
		})
		if err != nil {
			return fmt.Errorf("error creating notification publisher: %w", err)
		}
		s.Publisher = pub
		fanoutCfg.Sink = pub
		fanoutCfg.Projector = projector
		fanoutCfg.Backends = cfg.Backends.Names()
	}
	fanout, err := notifications.NewFanout(fanoutCfg)
	if err != nil {
		return fmt.Errorf("error creating fan-out: %w", err)
	}

	s.Pipeline, err = pipeline.New(pipeline.Config{
		DB:       s.DB,
		Registry: s.Registry,
		Fanout:   fanout,
		Spawner:  background.NewSpawner(log),
		Outbox:   cfg.Pipeline.Outbox,
		Logger:   log,
	})
	if err != nil {
		return fmt.Errorf("error creating pipeline: %w", err)
	}

	s.Notifications, err = notifications.NewService(notifications.ServiceConfig{
		DB:        s.DB,
		Projector: projector,
		Logger:    log,
	})
	if err != nil {
		return fmt.Errorf("error creating notification service: %w", err)
	}
	return nil
}

// Close drains background work up to the configured shutdown timeout and
// releases every connection.
func (s *Server) Close(ctx context.Context) error {
	var errs *multierror.Error

	if s.Pipeline != nil {
		s.Pipeline.Spawner().Shutdown(config.Duration(s.Config.Pipeline.ShutdownTimeout))
	}
	if s.Publisher != nil {
		s.Publisher.Close()
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("error closing redis: %w", err))
		}
	}
	if s.DB != nil {
		if sqlDB, err := s.DB.WithContext(ctx).DB(); err != nil {
			errs = multierror.Append(errs, err)
		} else if err := sqlDB.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("error closing database: %w", err))
		}
	}
	return errs.ErrorOrNil()
}
