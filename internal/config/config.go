// Package config loads the HCL configuration shared by every binary.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/joho/godotenv"
	"github.com/spf13/afero"

	"github.com/openforge/commons/pkg/database"
	"github.com/openforge/commons/pkg/notifications/backends"
)

// Config is the root configuration.
type Config struct {
	// LogLevel is one of trace, debug, info, warn, error.
	LogLevel string `hcl:"log_level,optional"`

	Database *Database        `hcl:"database,block"`
	Kafka    *Kafka           `hcl:"kafka,block"`
	Redis    *Redis           `hcl:"redis,block"`
	Pipeline *Pipeline        `hcl:"pipeline,block"`
	Relay    *Relay           `hcl:"relay,block"`
	Backends *backends.Config `hcl:"backends,block"`
}

// Database configures the GORM connection.
type Database struct {
	Driver   string `hcl:"driver,optional"`
	Host     string `hcl:"host,optional"`
	Port     int    `hcl:"port,optional"`
	User     string `hcl:"user,optional"`
	Password string `hcl:"password,optional"`
	Name     string `hcl:"name,optional"`
	SSLMode  string `hcl:"sslmode,optional"`
	Path     string `hcl:"path,optional"`

	MaxIdleConns    int    `hcl:"max_idle_conns,optional"`
	MaxOpenConns    int    `hcl:"max_open_conns,optional"`
	ConnMaxLifetime string `hcl:"conn_max_lifetime,optional"`
	ConnMaxIdleTime string `hcl:"conn_max_idle_time,optional"`
}

// Kafka configures the brokers and topics.
type Kafka struct {
	Brokers            []string `hcl:"brokers,optional"`
	EventsTopic        string   `hcl:"events_topic,optional"`
	NotificationsTopic string   `hcl:"notifications_topic,optional"`
	DLQTopic           string   `hcl:"dlq_topic,optional"`
	ConsumerGroup      string   `hcl:"consumer_group,optional"`
}

// Redis configures the actor identity cache.
type Redis struct {
	Enabled  bool   `hcl:"enabled,optional"`
	Addr     string `hcl:"addr,optional"`
	Password string `hcl:"password,optional"`
	DB       int    `hcl:"db,optional"`
	TTL      string `hcl:"ttl,optional"`
}

// Pipeline configures event ingestion.
type Pipeline struct {
	// Outbox stores every event in the event outbox for the relay.
	Outbox bool `hcl:"outbox,optional"`

	// Push publishes stored notifications to the notifications topic.
	Push bool `hcl:"push,optional"`

	FanoutConcurrency int    `hcl:"fanout_concurrency,optional"`
	ShutdownTimeout   string `hcl:"shutdown_timeout,optional"`
}

// Relay configures the event outbox relay.
type Relay struct {
	PollInterval string `hcl:"poll_interval,optional"`
	BatchSize    int    `hcl:"batch_size,optional"`
	CleanupAfter string `hcl:"cleanup_after,optional"`
}

// Defaults.
const (
	DefaultConfigFile         = "commons.hcl"
	DefaultEventsTopic        = "commons.events"
	DefaultNotificationsTopic = "commons.notifications"
	DefaultDLQTopic           = "commons.notifications.dlq"
	DefaultConsumerGroup      = "commons-notifiers"
)

// Load reads the configuration at path from fs. A .env file next to it is
// loaded into the environment first, without overriding variables that are
// already set. A missing path yields the defaults.
func Load(fs afero.Fs, path string) (*Config, error) {
	if err := loadDotEnv(fs, filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, err
	}

	cfg := &Config{}
	src, err := afero.ReadFile(fs, path)
	switch {
	case os.IsNotExist(err):
		// Defaults only.
	case err != nil:
		return nil, fmt.Errorf("error reading config file %q: %w", path, err)
	default:
		if err := hclsimple.Decode(filepath.Base(path), src, nil, cfg); err != nil {
			return nil, fmt.Errorf("error decoding config file %q: %w", path, err)
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func loadDotEnv(fs afero.Fs, path string) error {
	src, err := afero.ReadFile(fs, path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("error reading %s: %w", path, err)
	}

	env, err := godotenv.Parse(bytes.NewReader(src))
	if err != nil {
		return fmt.Errorf("error parsing %s: %w", path, err)
	}
	for k, v := range env {
		if _, set := os.LookupEnv(k); !set {
			os.Setenv(k, v)
		}
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("COMMONS_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if cfg.Database == nil {
		cfg.Database = &Database{}
	}
	if v := os.Getenv("COMMONS_DATABASE_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("COMMONS_REDIS_ADDR"); v != "" {
		if cfg.Redis == nil {
			cfg.Redis = &Redis{}
		}
		cfg.Redis.Enabled = true
		cfg.Redis.Addr = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	db := cfg.Database
	if db.Driver == "" {
		db.Driver = database.DriverPostgres
	}
	if db.Driver == database.DriverPostgres {
		if db.Host == "" {
			db.Host = "localhost"
		}
		if db.Port == 0 {
			db.Port = 5432
		}
		if db.Name == "" {
			db.Name = "commons"
		}
		if db.User == "" {
			db.User = "postgres"
		}
		if db.SSLMode == "" {
			db.SSLMode = "disable"
		}
	}

	if cfg.Kafka == nil {
		cfg.Kafka = &Kafka{}
	}
	if cfg.Kafka.EventsTopic == "" {
		cfg.Kafka.EventsTopic = DefaultEventsTopic
	}
	if cfg.Kafka.NotificationsTopic == "" {
		cfg.Kafka.NotificationsTopic = DefaultNotificationsTopic
	}
	if cfg.Kafka.DLQTopic == "" {
		cfg.Kafka.DLQTopic = DefaultDLQTopic
	}
	if cfg.Kafka.ConsumerGroup == "" {
		cfg.Kafka.ConsumerGroup = DefaultConsumerGroup
	}

	if cfg.Redis != nil {
		if cfg.Redis.Addr == "" {
			cfg.Redis.Addr = "localhost:6379"
		}
		if cfg.Redis.TTL == "" {
			cfg.Redis.TTL = "10m"
		}
	}

	if cfg.Pipeline == nil {
		cfg.Pipeline = &Pipeline{}
	}
	if cfg.Pipeline.ShutdownTimeout == "" {
		cfg.Pipeline.ShutdownTimeout = "30s"
	}

	if cfg.Relay == nil {
		cfg.Relay = &Relay{}
	}
	if cfg.Relay.PollInterval == "" {
		cfg.Relay.PollInterval = "1s"
	}
	if cfg.Relay.BatchSize == 0 {
		cfg.Relay.BatchSize = 100
	}
	if cfg.Relay.CleanupAfter == "" {
		cfg.Relay.CleanupAfter = "168h"
	}
}

var durationRule = validation.By(func(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := time.ParseDuration(s); err != nil {
		return fmt.Errorf("must be a duration like 30s or 5m")
	}
	return nil
})

// Validate checks a loaded configuration.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.LogLevel, validation.In("trace", "debug", "info", "warn", "error")),
	); err != nil {
		return err
	}
	if err := validation.ValidateStruct(c.Database,
		validation.Field(&c.Database.Driver, validation.In(database.DriverPostgres, database.DriverSQLite)),
		validation.Field(&c.Database.ConnMaxLifetime, durationRule),
		validation.Field(&c.Database.ConnMaxIdleTime, durationRule),
	); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if c.Redis != nil {
		if err := validation.ValidateStruct(c.Redis,
			validation.Field(&c.Redis.TTL, durationRule),
		); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	if err := validation.ValidateStruct(c.Pipeline,
		validation.Field(&c.Pipeline.ShutdownTimeout, durationRule),
		validation.Field(&c.Pipeline.FanoutConcurrency, validation.Min(0)),
	); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	if err := validation.ValidateStruct(c.Relay,
		validation.Field(&c.Relay.PollInterval, durationRule),
		validation.Field(&c.Relay.CleanupAfter, durationRule),
		validation.Field(&c.Relay.BatchSize, validation.Min(1)),
	); err != nil {
		return fmt.Errorf("relay: %w", err)
	}
	return nil
}

// DatabaseConfig returns the connection settings for database.Connect.
func (c *Config) DatabaseConfig() database.Config {
	db := c.Database
	return database.Config{
		Driver:          db.Driver,
		Host:            db.Host,
		Port:            db.Port,
		User:            db.User,
		Password:        db.Password,
		DBName:          db.Name,
		SSLMode:         db.SSLMode,
		Path:            db.Path,
		MaxIdleConns:    db.MaxIdleConns,
		MaxOpenConns:    db.MaxOpenConns,
		ConnMaxLifetime: Duration(db.ConnMaxLifetime),
		ConnMaxIdleTime: Duration(db.ConnMaxIdleTime),
	}
}

// Duration parses a validated duration string. Empty strings are zero.
func Duration(s string) time.Duration {
	d, _ := time.ParseDuration(strings.TrimSpace(s))
	return d
}
