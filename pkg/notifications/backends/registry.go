package backends

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"

	"github.com/openforge/commons/pkg/notifications"
)

// Config holds backend configuration from HCL
type Config struct {
	// Audit backend
	Audit *AuditConfig `hcl:"audit,block"`

	// Ntfy backend configuration
	Ntfy *NtfyConfig `hcl:"ntfy,block"`
}

// AuditConfig configures the audit backend
type AuditConfig struct {
	Enabled bool `hcl:"enabled,optional"`
}

// NtfyConfig configures the ntfy backend
type NtfyConfig struct {
	Enabled bool `hcl:"enabled,optional"`

	ServerURL    string `hcl:"server_url,optional"`
	Topic        string `hcl:"topic,optional"`
	ClickBaseURL string `hcl:"click_base_url,optional"`
	Timeout      string `hcl:"timeout,optional"`
}

// Names returns the names of the enabled backends.
func (c *Config) Names() []string {
	var names []string
	if c == nil {
		return names
	}
	if c.Audit != nil && c.Audit.Enabled {
		names = append(names, "audit")
	}
	if c.Ntfy != nil && c.Ntfy.Enabled {
		names = append(names, "ntfy")
	}
	return names
}

// Registry manages available notification backends
type Registry struct {
	backends map[string]Backend
	logger   hclog.Logger
}

// NewRegistry creates a new backend registry from configuration
func NewRegistry(cfg *Config, logger hclog.Logger) (*Registry, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	registry := &Registry{
		backends: make(map[string]Backend),
		logger:   logger.Named("backends"),
	}

	if cfg == nil {
		return registry, nil
	}

	if cfg.Audit != nil && cfg.Audit.Enabled {
		registry.Register(NewAuditBackend(logger))
		registry.logger.Info("initialized audit backend")
	}

	if cfg.Ntfy != nil && cfg.Ntfy.Enabled {
		if cfg.Ntfy.Topic == "" {
			return nil, fmt.Errorf("ntfy backend requires a topic")
		}
		var timeout time.Duration
		if cfg.Ntfy.Timeout != "" {
			d, err := time.ParseDuration(cfg.Ntfy.Timeout)
			if err != nil {
				return nil, fmt.Errorf("invalid ntfy timeout: %w", err)
			}
			timeout = d
		}
		registry.Register(NewNtfyBackend(NtfyBackendConfig{
			ServerURL:    cfg.Ntfy.ServerURL,
			Topic:        cfg.Ntfy.Topic,
			ClickBaseURL: cfg.Ntfy.ClickBaseURL,
			Timeout:      timeout,
		}))
		serverURL := cfg.Ntfy.ServerURL
		if serverURL == "" {
			serverURL = "https://ntfy.sh (default)"
		}
		registry.logger.Info("initialized ntfy backend", "server", serverURL, "topic", cfg.Ntfy.Topic)
	}

	return registry, nil
}

// Register adds or replaces a backend.
func (r *Registry) Register(b Backend) {
	r.backends[b.Name()] = b
}

// GetBackend returns a backend by name
func (r *Registry) GetBackend(name string) (Backend, bool) {
	backend, ok := r.backends[name]
	return backend, ok
}

// GetBackendNames returns the names of all registered backends, sorted
func (r *Registry) GetBackendNames() []string {
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Route hands msg to every registered backend that supports one of its
// requested backends. Each backend gets one attempt. It returns the names
// of the backends that failed and their errors combined.
func (r *Registry) Route(ctx context.Context, msg *notifications.NotificationMessage) ([]string, error) {
	var (
		failed []string
		errs   *multierror.Error
	)

	for _, name := range r.GetBackendNames() {
		backend := r.backends[name]
		if !supportsAny(backend, msg.Backends) {
			continue
		}

		if err := backend.Handle(ctx, msg); err != nil {
			r.logger.Warn("backend failed",
				"backend", name,
				"message_id", msg.ID,
				"notification_id", msg.NotificationID,
				"error", err)
			failed = append(failed, name)
			errs = multierror.Append(errs, err)
		}
	}

	return failed, errs.ErrorOrNil()
}

func supportsAny(b Backend, requested []string) bool {
	for _, name := range requested {
		if b.SupportsBackend(name) {
			return true
		}
	}
	return false
}
