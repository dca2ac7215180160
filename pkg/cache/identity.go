// Package cache keeps actor display info in Redis in front of the identity
// store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/redis/go-redis/v9"

	"github.com/openforge/commons/pkg/notifications"
)

// DefaultTTL is how long a cached actor stays valid.
const DefaultTTL = 10 * time.Minute

const keyPrefix = "commons:actor:"

// IdentityConfig holds configuration for the identity cache.
type IdentityConfig struct {
	Client *redis.Client
	Source notifications.Identities

	// TTL defaults to DefaultTTL.
	TTL time.Duration

	Logger hclog.Logger
}

// IdentityCache is a read-through notifications.Identities. Redis errors
// are logged and the lookup falls through to the source.
type IdentityCache struct {
	client *redis.Client
	source notifications.Identities
	ttl    time.Duration
	logger hclog.Logger
}

// NewIdentityCache creates an identity cache.
func NewIdentityCache(cfg IdentityConfig) (*IdentityCache, error) {
	if cfg.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if cfg.Source == nil {
		return nil, errors.New("identity source is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}

	return &IdentityCache{
		client: cfg.Client,
		source: cfg.Source,
		ttl:    cfg.TTL,
		logger: cfg.Logger.Named("identity-cache"),
	}, nil
}

func actorKey(id uint) string {
	return fmt.Sprintf("%s%d", keyPrefix, id)
}

// LookupActors implements notifications.Identities.
func (c *IdentityCache) LookupActors(ctx context.Context, ids []uint) (map[uint]notifications.Actor, error) {
	out := make(map[uint]notifications.Actor, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = actorKey(id)
	}

	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		c.logger.Warn("actor cache read failed", "error", err)
		vals = nil
	}
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var a notifications.Actor
		if err := json.Unmarshal([]byte(str), &a); err == nil {
			out[ids[i]] = a
		}
	}

	var missing []uint
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	loaded, err := c.source.LookupActors(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(loaded) == 0 {
		return out, nil
	}

	pipe := c.client.Pipeline()
	for id, a := range loaded {
		out[id] = a
		payload, err := json.Marshal(a)
		if err != nil {
			continue
		}
		pipe.Set(ctx, actorKey(id), payload, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("actor cache write failed", "actors", len(loaded), "error", err)
	}

	return out, nil
}

// Invalidate drops cached entries, e.g. after a profile change.
func (c *IdentityCache) Invalidate(ctx context.Context, ids ...uint) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = actorKey(id)
	}
	return c.client.Del(ctx, keys...).Err()
}
