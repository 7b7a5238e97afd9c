package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/geovision/geoaccess/internal/identity"
)

// Config holds cache configuration
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// ProfileCache is a Redis read-through cache for profile rows. Cache
// failures degrade to store reads: a broken cache must never break
// authorization, so errors are logged and reported as misses.
type ProfileCache struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a new profile cache and verifies connectivity.
func New(ctx context.Context, cfg Config) (*ProfileCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &ProfileCache{client: client, ttl: ttl}, nil
}

// Close releases the underlying connection pool.
func (c *ProfileCache) Close() error {
	return c.client.Close()
}

func profileKey(id string) string {
	return "geoaccess:profile:" + id
}

// Get returns the cached profile if present.
func (c *ProfileCache) Get(ctx context.Context, id string) (*identity.Profile, bool) {
	data, err := c.client.Get(ctx, profileKey(id)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		slog.WarnContext(ctx, "profile cache read failed",
			slog.String("profile_id", id),
			slog.String("error", err.Error()),
		)
		return nil, false
	}

	var profile identity.Profile
	if err := json.Unmarshal(data, &profile); err != nil {
		// Corrupt entry, drop it.
		c.client.Del(ctx, profileKey(id))
		return nil, false
	}

	return &profile, true
}

// Set stores the profile with the configured TTL.
func (c *ProfileCache) Set(ctx context.Context, profile *identity.Profile) {
	data, err := json.Marshal(profile)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, profileKey(profile.ID), data, c.ttl).Err(); err != nil {
		slog.WarnContext(ctx, "profile cache write failed",
			slog.String("profile_id", profile.ID),
			slog.String("error", err.Error()),
		)
	}
}

// Invalidate drops the cached entry for an identity.
func (c *ProfileCache) Invalidate(ctx context.Context, id string) {
	if err := c.client.Del(ctx, profileKey(id)).Err(); err != nil {
		slog.WarnContext(ctx, "profile cache invalidation failed",
			slog.String("profile_id", id),
			slog.String("error", err.Error()),
		)
	}
}
