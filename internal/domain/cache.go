package domain

import (
	"context"
	"time"
)

// Cache defines the interface for short-lived shared state.
// Supports a local LRU (Community) and Redis (Pro), optionally layered.
// Holds idempotency records, rate-limit counters and async job results.
// Synchronous analysis calls are always computed fresh and never cached.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetIfAbsent stores value only when key holds no live entry and
	// reports whether it did. Every node sharing the cache sees the same
	// winner.
	SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// IncrementCounter atomically increments a counter and returns the new value.
	// The counter expires window after its first increment.
	IncrementCounter(ctx context.Context, key string, window time.Duration) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string `envconfig:"type"`

	// Local LRU cache settings (Community tier)
	LocalMaxSize int           `envconfig:"local_max_size"`
	LocalTTL     time.Duration `envconfig:"local_ttl"`

	// Redis settings (Pro tier)
	RedisAddr     string `envconfig:"redis_addr"`
	RedisPassword string `envconfig:"redis_password"`
	RedisDB       int    `envconfig:"redis_db"`

	// Two-phase settings
	EnableTwoPhase bool `envconfig:"two_phase"` // If true, check local first, then Redis
}
