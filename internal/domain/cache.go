package domain

import (
	"context"
	"time"
)

// Cache is the key/value store backing session state.
// Supports a local LRU, Redis, or both layered as a two-phase cache.
type Cache interface {
	// Get retrieves a value. Returns nil, nil if the key is not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value.
	Delete(ctx context.Context, key string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string `json:"type"`

	// Local LRU cache settings
	LocalMaxSize int           `json:"localMaxSize"`
	LocalTTL     time.Duration `json:"localTTL"`

	// Redis settings
	RedisAddr     string `json:"redisAddr"`
	RedisPassword string `json:"-"`
	RedisDB       int    `json:"redisDB"`

	// EnableTwoPhase checks the local LRU before Redis.
	EnableTwoPhase bool `json:"enableTwoPhase"`
}
