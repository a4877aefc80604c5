package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/fraudlens/internal/domain"
)

// New builds the session store named by cfg.Type.
//
//	memory            in-process LRU
//	redis             Redis only
//	redis + two-phase LRU in front of Redis
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "", "memory":
		return NewLRUCache(cfg.LocalMaxSize), nil

	case "redis":
		remote, err := NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		if cfg.EnableTwoPhase {
			return NewTwoPhaseCache(NewLRUCache(cfg.LocalMaxSize), remote, cfg.LocalTTL), nil
		}
		return remote, nil

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// TwoPhaseCache reads through a local L1 to a shared L2.
// Writes and deletes go to both layers.
type TwoPhaseCache struct {
	local  *LRUCache
	remote domain.Cache
	l1TTL  time.Duration
}

// NewTwoPhaseCache layers local over remote. l1TTL caps how long L1 may
// serve a value without consulting L2.
func NewTwoPhaseCache(local *LRUCache, remote domain.Cache, l1TTL time.Duration) *TwoPhaseCache {
	if l1TTL <= 0 {
		l1TTL = 5 * time.Minute
	}
	return &TwoPhaseCache{local: local, remote: remote, l1TTL: l1TTL}
}

// Get checks L1 first and populates it on an L2 hit.
func (c *TwoPhaseCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.local.Get(ctx, key)
	if err != nil || val != nil {
		return val, err
	}

	val, err = c.remote.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		_ = c.local.Set(ctx, key, val, c.l1TTL)
	}
	return val, nil
}

// Set writes L2 first so a failed remote write never leaves L1 ahead of it.
func (c *TwoPhaseCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.remote.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	l1TTL := c.l1TTL
	if ttl > 0 && ttl < l1TTL {
		l1TTL = ttl
	}
	return c.local.Set(ctx, key, value, l1TTL)
}

// Delete removes key from both layers.
func (c *TwoPhaseCache) Delete(ctx context.Context, key string) error {
	if err := c.local.Delete(ctx, key); err != nil {
		return err
	}
	return c.remote.Delete(ctx, key)
}

// Ping checks both layers.
func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.local.Ping(ctx); err != nil {
		return fmt.Errorf("L1 ping failed: %w", err)
	}
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("L2 ping failed: %w", err)
	}
	return nil
}

// Close closes both layers.
func (c *TwoPhaseCache) Close() error {
	_ = c.local.Close()
	return c.remote.Close()
}

// Stats returns L1 statistics.
func (c *TwoPhaseCache) Stats() (size int, capacity int) {
	return c.local.Stats()
}
