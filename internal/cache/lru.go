// Package cache provides the session state stores for FraudLens.
package cache

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"
)

// ErrEmptyKey is returned when an operation is given an empty key.
var ErrEmptyKey = errors.New("cache key is required")

// LRUCache is an in-process, size-bounded cache with per-entry TTL.
// It is the default session store and the L1 of the two-phase cache.
type LRUCache struct {
	mu      sync.Mutex
	maxSize int
	items   map[string]*list.Element
	order   *list.List
	now     func() time.Time
}

type entry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// NewLRUCache creates an LRU cache holding at most maxSize entries.
func NewLRUCache(maxSize int) *LRUCache {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &LRUCache{
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		order:   list.New(),
		now:     time.Now,
	}
}

// Get returns the value for key, or nil when absent or expired.
func (c *LRUCache) Get(_ context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return nil, nil
	}
	e := elem.Value.(*entry)
	if c.expired(e) {
		c.remove(elem)
		return nil, nil
	}
	c.order.MoveToFront(elem)
	return e.value, nil
}

// Set stores value under key. A non-positive ttl never expires.
func (c *LRUCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		e := elem.Value.(*entry)
		e.value = value
		e.expiresAt = expiresAt
		c.order.MoveToFront(elem)
		return nil
	}

	c.items[key] = c.order.PushFront(&entry{key: key, value: value, expiresAt: expiresAt})
	for c.order.Len() > c.maxSize {
		c.remove(c.order.Back())
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (c *LRUCache) Delete(_ context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.remove(elem)
	}
	return nil
}

// Ping always succeeds.
func (c *LRUCache) Ping(context.Context) error {
	return nil
}

// Close drops every entry.
func (c *LRUCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order.Init()
	return nil
}

// Stats returns the current entry count and the capacity.
func (c *LRUCache) Stats() (size int, capacity int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len(), c.maxSize
}

func (c *LRUCache) expired(e *entry) bool {
	return !e.expiresAt.IsZero() && c.now().After(e.expiresAt)
}

func (c *LRUCache) remove(elem *list.Element) {
	c.order.Remove(elem)
	delete(c.items, elem.Value.(*entry).key)
}
