// Package cache provides the engine's explicit caching components: a keyed
// TTL cache with an injected clock, and an optional sqlite-backed snapshot
// store for warm starts.
package cache

import (
	"sync"
	"time"

	"bakeops/internal/core"
)

// TTL is an explicit keyed cache with a fixed time-to-live. It is owned by
// exactly one caller and takes an injected clock, so tests are
// deterministic and nothing leaks across views the way a process-wide
// lookup would.
type TTL[V any] struct {
	ttl   time.Duration
	clock core.Clock

	mu      sync.Mutex
	entries map[string]ttlEntry[V]
}

type ttlEntry[V any] struct {
	value   V
	expires time.Time
}

// NewTTL creates a cache whose entries expire after ttl.
func NewTTL[V any](ttl time.Duration, clock core.Clock) *TTL[V] {
	if clock == nil {
		clock = core.SystemClock
	}
	return &TTL[V]{
		ttl:     ttl,
		clock:   clock,
		entries: make(map[string]ttlEntry[V]),
	}
}

// Get returns the cached value for key if present and unexpired.
func (c *TTL[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if c.clock().After(entry.expires) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return entry.value, true
}

// Set stores a value under key, restarting its TTL.
func (c *TTL[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = ttlEntry[V]{value: value, expires: c.clock().Add(c.ttl)}
}

// Delete removes a key.
func (c *TTL[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Purge drops every expired entry and returns how many were removed.
func (c *TTL[V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	removed := 0
	for key, entry := range c.entries {
		if now.After(entry.expires) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries, expired or not.
func (c *TTL[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
