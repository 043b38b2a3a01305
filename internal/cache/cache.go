// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

package cache

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/catalogmirror/internal/metrics"
)

// Entry represents a cached value with expiration
type Entry[V any] struct {
	Data      V
	ExpiresAt time.Time
}

// Cache provides a thread-safe in-memory cache with TTL support
type Cache[K comparable, V any] struct {
	mu      sync.RWMutex
	name    string
	entries map[K]Entry[V]
	ttl     time.Duration
	stats   Stats
	now     func() time.Time
}

// Stats tracks cache performance
type Stats struct {
	mu          sync.RWMutex
	Hits        int64
	Misses      int64
	Evictions   int64
	TotalKeys   int64
	LastCleanup time.Time
}

// New creates a cache whose entries expire ttl after they are set.
// name labels the cache_hits_total / cache_misses_total metrics. Expired
// entries are removed on Get, or by RunCleanup when it is running.
func New[K comparable, V any](name string, ttl time.Duration) *Cache[K, V] {
	return &Cache[K, V]{
		name:    name,
		entries: make(map[K]Entry[V]),
		ttl:     ttl,
		stats: Stats{
			LastCleanup: time.Now(),
		},
		now: time.Now,
	}
}

// Get retrieves a value. Expired entries are removed and count as misses.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	var zero V
	if !exists {
		c.recordMiss()
		return zero, false
	}

	if c.now().After(entry.ExpiresAt) {
		evicted := false
		c.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have refreshed it.
		if current, ok := c.entries[key]; ok && c.now().After(current.ExpiresAt) {
			delete(c.entries, key)
			c.updateTotalKeysLocked()
			evicted = true
		}
		c.mu.Unlock()
		c.recordMiss()
		if evicted {
			c.recordEviction(1)
		}
		return zero, false
	}

	c.recordHit()
	return entry.Data, true
}

// Set stores a value with the default TTL.
func (c *Cache[K, V]) Set(key K, value V) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores a value with a custom TTL
func (c *Cache[K, V]) SetWithTTL(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = Entry[V]{
		Data:      value,
		ExpiresAt: c.now().Add(ttl),
	}
	c.updateTotalKeysLocked()
}

// Delete removes a specific entry.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	_, existed := c.entries[key]
	delete(c.entries, key)
	c.updateTotalKeysLocked()
	c.mu.Unlock()

	if existed {
		c.recordEviction(1)
	}
}

// DeleteFunc removes every entry for which fn returns true and reports how
// many were removed.
func (c *Cache[K, V]) DeleteFunc(fn func(key K, value V) bool) int {
	c.mu.Lock()
	removed := 0
	for key, entry := range c.entries {
		if fn(key, entry.Data) {
			delete(c.entries, key)
			removed++
		}
	}
	c.updateTotalKeysLocked()
	c.mu.Unlock()

	c.recordEviction(int64(removed))
	return removed
}

// Clear removes all entries.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	evictions := int64(len(c.entries))
	c.entries = make(map[K]Entry[V])
	c.updateTotalKeysLocked()
	c.mu.Unlock()

	c.recordEviction(evictions)
}

// Len returns the number of stored entries, including expired ones not yet
// swept.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// GetStats returns a snapshot of current cache statistics.
func (c *Cache[K, V]) GetStats() Stats {
	c.stats.mu.RLock()
	defer c.stats.mu.RUnlock()

	return Stats{
		Hits:        c.stats.Hits,
		Misses:      c.stats.Misses,
		Evictions:   c.stats.Evictions,
		TotalKeys:   c.stats.TotalKeys,
		LastCleanup: c.stats.LastCleanup,
	}
}

// HitRate returns the cache hit rate as a percentage
func (c *Cache[K, V]) HitRate() float64 {
	stats := c.GetStats()
	total := stats.Hits + stats.Misses
	if total == 0 {
		return 0.0
	}
	return float64(stats.Hits) / float64(total) * 100.0
}

// RunCleanup sweeps expired entries every interval until ctx is done.
func (c *Cache[K, V]) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

// cleanup removes all expired entries
func (c *Cache[K, V]) cleanup() {
	now := c.now()
	c.mu.Lock()
	evictions := int64(0)
	for key, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			delete(c.entries, key)
			evictions++
		}
	}
	c.updateTotalKeysLocked()
	c.mu.Unlock()

	c.stats.mu.Lock()
	c.stats.Evictions += evictions
	c.stats.LastCleanup = now
	c.stats.mu.Unlock()
}

// updateTotalKeysLocked must be called with c.mu held.
func (c *Cache[K, V]) updateTotalKeysLocked() {
	c.stats.mu.Lock()
	c.stats.TotalKeys = int64(len(c.entries))
	c.stats.mu.Unlock()
}

func (c *Cache[K, V]) recordHit() {
	c.stats.mu.Lock()
	c.stats.Hits++
	c.stats.mu.Unlock()
	metrics.RecordCacheLookup(c.name, true)
}

func (c *Cache[K, V]) recordMiss() {
	c.stats.mu.Lock()
	c.stats.Misses++
	c.stats.mu.Unlock()
	metrics.RecordCacheLookup(c.name, false)
}

func (c *Cache[K, V]) recordEviction(n int64) {
	if n == 0 {
		return
	}
	c.stats.mu.Lock()
	c.stats.Evictions += n
	c.stats.mu.Unlock()
}
