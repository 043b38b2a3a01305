// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/catalogmirror/internal/metrics"
)

// fakeClock lets tests move time forward without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestCache(t *testing.T, ttl time.Duration) (*Cache[string, string], *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New[string, string]("test_"+t.Name(), ttl)
	c.now = clock.Now
	return c, clock
}

func TestCacheBasicOperations(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)

	c.Set("lib-1", "srv-a")
	value, exists := c.Get("lib-1")
	if !exists {
		t.Error("Expected lib-1 to exist")
	}
	if value != "srv-a" {
		t.Errorf("Expected srv-a, got %v", value)
	}

	if _, exists = c.Get("lib-2"); exists {
		t.Error("Expected lib-2 to not exist")
	}
}

func TestCacheExpiration(t *testing.T) {
	c, clock := newTestCache(t, time.Minute)

	c.Set("lib-1", "srv-a")
	if _, exists := c.Get("lib-1"); !exists {
		t.Error("Expected lib-1 to exist immediately after set")
	}

	clock.Advance(61 * time.Second)

	if _, exists := c.Get("lib-1"); exists {
		t.Error("Expected lib-1 to be expired")
	}
	if c.Len() != 0 {
		t.Errorf("Expected expired entry to be removed, len=%d", c.Len())
	}
	if got := c.GetStats().Evictions; got != 1 {
		t.Errorf("Expected 1 eviction, got %d", got)
	}
}

func TestCacheSetWithTTL(t *testing.T) {
	c, clock := newTestCache(t, time.Minute)

	c.SetWithTTL("short", "srv-a", time.Second)
	c.Set("long", "srv-b")
	clock.Advance(2 * time.Second)

	if _, ok := c.Get("short"); ok {
		t.Error("Expected short to be expired")
	}
	if _, ok := c.Get("long"); !ok {
		t.Error("Expected long to survive")
	}
}

func TestCacheDelete(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)

	c.Set("lib-1", "srv-a")
	c.Delete("lib-1")
	c.Delete("never-set")

	if _, exists := c.Get("lib-1"); exists {
		t.Error("Expected lib-1 to be deleted")
	}
	if got := c.GetStats().Evictions; got != 1 {
		t.Errorf("Expected 1 eviction, got %d", got)
	}
}

func TestCacheDeleteFunc(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)

	c.Set("lib-1", "srv-a")
	c.Set("lib-2", "srv-a")
	c.Set("lib-3", "srv-b")

	removed := c.DeleteFunc(func(_ string, serverID string) bool { return serverID == "srv-a" })
	if removed != 2 {
		t.Errorf("Expected 2 removed, got %d", removed)
	}
	if _, ok := c.Get("lib-3"); !ok {
		t.Error("Expected lib-3 to remain")
	}
	if c.GetStats().TotalKeys != 1 {
		t.Errorf("Expected 1 key, got %d", c.GetStats().TotalKeys)
	}
}

func TestCacheClear(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)

	for i := 0; i < 3; i++ {
		c.Set(fmt.Sprintf("lib-%d", i), "srv")
	}
	c.Clear()

	for i := 0; i < 3; i++ {
		key := fmt.Sprintf("lib-%d", i)
		if _, exists := c.Get(key); exists {
			t.Errorf("Expected %s to be cleared", key)
		}
	}
	stats := c.GetStats()
	if stats.TotalKeys != 0 || stats.Evictions != 3 {
		t.Errorf("Unexpected stats after clear: %+v", &stats)
	}
}

func TestCacheHitRateAndMetrics(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)
	name := "test_" + t.Name()

	if c.HitRate() != 0 {
		t.Errorf("Expected 0 hit rate on empty stats, got %f", c.HitRate())
	}

	c.Set("lib-1", "srv-a")
	c.Get("lib-1")
	c.Get("lib-1")
	c.Get("lib-1")
	c.Get("missing")

	if rate := c.HitRate(); rate != 75 {
		t.Errorf("Expected 75%% hit rate, got %f", rate)
	}
	if got := testutil.ToFloat64(metrics.CacheHits.WithLabelValues(name)); got != 3 {
		t.Errorf("Expected 3 hits recorded, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.CacheMisses.WithLabelValues(name)); got != 1 {
		t.Errorf("Expected 1 miss recorded, got %f", got)
	}
}

func TestCacheCleanup(t *testing.T) {
	c, clock := newTestCache(t, time.Minute)

	c.Set("old", "srv")
	clock.Advance(30 * time.Second)
	c.Set("new", "srv")
	clock.Advance(45 * time.Second)

	c.cleanup()

	if c.Len() != 1 {
		t.Errorf("Expected 1 entry after cleanup, got %d", c.Len())
	}
	if !c.GetStats().LastCleanup.Equal(clock.Now()) {
		t.Error("Expected LastCleanup to be updated")
	}
}

func TestCacheRunCleanupStopsOnCancel(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		c.RunCleanup(ctx, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("RunCleanup did not return after cancel")
	}
}

func TestCacheConcurrentAccess(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("lib-%d", n%5)
			for j := 0; j < 100; j++ {
				c.Set(key, "srv")
				c.Get(key)
				if j%10 == 0 {
					c.DeleteFunc(func(k, _ string) bool { return k == key })
				}
			}
		}(i)
	}
	wg.Wait()
}
