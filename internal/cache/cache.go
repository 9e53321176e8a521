// Package cache provides thread-safe in-memory caching with TTL, used to
// avoid re-requesting directions for origin/destination pairs the directions
// provider has recently answered.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dpup/prefab/errors"
	"github.com/dpup/prefab/logging"

	"github.com/ersnlabs/navcore/internal/lib/geo"
	"github.com/ersnlabs/navcore/internal/lib/route"
)

// Cache is a thread-safe in-memory TTL cache. Values are stored as JSON so
// callers get their own copy back rather than shared mutable state.
type Cache struct {
	entries map[string]*Entry
	mutex   sync.RWMutex
}

// Entry is a cached item with metadata
type Entry struct {
	Key       string        `json:"key"`
	Data      []byte        `json:"data"`
	CreatedAt time.Time     `json:"created_at"`
	ExpiresAt time.Time     `json:"expires_at"`
	TTL       time.Duration `json:"ttl"`
	Source    string        `json:"source"`
}

// New creates an empty cache
func New() *Cache {
	return &Cache{
		entries: make(map[string]*Entry),
	}
}

// Set stores data under key for the given TTL
func (c *Cache) Set(key string, data interface{}, ttl time.Duration, source string) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data for cache: %w", err)
	}

	now := time.Now()
	entry := &Entry{
		Key:       key,
		Data:      jsonData,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		TTL:       ttl,
		Source:    source,
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.entries[key] = entry
	return nil
}

// Get retrieves data from the cache if present and fresh
func (c *Cache) Get(key string, result interface{}) (bool, error) {
	c.mutex.RLock()
	entry, exists := c.entries[key]
	c.mutex.RUnlock()

	if !exists {
		return false, nil
	}

	if c.IsStale(key) {
		return false, nil
	}

	if err := json.Unmarshal(entry.Data, result); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached data: %w", err)
	}

	return true, nil
}

// IsStale reports whether the entry is missing or past its expiration
func (c *Cache) IsStale(key string) bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	entry, exists := c.entries[key]
	if !exists {
		return true
	}

	return time.Now().After(entry.ExpiresAt)
}

// GetWithMetadata retrieves data and the entry metadata, even when stale;
// the caller decides how to handle staleness. A nil result skips decoding.
func (c *Cache) GetWithMetadata(key string, result interface{}) (*Entry, bool, error) {
	c.mutex.RLock()
	entry, exists := c.entries[key]
	c.mutex.RUnlock()

	if !exists {
		return nil, false, nil
	}

	if result != nil {
		if err := json.Unmarshal(entry.Data, result); err != nil {
			return entry, exists, fmt.Errorf("failed to unmarshal cached data: %w", err)
		}
	}

	return entry, exists, nil
}

// Delete removes an entry
func (c *Cache) Delete(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.entries, key)
}

// Clear removes all entries
func (c *Cache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.entries = make(map[string]*Entry)
}

// Keys returns all cache keys
func (c *Cache) Keys() []string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	return keys
}

// Stats returns cache usage statistics
func (c *Cache) Stats() Stats {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	now := time.Now()
	stats := Stats{
		TotalEntries: len(c.entries),
	}

	for _, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			stats.StaleEntries++
		} else {
			stats.FreshEntries++
		}

		if stats.OldestEntry.IsZero() || entry.CreatedAt.Before(stats.OldestEntry) {
			stats.OldestEntry = entry.CreatedAt
		}
		if entry.CreatedAt.After(stats.NewestEntry) {
			stats.NewestEntry = entry.CreatedAt
		}
	}

	return stats
}

// CleanupStale removes all expired entries and returns how many were removed
func (c *Cache) CleanupStale() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := time.Now()
	var removed int

	for key, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			delete(c.entries, key)
			removed++
		}
	}

	return removed
}

// StartPeriodicCleanup starts a goroutine that periodically removes stale
// entries until ctx is cancelled
func (c *Cache) StartPeriodicCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				err, _ := errors.ParseStack(debug.Stack())
				skipFrames := 3
				numFrames := 5
				logging.Errorw(ctx, "Cache cleanup: recovered from panic",
					"error", r, "error.stack_trace", err.MinimalStack(skipFrames, numFrames))
			}
		}()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := c.CleanupStale(); removed > 0 {
					logging.Infow(ctx, "Cache cleanup removed stale entries", "removed", removed)
				}
			}
		}
	}()
}

// Stats provides cache usage statistics
type Stats struct {
	TotalEntries int
	FreshEntries int
	StaleEntries int
	OldestEntry  time.Time
	NewestEntry  time.Time
}

// Route caching helpers. Keys hash the origin and destination at ~1m
// precision so nearby repeat requests hit the same entry.

// RouteKey builds a content-based cache key for a directions request
func RouteKey(origin, destination geo.Point) string {
	raw := fmt.Sprintf("%.5f,%.5f|%.5f,%.5f", origin.Latitude, origin.Longitude, destination.Latitude, destination.Longitude)
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("route:%x", sum[:8])
}

// SetRoute caches a computed route for its origin/destination pair
func (c *Cache) SetRoute(r *route.Route, ttl time.Duration) error {
	return c.Set(RouteKey(r.Origin, r.Destination), r, ttl, "directions")
}

// GetRoute retrieves a cached route for the given origin/destination pair
func (c *Cache) GetRoute(origin, destination geo.Point) (*route.Route, bool, error) {
	var r route.Route
	found, err := c.Get(RouteKey(origin, destination), &r)
	if err != nil || !found {
		return nil, false, err
	}
	return &r, true, nil
}
