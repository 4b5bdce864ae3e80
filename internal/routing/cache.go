package routing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/example/trip-coordinator/internal/models"
)

// Cache is a small in-memory TTL cache for road lookups keyed by coord pair.
type Cache struct {
	mu    sync.RWMutex
	inner Provider
	store map[string]cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	m  Metrics
	ts time.Time
}

// NewCache wraps a provider with a TTL cache.
func NewCache(inner Provider, ttl time.Duration) *Cache {
	return &Cache{inner: inner, store: make(map[string]cacheEntry), ttl: ttl}
}

func keyFor(a, b models.Coord) string {
	return fmt.Sprintf("%.6f,%.6f->%.6f,%.6f", a.Lat, a.Lng, b.Lat, b.Lng)
}

func (c *Cache) Road(ctx context.Context, from, to models.Coord) (Metrics, error) {
	k := keyFor(from, to)
	c.mu.RLock()
	e, ok := c.store[k]
	c.mu.RUnlock()
	if ok && time.Since(e.ts) <= c.ttl {
		return e.m, nil
	}
	m, err := c.inner.Road(ctx, from, to)
	if err != nil {
		return Metrics{}, err
	}
	c.mu.Lock()
	c.store[k] = cacheEntry{m: m, ts: time.Now()}
	c.mu.Unlock()
	return m, nil
}
