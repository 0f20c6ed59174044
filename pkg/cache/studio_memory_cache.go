package cache

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// MemoryCache is an in-process TTL cache used when Redis is not configured.
// Values are stored JSON-encoded so callers see the same semantics as RedisCache.
type MemoryCache struct {
	mu       sync.RWMutex
	data     map[string]memEntry
	maxItems int
	now      func() time.Time
}

type memEntry struct {
	value     []byte
	expiresAt time.Time // zero = no expiry
}

func NewMemoryCache(maxItems int) *MemoryCache {
	if maxItems <= 0 {
		maxItems = 1000
	}
	return &MemoryCache{
		data:     make(map[string]memEntry),
		maxItems: maxItems,
		now:      time.Now,
	}
}

func (c *MemoryCache) expired(e memEntry) bool {
	return !e.expiresAt.IsZero() && c.now().After(e.expiresAt)
}

func (c *MemoryCache) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	c.mu.RLock()
	e, ok := c.data[key]
	c.mu.RUnlock()
	if !ok || c.expired(e) {
		return false, nil
	}
	if err := json.Unmarshal(e.value, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *MemoryCache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	e := memEntry{value: data}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.data[key]; !exists && len(c.data) >= c.maxItems {
		c.evictLocked()
	}
	c.data[key] = e
	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.data, key)
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	c.mu.RLock()
	e, ok := c.data[key]
	c.mu.RUnlock()
	return ok && !c.expired(e), nil
}

// evictLocked drops expired entries, then the entry closest to expiry if still full.
func (c *MemoryCache) evictLocked() {
	var victim string
	var soonest time.Time
	for k, e := range c.data {
		if c.expired(e) {
			delete(c.data, k)
			continue
		}
		if victim == "" || (!e.expiresAt.IsZero() && (soonest.IsZero() || e.expiresAt.Before(soonest))) {
			victim, soonest = k, e.expiresAt
		}
	}
	if len(c.data) >= c.maxItems && victim != "" {
		delete(c.data, victim)
	}
}
