package pipeline

import (
	"sync"
	"time"
)

// runCache is a TTL-bound memo for the expensive lookups of one run
// (geography, per-region fetches). It is created when a run starts and
// purged when it ends; nothing survives across runs.
type runCache struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	items map[string]cacheEntry
}

type cacheEntry struct {
	val any
	exp time.Time
}

func newRunCache(ttl time.Duration, now func() time.Time) *runCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if now == nil {
		now = time.Now
	}
	return &runCache{ttl: ttl, now: now, items: make(map[string]cacheEntry)}
}

func (c *runCache) get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	en, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(en.exp) {
		delete(c.items, key)
		return nil, false
	}
	return en.val, true
}

func (c *runCache) put(key string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = cacheEntry{val: v, exp: c.now().Add(c.ttl)}
}

func (c *runCache) invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

func (c *runCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]cacheEntry)
}

func (c *runCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// cached returns the value stored under key, or calls load and stores its
// result. Errors are not cached.
func cached[T any](c *runCache, key string, load func() (T, error)) (T, bool, error) {
	if v, ok := c.get(key); ok {
		if t, ok := v.(T); ok {
			return t, true, nil
		}
		c.invalidate(key)
	}
	v, err := load()
	if err != nil {
		return v, false, err
	}
	c.put(key, v)
	return v, false, nil
}
