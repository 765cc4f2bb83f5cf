package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type lruEntry struct {
	value   string
	expires time.Time
}

// LRUCache is the Tier-1 in-process cache: a bounded, size-limited LRU
// with per-entry expiry. It is always present, even when Tier 2 (Redis)
// is configured, so a Redis outage degrades latency rather than availability.
type LRUCache struct {
	mu    sync.Mutex
	inner *lru.Cache[string, lruEntry]
}

// NewLRUCache constructs a Tier-1 cache holding at most maxEntries items.
func NewLRUCache(maxEntries int) (*LRUCache, error) {
	inner, err := lru.New[string, lruEntry](maxEntries)
	if err != nil {
		return nil, err
	}
	return &LRUCache{inner: inner}, nil
}

func (c *LRUCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.inner.Get(key)
	if !ok {
		return "", false, nil
	}
	if time.Now().After(entry.expires) {
		c.inner.Remove(key)
		return "", false, nil
	}
	return entry.value, true, nil
}

func (c *LRUCache) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.inner.Add(key, lruEntry{value: value, expires: time.Now().Add(ttl)})
	return nil
}

// InvalidatePrefix removes every key starting with prefix. The LRU library
// has no native prefix scan, so this walks the current key set; fine at
// this cache's size (low thousands of entries, per Tier1MaxEntries).
func (c *LRUCache) InvalidatePrefix(_ context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range c.inner.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.inner.Remove(key)
		}
	}
	return nil
}
