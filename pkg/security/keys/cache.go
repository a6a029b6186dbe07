package keys

import (
	"sync"
	"time"

	"bastion-hq/aegis/pkg/security/envelope"
)

// CacheConfig configures the data key cache.
type CacheConfig struct {
	TTL     time.Duration // Lifetime of a cached plaintext key
	MaxSize int           // Maximum number of cached keys
}

type cacheEntry struct {
	plaintext []byte
	expiresAt time.Time
}

// Cache holds plaintext data keys with strict expiry.
//
// Expiry is checked at read time; an expired entry is never returned. Values
// are copied on the way in and on the way out so callers can zero their slice
// without corrupting the cache.
type Cache struct {
	config  CacheConfig
	entries map[string]*cacheEntry
	mu      sync.RWMutex
	now     func() time.Time
}

// NewCache creates a new data key cache.
func NewCache(config CacheConfig) *Cache {
	if config.MaxSize <= 0 {
		config.MaxSize = 1000
	}
	return &Cache{
		config:  config,
		entries: make(map[string]*cacheEntry),
		now:     time.Now,
	}
}

// Get returns a copy of the plaintext key stored under key.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(entry.expiresAt) {
		return nil, false
	}

	out := make([]byte, len(entry.plaintext))
	copy(out, entry.plaintext)
	return out, true
}

// Set stores a copy of plaintext under key for the configured TTL.
//
// When the cache is full, expired entries are dropped first and then the
// entry closest to expiry.
func (c *Cache) Set(key string, plaintext []byte) {
	if c.config.TTL <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[key]; ok {
		envelope.Zero(old.plaintext)
	} else if len(c.entries) >= c.config.MaxSize {
		c.evictLocked()
	}

	value := make([]byte, len(plaintext))
	copy(value, plaintext)
	c.entries[key] = &cacheEntry{
		plaintext: value,
		expiresAt: c.now().Add(c.config.TTL),
	}
}

func (c *Cache) evictLocked() {
	now := c.now()
	var oldestKey string
	var oldest time.Time
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			envelope.Zero(e.plaintext)
			delete(c.entries, k)
			continue
		}
		if oldestKey == "" || e.expiresAt.Before(oldest) {
			oldestKey = k
			oldest = e.expiresAt
		}
	}
	if len(c.entries) >= c.config.MaxSize && oldestKey != "" {
		envelope.Zero(c.entries[oldestKey].plaintext)
		delete(c.entries, oldestKey)
	}
}

// Clear zeroes and removes every cached key.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		envelope.Zero(e.plaintext)
	}
	c.entries = make(map[string]*cacheEntry)
}

// Size returns the number of entries, including ones that have expired but
// not yet been evicted.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
