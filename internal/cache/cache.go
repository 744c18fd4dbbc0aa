// Package cache holds recently resolved media records in memory.
package cache

import (
	"sync"
	"time"

	"github.com/iconidentify/tikgrab/internal/domain"
)

// Defaults used when the config leaves a value unset.
const (
	DefaultTTL        = 5 * time.Minute
	DefaultMaxEntries = 50
)

// Entry is one cached record.
type Entry struct {
	Key       string
	Value     *domain.MediaRecord
	CreatedAt time.Time
}

// Cache is a TTL cache with a FIFO size bound. Expiry is checked on read.
type Cache struct {
	mu         sync.Mutex
	items      map[string]Entry
	order      []string
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

// New creates a cache. Non-positive values fall back to the defaults.
func New(ttl time.Duration, maxEntries int) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Cache{
		items:      make(map[string]Entry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// SetClock replaces the time source. Used by tests.
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Get returns the record stored under key if it has not expired.
// Expired entries are removed.
func (c *Cache) Get(key string) (*domain.MediaRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.CreatedAt) > c.ttl {
		c.remove(key)
		return nil, false
	}
	return e.Value, true
}

// Put stores rec under key, evicting the oldest entries past the size bound.
// Storing an existing key replaces it and makes it the newest entry.
func (c *Cache) Put(key string, rec *domain.MediaRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; exists {
		c.remove(key)
	}
	c.items[key] = Entry{Key: key, Value: rec, CreatedAt: c.now()}
	c.order = append(c.order, key)

	for len(c.order) > c.maxEntries {
		c.remove(c.order[0])
	}
}

// Delete removes key.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remove(key)
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]Entry)
	c.order = nil
}

func (c *Cache) remove(key string) {
	delete(c.items, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
