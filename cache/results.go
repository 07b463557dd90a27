package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultCapacity = 100
	DefaultTTL      = 24 * time.Hour
)

// Entry maps a request fingerprint to the artifact generated for it
type Entry struct {
	TransitionID string    `json:"transitionId"`
	Path         string    `json:"path"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Stats reports current occupancy of the cache
type Stats struct {
	Size     int `json:"size"`
	Capacity int `json:"capacity"`
}

// ResultCache is a bounded, expiring fingerprint -> Entry map.
// Reads refresh recency but not expiry: an entry lives at most ttl after Set.
// Evictions are silent. Safe for concurrent use.
type ResultCache struct {
	lru      *expirable.LRU[string, Entry]
	capacity int
	ttl      time.Duration
}

// NewResultCache creates a cache. Non-positive arguments fall back to the defaults.
// The underlying LRU runs an expiry goroutine that lives as long as the process,
// so the server builds exactly one cache at startup.
func NewResultCache(capacity int, ttl time.Duration) *ResultCache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ResultCache{
		lru:      expirable.NewLRU[string, Entry](capacity, nil, ttl),
		capacity: capacity,
		ttl:      ttl,
	}
}

// Get returns the entry for fingerprint and marks it most recently used
func (c *ResultCache) Get(fingerprint string) (Entry, bool) {
	return c.lru.Get(fingerprint)
}

// Set inserts or replaces the entry, restarting its TTL
func (c *ResultCache) Set(fingerprint string, entry Entry) {
	c.lru.Add(fingerprint, entry)
}

// Delete removes the entry if present
func (c *ResultCache) Delete(fingerprint string) {
	c.lru.Remove(fingerprint)
}

// Clear drops every entry
func (c *ResultCache) Clear() {
	c.lru.Purge()
}

// Stats returns the number of live entries and the configured capacity
func (c *ResultCache) Stats() Stats {
	return Stats{
		Size:     len(c.lru.Keys()),
		Capacity: c.capacity,
	}
}

// TTL returns the configured entry lifetime
func (c *ResultCache) TTL() time.Duration {
	return c.ttl
}
