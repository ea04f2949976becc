// Package cache keeps recently scanned transaction lists per (address, chain)
// for a short fixed TTL.
package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/Mohsinsiddi/txscan/internal/metrics"
	"github.com/Mohsinsiddi/txscan/internal/scan"
)

// TTL is how long a scan result stays fresh.
const TTL = 2 * time.Minute

type key struct {
	address string
	chainID int64
}

type entry struct {
	records []scan.Record
	created time.Time
}

// Cache maps (address, chain) to the records of the last scan. Expired
// entries are never returned and are dropped on the read that finds them.
type Cache struct {
	mu      sync.RWMutex
	entries map[key]entry
	now     func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[key]entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func keyFor(address string, chainID int64) key {
	return key{address: strings.ToLower(address), chainID: chainID}
}

// Get returns a copy of the cached records, or false if absent or expired.
func (c *Cache) Get(address string, chainID int64) ([]scan.Record, bool) {
	k := keyFor(address, chainID)

	c.mu.RLock()
	e, ok := c.entries[k]
	c.mu.RUnlock()

	if !ok {
		metrics.CacheMiss()
		return nil, false
	}
	if c.now().Sub(e.created) >= TTL {
		c.mu.Lock()
		// re-check: a concurrent Put may have refreshed the entry
		if cur, ok := c.entries[k]; ok && cur.created.Equal(e.created) {
			delete(c.entries, k)
		}
		c.mu.Unlock()
		metrics.CacheMiss()
		return nil, false
	}
	metrics.CacheHit()
	return scan.Clone(e.records), true
}

// Put stores records for (address, chainID), replacing any previous entry.
func (c *Cache) Put(address string, chainID int64, records []scan.Record) {
	stored := scan.Clone(records)
	if stored == nil {
		stored = []scan.Record{}
	}
	c.mu.Lock()
	c.entries[keyFor(address, chainID)] = entry{records: stored, created: c.now()}
	c.mu.Unlock()
}

// Evict removes the entry for (address, chainID).
func (c *Cache) Evict(address string, chainID int64) {
	c.mu.Lock()
	delete(c.entries, keyFor(address, chainID))
	c.mu.Unlock()
}

// EvictAddress removes every entry for address on any chain.
func (c *Cache) EvictAddress(address string) {
	addr := strings.ToLower(address)
	c.mu.Lock()
	for k := range c.entries {
		if k.address == addr {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	clear(c.entries)
	c.mu.Unlock()
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
