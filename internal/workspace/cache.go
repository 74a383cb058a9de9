package workspace

import (
	"sort"
	"sync"
	"time"
)

// Cache memoizes evaluated resource values in memory. A missing entry is
// what dirty means here: invalidation drops the entry and the next
// evaluation recomputes it. Values never touch disk.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	value   any
	version uint64
	at      time.Time
}

// CacheInfo describes one cached value for status listings.
type CacheInfo struct {
	Resource   string
	Version    uint64
	ComputedAt time.Time
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]cacheEntry)}
}

// Get returns the cached value for name, if clean.
func (c *Cache) Get(name string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[name]
	if !ok {
		return nil, false
	}
	return e.value, true
}

// Put stores a freshly computed value tagged with the workspace version it
// was computed under.
func (c *Cache) Put(name string, value any, version uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[name] = cacheEntry{value: value, version: version, at: time.Now().UTC()}
}

// Invalidate drops the entries for the named resources.
func (c *Cache) Invalidate(names ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range names {
		delete(c.entries, name)
	}
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// Rename moves a cached value to a resource's new name.
func (c *Cache) Rename(old, newName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[old]; ok {
		delete(c.entries, old)
		c.entries[newName] = e
	}
}

// Len returns the number of cached values.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Entries lists cached values sorted by resource name.
func (c *Cache) Entries() []CacheInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]CacheInfo, 0, len(c.entries))
	for name, e := range c.entries {
		out = append(out, CacheInfo{Resource: name, Version: e.version, ComputedAt: e.at})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Resource < out[j].Resource })
	return out
}
