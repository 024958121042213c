package rules

import (
	"sync"
	"time"
)

// InMemoryDocumentCache is a map-backed DocumentCache, safe for
// concurrent access. Cached documents are shared, not copied; they are
// immutable after validation so sharing is safe.
type InMemoryDocumentCache struct {
	entries map[string]cacheEntry
	config  CacheConfig
	mu      sync.RWMutex
}

type cacheEntry struct {
	doc      *RuleDocument
	cachedAt time.Time
}

// NewInMemoryDocumentCache creates an empty cache.
func NewInMemoryDocumentCache(config CacheConfig) *InMemoryDocumentCache {
	return &InMemoryDocumentCache{
		entries: make(map[string]cacheEntry),
		config:  config,
	}
}

func cacheKey(name, version string) string {
	return name + "@" + version
}

func (c *InMemoryDocumentCache) Get(name, version string) *RuleDocument {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[cacheKey(name, version)]
	if !ok {
		return nil
	}
	if c.config.TTL > 0 && time.Since(entry.cachedAt) > c.config.TTL {
		return nil
	}
	return entry.doc
}

func (c *InMemoryDocumentCache) Set(doc *RuleDocument) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[cacheKey(doc.Name, doc.Version)] = cacheEntry{
		doc:      doc,
		cachedAt: time.Now(),
	}
}

func (c *InMemoryDocumentCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]cacheEntry)
}

func (c *InMemoryDocumentCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}
