package rules

import "time"

// DocumentCache is an abstraction over the read-only cache of parsed,
// validated rule documents keyed by (name, version). Implementations
// must be safe for concurrent use; the engine populates the cache
// lazily with a get-or-load-once pattern.
type DocumentCache interface {
	// Get retrieves a cached document, or nil on miss/expiry.
	Get(name, version string) *RuleDocument

	// Set stores a validated document.
	Set(doc *RuleDocument)

	// Invalidate clears the cache, forcing reloads on next Get.
	Invalidate()

	// Len reports the number of live entries.
	Len() int
}

// CacheConfig holds configuration for cache behavior.
type CacheConfig struct {
	// TTL is the time-to-live for cached documents. Documents are
	// immutable, so 0 (never expire) is the sensible default; a TTL
	// only bounds memory when many versions churn through.
	TTL time.Duration
}

// DefaultCacheConfig returns the defaults for document caching.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 0}
}
