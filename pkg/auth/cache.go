package auth

import (
	"sync"
	"time"
)

// ValidationCache is a TTL-bounded, size-bounded, concurrency-safe
// cache for successful validation outcomes, keyed by a credential
// fingerprint (certificate thumbprint or token hash).
//
// Only successes are ever stored. Negative caching of auth failures is
// deliberately rejected: an invalid certificate can only become valid
// through reissuance, caching failures risks masking a fixed underlying
// issue, and a single compromised or rotated credential check would be
// amplified into a denial of service. Callers simply never Put a
// failure.
//
// Writes are idempotent (recomputing and reinserting the same key is
// harmless), so the cache needs no per-key locking; a single RWMutex
// over the map suffices.
type ValidationCache[V any] struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry[V]
	ttl     time.Duration
	maxSize int
}

type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// NewValidationCache creates a cache whose entries live for at most ttl
// and which holds at most maxSize entries. When full, expired entries
// are evicted first, then the entry closest to expiry.
func NewValidationCache[V any](ttl time.Duration, maxSize int) *ValidationCache[V] {
	return &ValidationCache[V]{
		entries: make(map[string]*cacheEntry[V]),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// Get returns the cached value for the fingerprint, if present and not
// expired.
func (c *ValidationCache[V]) Get(fingerprint string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[fingerprint]
	if !ok || time.Now().After(entry.expiresAt) {
		var zero V
		return zero, false
	}
	return entry.value, true
}

// Put stores a successful validation outcome under the fingerprint for
// the cache's full TTL.
func (c *ValidationCache[V]) Put(fingerprint string, value V) {
	c.PutUntil(fingerprint, value, time.Now().Add(c.ttl))
}

// PutUntil stores a successful validation outcome with an explicit
// upper bound on its lifetime. The effective expiry is the earlier of
// notAfter and the cache TTL, so a cached token entry never outlives
// the token itself. Values already expired are not stored.
func (c *ValidationCache[V]) PutUntil(fingerprint string, value V, notAfter time.Time) {
	expiresAt := time.Now().Add(c.ttl)
	if notAfter.Before(expiresAt) {
		expiresAt = notAfter
	}
	if !expiresAt.After(time.Now()) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxSize {
		if _, replacing := c.entries[fingerprint]; !replacing {
			c.evictLocked()
		}
	}
	c.entries[fingerprint] = &cacheEntry[V]{value: value, expiresAt: expiresAt}
}

// Evict removes the entry for the fingerprint, if any. Called when a
// credential is found revoked so that a previously cached success can
// never be served again.
func (c *ValidationCache[V]) Evict(fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, fingerprint)
}

// Len returns the number of entries currently held, including any that
// have expired but not yet been evicted.
func (c *ValidationCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// evictLocked frees space when the cache is at capacity: expired
// entries go first, then the live entry closest to expiry. Caller must
// hold the write lock.
func (c *ValidationCache[V]) evictLocked() {
	now := time.Now()
	for k, v := range c.entries {
		if now.After(v.expiresAt) {
			delete(c.entries, k)
		}
	}
	if len(c.entries) < c.maxSize {
		return
	}

	var oldestKey string
	var oldestTime time.Time
	first := true
	for k, v := range c.entries {
		if first || v.expiresAt.Before(oldestTime) {
			oldestKey = k
			oldestTime = v.expiresAt
			first = false
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
