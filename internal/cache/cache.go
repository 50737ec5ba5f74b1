// Package cache provides the in-memory content cache mapping resolved file
// paths to the exact bytes last served for them.
package cache

import (
	"sync"
	"sync/atomic"
)

// ContentCache caches served response bytes keyed by resolved file path.
// Entries are only ever deleted and recreated, never updated in place; the
// file watcher owns invalidation. There is no TTL and no size bound — the
// cache is bounded by the number of distinct files touched in a session.
type ContentCache struct {
	entries map[string][]byte
	mutex   sync.RWMutex
	// Statistics tracking (atomic for thread safety)
	hits        int64
	misses      int64
	invalidates int64
}

// NewContentCache creates an empty content cache.
func NewContentCache() *ContentCache {
	return &ContentCache{
		entries: make(map[string][]byte),
	}
}

// Get retrieves the cached bytes for a path.
func (cc *ContentCache) Get(path string) ([]byte, bool) {
	cc.mutex.RLock()
	defer cc.mutex.RUnlock()

	value, exists := cc.entries[path]
	if !exists {
		atomic.AddInt64(&cc.misses, 1)
		return nil, false
	}

	atomic.AddInt64(&cc.hits, 1)
	return value, true
}

// Set stores the bytes served for a path.
func (cc *ContentCache) Set(path string, value []byte) {
	cc.mutex.Lock()
	defer cc.mutex.Unlock()

	cc.entries[path] = value
}

// Invalidate removes a path's entry. Idempotent.
func (cc *ContentCache) Invalidate(path string) {
	cc.mutex.Lock()
	defer cc.mutex.Unlock()

	if _, exists := cc.entries[path]; exists {
		delete(cc.entries, path)
		atomic.AddInt64(&cc.invalidates, 1)
	}
}

// Clear removes every entry and resets statistics.
func (cc *ContentCache) Clear() {
	cc.mutex.Lock()
	defer cc.mutex.Unlock()

	cc.entries = make(map[string][]byte)

	atomic.StoreInt64(&cc.hits, 0)
	atomic.StoreInt64(&cc.misses, 0)
	atomic.StoreInt64(&cc.invalidates, 0)
}

// Len returns the number of cached entries.
func (cc *ContentCache) Len() int {
	cc.mutex.RLock()
	defer cc.mutex.RUnlock()

	return len(cc.entries)
}

// GetHits returns the number of cache hits.
func (cc *ContentCache) GetHits() int64 {
	return atomic.LoadInt64(&cc.hits)
}

// GetMisses returns the number of cache misses.
func (cc *ContentCache) GetMisses() int64 {
	return atomic.LoadInt64(&cc.misses)
}

// GetInvalidations returns the number of entries removed by invalidation.
func (cc *ContentCache) GetInvalidations() int64 {
	return atomic.LoadInt64(&cc.invalidates)
}
