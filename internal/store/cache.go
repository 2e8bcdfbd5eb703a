// Package store provides the in-memory resolution cache and the persistent track store.
package store

import (
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	lru "github.com/hashicorp/golang-lru/v2"

	"spence/pkg/musiclink"
)

const (
	// DefaultCacheSize is the default number of cached resolutions.
	DefaultCacheSize = 10000
	// DefaultCacheTTL is the default age after which a cached resolution is stale.
	DefaultCacheTTL = 6 * time.Hour

	bloomFalsePositiveRate = 0.001
	// bloomRebuildFactor bounds how many keys the filter absorbs, relative to capacity, before it is rebuilt.
	bloomRebuildFactor = 4
)

type cacheEntry struct {
	track    musiclink.Track
	storedAt time.Time
}

// CacheStats is a point-in-time view of the cache.
type CacheStats struct {
	Size     int
	Capacity int
	TTL      time.Duration
}

// ResolutionCache is a bounded, TTL-checked, least-recently-used map from query to resolved track.
type ResolutionCache struct {
	entries  *lru.Cache[string, cacheEntry]
	bloom    *bloom.BloomFilter
	bloomAdd int
	mutex    sync.Mutex
	maxSize  int
	ttl      time.Duration
	now      func() time.Time
}

// NewResolutionCache creates a cache holding up to maxSize entries for ttl each.
// Non-positive arguments select the defaults.
func NewResolutionCache(maxSize int, ttl time.Duration) *ResolutionCache {
	if maxSize <= 0 {
		maxSize = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	entries, _ := lru.New[string, cacheEntry](maxSize)

	return &ResolutionCache{
		entries: entries,
		bloom:   bloom.NewWithEstimates(uint(maxSize), bloomFalsePositiveRate),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached track for key. Stale entries are evicted and reported as a miss;
// a hit marks the entry most recently used.
func (c *ResolutionCache) Get(key string) (*musiclink.Track, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.bloom.TestString(key) {
		return nil, false
	}

	entry, ok := c.entries.Peek(key)
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.storedAt) > c.ttl {
		c.entries.Remove(key)
		return nil, false
	}

	c.entries.Get(key)
	track := entry.track
	return &track, true
}

// Set stores a copy of track under key, replacing and refreshing any existing entry.
// When the cache is full the least recently used entry is evicted.
func (c *ResolutionCache) Set(key string, track *musiclink.Track) {
	c.SetAt(key, track, time.Time{})
}

// SetAt is Set for a track resolved at storedAt, which keeps its age when promoted from a slower tier.
// A zero storedAt means now. Tracks already older than the TTL are not stored.
func (c *ResolutionCache) SetAt(key string, track *musiclink.Track, storedAt time.Time) {
	if track == nil {
		return
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now()
	if storedAt.IsZero() || storedAt.After(now) {
		storedAt = now
	}
	if now.Sub(storedAt) > c.ttl {
		return
	}

	c.entries.Add(key, cacheEntry{track: *track, storedAt: storedAt})
	c.bloom.AddString(key)
	c.bloomAdd++

	if c.bloomAdd > c.maxSize*bloomRebuildFactor {
		c.rebuildBloom()
	}
}

// Clear removes every entry.
func (c *ResolutionCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.entries.Purge()
	c.rebuildBloom()
}

// Len returns the number of entries, including stale ones not yet evicted.
func (c *ResolutionCache) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.entries.Len()
}

// Stats returns the current size and configuration.
func (c *ResolutionCache) Stats() CacheStats {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return CacheStats{Size: c.entries.Len(), Capacity: c.maxSize, TTL: c.ttl}
}

// rebuildBloom resets the filter to the live keys; the filter cannot forget removed keys on its own.
func (c *ResolutionCache) rebuildBloom() {
	c.bloom = bloom.NewWithEstimates(uint(c.maxSize), bloomFalsePositiveRate)
	c.bloomAdd = 0
	for _, key := range c.entries.Keys() {
		c.bloom.AddString(key)
		c.bloomAdd++
	}
}
