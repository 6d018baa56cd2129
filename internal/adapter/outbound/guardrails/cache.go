package guardrails

import (
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/javelin-guard/gateway/internal/domain/verdict"
)

// CacheStats is the snapshot returned by Client.CacheStats.
type CacheStats struct {
	Hits      uint64
	Misses    uint64
	Size      int
	Evictions uint64
}

// cache wraps an expirable LRU keyed by fingerprint. TTL expiry and
// overflow eviction are both handled by the underlying library; this type
// only adds the hit/miss/eviction counters Client.CacheStats exposes.
type cache struct {
	lru *lru.LRU[uint64, verdict.Verdict]

	mu        sync.Mutex
	hits      uint64
	misses    uint64
	evictions uint64
}

func newCache(ttl time.Duration, maxEntries int) *cache {
	c := &cache{}
	c.lru = lru.NewLRU[uint64, verdict.Verdict](maxEntries, func(_ uint64, _ verdict.Verdict) {
		c.mu.Lock()
		c.evictions++
		c.mu.Unlock()
	}, ttl)
	return c
}

// get returns the cached verdict for fingerprint, with fresh RequestID and
// Timestamp so a cache hit is indistinguishable from a freshly evaluated
// verdict, and whether it was a hit. Looking the entry up also refreshes
// its LRU recency, per expirable.LRU's Get semantics.
func (c *cache) get(fingerprint uint64) (verdict.Verdict, bool) {
	v, ok := c.lru.Get(fingerprint)
	c.mu.Lock()
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	c.mu.Unlock()

	if !ok {
		return verdict.Verdict{}, false
	}
	v.RequestID = uuid.NewString()
	v.Timestamp = time.Now().UTC()
	return v, true
}

func (c *cache) put(fingerprint uint64, v verdict.Verdict) {
	c.lru.Add(fingerprint, v)
}

func (c *cache) stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Hits:      c.hits,
		Misses:    c.misses,
		Size:      c.lru.Len(),
		Evictions: c.evictions,
	}
}

func (c *cache) clear() {
	c.lru.Purge()
}
