package threatintel

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/kr1s57/sshsentinel/internal/entity"
	"github.com/kr1s57/sshsentinel/internal/metrics"
)

// CacheStore persists reputation records so restarts warm the cache
// instead of re-spending API quota. Implemented by the badger store.
type CacheStore interface {
	PutReputation(rec *entity.ReputationRecord, ttl time.Duration) error
	ListReputation() ([]entity.ReputationRecord, error)
}

// Cache stores reputation records keyed by (source, ip) with a TTL.
// Size-bounded so a scan of many IPs cannot grow it without limit.
type Cache struct {
	lru    *expirable.LRU[string, *entity.ReputationRecord]
	ttl    time.Duration
	store  CacheStore // nil = memory only
	hits   atomic.Uint64
	misses atomic.Uint64
}

// CacheStats contains cache statistics
type CacheStats struct {
	Size    int     `json:"size"`
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// NewCache creates a reputation cache. The TTL passed here is the upper
// bound; sources with shorter quota-driven TTLs enforce theirs via
// record age at read time.
func NewCache(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = 10000
	}
	return &Cache{
		lru: expirable.NewLRU[string, *entity.ReputationRecord](size, nil, ttl),
		ttl: ttl,
	}
}

// AttachStore enables write-through persistence and loads the records
// that survived the last shutdown. Call before the cache is shared.
func (c *Cache) AttachStore(store CacheStore) (int, error) {
	c.store = store
	records, err := store.ListReputation()
	if err != nil {
		return 0, fmt.Errorf("warm reputation cache: %w", err)
	}
	warmed := 0
	for i := range records {
		rec := records[i]
		if c.ttl > 0 && time.Since(rec.FetchedAt) > c.ttl {
			continue
		}
		c.lru.Add(cacheKey(rec.Source, rec.IP), &rec)
		warmed++
	}
	return warmed, nil
}

func cacheKey(source, ip string) string {
	return source + "|" + ip
}

// Get returns the cached record for (source, ip) if it is younger than
// maxAge
func (c *Cache) Get(source, ip string, maxAge time.Duration) (*entity.ReputationRecord, bool) {
	rec, ok := c.lru.Get(cacheKey(source, ip))
	if !ok || time.Since(rec.FetchedAt) > maxAge {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	metrics.ReputationLookupsTotal.WithLabelValues("cache_hit").Inc()

	// Copy so callers cannot mutate the cached record
	out := *rec
	return &out, true
}

// Set stores a record under (source, ip). Every successful remote fetch
// lands here exactly once.
func (c *Cache) Set(source, ip string, rec *entity.ReputationRecord) {
	metrics.ReputationLookupsTotal.WithLabelValues("fetched").Inc()
	c.lru.Add(cacheKey(source, ip), rec)
	if c.store != nil {
		// Best effort: a persistence failure degrades restart warmth, not
		// the lookup
		_ = c.store.PutReputation(rec, c.ttl)
	}
}

// Purge drops every entry
func (c *Cache) Purge() {
	c.lru.Purge()
}

// Stats returns cache statistics
func (c *Cache) Stats() CacheStats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	total := hits + misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return CacheStats{
		Size:    c.lru.Len(),
		Hits:    hits,
		Misses:  misses,
		HitRate: hitRate,
	}
}
