package resource

import (
	"container/list"
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/opencode-ai/agentctx/internal/metrics"
)

const (
	// DefaultCacheTTL is how long a cached resolution stays fresh.
	DefaultCacheTTL = 5 * time.Minute
	// DefaultCacheMaxEntries bounds the number of cached resolutions.
	DefaultCacheMaxEntries = 50
	// DefaultSweepInterval is the period of the expired-entry sweep.
	DefaultSweepInterval = time.Minute
)

// CacheKey derives the cache key for an agent's resource list. Changing any
// pattern, or their order, changes the key.
func CacheKey(name string, resources []string) string {
	if resources == nil {
		resources = []string{}
	}
	data, _ := json.Marshal(resources)
	return name + "-" + string(data)
}

type cacheEntry struct {
	key     string
	data    PresentationList
	created time.Time
}

// CacheConfig configures a Cache. Zero values select defaults.
type CacheConfig struct {
	TTL        time.Duration
	MaxEntries int
	Now        func() time.Time
	Metrics    *metrics.Metrics
	Logger     zerolog.Logger
}

// Cache holds presentation lists for a bounded time. When full, the entry
// inserted first is evicted, regardless of how recently it was read.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List

	ttl        time.Duration
	maxEntries int
	now        func() time.Time
	metrics    *metrics.Metrics
	log        zerolog.Logger
}

// NewCache creates an empty cache.
func NewCache(cfg CacheConfig) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultCacheTTL
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultCacheMaxEntries
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	return &Cache{
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		ttl:        cfg.TTL,
		maxEntries: cfg.MaxEntries,
		now:        cfg.Now,
		metrics:    cfg.Metrics,
		log:        cfg.Logger,
	}
}

// Get returns a copy of the fresh entry for key. A stale entry is removed
// and reported as absent.
func (c *Cache) Get(key string) (PresentationList, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if c.expired(entry) {
		c.remove(el, "ttl")
		return nil, false
	}
	return slices.Clone(entry.data), true
}

// Set stores data under key with a fresh timestamp. Overwriting a key keeps
// its insertion position; adding a key to a full cache evicts the oldest.
func (c *Cache) Set(key string, data PresentationList) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := slices.Clone(data)
	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*cacheEntry)
		entry.data = stored
		entry.created = c.now()
		return
	}

	for c.order.Len() >= c.maxEntries {
		oldest := c.order.Front()
		c.log.Debug().Str("key", oldest.Value.(*cacheEntry).key).Msg("evicting cache entry")
		c.remove(oldest, "capacity")
	}

	c.entries[key] = c.order.PushBack(&cacheEntry{key: key, data: stored, created: c.now()})
	c.metrics.CacheEntries.Set(float64(c.order.Len()))
}

// Invalidate removes key. It reports whether an entry was present.
func (c *Cache) Invalidate(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return false
	}
	c.remove(el, "invalidated")
	return true
}

// InvalidateAll empties the cache and returns the number of removed entries.
func (c *Cache) InvalidateAll() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.order.Len()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
	c.metrics.CacheEvictions.WithLabelValues("cleared").Add(float64(n))
	c.metrics.CacheEntries.Set(0)
	return n
}

// Sweep removes every expired entry and returns how many were removed.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if c.expired(el.Value.(*cacheEntry)) {
			c.remove(el, "ttl")
			removed++
		}
		el = next
	}
	if removed > 0 {
		c.log.Debug().Int("removed", removed).Msg("swept expired cache entries")
	}
	return removed
}

// Len returns the number of entries, fresh or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Keys returns the keys in insertion order.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*cacheEntry).key)
	}
	return keys
}

func (c *Cache) expired(entry *cacheEntry) bool {
	return c.now().Sub(entry.created) > c.ttl
}

// remove must be called with c.mu held.
func (c *Cache) remove(el *list.Element, reason string) {
	delete(c.entries, el.Value.(*cacheEntry).key)
	c.order.Remove(el)
	c.metrics.CacheEvictions.WithLabelValues(reason).Inc()
	c.metrics.CacheEntries.Set(float64(c.order.Len()))
}
