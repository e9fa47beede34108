package usecase

import (
	"container/list"
	"strings"
	"sync"
	"time"

	"github.com/ktBigDeal/customs-clearance-sub000/internal/core/domain"
)

// classification is the full result of one classifier completion call. All
// three normalizer operations read from the same cached value.
type classification struct {
	Normalized string              `json:"normalized_query"`
	Expanded   string              `json:"expanded_query"`
	Intent     domain.IntentRecord `json:"intent"`
}

func cacheKey(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

type cacheEntry struct {
	key       string
	value     classification
	expiresAt time.Time
}

// classificationCache is a fixed-capacity LRU with per-entry TTL. Expired
// entries are evicted lazily on lookup. All operations are O(1).
type classificationCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	entries  map[string]*list.Element
	order    *list.List
	now      func() time.Time
}

func newClassificationCache(capacity int, ttl time.Duration) *classificationCache {
	if capacity <= 0 {
		capacity = 256
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &classificationCache{
		capacity: capacity,
		ttl:      ttl,
		entries:  make(map[string]*list.Element, capacity),
		order:    list.New(),
		now:      time.Now,
	}
}

func (c *classificationCache) Get(key string) (classification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return classification{}, false
	}
	entry := elem.Value.(*cacheEntry)
	if c.now().After(entry.expiresAt) {
		c.order.Remove(elem)
		delete(c.entries, key)
		return classification{}, false
	}
	c.order.MoveToFront(elem)
	return entry.value, true
}

func (c *classificationCache) Put(key string, value classification) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.value = value
		entry.expiresAt = c.now().Add(c.ttl)
		c.order.MoveToFront(elem)
		return
	}
	if c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).key)
		}
	}
	elem := c.order.PushFront(&cacheEntry{
		key:       key,
		value:     value,
		expiresAt: c.now().Add(c.ttl),
	})
	c.entries[key] = elem
}

func (c *classificationCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
