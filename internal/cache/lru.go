package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/opensource-finance/credbud/internal/domain"
)

// LRUCache is a thread-safe LRU cache with TTL support.
// Used as the Community tier cache and as L1 in two-phase caching.
type LRUCache struct {
	mu       sync.Mutex
	maxSize  int
	items    map[string]*list.Element
	order    *list.List
	counters map[string]*counterEntry
	now      func() time.Time
}

type cacheEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

type counterEntry struct {
	count     int64
	expiresAt time.Time
}

// NewLRUCache creates a new LRU cache holding at most maxSize entries.
func NewLRUCache(maxSize int) *LRUCache {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &LRUCache{
		maxSize:  maxSize,
		items:    make(map[string]*list.Element),
		order:    list.New(),
		counters: make(map[string]*counterEntry),
		now:      time.Now,
	}
}

// Get returns nil, nil on a miss or an expired entry.
func (c *LRUCache) Get(ctx context.Context, userID string, key string) ([]byte, error) {
	if userID == "" {
		return nil, ErrUserRequired
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[scopedKey(userID, key)]
	if !ok {
		return nil, nil
	}

	entry := elem.Value.(*cacheEntry)
	if entry.expired(c.now()) {
		c.removeElement(elem)
		return nil, nil
	}

	c.order.MoveToFront(elem)
	return entry.value, nil
}

// Set stores a value. A non-positive ttl keeps the entry until evicted.
func (c *LRUCache) Set(ctx context.Context, userID string, key string, value []byte, ttl time.Duration) error {
	if userID == "" {
		return ErrUserRequired
	}

	fullKey := scopedKey(userID, key)
	expiresAt := c.expiry(ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[fullKey]; ok {
		c.order.MoveToFront(elem)
		entry := elem.Value.(*cacheEntry)
		entry.value = value
		entry.expiresAt = expiresAt
		return nil
	}

	c.items[fullKey] = c.order.PushFront(&cacheEntry{
		key:       fullKey,
		value:     value,
		expiresAt: expiresAt,
	})

	for c.order.Len() > c.maxSize {
		c.removeElement(c.order.Back())
	}
	return nil
}

// Delete removes a value.
func (c *LRUCache) Delete(ctx context.Context, userID string, key string) error {
	if userID == "" {
		return ErrUserRequired
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[scopedKey(userID, key)]; ok {
		c.removeElement(elem)
	}
	return nil
}

// GetBehavior retrieves the cached behaviour summary.
func (c *LRUCache) GetBehavior(ctx context.Context, userID string) (*domain.FinancialBehavior, error) {
	return getBehavior(ctx, c, userID)
}

// SetBehavior caches the behaviour summary.
func (c *LRUCache) SetBehavior(ctx context.Context, userID string, fb *domain.FinancialBehavior, ttl time.Duration) error {
	return setBehavior(ctx, c, userID, fb, ttl)
}

// IncrementCounter counts within a fixed window opened by the first increment.
func (c *LRUCache) IncrementCounter(ctx context.Context, userID string, key string, window time.Duration) (int64, error) {
	if userID == "" {
		return 0, ErrUserRequired
	}

	fullKey := scopedKey(userID, "counter:"+key)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	entry, ok := c.counters[fullKey]
	if !ok || now.After(entry.expiresAt) {
		c.pruneCounters(now)
		c.counters[fullKey] = &counterEntry{count: 1, expiresAt: now.Add(window)}
		return 1, nil
	}

	entry.count++
	return entry.count, nil
}

// ResetCounter drops a counter.
func (c *LRUCache) ResetCounter(ctx context.Context, userID string, key string) error {
	if userID == "" {
		return ErrUserRequired
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.counters, scopedKey(userID, "counter:"+key))
	return nil
}

// Ping checks cache health.
func (c *LRUCache) Ping(ctx context.Context) error {
	return nil
}

// Close drops every entry.
func (c *LRUCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order = list.New()
	c.counters = make(map[string]*counterEntry)
	return nil
}

// Stats returns cache statistics.
func (c *LRUCache) Stats() (size int, capacity int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len(), c.maxSize
}

// expiry returns the zero time for entries that never expire.
func (c *LRUCache) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return c.now().Add(ttl)
}

func (e *cacheEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

func (c *LRUCache) pruneCounters(now time.Time) {
	for k, e := range c.counters {
		if now.After(e.expiresAt) {
			delete(c.counters, k)
		}
	}
}

func (c *LRUCache) removeElement(elem *list.Element) {
	if elem == nil {
		return
	}
	c.order.Remove(elem)
	delete(c.items, elem.Value.(*cacheEntry).key)
}

func scopedKey(userID, key string) string {
	return userID + ":" + key
}
