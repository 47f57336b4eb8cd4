package cache

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"
)

type memoryEntry struct {
	key   string
	entry Entry
}

// memoryCache is a bounded in-memory derivative store. Eviction order is
// tracked with a list of keys: front is next to evict. With promoteOnGet
// unset the list is pure insertion order (FIFO), and a hit does not refresh an
// entry's position, so the oldest insertion is always evicted first. With
// promoteOnGet set it becomes recency order (LRU).
type memoryCache struct {
	capacity     int
	promoteOnGet bool

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List
}

// NewFIFO builds a derivative cache with insertion-order eviction. This is
// the default policy: O(1) bookkeeping, and a hit never rescues an entry
// from eviction.
func NewFIFO(capacity int) DerivativeCache {
	return newMemory(capacity, false)
}

// NewLRU builds a derivative cache that promotes entries on access so the
// least recently used derivative is evicted first.
func NewLRU(capacity int) DerivativeCache {
	return newMemory(capacity, true)
}

func newMemory(capacity int, promoteOnGet bool) *memoryCache {
	if capacity <= 0 {
		capacity = 100
	}
	return &memoryCache{
		capacity:     capacity,
		promoteOnGet: promoteOnGet,
		entries:      make(map[string]*list.Element, capacity),
		order:        list.New(),
	}
}

func (c *memoryCache) Get(_ context.Context, key string) (Entry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.entries[key]
	if !ok {
		return Entry{}, false, nil
	}
	if c.promoteOnGet {
		c.order.MoveToBack(elem)
	}
	return cloneEntry(elem.Value.(memoryEntry).entry), true, nil
}

func (c *memoryCache) Put(_ context.Context, key string, entry Entry) error {
	if entry.StoredAt.IsZero() {
		entry.StoredAt = time.Now().UTC()
	}
	entry = cloneEntry(entry)

	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[key]; ok {
		// Concurrent misses for the same key both compute; the last write
		// wins without disturbing the entry's eviction position.
		elem.Value = memoryEntry{key: key, entry: entry}
		return nil
	}
	if len(c.entries) >= c.capacity {
		c.evictOldest()
	}
	c.entries[key] = c.order.PushBack(memoryEntry{key: key, entry: entry})
	return nil
}

// evictOldest removes exactly one entry from the front of the order list.
// Callers must hold the mutex.
func (c *memoryCache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	c.order.Remove(front)
	delete(c.entries, front.Value.(memoryEntry).key)
}

func (c *memoryCache) DeletePrefix(_ context.Context, prefix string) error {
	if prefix == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for elem := c.order.Front(); elem != nil; {
		next := elem.Next()
		if me := elem.Value.(memoryEntry); strings.HasPrefix(me.key, prefix) {
			c.order.Remove(elem)
			delete(c.entries, me.key)
		}
		elem = next
	}
	return nil
}

func (c *memoryCache) Clear(_ context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := len(c.entries)
	c.entries = make(map[string]*list.Element, c.capacity)
	c.order.Init()
	return removed, nil
}

func (c *memoryCache) Size(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int64(len(c.entries)), nil
}

func (c *memoryCache) Close(_ context.Context) error {
	return nil
}
