// Package cache provides a bounded, concurrency-safe LRU used to memoize
// embedding vectors and candidate shortlists. Entries never expire by time;
// they persist for the life of the process and are evicted only by capacity.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
)

// DefaultCapacity bounds the embedding and shortlist caches.
const DefaultCapacity = 2000

// LRU is a bounded least-recently-used cache safe for concurrent use.
// Eviction order is maintained under a single mutex so recency is never
// corrupted by concurrent access.
type LRU[K comparable, V any] struct {
	mu        sync.Mutex
	capacity  int
	items     map[K]*list.Element
	evictList *list.List

	hits   atomic.Int64
	misses atomic.Int64
}

type entry[K comparable, V any] struct {
	key   K
	value V
}

// New creates an LRU holding at most capacity entries. A non-positive
// capacity falls back to DefaultCapacity.
func New[K comparable, V any](capacity int) *LRU[K, V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &LRU[K, V]{
		capacity:  capacity,
		items:     make(map[K]*list.Element),
		evictList: list.New(),
	}
}

// Get returns the cached value and marks it most recently used.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[key]; ok {
		c.hits.Add(1)
		c.evictList.MoveToFront(ent)
		return ent.Value.(*entry[K, V]).value, true
	}

	c.misses.Add(1)
	var zero V
	return zero, false
}

// Put inserts or refreshes a value, evicting the least recently used entry
// when the cache exceeds capacity.
func (c *LRU[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[key]; ok {
		c.evictList.MoveToFront(ent)
		ent.Value.(*entry[K, V]).value = value
		return
	}

	element := c.evictList.PushFront(&entry[K, V]{key: key, value: value})
	c.items[key] = element

	for c.evictList.Len() > c.capacity {
		c.removeElement(c.evictList.Back())
	}
}

// Evict removes a single entry. Returns true if the key was present.
func (c *LRU[K, V]) Evict(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	ent, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeElement(ent)
	return true
}

// Len returns the current number of entries.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictList.Len()
}

// Capacity returns the configured bound.
func (c *LRU[K, V]) Capacity() int {
	return c.capacity
}

// Stats returns cumulative hit and miss counts.
func (c *LRU[K, V]) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *LRU[K, V]) removeElement(e *list.Element) {
	if e == nil {
		return
	}
	c.evictList.Remove(e)
	delete(c.items, e.Value.(*entry[K, V]).key)
}
