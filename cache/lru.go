// Package cache provides the in-process L1 cache used to memoize model
// call results between turns.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Cache is a bounded key/value store with per-entry expiry. A ttl of zero
// on Set falls back to the cache default.
type Cache interface {
	Get(key string) (any, bool)
	Set(key string, value any, ttl time.Duration)
	Purge()
}

// item is what the recency list carries; the index map points straight at
// the list element so lookup, touch, and removal are all O(1).
type item struct {
	key      string
	value    any
	deadline time.Time
}

type lruCache struct {
	mu         sync.Mutex
	maxEntries int
	defaultTTL time.Duration
	index      map[string]*list.Element
	recency    *list.List // front = most recently used
}

// NewLRU builds a cache evicting the least recently used entry beyond
// maxEntries. Non-positive arguments take the defaults of 512 entries and
// a one minute TTL.
func NewLRU(maxEntries int, defaultTTL time.Duration) Cache {
	if maxEntries <= 0 {
		maxEntries = 512
	}
	if defaultTTL <= 0 {
		defaultTTL = time.Minute
	}
	return &lruCache{
		maxEntries: maxEntries,
		defaultTTL: defaultTTL,
		index:      make(map[string]*list.Element, maxEntries),
		recency:    list.New(),
	}
}

// Get returns the live value for key and marks it most recently used. An
// expired entry is dropped on the spot and reported as a miss.
func (c *lruCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.index[key]
	if !ok {
		return nil, false
	}
	it := elem.Value.(*item)
	if !it.deadline.IsZero() && !time.Now().Before(it.deadline) {
		c.drop(elem)
		return nil, false
	}
	c.recency.MoveToFront(elem)
	return it.value, true
}

// Set stores value under key, replacing any previous entry. When the cache
// is full the least recently used entry makes room.
func (c *lruCache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := c.deadlineFor(ttl)
	if elem, ok := c.index[key]; ok {
		it := elem.Value.(*item)
		it.value = value
		it.deadline = deadline
		c.recency.MoveToFront(elem)
		return
	}

	for len(c.index) >= c.maxEntries {
		oldest := c.recency.Back()
		if oldest == nil {
			break
		}
		c.drop(oldest)
	}
	c.index[key] = c.recency.PushFront(&item{key: key, value: value, deadline: deadline})
}

// Purge empties the cache.
func (c *lruCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.index = make(map[string]*list.Element, c.maxEntries)
	c.recency.Init()
}

// Len reports the number of entries, counting expired ones not yet swept.
func (c *lruCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.index)
}

func (c *lruCache) deadlineFor(ttl time.Duration) time.Time {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}

// drop removes the element from both the recency list and the index. The
// caller holds the lock.
func (c *lruCache) drop(elem *list.Element) {
	c.recency.Remove(elem)
	delete(c.index, elem.Value.(*item).key)
}
