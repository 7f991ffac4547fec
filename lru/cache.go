// Package lru implements a fixed-capacity, generically-typed LRU cache and a
// memoizing wrapper built on top of it.
//
// The cache pairs a hash index with a doubly-linked recency list. List nodes
// live in an arena and are addressed by handles, so the index can locate a
// node in O(1) without owning it.
//
// Cache is not safe for concurrent use. Callers sharing one across goroutines
// must serialize every operation, Get included, since reads reorder the list.
package lru

import (
	"github.com/satmihir/justlru/internal/utils"
)

// Cache is a fixed-capacity LRU cache.
// The zero value is not usable; create instances with New.
type Cache[K comparable, V any] struct {
	capacity int
	index    map[K]handle
	list     *recencyList[K, V]
	size     int

	hits   uint64
	misses uint64

	onEvict func(key K, value V)
}

// Option configures a Cache.
type Option[K comparable, V any] func(*Cache[K, V])

// WithEvictCallback registers fn to be called with every entry evicted to make
// room for a new key or removed through RemoveOldest. Explicit Remove and
// Purge do not trigger it.
func WithEvictCallback[K comparable, V any](fn func(key K, value V)) Option[K, V] {
	return func(c *Cache[K, V]) {
		c.onEvict = fn
	}
}

// New creates a cache holding at most capacity entries. It returns a
// *ConfigError wrapping ErrInvalidCapacity if capacity is not positive.
func New[K comparable, V any](capacity int, opts ...Option[K, V]) (*Cache[K, V], error) {
	if capacity <= 0 {
		return nil, newCapacityError(capacity)
	}
	c := &Cache[K, V]{
		capacity: capacity,
		index:    make(map[K]handle, capacity),
		list:     newRecencyList[K, V](capacity),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get returns the value stored under key and marks it most recently used.
// A miss is reported through ok and counted; it is not an error.
func (c *Cache[K, V]) Get(key K) (value V, ok bool) {
	h, ok := c.index[key]
	if !ok {
		c.misses++
		return value, false
	}
	c.hits++
	c.relink(h)
	return c.list.nodes[h].value, true
}

// Put stores value under key as the most recently used entry. Inserting a new
// key into a full cache first evicts the least recently used entry.
func (c *Cache[K, V]) Put(key K, value V) {
	if h, ok := c.index[key]; ok {
		utils.MustBeTrue(c.list.remove(h), errIndexedNodeUnlinked)
		c.list.nodes[h].value = value
		utils.MustBeTrue(c.list.append(h), errRelinkFailed)
		return
	}

	if c.size >= c.capacity {
		k, v, ok := c.removeOldest()
		utils.MustBeTrue(ok, errEvictEmpty)
		if c.onEvict != nil {
			c.onEvict(k, v)
		}
	}

	h := c.list.alloc(key, value)
	utils.MustBeTrue(c.list.append(h), errRelinkFailed)
	c.index[key] = h
	c.size++
	c.assertSize()
}

// Contains reports whether key is resident. It changes neither the recency
// order nor the hit/miss counters.
func (c *Cache[K, V]) Contains(key K) bool {
	_, ok := c.index[key]
	return ok
}

// Peek returns the value for key without updating recency or counters.
func (c *Cache[K, V]) Peek(key K) (value V, ok bool) {
	h, ok := c.index[key]
	if !ok {
		return value, false
	}
	return c.list.nodes[h].value, true
}

// Remove drops key from the cache. It returns false if key was not present.
func (c *Cache[K, V]) Remove(key K) bool {
	h, ok := c.index[key]
	if !ok {
		return false
	}
	c.drop(key, h)
	return true
}

// RemoveOldest evicts the least recently used entry and returns it.
func (c *Cache[K, V]) RemoveOldest() (key K, value V, ok bool) {
	key, value, ok = c.removeOldest()
	if ok && c.onEvict != nil {
		c.onEvict(key, value)
	}
	return key, value, ok
}

// Oldest returns the least recently used entry without removing it.
func (c *Cache[K, V]) Oldest() (key K, value V, ok bool) {
	h, ok := c.list.oldest()
	if !ok {
		return key, value, false
	}
	n := &c.list.nodes[h]
	return n.key, n.value, true
}

// Keys returns all resident keys, least recently used first.
func (c *Cache[K, V]) Keys() []K {
	keys := make([]K, 0, c.size)
	c.list.walk(func(_ handle, n *node[K, V]) bool {
		keys = append(keys, n.key)
		return true
	})
	return keys
}

// Len returns the number of resident entries.
func (c *Cache[K, V]) Len() int {
	return c.size
}

// Capacity returns the maximum number of entries.
func (c *Cache[K, V]) Capacity() int {
	return c.capacity
}

// Purge drops every entry. Hit and miss counters are kept.
func (c *Cache[K, V]) Purge() {
	c.index = make(map[K]handle, c.capacity)
	c.list = newRecencyList[K, V](c.capacity)
	c.size = 0
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[K, V]) Stats() Stats {
	return Stats{
		Hits:     c.hits,
		Misses:   c.misses,
		Capacity: c.capacity,
		Size:     c.size,
	}
}

func (c *Cache[K, V]) String() string {
	return c.Stats().String()
}

// Dump renders the recency list from head to tail, one node per line.
func (c *Cache[K, V]) Dump() string {
	return c.list.String()
}

// relink moves h to the most recently used end.
func (c *Cache[K, V]) relink(h handle) {
	utils.MustBeTrue(c.list.remove(h), errIndexedNodeUnlinked)
	utils.MustBeTrue(c.list.append(h), errRelinkFailed)
}

func (c *Cache[K, V]) removeOldest() (key K, value V, ok bool) {
	h, ok := c.list.oldest()
	if !ok {
		return key, value, false
	}
	n := &c.list.nodes[h]
	key, value = n.key, n.value
	utils.MustBeTrue(c.index[key] == h, errEvictIndexMismatch)
	c.drop(key, h)
	return key, value, true
}

// drop unlinks h, removes key from the index and frees the slot.
func (c *Cache[K, V]) drop(key K, h handle) {
	utils.MustBeTrue(c.list.remove(h), errIndexedNodeUnlinked)
	delete(c.index, key)
	utils.MustBeTrue(c.list.release(h), errReleaseLinked)
	c.size--
	c.assertSize()
}

func (c *Cache[K, V]) assertSize() {
	utils.MustBeTrue(c.size == len(c.index) && c.size == c.list.len() && c.size <= c.capacity, errSizeMismatch)
}

// checkInvariants walks the whole list in both directions and verifies it
// against the index. It is O(n) and meant for tests.
func (c *Cache[K, V]) checkInvariants() error {
	if c.size != len(c.index) || c.size != c.list.len() || c.size > c.capacity {
		return errSizeMismatch
	}
	forward := 0
	var err error
	c.list.walk(func(h handle, n *node[K, V]) bool {
		forward++
		if !n.linked() {
			err = errIndexedNodeUnlinked
			return false
		}
		if got, ok := c.index[n.key]; !ok || got != h {
			err = errEvictIndexMismatch
			return false
		}
		return true
	})
	if err != nil {
		return err
	}
	backward := 0
	c.list.walkBackward(func(handle, *node[K, V]) bool {
		backward++
		return true
	})
	if forward != c.size || backward != c.size {
		return errSizeMismatch
	}
	return nil
}
