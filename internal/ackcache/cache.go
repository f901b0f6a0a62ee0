// Package ackcache implements a bounded, expiring key/value table.
//
// Entries carry a stamp (the moment they were last written) and are kept
// ordered by it. Eviction is lazy: nothing runs in the background, every
// Put/Get first drops entries older than the TTL and then, if the table is
// over capacity, the entries with the oldest stamps.
//
// A Cache is not safe for concurrent use. The owner (one boat record in
// the gateway) serializes access with its own mutex.
package ackcache

import (
	"container/list"
	"time"

	"seaguard-gateway/internal/clock"
)

type item[K comparable, V any] struct {
	key   K
	value V
	stamp time.Time
}

// Cache is a capacity + TTL bounded table ordered by entry stamp.
type Cache[K comparable, V any] struct {
	capacity int
	ttl      time.Duration
	clock    clock.Clock

	order *list.List // *item[K, V], oldest stamp at the front
	items map[K]*list.Element
}

// New creates a cache holding at most capacity entries, each living at most
// ttl past its stamp. capacity <= 0 disables the size bound, ttl <= 0
// disables expiry.
func New[K comparable, V any](capacity int, ttl time.Duration, clk clock.Clock) *Cache[K, V] {
	if clk == nil {
		clk = clock.Real()
	}
	return &Cache[K, V]{
		capacity: capacity,
		ttl:      ttl,
		clock:    clk,
		order:    list.New(),
		items:    make(map[K]*list.Element),
	}
}

// Put stores value under key with the given stamp, replacing any previous
// entry (last write wins), then applies the eviction policy. It returns the
// number of entries evicted.
func (c *Cache[K, V]) Put(key K, value V, stamp time.Time) int {
	if el, ok := c.items[key]; ok {
		c.order.Remove(el)
		delete(c.items, key)
	}

	it := &item[K, V]{key: key, value: value, stamp: stamp}

	// New stamps are almost always the newest, so search from the back.
	var el *list.Element
	for e := c.order.Back(); e != nil; e = e.Prev() {
		if !e.Value.(*item[K, V]).stamp.After(stamp) {
			el = c.order.InsertAfter(it, e)
			break
		}
	}
	if el == nil {
		el = c.order.PushFront(it)
	}
	c.items[key] = el

	return c.Prune()
}

// Get returns the entry for key. Expired entries are dropped first, so an
// entry past its TTL is reported as missing.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.expire()

	el, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	return el.Value.(*item[K, V]).value, true
}

// Prune applies the TTL rule and then the capacity rule.
func (c *Cache[K, V]) Prune() int {
	evicted := c.expire()

	if c.capacity > 0 {
		for c.order.Len() > c.capacity {
			c.remove(c.order.Front())
			evicted++
		}
	}
	return evicted
}

// Len returns the number of stored entries, including any that expired
// since the last touch.
func (c *Cache[K, V]) Len() int {
	return c.order.Len()
}

// Keys returns the stored keys ordered oldest stamp first.
func (c *Cache[K, V]) Keys() []K {
	keys := make([]K, 0, c.order.Len())
	for e := c.order.Front(); e != nil; e = e.Next() {
		keys = append(keys, e.Value.(*item[K, V]).key)
	}
	return keys
}

func (c *Cache[K, V]) expire() int {
	if c.ttl <= 0 {
		return 0
	}

	now := c.clock.Now()
	evicted := 0
	for e := c.order.Front(); e != nil; e = c.order.Front() {
		if now.Sub(e.Value.(*item[K, V]).stamp) <= c.ttl {
			break
		}
		c.remove(e)
		evicted++
	}
	return evicted
}

func (c *Cache[K, V]) remove(e *list.Element) {
	it := c.order.Remove(e).(*item[K, V])
	delete(c.items, it.key)
}
