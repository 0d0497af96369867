package cache

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/gidref/core"
	"github.com/hupe1980/gidref/gid"
	"github.com/hupe1980/gidref/resource"
)

// LRU is an AddressCache bounded by entry count and, optionally, by the
// memory budget of a resource.Controller. The front of order is the most
// recently used entry.
type LRU struct {
	mu       sync.Mutex
	capacity int
	items    map[gid.GID]*list.Element
	order    *list.List
	rc       *resource.Controller

	hits   atomic.Int64
	misses atomic.Int64
}

type entry struct {
	key   gid.GID
	value core.Address
}

// NewLRU returns a cache of at most capacity entries. A nil rc charges no
// memory.
func NewLRU(capacity int, rc *resource.Controller) *LRU {
	return &LRU{
		capacity: max(capacity, 1),
		items:    make(map[gid.GID]*list.Element),
		order:    list.New(),
		rc:       rc,
	}
}

// Get returns a cached address.
func (c *LRU) Get(id gid.GID) (core.Address, bool) {
	k := key(id)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[k]
	if !ok {
		c.misses.Add(1)
		return core.Address{}, false
	}
	c.hits.Add(1)
	c.order.MoveToFront(e)
	return e.Value.(*entry).value, true
}

// Set caches an address. Identifiers flagged dont-cache are ignored.
func (c *LRU) Set(id gid.GID, addr core.Address) {
	if id.DontCache() {
		return
	}
	k := key(id)

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items[k]; ok {
		e.Value.(*entry).value = addr
		c.order.MoveToFront(e)
		return
	}

	// evict first so the released budget can be reused
	for c.order.Len() >= c.capacity {
		c.removeElement(c.order.Back())
	}
	if c.rc != nil && !c.rc.TryAcquireMemory(entrySize) {
		return
	}

	c.items[k] = c.order.PushFront(&entry{key: k, value: addr})
}

// Delete removes id from the cache.
func (c *LRU) Delete(id gid.GID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items[key(id)]; ok {
		c.removeElement(e)
	}
}

// Invalidate removes the entries matching predicate and returns how many
// were removed.
func (c *LRU) Invalidate(predicate func(id gid.GID, addr core.Address) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for e := c.order.Front(); e != nil; {
		next := e.Next()
		if ent := e.Value.(*entry); predicate(ent.key, ent.value) {
			c.removeElement(e)
			n++
		}
		e = next
	}
	return n
}

// Stats returns hit/miss statistics.
func (c *LRU) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Len returns the number of cached entries.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *LRU) removeElement(e *list.Element) {
	delete(c.items, c.order.Remove(e).(*entry).key)
	if c.rc != nil {
		c.rc.ReleaseMemory(entrySize)
	}
}
