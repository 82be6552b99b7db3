package verifier

import "sync"

// CallerId mirrors kvstore.CallerId without importing kvstore, keeping this
// package usable standalone (the frontend converts at the call site).
type CallerId int

// Cache holds at most one Verifier per CallerId, built lazily on first use
// via Factory and never evicted by default — spec.md §3/§9 flags the
// original's unbounded std::map as a TODO for an LRU; NewBoundedCache
// implements that as an opt-in rather than the default.
type Cache struct {
	mu       sync.Mutex
	factory  Factory
	capacity int // 0 means unbounded

	entries map[CallerId]Verifier
	order   []CallerId // least-recently-used first; only maintained when bounded
}

// NewCache returns an unbounded verifier cache.
func NewCache(factory Factory) *Cache {
	return &Cache{factory: factory, entries: make(map[CallerId]Verifier)}
}

// NewBoundedCache returns a verifier cache that evicts the least-recently
// used entry once more than capacity callers have been seen.
func NewBoundedCache(factory Factory, capacity int) *Cache {
	return &Cache{factory: factory, capacity: capacity, entries: make(map[CallerId]Verifier)}
}

// GetOrCreate returns the cached Verifier for id, building and caching one
// from callerCert via Factory if this is the first use.
func (c *Cache) GetOrCreate(id CallerId, callerCert []byte) (Verifier, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.entries[id]; ok {
		c.touch(id)
		return v, nil
	}

	v, err := c.factory(callerCert)
	if err != nil {
		return nil, err
	}
	c.entries[id] = v
	c.touch(id)
	c.evictIfNeeded()
	return v, nil
}

// touch records id as most-recently-used; a no-op for unbounded caches.
func (c *Cache) touch(id CallerId) {
	if c.capacity <= 0 {
		return
	}
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.order = append(c.order, id)
}

func (c *Cache) evictIfNeeded() {
	if c.capacity <= 0 {
		return
	}
	for len(c.order) > c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}

// Len reports the number of cached entries, for tests.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
