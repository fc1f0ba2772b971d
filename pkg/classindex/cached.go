package classindex

import (
	"sync"

	"github.com/golang/groupcache/lru"
)

// Cached keeps the most recently used class bytes of an underlying index.
// Misses are not cached.
type Cached struct {
	inner Index

	mu    sync.Mutex
	cache *lru.Cache

	hits, misses int
}

// NewCached wraps inner with an LRU cache of at most size classes.
// A size of 0 means no limit.
func NewCached(inner Index, size int) *Cached {
	return &Cached{inner: inner, cache: lru.New(size)}
}

func (c *Cached) LookupClassBytes(name string) ([]byte, error) {
	c.mu.Lock()
	if v, ok := c.cache.Get(name); ok {
		c.hits++
		c.mu.Unlock()
		return v.([]byte), nil
	}
	c.misses++
	c.mu.Unlock()

	data, err := c.inner.LookupClassBytes(name)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache.Add(name, data)
	c.mu.Unlock()
	return data, nil
}

// Stats returns the number of cache hits and misses so far.
func (c *Cached) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
