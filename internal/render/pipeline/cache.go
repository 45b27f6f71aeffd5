// Package pipeline tracks draw state on top of a gpu.Device and memoises
// the pipeline layouts, render passes, framebuffers and pipelines that
// state resolves to.
package pipeline

import (
	"sync/atomic"

	"github.com/ecsrender/engine/internal/render/gpu"
)

// nextID hands out entry ids that are unique across every cache in the
// process, so one entry's id can be embedded in another cache's key.
var nextID atomic.Uint64

// Key is a cache key. Two keys name the same object iff they are equal;
// Hash is only reported.
type Key interface {
	comparable
	Hash() uint64
}

type Entry struct {
	ID     uint64
	Hash   uint64
	Handle gpu.Handle
}

type CacheStats struct {
	Name   string
	Size   int
	Hits   uint64
	Misses uint64
}

// HitRate is hits over lookups, or zero before the first lookup.
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Cache is a lookup-or-create map from key to device object. It is not safe
// for concurrent use.
type Cache[K Key] struct {
	name    string
	entries map[K]*Entry
	hits    uint64
	misses  uint64
}

func NewCache[K Key](name string) *Cache[K] {
	return &Cache[K]{name: name, entries: make(map[K]*Entry)}
}

// Get returns the entry for key, calling create on a miss. A failed create
// is returned to the caller and nothing is stored.
func (c *Cache[K]) Get(key K, create func(K) (gpu.Handle, error)) (*Entry, error) {
	if e, ok := c.entries[key]; ok {
		c.hits++
		return e, nil
	}
	h, err := create(key)
	if err != nil {
		return nil, err
	}
	c.misses++
	e := &Entry{ID: nextID.Add(1), Hash: key.Hash(), Handle: h}
	c.entries[key] = e
	return e, nil
}

// Lookup returns the entry for key without creating it or counting.
func (c *Cache[K]) Lookup(key K) (*Entry, bool) {
	e, ok := c.entries[key]
	return e, ok
}

func (c *Cache[K]) Len() int { return len(c.entries) }

// Clear destroys every cached object. Counters are kept.
func (c *Cache[K]) Clear(destroy func(gpu.Handle)) {
	for _, e := range c.entries {
		if destroy != nil {
			destroy(e.Handle)
		}
	}
	clear(c.entries)
}

func (c *Cache[K]) Stats() CacheStats {
	return CacheStats{Name: c.name, Size: len(c.entries), Hits: c.hits, Misses: c.misses}
}
