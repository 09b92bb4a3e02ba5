package fragment

import (
	"fmt"
	"math"

	lru "github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/paulmach/orb"

	"github.com/zeusync/livemap/internal/mapengine/viewport"
)

// Lookup is the state of a key in the cache.
type Lookup uint8

const (
	Miss Lookup = iota
	// Empty means the service confirmed there is no geometry.
	Empty
	Hit
)

type entry struct {
	geometry orb.MultiPolygon
	empty    bool
}

// Cache is a bounded LRU of fragments. It is not safe for concurrent use
// and is only touched from the frame goroutine.
type Cache struct {
	lru      *lru.LRU[Key, entry]
	capacity int
	evicted  uint64
}

func NewCache(capacity int) (*Cache, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%d: %w", capacity, ErrInvalidCapacity)
	}
	c := &Cache{capacity: capacity}
	l, err := lru.NewLRU[Key, entry](capacity, func(Key, entry) { c.evicted++ })
	if err != nil {
		return nil, err
	}
	c.lru = l
	return c, nil
}

// CacheCapacity sizes the cache for cachedZoomCount full screens of cells.
func CacheCapacity(cachedZoomCount int, size viewport.Size, cellSize int) int {
	if size.Empty() || cellSize <= 0 {
		return max(1, cachedZoomCount)
	}
	across := func(pixels int) int {
		return int(math.Ceil(float64(pixels) / float64(cellSize)))
	}
	return max(1, cachedZoomCount*across(size.Width)*across(size.Height))
}

// Get returns the fragment and marks it recently used.
func (c *Cache) Get(k Key) (Fragment, Lookup) {
	e, ok := c.lru.Get(k)
	switch {
	case !ok:
		return Fragment{}, Miss
	case e.empty:
		return Fragment{Key: k}, Empty
	default:
		return Fragment{Key: k, Geometry: e.geometry}, Hit
	}
}

// Contains reports whether k is known, with or without geometry. It does
// not touch the recency.
func (c *Cache) Contains(k Key) bool {
	return c.lru.Contains(k)
}

func (c *Cache) Put(k Key, geometry orb.MultiPolygon) {
	if len(geometry) == 0 {
		c.PutEmpty(k)
		return
	}
	c.lru.Add(k, entry{geometry: geometry})
}

// PutEmpty records that k has no geometry.
func (c *Cache) PutEmpty(k Key) {
	c.lru.Add(k, entry{empty: true})
}

func (c *Cache) Remove(k Key) bool {
	return c.lru.Remove(k)
}

// Resize changes the capacity and returns the number of evicted entries.
func (c *Cache) Resize(capacity int) (int, error) {
	if capacity <= 0 {
		return 0, fmt.Errorf("%d: %w", capacity, ErrInvalidCapacity)
	}
	c.capacity = capacity
	return c.lru.Resize(capacity), nil
}

func (c *Cache) Len() int      { return c.lru.Len() }
func (c *Cache) Capacity() int { return c.capacity }

// Evictions counts entries dropped by capacity or Remove.
func (c *Cache) Evictions() uint64 { return c.evicted }

// Keys returns the cached keys from oldest to newest.
func (c *Cache) Keys() []Key {
	return c.lru.Keys()
}
