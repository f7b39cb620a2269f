package virtvol

import "container/list"

// DefaultCacheSize is the sector cache's default entry count (spec §4.G "a
// small LRU of recently decrypted sectors (default 64 entries)").
const DefaultCacheSize = 64

// sectorCache is a fixed-capacity LRU of decrypted sectors keyed by logical
// offset. It is purely an optimisation (spec §8 "for any sequence of reads,
// the returned bytes are identical with the cache disabled") and never the
// source of truth; callers can size it to zero to disable it entirely.
type sectorCache struct {
	capacity int
	entries  map[uint64]*list.Element
	order    *list.List // front = most recently used
}

type cacheEntry struct {
	offset uint64
	data   []byte
}

// newSectorCache builds a cache holding up to capacity decrypted sectors. A
// capacity of 0 makes every lookup miss, effectively disabling the cache.
func newSectorCache(capacity int) *sectorCache {
	return &sectorCache{
		capacity: capacity,
		entries:  make(map[uint64]*list.Element),
		order:    list.New(),
	}
}

// get returns the cached sector at offset, if present, promoting it to
// most-recently-used.
func (c *sectorCache) get(offset uint64) ([]byte, bool) {
	elem, ok := c.entries[offset]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*cacheEntry).data, true
}

// put inserts or updates the cached sector at offset, evicting the least
// recently used entry if the cache is at capacity.
func (c *sectorCache) put(offset uint64, data []byte) {
	if c.capacity <= 0 {
		return
	}
	if elem, ok := c.entries[offset]; ok {
		elem.Value.(*cacheEntry).data = data
		c.order.MoveToFront(elem)
		return
	}

	if c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).offset)
		}
	}

	elem := c.order.PushFront(&cacheEntry{offset: offset, data: data})
	c.entries[offset] = elem
}
