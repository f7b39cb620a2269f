package virtvol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSectorCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := newSectorCache(2)
	c.put(0, []byte{0})
	c.put(512, []byte{1})
	c.put(1024, []byte{2}) // evicts offset 0

	_, ok := c.get(0)
	assert.False(t, ok)
	_, ok = c.get(512)
	assert.True(t, ok)
	_, ok = c.get(1024)
	assert.True(t, ok)
}

func TestSectorCache_GetPromotesToMostRecentlyUsed(t *testing.T) {
	c := newSectorCache(2)
	c.put(0, []byte{0})
	c.put(512, []byte{1})
	c.get(0) // touch 0, making 512 the LRU entry
	c.put(1024, []byte{2})

	_, ok := c.get(512)
	assert.False(t, ok, "512 should have been evicted as least recently used")
	_, ok = c.get(0)
	assert.True(t, ok)
}

func TestSectorCache_ZeroCapacityAlwaysMisses(t *testing.T) {
	c := newSectorCache(0)
	c.put(0, []byte{0})
	_, ok := c.get(0)
	assert.False(t, ok)
}
