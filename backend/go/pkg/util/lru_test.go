package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c, err := NewWithConfig[string, int](CacheConfig{Capacity: 2})
	require.NoError(t, err)

	c.Put("a", 1, 1)
	c.Put("b", 2, 1)
	_, _ = c.Get("a")
	c.Put("c", 3, 1)

	_, ok := c.Get("b")
	assert.False(t, ok, "b should have been evicted")
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, c.Len())
}

func TestLRUWeightLimit(t *testing.T) {
	c, err := NewWithConfig[string, []float32](CacheConfig{MaxWeight: 8})
	require.NoError(t, err)

	c.Put("q1", make([]float32, 4), 4)
	c.Put("q2", make([]float32, 4), 4)
	assert.Equal(t, 8, c.Weight())

	c.Put("q3", make([]float32, 2), 2)
	_, ok := c.Get("q1")
	assert.False(t, ok)
	assert.Equal(t, 6, c.Weight())

	c.Put("huge", make([]float32, 16), 16)
	_, ok = c.Get("huge")
	assert.False(t, ok, "oversized entries are not cached")
}

func TestLRUUpdateKeepsWeightConsistent(t *testing.T) {
	c, err := NewWithConfig[string, int](CacheConfig{Capacity: 4})
	require.NoError(t, err)

	c.Put("a", 1, 3)
	c.Put("a", 2, 1)
	assert.Equal(t, 1, c.Weight())
	assert.Equal(t, 1, c.Len())
}

func TestLRUTTL(t *testing.T) {
	c, err := NewWithConfig[string, int](CacheConfig{Capacity: 4, TTL: time.Minute})
	require.NoError(t, err)
	clock := time.Unix(0, 0)
	c.now = func() time.Time { return clock }

	c.Put("a", 1, 1)
	clock = clock.Add(30 * time.Second)
	_, ok := c.Get("a")
	assert.True(t, ok)

	clock = clock.Add(time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestLRURequiresLimit(t *testing.T) {
	_, err := NewWithConfig[string, int](CacheConfig{})
	assert.Error(t, err)
}

func TestLRUPurge(t *testing.T) {
	c, err := NewWithConfig[int, int](CacheConfig{Capacity: 3})
	require.NoError(t, err)
	c.Put(1, 1, 1)
	c.Put(2, 2, 1)
	c.Purge()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 0, c.Weight())
}
