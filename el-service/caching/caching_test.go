package caching

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type countingMetrics struct {
	adds, evictions, hits, misses int
}

func (m *countingMetrics) CacheAdd(label string, cacheSize int, evicted bool) {
	m.adds++
	if evicted {
		m.evictions++
	}
}

func (m *countingMetrics) CacheGet(label string, hit bool) {
	if hit {
		m.hits++
	} else {
		m.misses++
	}
}

func TestOrderCache(t *testing.T) {
	m := &countingMetrics{}
	c := NewOrderCache[string](m, "index")

	for _, n := range []uint64{10, 12, 11, 15} {
		_, replaced := c.Put(n, "a")
		require.False(t, replaced)
	}
	prev, replaced := c.Put(12, "b")
	require.True(t, replaced)
	require.Equal(t, "a", prev)

	v, ok := c.Get(12)
	require.True(t, ok)
	require.Equal(t, "b", v)
	_, ok = c.Get(13)
	require.False(t, ok)
	require.Equal(t, 1, m.hits)
	require.Equal(t, 1, m.misses)

	n, _, ok := c.Ceil(13)
	require.True(t, ok)
	require.Equal(t, uint64(15), n)
	_, _, ok = c.Ceil(16)
	require.False(t, ok)

	n, _, ok = c.Max()
	require.True(t, ok)
	require.Equal(t, uint64(15), n)

	require.Equal(t, 2, c.RemoveLessThan(12))
	require.Equal(t, 2, c.Len())
	_, ok = c.Get(11)
	require.False(t, ok)
	require.Equal(t, 1, m.evictions)

	require.Equal(t, 1, c.RemoveGreaterThan(12))
	require.Equal(t, 1, c.Len())

	c.RemoveAll()
	require.Zero(t, c.Len())
	_, _, ok = c.Max()
	require.False(t, ok)
}

func TestLRUCache(t *testing.T) {
	m := &countingMetrics{}
	c := NewLRUCache[int, string](m, "headers", 2)
	require.False(t, c.Add(1, "one"))
	require.False(t, c.Add(2, "two"))
	require.True(t, c.Add(3, "three"))
	_, ok := c.Get(1)
	require.False(t, ok)
	v, ok := c.Get(3)
	require.True(t, ok)
	require.Equal(t, "three", v)
	require.Equal(t, 2, c.Len())
	require.Equal(t, 3, m.adds)
	require.Equal(t, 1, m.evictions)
}
