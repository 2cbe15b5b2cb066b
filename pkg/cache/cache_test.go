package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimple_SetGet(t *testing.T) {
	c := NewSimple[string](nil)

	created, err := c.Set("a", "1")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = c.Set("a", "2")
	require.NoError(t, err)
	assert.False(t, created, "second set updates existing entry")

	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "2", got)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestSimple_EmptyKeyRejected(t *testing.T) {
	c := NewSimple[int](nil)
	_, err := c.Set("", 1)
	assert.Error(t, err)
	_, err = c.Delete("")
	assert.Error(t, err)
}

func TestSimple_Delete(t *testing.T) {
	c := NewSimple[int](nil)
	_, err := c.Set("a", 1)
	require.NoError(t, err)

	existed, err := c.Delete("a")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = c.Delete("a")
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestSimple_EvictCallback(t *testing.T) {
	var evicted []string
	c := NewSimple[int](func(key string, _ int) {
		evicted = append(evicted, key)
	})

	_, _ = c.Set("a", 1)
	_, _ = c.Set("b", 2)
	_, _ = c.Delete("a")
	require.NoError(t, c.Clear())

	assert.ElementsMatch(t, []string{"a", "b"}, evicted)
	assert.Equal(t, 0, c.Size())
}

func TestSimple_Stats(t *testing.T) {
	c := NewSimple[int](nil)
	_, _ = c.Set("a", 1)
	c.Get("a")
	c.Get("b")

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits())
	assert.Equal(t, int64(1), stats.Misses())
	assert.InDelta(t, 0.5, stats.HitRate(), 1e-9)
}
