package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_MinimumCapacity(t *testing.T) {
	r, err := New[int](0)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Cap())
}

func TestPush_BelowCapacity(t *testing.T) {
	r, err := New[int](3)
	require.NoError(t, err)

	_, evicted := r.Push(1)
	assert.False(t, evicted)
	_, evicted = r.Push(2)
	assert.False(t, evicted)

	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []int{2, 1}, r.Recent(0))
}

func TestPush_EvictsOldestAtCapacity(t *testing.T) {
	r, err := New[int](3)
	require.NoError(t, err)

	r.Push(1)
	r.Push(2)
	r.Push(3)

	old, evicted := r.Push(4)
	require.True(t, evicted)
	assert.Equal(t, 1, old, "exactly the oldest entry is evicted")
	assert.Equal(t, 3, r.Len(), "window never exceeds capacity")
	assert.Equal(t, []int{4, 3, 2}, r.Recent(0))
}

func TestRecent_MostRecentFirst(t *testing.T) {
	r, err := New[string](4)
	require.NoError(t, err)

	for _, s := range []string{"a", "b", "c"} {
		r.Push(s)
	}

	assert.Equal(t, []string{"c", "b"}, r.Recent(2))
	assert.Equal(t, []string{"c", "b", "a"}, r.Recent(10), "n larger than size is clamped")

	empty, err := New[string](2)
	require.NoError(t, err)
	assert.Nil(t, empty.Recent(1))
}

func TestNewest(t *testing.T) {
	r, err := New[int](2)
	require.NoError(t, err)

	_, ok := r.Newest()
	assert.False(t, ok)

	r.Push(7)
	r.Push(8)
	got, ok := r.Newest()
	require.True(t, ok)
	assert.Equal(t, 8, got)
}

func TestClear(t *testing.T) {
	r, err := New[int](3)
	require.NoError(t, err)

	r.Push(1)
	r.Push(2)
	r.Clear()

	assert.Equal(t, 0, r.Len())
	assert.Nil(t, r.Recent(0))
}

func TestStats(t *testing.T) {
	r, err := New[int](2)
	require.NoError(t, err)

	r.Push(1)
	r.Push(2)
	r.Push(3)
	r.Recent(1)

	stats := r.Stats()
	assert.Equal(t, int64(3), stats.Pushes())
	assert.Equal(t, int64(1), stats.Evictions())
	assert.Equal(t, int64(1), stats.Reads())
	assert.Equal(t, int64(2), stats.CurrentSize())
	assert.Equal(t, int64(2), stats.MaxSize())
}

func TestConcurrentPushes(t *testing.T) {
	r, err := New[int](16)
	require.NoError(t, err)

	done := make(chan struct{})
	for g := 0; g < 4; g++ {
		go func(base int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 100; i++ {
				r.Push(base + i)
			}
		}(g * 1000)
	}
	for g := 0; g < 4; g++ {
		<-done
	}

	assert.Equal(t, 16, r.Len())
	assert.Equal(t, int64(400), r.Stats().Pushes())
}
