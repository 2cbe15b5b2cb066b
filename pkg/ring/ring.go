// Package ring provides a generic, thread-safe rolling window over recent
// items. At capacity the oldest item is evicted to make room for new ones.
//
// Reads are non-destructive and ordered most-recent-first, which is what
// rules with temporal conditions need when walking a session's history.
// Statistics are always collected; Prometheus metrics are optional via
// the WithMetrics functional option.
package ring

import (
	"sync"

	"github.com/c360/logtest/errors"
)

// Ring is a fixed-capacity rolling window of the most recent items.
type Ring[T any] struct {
	mu       sync.RWMutex
	items    []T
	capacity int
	size     int
	head     int // next write position
	stats    *Statistics
	metrics  *ringMetrics
}

// New creates a rolling window with the given capacity.
// Returns an error if metrics registration fails when requested.
func New[T any](capacity int, options ...Option[T]) (*Ring[T], error) {
	if capacity <= 0 {
		capacity = 1 // Minimum capacity
	}

	opts := applyOptions(options...)

	// Stats are always initialized - observability is not optional
	stats := NewStatistics()

	var metrics *ringMetrics
	if opts.metricsReg != nil && opts.metricsPrefix != "" {
		var err error
		metrics, err = newRingMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "ring", "New", "metrics registration")
		}
	}

	return &Ring[T]{
		items:    make([]T, capacity),
		capacity: capacity,
		stats:    stats,
		metrics:  metrics,
	}, nil
}

// Push adds an item to the window. If the window is full the oldest item
// is evicted; the evicted item and true are returned in that case.
func (r *Ring[T]) Push(item T) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted T
	evictedSet := false

	if r.size == r.capacity {
		// head currently points at the oldest item
		evicted = r.items[r.head]
		evictedSet = true

		r.stats.Eviction()
		if r.metrics != nil {
			r.metrics.recordEviction()
		}
	} else {
		r.size++
	}

	r.items[r.head] = item
	r.head = (r.head + 1) % r.capacity

	r.stats.Push()
	r.stats.UpdateSize(int64(r.size))
	if r.metrics != nil {
		r.metrics.recordPush(r.size, r.capacity)
	}

	return evicted, evictedSet
}

// Recent returns up to n items ordered most-recent-first without removing
// them. n <= 0 returns the whole window.
func (r *Ring[T]) Recent(n int) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n <= 0 || n > r.size {
		n = r.size
	}
	if n == 0 {
		return nil
	}

	out := make([]T, n)
	for i := 0; i < n; i++ {
		idx := (r.head - 1 - i + r.capacity*2) % r.capacity
		out[i] = r.items[idx]
	}

	r.stats.Read()
	if r.metrics != nil {
		r.metrics.recordRead()
	}

	return out
}

// Newest returns the most recently pushed item without removing it.
func (r *Ring[T]) Newest() (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var zero T
	if r.size == 0 {
		return zero, false
	}

	idx := (r.head - 1 + r.capacity) % r.capacity
	return r.items[idx], true
}

// Len returns the current number of items in the window.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Cap returns the maximum number of items the window can hold.
func (r *Ring[T]) Cap() int {
	return r.capacity // immutable, no lock needed
}

// Clear removes all items from the window.
func (r *Ring[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.head = 0
	r.size = 0

	r.stats.UpdateSize(0)
	if r.metrics != nil {
		r.metrics.updateSize(0, r.capacity)
	}
}

// Stats returns window statistics (always available for observability).
func (r *Ring[T]) Stats() *Statistics {
	return r.stats
}
