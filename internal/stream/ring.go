// Package stream provides the bounded per-sensor queues that absorb ingest
// bursts between validation and processing. When a queue is full the oldest
// unconsumed entry is evicted: operational relevance decays with age, so
// newest data wins over completeness.
package stream

import "sync"

// Ring is a thread-safe bounded FIFO with a drop-oldest overflow policy.
type Ring[T any] struct {
	mu    sync.Mutex
	items []T
	head  int // next write position
	tail  int // next read position
	size  int
	drops uint64
}

// NewRing creates a ring holding up to capacity items. Capacity is clamped
// to a minimum of 1.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[T]{items: make([]T, capacity)}
}

// Push appends an item, evicting the oldest entry when full. It reports
// whether an eviction happened.
func (r *Ring[T]) Push(item T) (dropped bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size == len(r.items) {
		var zero T
		r.items[r.tail] = zero
		r.tail = (r.tail + 1) % len(r.items)
		r.size--
		r.drops++
		dropped = true
	}

	r.items[r.head] = item
	r.head = (r.head + 1) % len(r.items)
	r.size++
	return dropped
}

// Pop removes and returns the oldest item, reporting false when empty.
func (r *Ring[T]) Pop() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	if r.size == 0 {
		return zero, false
	}

	item := r.items[r.tail]
	r.items[r.tail] = zero // release for GC
	r.tail = (r.tail + 1) % len(r.items)
	r.size--
	return item, true
}

// PopBatch removes and returns up to max items in arrival order.
func (r *Ring[T]) PopBatch(max int) []T {
	if max <= 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size == 0 {
		return nil
	}

	n := max
	if n > r.size {
		n = r.size
	}

	var zero T
	out := make([]T, n)
	for i := 0; i < n; i++ {
		out[i] = r.items[r.tail]
		r.items[r.tail] = zero
		r.tail = (r.tail + 1) % len(r.items)
		r.size--
	}
	return out
}

// Len returns the current number of queued items.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Cap returns the fixed capacity.
func (r *Ring[T]) Cap() int {
	return len(r.items)
}

// Drops returns the total number of evicted items.
func (r *Ring[T]) Drops() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.drops
}

// Clear discards all queued items, leaving the drop counter intact.
func (r *Ring[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.head = 0
	r.tail = 0
	r.size = 0
}
