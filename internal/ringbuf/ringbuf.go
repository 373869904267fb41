// Package ringbuf provides a fixed-capacity, append-only buffer that
// overwrites its oldest entries once full. It is the bounded-storage
// primitive backing the per-cluster event backlog and the in-memory
// activity tail exposed by the status server.
package ringbuf

import (
	"fmt"
	"sync"
)

// Buffer is a fixed-capacity ring buffer. All operations are safe for
// concurrent use; PushBatch in particular is atomic with respect to
// readers, so a Snapshot never observes a half-applied batch.
//
// A Buffer with capacity 0 is valid and permanently empty: every push
// evicts the item it just accepted. Negative capacities are rejected at
// construction.
type Buffer[T any] struct {
	mu    sync.Mutex
	items []T
	start int
	count int
	cap   int
}

// New creates a Buffer with the given capacity.
// Returns an error if capacity is negative.
func New[T any](capacity int) (*Buffer[T], error) {
	if capacity < 0 {
		return nil, fmt.Errorf("ringbuf: capacity must be >= 0, got %d", capacity)
	}
	return &Buffer[T]{
		items: make([]T, capacity),
		cap:   capacity,
	}, nil
}

// Push appends one item, evicting the oldest if the buffer is full.
// Returns the number of items evicted (0 or 1).
func (b *Buffer[T]) Push(item T) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.push(item)
}

// PushBatch appends a sequence of items as one atomic operation. If the
// batch is at least as large as the capacity, the buffer ends up holding
// exactly the last capacity elements of the batch and all prior contents
// are evicted. Returns the total number of items evicted, counting batch
// elements that never became observable.
func (b *Buffer[T]) PushBatch(items []T) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	evicted := 0
	for _, item := range items {
		evicted += b.push(item)
	}
	return evicted
}

// push appends without locking. Caller holds b.mu.
func (b *Buffer[T]) push(item T) int {
	if b.cap == 0 {
		return 1
	}
	if b.count < b.cap {
		b.items[(b.start+b.count)%b.cap] = item
		b.count++
		return 0
	}
	// Full: overwrite the oldest slot and advance the start.
	b.items[b.start] = item
	b.start = (b.start + 1) % b.cap
	return 1
}

// Snapshot returns a copy of the current contents, oldest first.
func (b *Buffer[T]) Snapshot() []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]T, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.items[(b.start+i)%b.cap]
	}
	return out
}

// Len returns the current number of buffered items.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Cap returns the fixed capacity set at construction.
func (b *Buffer[T]) Cap() int {
	return b.cap
}

// Clear empties the buffer without changing its capacity.
func (b *Buffer[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	var zero T
	for i := range b.items {
		b.items[i] = zero
	}
	b.start = 0
	b.count = 0
}
