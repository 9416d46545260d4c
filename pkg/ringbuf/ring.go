// Package ringbuf provides a bounded FIFO that drops its oldest element on
// overflow.
package ringbuf

// Ring is a fixed-capacity queue. It is not safe for concurrent use.
type Ring[T any] struct {
	items []T
	head  int // index of the oldest element
	size  int
}

// New creates a ring holding at most capacity elements (minimum 1)
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{items: make([]T, capacity)}
}

// Push appends v, evicting the oldest element when full.
// It reports whether an element was evicted.
func (r *Ring[T]) Push(v T) bool {
	if r.size < len(r.items) {
		r.items[(r.head+r.size)%len(r.items)] = v
		r.size++
		return false
	}
	r.items[r.head] = v
	r.head = (r.head + 1) % len(r.items)
	return true
}

// Items returns a copy of the contents, oldest first
func (r *Ring[T]) Items() []T {
	out := make([]T, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.items[(r.head+i)%len(r.items)]
	}
	return out
}

// Last returns the newest element
func (r *Ring[T]) Last() (T, bool) {
	var zero T
	if r.size == 0 {
		return zero, false
	}
	return r.items[(r.head+r.size-1)%len(r.items)], true
}

// Len returns the number of stored elements
func (r *Ring[T]) Len() int { return r.size }

// Cap returns the maximum number of elements
func (r *Ring[T]) Cap() int { return len(r.items) }

// Reset empties the ring
func (r *Ring[T]) Reset() {
	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.head = 0
	r.size = 0
}
