// Package eventlog implements the bounded append-only log backing the bus
// history: a fixed-capacity ring that evicts the oldest entry once full.
package eventlog

// Ring is a fixed-capacity circular buffer. It is not safe for concurrent use;
// the owner is expected to serialize access.
type Ring[T any] struct {
	buf   []T
	start int
	count int
}

// New creates a ring with the given capacity. Capacities below 1 are clamped
// to 1 so that Append always has somewhere to go.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Append adds v as the newest entry, evicting the oldest when full.
func (r *Ring[T]) Append(v T) {
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = v
		r.count++
		return
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
}

// Snapshot returns the entries oldest-first. A positive limit returns only the
// newest limit entries; limit <= 0 returns everything. The returned slice is
// freshly allocated and safe for the caller to keep.
func (r *Ring[T]) Snapshot(limit int) []T {
	n := r.count
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]T, n)
	// skip the oldest entries when limited
	first := r.start + (r.count - n)
	for i := 0; i < n; i++ {
		out[i] = r.buf[(first+i)%len(r.buf)]
	}
	return out
}

// Clear drops every entry without changing capacity.
func (r *Ring[T]) Clear() {
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.start = 0
	r.count = 0
}

// Len reports the number of stored entries.
func (r *Ring[T]) Len() int { return r.count }

// Cap reports the fixed capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }
