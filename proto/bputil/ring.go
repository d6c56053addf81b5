package bputil

import "math/bits"

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// IN-FLIGHT RING BUFFER
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// Ring holds one record per in-flight branch, addressed by a monotonically increasing
// id. The slot for id is slots[id & mask], so ids never need renumbering.
//
//   Allocate      → back++            (fetch)
//   TruncateAfter → back = id         (flush: drop everything younger than id)
//   PopFront      → front++           (retire, oldest only)
//
// Empty state: back = front-1. Capacity is rounded up to a power of two.
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

type Ring[T any] struct {
	slots []T
	mask  int64
	front int64
	back  int64
}

// NextPow2 returns the smallest power of two ≥ n (1 for n ≤ 1).
func NextPow2(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

// NewRing returns an empty ring that can hold at least capacity records.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		Violation(ErrInvariant, "ring", -1, "capacity %d must be positive", capacity)
	}
	size := NextPow2(capacity)
	return &Ring[T]{
		slots: make([]T, size),
		mask:  int64(size - 1),
		front: 0,
		back:  -1,
	}
}

func (r *Ring[T]) Len() int     { return int(r.back - r.front + 1) }
func (r *Ring[T]) Cap() int     { return len(r.slots) }
func (r *Ring[T]) Front() int64 { return r.front }
func (r *Ring[T]) Back() int64  { return r.back }

// Contains reports whether id is currently in flight.
func (r *Ring[T]) Contains(id int64) bool { return id >= r.front && id <= r.back }

// Allocate reserves a zeroed slot at the back and returns its id.
func (r *Ring[T]) Allocate() int64 {
	if r.Len() >= len(r.slots) {
		Violation(ErrCapacityExceeded, "ring", r.back+1, "%d records already in flight", r.Len())
	}
	r.back++
	var zero T
	r.slots[r.back&r.mask] = zero
	return r.back
}

// At returns the record for an in-flight id.
func (r *Ring[T]) At(id int64) *T {
	if !r.Contains(id) {
		Violation(ErrInvariant, "ring", id, "not in flight [%d, %d]", r.front, r.back)
	}
	return &r.slots[id&r.mask]
}

// TruncateAfter drops every record younger than id. id itself stays in flight.
func (r *Ring[T]) TruncateAfter(id int64) {
	if !r.Contains(id) {
		Violation(ErrInvariant, "ring", id, "truncate target not in flight [%d, %d]", r.front, r.back)
	}
	r.back = id
}

// PopFront retires the oldest record, which must be id.
func (r *Ring[T]) PopFront(id int64) {
	if r.Len() == 0 || id != r.front {
		Violation(ErrOutOfOrderRetire, "ring", id, "oldest in flight is %d", r.front)
	}
	r.front++
}
