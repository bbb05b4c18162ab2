package device

import "sync/atomic"

// Arena is a fixed-capacity, group-partitioned output buffer with one atomic
// write cursor per group. Each group's region is disjoint from every other
// group's, so groups can be written fully concurrently with no coordination
// beyond the cursor. Writes past a group's capacity are dropped and counted,
// never buffer-overrun: the slot is bounds-checked before the write.
type Arena[T any] struct {
	buf      []T
	groups   int
	perGroup int
	cursors  []atomic.Uint32
	drops    []atomic.Uint32
}

// NewArena allocates an arena for groups regions of perGroup records each.
func NewArena[T any](groups, perGroup int) *Arena[T] {
	return &Arena[T]{
		buf:      make([]T, groups*perGroup),
		groups:   groups,
		perGroup: perGroup,
		cursors:  make([]atomic.Uint32, groups),
		drops:    make([]atomic.Uint32, groups),
	}
}

// PerGroup returns the per-group capacity.
func (a *Arena[T]) PerGroup() int { return a.perGroup }

// Reset zeroes every cursor, drop counter, and record. Called at the start of
// each cycle before any writes.
func (a *Arena[T]) Reset() {
	clear(a.buf)
	for i := range a.cursors {
		a.cursors[i].Store(0)
		a.drops[i].Store(0)
	}
}

// Append reserves a slot in the group's region and writes v into it. Returns
// false when the region is full; the post-capacity cursor difference is
// ignored, so capacity is a hard bound.
func (a *Arena[T]) Append(group int, v T) bool {
	idx := a.cursors[group].Add(1) - 1
	if int(idx) >= a.perGroup {
		a.drops[group].Add(1)
		return false
	}
	a.buf[group*a.perGroup+int(idx)] = v
	return true
}

// Count returns the number of committed records for a group.
func (a *Arena[T]) Count(group int) int {
	c := int(a.cursors[group].Load())
	if c > a.perGroup {
		c = a.perGroup
	}
	return c
}

// Drops returns the number of writes dropped for a group this cycle.
func (a *Arena[T]) Drops(group int) int {
	return int(a.drops[group].Load())
}

// Group returns the committed records of one group. Valid until the next
// Reset.
func (a *Arena[T]) Group(group int) []T {
	start := group * a.perGroup
	return a.buf[start : start+a.Count(group)]
}
