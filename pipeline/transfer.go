package pipeline

import (
	"sync/atomic"

	"github.com/pthm-cable/sightfield/device"
	"github.com/pthm-cable/sightfield/vision"
)

// ResultSnapshot is one published cycle's confirmed entries, flattened into a
// single buffer with per-group counts and offsets. Snapshots are immutable
// once published; readers hold one across cycles without copying. With two
// slots rotating, a snapshot stays valid until two further publishes.
type ResultSnapshot struct {
	Cycle   uint64
	Counts  [vision.MaxGroups]uint32
	Offsets [vision.MaxGroups]uint32
	Entries []vision.Entry
}

// Group returns the entries visible to one group. Nil for out-of-range g.
func (r *ResultSnapshot) Group(g int) []vision.Entry {
	if g < 0 || g >= vision.MaxGroups {
		return nil
	}
	off := r.Offsets[g]
	return r.Entries[off : off+r.Counts[g]]
}

// Count returns how many entries a group sees.
func (r *ResultSnapshot) Count(g int) int {
	if g < 0 || g >= vision.MaxGroups {
		return 0
	}
	return int(r.Counts[g])
}

// Total returns the entry count across all groups.
func (r *ResultSnapshot) Total() int { return len(r.Entries) }

// Contains reports whether a group sees the given entity.
func (r *ResultSnapshot) Contains(g int, entityID uint32) bool {
	for _, e := range r.Group(g) {
		if e.EntityID == entityID {
			return true
		}
	}
	return false
}

// Closest returns the group's nearest visible entry.
func (r *ResultSnapshot) Closest(g int) (vision.Entry, bool) {
	entries := r.Group(g)
	if len(entries) == 0 {
		return vision.Entry{}, false
	}
	best := entries[0]
	for _, e := range entries[1:] {
		if e.Distance < best.Distance {
			best = e
		}
	}
	return best, true
}

// transferRequest is one in-flight readback. The payload is copied into the
// request's own staging buffer when the request is issued, so later cycles
// can freely rewrite the arena the copy came from.
type transferRequest struct {
	cycle   uint64
	remain  int
	counts  [vision.MaxGroups]uint32
	entries []vision.Entry
	failed  bool
}

// Transfer moves confirmed entries from the compute side to readers without
// ever blocking the cycle. Requests complete after a fixed number of polls
// (the simulated readback latency); completion publishes into the inactive
// snapshot slot and flips the active pointer atomically. A failed request is
// discarded and the previous snapshot stays current.
type Transfer struct {
	latency  int
	perGroup int

	slots    [2]ResultSnapshot
	bufs     [2][]vision.Entry
	active   atomic.Pointer[ResultSnapshot]
	inactive int

	pending []*transferRequest
	free    []*transferRequest

	published []*ResultSnapshot

	// failNext marks the next issued request as failed, for exercising the
	// keep-previous-snapshot path.
	failNext atomic.Bool
}

// NewTransfer preallocates both snapshot slots and the staging pool.
func NewTransfer(groups, perGroup, latency int) *Transfer {
	t := &Transfer{
		latency:  latency,
		perGroup: perGroup,
		inactive: 1,
	}
	capTotal := groups * perGroup
	for i := range t.slots {
		t.bufs[i] = make([]vision.Entry, 0, capTotal)
		t.slots[i].Entries = t.bufs[i]
	}
	// Slot 0 starts published and empty, so readers always have a snapshot.
	t.active.Store(&t.slots[0])
	return t
}

// Active returns the currently published snapshot. Safe from any goroutine.
func (t *Transfer) Active() *ResultSnapshot { return t.active.Load() }

// Pending reports how many requests are still in flight.
func (t *Transfer) Pending() int { return len(t.pending) }

// Request issues a readback of the entry arena for the given cycle. The
// payload is staged immediately; readers see it only after the request
// completes latency polls later.
func (t *Transfer) Request(cycle uint64, src *device.Arena[vision.Entry]) {
	req := t.acquire()
	req.cycle = cycle
	// A request issued at the end of cycle N is observable at the poll of
	// cycle N+latency, never earlier than the next poll.
	req.remain = max(t.latency, 1)
	req.failed = t.failNext.CompareAndSwap(true, false)
	req.entries = req.entries[:0]
	for g := 0; g < vision.MaxGroups; g++ {
		got := src.Group(g)
		req.counts[g] = uint32(len(got))
		req.entries = append(req.entries, got...)
	}
	t.pending = append(t.pending, req)
}

// Poll advances every pending request by one step and publishes the ones
// that completed, in issue order. It returns the newly published snapshots
// (valid until their slot rotates around) and the number of failed requests.
func (t *Transfer) Poll() (published []*ResultSnapshot, failures int) {
	t.published = t.published[:0]
	kept := t.pending[:0]
	for _, req := range t.pending {
		req.remain--
		if req.remain > 0 {
			kept = append(kept, req)
			continue
		}
		if req.failed {
			failures++
		} else {
			t.published = append(t.published, t.publish(req))
		}
		t.release(req)
	}
	t.pending = kept
	return t.published, failures
}

// publish copies a completed request into the inactive slot and flips it
// active. The flip is the only write readers can observe.
func (t *Transfer) publish(req *transferRequest) *ResultSnapshot {
	slot := &t.slots[t.inactive]
	slot.Cycle = req.cycle
	slot.Counts = req.counts
	var off uint32
	for g := 0; g < vision.MaxGroups; g++ {
		slot.Offsets[g] = off
		off += req.counts[g]
	}
	slot.Entries = append(t.bufs[t.inactive][:0], req.entries...)
	t.bufs[t.inactive] = slot.Entries[:0]

	t.active.Store(slot)
	t.inactive = 1 - t.inactive
	return slot
}

func (t *Transfer) acquire() *transferRequest {
	if n := len(t.free); n > 0 {
		req := t.free[n-1]
		t.free = t.free[:n-1]
		return req
	}
	return &transferRequest{
		entries: make([]vision.Entry, 0, vision.MaxGroups*t.perGroup),
	}
}

func (t *Transfer) release(req *transferRequest) {
	t.free = append(t.free, req)
}
