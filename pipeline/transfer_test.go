package pipeline

import (
	"testing"

	"github.com/pthm-cable/sightfield/device"
	"github.com/pthm-cable/sightfield/vision"
)

func entryArena(t *testing.T, perGroup int, groups map[int][]vision.Entry) *device.Arena[vision.Entry] {
	t.Helper()
	a := device.NewArena[vision.Entry](vision.MaxGroups, perGroup)
	for g, entries := range groups {
		for _, e := range entries {
			if !a.Append(g, e) {
				t.Fatalf("arena overflow in fixture (group %d)", g)
			}
		}
	}
	return a
}

func TestTransferLatencyOne(t *testing.T) {
	tr := NewTransfer(vision.MaxGroups, 8, 1)
	if tr.Active().Total() != 0 {
		t.Fatalf("initial snapshot not empty")
	}

	src := entryArena(t, 8, map[int][]vision.Entry{
		0: {{EntityID: 1, Distance: 2}},
		3: {{EntityID: 2, Distance: 5}, {EntityID: 3, Distance: 1}},
	})
	tr.Request(1, src)

	published, failures := tr.Poll()
	if failures != 0 || len(published) != 1 {
		t.Fatalf("poll returned %d published, %d failures", len(published), failures)
	}
	snap := published[0]
	if snap != tr.Active() {
		t.Fatalf("published snapshot is not the active one")
	}
	if snap.Cycle != 1 || snap.Total() != 3 {
		t.Fatalf("snapshot cycle=%d total=%d, want 1/3", snap.Cycle, snap.Total())
	}
	if snap.Count(0) != 1 || snap.Count(3) != 2 {
		t.Fatalf("per-group counts = %d/%d, want 1/2", snap.Count(0), snap.Count(3))
	}
	if !snap.Contains(3, 3) || snap.Contains(1, 1) {
		t.Fatalf("entries landed in the wrong group region")
	}
	if best, ok := snap.Closest(3); !ok || best.EntityID != 3 {
		t.Fatalf("closest in group 3 = %+v, want entity 3", best)
	}
}

func TestTransferLatencyTwo(t *testing.T) {
	tr := NewTransfer(vision.MaxGroups, 4, 2)
	src := entryArena(t, 4, map[int][]vision.Entry{0: {{EntityID: 1}}})
	tr.Request(1, src)

	if published, _ := tr.Poll(); len(published) != 0 {
		t.Fatalf("request completed one poll early")
	}
	published, _ := tr.Poll()
	if len(published) != 1 || published[0].Cycle != 1 {
		t.Fatalf("request not completed after two polls")
	}
}

func TestTransferFailureDiscardsRequest(t *testing.T) {
	tr := NewTransfer(vision.MaxGroups, 4, 1)

	good := entryArena(t, 4, map[int][]vision.Entry{0: {{EntityID: 1}}})
	tr.Request(1, good)
	tr.Poll()
	stable := tr.Active()

	bad := entryArena(t, 4, map[int][]vision.Entry{0: {{EntityID: 2}}})
	tr.failNext.Store(true)
	tr.Request(2, bad)

	published, failures := tr.Poll()
	if failures != 1 || len(published) != 0 {
		t.Fatalf("poll returned %d published, %d failures, want 0/1", len(published), failures)
	}
	if tr.Active() != stable {
		t.Fatalf("failed request replaced the active snapshot")
	}
	if !tr.Active().Contains(0, 1) {
		t.Fatalf("previous results lost after failure")
	}
}

func TestTransferStagingDecouplesFromArena(t *testing.T) {
	tr := NewTransfer(vision.MaxGroups, 4, 1)
	src := entryArena(t, 4, map[int][]vision.Entry{0: {{EntityID: 1}}})
	tr.Request(1, src)

	// The next cycle rewrites the arena before the request completes.
	src.Reset()
	src.Append(0, vision.Entry{EntityID: 99})

	published, _ := tr.Poll()
	if len(published) != 1 || !published[0].Contains(0, 1) || published[0].Contains(0, 99) {
		t.Fatalf("in-flight request observed arena writes from a later cycle")
	}
}

func TestTransferDoubleBuffering(t *testing.T) {
	tr := NewTransfer(vision.MaxGroups, 4, 1)

	tr.Request(1, entryArena(t, 4, map[int][]vision.Entry{0: {{EntityID: 1}}}))
	p1, _ := tr.Poll()
	first := p1[0]

	tr.Request(2, entryArena(t, 4, map[int][]vision.Entry{0: {{EntityID: 2}}}))
	p2, _ := tr.Poll()
	second := p2[0]

	if first == second {
		t.Fatalf("consecutive publishes used the same slot")
	}
	// The older snapshot stays intact until its slot rotates back around.
	if first.Cycle != 1 || !first.Contains(0, 1) {
		t.Fatalf("previous snapshot mutated by the next publish")
	}
	if second.Cycle != 2 || !second.Contains(0, 2) {
		t.Fatalf("new snapshot has wrong contents")
	}
}
