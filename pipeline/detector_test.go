package pipeline

import (
	"testing"

	"github.com/pthm-cable/sightfield/telemetry"
	"github.com/pthm-cable/sightfield/vision"
)

func makeSnapshot(cycle uint64, groups map[int][]vision.Entry) *ResultSnapshot {
	snap := &ResultSnapshot{Cycle: cycle}
	var off uint32
	for g := 0; g < vision.MaxGroups; g++ {
		snap.Offsets[g] = off
		for _, e := range groups[g] {
			snap.Entries = append(snap.Entries, e)
			off++
		}
		snap.Counts[g] = off - snap.Offsets[g]
	}
	return snap
}

func TestDetectorEnterExit(t *testing.T) {
	d := NewDetector()

	events := d.Process(makeSnapshot(1, map[int][]vision.Entry{
		0: {{EntityID: 10, Distance: 3}},
		2: {{EntityID: 11, Distance: 7}},
	}), nil)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2 enters", len(events))
	}
	for _, ev := range events {
		if ev.Type != telemetry.EventEntered {
			t.Errorf("event %+v is not an enter", ev)
		}
	}
	if !d.Visible(0, 10) || !d.Visible(2, 11) {
		t.Fatalf("tracked sets not updated after enters")
	}

	// Entity 10 leaves, entity 12 joins group 0.
	events = d.Process(makeSnapshot(2, map[int][]vision.Entry{
		0: {{EntityID: 12, Distance: 4}},
		2: {{EntityID: 11, Distance: 6}},
	}), nil)
	var enters, exits int
	for _, ev := range events {
		switch ev.Type {
		case telemetry.EventEntered:
			enters++
			if ev.EntityID != 12 {
				t.Errorf("unexpected enter %+v", ev)
			}
		case telemetry.EventExited:
			exits++
			if ev.EntityID != 10 || ev.Distance != 0 {
				t.Errorf("unexpected exit %+v", ev)
			}
		}
	}
	if enters != 1 || exits != 1 {
		t.Fatalf("got %d enters, %d exits, want 1/1", enters, exits)
	}
	if d.Visible(0, 10) {
		t.Fatalf("exited entity still tracked")
	}
}

func TestDetectorProcessesCycleOnce(t *testing.T) {
	d := NewDetector()
	snap := makeSnapshot(5, map[int][]vision.Entry{0: {{EntityID: 1}}})

	events := d.Process(snap, nil)
	if len(events) != 1 {
		t.Fatalf("first pass got %d events, want 1", len(events))
	}
	if events = d.Process(snap, nil); len(events) != 0 {
		t.Fatalf("reprocessing the same cycle produced %d events", len(events))
	}
}

func TestDetectorSameGroupIndependence(t *testing.T) {
	d := NewDetector()
	// The same entity visible to two groups is tracked per group.
	d.Process(makeSnapshot(1, map[int][]vision.Entry{
		0: {{EntityID: 5}},
		1: {{EntityID: 5}},
	}), nil)

	events := d.Process(makeSnapshot(2, map[int][]vision.Entry{
		1: {{EntityID: 5}},
	}), nil)
	if len(events) != 1 || events[0].Type != telemetry.EventExited || events[0].Group != 0 {
		t.Fatalf("expected a single group-0 exit, got %+v", events)
	}
	if !d.Visible(1, 5) {
		t.Fatalf("group 1 tracking lost when group 0 exited")
	}
}

func TestDetectorNilSnapshot(t *testing.T) {
	d := NewDetector()
	if events := d.Process(nil, nil); len(events) != 0 {
		t.Fatalf("nil snapshot produced events")
	}
}
