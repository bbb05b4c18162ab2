package pipeline

import (
	"github.com/pthm-cable/sightfield/telemetry"
	"github.com/pthm-cable/sightfield/vision"
)

// Detector diffs each published snapshot against the visible set it tracks
// per group and emits enter/exit events. Memory is bounded by what is
// actually visible; the tracked maps shrink as entities leave.
type Detector struct {
	tracked [vision.MaxGroups]map[uint32]struct{}
	present map[uint32]struct{}

	lastCycle uint64
	primed    bool
}

func NewDetector() *Detector {
	d := &Detector{present: make(map[uint32]struct{})}
	for g := range d.tracked {
		d.tracked[g] = make(map[uint32]struct{})
	}
	return d
}

// Process appends enter/exit events for one snapshot to events and returns
// the extended slice. A snapshot cycle already processed is ignored, so
// re-polling the same publication cannot double-fire events.
func (d *Detector) Process(snap *ResultSnapshot, events []telemetry.Event) []telemetry.Event {
	if snap == nil || (d.primed && snap.Cycle <= d.lastCycle) {
		return events
	}

	for g := 0; g < vision.MaxGroups; g++ {
		clear(d.present)
		for _, e := range snap.Group(g) {
			d.present[e.EntityID] = struct{}{}
			if _, ok := d.tracked[g][e.EntityID]; !ok {
				d.tracked[g][e.EntityID] = struct{}{}
				events = append(events, telemetry.NewEnteredEvent(snap.Cycle, e.EntityID, uint8(g), e.Distance))
			}
		}
		for id := range d.tracked[g] {
			if _, ok := d.present[id]; !ok {
				delete(d.tracked[g], id)
				events = append(events, telemetry.NewExitedEvent(snap.Cycle, id, uint8(g)))
			}
		}
	}

	d.lastCycle = snap.Cycle
	d.primed = true
	return events
}

// Visible reports whether the detector currently tracks an entity as visible
// to a group.
func (d *Detector) Visible(g int, entityID uint32) bool {
	if g < 0 || g >= vision.MaxGroups {
		return false
	}
	_, ok := d.tracked[g][entityID]
	return ok
}
