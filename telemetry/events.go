// Package telemetry provides sighting event records, CSV output, and
// per-cycle performance tracking for the visibility pipeline.
package telemetry

// EventType identifies visibility change events.
type EventType uint8

const (
	EventEntered EventType = iota
	EventExited
)

// String returns a short display name for an event type.
func (t EventType) String() string {
	switch t {
	case EventEntered:
		return "entered"
	case EventExited:
		return "exited"
	default:
		return "unknown"
	}
}

// Event represents a single visibility change: an entity entering or leaving
// a group's visible set.
type Event struct {
	Type     EventType
	Cycle    uint64
	EntityID uint32
	Group    uint8
	Distance float32 // distance to the nearest observing unit; 0 for exits
}

// NewEnteredEvent creates an enter event.
func NewEnteredEvent(cycle uint64, entityID uint32, group uint8, distance float32) Event {
	return Event{
		Type:     EventEntered,
		Cycle:    cycle,
		EntityID: entityID,
		Group:    group,
		Distance: distance,
	}
}

// NewExitedEvent creates an exit event. Exits carry no distance: the entity
// is no longer in the snapshot.
func NewExitedEvent(cycle uint64, entityID uint32, group uint8) Event {
	return Event{
		Type:     EventExited,
		Cycle:    cycle,
		EntityID: entityID,
		Group:    group,
	}
}

// EventCSV is the flat CSV row for an event.
type EventCSV struct {
	Cycle    uint64  `csv:"cycle"`
	Type     string  `csv:"type"`
	EntityID uint32  `csv:"entity_id"`
	Group    uint8   `csv:"group"`
	Distance float32 `csv:"distance"`
}

// ToCSV converts an event to its CSV row.
func (e Event) ToCSV() EventCSV {
	return EventCSV{
		Cycle:    e.Cycle,
		Type:     e.Type.String(),
		EntityID: e.EntityID,
		Group:    e.Group,
		Distance: e.Distance,
	}
}
