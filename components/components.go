// Package components defines ECS components for the external entity store
// the pipeline aggregates from.
package components

import "github.com/pthm-cable/sightfield/vision"

// Transform is an entity's world position and facing.
type Transform struct {
	Position vision.Vec3
	Forward  vision.Vec3
}

// VisionSource marks an entity as contributing a vision volume to its group.
// Secondary is the cone half-angle (radians) for SphereCone and the second
// sphere radius for DualSphere.
type VisionSource struct {
	Type      vision.VisionType
	Radius    float32
	Secondary float32
	Enabled   bool
}

// GroupMember assigns an entity to a vision group (0..MaxGroups-1).
type GroupMember struct {
	Group uint8
}

// Seeable marks an entity as markable by other groups' vision. Enabled is an
// explicit flag checked by the aggregator each cycle; there is no tag
// component to add or remove.
type Seeable struct {
	EntityID       uint32
	HeightOffset   float32
	BoundingRadius float32
	SeeableBy      uint32 // bitmask of groups allowed to see this entity
	Enabled        bool
}
