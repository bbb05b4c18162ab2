// Package vision defines the fixed-layout records and signed-distance math
// shared between the host pipeline and the data-parallel compute stages.
package vision

// Hard limits baked into the record layouts. Changing any of these changes
// the wire format of the device buffers.
const (
	MaxGroups   = 8
	MaxIslands  = 16
	MaxRaySteps = 48
)

// Thresholds for the compute stages, in world units.
const (
	// VisibilityThreshold is the maximum group shape distance at which a
	// seeable becomes a broad-phase candidate.
	VisibilityThreshold = 0.1
	// OcclusionThreshold is the environment distance below which a marched
	// ray is considered blocked.
	OcclusionThreshold = 0.05
)

// Ray-march tuning.
const (
	// StepScale shrinks the sphere-trace step so grazing rays do not tunnel
	// through thin geometry.
	StepScale = 0.8
	// MinStep bounds the step from below near surfaces.
	MinStep = 0.2
	// OpenSpaceStep and OpenSpaceRuns trigger the clear-line early exit:
	// after OpenSpaceRuns consecutive steps larger than OpenSpaceStep the
	// segment is treated as unobstructed.
	OpenSpaceStep = 5.0
	OpenSpaceRuns = 3
)

// FarDistance is the sentinel returned when a query point cannot be affected
// by a shape (outside a cone's projection window, outside an island's box).
const FarDistance float32 = 1e9

// VisionType selects the per-unit volume shape.
type VisionType uint32

const (
	VisionSphere VisionType = iota
	VisionSphereCone
	VisionDualSphere
)

// VisionGroup flags.
const (
	GroupActive uint32 = 1 << 0
)

// Island flags.
const (
	IslandValid uint32 = 1 << 0
)

// VisionGroup is the per-faction header record. 48 bytes.
// UnitStart/UnitCount index the contiguous unit range owned by the group.
type VisionGroup struct {
	UnitStart       uint32
	UnitCount       uint32
	Center          Vec3
	BoundingRadius  float32
	MaxViewDistance float32
	GroupID         uint32
	VisibilityMask  uint32
	Flags           uint32
	_               [2]uint32
}

// Active reports whether the group had at least one contributing unit this cycle.
func (g *VisionGroup) Active() bool { return g.Flags&GroupActive != 0 }

// CanSee reports whether the group's permission mask includes target.
func (g *VisionGroup) CanSee(target uint32) bool { return g.VisibilityMask&(1<<target) != 0 }

// UnitContribution is one unit's vision volume for the current cycle. 48 bytes.
// SecondaryParam is the cone half-angle (radians) for VisionSphereCone and the
// second sphere radius for VisionDualSphere.
type UnitContribution struct {
	Position       Vec3
	PrimaryRadius  float32
	Forward        Vec3
	SecondaryParam float32
	Type           VisionType
	OwnerGroup     uint32
	_              [2]uint32
}

// SeeableEntity is a markable entity rebuilt each cycle. 32 bytes.
type SeeableEntity struct {
	EntityID       uint32
	Position       Vec3
	HeightOffset   float32
	BoundingRadius float32
	OwnerGroup     uint32
	SeeableByMask  uint32
}

// EyePoint returns the position tested against vision volumes.
func (s *SeeableEntity) EyePoint() Vec3 {
	return Vec3{s.Position.X, s.Position.Y + s.HeightOffset, s.Position.Z}
}

// VisibleTo reports whether group is allowed to see this entity.
func (s *SeeableEntity) VisibleTo(group uint32) bool { return s.SeeableByMask&(1<<group) != 0 }

// Island is an oriented environment occluder with a baked distance field.
// 64 bytes. SlotIndex selects the baked volume (0..MaxIslands-1); records with
// the valid flag clear are skipped by every stage.
type Island struct {
	Center      Vec3
	Rotation    Quat
	HalfExtents Vec3
	Resolution  uint32
	SlotIndex   uint32
	SDFScale    float32
	Flags       uint32
	_           [2]uint32
}

// Valid reports whether the island's baked volume is resident.
func (i *Island) Valid() bool { return i.Flags&IslandValid != 0 }

// Candidate is one broad-phase hit awaiting occlusion confirmation. 32 bytes.
// SeeableIndex is a direct index into the cycle's seeable array so stage 3
// never searches by entity id.
type Candidate struct {
	EntityID     uint32
	SeeableIndex uint32
	ViewerGroup  uint32
	NearestUnit  uint32
	Distance     float32 // point distance to the nearest contributing unit
	ShapeDist    float32 // group shape distance that admitted the candidate
	_            [2]uint32
}

// Entry is one confirmed sighting. 16 bytes. LevelFlags packs the quantized
// visibility level in the low byte.
type Entry struct {
	EntityID   uint32
	SeenByUnit uint32
	Distance   float32
	LevelFlags uint32
}

// Level extracts the quantized visibility level.
func (e *Entry) Level() Level { return Level(e.LevelFlags & 0xff) }

// Level is the quantized visibility strength of a confirmed sighting.
type Level uint8

const (
	LevelEdge Level = iota
	LevelPartial
	LevelFull
)

// String returns a short display name for a level.
func (l Level) String() string {
	switch l {
	case LevelEdge:
		return "edge"
	case LevelPartial:
		return "partial"
	case LevelFull:
		return "full"
	default:
		return "unknown"
	}
}

// Quantization cuts for QuantizeLevel, in world units of shape distance.
const (
	fullCut    float32 = -2.0
	partialCut float32 = -0.5
)

// QuantizeLevel maps a confirming shape distance (negative = inside the
// vision volume) to a visibility band.
func QuantizeLevel(shapeDistance float32) Level {
	switch {
	case shapeDistance <= fullCut:
		return LevelFull
	case shapeDistance <= partialCut:
		return LevelPartial
	default:
		return LevelEdge
	}
}

// PackLevel builds an Entry LevelFlags word.
func PackLevel(l Level) uint32 { return uint32(l) }
