// Package world wraps the ark entity store the pipeline aggregates from:
// units, seeable entities, group policy, and the island registry.
package world

import (
	"log/slog"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/sightfield/components"
	"github.com/pthm-cable/sightfield/islands"
	"github.com/pthm-cable/sightfield/vision"
)

// GroupPolicy is the per-group configuration that is not per-entity: which
// groups it is permitted to see and how far its units can see at most.
type GroupPolicy struct {
	VisibilityMask  uint32
	MaxViewDistance float32
}

// World is the entity store. The pipeline treats it as read-only during a
// cycle; its internal consistency while the aggregator scans is the caller's
// contract.
type World struct {
	ecs *ecs.World

	unitMapper *ecs.Map3[
		components.Transform,
		components.VisionSource,
		components.GroupMember,
	]
	unitSeeableMapper *ecs.Map4[
		components.Transform,
		components.VisionSource,
		components.GroupMember,
		components.Seeable,
	]
	seeableMapper *ecs.Map3[
		components.Transform,
		components.Seeable,
		components.GroupMember,
	]

	unitFilter *ecs.Filter3[
		components.Transform,
		components.VisionSource,
		components.GroupMember,
	]
	seeableFilter *ecs.Filter3[
		components.Transform,
		components.Seeable,
		components.GroupMember,
	]

	transformMap *ecs.Map1[components.Transform]
	sourceMap    *ecs.Map1[components.VisionSource]
	seeableMap   *ecs.Map1[components.Seeable]

	policies [vision.MaxGroups]GroupPolicy

	islandRecords [vision.MaxIslands]vision.Island
	islandUsed    [vision.MaxIslands]bool
	fields        islands.Set
}

// New creates an empty world.
func New() *World {
	w := ecs.NewWorld()
	return &World{
		ecs: w,
		unitMapper: ecs.NewMap3[
			components.Transform,
			components.VisionSource,
			components.GroupMember,
		](w),
		unitSeeableMapper: ecs.NewMap4[
			components.Transform,
			components.VisionSource,
			components.GroupMember,
			components.Seeable,
		](w),
		seeableMapper: ecs.NewMap3[
			components.Transform,
			components.Seeable,
			components.GroupMember,
		](w),
		unitFilter: ecs.NewFilter3[
			components.Transform,
			components.VisionSource,
			components.GroupMember,
		](w),
		seeableFilter: ecs.NewFilter3[
			components.Transform,
			components.Seeable,
			components.GroupMember,
		](w),
		transformMap: ecs.NewMap1[components.Transform](w),
		sourceMap:    ecs.NewMap1[components.VisionSource](w),
		seeableMap:   ecs.NewMap1[components.Seeable](w),
	}
}

// SetGroupPolicy configures a group's permission mask and max view distance.
// Out-of-range groups are ignored.
func (w *World) SetGroupPolicy(group int, p GroupPolicy) {
	if group < 0 || group >= vision.MaxGroups {
		slog.Warn("world: group policy for invalid group", "group", group)
		return
	}
	w.policies[group] = p
}

// GroupPolicy returns the policy for a group.
func (w *World) GroupPolicy(group int) GroupPolicy {
	if group < 0 || group >= vision.MaxGroups {
		return GroupPolicy{}
	}
	return w.policies[group]
}

// SpawnUnit creates a vision-contributing entity.
func (w *World) SpawnUnit(pos, forward vision.Vec3, group uint8, src components.VisionSource) ecs.Entity {
	t := components.Transform{Position: pos, Forward: forward.Normalized()}
	m := components.GroupMember{Group: group}
	return w.unitMapper.NewEntity(&t, &src, &m)
}

// SpawnSeeable creates a markable entity with no vision contribution.
func (w *World) SpawnSeeable(pos vision.Vec3, group uint8, s components.Seeable) ecs.Entity {
	t := components.Transform{Position: pos}
	m := components.GroupMember{Group: group}
	return w.seeableMapper.NewEntity(&t, &s, &m)
}

// SpawnUnitSeeable creates an entity that both contributes vision and can be
// seen by other groups (the common case for combat units).
func (w *World) SpawnUnitSeeable(pos, forward vision.Vec3, group uint8, src components.VisionSource, s components.Seeable) ecs.Entity {
	t := components.Transform{Position: pos, Forward: forward.Normalized()}
	m := components.GroupMember{Group: group}
	return w.unitSeeableMapper.NewEntity(&t, &src, &m, &s)
}

// Transform returns a live pointer to an entity's transform, or nil.
func (w *World) Transform(e ecs.Entity) *components.Transform {
	return w.transformMap.Get(e)
}

// VisionSource returns a live pointer to an entity's vision source, or nil.
func (w *World) VisionSource(e ecs.Entity) *components.VisionSource {
	return w.sourceMap.Get(e)
}

// Seeable returns a live pointer to an entity's seeable component, or nil.
func (w *World) Seeable(e ecs.Entity) *components.Seeable {
	return w.seeableMap.Get(e)
}

// EachUnit calls fn for every enabled vision source.
func (w *World) EachUnit(fn func(t *components.Transform, src *components.VisionSource, m *components.GroupMember)) {
	query := w.unitFilter.Query()
	for query.Next() {
		t, src, m := query.Get()
		if !src.Enabled {
			continue
		}
		fn(t, src, m)
	}
}

// EachSeeable calls fn for every enabled seeable.
func (w *World) EachSeeable(fn func(t *components.Transform, s *components.Seeable, m *components.GroupMember)) {
	query := w.seeableFilter.Query()
	for query.Next() {
		t, s, m := query.Get()
		if !s.Enabled {
			continue
		}
		fn(t, s, m)
	}
}

// RegisterIsland installs an island record and its baked field in the
// record's slot. A slot outside 0..MaxIslands-1 is a no-op, logged once here
// rather than surfaced as an error (the definition comes from streamed
// content and must not take the run down).
func (w *World) RegisterIsland(rec vision.Island, f *islands.Field) {
	slot := int(rec.SlotIndex)
	if slot < 0 || slot >= vision.MaxIslands {
		slog.Warn("world: island slot out of range, ignored", "slot", slot)
		return
	}
	w.islandRecords[slot] = rec
	w.islandUsed[slot] = true
	w.fields.Store(slot, f)
}

// SetIslandValid flips an island's validity while its volume streams in or
// out. Unused or out-of-range slots are a no-op.
func (w *World) SetIslandValid(slot int, valid bool) {
	if slot < 0 || slot >= vision.MaxIslands || !w.islandUsed[slot] {
		return
	}
	if valid {
		w.islandRecords[slot].Flags |= vision.IslandValid
	} else {
		w.islandRecords[slot].Flags &^= vision.IslandValid
	}
}

// EachIsland calls fn for every registered island record.
func (w *World) EachIsland(fn func(rec vision.Island)) {
	for slot, used := range w.islandUsed {
		if used {
			fn(w.islandRecords[slot])
		}
	}
}

// Fields exposes the resident baked volumes for the compute stages.
func (w *World) Fields() *islands.Set { return &w.fields }
