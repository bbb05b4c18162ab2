package world

import (
	"testing"

	"github.com/pthm-cable/sightfield/components"
	"github.com/pthm-cable/sightfield/islands"
	"github.com/pthm-cable/sightfield/vision"
)

func TestSpawnAndIterate(t *testing.T) {
	w := New()
	w.SpawnUnit(vision.Vec3{X: 1}, vision.Vec3{X: 1}, 0, components.VisionSource{
		Type: vision.VisionSphere, Radius: 5, Enabled: true,
	})
	w.SpawnSeeable(vision.Vec3{X: 2}, 1, components.Seeable{
		EntityID: 7, SeeableBy: 0xff, Enabled: true,
	})
	both := w.SpawnUnitSeeable(vision.Vec3{X: 3}, vision.Vec3{Z: 1}, 2,
		components.VisionSource{Type: vision.VisionDualSphere, Radius: 8, Secondary: 4, Enabled: true},
		components.Seeable{EntityID: 8, SeeableBy: 0xff, Enabled: true},
	)

	var units, seeables int
	w.EachUnit(func(tr *components.Transform, src *components.VisionSource, m *components.GroupMember) {
		units++
	})
	w.EachSeeable(func(tr *components.Transform, s *components.Seeable, m *components.GroupMember) {
		seeables++
	})
	if units != 2 || seeables != 2 {
		t.Fatalf("iterated %d units, %d seeables, want 2/2", units, seeables)
	}

	// Component accessors return live pointers.
	if tr := w.Transform(both); tr == nil || tr.Position.X != 3 {
		t.Fatalf("transform accessor returned %+v", tr)
	}
	if s := w.Seeable(both); s == nil || s.EntityID != 8 {
		t.Fatalf("seeable accessor returned %+v", s)
	}
}

func TestDisabledEntitiesSkipped(t *testing.T) {
	w := New()
	unit := w.SpawnUnit(vision.Vec3{}, vision.Vec3{X: 1}, 0, components.VisionSource{
		Type: vision.VisionSphere, Radius: 5, Enabled: true,
	})
	seeable := w.SpawnSeeable(vision.Vec3{X: 2}, 1, components.Seeable{
		EntityID: 7, SeeableBy: 0xff, Enabled: true,
	})

	w.VisionSource(unit).Enabled = false
	w.Seeable(seeable).Enabled = false

	w.EachUnit(func(tr *components.Transform, src *components.VisionSource, m *components.GroupMember) {
		t.Errorf("disabled unit iterated")
	})
	w.EachSeeable(func(tr *components.Transform, s *components.Seeable, m *components.GroupMember) {
		t.Errorf("disabled seeable iterated")
	})
}

func TestGroupPolicyBounds(t *testing.T) {
	w := New()
	p := GroupPolicy{VisibilityMask: 0b10, MaxViewDistance: 50}
	w.SetGroupPolicy(3, p)
	if got := w.GroupPolicy(3); got != p {
		t.Fatalf("policy round trip = %+v", got)
	}
	// Out-of-range groups are ignored, not panics.
	w.SetGroupPolicy(-1, p)
	w.SetGroupPolicy(vision.MaxGroups, p)
	if got := w.GroupPolicy(99); got != (GroupPolicy{}) {
		t.Fatalf("out-of-range policy = %+v, want zero", got)
	}
}

func TestIslandRegistry(t *testing.T) {
	w := New()
	field, err := islands.NewField(4, vision.Vec3{X: 10, Y: 10, Z: 10})
	if err != nil {
		t.Fatalf("creating field: %v", err)
	}
	rec := vision.Island{
		Rotation:    vision.QuatIdentity,
		HalfExtents: vision.Vec3{X: 10, Y: 10, Z: 10},
		Resolution:  4,
		SlotIndex:   2,
		SDFScale:    1,
		Flags:       vision.IslandValid,
	}
	w.RegisterIsland(rec, field)

	var seen []vision.Island
	w.EachIsland(func(r vision.Island) { seen = append(seen, r) })
	if len(seen) != 1 || seen[0].SlotIndex != 2 || !seen[0].Valid() {
		t.Fatalf("registry iteration = %+v", seen)
	}
	if w.Fields().Field(2) != field {
		t.Fatalf("field not resident in slot 2")
	}

	w.SetIslandValid(2, false)
	w.EachIsland(func(r vision.Island) {
		if r.Valid() {
			t.Errorf("island still valid after invalidation")
		}
	})
	w.SetIslandValid(2, true)
	w.EachIsland(func(r vision.Island) {
		if !r.Valid() {
			t.Errorf("island not valid after revalidation")
		}
	})

	// Out-of-range slots never land in the registry.
	w.RegisterIsland(vision.Island{SlotIndex: 99}, field)
	count := 0
	w.EachIsland(func(r vision.Island) { count++ })
	if count != 1 {
		t.Fatalf("registry holds %d islands after bad register, want 1", count)
	}
}
