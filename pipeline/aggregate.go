package pipeline

import (
	"github.com/pthm-cable/sightfield/components"
	"github.com/pthm-cable/sightfield/vision"
)

// frame is the per-cycle input snapshot the compute stages read. Every array
// is rewritten wholesale each cycle; nothing in here is mutated after
// aggregate returns, so the stages can read it from any lane without locks.
type frame struct {
	cycle    uint64
	groups   [vision.MaxGroups]vision.VisionGroup
	units    []vision.UnitContribution
	seeables []vision.SeeableEntity
	islands  []vision.Island

	activeMask uint32

	unitDrops    int
	seeableDrops int
}

// aggregate rebuilds the frame from the entity store. Units are placed into
// contiguous per-group ranges with a two-pass count/prefix-sum/write scheme
// so no per-group buffer ever grows; group metadata is derived afterwards by
// scanning each placed range.
func (p *Pipeline) aggregate() {
	f := &p.frame
	f.cycle = p.cycle

	// Pass 1: count units per group.
	var counts [vision.MaxGroups]int
	p.world.EachUnit(func(t *components.Transform, src *components.VisionSource, m *components.GroupMember) {
		if int(m.Group) < vision.MaxGroups {
			counts[m.Group]++
		}
	})

	// Prefix-sum offsets, clamped to the unit buffer capacity. Groups past
	// the cap get truncated ranges; the overflow is dropped, not grown.
	var offsets, alloc [vision.MaxGroups]int
	total, wanted := 0, 0
	for g := 0; g < vision.MaxGroups; g++ {
		offsets[g] = total
		c := counts[g]
		wanted += c
		if total+c > p.maxUnits {
			c = p.maxUnits - total
		}
		alloc[g] = c
		total += c
	}
	f.unitDrops = wanted - total
	f.units = p.unitBuf[:total]

	// Pass 2: write units into their group ranges.
	var cursor [vision.MaxGroups]int
	p.world.EachUnit(func(t *components.Transform, src *components.VisionSource, m *components.GroupMember) {
		g := int(m.Group)
		if g >= vision.MaxGroups || cursor[g] >= alloc[g] {
			return
		}
		f.units[offsets[g]+cursor[g]] = vision.UnitContribution{
			Position:       t.Position,
			PrimaryRadius:  src.Radius,
			Forward:        t.Forward,
			SecondaryParam: src.Secondary,
			Type:           src.Type,
			OwnerGroup:     uint32(g),
		}
		cursor[g]++
	})

	// Group metadata from the placed ranges.
	f.activeMask = 0
	for g := 0; g < vision.MaxGroups; g++ {
		pol := p.world.GroupPolicy(g)
		f.groups[g] = vision.VisionGroup{
			UnitStart:       uint32(offsets[g]),
			UnitCount:       uint32(alloc[g]),
			GroupID:         uint32(g),
			VisibilityMask:  pol.VisibilityMask,
			MaxViewDistance: pol.MaxViewDistance,
		}
		if alloc[g] == 0 {
			continue
		}
		gr := &f.groups[g]

		var centroid vision.Vec3
		for i := offsets[g]; i < offsets[g]+alloc[g]; i++ {
			centroid = centroid.Add(f.units[i].Position)
		}
		centroid = centroid.Scale(1 / float32(alloc[g]))

		var radius float32
		for i := offsets[g]; i < offsets[g]+alloc[g]; i++ {
			u := &f.units[i]
			if r := vision.Distance(centroid, u.Position) + u.PrimaryRadius; r > radius {
				radius = r
			}
		}

		gr.Center = centroid
		gr.BoundingRadius = radius
		gr.Flags |= vision.GroupActive
		f.activeMask |= 1 << g
	}

	// Seeables: single pass, appended until capacity.
	f.seeables = p.seeableBuf[:0]
	f.seeableDrops = 0
	p.world.EachSeeable(func(t *components.Transform, s *components.Seeable, m *components.GroupMember) {
		if len(f.seeables) >= p.maxSeeables {
			f.seeableDrops++
			return
		}
		f.seeables = append(f.seeables, vision.SeeableEntity{
			EntityID:       s.EntityID,
			Position:       t.Position,
			HeightOffset:   s.HeightOffset,
			BoundingRadius: s.BoundingRadius,
			OwnerGroup:     uint32(m.Group),
			SeeableByMask:  s.SeeableBy,
		})
	})

	// Islands: copy the registry records as of this cycle, validity included.
	f.islands = f.islands[:0]
	p.world.EachIsland(func(rec vision.Island) {
		f.islands = append(f.islands, rec)
	})
}
