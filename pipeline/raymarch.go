package pipeline

import (
	"github.com/pthm-cable/sightfield/device"
	"github.com/pthm-cable/sightfield/islands"
	"github.com/pthm-cable/sightfield/vision"
)

// runRaymarch runs stage 3: confirm or reject each candidate by marching a
// ray from its nearest unit to the seeable's eye point through the island
// distance fields. One dispatch per group, sized by the descriptors stage 2
// derived from the arena cursors.
func (p *Pipeline) runRaymarch() {
	for _, g := range p.groupOrder {
		ws := p.work[g]
		if ws.Items == 0 {
			continue
		}
		cands := p.candidates.Group(g)
		p.dev.Run(ws.Items, p.raymarchKernel(g, cands))
	}
}

func (p *Pipeline) raymarchKernel(group int, cands []vision.Candidate) device.Kernel {
	return func(b device.Block, s *device.Scratch) {
		for i := b.Start; i < b.End; i++ {
			c := &cands[i]
			if !p.confirm(c, s) {
				continue
			}
			p.entries.Append(group, vision.Entry{
				EntityID:   c.EntityID,
				SeenByUnit: c.NearestUnit,
				Distance:   c.Distance,
				LevelFlags: vision.PackLevel(vision.QuantizeLevel(c.ShapeDist)),
			})
		}
	}
}

// confirm ray-marches from the candidate's nearest unit to the target eye
// point. Occluded only when the environment distance drops below the
// occlusion threshold; every budget- or heuristic-exit resolves in favor of
// visibility, so a miss here can only ever show too much, never hide a
// legitimately visible entity.
func (p *Pipeline) confirm(c *vision.Candidate, s *device.Scratch) bool {
	f := &p.frame
	from := f.units[c.NearestUnit].Position
	to := f.seeables[c.SeeableIndex].EyePoint()

	// March up to the target's bounding surface, not its center.
	segLen := vision.Distance(from, to) - f.seeables[c.SeeableIndex].BoundingRadius
	if segLen < vision.MinStep {
		return true
	}

	// Island set for this ray: valid islands whose box the segment crosses.
	s.IslandIdx = s.IslandIdx[:0]
	fields := p.world.Fields()
	for idx := range f.islands {
		rec := &f.islands[idx]
		if !rec.Valid() || fields.Field(int(rec.SlotIndex)) == nil {
			continue
		}
		if islands.SegmentIntersects(rec, from, to) {
			s.IslandIdx = append(s.IslandIdx, idx)
		}
	}
	if len(s.IslandIdx) == 0 {
		return true
	}

	dir := to.Sub(from).Normalized()
	traveled := float32(0)
	openRun := 0
	for step := 0; step < vision.MaxRaySteps; step++ {
		pos := from.Add(dir.Scale(traveled))
		env := p.envDistance(s.IslandIdx, pos)
		if env < vision.OcclusionThreshold {
			return false
		}
		stepLen := max(env*vision.StepScale, vision.MinStep)
		if traveled+stepLen >= segLen {
			return true
		}
		// Consecutive long strides mean the ray is in open space; stop
		// paying for it.
		if stepLen > vision.OpenSpaceStep {
			openRun++
			if openRun >= vision.OpenSpaceRuns {
				return true
			}
		} else {
			openRun = 0
		}
		traveled += stepLen
	}
	// Step budget exhausted without hitting anything.
	return true
}

// envDistance is the minimum signed distance to any island in the set.
func (p *Pipeline) envDistance(idx []int, pos vision.Vec3) float32 {
	f := &p.frame
	fields := p.world.Fields()
	env := float32(vision.FarDistance)
	for _, i := range idx {
		rec := &f.islands[i]
		d := islands.Distance(rec, fields.Field(int(rec.SlotIndex)), pos)
		if d < env {
			env = d
		}
	}
	return env
}
