package pipeline

import (
	"github.com/pthm-cable/sightfield/device"
	"github.com/pthm-cable/sightfield/vision"
)

// runBroadphase runs stage 1: for every active group, evaluate every seeable
// against the group's combined vision shape and collect the ones inside it
// as candidates for occlusion testing. One dispatch per group over the
// seeable index space; candidate order within a group is nondeterministic but
// the candidate SET is not, and downstream consumers never depend on order.
func (p *Pipeline) runBroadphase() {
	n := len(p.frame.seeables)
	if n == 0 {
		return
	}
	for _, g := range p.groupOrder {
		if p.frame.activeMask&(1<<uint(g)) == 0 {
			continue
		}
		p.dev.Run(n, p.broadphaseKernel(&p.frame.groups[g]))
	}
}

// broadphaseKernel builds the stage 1 kernel for one group. Each lane owns
// one seeable. The group's unit range is staged into block-shared scratch in
// fixed-size batches; staging happens before any lane-dependent work in the
// batch so every lane reads a complete batch.
func (p *Pipeline) broadphaseKernel(gr *vision.VisionGroup) device.Kernel {
	f := &p.frame
	return func(b device.Block, s *device.Scratch) {
		lanes := b.End - b.Start

		// Per-lane prefilter: own group, permission masks, coarse distance
		// cull against the group's bounding sphere plus view distance.
		allSkip := true
		for l := 0; l < lanes; l++ {
			sb := &f.seeables[b.Start+l]
			s.Eyes[l] = sb.EyePoint()
			s.Dist[l] = vision.FarDistance
			s.Point[l] = vision.FarDistance
			s.Nearest[l] = gr.UnitStart

			skip := sb.OwnerGroup == gr.GroupID ||
				!gr.CanSee(sb.OwnerGroup) ||
				!sb.VisibleTo(gr.GroupID) ||
				vision.Distance(s.Eyes[l], gr.Center) > gr.BoundingRadius+gr.MaxViewDistance+sb.BoundingRadius
			s.Skip[l] = skip
			if !skip {
				allSkip = false
			}
		}
		if allSkip {
			return
		}

		// Batched evaluation over the full unit range. The nearest unit is
		// tracked by point distance across ALL batches, independently of the
		// shape result, so a far contributor can never shadow the true
		// nearest unit.
		batch := uint32(p.dev.StagingBatch())
		last := gr.UnitStart + gr.UnitCount
		for ustart := gr.UnitStart; ustart < last; ustart += batch {
			uend := min(ustart+batch, last)
			s.Units = append(s.Units[:0], f.units[ustart:uend]...)

			for l := 0; l < lanes; l++ {
				if s.Skip[l] {
					continue
				}
				eye := s.Eyes[l]
				for k := range s.Units {
					u := &s.Units[k]
					ptDist := vision.Distance(eye, u.Position)
					if ptDist < s.Point[l] {
						s.Point[l] = ptDist
						s.Nearest[l] = ustart + uint32(k)
					}
					// Per-unit reach cull skips only the shape test; the
					// nearest-unit update above already happened.
					if ptDist-u.PrimaryRadius > gr.MaxViewDistance {
						continue
					}
					if d := vision.UnitDistance(u, eye, gr.MaxViewDistance); d < s.Dist[l] {
						s.Dist[l] = d
					}
				}
			}
		}

		// Epilogue: lanes inside the shape emit candidates through the
		// arena's atomic cursor.
		for l := 0; l < lanes; l++ {
			if s.Skip[l] || s.Dist[l] >= vision.VisibilityThreshold {
				continue
			}
			sb := &f.seeables[b.Start+l]
			p.candidates.Append(int(gr.GroupID), vision.Candidate{
				EntityID:     sb.EntityID,
				SeeableIndex: uint32(b.Start + l),
				ViewerGroup:  gr.GroupID,
				NearestUnit:  s.Nearest[l],
				Distance:     s.Point[l],
				ShapeDist:    s.Dist[l],
			})
		}
	}
}
