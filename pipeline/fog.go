package pipeline

import (
	"fmt"
	"math"

	"github.com/pthm-cable/sightfield/config"
	"github.com/pthm-cable/sightfield/device"
	"github.com/pthm-cable/sightfield/vision"
)

// fogOcclusionFade is the environment distance below which a voxel's
// visibility starts fading toward fully occluded.
const fogOcclusionFade = 0.5

// fogActiveEps separates "some unit sees this voxel" from "nobody does";
// below it the voxel decays instead of blending.
const fogActiveEps = 0.01

// FogVolume is a world-aligned visibility grid for one designated group.
// Seen voxels blend toward their current visibility, unseen voxels decay
// exponentially, so fog lingers where units recently were.
type FogVolume struct {
	dims   [3]int
	min    vision.Vec3
	cell   vision.Vec3
	values []float32

	group     int
	blend     float32
	dissipate float32
}

func NewFogVolume(cfg *config.Config) (*FogVolume, error) {
	fc := cfg.Fog
	if fc.GridX <= 0 || fc.GridY <= 0 || fc.GridZ <= 0 {
		return nil, fmt.Errorf("fog: grid dimensions must be positive, got %dx%dx%d", fc.GridX, fc.GridY, fc.GridZ)
	}
	if fc.PlayerGroup < 0 || fc.PlayerGroup >= vision.MaxGroups {
		return nil, fmt.Errorf("fog: player group %d out of range", fc.PlayerGroup)
	}
	return &FogVolume{
		dims:      [3]int{fc.GridX, fc.GridY, fc.GridZ},
		min:       vision.Vec3{X: cfg.Derived.WorldMin[0], Y: cfg.Derived.WorldMin[1], Z: cfg.Derived.WorldMin[2]},
		cell:      vision.Vec3{X: cfg.Derived.FogCell[0], Y: cfg.Derived.FogCell[1], Z: cfg.Derived.FogCell[2]},
		values:    make([]float32, fc.GridX*fc.GridY*fc.GridZ),
		group:     fc.PlayerGroup,
		blend:     float32(fc.BlendRate),
		dissipate: float32(fc.DissipationRate),
	}, nil
}

// Dims returns the grid dimensions.
func (f *FogVolume) Dims() [3]int { return f.dims }

// voxelCenter maps a flat index (x fastest, then y, then z) to world space.
func (f *FogVolume) voxelCenter(i int) vision.Vec3 {
	x := i % f.dims[0]
	y := (i / f.dims[0]) % f.dims[1]
	z := i / (f.dims[0] * f.dims[1])
	return vision.Vec3{
		X: f.min.X + (float32(x)+0.5)*f.cell.X,
		Y: f.min.Y + (float32(y)+0.5)*f.cell.Y,
		Z: f.min.Z + (float32(z)+0.5)*f.cell.Z,
	}
}

// At returns the raw voxel value at grid coordinates, 0 outside the grid.
func (f *FogVolume) At(x, y, z int) float32 {
	if x < 0 || y < 0 || z < 0 || x >= f.dims[0] || y >= f.dims[1] || z >= f.dims[2] {
		return 0
	}
	return f.values[(z*f.dims[1]+y)*f.dims[0]+x]
}

// Sample trilinearly interpolates visibility at a world position. Outside
// the grid everything reads as unseen.
func (f *FogVolume) Sample(p vision.Vec3) float32 {
	gx := (p.X-f.min.X)/f.cell.X - 0.5
	gy := (p.Y-f.min.Y)/f.cell.Y - 0.5
	gz := (p.Z-f.min.Z)/f.cell.Z - 0.5

	x0, fx := floorSplit(gx)
	y0, fy := floorSplit(gy)
	z0, fz := floorSplit(gz)

	c00 := vision.Lerp(f.At(x0, y0, z0), f.At(x0+1, y0, z0), fx)
	c10 := vision.Lerp(f.At(x0, y0+1, z0), f.At(x0+1, y0+1, z0), fx)
	c01 := vision.Lerp(f.At(x0, y0, z0+1), f.At(x0+1, y0, z0+1), fx)
	c11 := vision.Lerp(f.At(x0, y0+1, z0+1), f.At(x0+1, y0+1, z0+1), fx)
	return vision.Lerp(vision.Lerp(c00, c10, fz), vision.Lerp(c01, c11, fz), fy)
}

func floorSplit(g float32) (int, float32) {
	fl := float32(math.Floor(float64(g)))
	return int(fl), g - fl
}

// runFog runs stage 0: recompute the designated group's visibility for every
// voxel. Each lane owns one voxel, so writes are disjoint by construction.
// elapsed is the simulation time since the last fog pass.
func (p *Pipeline) runFog(elapsed float32) {
	fog := p.fog
	f := &p.frame
	gr := &f.groups[fog.group]

	decay := float32(math.Exp(float64(-fog.dissipate * elapsed)))

	if !gr.Active() {
		// Nobody sees anything; the whole grid decays.
		p.dev.Run(len(fog.values), func(b device.Block, s *device.Scratch) {
			for i := b.Start; i < b.End; i++ {
				fog.values[i] *= decay
			}
		})
		return
	}

	units := f.units
	p.dev.Run(len(fog.values), func(b device.Block, s *device.Scratch) {
		for i := b.Start; i < b.End; i++ {
			pos := fog.voxelCenter(i)
			d, nearest := vision.GroupDistance(units, gr, pos)

			// Visibility ramps from 1 inside the nearest unit's radius down
			// to 0 half a radius past the combined shape boundary.
			radius := units[nearest].PrimaryRadius
			if radius <= 0 {
				radius = 1
			}
			vis := vision.Clamp01(-d/radius + 0.5)

			if vis > 0 {
				vis *= p.fogOcclusion(s, pos)
			}

			prev := fog.values[i]
			if vis > fogActiveEps {
				fog.values[i] = prev + (vis-prev)*fog.blend
			} else {
				fog.values[i] = prev * decay
			}
		}
	})
}

// fogOcclusion attenuates voxel visibility near and inside islands.
func (p *Pipeline) fogOcclusion(s *device.Scratch, pos vision.Vec3) float32 {
	f := &p.frame
	if len(f.islands) == 0 {
		return 1
	}
	s.IslandIdx = s.IslandIdx[:0]
	fields := p.world.Fields()
	for idx := range f.islands {
		rec := &f.islands[idx]
		if rec.Valid() && fields.Field(int(rec.SlotIndex)) != nil {
			s.IslandIdx = append(s.IslandIdx, idx)
		}
	}
	if len(s.IslandIdx) == 0 {
		return 1
	}
	env := p.envDistance(s.IslandIdx, pos)
	if env >= fogOcclusionFade {
		return 1
	}
	return vision.Clamp01(env / fogOcclusionFade)
}
