// Package islands manages baked environment occluder volumes: oriented boxes
// with precomputed signed-distance grids produced by the offline baker.
package islands

import (
	"fmt"

	"github.com/pthm-cable/sightfield/vision"
)

// Field is one baked distance volume. Cells hold signed distances in world
// units sampled at cell centers over the island's local box
// [-HalfExtents, +HalfExtents], laid out x-fastest: idx = (z*res + y)*res + x.
type Field struct {
	Resolution  int
	HalfExtents vision.Vec3
	Cells       []float32
}

// NewField allocates a field with all cells at FarDistance (fully open).
func NewField(resolution int, halfExtents vision.Vec3) (*Field, error) {
	if resolution < 2 {
		return nil, fmt.Errorf("islands: resolution %d too small, need >= 2", resolution)
	}
	cells := make([]float32, resolution*resolution*resolution)
	for i := range cells {
		cells[i] = vision.FarDistance
	}
	return &Field{Resolution: resolution, HalfExtents: halfExtents, Cells: cells}, nil
}

// FromFunc bakes a field by sampling fn at every cell center. fn takes a
// point in the island's local frame and returns a signed distance.
func FromFunc(resolution int, halfExtents vision.Vec3, fn func(local vision.Vec3) float32) (*Field, error) {
	f, err := NewField(resolution, halfExtents)
	if err != nil {
		return nil, err
	}
	res := resolution
	for z := 0; z < res; z++ {
		for y := 0; y < res; y++ {
			for x := 0; x < res; x++ {
				p := f.cellCenter(x, y, z)
				f.Cells[(z*res+y)*res+x] = fn(p)
			}
		}
	}
	return f, nil
}

// cellCenter returns the local-frame position of cell (x, y, z).
func (f *Field) cellCenter(x, y, z int) vision.Vec3 {
	res := float32(f.Resolution)
	return vision.Vec3{
		X: ((float32(x)+0.5)/res*2 - 1) * f.HalfExtents.X,
		Y: ((float32(y)+0.5)/res*2 - 1) * f.HalfExtents.Y,
		Z: ((float32(z)+0.5)/res*2 - 1) * f.HalfExtents.Z,
	}
}

// Sample returns the trilinearly interpolated distance at a local-frame
// point. Points outside the box get FarDistance.
func (f *Field) Sample(local vision.Vec3) float32 {
	he := f.HalfExtents
	if local.X < -he.X || local.X > he.X ||
		local.Y < -he.Y || local.Y > he.Y ||
		local.Z < -he.Z || local.Z > he.Z {
		return vision.FarDistance
	}

	res := f.Resolution
	// Map to continuous cell coordinates, offset so integer coords land on
	// cell centers.
	gx := (local.X/he.X + 1) * 0.5 * float32(res) - 0.5
	gy := (local.Y/he.Y + 1) * 0.5 * float32(res) - 0.5
	gz := (local.Z/he.Z + 1) * 0.5 * float32(res) - 0.5

	x0, fx := splitCoord(gx, res)
	y0, fy := splitCoord(gy, res)
	z0, fz := splitCoord(gz, res)
	x1 := min(x0+1, res-1)
	y1 := min(y0+1, res-1)
	z1 := min(z0+1, res-1)

	at := func(x, y, z int) float32 { return f.Cells[(z*res+y)*res+x] }

	v00 := vision.Lerp(at(x0, y0, z0), at(x1, y0, z0), fx)
	v10 := vision.Lerp(at(x0, y1, z0), at(x1, y1, z0), fx)
	v01 := vision.Lerp(at(x0, y0, z1), at(x1, y0, z1), fx)
	v11 := vision.Lerp(at(x0, y1, z1), at(x1, y1, z1), fx)

	v0 := vision.Lerp(v00, v10, fy)
	v1 := vision.Lerp(v01, v11, fy)
	return vision.Lerp(v0, v1, fz)
}

// splitCoord clamps a continuous cell coordinate and splits it into a base
// index and interpolation fraction.
func splitCoord(g float32, res int) (int, float32) {
	if g < 0 {
		return 0, 0
	}
	i := int(g)
	if i >= res-1 {
		return res - 1, 0
	}
	return i, g - float32(i)
}

// Distance evaluates the island occluder at a world-space point: transform
// into the local frame and sample the field. For points outside the box the
// result is a conservative lower bound built from the distance to the box and
// the field value at the clamped surface point, so sphere-traced rays never
// step over the island from outside.
func Distance(is *vision.Island, f *Field, p vision.Vec3) float32 {
	if f == nil || !is.Valid() {
		return vision.FarDistance
	}
	local := is.Rotation.InverseRotate(p.Sub(is.Center))
	he := f.HalfExtents
	clamped := vision.Vec3{
		X: clampf(local.X, -he.X, he.X),
		Y: clampf(local.Y, -he.Y, he.Y),
		Z: clampf(local.Z, -he.Z, he.Z),
	}
	boxDist := local.Sub(clamped).Length()

	d := f.Sample(clamped)
	if is.SDFScale != 0 {
		d *= is.SDFScale
	}
	if boxDist > 0 {
		// Everything solid is inside the box, so the true distance is at
		// least boxDist; the Lipschitz bound from the surface sample gives
		// the other floor.
		if lb := d - boxDist; lb > boxDist {
			return lb
		}
		return boxDist
	}
	return d
}

func clampf(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// SegmentIntersects reports whether the segment p0→p1 passes through the
// island's oriented box. Slab test in the island's local frame.
func SegmentIntersects(is *vision.Island, p0, p1 vision.Vec3) bool {
	a := is.Rotation.InverseRotate(p0.Sub(is.Center))
	b := is.Rotation.InverseRotate(p1.Sub(is.Center))
	d := b.Sub(a)
	he := is.HalfExtents

	tmin, tmax := float32(0), float32(1)
	for _, axis := range [3][3]float32{
		{a.X, d.X, he.X},
		{a.Y, d.Y, he.Y},
		{a.Z, d.Z, he.Z},
	} {
		origin, dir, ext := axis[0], axis[1], axis[2]
		if dir == 0 {
			if origin < -ext || origin > ext {
				return false
			}
			continue
		}
		inv := 1 / dir
		t0 := (-ext - origin) * inv
		t1 := (ext - origin) * inv
		if inv < 0 {
			t0, t1 = t1, t0
		}
		if t0 > tmin {
			tmin = t0
		}
		if t1 < tmax {
			tmax = t1
		}
	}
	return tmax >= tmin
}

// Set holds the resident baked volumes by slot index. Slots outside
// [0, MaxIslands) are ignored rather than rejected: a bad slot in a streamed
// island definition must not take the pipeline down.
type Set struct {
	fields [vision.MaxIslands]*Field
}

// Store places a field in a slot. Out-of-range slots are a no-op.
func (s *Set) Store(slot int, f *Field) {
	if slot < 0 || slot >= vision.MaxIslands {
		return
	}
	s.fields[slot] = f
}

// Evict clears a slot. Out-of-range slots are a no-op.
func (s *Set) Evict(slot int) {
	if slot < 0 || slot >= vision.MaxIslands {
		return
	}
	s.fields[slot] = nil
}

// Field returns the resident field for a slot, or nil.
func (s *Set) Field(slot int) *Field {
	if slot < 0 || slot >= vision.MaxIslands {
		return nil
	}
	return s.fields[slot]
}
