package vision

// Signed-distance evaluation for unit vision volumes. All functions are pure
// and safe for concurrent lanes.

// smoothMinK is the blend radius for the dual-sphere shape.
const smoothMinK float32 = 0.5

// SphereDistance returns the signed distance from p to a sphere of radius r
// centered at the origin of rel (rel = p - center).
func SphereDistance(rel Vec3, r float32) float32 {
	return rel.Length() - r
}

// ConeDistance returns the signed distance from rel to an open cone apexed at
// the origin, opening along dir with the given half-angle, truncated at
// maxDist. Points behind the apex or beyond the truncation get FarDistance.
func ConeDistance(rel, dir Vec3, halfAngle, maxDist float32) float32 {
	proj := rel.Dot(dir)
	if proj <= 0 || proj > maxDist {
		return FarDistance
	}
	perp := rel.Sub(dir.Scale(proj)).Length()
	return perp - proj*tanf(halfAngle)
}

// SmoothMin blends two distances with blend radius k, producing a rounded
// union instead of a crease.
func SmoothMin(a, b, k float32) float32 {
	h := maxf(k-absf(a-b), 0) / k
	return minf(a, b) - h*h*k*0.25
}

// UnitDistance evaluates one unit's vision volume at p. maxView is the owning
// group's max view distance; every shape is clipped to it, so a volume larger
// than the view range never sees past the range.
func UnitDistance(u *UnitContribution, p Vec3, maxView float32) float32 {
	rel := p.Sub(u.Position)
	d := SphereDistance(rel, u.PrimaryRadius)
	switch u.Type {
	case VisionSphereCone:
		d = minf(d, ConeDistance(rel, u.Forward, u.SecondaryParam, maxView))
	case VisionDualSphere:
		second := rel.Sub(u.Forward.Scale(u.PrimaryRadius))
		d = SmoothMin(d, SphereDistance(second, u.SecondaryParam), smoothMinK)
	}
	// Intersect with the view-range sphere around the unit.
	return maxf(d, rel.Length()-maxView)
}

// GroupDistance evaluates the group's combined vision volume at p: the
// minimum unit shape distance across the group's contiguous unit range.
// It also returns the index (into units) of the unit with the smallest point
// distance to p. Nearest-unit tracking runs inside the same loop that scans
// every unit in the range; it must never be restricted to a subset of the
// range or the attribution goes stale.
func GroupDistance(units []UnitContribution, g *VisionGroup, p Vec3) (dist float32, nearest uint32) {
	dist = FarDistance
	nearest = g.UnitStart
	nearestPoint := FarDistance

	end := g.UnitStart + g.UnitCount
	for i := g.UnitStart; i < end; i++ {
		u := &units[i]
		rel := p.Sub(u.Position)
		pointDist := rel.Length()

		if pointDist < nearestPoint {
			nearestPoint = pointDist
			nearest = i
		}

		// Bounding cull: the shape cannot reach p, skip the expensive test.
		if pointDist-u.PrimaryRadius > g.MaxViewDistance {
			continue
		}

		if d := UnitDistance(u, p, g.MaxViewDistance); d < dist {
			dist = d
		}
	}
	return dist, nearest
}
