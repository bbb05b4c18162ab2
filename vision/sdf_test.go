package vision

import (
	"math"
	"testing"
)

func almostEqual(a, b, eps float32) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= eps
}

func TestSphereDistance(t *testing.T) {
	cases := []struct {
		rel  Vec3
		r    float32
		want float32
	}{
		{Vec3{5, 0, 0}, 10, -5},
		{Vec3{15, 0, 0}, 10, 5},
		{Vec3{0, 10, 0}, 10, 0},
		{Vec3{}, 3, -3},
	}
	for _, c := range cases {
		got := SphereDistance(c.rel, c.r)
		if !almostEqual(got, c.want, 1e-4) {
			t.Errorf("SphereDistance(%v, %v) = %v, want %v", c.rel, c.r, got, c.want)
		}
	}
}

func TestConeDistanceBehindApex(t *testing.T) {
	dir := Vec3{1, 0, 0}
	if d := ConeDistance(Vec3{-1, 0, 0}, dir, 0.5, 100); d != FarDistance {
		t.Errorf("point behind apex should be FarDistance, got %v", d)
	}
	if d := ConeDistance(Vec3{150, 0, 0}, dir, 0.5, 100); d != FarDistance {
		t.Errorf("point beyond truncation should be FarDistance, got %v", d)
	}
}

func TestConeDistanceOnAxis(t *testing.T) {
	dir := Vec3{1, 0, 0}
	halfAngle := float32(math.Pi / 6)
	// On the axis at proj=10: perp=0, distance = -10*tan(30°).
	want := -10 * tanf(halfAngle)
	got := ConeDistance(Vec3{10, 0, 0}, dir, halfAngle, 100)
	if !almostEqual(got, want, 1e-3) {
		t.Errorf("on-axis cone distance = %v, want %v", got, want)
	}
}

func TestSmoothMinBlends(t *testing.T) {
	// Far apart: plain min.
	if got := SmoothMin(1, 10, 0.5); !almostEqual(got, 1, 1e-5) {
		t.Errorf("SmoothMin(1,10) = %v, want 1", got)
	}
	// Equal inputs: min minus full blend term k/4.
	if got := SmoothMin(2, 2, 0.5); !almostEqual(got, 2-0.125, 1e-5) {
		t.Errorf("SmoothMin(2,2) = %v, want %v", got, 2-0.125)
	}
	// Never above plain min.
	if got := SmoothMin(1.2, 1.0, 0.5); got > 1.0 {
		t.Errorf("SmoothMin above plain min: %v", got)
	}
}

func TestUnitDistanceDualSphere(t *testing.T) {
	u := UnitContribution{
		Position:       Vec3{},
		PrimaryRadius:  10,
		Forward:        Vec3{1, 0, 0},
		SecondaryParam: 5,
		Type:           VisionDualSphere,
	}
	// At the second sphere's center (forward * primaryRadius) the second
	// sphere alone gives -5; the blend can only deepen that.
	d := UnitDistance(&u, Vec3{10, 0, 0}, 100)
	if d > -5 {
		t.Errorf("dual-sphere distance at second center = %v, want <= -5", d)
	}
	// Well past both spheres: positive.
	if d := UnitDistance(&u, Vec3{30, 0, 0}, 100); d <= 0 {
		t.Errorf("distance outside both spheres = %v, want positive", d)
	}
}

func TestUnitDistanceClippedToViewRange(t *testing.T) {
	probe := Vec3{40, 0, 0}
	cases := []struct {
		name string
		u    UnitContribution
	}{
		{"sphere", UnitContribution{
			PrimaryRadius: 50,
			Type:          VisionSphere,
		}},
		{"sphere cone", UnitContribution{
			PrimaryRadius:  50,
			Forward:        Vec3{1, 0, 0},
			SecondaryParam: 0.5,
			Type:           VisionSphereCone,
		}},
		{"dual sphere", UnitContribution{
			PrimaryRadius:  50,
			Forward:        Vec3{1, 0, 0},
			SecondaryParam: 60,
			Type:           VisionDualSphere,
		}},
	}
	for _, c := range cases {
		// The raw volume covers the probe, but the view range is only 10, so
		// the clipped distance is rel length minus range.
		if d := UnitDistance(&c.u, probe, 10); !almostEqual(d, 30, 1e-3) {
			t.Errorf("%s: distance at 40 with view range 10 = %v, want 30", c.name, d)
		}
		// Inside the range the clip is a no-op.
		if d := UnitDistance(&c.u, probe, 100); d > 0 {
			t.Errorf("%s: distance at 40 with view range 100 = %v, want negative", c.name, d)
		}
	}
}

func TestGroupDistanceNearestAcrossFullRange(t *testing.T) {
	// Three units; the nearest to the probe is the middle one. A broken
	// implementation that only tracks the last-processed batch would report
	// the last unit instead.
	units := []UnitContribution{
		{Position: Vec3{100, 0, 0}, PrimaryRadius: 10, Type: VisionSphere},
		{Position: Vec3{3, 0, 0}, PrimaryRadius: 10, Type: VisionSphere},
		{Position: Vec3{50, 0, 0}, PrimaryRadius: 10, Type: VisionSphere},
	}
	g := VisionGroup{UnitStart: 0, UnitCount: 3, MaxViewDistance: 200}

	dist, nearest := GroupDistance(units, &g, Vec3{})
	if nearest != 1 {
		t.Errorf("nearest unit = %d, want 1", nearest)
	}
	if !almostEqual(dist, -7, 1e-4) {
		t.Errorf("group distance = %v, want -7", dist)
	}
}

func TestGroupDistanceRangeOffsets(t *testing.T) {
	// The group's range sits in the middle of the shared unit array; units
	// outside the range must not contribute.
	units := []UnitContribution{
		{Position: Vec3{0, 0, 0}, PrimaryRadius: 50, Type: VisionSphere}, // other group
		{Position: Vec3{100, 0, 0}, PrimaryRadius: 10, Type: VisionSphere},
		{Position: Vec3{120, 0, 0}, PrimaryRadius: 10, Type: VisionSphere},
	}
	g := VisionGroup{UnitStart: 1, UnitCount: 2, MaxViewDistance: 200}

	dist, nearest := GroupDistance(units, &g, Vec3{})
	if dist < 0 {
		t.Errorf("group distance picked up a unit outside the range: %v", dist)
	}
	if nearest != 1 {
		t.Errorf("nearest unit = %d, want 1", nearest)
	}
}

func TestGroupDistanceCullKeepsNearestTracking(t *testing.T) {
	// The close unit is culled for shape evaluation only when out of view
	// range, but it must still win nearest-unit attribution.
	units := []UnitContribution{
		{Position: Vec3{40, 0, 0}, PrimaryRadius: 1, Type: VisionSphere},
		{Position: Vec3{60, 0, 0}, PrimaryRadius: 55, Type: VisionSphere},
	}
	g := VisionGroup{UnitStart: 0, UnitCount: 2, MaxViewDistance: 10}

	_, nearest := GroupDistance(units, &g, Vec3{})
	if nearest != 0 {
		t.Errorf("nearest unit = %d, want 0 (point distance, not shape distance)", nearest)
	}
}

func TestQuantizeLevel(t *testing.T) {
	cases := []struct {
		d    float32
		want Level
	}{
		{-5, LevelFull},
		{-2, LevelFull},
		{-1, LevelPartial},
		{-0.5, LevelPartial},
		{-0.1, LevelEdge},
		{0.05, LevelEdge},
	}
	for _, c := range cases {
		if got := QuantizeLevel(c.d); got != c.want {
			t.Errorf("QuantizeLevel(%v) = %v, want %v", c.d, got, c.want)
		}
	}
}
