package vision

import (
	"math"
	"testing"
)

func vecAlmostEqual(a, b Vec3, eps float32) bool {
	return almostEqual(a.X, b.X, eps) && almostEqual(a.Y, b.Y, eps) && almostEqual(a.Z, b.Z, eps)
}

func TestQuatRotate90(t *testing.T) {
	// 90° around Z maps +X to +Y.
	q := QuatAxisAngle(Vec3{0, 0, 1}, float32(math.Pi/2))
	got := q.Rotate(Vec3{1, 0, 0})
	if !vecAlmostEqual(got, Vec3{0, 1, 0}, 1e-5) {
		t.Errorf("rotate +X by 90° around Z = %v, want +Y", got)
	}
}

func TestQuatInverseRoundTrip(t *testing.T) {
	q := QuatAxisAngle(Vec3{1, 2, 3}, 1.1)
	v := Vec3{4, -5, 6}
	back := q.InverseRotate(q.Rotate(v))
	if !vecAlmostEqual(back, v, 1e-4) {
		t.Errorf("inverse rotate round trip = %v, want %v", back, v)
	}
}

func TestQuatIdentity(t *testing.T) {
	v := Vec3{1, 2, 3}
	if got := QuatIdentity.Rotate(v); !vecAlmostEqual(got, v, 1e-6) {
		t.Errorf("identity rotation moved %v to %v", v, got)
	}
}

func TestNormalizedDegenerate(t *testing.T) {
	if got := (Vec3{}).Normalized(); got != (Vec3{}) {
		t.Errorf("normalizing zero vector = %v, want zero", got)
	}
	n := Vec3{3, 4, 0}.Normalized()
	if !almostEqual(n.Length(), 1, 1e-5) {
		t.Errorf("normalized length = %v, want 1", n.Length())
	}
}
