package vision

import "math"

// Float32 vector and quaternion math for the record layouts. The device
// records are float32 end to end, so these stay float32 rather than round
// tripping through float64.

// Vec3 is a three-component float32 vector.
type Vec3 struct {
	X, Y, Z float32
}

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

// Scale returns v * s.
func (v Vec3) Scale(s float32) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }

// Dot returns the dot product of v and o.
func (v Vec3) Dot(o Vec3) float32 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }

// Cross returns the cross product of v and o.
func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		v.Y*o.Z - v.Z*o.Y,
		v.Z*o.X - v.X*o.Z,
		v.X*o.Y - v.Y*o.X,
	}
}

// Length returns |v|.
func (v Vec3) Length() float32 {
	return sqrtf(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// LengthSq returns |v|² without the sqrt.
func (v Vec3) LengthSq() float32 { return v.X*v.X + v.Y*v.Y + v.Z*v.Z }

// Normalized returns v scaled to unit length, or the zero vector if v is
// degenerate.
func (v Vec3) Normalized() Vec3 {
	l := v.Length()
	if l < 1e-8 {
		return Vec3{}
	}
	return v.Scale(1 / l)
}

// Distance returns |a - b|.
func Distance(a, b Vec3) float32 { return a.Sub(b).Length() }

// Lerp interpolates between a and b by t.
func Lerp(a, b, t float32) float32 { return a + (b-a)*t }

// Quat is a rotation quaternion (X, Y, Z imaginary; W real).
type Quat struct {
	X, Y, Z, W float32
}

// QuatIdentity is the no-rotation quaternion.
var QuatIdentity = Quat{W: 1}

// QuatAxisAngle builds a quaternion rotating angle radians around axis.
func QuatAxisAngle(axis Vec3, angle float32) Quat {
	axis = axis.Normalized()
	half := angle * 0.5
	s := sinf(half)
	return Quat{axis.X * s, axis.Y * s, axis.Z * s, cosf(half)}
}

// Rotate applies q to v.
func (q Quat) Rotate(v Vec3) Vec3 {
	u := Vec3{q.X, q.Y, q.Z}
	t := u.Cross(v).Scale(2)
	return v.Add(t.Scale(q.W)).Add(u.Cross(t))
}

// InverseRotate applies the inverse of q to v. Assumes q is unit length.
func (q Quat) InverseRotate(v Vec3) Vec3 {
	return Quat{-q.X, -q.Y, -q.Z, q.W}.Rotate(v)
}

// Scalar helpers. float32 wrappers over the math package.

func sqrtf(x float32) float32 { return float32(math.Sqrt(float64(x))) }
func sinf(x float32) float32  { return float32(math.Sin(float64(x))) }
func cosf(x float32) float32  { return float32(math.Cos(float64(x))) }
func tanf(x float32) float32  { return float32(math.Tan(float64(x))) }

func absf(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

// Clamp01 clamps v to the [0, 1] range.
func Clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
