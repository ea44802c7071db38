// Package spatial provides the small rotation algebra shared by the robot model and the constraints
package spatial

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Rotation is a 3x3 row-major rotation matrix
type Rotation [3][3]float64

// Identity returns the identity rotation
func Identity() Rotation {
	return Rotation{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// MulVec returns R·v
func (r Rotation) MulVec(v r3.Vec) r3.Vec {
	return r3.Vec{
		X: r[0][0]*v.X + r[0][1]*v.Y + r[0][2]*v.Z,
		Y: r[1][0]*v.X + r[1][1]*v.Y + r[1][2]*v.Z,
		Z: r[2][0]*v.X + r[2][1]*v.Y + r[2][2]*v.Z,
	}
}

// Mul returns R·b
func (r Rotation) Mul(b Rotation) Rotation {
	var out Rotation
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = r[i][0]*b[0][j] + r[i][1]*b[1][j] + r[i][2]*b[2][j]
		}
	}
	return out
}

// T returns the transpose, which is the inverse rotation
func (r Rotation) T() Rotation {
	var out Rotation
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = r[j][i]
		}
	}
	return out
}

// AxisAngle returns the rotation of angle radians about the unit axis (Rodrigues)
func AxisAngle(axis r3.Vec, angle float64) Rotation {
	s, c := math.Sincos(angle)
	t := 1 - c
	x, y, z := axis.X, axis.Y, axis.Z
	return Rotation{
		{t*x*x + c, t*x*y - s*z, t*x*z + s*y},
		{t*x*y + s*z, t*y*y + c, t*y*z - s*x},
		{t*x*z - s*y, t*y*z + s*x, t*z*z + c},
	}
}

// RPY returns Rz(yaw)·Ry(pitch)·Rx(roll), the convention used by URDF origins
func RPY(roll, pitch, yaw float64) Rotation {
	rx := AxisAngle(r3.Vec{X: 1}, roll)
	ry := AxisAngle(r3.Vec{Y: 1}, pitch)
	rz := AxisAngle(r3.Vec{Z: 1}, yaw)
	return rz.Mul(ry).Mul(rx)
}

// EulerXYZ decomposes R = Rx(a)·Ry(b)·Rz(c)
func EulerXYZ(r Rotation) (a, b, c float64) {
	sb := math.Max(-1, math.Min(1, r[0][2]))
	b = math.Asin(sb)
	a = math.Atan2(-r[1][2], r[2][2])
	c = math.Atan2(-r[0][1], r[0][0])
	return a, b, c
}

// FromQuat converts a quaternion to a rotation matrix. The quaternion is normalized first;
// the zero quaternion maps to the identity.
func FromQuat(q quat.Number) Rotation {
	n := quat.Abs(q)
	if n == 0 {
		return Identity()
	}
	w, x, y, z := q.Real/n, q.Imag/n, q.Jmag/n, q.Kmag/n
	return Rotation{
		{1 - 2*(y*y+z*z), 2 * (x*y - z*w), 2 * (x*z + y*w)},
		{2 * (x*y + z*w), 1 - 2*(x*x+z*z), 2 * (y*z - x*w)},
		{2 * (x*z - y*w), 2 * (y*z + x*w), 1 - 2*(x*x+y*y)},
	}
}

// Quat converts the rotation to a unit quaternion with non-negative real part
func (r Rotation) Quat() quat.Number {
	tr := r[0][0] + r[1][1] + r[2][2]
	var q quat.Number
	switch {
	case tr > 0:
		s := math.Sqrt(tr+1) * 2
		q = quat.Number{Real: s / 4, Imag: (r[2][1] - r[1][2]) / s, Jmag: (r[0][2] - r[2][0]) / s, Kmag: (r[1][0] - r[0][1]) / s}
	case r[0][0] > r[1][1] && r[0][0] > r[2][2]:
		s := math.Sqrt(1+r[0][0]-r[1][1]-r[2][2]) * 2
		q = quat.Number{Real: (r[2][1] - r[1][2]) / s, Imag: s / 4, Jmag: (r[0][1] + r[1][0]) / s, Kmag: (r[0][2] + r[2][0]) / s}
	case r[1][1] > r[2][2]:
		s := math.Sqrt(1+r[1][1]-r[0][0]-r[2][2]) * 2
		q = quat.Number{Real: (r[0][2] - r[2][0]) / s, Imag: (r[0][1] + r[1][0]) / s, Jmag: s / 4, Kmag: (r[1][2] + r[2][1]) / s}
	default:
		s := math.Sqrt(1+r[2][2]-r[0][0]-r[1][1]) * 2
		q = quat.Number{Real: (r[1][0] - r[0][1]) / s, Imag: (r[0][2] + r[2][0]) / s, Jmag: (r[1][2] + r[2][1]) / s, Kmag: s / 4}
	}
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	return q
}

// Unit returns v normalized; the zero vector is returned unchanged
func Unit(v r3.Vec) r3.Vec {
	n := r3.Norm(v)
	if n == 0 {
		return v
	}
	return r3.Scale(1/n, v)
}
