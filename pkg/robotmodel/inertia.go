package robotmodel

import (
	"github.com/wholebody/wbc/pkg/spatial"
	"gonum.org/v1/gonum/spatial/r3"
)

// inertia is a symmetric rotational inertia tensor
type inertia [3][3]float64

func inertiaFromURDF(v [6]float64) inertia {
	ixx, ixy, ixz, iyy, iyz, izz := v[0], v[1], v[2], v[3], v[4], v[5]
	return inertia{
		{ixx, ixy, ixz},
		{ixy, iyy, iyz},
		{ixz, iyz, izz},
	}
}

func (in inertia) mulVec(v r3.Vec) r3.Vec {
	return r3.Vec{
		X: in[0][0]*v.X + in[0][1]*v.Y + in[0][2]*v.Z,
		Y: in[1][0]*v.X + in[1][1]*v.Y + in[1][2]*v.Z,
		Z: in[2][0]*v.X + in[2][1]*v.Y + in[2][2]*v.Z,
	}
}

// rotate returns R·I·Rᵀ
func (in inertia) rotate(r spatial.Rotation) inertia {
	tmp := spatial.Rotation(in)
	out := r.Mul(tmp).Mul(r.T())
	return inertia(out)
}
