package robotmodel

import (
	"github.com/wholebody/wbc/pkg/types"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Gravity is the gravitational acceleration in world coordinates
var Gravity = r3.Vec{Z: -9.81}

type dynamicsCache struct {
	inertia *mat.Dense
	bias    []float64

	mass    float64
	com     r3.Vec
	comJac  []r3.Vec
	comBias r3.Vec
}

// dynamics projects the Newton-Euler equations of every body onto joint space:
//
//	M = Σ m·Jcᵀ·Jc + Jωᵀ·I·Jω
//	h = Σ Jcᵀ·m·(ac − g) + Jωᵀ·(I·α + ω × I·ω)
//
// with Jc the Jacobian and ac the bias acceleration of the body's centre of mass.
func (m *Model) dynamics() (*dynamicsCache, error) {
	if !m.configured {
		return nil, ErrNotConfigured
	}
	if !m.updated {
		return nil, ErrNotUpdated
	}
	if m.dyn != nil {
		return m.dyn, nil
	}

	nj := len(m.jointNames)
	dc := &dynamicsCache{
		bias:   make([]float64, nj),
		comJac: make([]r3.Vec, nj),
	}
	data := make([]float64, nj*nj)
	jc := make([]r3.Vec, nj)
	iw := make([]r3.Vec, nj)

	for i := range m.bodies {
		b := &m.bodies[i]
		if b.mass == 0 {
			continue
		}
		r := b.rot.MulVec(b.com)
		inWorld := b.inertia.rotate(b.rot)

		for c := 0; c < nj; c++ {
			jc[c] = r3.Add(b.jv[c], r3.Cross(b.jw[c], r))
			iw[c] = inWorld.mulVec(b.jw[c])
		}
		for row := 0; row < nj; row++ {
			for col := row; col < nj; col++ {
				v := b.mass*r3.Dot(jc[row], jc[col]) + r3.Dot(b.jw[row], iw[col])
				data[row*nj+col] += v
				if col != row {
					data[col*nj+row] += v
				}
			}
		}

		wxr := r3.Cross(b.omega, r)
		ac := r3.Add(r3.Add(b.acc, r3.Cross(b.alpha, r)), r3.Cross(b.omega, wxr))
		force := r3.Scale(b.mass, r3.Sub(ac, Gravity))
		iwOmega := inWorld.mulVec(b.omega)
		moment := r3.Add(inWorld.mulVec(b.alpha), r3.Cross(b.omega, iwOmega))
		for c := 0; c < nj; c++ {
			dc.bias[c] += r3.Dot(jc[c], force) + r3.Dot(b.jw[c], moment)
			dc.comJac[c] = r3.Add(dc.comJac[c], r3.Scale(b.mass, jc[c]))
		}

		dc.mass += b.mass
		dc.com = r3.Add(dc.com, r3.Scale(b.mass, r3.Add(b.pos, r)))
		dc.comBias = r3.Add(dc.comBias, r3.Scale(b.mass, ac))
	}

	if dc.mass > 0 {
		s := 1 / dc.mass
		dc.com = r3.Scale(s, dc.com)
		dc.comBias = r3.Scale(s, dc.comBias)
		for c := range dc.comJac {
			dc.comJac[c] = r3.Scale(s, dc.comJac[c])
		}
	}
	if nj > 0 {
		dc.inertia = mat.NewDense(nj, nj, data)
	} else {
		dc.inertia = &mat.Dense{}
	}
	m.dyn = dc
	return dc, nil
}

// JointSpaceInertiaMatrix returns M(q)
func (m *Model) JointSpaceInertiaMatrix() (*mat.Dense, error) {
	dc, err := m.dynamics()
	if err != nil {
		return nil, err
	}
	return mat.DenseCopyOf(dc.inertia), nil
}

// BiasForces returns h(q, q̇), the Coriolis, centrifugal and gravity torques
func (m *Model) BiasForces() ([]float64, error) {
	dc, err := m.dynamics()
	if err != nil {
		return nil, err
	}
	return append([]float64(nil), dc.bias...), nil
}

// TotalMass returns the summed link mass
func (m *Model) TotalMass() (float64, error) {
	dc, err := m.dynamics()
	if err != nil {
		return 0, err
	}
	return dc.mass, nil
}

// COMJacobian returns the 3×NoOfJoints Jacobian of the centre of mass in world coordinates
func (m *Model) COMJacobian() (*mat.Dense, error) {
	dc, err := m.dynamics()
	if err != nil {
		return nil, err
	}
	nj := len(dc.comJac)
	if nj == 0 {
		return &mat.Dense{}, nil
	}
	jac := mat.NewDense(3, nj, nil)
	for c, v := range dc.comJac {
		jac.Set(0, c, v.X)
		jac.Set(1, c, v.Y)
		jac.Set(2, c, v.Z)
	}
	return jac, nil
}

// COMAccelerationBias returns J̇com·q̇
func (m *Model) COMAccelerationBias() (r3.Vec, error) {
	dc, err := m.dynamics()
	if err != nil {
		return r3.Vec{}, err
	}
	return dc.comBias, nil
}

// CenterOfMass returns the centre of mass position, velocity and acceleration in world coordinates
func (m *Model) CenterOfMass() (types.RigidBodyState, error) {
	dc, err := m.dynamics()
	if err != nil {
		return types.RigidBodyState{}, err
	}
	s := types.NewRigidBodyState()
	s.Time = m.updatedAt
	s.Frame = m.worldFrame
	s.Pose.Position = dc.com
	acc := dc.comBias
	for c, v := range dc.comJac {
		s.Twist.Linear = r3.Add(s.Twist.Linear, r3.Scale(m.qd[c], v))
		acc = r3.Add(acc, r3.Scale(m.qdd[c], v))
	}
	s.Acceleration.Linear = acc
	return s, nil
}
