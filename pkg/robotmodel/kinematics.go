package robotmodel

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/wholebody/wbc/pkg/spatial"
	"github.com/wholebody/wbc/pkg/types"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// errSingularBase indicates a base orientation where the Euler angle rates are undefined
var errSingularBase = errors.New("floating base orientation is at the rot_y = ±π/2 singularity")

// Update sets the joint state and recomputes kinematics. Every non-virtual joint must be
// present in joints. floatingBase is required for floating-base models; its twist and
// acceleration are expressed in world coordinates.
func (m *Model) Update(joints types.Joints, floatingBase *types.RigidBodyState) error {
	if !m.configured {
		return ErrNotConfigured
	}

	q := make([]float64, len(m.q))
	qd := make([]float64, len(m.q))
	qdd := make([]float64, len(m.q))
	effort := make([]float64, len(m.q))
	seen := make([]bool, len(m.q))

	for i, name := range joints.Names {
		idx, ok := m.jointIndex[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownJoint, name)
		}
		s := joints.Elements[i]
		q[idx], qd[idx], qdd[idx] = finite(s.Position), finite(s.Speed), finite(s.Acceleration)
		effort[idx] = finite(s.Effort)
		seen[idx] = true
	}

	first := 0
	if m.floatingBase {
		if floatingBase == nil {
			return fmt.Errorf("%w: floating base state", ErrMissingState)
		}
		if err := setFloatingBase(*floatingBase, q[:6], qd[:6], qdd[:6]); err != nil {
			return err
		}
		first = 6
	}
	for i := first; i < len(seen); i++ {
		if !seen[i] {
			return fmt.Errorf("%w: joint %s", ErrMissingState, m.jointNames[i])
		}
	}

	m.q, m.qd, m.qdd, m.effort = q, qd, qdd, effort
	m.updatedAt = joints.Time
	if m.updatedAt.IsZero() {
		m.updatedAt = time.Now()
	}
	m.forwardKinematics()
	m.dyn = nil
	m.updated = true
	return nil
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// setFloatingBase converts a base sample to the virtual joint coordinates.
// Orientation R = Rx(a)·Ry(b)·Rz(c); the rates follow from ω = E(a, b)·[ȧ ḃ ċ].
func setFloatingBase(s types.RigidBodyState, q, qd, qdd []float64) error {
	rot := spatial.FromQuat(s.Pose.Orientation)
	a, b, c := spatial.EulerXYZ(rot)

	q[0], q[1], q[2] = s.Pose.Position.X, s.Pose.Position.Y, s.Pose.Position.Z
	q[3], q[4], q[5] = a, b, c
	qd[0], qd[1], qd[2] = s.Twist.Linear.X, s.Twist.Linear.Y, s.Twist.Linear.Z
	qdd[0], qdd[1], qdd[2] = s.Acceleration.Linear.X, s.Acceleration.Linear.Y, s.Acceleration.Linear.Z

	rx := spatial.AxisAngle(r3.Vec{X: 1}, a)
	e1 := r3.Vec{X: 1}
	e2 := rx.MulVec(r3.Vec{Y: 1})
	e3 := rx.Mul(spatial.AxisAngle(r3.Vec{Y: 1}, b)).MulVec(r3.Vec{Z: 1})
	e := mat.NewDense(3, 3, []float64{
		e1.X, e2.X, e3.X,
		e1.Y, e2.Y, e3.Y,
		e1.Z, e2.Z, e3.Z,
	})
	if math.Abs(math.Cos(b)) < 1e-9 {
		return errSingularBase
	}

	var rates mat.VecDense
	w := s.Twist.Angular
	if err := rates.SolveVec(e, mat.NewVecDense(3, []float64{w.X, w.Y, w.Z})); err != nil {
		return fmt.Errorf("%w: %v", errSingularBase, err)
	}
	qd[3], qd[4], qd[5] = rates.AtVec(0), rates.AtVec(1), rates.AtVec(2)

	w1 := r3.Scale(qd[3], e1)
	w2 := r3.Add(w1, r3.Scale(qd[4], e2))
	bias := r3.Add(r3.Cross(w1, r3.Scale(qd[4], e2)), r3.Cross(w2, r3.Scale(qd[5], e3)))
	dw := r3.Sub(s.Acceleration.Angular, bias)

	var acc mat.VecDense
	if err := acc.SolveVec(e, mat.NewVecDense(3, []float64{dw.X, dw.Y, dw.Z})); err != nil {
		return fmt.Errorf("%w: %v", errSingularBase, err)
	}
	qdd[3], qdd[4], qdd[5] = acc.AtVec(0), acc.AtVec(1), acc.AtVec(2)
	return nil
}

// forwardKinematics propagates poses, velocities, bias accelerations and Jacobian
// columns from the root to the leaves. Bodies are stored parents first.
func (m *Model) forwardKinematics() {
	for i := range m.bodies {
		b := &m.bodies[i]
		if b.parent < 0 {
			b.rot = spatial.Identity()
			b.pos, b.omega, b.vel, b.alpha, b.acc = r3.Vec{}, r3.Vec{}, r3.Vec{}, r3.Vec{}, r3.Vec{}
			for c := range b.jv {
				b.jv[c], b.jw[c] = r3.Vec{}, r3.Vec{}
			}
			continue
		}

		p := &m.bodies[b.parent]
		jointRot := p.rot.Mul(b.rot0)
		axis := jointRot.MulVec(b.axis)
		b.rot = jointRot
		b.pos = r3.Add(p.pos, p.rot.MulVec(b.origin))

		var q, qd float64
		if b.qi >= 0 {
			q, qd = m.q[b.qi], m.qd[b.qi]
		}
		switch b.kind {
		case kindRevolute:
			b.rot = jointRot.Mul(spatial.AxisAngle(b.axis, q))
		case kindPrismatic:
			b.pos = r3.Add(b.pos, r3.Scale(q, axis))
		}

		d := r3.Sub(b.pos, p.pos)
		wxd := r3.Cross(p.omega, d)
		b.omega = p.omega
		b.vel = r3.Add(p.vel, wxd)
		b.alpha = p.alpha
		b.acc = r3.Add(r3.Add(p.acc, r3.Cross(p.alpha, d)), r3.Cross(p.omega, wxd))

		for c := range b.jv {
			b.jw[c] = p.jw[c]
			b.jv[c] = r3.Add(p.jv[c], r3.Cross(p.jw[c], d))
		}

		switch b.kind {
		case kindRevolute:
			w := r3.Scale(qd, axis)
			b.omega = r3.Add(b.omega, w)
			b.alpha = r3.Add(b.alpha, r3.Cross(p.omega, w))
			b.jw[b.qi] = r3.Add(b.jw[b.qi], axis)
		case kindPrismatic:
			v := r3.Scale(qd, axis)
			b.vel = r3.Add(b.vel, v)
			b.acc = r3.Add(b.acc, r3.Scale(2, r3.Cross(p.omega, v)))
			b.jv[b.qi] = r3.Add(b.jv[b.qi], axis)
		}
	}
}

func (m *Model) frame(name string) (*body, error) {
	if !m.configured {
		return nil, ErrNotConfigured
	}
	if !m.updated {
		return nil, ErrNotUpdated
	}
	i, ok := m.frameIndex[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFrame, name)
	}
	return &m.bodies[i], nil
}

func (m *Model) pair(root, tip string) (*body, *body, error) {
	r, err := m.frame(root)
	if err != nil {
		return nil, nil, err
	}
	t, err := m.frame(tip)
	if err != nil {
		return nil, nil, err
	}
	return r, t, nil
}

// relativeJacobian returns the columns of the relative twist of t w.r.t. r in world axes
func relativeJacobian(r, t *body) (lin, ang []r3.Vec) {
	d := r3.Sub(t.pos, r.pos)
	lin = make([]r3.Vec, len(t.jv))
	ang = make([]r3.Vec, len(t.jv))
	for c := range t.jv {
		lin[c] = r3.Add(r3.Sub(t.jv[c], r.jv[c]), r3.Cross(d, r.jw[c]))
		ang[c] = r3.Sub(t.jw[c], r.jw[c])
	}
	return lin, ang
}

// relativeBias returns J̇·q̇ of the relative motion of t w.r.t. r, differentiated in
// the rotating frame of r and expressed in world axes
func relativeBias(r, t *body) (lin, ang r3.Vec) {
	d := r3.Sub(t.pos, r.pos)
	dv := r3.Sub(t.vel, r.vel)
	u := r3.Sub(dv, r3.Cross(r.omega, d))

	lin = r3.Sub(t.acc, r.acc)
	lin = r3.Sub(lin, r3.Cross(r.alpha, d))
	lin = r3.Sub(lin, r3.Cross(r.omega, dv))
	lin = r3.Sub(lin, r3.Cross(r.omega, u))

	ang = r3.Sub(t.alpha, r.alpha)
	ang = r3.Sub(ang, r3.Cross(r.omega, r3.Sub(t.omega, r.omega)))
	return lin, ang
}

func jacobianMatrix(lin, ang []r3.Vec, rot spatial.Rotation) *mat.Dense {
	n := len(lin)
	if n == 0 {
		return &mat.Dense{}
	}
	jac := mat.NewDense(6, n, nil)
	for c := 0; c < n; c++ {
		l := rot.MulVec(lin[c])
		a := rot.MulVec(ang[c])
		jac.Set(0, c, l.X)
		jac.Set(1, c, l.Y)
		jac.Set(2, c, l.Z)
		jac.Set(3, c, a.X)
		jac.Set(4, c, a.Y)
		jac.Set(5, c, a.Z)
	}
	return jac
}

func biasVector(lin, ang r3.Vec, rot spatial.Rotation) []float64 {
	l := rot.MulVec(lin)
	a := rot.MulVec(ang)
	return []float64{l.X, l.Y, l.Z, a.X, a.Y, a.Z}
}

// SpaceJacobian returns the Jacobian of the motion of tip relative to root, in root coordinates
func (m *Model) SpaceJacobian(root, tip string) (*mat.Dense, error) {
	r, t, err := m.pair(root, tip)
	if err != nil {
		return nil, err
	}
	lin, ang := relativeJacobian(r, t)
	return jacobianMatrix(lin, ang, r.rot.T()), nil
}

// BodyJacobian returns the Jacobian of the motion of tip relative to root, in tip coordinates
func (m *Model) BodyJacobian(root, tip string) (*mat.Dense, error) {
	r, t, err := m.pair(root, tip)
	if err != nil {
		return nil, err
	}
	lin, ang := relativeJacobian(r, t)
	return jacobianMatrix(lin, ang, t.rot.T()), nil
}

// SpatialAccelerationBias returns J̇·q̇ matching SpaceJacobian
func (m *Model) SpatialAccelerationBias(root, tip string) ([]float64, error) {
	r, t, err := m.pair(root, tip)
	if err != nil {
		return nil, err
	}
	lin, ang := relativeBias(r, t)
	return biasVector(lin, ang, r.rot.T()), nil
}

// BodyAccelerationBias returns SpatialAccelerationBias rotated into tip coordinates
func (m *Model) BodyAccelerationBias(root, tip string) ([]float64, error) {
	r, t, err := m.pair(root, tip)
	if err != nil {
		return nil, err
	}
	lin, ang := relativeBias(r, t)
	return biasVector(lin, ang, t.rot.T()), nil
}

// RigidBodyState returns pose, twist and acceleration of tip relative to root, in root coordinates
func (m *Model) RigidBodyState(root, tip string) (types.RigidBodyState, error) {
	r, t, err := m.pair(root, tip)
	if err != nil {
		return types.RigidBodyState{}, err
	}
	rt := r.rot.T()

	s := types.NewRigidBodyState()
	s.Time = m.updatedAt
	s.Frame = root
	s.Pose.Position = rt.MulVec(r3.Sub(t.pos, r.pos))
	s.Pose.Orientation = rt.Mul(t.rot).Quat()

	lin, ang := relativeJacobian(r, t)
	blin, bang := relativeBias(r, t)
	var v, w, a, al r3.Vec
	for c := range lin {
		v = r3.Add(v, r3.Scale(m.qd[c], lin[c]))
		w = r3.Add(w, r3.Scale(m.qd[c], ang[c]))
		a = r3.Add(a, r3.Scale(m.qdd[c], lin[c]))
		al = r3.Add(al, r3.Scale(m.qdd[c], ang[c]))
	}
	s.Twist.Linear = rt.MulVec(v)
	s.Twist.Angular = rt.MulVec(w)
	s.Acceleration.Linear = rt.MulVec(r3.Add(a, blin))
	s.Acceleration.Angular = rt.MulVec(r3.Add(al, bang))
	return s, nil
}

// JointState returns the last sample of the named joints
func (m *Model) JointState(names []string) (types.Joints, error) {
	if !m.configured {
		return types.Joints{}, ErrNotConfigured
	}
	out := types.Joints{Time: m.updatedAt}
	for _, name := range names {
		i, ok := m.jointIndex[name]
		if !ok {
			return types.Joints{}, fmt.Errorf("%w: %s", ErrUnknownJoint, name)
		}
		out.Append(name, types.JointState{
			Position:     m.q[i],
			Speed:        m.qd[i],
			Acceleration: m.qdd[i],
			Effort:       m.effort[i],
		})
	}
	return out, nil
}

// Positions returns the joint positions in index order
func (m *Model) Positions() []float64 {
	return append([]float64(nil), m.q...)
}

// Velocities returns the joint velocities in index order
func (m *Model) Velocities() []float64 {
	return append([]float64(nil), m.qd...)
}
