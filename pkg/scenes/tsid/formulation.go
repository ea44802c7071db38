package tsid

import (
	"fmt"
	"math"
	"time"

	"github.com/wholebody/wbc/pkg/core"
	"github.com/wholebody/wbc/pkg/scenes/internal/contacts"
	"github.com/wholebody/wbc/pkg/types"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// formulation solves for x = [q̈; f_1 … f_nc] where f_i is the wrench at contact i in
// contact coordinates. Only the unactuated rows of the equations of motion are enforced;
// the actuated rows define the torques.
type formulation struct {
	opts     Options
	wrenches types.Wrenches
}

func (f *formulation) Name() string {
	return string(types.SceneTypeAccelerationReducedTSID)
}

func (f *formulation) NumVariables(model core.RobotModel) int {
	return model.NoOfJoints() + contacts.WrenchSize*model.ActiveContacts().Len()
}

func (f *formulation) ReferenceLevel() core.ReferenceLevel {
	return core.ReferenceAcceleration
}

type dynamicsTerms struct {
	m        *mat.Dense
	h        []float64
	contacts *contacts.Set
}

func collect(model core.RobotModel) (*dynamicsTerms, error) {
	m, err := model.JointSpaceInertiaMatrix()
	if err != nil {
		return nil, fmt.Errorf("inertia matrix: %w", err)
	}
	h, err := model.BiasForces()
	if err != nil {
		return nil, fmt.Errorf("bias forces: %w", err)
	}
	cs, err := contacts.Collect(model)
	if err != nil {
		return nil, err
	}
	return &dynamicsTerms{m: m, h: h, contacts: cs}, nil
}

// eomRow writes row j of M q̈ − J_cᵀ f into dst
func (d *dynamicsTerms) eomRow(dst []float64, j, nj int) {
	for k := 0; k < nj; k++ {
		dst[k] = d.m.At(j, k)
	}
	for c, jac := range d.contacts.Jacobians {
		off := nj + contacts.WrenchSize*c
		for l := 0; l < contacts.WrenchSize; l++ {
			dst[off+l] = -jac.At(l, j)
		}
	}
}

func (f *formulation) HardConstraints(model core.RobotModel, qp *core.QP) error {
	d, err := collect(model)
	if err != nil {
		return err
	}
	nj := model.NoOfJoints()
	n := f.NumVariables(model)

	// Unactuated rows of the equations of motion: M_u q̈ − J_c,uᵀ f = −h_u
	if unactuated := contacts.Unactuated(model); len(unactuated) > 0 {
		a := mat.NewDense(len(unactuated), n, nil)
		b := make([]float64, len(unactuated))
		row := make([]float64, n)
		for r, j := range unactuated {
			d.eomRow(row, j, nj)
			a.SetRow(r, row)
			b[r] = -d.h[j]
		}
		if err := qp.AddEquality(a, b); err != nil {
			return err
		}
	}

	for c, name := range d.contacts.Names {
		off := nj + contacts.WrenchSize*c
		a := mat.NewDense(contacts.WrenchSize, n, nil)
		b := make([]float64, contacts.WrenchSize)
		if d.contacts.Contacts[c].Active {
			// Contact points do not accelerate: J_c q̈ = −J̇_c q̇
			bias, err := model.BodyAccelerationBias(model.WorldFrame(), name)
			if err != nil {
				return fmt.Errorf("contact %s: %w", name, err)
			}
			jac := d.contacts.Jacobians[c]
			for l := 0; l < contacts.WrenchSize; l++ {
				for k := 0; k < nj; k++ {
					a.Set(l, k, jac.At(l, k))
				}
				b[l] = -bias[l]
			}
		} else {
			for l := 0; l < contacts.WrenchSize; l++ {
				a.Set(l, off+l, 1)
			}
		}
		if err := qp.AddEquality(a, b); err != nil {
			return err
		}

		if f.opts.FrictionConstraints && d.contacts.Contacts[c].Active {
			ain, lower, upper := frictionRows(d.contacts.Contacts[c], off, n)
			if err := qp.AddInequality(ain, lower, upper); err != nil {
				return err
			}
		}
	}
	return nil
}

// frictionRows linearizes the friction cone as a pyramid and, if the support area is known,
// keeps the centre of pressure inside it. The wrench is [fx fy fz tx ty tz] in contact coordinates.
func frictionRows(c types.ActiveContact, off, n int) (*mat.Dense, []float64, []float64) {
	const (
		fx = iota
		fy
		fz
		tx
		ty
	)
	inf := math.Inf(1)

	type ineq struct {
		coef         map[int]float64
		lower, upper float64
	}
	rows := []ineq{
		{map[int]float64{fz: 1}, 0, inf},
		{map[int]float64{fx: 1, fz: -c.Mu}, -inf, 0},
		{map[int]float64{fx: 1, fz: c.Mu}, 0, inf},
		{map[int]float64{fy: 1, fz: -c.Mu}, -inf, 0},
		{map[int]float64{fy: 1, fz: c.Mu}, 0, inf},
	}
	if c.Wx > 0 && c.Wy > 0 {
		rows = append(rows,
			ineq{map[int]float64{tx: 1, fz: -c.Wy}, -inf, 0},
			ineq{map[int]float64{tx: 1, fz: c.Wy}, 0, inf},
			ineq{map[int]float64{ty: 1, fz: -c.Wx}, -inf, 0},
			ineq{map[int]float64{ty: 1, fz: c.Wx}, 0, inf},
		)
	}

	a := mat.NewDense(len(rows), n, nil)
	lower := make([]float64, len(rows))
	upper := make([]float64, len(rows))
	for i, r := range rows {
		for k, v := range r.coef {
			a.Set(i, off+k, v)
		}
		lower[i], upper[i] = r.lower, r.upper
	}
	return a, lower, upper
}

func (f *formulation) Regularization(model core.RobotModel, jointWeights, actuatedJointWeights types.JointWeights) (*core.QP, error) {
	nj := model.NoOfJoints()
	nc := model.ActiveContacts().Len()
	n := f.NumVariables(model)
	actuated := model.ActuatedJointNames()

	rows := nj + contacts.WrenchSize*nc
	if f.opts.TorqueRegularization > 0 {
		rows += len(actuated)
	}
	qp := core.NewQP(0, rows, n)

	for i, name := range model.JointNames() {
		w := contacts.WeightOf(jointWeights, name, 0)
		qp.A.Set(i, i, w)
		qp.Weights[i] = w
	}
	for k := 0; k < contacts.WrenchSize*nc; k++ {
		qp.A.Set(nj+k, nj+k, f.opts.ForceRegularization)
		qp.Weights[nj+k] = f.opts.ForceRegularization
	}

	if f.opts.TorqueRegularization > 0 {
		d, err := collect(model)
		if err != nil {
			return nil, err
		}
		row := make([]float64, n)
		base := nj + contacts.WrenchSize*nc
		for i, name := range actuated {
			j, err := model.JointIndex(name)
			if err != nil {
				return nil, err
			}
			w := f.opts.TorqueRegularization * contacts.WeightOf(actuatedJointWeights, name, 1)
			d.eomRow(row, j, nj)
			for k := range row {
				row[k] *= w
			}
			qp.A.SetRow(base+i, row)
			qp.Y[base+i] = -w * d.h[j]
			qp.Weights[base+i] = w
		}
	}
	return &qp, nil
}

// Decode computes τ = M_a q̈ + h_a − J_c,aᵀ f for the actuated joints and integrates the
// accelerations over one integration step (semi-implicit Euler)
func (f *formulation) Decode(model core.RobotModel, raw []float64) (types.Joints, error) {
	d, err := collect(model)
	if err != nil {
		return types.Joints{}, err
	}
	nj := model.NoOfJoints()
	actuated := model.ActuatedJointNames()
	current, err := model.JointState(actuated)
	if err != nil {
		return types.Joints{}, err
	}

	dt := f.opts.IntegrationDt
	row := make([]float64, len(raw))
	out := types.Joints{Time: time.Now()}
	for i, name := range actuated {
		j, err := model.JointIndex(name)
		if err != nil {
			return types.Joints{}, err
		}
		d.eomRow(row, j, nj)
		tau := d.h[j]
		for k, v := range row {
			tau += v * raw[k]
		}

		cur := current.Elements[i]
		qdd := raw[j]
		speed := cur.Speed + qdd*dt
		out.Append(name, types.JointState{
			Position:     cur.Position + speed*dt,
			Speed:        speed,
			Acceleration: qdd,
			Effort:       tau,
		})
	}

	wrenches := types.Wrenches{}
	for c, name := range d.contacts.Names {
		off := nj + contacts.WrenchSize*c
		wrenches.Append(name, types.Wrench{
			Force:  r3.Vec{X: raw[off], Y: raw[off+1], Z: raw[off+2]},
			Torque: r3.Vec{X: raw[off+3], Y: raw[off+4], Z: raw[off+5]},
		})
	}
	f.wrenches = wrenches
	return out, nil
}
