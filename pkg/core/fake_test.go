package core_test

import (
	"errors"
	"fmt"

	"github.com/wholebody/wbc/pkg/core"
	"github.com/wholebody/wbc/pkg/types"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// fakeModel is a three joint robot whose first joint is passive
type fakeModel struct {
	joints   []string
	actuated []string
	frames   map[string]bool
	jacobian *mat.Dense
	// jacobianErr, if set, is returned by the Jacobian queries
	jacobianErr error
}

func newFakeModel() *fakeModel {
	jac := mat.NewDense(6, 3, []float64{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
		1, 1, 0,
		0, 1, 1,
		1, 0, 1,
	})
	return &fakeModel{
		joints:   []string{"passive", "j1", "j2"},
		actuated: []string{"j1", "j2"},
		frames:   map[string]bool{"world": true, "base": true, "tool": true},
		jacobian: jac,
	}
}

func (m *fakeModel) Configure(types.RobotModelConfig) error           { return nil }
func (m *fakeModel) Update(types.Joints, *types.RigidBodyState) error { return nil }
func (m *fakeModel) NoOfJoints() int                                  { return len(m.joints) }
func (m *fakeModel) NoOfActuatedJoints() int                          { return len(m.actuated) }
func (m *fakeModel) JointNames() []string                             { return m.joints }
func (m *fakeModel) ActuatedJointNames() []string                     { return m.actuated }
func (m *fakeModel) IndependentJointNames() []string                  { return m.joints }
func (m *fakeModel) WorldFrame() string                               { return "world" }
func (m *fakeModel) HasFrame(name string) bool                        { return m.frames[name] }
func (m *fakeModel) SelectionMatrix() *mat.Dense {
	return mat.NewDense(2, 3, []float64{0, 1, 0, 0, 0, 1})
}
func (m *fakeModel) ActiveContacts() types.ActiveContacts         { return types.ActiveContacts{} }
func (m *fakeModel) SetActiveContacts(types.ActiveContacts) error { return nil }
func (m *fakeModel) JointState([]string) (types.Joints, error)    { return types.Joints{}, nil }
func (m *fakeModel) COMAccelerationBias() (r3.Vec, error)         { return r3.Vec{}, nil }
func (m *fakeModel) CenterOfMass() (types.RigidBodyState, error) {
	return types.NewRigidBodyState(), nil
}
func (m *fakeModel) BiasForces() ([]float64, error)               { return make([]float64, 3), nil }
func (m *fakeModel) JointSpaceInertiaMatrix() (*mat.Dense, error) { return identity(3), nil }
func (m *fakeModel) SpatialAccelerationBias(string, string) ([]float64, error) {
	return make([]float64, 6), nil
}
func (m *fakeModel) BodyAccelerationBias(string, string) ([]float64, error) {
	return make([]float64, 6), nil
}

func (m *fakeModel) JointIndex(name string) (int, error) {
	for i, n := range m.joints {
		if n == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("unknown joint %s", name)
}

func (m *fakeModel) RigidBodyState(root, tip string) (types.RigidBodyState, error) {
	return types.NewRigidBodyState(), nil
}

func (m *fakeModel) SpaceJacobian(root, tip string) (*mat.Dense, error) {
	if m.jacobianErr != nil {
		return nil, m.jacobianErr
	}
	return mat.DenseCopyOf(m.jacobian), nil
}

func (m *fakeModel) BodyJacobian(root, tip string) (*mat.Dense, error) {
	if m.jacobianErr != nil {
		return nil, m.jacobianErr
	}
	return mat.DenseCopyOf(m.jacobian), nil
}

func (m *fakeModel) COMJacobian() (*mat.Dense, error) {
	return mat.DenseCopyOf(m.jacobian.Slice(0, 3, 0, 3)), nil
}

func identity(n int) *mat.Dense {
	d := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		d.Set(i, i, 1)
	}
	return d
}

// fakeFormulation solves for joint velocities without hard constraints
type fakeFormulation struct {
	regularize bool
}

func (f *fakeFormulation) Name() string                                    { return "fake" }
func (f *fakeFormulation) NumVariables(m core.RobotModel) int              { return m.NoOfJoints() }
func (f *fakeFormulation) ReferenceLevel() core.ReferenceLevel             { return core.ReferenceVelocity }
func (f *fakeFormulation) HardConstraints(core.RobotModel, *core.QP) error { return nil }

func (f *fakeFormulation) Regularization(m core.RobotModel, jw, _ types.JointWeights) (*core.QP, error) {
	if !f.regularize {
		return nil, nil
	}
	qp := core.NewQP(0, m.NoOfJoints(), m.NoOfJoints())
	for i, w := range jw.Elements {
		qp.A.Set(i, i, w)
		qp.Weights[i] = w
	}
	return &qp, nil
}

func (f *fakeFormulation) Decode(m core.RobotModel, raw []float64) (types.Joints, error) {
	out := types.Joints{}
	for _, name := range m.ActuatedJointNames() {
		i, _ := m.JointIndex(name)
		js := types.UnsetJointState()
		js.Speed = raw[i]
		out.Append(name, js)
	}
	return out, nil
}

// fakeSolver returns a fixed solution or error and records the last problem
type fakeSolver struct {
	solution []float64
	err      error
	last     *core.HierarchicalQP
}

var errFakeSolver = errors.New("fake solver failure")

func (s *fakeSolver) Solve(hqp *core.HierarchicalQP) ([]float64, error) {
	s.last = hqp
	if s.err != nil {
		return nil, s.err
	}
	return append([]float64(nil), s.solution...), nil
}
