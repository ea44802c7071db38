// Package velocity implements the velocity-level scene (differential inverse kinematics)
package velocity

import (
	"fmt"
	"math"
	"time"

	"github.com/wholebody/wbc/pkg/core"
	"github.com/wholebody/wbc/pkg/logger"
	"github.com/wholebody/wbc/pkg/scenes/internal/contacts"
	"github.com/wholebody/wbc/pkg/types"
	"gonum.org/v1/gonum/mat"
)

// Options tunes the velocity scene
type Options struct {
	// IntegrationDt is the step used to integrate the solved speeds into position commands
	IntegrationDt float64
}

// DefaultOptions returns the options used for zero fields
func DefaultOptions() Options {
	return Options{IntegrationDt: 1e-3}
}

// OptionsFromSettings converts file settings
func OptionsFromSettings(s types.SceneSettings) Options {
	return Options{IntegrationDt: s.IntegrationDt}.withDefaults()
}

func (o Options) withDefaults() Options {
	if o.IntegrationDt <= 0 {
		o.IntegrationDt = DefaultOptions().IntegrationDt
	}
	return o
}

// Scene solves for joint speeds. Active contact points are held still.
type Scene struct {
	*core.Scene
	formulation *formulation
}

var _ core.WbcScene = (*Scene)(nil)

// New creates a velocity scene bound to model and solver
func New(model core.RobotModel, solver core.QPSolver, opts Options, log logger.Logger) *Scene {
	f := &formulation{opts: opts.withDefaults()}
	return &Scene{
		Scene:       core.NewScene(model, solver, f, log),
		formulation: f,
	}
}

// Options returns the effective options
func (s *Scene) Options() Options {
	return s.formulation.opts
}

type formulation struct {
	opts Options
}

func (f *formulation) Name() string {
	return string(types.SceneTypeVelocity)
}

func (f *formulation) NumVariables(model core.RobotModel) int {
	return model.NoOfJoints()
}

func (f *formulation) ReferenceLevel() core.ReferenceLevel {
	return core.ReferenceVelocity
}

// HardConstraints adds J_c q̇ = 0 for every active contact
func (f *formulation) HardConstraints(model core.RobotModel, qp *core.QP) error {
	cs, err := contacts.Collect(model)
	if err != nil {
		return err
	}
	nj := model.NoOfJoints()
	for c, jac := range cs.Jacobians {
		if !cs.Contacts[c].Active {
			continue
		}
		if _, cols := jac.Dims(); cols != nj {
			return fmt.Errorf("%w: contact %s Jacobian has %d columns", core.ErrDimensionMismatch, cs.Names[c], cols)
		}
		if err := qp.AddEquality(mat.DenseCopyOf(jac), make([]float64, contacts.WrenchSize)); err != nil {
			return fmt.Errorf("contact %s: %w", cs.Names[c], err)
		}
	}
	return nil
}

func (f *formulation) Regularization(model core.RobotModel, jointWeights, _ types.JointWeights) (*core.QP, error) {
	n := model.NoOfJoints()
	qp := core.NewQP(0, n, n)
	for i, name := range model.JointNames() {
		w := contacts.WeightOf(jointWeights, name, 0)
		qp.A.Set(i, i, w)
		qp.Weights[i] = w
	}
	return &qp, nil
}

// Decode returns speed commands and positions integrated over one step
func (f *formulation) Decode(model core.RobotModel, raw []float64) (types.Joints, error) {
	actuated := model.ActuatedJointNames()
	current, err := model.JointState(actuated)
	if err != nil {
		return types.Joints{}, err
	}
	out := types.Joints{Time: time.Now()}
	for i, name := range actuated {
		j, err := model.JointIndex(name)
		if err != nil {
			return types.Joints{}, err
		}
		out.Append(name, types.JointState{
			Position:     current.Elements[i].Position + raw[j]*f.opts.IntegrationDt,
			Speed:        raw[j],
			Acceleration: math.NaN(),
			Effort:       math.NaN(),
		})
	}
	return out, nil
}
