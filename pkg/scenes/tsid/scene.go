// Package tsid implements the acceleration-level reduced task-space inverse dynamics scene
package tsid

import (
	"github.com/wholebody/wbc/pkg/core"
	"github.com/wholebody/wbc/pkg/logger"
	"github.com/wholebody/wbc/pkg/types"
)

// Options tunes the formulation
type Options struct {
	// IntegrationDt is the step used to integrate the solved accelerations into speed and position commands
	IntegrationDt float64
	// FrictionConstraints adds friction pyramid and centre of pressure inequalities for active contacts
	FrictionConstraints bool
	// ForceRegularization weights the contact wrenches in the lowest priority level
	ForceRegularization float64
	// TorqueRegularization, if positive, also penalizes the actuated joint torques
	TorqueRegularization float64
}

// DefaultOptions returns the options used for zero fields
func DefaultOptions() Options {
	return Options{
		IntegrationDt:       1e-3,
		ForceRegularization: 1e-4,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.IntegrationDt <= 0 {
		o.IntegrationDt = d.IntegrationDt
	}
	if o.ForceRegularization <= 0 {
		o.ForceRegularization = d.ForceRegularization
	}
	return o
}

// OptionsFromSettings converts file settings. Friction constraints are off unless enabled.
func OptionsFromSettings(s types.SceneSettings) Options {
	opts := Options{
		IntegrationDt:        s.IntegrationDt,
		ForceRegularization:  s.ForceRegularization,
		TorqueRegularization: s.TorqueRegularization,
	}
	if s.FrictionConstraints != nil {
		opts.FrictionConstraints = *s.FrictionConstraints
	}
	return opts.withDefaults()
}

// AccelerationSceneReducedTSID solves for joint accelerations and contact wrenches subject to
// the floating-base part of the equations of motion and rigid contacts. Joint torques follow
// from the actuated part. The number of contact points is fixed when the scene is configured;
// contacts may be switched active or inactive between cycles.
type AccelerationSceneReducedTSID struct {
	*core.Scene
	formulation *formulation
}

var _ core.WbcScene = (*AccelerationSceneReducedTSID)(nil)

// New creates a reduced TSID scene bound to model and solver
func New(model core.RobotModel, solver core.QPSolver, opts Options, log logger.Logger) *AccelerationSceneReducedTSID {
	f := &formulation{opts: opts.withDefaults()}
	return &AccelerationSceneReducedTSID{
		Scene:       core.NewScene(model, solver, f, log),
		formulation: f,
	}
}

// Options returns the effective options
func (s *AccelerationSceneReducedTSID) Options() Options {
	return s.formulation.opts
}

// ContactWrenches returns the contact wrenches of the last successful solve in contact coordinates
func (s *AccelerationSceneReducedTSID) ContactWrenches() types.Wrenches {
	if s.State() != core.StateSolved {
		return types.Wrenches{}
	}
	return s.formulation.wrenches.Clone()
}
