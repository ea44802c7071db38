package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wholebody/wbc/pkg/logger"
	"github.com/wholebody/wbc/pkg/types"
	"github.com/wholebody/wbc/pkg/validation"
	"gonum.org/v1/gonum/mat"
)

// SceneState is the position of a scene in its update/solve cycle
type SceneState int

const (
	StateUnconfigured SceneState = iota
	StateConfigured
	StateUpdated
	StateSolved
)

func (s SceneState) String() string {
	switch s {
	case StateConfigured:
		return "configured"
	case StateUpdated:
		return "updated"
	case StateSolved:
		return "solved"
	default:
		return "unconfigured"
	}
}

var _ WbcScene = (*Scene)(nil)

// Scene owns a prioritized set of constraints and assembles them into a HierarchicalQP.
// The robot model and solver are borrowed and must outlive the scene. A scene is not
// safe for concurrent use; one control loop drives it.
type Scene struct {
	model       RobotModel
	solver      QPSolver
	formulation Formulation
	logger      logger.Logger

	constraints  [][]Constraint
	byName       map[string]Constraint
	nVarsPerPrio []int
	nVariables   int

	hqp                  HierarchicalQP
	jointWeights         types.JointWeights
	actuatedJointWeights types.JointWeights

	solverOutput    types.Joints
	solverOutputRaw []float64
	tasksStatus     types.TasksStatus

	state SceneState
}

// NewScene binds a scene to its collaborators
func NewScene(model RobotModel, solver QPSolver, formulation Formulation, log logger.Logger) *Scene {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Scene{
		model:       model,
		solver:      solver,
		formulation: formulation,
		logger:      log.WithComponent(formulation.Name()),
		byName:      make(map[string]Constraint),
	}
}

// Configure replaces all constraints. On error the scene is left cleared.
func (s *Scene) Configure(configs []types.ConstraintConfig) error {
	s.ClearConstraints()

	if len(configs) == 0 {
		return ErrEmptyConfig
	}

	result := validation.NewConstraintValidator(s.model).ValidateMultiple(configs)
	for _, w := range result.Filter(validation.ValidationLevelWarning) {
		s.logger.Warn(w.Message, logger.WithField("constraint", w.Constraint), logger.WithField("field", w.Field))
	}
	if !result.Valid {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, result.Summary())
	}

	sorted, err := SortConstraintConfig(configs)
	if err != nil {
		return err
	}

	constraints := make([][]Constraint, len(sorted))
	byName := make(map[string]Constraint, len(configs))
	var status types.TasksStatus
	for prio, group := range sorted {
		for _, cfg := range group {
			c, err := NewConstraint(cfg)
			if err != nil {
				return err
			}
			constraints[prio] = append(constraints[prio], c)
			byName[cfg.Name] = c
			status.Append(cfg.Name, c.Status())
		}
	}

	nVarsPerPrio := countVariables(sorted)
	nVariables := s.formulation.NumVariables(s.model)
	nj := s.model.NoOfJoints()

	levels := make([]QP, len(nVarsPerPrio))
	for prio, rows := range nVarsPerPrio {
		levels[prio] = NewQP(prio, rows, nVariables)
	}

	s.constraints = constraints
	s.byName = byName
	s.nVarsPerPrio = nVarsPerPrio
	s.nVariables = nVariables
	s.hqp = HierarchicalQP{Levels: levels, NumVariables: nVariables}
	s.tasksStatus = status
	s.jointWeights = s.defaultJointWeights()
	s.actuatedJointWeights = uniformWeights(s.model.ActuatedJointNames(), 1)
	s.state = StateConfigured

	s.logger.Info("Scene configured",
		logger.WithField("constraints", len(configs)),
		logger.WithField("priorities", len(nVarsPerPrio)),
		logger.WithField("joints", nj),
		logger.WithField("variables", nVariables))
	return nil
}

// ClearConstraints drops all constraints and derived state
func (s *Scene) ClearConstraints() {
	s.constraints = nil
	s.byName = make(map[string]Constraint)
	s.nVarsPerPrio = nil
	s.nVariables = 0
	s.hqp.Clear()
	s.jointWeights = types.JointWeights{}
	s.actuatedJointWeights = types.JointWeights{}
	s.tasksStatus = types.TasksStatus{}
	s.clearOutputs()
	s.state = StateUnconfigured
}

func (s *Scene) clearOutputs() {
	s.solverOutput = types.Joints{}
	s.solverOutputRaw = nil
}

func (s *Scene) defaultJointWeights() types.JointWeights {
	actuated := make(map[string]bool)
	for _, n := range s.model.ActuatedJointNames() {
		actuated[n] = true
	}
	w := types.JointWeights{}
	for _, n := range s.model.JointNames() {
		if actuated[n] {
			w.Append(n, 1)
		} else {
			w.Append(n, 0)
		}
	}
	return w
}

func uniformWeights(names []string, value float64) types.JointWeights {
	w := types.JointWeights{}
	for _, n := range names {
		w.Append(n, value)
	}
	return w
}

// Update refreshes every constraint from the robot model and assembles the hierarchical QP.
// The robot model must already hold the current state. On failure the previous outputs are
// cleared and the scene drops back to StateConfigured.
func (s *Scene) Update() error {
	if s.state == StateUnconfigured {
		return ErrNotConfigured
	}
	if err := s.assemble(); err != nil {
		s.clearOutputs()
		s.state = StateConfigured
		return err
	}
	s.state = StateUpdated
	return nil
}

func (s *Scene) assemble() error {
	if n := s.formulation.NumVariables(s.model); n != s.nVariables {
		return fmt.Errorf("%w: robot model now needs %d variables, scene was configured for %d; call Configure again",
			ErrDimensionMismatch, n, s.nVariables)
	}

	level := s.formulation.ReferenceLevel()
	nj := s.model.NoOfJoints()
	levels := make([]QP, 0, len(s.constraints)+1)

	for prio, group := range s.constraints {
		qp := NewQP(prio, s.nVarsPerPrio[prio], s.nVariables)
		row := 0
		for _, c := range group {
			if err := c.Update(s.model); err != nil {
				return err
			}
			jac := c.Jacobian()
			target := c.Target(level)
			bias := c.Bias()
			weights := c.Weights()
			activation := c.Activation()

			for i := 0; i < c.NVariables(); i++ {
				scale := weights[i] * activation
				for j := 0; j < nj; j++ {
					qp.A.Set(row+i, j, scale*jac.At(i, j))
				}
				y := target[i]
				if level == ReferenceAcceleration {
					y -= bias[i]
				}
				qp.Y[row+i] = scale * y
				qp.Weights[row+i] = scale
			}
			row += c.NVariables()
		}
		levels = append(levels, qp)
	}

	if err := s.formulation.HardConstraints(s.model, &levels[0]); err != nil {
		return fmt.Errorf("%s hard constraints: %w", s.formulation.Name(), err)
	}

	reg, err := s.formulation.Regularization(s.model, s.jointWeights, s.actuatedJointWeights)
	if err != nil {
		return fmt.Errorf("%s regularization: %w", s.formulation.Name(), err)
	}
	if reg != nil {
		reg.Priority = len(levels)
		levels = append(levels, *reg)
	}

	s.hqp = HierarchicalQP{Levels: levels, NumVariables: s.nVariables, Time: time.Now()}
	return nil
}

// HierarchicalQP returns the structure assembled by the last Update
func (s *Scene) HierarchicalQP() *HierarchicalQP {
	return &s.hqp
}

// Solve runs the solver on hqp and decodes the result. On failure all outputs are cleared.
func (s *Scene) Solve(hqp *HierarchicalQP) error {
	switch s.state {
	case StateUnconfigured:
		return ErrNotConfigured
	case StateConfigured:
		return fmt.Errorf("%w: solve called before update", ErrInvalidState)
	}

	raw, err := s.solver.Solve(hqp)
	if err == nil && len(raw) != s.nVariables {
		err = fmt.Errorf("%w: solution has %d entries, expected %d", ErrDimensionMismatch, len(raw), s.nVariables)
	}
	if err != nil {
		s.clearOutputs()
		s.state = StateUpdated
		return fmt.Errorf("%w: %w", ErrSolverFailed, err)
	}

	out, err := s.formulation.Decode(s.model, raw)
	if err != nil {
		s.clearOutputs()
		s.state = StateUpdated
		return fmt.Errorf("%s decode: %w", s.formulation.Name(), err)
	}

	level := s.formulation.ReferenceLevel()
	nj := s.model.NoOfJoints()
	x := mat.NewVecDense(nj, append([]float64(nil), raw[:nj]...))
	now := time.Now()
	for _, group := range s.constraints {
		for _, c := range group {
			var y mat.VecDense
			y.MulVec(c.Jacobian(), x)
			sol := make([]float64, c.NVariables())
			bias := c.Bias()
			for i := range sol {
				sol[i] = y.AtVec(i)
				if level == ReferenceAcceleration {
					sol[i] += bias[i]
				}
			}
			c.setSolution(sol, level, now)
		}
	}

	s.solverOutputRaw = raw
	s.solverOutput = out
	s.state = StateSolved
	return nil
}

// UpdateTasksStatus snapshots reference and achieved values of every constraint
func (s *Scene) UpdateTasksStatus() {
	status := types.TasksStatus{}
	for _, group := range s.constraints {
		for _, c := range group {
			status.Append(c.Config().Name, c.Status())
		}
	}
	s.tasksStatus = status
}

// TasksStatus returns the last snapshot in constraint order
func (s *Scene) TasksStatus() types.TasksStatus {
	return s.tasksStatus.Clone()
}

// SolverOutput returns the joint commands of the last successful solve
func (s *Scene) SolverOutput() types.Joints {
	out := types.Joints{Time: s.solverOutput.Time}
	out.NamedVector = s.solverOutput.NamedVector.Clone()
	return out
}

// SolverOutputRaw returns the unprocessed solution vector of the last successful solve
func (s *Scene) SolverOutputRaw() []float64 {
	return append([]float64(nil), s.solverOutputRaw...)
}

// Constraint returns the named constraint
func (s *Scene) Constraint(name string) (Constraint, error) {
	c, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrConstraintNotFound, name)
	}
	return c, nil
}

// HasConstraint reports whether a constraint of that name is configured
func (s *Scene) HasConstraint(name string) bool {
	_, ok := s.byName[name]
	return ok
}

// Constraints returns all constraints grouped by effective priority
func (s *Scene) Constraints() [][]Constraint {
	out := make([][]Constraint, len(s.constraints))
	for i, g := range s.constraints {
		out[i] = append([]Constraint(nil), g...)
	}
	return out
}

// SetReference sets the reference of the named constraint
func (s *Scene) SetReference(name string, ref types.Reference) error {
	c, err := s.Constraint(name)
	if err != nil {
		return err
	}
	if ref == nil {
		return fmt.Errorf("%w: nil reference for %s", ErrInvalidReference, name)
	}
	switch c.(type) {
	case *JointConstraint:
		if _, ok := ref.(types.Joints); !ok {
			return fmt.Errorf("%w: %s is a joint constraint, got %s reference", ErrReferenceTypeMismatch, name, ref.ReferenceType())
		}
	case *CartesianConstraint, *COMConstraint:
		if _, ok := ref.(types.RigidBodyState); !ok {
			return fmt.Errorf("%w: %s is a %s constraint, got %s reference", ErrReferenceTypeMismatch, name, c.Type(), ref.ReferenceType())
		}
	}
	return c.SetReference(ref)
}

// SetTaskWeights replaces the weights of the named constraint
func (s *Scene) SetTaskWeights(name string, weights []float64) error {
	c, err := s.Constraint(name)
	if err != nil {
		return err
	}
	return c.SetWeights(weights)
}

// SetTaskActivation sets the activation of the named constraint. Values outside [0, 1] are not clamped.
func (s *Scene) SetTaskActivation(name string, activation float64) error {
	c, err := s.Constraint(name)
	if err != nil {
		return err
	}
	c.SetActivation(activation)
	return nil
}

// SetJointWeights merges a partial weight vector by name. If any name is unknown nothing is changed.
func (s *Scene) SetJointWeights(weights types.JointWeights) error {
	merged, err := s.mergeWeights(s.jointWeights, weights, s.model.JointNames())
	if err != nil {
		return err
	}
	s.jointWeights = merged
	return nil
}

// SetActuatedJointWeights merges a partial weight vector over the actuated joints.
// If any name is unknown nothing is changed.
func (s *Scene) SetActuatedJointWeights(weights types.JointWeights) error {
	merged, err := s.mergeWeights(s.actuatedJointWeights, weights, s.model.ActuatedJointNames())
	if err != nil {
		return err
	}
	s.actuatedJointWeights = merged
	return nil
}

func (s *Scene) mergeWeights(current, partial types.JointWeights, valid []string) (types.JointWeights, error) {
	if s.state == StateUnconfigured {
		return current, ErrNotConfigured
	}
	if len(partial.Names) != len(partial.Elements) {
		return current, fmt.Errorf("%w: %d names, %d weights", ErrDimensionMismatch, len(partial.Names), len(partial.Elements))
	}

	merged := current.Clone()
	for i, name := range partial.Names {
		if err := merged.Set(name, partial.Elements[i]); err != nil {
			s.logger.Error("Invalid joint name in weight vector",
				logger.WithField("joint", name),
				logger.WithField("valid_joints", strings.Join(valid, ", ")))
			return current, fmt.Errorf("%w: %s", ErrInvalidJointName, name)
		}
	}
	return merged, nil
}

// JointWeights returns the regularization weight of every joint
func (s *Scene) JointWeights() types.JointWeights {
	return s.jointWeights.Clone()
}

// ActuatedJointWeights returns the torque regularization weight of every actuated joint
func (s *Scene) ActuatedJointWeights() types.JointWeights {
	return s.actuatedJointWeights.Clone()
}

// NConstraintVariablesPerPrio returns the task rows per effective priority
func (s *Scene) NConstraintVariablesPerPrio() []int {
	return append([]int(nil), s.nVarsPerPrio...)
}

// NumVariables returns the QP variable count
func (s *Scene) NumVariables() int {
	return s.nVariables
}

// State returns the current cycle state
func (s *Scene) State() SceneState {
	return s.state
}

// RobotModel returns the bound robot model
func (s *Scene) RobotModel() RobotModel {
	return s.model
}

// Logger returns the scene logger
func (s *Scene) Logger() logger.Logger {
	return s.logger
}

// IsSolverError reports whether err came from the QP solver
func IsSolverError(err error) bool {
	return errors.Is(err, ErrSolverFailed)
}
