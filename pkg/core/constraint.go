package core

import (
	"fmt"
	"time"

	"github.com/wholebody/wbc/pkg/types"
	"gonum.org/v1/gonum/mat"
)

// Constraint is one weighted control objective. The variants are JointConstraint,
// CartesianConstraint and COMConstraint; the set is closed to this package.
// Mutation from outside goes through the Scene's named setters.
type Constraint interface {
	Config() types.ConstraintConfig
	Type() types.ConstraintType
	NVariables() int

	// Update refreshes Jacobian and bias from the robot model
	Update(model RobotModel) error
	SetReference(ref types.Reference) error

	Weights() []float64
	SetWeights(weights []float64) error
	Activation() float64
	SetActivation(activation float64)

	// Jacobian maps joint-space unknowns to the task space, NVariables×NoOfJoints
	Jacobian() *mat.Dense
	// Bias is J̇·q̇ in task coordinates
	Bias() []float64
	// Target returns the reference at the given level
	Target(level ReferenceLevel) []float64
	// Solution returns the task value achieved by the last solve
	Solution() []float64

	Status() types.ConstraintStatus

	setSolution(y []float64, level ReferenceLevel, at time.Time)
	reset()
}

type constraintBase struct {
	config     types.ConstraintConfig
	weights    []float64
	activation float64

	jacobian *mat.Dense
	bias     []float64
	velRef   []float64
	accRef   []float64

	level     ReferenceLevel
	ySolution []float64
	updatedAt time.Time
}

func newConstraintBase(cfg types.ConstraintConfig) constraintBase {
	n := cfg.NVariables()
	b := constraintBase{
		config:     cfg.Clone(),
		weights:    make([]float64, n),
		activation: cfg.Activation,
	}
	copy(b.weights, cfg.Weights)
	b.reset()
	return b
}

func (b *constraintBase) Config() types.ConstraintConfig { return b.config.Clone() }

func (b *constraintBase) Type() types.ConstraintType { return b.config.Type }

func (b *constraintBase) NVariables() int { return b.config.NVariables() }

func (b *constraintBase) Weights() []float64 { return append([]float64(nil), b.weights...) }

func (b *constraintBase) SetWeights(weights []float64) error {
	if len(weights) != b.NVariables() {
		return fmt.Errorf("%w: constraint %s expects %d weights, got %d",
			ErrDimensionMismatch, b.config.Name, b.NVariables(), len(weights))
	}
	copy(b.weights, weights)
	return nil
}

func (b *constraintBase) Activation() float64 { return b.activation }

func (b *constraintBase) SetActivation(activation float64) { b.activation = activation }

func (b *constraintBase) Jacobian() *mat.Dense { return b.jacobian }

func (b *constraintBase) Bias() []float64 { return append([]float64(nil), b.bias...) }

func (b *constraintBase) Target(level ReferenceLevel) []float64 {
	if level == ReferenceAcceleration {
		return append([]float64(nil), b.accRef...)
	}
	return append([]float64(nil), b.velRef...)
}

func (b *constraintBase) Solution() []float64 { return append([]float64(nil), b.ySolution...) }

func (b *constraintBase) setSolution(y []float64, level ReferenceLevel, at time.Time) {
	b.ySolution = append(b.ySolution[:0], y...)
	b.level = level
	b.updatedAt = at
}

func (b *constraintBase) reset() {
	n := b.NVariables()
	b.bias = make([]float64, n)
	b.velRef = make([]float64, n)
	b.accRef = make([]float64, n)
	b.ySolution = make([]float64, n)
	b.jacobian = nil
}

func (b *constraintBase) Status() types.ConstraintStatus {
	ref := b.Target(b.level)
	residual := make([]float64, len(ref))
	for i := range ref {
		residual[i] = ref[i] - b.ySolution[i]
	}
	return types.ConstraintStatus{
		Time:       b.updatedAt,
		Config:     b.config.Clone(),
		Activation: b.activation,
		Weights:    b.Weights(),
		YRef:       ref,
		YSolution:  b.Solution(),
		Residual:   residual,
	}
}

// NewConstraint creates the variant matching cfg.Type
func NewConstraint(cfg types.ConstraintConfig) (Constraint, error) {
	switch cfg.Type {
	case types.ConstraintTypeJoint:
		return NewJointConstraint(cfg), nil
	case types.ConstraintTypeCartesian:
		return NewCartesianConstraint(cfg), nil
	case types.ConstraintTypeCOM:
		return NewCOMConstraint(cfg), nil
	default:
		return nil, fmt.Errorf("%w: constraint %s has unknown type %q", ErrInvalidConfig, cfg.Name, cfg.Type)
	}
}
