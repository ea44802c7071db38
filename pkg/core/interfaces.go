// Package core implements the prioritized constraint management and hierarchical QP assembly engine
package core

import (
	"github.com/wholebody/wbc/pkg/logger"
	"github.com/wholebody/wbc/pkg/types"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// RobotModel provides the kinematic and dynamic quantities a scene consumes.
// Implementations are owned by the caller and must outlive every scene bound to them.
// Jacobians are 6×NoOfJoints with rows [linear; angular].
type RobotModel interface {
	// Configure loads the robot description. A returned error leaves the model unusable
	// but the call may be retried with corrected input.
	Configure(cfg types.RobotModelConfig) error
	// Update refreshes the kinematic state. floatingBase is required for floating-base models.
	Update(joints types.Joints, floatingBase *types.RigidBodyState) error

	NoOfJoints() int
	NoOfActuatedJoints() int
	JointNames() []string
	ActuatedJointNames() []string
	IndependentJointNames() []string
	JointIndex(name string) (int, error)
	JointState(names []string) (types.Joints, error)

	WorldFrame() string
	HasFrame(name string) bool
	// RigidBodyState returns the pose and twist of tip expressed in root
	RigidBodyState(root, tip string) (types.RigidBodyState, error)
	// SpaceJacobian maps joint velocities to the twist of tip relative to root, in root coordinates
	SpaceJacobian(root, tip string) (*mat.Dense, error)
	// BodyJacobian is SpaceJacobian rotated into tip coordinates
	BodyJacobian(root, tip string) (*mat.Dense, error)
	// SpatialAccelerationBias is J̇·q̇ matching SpaceJacobian
	SpatialAccelerationBias(root, tip string) ([]float64, error)
	// BodyAccelerationBias is J̇·q̇ matching BodyJacobian
	BodyAccelerationBias(root, tip string) ([]float64, error)
	// COMJacobian is the 3×NoOfJoints centre of mass Jacobian in world coordinates
	COMJacobian() (*mat.Dense, error)
	COMAccelerationBias() (r3.Vec, error)
	CenterOfMass() (types.RigidBodyState, error)

	JointSpaceInertiaMatrix() (*mat.Dense, error)
	BiasForces() ([]float64, error)
	// SelectionMatrix maps joint torques to actuated torques, NoOfActuatedJoints×NoOfJoints
	SelectionMatrix() *mat.Dense

	ActiveContacts() types.ActiveContacts
	SetActiveContacts(contacts types.ActiveContacts) error
}

// QPSolver solves a hierarchical QP and returns the raw solution vector.
// Tuning (iteration bounds, tolerances) is a solver concern.
type QPSolver interface {
	Solve(hqp *HierarchicalQP) ([]float64, error)
}

// ReferenceLevel selects which derivative of a reference enters the task rows
type ReferenceLevel int

const (
	ReferenceVelocity ReferenceLevel = iota
	ReferenceAcceleration
)

func (l ReferenceLevel) String() string {
	if l == ReferenceAcceleration {
		return "acceleration"
	}
	return "velocity"
}

// Formulation is the part of a scene that differs between WBC problem formulations.
// The joint-space unknowns (q̇ or q̈) always occupy the first NoOfJoints QP variables.
type Formulation interface {
	Name() string
	NumVariables(model RobotModel) int
	ReferenceLevel() ReferenceLevel
	// HardConstraints adds the formulation's strict constraints to the highest priority level
	HardConstraints(model RobotModel, qp *QP) error
	// Regularization returns the lowest priority level, or nil
	Regularization(model RobotModel, jointWeights, actuatedJointWeights types.JointWeights) (*QP, error)
	// Decode converts a raw solution into joint commands for the actuated joints
	Decode(model RobotModel, raw []float64) (types.Joints, error)
}

// WbcScene is the caller-facing contract shared by every concrete scene
type WbcScene interface {
	Configure(configs []types.ConstraintConfig) error
	ClearConstraints()
	Update() error
	HierarchicalQP() *HierarchicalQP
	Solve(hqp *HierarchicalQP) error
	SolverOutput() types.Joints
	SolverOutputRaw() []float64
	UpdateTasksStatus()
	TasksStatus() types.TasksStatus

	SetReference(name string, ref types.Reference) error
	SetTaskWeights(name string, weights []float64) error
	SetTaskActivation(name string, activation float64) error
	SetJointWeights(weights types.JointWeights) error
	SetActuatedJointWeights(weights types.JointWeights) error
	JointWeights() types.JointWeights
	ActuatedJointWeights() types.JointWeights
	Constraint(name string) (Constraint, error)
	HasConstraint(name string) bool
	State() SceneState
	Logger() logger.Logger
}
