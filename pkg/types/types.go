// Package types provides core types and configurations for the whole-body controller
package types

import (
	"fmt"
	"sort"
	"time"
)

// ConstraintType represents the supported constraint (task) variants
type ConstraintType string

const (
	ConstraintTypeJoint     ConstraintType = "joint"
	ConstraintTypeCartesian ConstraintType = "cartesian"
	ConstraintTypeCOM       ConstraintType = "com"
)

// SceneType represents the available WBC problem formulations
type SceneType string

const (
	SceneTypeAccelerationReducedTSID SceneType = "acceleration_reduced_tsid"
	SceneTypeVelocity                SceneType = "velocity"
)

// LogLevel represents logging verbosity levels
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// ConstraintConfig is the declarative, immutable description of one control objective.
// Root, Tip and RefFrame apply to Cartesian constraints only, JointNames to joint constraints.
type ConstraintConfig struct {
	Name       string         `json:"name" yaml:"name"`
	Type       ConstraintType `json:"type" yaml:"type"`
	Priority   int            `json:"priority" yaml:"priority"`
	Root       string         `json:"root,omitempty" yaml:"root,omitempty"`
	Tip        string         `json:"tip,omitempty" yaml:"tip,omitempty"`
	RefFrame   string         `json:"ref_frame,omitempty" yaml:"ref_frame,omitempty"`
	JointNames []string       `json:"joint_names,omitempty" yaml:"joint_names,omitempty"`
	Weights    []float64      `json:"weights" yaml:"weights"`
	Activation float64        `json:"activation" yaml:"activation"`
}

// NVariables returns the task dimensionality
func (c ConstraintConfig) NVariables() int {
	switch c.Type {
	case ConstraintTypeCartesian:
		return 6
	case ConstraintTypeCOM:
		return 3
	case ConstraintTypeJoint:
		return len(c.JointNames)
	default:
		return 0
	}
}

// Clone returns a deep copy so the caller's slices are never shared with a scene
func (c ConstraintConfig) Clone() ConstraintConfig {
	out := c
	out.JointNames = append([]string(nil), c.JointNames...)
	out.Weights = append([]float64(nil), c.Weights...)
	return out
}

// ActiveContact describes a contact point of the robot.
// Mu is the friction coefficient, Wx and Wy the half extents of the support area.
type ActiveContact struct {
	Active bool    `json:"active" yaml:"active"`
	Mu     float64 `json:"mu" yaml:"mu"`
	Wx     float64 `json:"wx" yaml:"wx"`
	Wy     float64 `json:"wy" yaml:"wy"`
}

// ActiveContacts is the named, ordered contact set
type ActiveContacts = NamedVector[ActiveContact]

// RobotModelConfig configures a robot model collaborator
type RobotModelConfig struct {
	// File is a URDF path or an inline URDF document
	File          string         `json:"file" yaml:"file"`
	Submechanism  string         `json:"submechanism_file,omitempty" yaml:"submechanism_file,omitempty"`
	FloatingBase  bool           `json:"floating_base" yaml:"floating_base"`
	WorldFrame    string         `json:"world_frame,omitempty" yaml:"world_frame,omitempty"`
	ContactPoints ActiveContacts `json:"-" yaml:"-"`
}

// ConstraintStatus is the post-solve snapshot of one constraint
type ConstraintStatus struct {
	Time       time.Time        `json:"time"`
	Config     ConstraintConfig `json:"config"`
	Activation float64          `json:"activation"`
	Weights    []float64        `json:"weights"`
	YRef       []float64        `json:"y_ref"`
	YSolution  []float64        `json:"y_solution"`
	Residual   []float64        `json:"residual"`
}

// TasksStatus mirrors the constraint order of a scene
type TasksStatus = NamedVector[ConstraintStatus]

// JointWeights holds one weight per joint
type JointWeights = NamedVector[float64]

// NewJointWeights builds a weight vector from a name→weight map.
// Names are sorted so that the result does not depend on map iteration order.
func NewJointWeights(m map[string]float64) JointWeights {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)

	w := JointWeights{}
	for _, n := range names {
		w.Names = append(w.Names, n)
		w.Elements = append(w.Elements, m[n])
	}
	return w
}

// ContactPointConfig is the file representation of an active contact
type ContactPointConfig struct {
	Name   string  `json:"name" yaml:"name"`
	Active *bool   `json:"active,omitempty" yaml:"active,omitempty"`
	Mu     float64 `json:"mu" yaml:"mu"`
	Wx     float64 `json:"wx" yaml:"wx"`
	Wy     float64 `json:"wy" yaml:"wy"`
}

// RobotModelFileConfig is the file representation of RobotModelConfig
type RobotModelFileConfig struct {
	File          string               `json:"file" yaml:"file"`
	Submechanism  string               `json:"submechanism_file,omitempty" yaml:"submechanism_file,omitempty"`
	FloatingBase  bool                 `json:"floating_base" yaml:"floating_base"`
	WorldFrame    string               `json:"world_frame,omitempty" yaml:"world_frame,omitempty"`
	ContactPoints []ContactPointConfig `json:"contact_points,omitempty" yaml:"contact_points,omitempty"`
}

// ToRobotModelConfig converts the file representation. resolve, if set, maps file paths.
func (r RobotModelFileConfig) ToRobotModelConfig(resolve func(string) string) RobotModelConfig {
	cfg := RobotModelConfig{
		File:         r.File,
		Submechanism: r.Submechanism,
		FloatingBase: r.FloatingBase,
		WorldFrame:   r.WorldFrame,
	}
	if resolve != nil {
		cfg.File = resolve(r.File)
		if r.Submechanism != "" {
			cfg.Submechanism = resolve(r.Submechanism)
		}
	}
	for _, cp := range r.ContactPoints {
		active := true
		if cp.Active != nil {
			active = *cp.Active
		}
		cfg.ContactPoints.Names = append(cfg.ContactPoints.Names, cp.Name)
		cfg.ContactPoints.Elements = append(cfg.ContactPoints.Elements, ActiveContact{
			Active: active,
			Mu:     cp.Mu,
			Wx:     cp.Wx,
			Wy:     cp.Wy,
		})
	}
	return cfg
}

// SceneSettings selects and tunes the problem formulation
type SceneSettings struct {
	Type                 SceneType `json:"type" yaml:"type"`
	IntegrationDt        float64   `json:"integration_dt,omitempty" yaml:"integration_dt,omitempty"`
	FrictionConstraints  *bool     `json:"friction_constraints,omitempty" yaml:"friction_constraints,omitempty"`
	ForceRegularization  float64   `json:"force_regularization,omitempty" yaml:"force_regularization,omitempty"`
	TorqueRegularization float64   `json:"torque_regularization,omitempty" yaml:"torque_regularization,omitempty"`
}

// SolverConfig tunes the hierarchical solver
type SolverConfig struct {
	MaxIterations        int     `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty"`
	Damping              float64 `json:"damping,omitempty" yaml:"damping,omitempty"`
	RankTolerance        float64 `json:"rank_tolerance,omitempty" yaml:"rank_tolerance,omitempty"`
	FeasibilityTolerance float64 `json:"feasibility_tolerance,omitempty" yaml:"feasibility_tolerance,omitempty"`
}

// NotificationConfig represents notification preferences
type NotificationConfig struct {
	Enabled *bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	File  string   `json:"file" yaml:"file"`
	Level LogLevel `json:"level" yaml:"level"`
}

// JointStateConfig is the file representation of a joint sample
type JointStateConfig struct {
	Position     float64 `json:"position" yaml:"position"`
	Speed        float64 `json:"speed" yaml:"speed"`
	Acceleration float64 `json:"acceleration" yaml:"acceleration"`
}

// VectorPairConfig is a linear/angular pair of 3-vectors
type VectorPairConfig struct {
	Linear  []float64 `json:"linear" yaml:"linear"`
	Angular []float64 `json:"angular" yaml:"angular"`
}

// PoseConfig is the file representation of a pose. Orientation is w, x, y, z.
type PoseConfig struct {
	Position    []float64 `json:"position" yaml:"position"`
	Orientation []float64 `json:"orientation" yaml:"orientation"`
}

// RigidBodyStateConfig is the file representation of a rigid body sample
type RigidBodyStateConfig struct {
	Pose         *PoseConfig       `json:"pose,omitempty" yaml:"pose,omitempty"`
	Twist        *VectorPairConfig `json:"twist,omitempty" yaml:"twist,omitempty"`
	Acceleration *VectorPairConfig `json:"acceleration,omitempty" yaml:"acceleration,omitempty"`
}

// ReferenceConfig holds either a joint or a rigid body reference
type ReferenceConfig struct {
	Joints               map[string]JointStateConfig `json:"joints,omitempty" yaml:"joints,omitempty"`
	RigidBodyStateConfig `yaml:",inline"`
}

// StateConfig is a robot state sample used by the CLI to run a cycle offline
type StateConfig struct {
	Joints       map[string]JointStateConfig `json:"joints" yaml:"joints"`
	FloatingBase *RigidBodyStateConfig       `json:"floating_base,omitempty" yaml:"floating_base,omitempty"`
}

// SceneFile represents the main configuration file
type SceneFile struct {
	Version              string                     `json:"version" yaml:"version"`
	Scene                SceneSettings              `json:"scene" yaml:"scene"`
	RobotModel           RobotModelFileConfig       `json:"robot_model" yaml:"robot_model"`
	Solver               SolverConfig               `json:"solver" yaml:"solver"`
	Constraints          []ConstraintConfig         `json:"constraints" yaml:"constraints"`
	JointWeights         map[string]float64         `json:"joint_weights,omitempty" yaml:"joint_weights,omitempty"`
	ActuatedJointWeights map[string]float64         `json:"actuated_joint_weights,omitempty" yaml:"actuated_joint_weights,omitempty"`
	State                *StateConfig               `json:"state,omitempty" yaml:"state,omitempty"`
	References           map[string]ReferenceConfig `json:"references,omitempty" yaml:"references,omitempty"`
	Notifications        *NotificationConfig        `json:"notifications,omitempty" yaml:"notifications,omitempty"`
	Logging              *LoggingConfig             `json:"logging,omitempty" yaml:"logging,omitempty"`
}

// ParseConstraintType validates a constraint type string
func ParseConstraintType(s string) (ConstraintType, error) {
	switch ConstraintType(s) {
	case ConstraintTypeJoint, ConstraintTypeCartesian, ConstraintTypeCOM:
		return ConstraintType(s), nil
	}
	return "", fmt.Errorf("unknown constraint type: %q", s)
}
