package types

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrInvalidName is returned by NamedVector lookups for names that are not present
var ErrInvalidName = errors.New("invalid name")

// NamedVector is an ordered vector whose elements are addressed by name
type NamedVector[T any] struct {
	Names    []string `json:"names" yaml:"names"`
	Elements []T      `json:"elements" yaml:"elements"`
}

// Len returns the number of elements
func (v NamedVector[T]) Len() int {
	return len(v.Elements)
}

// Index returns the position of name or -1
func (v NamedVector[T]) Index(name string) int {
	for i, n := range v.Names {
		if n == name {
			return i
		}
	}
	return -1
}

// Has reports whether name is present
func (v NamedVector[T]) Has(name string) bool {
	return v.Index(name) >= 0
}

// Get returns the element for name
func (v NamedVector[T]) Get(name string) (T, error) {
	i := v.Index(name)
	if i < 0 {
		var zero T
		return zero, fmt.Errorf("%w: %s", ErrInvalidName, name)
	}
	return v.Elements[i], nil
}

// Set overwrites the element for an existing name
func (v *NamedVector[T]) Set(name string, value T) error {
	i := v.Index(name)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrInvalidName, name)
	}
	v.Elements[i] = value
	return nil
}

// Append adds a new named element
func (v *NamedVector[T]) Append(name string, value T) {
	v.Names = append(v.Names, name)
	v.Elements = append(v.Elements, value)
}

// Clone returns a copy that shares no slices with v
func (v NamedVector[T]) Clone() NamedVector[T] {
	return NamedVector[T]{
		Names:    append([]string(nil), v.Names...),
		Elements: append([]T(nil), v.Elements...),
	}
}

// Reference is the sum type of constraint reference samples.
// Only Joints and RigidBodyState implement it.
type Reference interface {
	ReferenceType() ConstraintType
	isReference()
}

// JointState is a single joint sample or command. Unset command fields are NaN.
type JointState struct {
	Position     float64 `json:"position"`
	Speed        float64 `json:"speed"`
	Acceleration float64 `json:"acceleration"`
	Effort       float64 `json:"effort"`
}

// UnsetJointState returns a command with every field NaN
func UnsetJointState() JointState {
	nan := math.NaN()
	return JointState{Position: nan, Speed: nan, Acceleration: nan, Effort: nan}
}

// Joints is a named joint-space sample or command
type Joints struct {
	Time time.Time `json:"time"`
	NamedVector[JointState]
}

// ReferenceType implements Reference
func (Joints) ReferenceType() ConstraintType { return ConstraintTypeJoint }

func (Joints) isReference() {}

// Pose is a position and unit quaternion orientation
type Pose struct {
	Position    r3.Vec      `json:"position"`
	Orientation quat.Number `json:"orientation"`
}

// IdentityPose returns the pose at the origin with no rotation
func IdentityPose() Pose {
	return Pose{Orientation: quat.Number{Real: 1}}
}

// Twist is a linear and angular velocity
type Twist struct {
	Linear  r3.Vec `json:"linear"`
	Angular r3.Vec `json:"angular"`
}

// Acceleration is a linear and angular acceleration
type Acceleration struct {
	Linear  r3.Vec `json:"linear"`
	Angular r3.Vec `json:"angular"`
}

// RigidBodyState is a pose, twist and acceleration sample of a frame
type RigidBodyState struct {
	Time         time.Time    `json:"time"`
	Frame        string       `json:"frame,omitempty"`
	Pose         Pose         `json:"pose"`
	Twist        Twist        `json:"twist"`
	Acceleration Acceleration `json:"acceleration"`
}

// NewRigidBodyState returns a sample at identity pose with zero motion
func NewRigidBodyState() RigidBodyState {
	return RigidBodyState{Pose: IdentityPose()}
}

// ReferenceType implements Reference
func (RigidBodyState) ReferenceType() ConstraintType { return ConstraintTypeCartesian }

func (RigidBodyState) isReference() {}

// TwistVector packs the twist as [linear; angular]
func (s RigidBodyState) TwistVector() []float64 {
	return []float64{
		s.Twist.Linear.X, s.Twist.Linear.Y, s.Twist.Linear.Z,
		s.Twist.Angular.X, s.Twist.Angular.Y, s.Twist.Angular.Z,
	}
}

// AccelerationVector packs the acceleration as [linear; angular]
func (s RigidBodyState) AccelerationVector() []float64 {
	return []float64{
		s.Acceleration.Linear.X, s.Acceleration.Linear.Y, s.Acceleration.Linear.Z,
		s.Acceleration.Angular.X, s.Acceleration.Angular.Y, s.Acceleration.Angular.Z,
	}
}

// VecFromSlice converts a 3-element slice; shorter slices are zero padded
func VecFromSlice(v []float64) r3.Vec {
	var out [3]float64
	copy(out[:], v)
	return r3.Vec{X: out[0], Y: out[1], Z: out[2]}
}

// JointsFromConfig converts a file joint map into a sample. Names are ordered by the given order,
// any remaining names are appended sorted.
func JointsFromConfig(m map[string]JointStateConfig, order []string) Joints {
	js := Joints{Time: time.Now()}
	seen := make(map[string]bool, len(m))
	for _, n := range order {
		if s, ok := m[n]; ok {
			js.Append(n, JointState{Position: s.Position, Speed: s.Speed, Acceleration: s.Acceleration})
			seen[n] = true
		}
	}
	rest := make([]string, 0)
	for n := range m {
		if !seen[n] {
			rest = append(rest, n)
		}
	}
	sort.Strings(rest)
	for _, n := range rest {
		s := m[n]
		js.Append(n, JointState{Position: s.Position, Speed: s.Speed, Acceleration: s.Acceleration})
	}
	return js
}

// RigidBodyStateFromConfig converts a file rigid body sample
func RigidBodyStateFromConfig(c RigidBodyStateConfig) RigidBodyState {
	s := NewRigidBodyState()
	s.Time = time.Now()
	if c.Pose != nil {
		s.Pose.Position = VecFromSlice(c.Pose.Position)
		if len(c.Pose.Orientation) == 4 {
			s.Pose.Orientation = quat.Number{
				Real: c.Pose.Orientation[0],
				Imag: c.Pose.Orientation[1],
				Jmag: c.Pose.Orientation[2],
				Kmag: c.Pose.Orientation[3],
			}
		}
	}
	if c.Twist != nil {
		s.Twist.Linear = VecFromSlice(c.Twist.Linear)
		s.Twist.Angular = VecFromSlice(c.Twist.Angular)
	}
	if c.Acceleration != nil {
		s.Acceleration.Linear = VecFromSlice(c.Acceleration.Linear)
		s.Acceleration.Angular = VecFromSlice(c.Acceleration.Angular)
	}
	return s
}

// ReferenceFromConfig converts a file reference into the matching Reference variant
func ReferenceFromConfig(c ReferenceConfig, order []string) Reference {
	if c.Joints != nil {
		return JointsFromConfig(c.Joints, order)
	}
	return RigidBodyStateFromConfig(c.RigidBodyStateConfig)
}

// Wrench is a force and torque acting at a frame
type Wrench struct {
	Force  r3.Vec `json:"force"`
	Torque r3.Vec `json:"torque"`
}

// Wrenches is a named set of wrenches, one per contact point
type Wrenches = NamedVector[Wrench]
