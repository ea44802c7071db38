package core

import (
	"fmt"

	"github.com/wholebody/wbc/pkg/spatial"
	"github.com/wholebody/wbc/pkg/types"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// CartesianConstraint tracks the twist or spatial acceleration of Tip relative to Root,
// with the reference expressed in RefFrame
type CartesianConstraint struct {
	constraintBase
}

// NewCartesianConstraint creates a Cartesian constraint. cfg must be of cartesian type.
func NewCartesianConstraint(cfg types.ConstraintConfig) *CartesianConstraint {
	return &CartesianConstraint{constraintBase: newConstraintBase(cfg)}
}

// Update computes the relative Jacobian and bias and rotates both into RefFrame. When RefFrame
// differs from Root the bias includes ω×(R·v), where ω is the angular velocity of Root in
// RefFrame and v the twist of Tip relative to Root.
func (c *CartesianConstraint) Update(model RobotModel) error {
	jac, err := model.SpaceJacobian(c.config.Root, c.config.Tip)
	if err != nil {
		return fmt.Errorf("constraint %s: %w", c.config.Name, err)
	}
	bias, err := model.SpatialAccelerationBias(c.config.Root, c.config.Tip)
	if err != nil {
		return fmt.Errorf("constraint %s: %w", c.config.Name, err)
	}

	if c.config.RefFrame != c.config.Root {
		rootInRef, err := model.RigidBodyState(c.config.RefFrame, c.config.Root)
		if err != nil {
			return fmt.Errorf("constraint %s: %w", c.config.Name, err)
		}
		tipInRoot, err := model.RigidBodyState(c.config.Root, c.config.Tip)
		if err != nil {
			return fmt.Errorf("constraint %s: %w", c.config.Name, err)
		}
		rot := spatial.FromQuat(rootInRef.Pose.Orientation)
		rotateRows(jac, rot)
		rotateVector(bias, rot)

		omega := rootInRef.Twist.Angular
		for block, v := range []r3.Vec{tipInRoot.Twist.Linear, tipInRoot.Twist.Angular} {
			d := r3.Cross(omega, rot.MulVec(v))
			bias[3*block] += d.X
			bias[3*block+1] += d.Y
			bias[3*block+2] += d.Z
		}
	}

	c.jacobian = jac
	c.bias = bias
	return nil
}

// SetReference accepts a RigidBodyState expressed in RefFrame
func (c *CartesianConstraint) SetReference(ref types.Reference) error {
	rbs, ok := ref.(types.RigidBodyState)
	if !ok {
		return fmt.Errorf("%w: constraint %s expects a cartesian reference, got %s",
			ErrReferenceTypeMismatch, c.config.Name, ref.ReferenceType())
	}
	c.velRef = rbs.TwistVector()
	c.accRef = rbs.AccelerationVector()
	return nil
}

// COMConstraint tracks the linear velocity or acceleration of the centre of mass in world coordinates
type COMConstraint struct {
	constraintBase
}

// NewCOMConstraint creates a centre of mass constraint
func NewCOMConstraint(cfg types.ConstraintConfig) *COMConstraint {
	return &COMConstraint{constraintBase: newConstraintBase(cfg)}
}

// Update refreshes the COM Jacobian and bias
func (c *COMConstraint) Update(model RobotModel) error {
	jac, err := model.COMJacobian()
	if err != nil {
		return fmt.Errorf("constraint %s: %w", c.config.Name, err)
	}
	bias, err := model.COMAccelerationBias()
	if err != nil {
		return fmt.Errorf("constraint %s: %w", c.config.Name, err)
	}
	c.jacobian = jac
	c.bias = []float64{bias.X, bias.Y, bias.Z}
	return nil
}

// SetReference accepts a RigidBodyState; only its linear part is used
func (c *COMConstraint) SetReference(ref types.Reference) error {
	rbs, ok := ref.(types.RigidBodyState)
	if !ok {
		return fmt.Errorf("%w: constraint %s expects a cartesian reference, got %s",
			ErrReferenceTypeMismatch, c.config.Name, ref.ReferenceType())
	}
	c.velRef = []float64{rbs.Twist.Linear.X, rbs.Twist.Linear.Y, rbs.Twist.Linear.Z}
	c.accRef = []float64{rbs.Acceleration.Linear.X, rbs.Acceleration.Linear.Y, rbs.Acceleration.Linear.Z}
	return nil
}

// rotateRows applies rot to the linear and angular row blocks of a 6×n matrix in place
func rotateRows(m *mat.Dense, rot spatial.Rotation) {
	_, cols := m.Dims()
	for j := 0; j < cols; j++ {
		for block := 0; block < 6; block += 3 {
			v := rot.MulVec(r3.Vec{X: m.At(block, j), Y: m.At(block+1, j), Z: m.At(block+2, j)})
			m.Set(block, j, v.X)
			m.Set(block+1, j, v.Y)
			m.Set(block+2, j, v.Z)
		}
	}
}

func rotateVector(v []float64, rot spatial.Rotation) {
	for block := 0; block < 6; block += 3 {
		r := rot.MulVec(r3.Vec{X: v[block], Y: v[block+1], Z: v[block+2]})
		v[block], v[block+1], v[block+2] = r.X, r.Y, r.Z
	}
}
