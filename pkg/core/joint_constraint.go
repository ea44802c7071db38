package core

import (
	"fmt"

	"github.com/wholebody/wbc/pkg/types"
	"gonum.org/v1/gonum/mat"
)

// JointConstraint tracks speeds or accelerations of a set of joints
type JointConstraint struct {
	constraintBase
}

// NewJointConstraint creates a joint constraint. cfg must be of joint type.
func NewJointConstraint(cfg types.ConstraintConfig) *JointConstraint {
	return &JointConstraint{constraintBase: newConstraintBase(cfg)}
}

// Update builds the selection rows for the configured joints
func (c *JointConstraint) Update(model RobotModel) error {
	n := c.NVariables()
	jac := mat.NewDense(n, model.NoOfJoints(), nil)
	for i, name := range c.config.JointNames {
		idx, err := model.JointIndex(name)
		if err != nil {
			return fmt.Errorf("constraint %s: %w", c.config.Name, err)
		}
		jac.Set(i, idx, 1)
	}
	c.jacobian = jac
	return nil
}

// SetReference accepts a Joints sample containing every configured joint
func (c *JointConstraint) SetReference(ref types.Reference) error {
	joints, ok := ref.(types.Joints)
	if !ok {
		return fmt.Errorf("%w: constraint %s expects a joint reference, got %s",
			ErrReferenceTypeMismatch, c.config.Name, ref.ReferenceType())
	}

	vel := make([]float64, c.NVariables())
	acc := make([]float64, c.NVariables())
	for i, name := range c.config.JointNames {
		s, err := joints.Get(name)
		if err != nil {
			return fmt.Errorf("%w: constraint %s: joint %s missing from reference",
				ErrInvalidReference, c.config.Name, name)
		}
		vel[i] = s.Speed
		acc[i] = s.Acceleration
	}
	c.velRef = vel
	c.accRef = acc
	return nil
}
