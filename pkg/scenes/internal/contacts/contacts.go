// Package contacts collects the contact quantities shared by the scene formulations
package contacts

import (
	"fmt"

	"github.com/wholebody/wbc/pkg/core"
	"github.com/wholebody/wbc/pkg/types"
	"gonum.org/v1/gonum/mat"
)

// WrenchSize is the number of QP variables per contact
const WrenchSize = 6

// Set is the contact configuration of a robot model at one instant
type Set struct {
	Names    []string
	Contacts []types.ActiveContact
	// Jacobians are body Jacobians of each contact frame relative to the world frame
	Jacobians []*mat.Dense
}

// Collect reads the contacts of model together with their Jacobians
func Collect(model core.RobotModel) (*Set, error) {
	active := model.ActiveContacts()
	s := &Set{
		Names:     append([]string(nil), active.Names...),
		Contacts:  append([]types.ActiveContact(nil), active.Elements...),
		Jacobians: make([]*mat.Dense, active.Len()),
	}
	for i, name := range s.Names {
		jac, err := model.BodyJacobian(model.WorldFrame(), name)
		if err != nil {
			return nil, fmt.Errorf("contact %s: %w", name, err)
		}
		s.Jacobians[i] = jac
	}
	return s, nil
}

// Len returns the number of contact points, active or not
func (s *Set) Len() int {
	return len(s.Names)
}

// NumActive returns the number of contact points in contact
func (s *Set) NumActive() int {
	n := 0
	for _, c := range s.Contacts {
		if c.Active {
			n++
		}
	}
	return n
}

// Unactuated returns the indices of the joints that are not actuated, in joint order
func Unactuated(model core.RobotModel) []int {
	actuated := make(map[string]bool)
	for _, n := range model.ActuatedJointNames() {
		actuated[n] = true
	}
	var out []int
	for i, n := range model.JointNames() {
		if !actuated[n] {
			out = append(out, i)
		}
	}
	return out
}

// WeightOf returns the weight for name, or fallback when the vector does not contain it
func WeightOf(w types.JointWeights, name string, fallback float64) float64 {
	if i := w.Index(name); i >= 0 {
		return w.Elements[i]
	}
	return fallback
}
