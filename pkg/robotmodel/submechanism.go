package robotmodel

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Submechanism describes which joints of the tree are driven by actuators.
// Joints not listed are passive.
type Submechanism struct {
	Name           string   `yaml:"name"`
	ActuatedJoints []string `yaml:"actuated_joints"`
}

// LoadSubmechanism reads a sub-mechanism description from a YAML file or inline document
func LoadSubmechanism(source string) (*Submechanism, error) {
	data := []byte(source)
	if !strings.Contains(source, "\n") && !strings.Contains(source, ":") {
		var err error
		if data, err = os.ReadFile(source); err != nil {
			return nil, fmt.Errorf("failed to read sub-mechanism file: %w", err)
		}
	}

	var sub Submechanism
	if err := yaml.Unmarshal(data, &sub); err != nil {
		return nil, fmt.Errorf("failed to parse sub-mechanism: %w", err)
	}
	if len(sub.ActuatedJoints) == 0 {
		return nil, fmt.Errorf("sub-mechanism %q lists no actuated joints", sub.Name)
	}
	return &sub, nil
}

// apply returns the actuated joints in tree order
func (s *Submechanism) apply(treeJoints []string) ([]string, error) {
	listed := make(map[string]bool, len(s.ActuatedJoints))
	for _, j := range s.ActuatedJoints {
		if listed[j] {
			return nil, fmt.Errorf("sub-mechanism %q lists joint %s twice", s.Name, j)
		}
		listed[j] = true
	}

	actuated := make([]string, 0, len(s.ActuatedJoints))
	for _, j := range treeJoints {
		if listed[j] {
			actuated = append(actuated, j)
			delete(listed, j)
		}
	}
	if len(listed) > 0 {
		unknown := make([]string, 0, len(listed))
		for j := range listed {
			unknown = append(unknown, j)
		}
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: sub-mechanism %q lists %s", ErrUnknownJoint, s.Name, strings.Join(unknown, ", "))
	}
	return actuated, nil
}
