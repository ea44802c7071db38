package validation

import (
	"fmt"

	"github.com/wholebody/wbc/pkg/types"
)

// ValidateSceneFile validates a loaded scene file. Robot names are checked later
// when the model is configured.
func ValidateSceneFile(file *types.SceneFile) *ValidationResult {
	result := &ValidationResult{Valid: true}

	switch file.Scene.Type {
	case types.SceneTypeAccelerationReducedTSID, types.SceneTypeVelocity:
	case "":
		result.AddError("config", "scene.type", "scene type is required", ValidationLevelError)
	default:
		result.AddError("config", "scene.type", fmt.Sprintf("unknown scene type %q", file.Scene.Type), ValidationLevelError)
	}
	if file.Scene.IntegrationDt < 0 {
		result.AddError("config", "scene.integration_dt", "integration step must be non-negative", ValidationLevelError)
	}
	if file.Scene.ForceRegularization < 0 || file.Scene.TorqueRegularization < 0 {
		result.AddError("config", "scene", "regularization factors must be non-negative", ValidationLevelError)
	}

	validateRobotModel(file.RobotModel, result)
	validateSolver(file.Solver, result)
	validateJointWeights("joint_weights", file.JointWeights, result)
	validateJointWeights("actuated_joint_weights", file.ActuatedJointWeights, result)

	validator := NewConstraintValidator(nil)
	result.Merge(validator.ValidateMultiple(file.Constraints))

	known := make(map[string]bool, len(file.Constraints))
	for _, c := range file.Constraints {
		known[c.Name] = true
	}
	for name := range file.References {
		if !known[name] {
			result.AddError(name, "references", "reference for unknown constraint", ValidationLevelError)
		}
	}
	return result
}

func validateRobotModel(m types.RobotModelFileConfig, result *ValidationResult) {
	if m.File == "" {
		result.AddError("config", "robot_model.file", "robot description file is required", ValidationLevelError)
	}
	seen := make(map[string]bool, len(m.ContactPoints))
	for _, cp := range m.ContactPoints {
		if cp.Name == "" {
			result.AddError("config", "robot_model.contact_points", "contact point name is required", ValidationLevelError)
			continue
		}
		if seen[cp.Name] {
			result.AddError(cp.Name, "contact_points", "duplicate contact point", ValidationLevelError)
		}
		seen[cp.Name] = true
		if cp.Mu < 0 || cp.Wx < 0 || cp.Wy < 0 {
			result.AddError(cp.Name, "contact_points", "friction and support extents must be non-negative", ValidationLevelError)
		}
	}
	if m.FloatingBase && len(m.ContactPoints) == 0 {
		result.AddError("config", "robot_model.contact_points", "floating base robot without contact points", ValidationLevelWarning)
	}
}

func validateSolver(s types.SolverConfig, result *ValidationResult) {
	if s.MaxIterations < 0 {
		result.AddError("config", "solver.max_iterations", "must be non-negative", ValidationLevelError)
	}
	if s.Damping < 0 {
		result.AddError("config", "solver.damping", "must be non-negative", ValidationLevelError)
	}
	if s.RankTolerance < 0 || s.FeasibilityTolerance < 0 {
		result.AddError("config", "solver", "tolerances must be non-negative", ValidationLevelError)
	}
}

func validateJointWeights(field string, w map[string]float64, result *ValidationResult) {
	for name, v := range w {
		if v < 0 {
			result.AddError(name, field, "joint weight must be non-negative", ValidationLevelError)
		}
	}
}
