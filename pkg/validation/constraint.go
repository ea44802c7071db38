// Package validation provides constraint and scene file validation
package validation

import (
	"fmt"
	"math"
	"strings"

	"github.com/wholebody/wbc/pkg/types"
)

// Model is the part of a robot model needed to check frame and joint names
type Model interface {
	HasFrame(name string) bool
	JointIndex(name string) (int, error)
}

// ConstraintValidator validates constraint configs
type ConstraintValidator struct {
	model Model
}

// NewConstraintValidator creates a validator. model may be nil, in which case
// frame and joint names are not checked.
func NewConstraintValidator(model Model) *ConstraintValidator {
	return &ConstraintValidator{model: model}
}

// ValidationError represents a validation error
type ValidationError struct {
	Constraint string
	Field      string
	Message    string
	Level      ValidationLevel
}

// ValidationLevel represents error severity
type ValidationLevel string

const (
	ValidationLevelError   ValidationLevel = "error"
	ValidationLevelWarning ValidationLevel = "warning"
	ValidationLevelInfo    ValidationLevel = "info"
)

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s.%s: %s", e.Level, e.Constraint, e.Field, e.Message)
}

// ValidationResult contains validation results
type ValidationResult struct {
	Valid  bool
	Errors []ValidationError
}

// AddError adds an error to the validation result
func (r *ValidationResult) AddError(constraint, field, message string, level ValidationLevel) {
	r.Errors = append(r.Errors, ValidationError{
		Constraint: constraint,
		Field:      field,
		Message:    message,
		Level:      level,
	})
	if level == ValidationLevelError {
		r.Valid = false
	}
}

// Merge appends the issues of other
func (r *ValidationResult) Merge(other *ValidationResult) {
	r.Errors = append(r.Errors, other.Errors...)
	if !other.Valid {
		r.Valid = false
	}
}

// Filter returns the issues of the given level
func (r *ValidationResult) Filter(level ValidationLevel) []ValidationError {
	var out []ValidationError
	for _, e := range r.Errors {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

// Summary joins the error-level issues into one line
func (r *ValidationResult) Summary() string {
	errs := r.Filter(ValidationLevelError)
	parts := make([]string, 0, len(errs))
	for i := range errs {
		parts = append(parts, errs[i].Error())
	}
	return strings.Join(parts, "; ")
}

// Validate validates a single constraint config
func (v *ConstraintValidator) Validate(cfg types.ConstraintConfig) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if cfg.Name == "" {
		result.AddError("", "name", "constraint name is required", ValidationLevelError)
		return result
	}
	if strings.ContainsAny(cfg.Name, " \t\n") {
		result.AddError(cfg.Name, "name", "constraint name cannot contain whitespace", ValidationLevelError)
	}
	if cfg.Priority < 0 {
		result.AddError(cfg.Name, "priority", fmt.Sprintf("priority must be non-negative, got %d", cfg.Priority), ValidationLevelError)
	}

	switch cfg.Type {
	case types.ConstraintTypeCartesian:
		v.validateCartesian(cfg, result)
	case types.ConstraintTypeJoint:
		v.validateJoint(cfg, result)
	case types.ConstraintTypeCOM:
	default:
		result.AddError(cfg.Name, "type", fmt.Sprintf("unknown constraint type %q", cfg.Type), ValidationLevelError)
		return result
	}

	v.validateWeights(cfg, result)
	v.validateActivation(cfg, result)
	return result
}

// ValidateMultiple validates a full constraint set including name uniqueness
func (v *ConstraintValidator) ValidateMultiple(configs []types.ConstraintConfig) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if len(configs) == 0 {
		result.AddError("config", "constraints", "no constraints defined", ValidationLevelError)
		return result
	}

	names := make(map[string]bool)
	for _, cfg := range configs {
		if cfg.Name != "" && names[cfg.Name] {
			result.AddError(cfg.Name, "name", "duplicate constraint name", ValidationLevelError)
		}
		names[cfg.Name] = true

		result.Merge(v.Validate(cfg))
	}
	return result
}

func (v *ConstraintValidator) validateCartesian(cfg types.ConstraintConfig, result *ValidationResult) {
	frames := []struct {
		field string
		value string
	}{
		{"root", cfg.Root},
		{"tip", cfg.Tip},
		{"ref_frame", cfg.RefFrame},
	}
	for _, f := range frames {
		if f.value == "" {
			result.AddError(cfg.Name, f.field, "frame is required for cartesian constraints", ValidationLevelError)
			continue
		}
		if v.model != nil && !v.model.HasFrame(f.value) {
			result.AddError(cfg.Name, f.field, fmt.Sprintf("frame %s is not part of the robot model", f.value), ValidationLevelError)
		}
	}
	if cfg.Root != "" && cfg.Root == cfg.Tip {
		result.AddError(cfg.Name, "tip", "root and tip must differ", ValidationLevelError)
	}
	if len(cfg.JointNames) > 0 {
		result.AddError(cfg.Name, "joint_names", "joint names are ignored for cartesian constraints", ValidationLevelWarning)
	}
}

func (v *ConstraintValidator) validateJoint(cfg types.ConstraintConfig, result *ValidationResult) {
	if len(cfg.JointNames) == 0 {
		result.AddError(cfg.Name, "joint_names", "at least one joint is required for joint constraints", ValidationLevelError)
		return
	}
	seen := make(map[string]bool, len(cfg.JointNames))
	for _, j := range cfg.JointNames {
		if seen[j] {
			result.AddError(cfg.Name, "joint_names", fmt.Sprintf("duplicate joint %s", j), ValidationLevelError)
		}
		seen[j] = true
		if v.model != nil {
			if _, err := v.model.JointIndex(j); err != nil {
				result.AddError(cfg.Name, "joint_names", fmt.Sprintf("joint %s is not part of the robot model", j), ValidationLevelError)
			}
		}
	}
	if cfg.Root != "" || cfg.Tip != "" {
		result.AddError(cfg.Name, "root", "frames are ignored for joint constraints", ValidationLevelWarning)
	}
}

func (v *ConstraintValidator) validateWeights(cfg types.ConstraintConfig, result *ValidationResult) {
	if len(cfg.Weights) != cfg.NVariables() {
		result.AddError(cfg.Name, "weights",
			fmt.Sprintf("expected %d weights, got %d", cfg.NVariables(), len(cfg.Weights)), ValidationLevelError)
		return
	}
	for i, w := range cfg.Weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			result.AddError(cfg.Name, "weights", fmt.Sprintf("weight %d is not finite", i), ValidationLevelError)
		} else if w < 0 {
			result.AddError(cfg.Name, "weights", fmt.Sprintf("weight %d is negative", i), ValidationLevelError)
		}
	}
}

func (v *ConstraintValidator) validateActivation(cfg types.ConstraintConfig, result *ValidationResult) {
	switch {
	case math.IsNaN(cfg.Activation):
		result.AddError(cfg.Name, "activation", "activation is not a number", ValidationLevelError)
	case cfg.Activation < 0 || cfg.Activation > 1:
		result.AddError(cfg.Name, "activation",
			fmt.Sprintf("activation %g is outside [0, 1] and is used unclamped", cfg.Activation), ValidationLevelWarning)
	case cfg.Activation == 0:
		result.AddError(cfg.Name, "activation", "activation is 0, the constraint has no effect", ValidationLevelInfo)
	}
}
