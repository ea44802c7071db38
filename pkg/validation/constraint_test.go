package validation_test

import (
	"errors"
	"testing"

	"github.com/wholebody/wbc/pkg/types"
	"github.com/wholebody/wbc/pkg/validation"
)

type fakeModel struct {
	frames map[string]bool
	joints map[string]int
}

func (m *fakeModel) HasFrame(name string) bool { return m.frames[name] }

func (m *fakeModel) JointIndex(name string) (int, error) {
	if i, ok := m.joints[name]; ok {
		return i, nil
	}
	return -1, errors.New("unknown joint")
}

func cartesian(name string) types.ConstraintConfig {
	return types.ConstraintConfig{
		Name:       name,
		Type:       types.ConstraintTypeCartesian,
		Root:       "world",
		Tip:        "base",
		RefFrame:   "world",
		Weights:    []float64{1, 1, 1, 1, 1, 1},
		Activation: 1,
	}
}

func TestConstraintValidator_Validate(t *testing.T) {
	validator := validation.NewConstraintValidator(nil)

	tests := []struct {
		name          string
		modify        func(c *types.ConstraintConfig)
		expectInvalid bool
		expectIssue   bool
		field         string
		level         validation.ValidationLevel
	}{
		{
			name:   "valid cartesian constraint",
			modify: func(c *types.ConstraintConfig) {},
		},
		{
			name:          "missing name",
			modify:        func(c *types.ConstraintConfig) { c.Name = "" },
			expectInvalid: true,
			expectIssue:   true,
			field:         "name",
			level:         validation.ValidationLevelError,
		},
		{
			name:          "name with spaces",
			modify:        func(c *types.ConstraintConfig) { c.Name = "base pose" },
			expectInvalid: true,
			expectIssue:   true,
			field:         "name",
			level:         validation.ValidationLevelError,
		},
		{
			name:          "negative priority",
			modify:        func(c *types.ConstraintConfig) { c.Priority = -1 },
			expectInvalid: true,
			expectIssue:   true,
			field:         "priority",
			level:         validation.ValidationLevelError,
		},
		{
			name:          "missing tip",
			modify:        func(c *types.ConstraintConfig) { c.Tip = "" },
			expectInvalid: true,
			expectIssue:   true,
			field:         "tip",
			level:         validation.ValidationLevelError,
		},
		{
			name:          "wrong weight count",
			modify:        func(c *types.ConstraintConfig) { c.Weights = []float64{1, 1, 1} },
			expectInvalid: true,
			expectIssue:   true,
			field:         "weights",
			level:         validation.ValidationLevelError,
		},
		{
			name:          "negative weight",
			modify:        func(c *types.ConstraintConfig) { c.Weights[2] = -1 },
			expectInvalid: true,
			expectIssue:   true,
			field:         "weights",
			level:         validation.ValidationLevelError,
		},
		{
			name:        "activation out of range",
			modify:      func(c *types.ConstraintConfig) { c.Activation = 1.5 },
			expectIssue: true,
			field:       "activation",
			level:       validation.ValidationLevelWarning,
		},
		{
			name:        "zero activation",
			modify:      func(c *types.ConstraintConfig) { c.Activation = 0 },
			expectIssue: true,
			field:       "activation",
			level:       validation.ValidationLevelInfo,
		},
		{
			name:          "unknown type",
			modify:        func(c *types.ConstraintConfig) { c.Type = "wrench" },
			expectInvalid: true,
			expectIssue:   true,
			field:         "type",
			level:         validation.ValidationLevelError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := cartesian("base_pose")
			tt.modify(&cfg)

			result := validator.Validate(cfg)

			if tt.expectInvalid == result.Valid {
				t.Errorf("expected valid=%v, got %v: %v", !tt.expectInvalid, result.Valid, result.Errors)
			}

			if !tt.expectIssue {
				if len(result.Errors) > 0 {
					t.Errorf("expected no issues, got: %v", result.Errors)
				}
				return
			}

			found := false
			for _, err := range result.Errors {
				if err.Field == tt.field && err.Level == tt.level {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("expected %s issue for field %s, got %v", tt.level, tt.field, result.Errors)
			}
		})
	}
}

func TestConstraintValidator_JointConstraint(t *testing.T) {
	validator := validation.NewConstraintValidator(nil)

	cfg := types.ConstraintConfig{
		Name:       "posture",
		Type:       types.ConstraintTypeJoint,
		JointNames: []string{"knee", "knee"},
		Weights:    []float64{1, 1},
		Activation: 1,
	}
	result := validator.Validate(cfg)
	if result.Valid {
		t.Error("expected duplicate joint names to be rejected")
	}

	cfg.JointNames = nil
	cfg.Weights = nil
	result = validator.Validate(cfg)
	if result.Valid {
		t.Error("expected a joint constraint without joints to be rejected")
	}
}

func TestConstraintValidator_WithModel(t *testing.T) {
	model := &fakeModel{
		frames: map[string]bool{"world": true, "base": true},
		joints: map[string]int{"knee": 0},
	}
	validator := validation.NewConstraintValidator(model)

	if result := validator.Validate(cartesian("base_pose")); !result.Valid {
		t.Errorf("expected known frames to pass, got %v", result.Errors)
	}

	cfg := cartesian("foot_pose")
	cfg.Tip = "foot"
	if result := validator.Validate(cfg); result.Valid {
		t.Error("expected unknown frame to be rejected")
	}

	joint := types.ConstraintConfig{
		Name:       "posture",
		Type:       types.ConstraintTypeJoint,
		JointNames: []string{"knee", "hip"},
		Weights:    []float64{1, 1},
		Activation: 1,
	}
	result := validator.Validate(joint)
	if result.Valid {
		t.Error("expected unknown joint to be rejected")
	}
	if len(result.Filter(validation.ValidationLevelError)) != 1 {
		t.Errorf("expected exactly one error, got %v", result.Errors)
	}
}

func TestConstraintValidator_ValidateMultiple(t *testing.T) {
	validator := validation.NewConstraintValidator(nil)

	result := validator.ValidateMultiple(nil)
	if result.Valid {
		t.Error("expected empty constraint list to be rejected")
	}

	result = validator.ValidateMultiple([]types.ConstraintConfig{cartesian("a"), cartesian("b"), cartesian("a")})
	if result.Valid {
		t.Error("expected duplicate names to be rejected")
	}
	if result.Summary() == "" {
		t.Error("expected a non-empty summary")
	}
}
