// Package config handles scene file loading and management
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wholebody/wbc/pkg/types"
	"github.com/wholebody/wbc/pkg/validation"
	"gopkg.in/yaml.v3"
)

// CurrentVersion is the scene file format version
const CurrentVersion = "1.0"

var (
	// ErrParse is returned when a file is neither valid JSON nor valid YAML
	ErrParse = errors.New("failed to parse config as JSON or YAML")
	// ErrInvalidConfig is returned when a parsed scene file does not validate
	ErrInvalidConfig = errors.New("invalid scene file")
)

// Manager handles configuration operations
type Manager struct {
	configPath string
}

// NewManager creates a new configuration manager
func NewManager() *Manager {
	return &Manager{}
}

// NewManagerAt creates a manager that resolves relative paths against the file at path
func NewManagerAt(path string) *Manager {
	return &Manager{configPath: path}
}

// ConfigPath returns the path of the last loaded file
func (m *Manager) ConfigPath() string {
	return m.configPath
}

// LoadConfig loads a scene file, applies defaults and validates it
func (m *Manager) LoadConfig(path string) (*types.SceneFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	m.configPath = path

	ApplyDefaults(cfg)
	if err := m.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes a scene file, trying JSON first and YAML second
func Parse(data []byte) (*types.SceneFile, error) {
	var cfg types.SceneFile
	if err := json.Unmarshal(data, &cfg); err == nil {
		return &cfg, nil
	}

	cfg = types.SceneFile{}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	return &cfg, nil
}

// ValidateConfig validates a scene file. Warnings do not fail validation.
func (m *Manager) ValidateConfig(cfg *types.SceneFile) error {
	if cfg.Version != CurrentVersion {
		return fmt.Errorf("%w: unsupported config version: %s", ErrInvalidConfig, cfg.Version)
	}
	result := validation.ValidateSceneFile(cfg)
	if !result.Valid {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, result.Summary())
	}
	return nil
}

// ApplyDefaults fills the fields a scene file may omit
func ApplyDefaults(cfg *types.SceneFile) {
	if cfg.Version == "" {
		cfg.Version = CurrentVersion
	}
	if cfg.RobotModel.WorldFrame == "" {
		cfg.RobotModel.WorldFrame = "world"
	}
	for i := range cfg.Constraints {
		c := &cfg.Constraints[i]
		if len(c.Weights) == 0 {
			if n := c.NVariables(); n > 0 {
				c.Weights = make([]float64, n)
				for k := range c.Weights {
					c.Weights[k] = 1
				}
			}
		}
	}
	if cfg.Logging == nil {
		cfg.Logging = &types.LoggingConfig{Level: types.LogLevelInfo}
	} else if cfg.Logging.Level == "" {
		cfg.Logging.Level = types.LogLevelInfo
	}
	if cfg.Notifications == nil {
		enabled := false
		cfg.Notifications = &types.NotificationConfig{Enabled: &enabled}
	}
}

// ResolvePath interprets path relative to the directory of the loaded file.
// Inline documents and absolute paths are returned unchanged.
func (m *Manager) ResolvePath(path string) string {
	if path == "" || filepath.IsAbs(path) || strings.HasPrefix(strings.TrimSpace(path), "<") || m.configPath == "" {
		return path
	}
	return filepath.Join(filepath.Dir(m.configPath), path)
}

// RobotModelConfig converts the robot section of cfg with paths resolved against the loaded file
func (m *Manager) RobotModelConfig(cfg *types.SceneFile) types.RobotModelConfig {
	return cfg.RobotModel.ToRobotModelConfig(m.ResolvePath)
}

// SaveConfig writes cfg as YAML, or as JSON when path ends in .json
func (m *Manager) SaveConfig(path string, cfg *types.SceneFile) error {
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GetDefaultConfig returns a starting point for a new scene file of the given type
func (m *Manager) GetDefaultConfig(sceneType types.SceneType) *types.SceneFile {
	enabled := false
	return &types.SceneFile{
		Version: CurrentVersion,
		Scene: types.SceneSettings{
			Type:          sceneType,
			IntegrationDt: 1e-3,
		},
		RobotModel: types.RobotModelFileConfig{
			File:       "robot.urdf",
			WorldFrame: "world",
		},
		Solver: types.SolverConfig{
			MaxIterations:        100,
			RankTolerance:        1e-9,
			FeasibilityTolerance: 1e-6,
		},
		Constraints: []types.ConstraintConfig{{
			Name:       "joint_posture",
			Type:       types.ConstraintTypeJoint,
			Priority:   0,
			JointNames: []string{"joint_1"},
			Weights:    []float64{1},
			Activation: 1,
		}},
		Notifications: &types.NotificationConfig{Enabled: &enabled},
		Logging:       &types.LoggingConfig{Level: types.LogLevelInfo},
	}
}
