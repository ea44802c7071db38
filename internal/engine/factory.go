package engine

import (
	"fmt"

	"github.com/wholebody/wbc/pkg/config"
	"github.com/wholebody/wbc/pkg/core"
	"github.com/wholebody/wbc/pkg/logger"
	"github.com/wholebody/wbc/pkg/notifier"
	"github.com/wholebody/wbc/pkg/recorder"
	"github.com/wholebody/wbc/pkg/robotmodel"
	"github.com/wholebody/wbc/pkg/scenes"
	"github.com/wholebody/wbc/pkg/solvers/hls"
	"github.com/wholebody/wbc/pkg/types"
)

// Controller is a configured robot model, solver and scene built from one scene file
type Controller struct {
	File   *types.SceneFile
	Model  *robotmodel.Model
	Solver *hls.Solver
	Scene  core.WbcScene
}

// DependencyFactory creates the collaborators of a controller.
// Paths in the scene file are resolved by the config manager that loaded it.
type DependencyFactory struct {
	manager *config.Manager
	logger  logger.Logger
}

// NewDependencyFactory creates a new dependency factory
func NewDependencyFactory(manager *config.Manager, log logger.Logger) *DependencyFactory {
	if manager == nil {
		manager = config.NewManager()
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &DependencyFactory{manager: manager, logger: log}
}

// CreateController configures model, solver and scene and applies the joint weights and
// references of the scene file
func (f *DependencyFactory) CreateController(file *types.SceneFile) (*Controller, error) {
	model := robotmodel.New(f.logger)
	if err := model.Configure(f.manager.RobotModelConfig(file)); err != nil {
		return nil, fmt.Errorf("configure robot model: %w", err)
	}

	solver := hls.New(hls.Options{
		MaxIterations:        file.Solver.MaxIterations,
		Damping:              file.Solver.Damping,
		RankTolerance:        file.Solver.RankTolerance,
		FeasibilityTolerance: file.Solver.FeasibilityTolerance,
	}, f.logger)

	scene, err := scenes.New(file.Scene, model, solver, f.logger)
	if err != nil {
		return nil, err
	}
	if err := scene.Configure(file.Constraints); err != nil {
		return nil, fmt.Errorf("configure scene: %w", err)
	}

	if len(file.JointWeights) > 0 {
		if err := scene.SetJointWeights(types.NewJointWeights(file.JointWeights)); err != nil {
			return nil, fmt.Errorf("joint weights: %w", err)
		}
	}
	if len(file.ActuatedJointWeights) > 0 {
		if err := scene.SetActuatedJointWeights(types.NewJointWeights(file.ActuatedJointWeights)); err != nil {
			return nil, fmt.Errorf("actuated joint weights: %w", err)
		}
	}

	for _, c := range file.Constraints {
		ref, ok := file.References[c.Name]
		if !ok {
			continue
		}
		if err := scene.SetReference(c.Name, types.ReferenceFromConfig(ref, c.JointNames)); err != nil {
			return nil, fmt.Errorf("reference %s: %w", c.Name, err)
		}
	}

	return &Controller{File: file, Model: model, Solver: solver, Scene: scene}, nil
}

// CreateRecorder opens a recorder, or returns nil when path is empty
func (f *DependencyFactory) CreateRecorder(path string) (*recorder.Recorder, error) {
	if path == "" {
		return nil, nil
	}
	return recorder.Open(path)
}

// CreateNotifier returns a notifier if the scene file enables notifications, nil otherwise
func (f *DependencyFactory) CreateNotifier(file *types.SceneFile) *notifier.SolveNotifier {
	if file.Notifications == nil || file.Notifications.Enabled == nil || !*file.Notifications.Enabled {
		return nil
	}
	return notifier.New(notifier.Config{Enabled: true}, f.logger)
}
