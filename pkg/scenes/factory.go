// Package scenes creates WBC scenes by scene type
package scenes

import (
	"errors"
	"fmt"

	"github.com/wholebody/wbc/pkg/core"
	"github.com/wholebody/wbc/pkg/logger"
	"github.com/wholebody/wbc/pkg/scenes/tsid"
	"github.com/wholebody/wbc/pkg/scenes/velocity"
	"github.com/wholebody/wbc/pkg/types"
)

// ErrUnknownSceneType is returned for scene types without an implementation
var ErrUnknownSceneType = errors.New("unknown scene type")

// Types lists the available scene types
func Types() []types.SceneType {
	return []types.SceneType{types.SceneTypeAccelerationReducedTSID, types.SceneTypeVelocity}
}

// New creates the scene selected by settings.Type
func New(settings types.SceneSettings, model core.RobotModel, solver core.QPSolver, log logger.Logger) (core.WbcScene, error) {
	switch settings.Type {
	case types.SceneTypeAccelerationReducedTSID:
		return tsid.New(model, solver, tsid.OptionsFromSettings(settings), log), nil
	case types.SceneTypeVelocity:
		return velocity.New(model, solver, velocity.OptionsFromSettings(settings), log), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSceneType, settings.Type)
	}
}
