package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/wholebody/wbc/pkg/config"
	"github.com/wholebody/wbc/pkg/types"
)

func (c *CLI) newInitCmd() *cobra.Command {
	var sceneType string
	var force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Create a starter scene file",
		Long: `Write a scene file with one joint posture constraint that can be adapted to a robot.
The format follows the file extension: .json writes JSON, anything else YAML.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "scene.yaml"
			if len(args) > 0 {
				path = args[0]
			}
			return c.runInit(path, types.SceneType(sceneType), force)
		},
	}

	cmd.Flags().StringVarP(&sceneType, "type", "t", string(types.SceneTypeVelocity),
		"scene type (velocity, acceleration_reduced_tsid)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	return cmd
}

func (c *CLI) runInit(path string, sceneType types.SceneType, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists, use --force to overwrite", path)
	}

	mgr := config.NewManager()
	cfg := mgr.GetDefaultConfig(sceneType)
	if err := mgr.ValidateConfig(cfg); err != nil {
		return err
	}
	if err := mgr.SaveConfig(path, cfg); err != nil {
		return err
	}

	c.printSuccess(fmt.Sprintf("Created scene file at %s", path))
	c.printInfo("Point robot_model.file at your URDF and adjust the constraints")
	return nil
}
