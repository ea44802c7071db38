package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/wholebody/wbc/internal/engine"
	"github.com/wholebody/wbc/pkg/config"
	"github.com/wholebody/wbc/pkg/logger"
	"github.com/wholebody/wbc/pkg/notifier"
)

func (c *CLI) newWatchCmd() *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch <scene>",
		Short: "Re-solve a scene file whenever it changes",
		Long: `Watch a scene file and rebuild its scene on every change. Each successful reload
runs the configured number of cycles and prints their summary; reload and
solve failures are reported as desktop notifications when enabled.`,
		Args: cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return bindFlags(c.settings, cmd, map[string]string{
				keyCycles:        "cycles",
				keyNotifications: "notify",
			})
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runWatch(cmd.Context(), args[0], debounce)
		},
	}

	flags := cmd.Flags()
	flags.IntP("cycles", "n", 1, "number of control cycles per reload")
	flags.Bool("notify", false, "send desktop notifications")
	flags.DurationVar(&debounce, "debounce", 500*time.Millisecond, "wait this long after a change before reloading")
	return cmd
}

func (c *CLI) runWatch(ctx context.Context, path string, debounce time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log := c.logger.WithComponent("watch")
	notify := notifier.New(notifier.Config{
		Enabled:  c.settings.GetBool(keyNotifications),
		Cooldown: 2 * time.Second,
	}, c.logger)

	rm := config.NewReloadManager(path, c.logger)
	rm.SetDebouncePeriod(debounce)
	rm.AddCallback(func(event config.ReloadEvent) {
		if event.Error != nil {
			c.printError(fmt.Sprintf("Reload failed: %v", event.Error))
			notify.NotifyReloadFailure(event.Path, event.Error)
			return
		}
		c.printInfo(fmt.Sprintf("Loaded %s (modified %s)",
			filepath.Base(rm.GetConfigPath()), rm.GetLastReloadTime().Format("15:04:05")))
		notify.NotifyReload(event.Path, len(event.Config.Constraints))
		c.solveReloaded(ctx, event, notify, log)
	})

	if err := rm.StartWatching(); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}
	defer func() {
		rm.RemoveAllCallbacks()
		if err := rm.StopWatching(); err != nil {
			c.printWarning(fmt.Sprintf("Stop watching: %v", err))
		}
	}()

	c.printInfo(fmt.Sprintf("Watching %s", rm.GetConfigPath()))
	rm.TriggerReload()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		c.printInfo(fmt.Sprintf("Received signal: %s", sig))
	case <-ctx.Done():
	}

	c.printSuccess("Stopped watching")
	return nil
}

func (c *CLI) solveReloaded(ctx context.Context, event config.ReloadEvent, notify *notifier.SolveNotifier, log logger.Logger) {
	factory := engine.NewDependencyFactory(config.NewManagerAt(event.Path), c.logger)
	ctrl, err := factory.CreateController(event.Config)
	if err != nil {
		c.printError(fmt.Sprintf("Scene rejected: %v", err))
		notify.NotifyReloadFailure(event.Path, err)
		return
	}

	runner := engine.NewRunner(ctrl, engine.RunnerOptions{Notifier: notify}, c.logger)
	summary, err := runner.Run(ctx, c.settings.GetInt(keyCycles))
	if err != nil {
		log.Warn("Cycles interrupted", logger.WithError(err))
		return
	}
	if summary.Failures > 0 {
		c.printWarning(fmt.Sprintf("%d of %d cycles failed, last error: %v", summary.Failures, summary.Cycles, summary.LastErr))
		return
	}
	c.printSuccess(fmt.Sprintf("%d cycles solved in %s", summary.Cycles, summary.Duration))
	if err := c.printTasksStatus(ctrl.Scene.TasksStatus()); err != nil {
		log.Warn("Failed to print task status", logger.WithError(err))
	}
}
