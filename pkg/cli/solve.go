package cli

import (
	"fmt"
	"math"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/wholebody/wbc/internal/engine"
	"github.com/wholebody/wbc/pkg/config"
	"github.com/wholebody/wbc/pkg/notifier"
	"github.com/wholebody/wbc/pkg/types"
	"gonum.org/v1/gonum/floats"
)

func (c *CLI) newSolveCmd() *cobra.Command {
	var stopOnError bool

	cmd := &cobra.Command{
		Use:   "solve <scene>",
		Short: "Run control cycles of a scene file",
		Long: `Build the scene described by a scene file, run update/solve cycles starting
from its state sample and print the last joint command and task status.
Commanded positions and speeds are fed back as the state of the next cycle.`,
		Args: cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return bindFlags(c.settings, cmd, map[string]string{
				keyCycles:        "cycles",
				keyRecord:        "record",
				keyNotifications: "notify",
			})
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runSolve(cmd, args[0], stopOnError)
		},
	}

	flags := cmd.Flags()
	flags.IntP("cycles", "n", 1, "number of control cycles")
	flags.String("record", "", "record cycles into this SQLite database")
	flags.Bool("notify", false, "send desktop notifications on failures")
	flags.BoolVar(&stopOnError, "stop-on-error", false, "stop at the first failed cycle")
	return cmd
}

func (c *CLI) runSolve(cmd *cobra.Command, path string, stopOnError bool) error {
	mgr := config.NewManager()
	file, err := mgr.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("failed to load scene: %w", err)
	}

	factory := engine.NewDependencyFactory(mgr, c.logger)
	ctrl, err := factory.CreateController(file)
	if err != nil {
		return err
	}

	rec, err := factory.CreateRecorder(c.settings.GetString(keyRecord))
	if err != nil {
		return err
	}
	if rec != nil {
		defer rec.Close()
	}

	opts := engine.RunnerOptions{Recorder: rec, StopOnError: stopOnError}
	if c.settings.GetBool(keyNotifications) {
		opts.Notifier = notifier.New(notifier.Config{Enabled: true}, c.logger)
	} else {
		opts.Notifier = factory.CreateNotifier(file)
	}

	runner := engine.NewRunner(ctrl, opts, c.logger)
	summary, err := runner.Run(cmd.Context(), c.settings.GetInt(keyCycles))
	if err != nil {
		return err
	}

	if summary.Failures > 0 {
		c.printWarning(fmt.Sprintf("%d of %d cycles failed, last error: %v", summary.Failures, summary.Cycles, summary.LastErr))
	} else {
		c.printSuccess(fmt.Sprintf("%d cycles solved in %s", summary.Cycles, summary.Duration))
	}
	if rec != nil {
		c.printInfo(fmt.Sprintf("Recorded run %s", summary.RunID))
	}

	if err := c.printCommand(ctrl.Scene.SolverOutput()); err != nil {
		return err
	}
	return c.printTasksStatus(ctrl.Scene.TasksStatus())
}

func formatValue(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func (c *CLI) printCommand(cmd types.Joints) error {
	if cmd.Len() == 0 {
		return nil
	}
	w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "JOINT\tPOSITION\tSPEED\tACCELERATION\tEFFORT")
	fmt.Fprintln(w, "-----\t--------\t-----\t------------\t------")
	for i, n := range cmd.Names {
		s := cmd.Elements[i]
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", n,
			formatValue(s.Position), formatValue(s.Speed), formatValue(s.Acceleration), formatValue(s.Effort))
	}
	return w.Flush()
}

func (c *CLI) printTasksStatus(status types.TasksStatus) error {
	if status.Len() == 0 {
		return nil
	}
	fmt.Fprintln(c.output)
	w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TASK\tPRIORITY\tACTIVATION\tRESIDUAL")
	fmt.Fprintln(w, "----\t--------\t----------\t--------")
	for i, n := range status.Names {
		s := status.Elements[i]
		fmt.Fprintf(w, "%s\t%d\t%g\t%s\n", n, s.Config.Priority, s.Activation, formatValue(floats.Norm(s.Residual, 2)))
	}
	return w.Flush()
}
