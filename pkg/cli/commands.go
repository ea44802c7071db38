package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/wholebody/wbc/internal/engine"
	"github.com/wholebody/wbc/pkg/config"
	"github.com/wholebody/wbc/pkg/recorder"
	"github.com/wholebody/wbc/pkg/robotmodel"
	"github.com/wholebody/wbc/pkg/scenefiles"
)

func (c *CLI) newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scene|dir|glob>...",
		Short: "Validate scene files",
		Long: `Load every scene file, configure its robot model and scene and report the
result. Directories are searched for *.yaml, *.yml and *.json files and glob
patterns may use ** to cross directories. Files are checked concurrently.`,
		Args: cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return bindFlags(c.settings, cmd, map[string]string{keyParallel: "parallel"})
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runValidate(cmd, args)
		},
	}
	cmd.Flags().Int("parallel", 0, "maximum files validated at once (default: number of CPUs)")
	return cmd
}

func (c *CLI) runValidate(cmd *cobra.Command, args []string) error {
	paths, err := scenefiles.Expand(args)
	if err != nil {
		return err
	}
	reports, err := engine.ValidateAll(cmd.Context(), paths, c.settings.GetInt(keyParallel), c.logger)
	if err != nil {
		return err
	}

	failed := 0
	for _, r := range reports {
		if r.Err != nil {
			failed++
			c.printError(fmt.Sprintf("%s: %v", r.Path, r.Err))
			continue
		}
		c.printSuccess(fmt.Sprintf("%s: %d constraints, %d joints (%d actuated)",
			r.Path, r.Constraints, r.Joints, r.Actuated))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d scene files are invalid", failed, len(reports))
	}
	return nil
}

func (c *CLI) newModelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "model <scene>",
		Short: "Show the robot model of a scene file",
		Long:  `Configure the robot model of a scene file and list its joints and contact points.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runModel(args[0])
		},
	}
}

func (c *CLI) runModel(path string) error {
	mgr := config.NewManager()
	file, err := mgr.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("failed to load scene: %w", err)
	}
	model := robotmodel.New(c.logger)
	if err := model.Configure(mgr.RobotModelConfig(file)); err != nil {
		return fmt.Errorf("failed to configure robot model: %w", err)
	}

	actuated := make(map[string]bool)
	for _, n := range model.ActuatedJointNames() {
		actuated[n] = true
	}
	independent := make(map[string]bool)
	for _, n := range model.IndependentJointNames() {
		independent[n] = true
	}

	c.printInfo(fmt.Sprintf("World frame: %s, floating base: %t", model.WorldFrame(), model.FloatingBase()))

	w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tJOINT\tACTUATED\tINDEPENDENT")
	fmt.Fprintln(w, "-----\t-----\t--------\t-----------")
	for i, n := range model.JointNames() {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i, n, yesNo(actuated[n]), yesNo(independent[n]))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	contacts := model.ActiveContacts()
	if contacts.Len() == 0 {
		return nil
	}
	fmt.Fprintln(c.output)
	w = tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CONTACT\tACTIVE\tMU\tWX\tWY")
	fmt.Fprintln(w, "-------\t------\t--\t--\t--")
	for i, n := range contacts.Names {
		cp := contacts.Elements[i]
		fmt.Fprintf(w, "%s\t%s\t%g\t%g\t%g\n", n, yesNo(cp.Active), cp.Mu, cp.Wx, cp.Wy)
	}
	return w.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func (c *CLI) newHistoryCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "history <run-id>",
		Short: "Show recorded cycles of a run",
		Long:  `List the cycles that "wbc solve --record" stored for a run.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				dbPath = c.settings.GetString(keyRecord)
			}
			if dbPath == "" {
				return fmt.Errorf("no recording database given, use --db or set %q", keyRecord)
			}
			return c.runHistory(dbPath, args[0])
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "recording database")
	return cmd
}

func (c *CLI) runHistory(dbPath, runID string) error {
	rec, err := recorder.Open(dbPath)
	if err != nil {
		return err
	}
	defer rec.Close()

	cycles, err := rec.Cycles(runID)
	if err != nil {
		return err
	}
	if len(cycles) == 0 {
		c.printWarning(fmt.Sprintf("No cycles recorded for run %s", runID))
		return nil
	}

	w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SEQ\tSTATUS\tDURATION\tERROR")
	fmt.Fprintln(w, "---\t------\t--------\t-----")
	for _, cy := range cycles {
		status := color.GreenString("solved")
		if !cy.Solved {
			status = color.RedString("failed")
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", cy.Seq, status, cy.Duration, strings.TrimSpace(cy.Error))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	failures, err := rec.FailureCount(runID)
	if err != nil {
		return err
	}
	c.printInfo(fmt.Sprintf("%d cycles, %d failed", len(cycles), failures))
	return nil
}

func (c *CLI) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of wbc",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(c.output, "wbc v%s\n", c.config.Version)
		},
	}
}
