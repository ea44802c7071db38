// Package cli provides the command-line interface for the whole-body controller
package cli

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/wholebody/wbc/pkg/logger"
)

// CLI holds the command tree and its output streams
type CLI struct {
	config   *Config
	settings *viper.Viper
	rootCmd  *cobra.Command
	logger   logger.Logger
	console  *logger.ConsoleLogger
	output   io.Writer
	errorOut io.Writer
}

// NewCLI creates a new CLI instance with the given configuration
func NewCLI(config *Config) *CLI {
	if config == nil {
		config = NewConfig()
	}

	cli := &CLI{
		config:   config,
		settings: newSettings(),
		output:   os.Stdout,
		errorOut: os.Stderr,
		console:  logger.NewConsoleLogger(),
	}

	cli.setupCommands()
	return cli
}

// NewCLIWithOutput creates a CLI with custom output writers (for testing)
func NewCLIWithOutput(config *Config, output, errorOut io.Writer) *CLI {
	cli := NewCLI(config)
	cli.output = output
	cli.errorOut = errorOut
	cli.console = logger.NewConsoleLoggerWithOutput(output, errorOut)
	cli.rootCmd.SetOut(output)
	cli.rootCmd.SetErr(errorOut)
	return cli
}

// Execute runs the CLI with the given arguments
func (c *CLI) Execute(args []string) error {
	return c.ExecuteContext(context.Background(), args)
}

// ExecuteContext runs the CLI with context support
func (c *CLI) ExecuteContext(ctx context.Context, args []string) error {
	c.rootCmd.SetArgs(args)
	return c.rootCmd.ExecuteContext(ctx)
}

func (c *CLI) setupCommands() {
	c.rootCmd = &cobra.Command{
		Use:   "wbc",
		Short: "Whole-body control scenes and solver",
		Long: `wbc builds prioritized whole-body control problems from scene files and
solves them with a hierarchical least squares solver.

Scene files describe the robot model, the constraints with their priorities
and the references. Commands validate scenes, run control cycles offline and
watch scene files while they are edited.`,

		PersistentPreRunE: c.initializeConfig,
		SilenceUsage:      true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := c.rootCmd.PersistentFlags()
	flags.StringVar(&c.config.SettingsFile, "settings", "", "settings file (default: ./wbc.yaml)")
	flags.StringVarP(&c.config.LogLevel, "log-level", "v", "info", "log level (debug, info, warn, error)")
	flags.StringVar(&c.config.LogFile, "log-file", "", "also write logs to this file")
	_ = c.settings.BindPFlag(keyLogLevel, flags.Lookup("log-level"))
	_ = c.settings.BindPFlag(keyLogFile, flags.Lookup("log-file"))

	c.rootCmd.Version = c.config.Version
	c.rootCmd.SetVersionTemplate("wbc v{{.Version}}\n")

	c.rootCmd.AddCommand(c.newValidateCmd())
	c.rootCmd.AddCommand(c.newSolveCmd())
	c.rootCmd.AddCommand(c.newWatchCmd())
	c.rootCmd.AddCommand(c.newModelCmd())
	c.rootCmd.AddCommand(c.newInitCmd())
	c.rootCmd.AddCommand(c.newHistoryCmd())
	c.rootCmd.AddCommand(c.newVersionCmd())
}

func (c *CLI) initializeConfig(cmd *cobra.Command, args []string) error {
	if err := loadSettings(c.settings, c.config.SettingsFile); err != nil {
		return err
	}
	c.config.LogLevel = c.settings.GetString(keyLogLevel)
	c.config.LogFile = c.settings.GetString(keyLogFile)

	if c.config.LogFile != "" {
		c.logger = logger.CreateLogger(c.config.LogFile, c.config.LogLevel)
	} else {
		c.logger = logger.CreateLoggerWithOutput(c.config.LogLevel, c.errorOut)
	}
	if used := c.settings.ConfigFileUsed(); used != "" {
		c.logger.Debug("Using settings file", logger.WithField("file", used))
	}
	return nil
}

func (c *CLI) printSuccess(message string) {
	c.console.Success(message)
}

func (c *CLI) printError(message string) {
	c.console.Error(message)
}

func (c *CLI) printInfo(message string) {
	c.console.Info(message)
}

func (c *CLI) printWarning(message string) {
	c.console.Warn(message)
}

// Execute runs the wbc command line with the process arguments
func Execute(version string) error {
	config := NewConfig()
	config.Version = version
	return NewCLI(config).Execute(os.Args[1:])
}
