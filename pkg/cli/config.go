package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config holds the CLI settings shared by all commands
type Config struct {
	// SettingsFile is an explicit wbc.yaml; empty searches the working directory and $HOME/.config/wbc
	SettingsFile string
	LogLevel     string
	LogFile      string
	Version      string
}

// NewConfig creates a CLI configuration with defaults
func NewConfig() *Config {
	return &Config{
		LogLevel: "info",
	}
}

// settings keys shared between flags, wbc.yaml and WBC_* variables
const (
	keyLogLevel      = "log_level"
	keyLogFile       = "log_file"
	keyCycles        = "cycles"
	keyRecord        = "record"
	keyNotifications = "notifications"
	keyParallel      = "parallel"
)

func newSettings() *viper.Viper {
	v := viper.New()
	v.SetDefault(keyLogLevel, "info")
	v.SetDefault(keyCycles, 1)
	v.SetDefault(keyParallel, 0)
	v.SetDefault(keyNotifications, false)

	v.SetEnvPrefix("WBC")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// loadSettings reads the settings file. A missing file in the search path is not an error.
func loadSettings(v *viper.Viper, explicit string) error {
	if explicit != "" {
		v.SetConfigFile(explicit)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read settings %s: %w", explicit, err)
		}
		return nil
	}

	v.SetConfigName("wbc")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/wbc")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("failed to read settings: %w", err)
	}
	return nil
}

// bindFlags binds flags of cmd to settings keys. It runs when cmd is about to execute
// because several commands share keys.
func bindFlags(v *viper.Viper, cmd *cobra.Command, flags map[string]string) error {
	for key, name := range flags {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}
