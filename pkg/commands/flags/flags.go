// Package flags provides the flags shared by the console commands.
//
// Only flags used by more than one command belong here, so that naming and defaults stay
// consistent. Command-specific flags are defined next to their command.
package flags

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// DefaultConfigPath is the config file read when --config is not set.
const DefaultConfigPath = "config.yml"

// DefaultEnvFile is the dotenv file read when --env-file is not set.
const DefaultEnvFile = ".env"

// MustString returns the string value, ignoring the error.
// Safe to use with registered flags where GetString cannot fail.
func MustString(s string, _ error) string { return s }

// MustBool returns the bool value, ignoring the error.
// Safe to use with registered flags where GetBool cannot fail.
func MustBool(b bool, _ error) bool { return b }

// Config adds the persistent --config/-c flag holding the config file path.
func Config(cmd *cobra.Command) {
	cmd.PersistentFlags().StringP("config", "c", DefaultConfigPath, "Config file path, skipped when missing")
}

// EnvFile adds the persistent --env-file flag. The file is loaded into the environment
// before the configuration, without overriding variables that are already set.
// Also supports the --dotenv alias on every subcommand.
func EnvFile(cmd *cobra.Command) {
	cmd.PersistentFlags().String("env-file", DefaultEnvFile, "Dotenv file with contract addresses and secrets, skipped when missing")

	cmd.SetGlobalNormalizationFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		if name == "dotenv" {
			return pflag.NormalizedName("env-file")
		}

		return pflag.NormalizedName(name)
	})
}

// LogLevel adds the persistent --log-level flag. When set it overrides log.level of the
// configuration.
func LogLevel(cmd *cobra.Command) {
	cmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
}

// JSON adds the --json flag switching the output to JSON.
// Retrieve the value with cmd.Flags().GetBool("json").
func JSON(cmd *cobra.Command) {
	cmd.Flags().Bool("json", false, "Print JSON instead of text")
}
