// Package commands provides the CLI of the admin console.
//
// The Commands factory shares the logger and dependencies across every command:
//
//	cmds := commands.New(lggr)
//	root := cmds.Root()
//	if err := root.ExecuteContext(ctx); err != nil {
//	    os.Exit(1)
//	}
//
// Dependencies can be replaced for tests:
//
//	cmds := commands.New(lggr).WithDeps(commands.Deps{ConsoleLoader: myLoader})
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smartcontractkit/contract-admin/config"
	"github.com/smartcontractkit/contract-admin/pkg/commands/flags"
	"github.com/smartcontractkit/contract-admin/pkg/commands/text"
	"github.com/smartcontractkit/contract-admin/pkg/logger"
)

// Commands provides a factory for creating CLI commands with shared configuration.
type Commands struct {
	lggr logger.Logger
	deps Deps
}

// New creates a new Commands factory with the given logger. The logger is used until the
// configuration names a log level.
func New(lggr logger.Logger) *Commands {
	c := &Commands{lggr: lggr}
	c.deps.applyDefaults()

	return c
}

// WithDeps replaces the dependencies. Nil fields keep their production defaults.
func (c *Commands) WithDeps(deps Deps) *Commands {
	deps.applyDefaults()
	c.deps = deps

	return c
}

var rootLong = text.LongDesc(`
Administer the finance, carbon credit and mock token contracts of a deployment.

Contract addresses are read from <KEY>_ADDRESS environment variables, optionally loaded
from a dotenv file, or from the contracts section of the config file. Without a signer
the console is read-only.
`)

// Root creates the contract-admin command with every subcommand.
func (c *Commands) Root() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "contract-admin",
		Short:         "Contract admin console",
		Long:          rootLong,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags.Config(cmd)
	flags.EnvFile(cmd)
	flags.LogLevel(cmd)

	cmd.AddCommand(c.Serve(), c.Panel(), c.Roles())

	return cmd
}

// load reads the dotenv file and the configuration named by the flags, and creates the
// logger for the configured level.
func (c *Commands) load(cmd *cobra.Command) (*config.Config, logger.Logger, error) {
	envFile := flags.MustString(cmd.Flags().GetString("env-file"))
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, nil, err
	}

	cfg, err := c.deps.ConfigLoader(flags.MustString(cmd.Flags().GetString("config")))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.Log.Level
	if f := cmd.Flags().Lookup("log-level"); f != nil && f.Changed {
		level = f.Value.String()
	}
	if level == "" {
		return cfg, c.lggr, nil
	}

	lggr, err := c.deps.LoggerFactory(level, cfg.Log.Development)
	if err != nil {
		return nil, nil, err
	}

	return cfg, lggr, nil
}
