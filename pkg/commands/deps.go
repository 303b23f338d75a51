package commands

import (
	"context"

	"github.com/smartcontractkit/contract-admin/config"
	"github.com/smartcontractkit/contract-admin/console"
	"github.com/smartcontractkit/contract-admin/pkg/logger"
)

// ConfigLoaderFunc loads the configuration from the file path.
type ConfigLoaderFunc func(path string) (*config.Config, error)

// ConsoleLoaderFunc connects a console for the configuration.
type ConsoleLoaderFunc func(ctx context.Context, cfg *config.Config, lggr logger.Logger) (*console.Console, error)

// LoggerFactoryFunc creates the logger for a textual level.
type LoggerFactoryFunc func(level string, development bool) (logger.Logger, error)

// Deps holds the injectable dependencies of the commands.
// All fields are optional; nil values use production defaults.
type Deps struct {
	// ConfigLoader loads the configuration.
	// Default: config.Load
	ConfigLoader ConfigLoaderFunc

	// ConsoleLoader connects the console.
	// Default: console.New
	ConsoleLoader ConsoleLoaderFunc

	// LoggerFactory creates the logger once the level is known.
	// Default: logger.NewFromLevel
	LoggerFactory LoggerFactoryFunc
}

func defaultConsoleLoader(ctx context.Context, cfg *config.Config, lggr logger.Logger) (*console.Console, error) {
	return console.New(ctx, cfg, lggr)
}

// applyDefaults fills in nil dependencies with production defaults.
func (d *Deps) applyDefaults() {
	if d.ConfigLoader == nil {
		d.ConfigLoader = config.Load
	}
	if d.ConsoleLoader == nil {
		d.ConsoleLoader = defaultConsoleLoader
	}
	if d.LoggerFactory == nil {
		d.LoggerFactory = logger.NewFromLevel
	}
}
