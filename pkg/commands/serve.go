package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/smartcontractkit/contract-admin/pkg/commands/text"
	"github.com/smartcontractkit/contract-admin/server"
)

var (
	serveLong = text.LongDesc(`
Connect to the configured chain and serve the console API until interrupted.

Every configured panel is read once at startup and its events are watched for as long as
the server runs.
`)

	serveExample = text.Examples(`
		# Serve on the address of the config file
		contract-admin serve

		# Serve on another port with debug logging
		contract-admin serve --addr :9090 --log-level debug
	`)
)

// Serve creates the serve command.
func (c *Commands) Serve() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Serve the console API",
		Long:    serveLong,
		Example: serveExample,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runServe(cmd, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address, overrides server.addr")

	return cmd
}

func (c *Commands) runServe(cmd *cobra.Command, addr string) error {
	cfg, lggr, err := c.load(cmd)
	if err != nil {
		return err
	}
	if addr == "" {
		addr = cfg.Server.Addr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	con, err := c.deps.ConsoleLoader(ctx, cfg, lggr)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := con.Close(); cerr != nil {
			lggr.Warnw("Failed to close console", "error", cerr)
		}
	}()

	con.RefreshAll(ctx)
	con.WatchAll()

	return server.New(con, lggr.Named("server")).ListenAndServe(ctx, addr)
}
