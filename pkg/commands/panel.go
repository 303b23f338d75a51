package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/smartcontractkit/contract-admin/config"
	"github.com/smartcontractkit/contract-admin/console"
	"github.com/smartcontractkit/contract-admin/contracts"
	"github.com/smartcontractkit/contract-admin/panel"
	"github.com/smartcontractkit/contract-admin/pkg/commands/flags"
	"github.com/smartcontractkit/contract-admin/pkg/commands/text"
	"github.com/smartcontractkit/contract-admin/pkg/logger"
)

const defaultEventBlocks = 1000

var (
	panelLong = text.LongDesc(`
Inspect and operate the contract panels.

Each panel administers one contract. Its key is used by every panel subcommand.
`)

	panelExample = text.Examples(`
		# List the panels of the finance section
		contract-admin panel list finance

		# Read every field of the token panel
		contract-admin panel read token

		# Mint 1.5 tokens
		contract-admin panel call token mint -i to=0x00000000000000000000000000000000000000a1 -i amount=1.5

		# Follow the events of the vault
		contract-admin panel events vault --follow
	`)
)

// Panel creates the panel command group.
func (c *Commands) Panel() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "panel",
		Short:   "Panel commands",
		Long:    panelLong,
		Example: panelExample,
	}

	cmd.AddCommand(
		c.newPanelListCmd(),
		c.newPanelReadCmd(),
		c.newPanelCallCmd(),
		c.newPanelEventsCmd(),
	)

	return cmd
}

func (c *Commands) newPanelListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [section]",
		Short: "List the panels and their contract addresses",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := c.load(cmd)
			if err != nil {
				return err
			}

			var section string
			if len(args) == 1 {
				section = args[0]
			}

			return runPanelList(cmd, cfg, section)
		},
	}
}

func runPanelList(cmd *cobra.Command, cfg *config.Config, section string) error {
	found := false
	for _, s := range contracts.Sections() {
		if section != "" && s.Key != section {
			continue
		}
		found = true

		rows := make([][]string, 0, len(s.Panels))
		for _, key := range s.Panels {
			def, _ := contracts.Lookup(key)
			address := cfg.ContractAddress(key)
			if address == "" {
				address = fmt.Sprintf("not configured (%s)", def.AddressEnv)
			}
			rows = append(rows, []string{text.Indentation + key, def.Title, address})
		}

		cmd.Printf("%s (%s)\n", s.Title, s.Key)
		if err := text.Table(cmd.OutOrStdout(), rows); err != nil {
			return err
		}
	}
	if !found {
		return fmt.Errorf("%w %q", console.ErrUnknownSection, section)
	}

	return nil
}

func (c *Commands) newPanelReadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read <panel>",
		Short: "Read every field of a panel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withPanel(cmd, args[0], func(_ *console.Console, p *panel.Panel, _ logger.Logger) error {
				if err := p.Refresh(cmd.Context()); err != nil {
					return err
				}

				snapshot := p.Snapshot()
				if flags.MustBool(cmd.Flags().GetBool("json")) {
					return printJSON(cmd, snapshot)
				}

				cmd.Printf("%s (%s)\n", snapshot.Title, snapshot.Address.Hex())
				rows := make([][]string, 0, len(snapshot.Fields))
				for _, f := range snapshot.Fields {
					value := f.Value
					if f.Error != "" {
						value = "error: " + f.Error
					}
					rows = append(rows, []string{text.Indentation + f.Label, value})
				}

				return text.Table(cmd.OutOrStdout(), rows)
			})
		},
	}
	flags.JSON(cmd)

	return cmd
}

func (c *Commands) newPanelCallCmd() *cobra.Command {
	var inputs map[string]string

	cmd := &cobra.Command{
		Use:   "call <panel> <action>",
		Short: "Submit an action of a panel as a transaction",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withPanel(cmd, args[0], func(con *console.Console, p *panel.Panel, _ logger.Logger) error {
				res, err := p.Submit(cmd.Context(), args[1], inputs)
				var verrs panel.ValidationErrors
				if errors.As(err, &verrs) {
					for _, ve := range verrs {
						cmd.PrintErrf("  %s: %s\n", ve.Input, ve.Message)
					}

					return err
				}
				if res.Hash != (common.Hash{}) {
					cmd.Printf("Transaction %s\n", res.Hash.Hex())
					if url := con.TxURL(res.Hash); url != "" {
						cmd.Printf("  %s\n", url)
					}
				}
				if err != nil {
					return err
				}
				cmd.Printf("Confirmed in block %d\n", res.Block)

				return nil
			})
		},
	}
	cmd.Flags().StringToStringVarP(&inputs, "input", "i", nil, "Action input as name=value, repeatable")

	return cmd
}

func (c *Commands) newPanelEventsCmd() *cobra.Command {
	var (
		blocks uint64
		follow bool
	)

	cmd := &cobra.Command{
		Use:   "events <panel>",
		Short: "Print the recent events of a panel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withPanel(cmd, args[0], func(_ *console.Console, p *panel.Panel, lggr logger.Logger) error {
				events, err := p.PastEvents(cmd.Context(), blocks)
				if err != nil {
					return err
				}
				for _, e := range events {
					cmd.Println(e.String())
				}
				if !follow {
					return nil
				}

				return followEvents(cmd, p, lggr)
			})
		},
	}
	cmd.Flags().Uint64Var(&blocks, "blocks", defaultEventBlocks, "Number of past blocks to search, 0 searches the latest block")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new events until interrupted")

	return cmd
}

func followEvents(cmd *cobra.Command, p *panel.Panel, lggr logger.Logger) error {
	ctx := cmd.Context()
	events, release := p.Events().Subscribe(64)
	defer release()

	done := make(chan error, 1)
	go func() { done <- p.Watch(ctx) }()

	for {
		select {
		case e := <-events:
			cmd.Println(e.String())
		case err := <-done:
			if err != nil {
				lggr.Errorw("Event watch stopped", "panel", p.Key(), "error", err)
			}

			return err
		}
	}
}

// withPanel connects the console, runs fn against the panel key and closes the console.
func (c *Commands) withPanel(
	cmd *cobra.Command, key string, fn func(*console.Console, *panel.Panel, logger.Logger) error,
) error {
	if _, ok := contracts.Lookup(key); !ok {
		return fmt.Errorf("%w %q", console.ErrUnknownPanel, key)
	}

	cfg, lggr, err := c.load(cmd)
	if err != nil {
		return err
	}

	con, err := c.deps.ConsoleLoader(cmd.Context(), cfg, lggr)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := con.Close(); cerr != nil {
			lggr.Warnw("Failed to close console", "error", cerr)
		}
	}()

	p, err := con.Panel(key)
	if err != nil {
		return err
	}

	return fn(con, p, lggr)
}

func printJSON(cmd *cobra.Command, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(strings.TrimSpace(string(b)))

	return nil
}
