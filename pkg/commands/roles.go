package commands

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/smartcontractkit/contract-admin/console"
	"github.com/smartcontractkit/contract-admin/contracts"
	"github.com/smartcontractkit/contract-admin/panel"
	"github.com/smartcontractkit/contract-admin/pkg/commands/flags"
	"github.com/smartcontractkit/contract-admin/pkg/commands/text"
	"github.com/smartcontractkit/contract-admin/pkg/logger"
	"github.com/smartcontractkit/contract-admin/roles"
)

var (
	rolesLong = text.LongDesc(`
Inspect the access control roles of the administered contracts.

A role is identified by the keccak256 hash of its name, except DEFAULT_ADMIN_ROLE which is
32 zero bytes.
`)

	rolesExample = text.Examples(`
		# List every role known to the console
		contract-admin roles list

		# Check which token roles an account holds
		contract-admin roles list --panel token --account 0x00000000000000000000000000000000000000a1

		# Compute role identifiers
		contract-admin roles hash MINTER_ROLE PAUSER_ROLE
	`)
)

// Roles creates the roles command group.
func (c *Commands) Roles() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "roles",
		Short:   "Role commands",
		Long:    rolesLong,
		Example: rolesExample,
	}

	cmd.AddCommand(c.newRolesListCmd(), c.newRolesHashCmd())

	return cmd
}

func (c *Commands) newRolesListCmd() *cobra.Command {
	var panelKey, account string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List role names with their identifiers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if account != "" {
				if panelKey == "" {
					return errors.New("--account requires --panel")
				}
				if !common.IsHexAddress(account) {
					return fmt.Errorf("--account %q is not an address", account)
				}

				return c.withPanel(cmd, panelKey, func(_ *console.Console, p *panel.Panel, _ logger.Logger) error {
					return runRoleMembership(cmd, p, common.HexToAddress(account))
				})
			}

			return c.runRolesList(cmd, panelKey)
		},
	}
	cmd.Flags().StringVarP(&panelKey, "panel", "p", "", "Only list the roles of this panel")
	cmd.Flags().StringVar(&account, "account", "", "Check the membership of this account, requires --panel")
	flags.JSON(cmd)

	return cmd
}

func (c *Commands) runRolesList(cmd *cobra.Command, panelKey string) error {
	interfaces := contracts.Interfaces()
	if panelKey != "" {
		def, ok := contracts.Lookup(panelKey)
		if !ok {
			return fmt.Errorf("%w %q", console.ErrUnknownPanel, panelKey)
		}
		interfaces = [][]byte{def.Interface}
	}

	registry, err := roles.NewRegistry(c.lggr, interfaces...)
	if err != nil {
		return err
	}
	entries := registry.Entries()
	if flags.MustBool(cmd.Flags().GetBool("json")) {
		return printJSON(cmd, entries)
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{e.Name, e.Hash.Hex()})
	}

	return text.Table(cmd.OutOrStdout(), rows)
}

func runRoleMembership(cmd *cobra.Command, p *panel.Panel, account common.Address) error {
	cmd.Printf("%s roles of %s\n", p.Title(), account.Hex())

	names := p.Roles()
	rows := make([][]string, 0, len(names))
	for _, name := range names {
		member, err := p.HasRole(cmd.Context(), account, name)
		status := "no"
		switch {
		case err != nil:
			status = "error: " + err.Error()
		case member:
			status = "yes"
		}
		rows = append(rows, []string{text.Indentation + name, status})
	}

	return text.Table(cmd.OutOrStdout(), rows)
}

func (c *Commands) newRolesHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash <name>...",
		Short: "Compute the identifier of role names",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := make([][]string, 0, len(args))
			for _, name := range args {
				hash, err := roles.ComputeRoleHash(name)
				if err != nil {
					return err
				}
				rows = append(rows, []string{name, hash.Hex()})
			}

			return text.Table(cmd.OutOrStdout(), rows)
		},
	}
}
