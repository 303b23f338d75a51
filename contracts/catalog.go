// Package contracts bundles the interface descriptions of the administered contracts and
// declares the panel of each one, grouped in the three sections of the console.
package contracts

import (
	"embed"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/smartcontractkit/contract-admin/panel"
)

//go:embed abi/*.json
var abiFS embed.FS

// Section keys.
const (
	SectionFinance   = "finance"
	SectionCarbon    = "carbon"
	SectionMockToken = "mock-token"
)

// Section is a navigation entry listing a fixed set of panels.
type Section struct {
	Key    string   `json:"key"`
	Title  string   `json:"title"`
	Panels []string `json:"panels"`
}

// Interface merges the named fragments of abi/ into one interface description.
func Interface(fragments ...string) ([]byte, error) {
	var merged []json.RawMessage
	for _, name := range fragments {
		b, err := abiFS.ReadFile(path.Join("abi", name+".json"))
		if err != nil {
			return nil, fmt.Errorf("interface fragment %s: %w", name, err)
		}

		var entries []json.RawMessage
		if err := json.Unmarshal(b, &entries); err != nil {
			return nil, fmt.Errorf("interface fragment %s: %w", name, err)
		}
		merged = append(merged, entries...)
	}

	return json.Marshal(merged)
}

func mustInterface(fragments ...string) []byte {
	b, err := Interface(fragments...)
	if err != nil {
		panic(err)
	}

	return b
}

// AddressEnv returns the environment variable holding the address of the panel key.
func AddressEnv(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, "-", "_")) + "_ADDRESS"
}

var (
	roleActions = []panel.Action{
		{Label: "Grant role", Method: "grantRole"},
		{Label: "Revoke role", Method: "revokeRole"},
	}
	roleEvents = []string{"RoleGranted", "RoleRevoked"}

	pauseField   = panel.Field{Label: "Paused", Method: "paused"}
	pauseActions = []panel.Action{
		{Label: "Pause", Method: "pause"},
		{Label: "Unpause", Method: "unpause"},
	}
	pauseEvents = []string{"Paused", "Unpaused"}

	tokenFields = []panel.Field{
		{Label: "Name", Method: "name"},
		{Label: "Symbol", Method: "symbol"},
		{Label: "Total supply", Method: "totalSupply", Format: panel.FormatAmount},
		{Label: "Your balance", Method: "balanceOf", Args: []string{panel.AccountArg}, Format: panel.FormatAmount},
	}
)

func concat[T any](parts ...[]T) []T {
	var out []T
	for _, p := range parts {
		out = append(out, p...)
	}

	return out
}

func define(key, title, section string, decimals uint8, fragments []string, fields []panel.Field,
	actions []panel.Action, events []string,
) panel.Definition {
	return panel.Definition{
		Key:        key,
		Title:      title,
		Section:    section,
		AddressEnv: AddressEnv(key),
		Interface:  mustInterface(fragments...),
		Decimals:   decimals,
		Fields:     fields,
		Actions:    actions,
		Events:     events,
	}
}

func feeRouter(key, title, section string) panel.Definition {
	return define(key, title, section, 18,
		[]string{"access_control", "fee_router"},
		[]panel.Field{
			{Label: "Treasury", Method: "treasury"},
			{Label: "Treasury share", Method: "treasuryShareBps", Format: panel.FormatBps},
		},
		concat([]panel.Action{
			{Label: "Set treasury", Method: "setTreasury"},
			{Label: "Set treasury share (bps)", Method: "setTreasuryShare"},
			{Label: "Route fees", Method: "routeFees"},
		}, roleActions),
		concat([]string{"FeesRouted", "TreasuryUpdated"}, roleEvents),
	)
}

var definitions = []panel.Definition{
	define("token", "Finance Token", SectionFinance, 18,
		[]string{"erc20", "access_control", "pausable", "mintable"},
		concat(tokenFields, []panel.Field{pauseField}),
		concat([]panel.Action{
			{Label: "Mint", Method: "mint", Amounts: []string{"amount"}},
			{Label: "Burn", Method: "burnFrom", Amounts: []string{"amount"}},
		}, pauseActions, roleActions),
		concat([]string{"Transfer"}, pauseEvents, roleEvents),
	),
	define("exchange", "Exchange", SectionFinance, 18,
		[]string{"access_control", "pausable", "exchange"},
		[]panel.Field{
			{Label: "Swap fee", Method: "swapFeeBps", Format: panel.FormatBps},
			{Label: "Protocol fee", Method: "protocolFeeBps", Format: panel.FormatBps},
			{Label: "Fee recipient", Method: "feeRecipient"},
			pauseField,
		},
		concat([]panel.Action{
			{Label: "Set swap fees (bps)", Method: "setSwapFee"},
			{Label: "Set fee recipient", Method: "setFeeRecipient"},
		}, pauseActions, roleActions),
		concat([]string{"SwapFeeUpdated", "FeeRecipientUpdated"}, pauseEvents, roleEvents),
	),
	define("rewards", "Reward Distributor", SectionFinance, 18,
		[]string{"access_control", "reward_distributor"},
		[]panel.Field{
			{Label: "Reward token", Method: "rewardToken"},
			{Label: "Reward rate (per second)", Method: "rewardRate", Format: panel.FormatAmount},
			{Label: "Rewards duration", Method: "rewardsDuration", Format: panel.FormatDuration},
			{Label: "Period finish", Method: "periodFinish", Format: panel.FormatTimestamp},
			{Label: "Your earned rewards", Method: "earned", Args: []string{panel.AccountArg}, Format: panel.FormatAmount},
		},
		concat([]panel.Action{
			{Label: "Notify reward amount", Method: "notifyRewardAmount", Amounts: []string{"reward"}},
			{Label: "Set rewards duration (seconds)", Method: "setRewardsDuration"},
		}, roleActions),
		concat([]string{"RewardAdded", "RewardPaid", "RewardsDurationUpdated"}, roleEvents),
	),
	define("escrow", "Escrow", SectionFinance, 18,
		[]string{"access_control", "pausable", "escrow"},
		[]panel.Field{
			{Label: "Escrows", Method: "escrowCount"},
			{Label: "Release delay", Method: "releaseDelay", Format: panel.FormatDuration},
			pauseField,
		},
		concat([]panel.Action{
			{Label: "Set release delay (seconds)", Method: "setReleaseDelay"},
			{Label: "Release", Method: "release"},
			{Label: "Refund", Method: "refund"},
		}, pauseActions, roleActions),
		concat([]string{"EscrowReleased", "EscrowRefunded"}, pauseEvents, roleEvents),
	),
	define("vault", "Lending Vault", SectionFinance, 18,
		[]string{"access_control", "pausable", "lending_vault"},
		[]panel.Field{
			{Label: "Asset", Method: "asset"},
			{Label: "Total assets", Method: "totalAssets", Format: panel.FormatAmount},
			{Label: "Loan to value", Method: "loanToValueBps", Format: panel.FormatBps},
			{Label: "Liquidation threshold", Method: "liquidationThresholdBps", Format: panel.FormatBps},
			{Label: "Liquidation bonus", Method: "liquidationBonusBps", Format: panel.FormatBps},
			{Label: "Supply cap", Method: "supplyCap", Format: panel.FormatAmount},
			pauseField,
		},
		concat([]panel.Action{
			{Label: "Set risk parameters (bps)", Method: "setRiskParameters"},
			{Label: "Set supply cap", Method: "setSupplyCap", Amounts: []string{"cap"}},
		}, pauseActions, roleActions),
		concat([]string{"RiskParametersUpdated", "SupplyCapUpdated"}, pauseEvents, roleEvents),
	),
	feeRouter("fee-router", "Fee Router", SectionFinance),
	define("oracle", "Price Oracle", SectionFinance, 8,
		[]string{"access_control", "price_oracle"},
		[]panel.Field{
			{Label: "Latest answer", Method: "latestAnswer", Format: panel.FormatAmount},
			{Label: "Updated at", Method: "latestTimestamp", Format: panel.FormatTimestamp},
			{Label: "Heartbeat", Method: "heartbeat", Format: panel.FormatDuration},
		},
		concat([]panel.Action{
			{Label: "Set price", Method: "setPrice", Amounts: []string{"answer"}},
			{Label: "Set heartbeat (seconds)", Method: "setHeartbeat"},
		}, roleActions),
		concat([]string{"AnswerUpdated"}, roleEvents),
	),
	define("governor", "Governor", SectionFinance, 18,
		[]string{"access_control", "governor"},
		[]panel.Field{
			{Label: "Voting delay (blocks)", Method: "votingDelay"},
			{Label: "Voting period (blocks)", Method: "votingPeriod"},
			{Label: "Proposal threshold", Method: "proposalThreshold", Format: panel.FormatAmount},
			{Label: "Quorum numerator", Method: "quorumNumerator"},
		},
		concat([]panel.Action{
			{Label: "Set voting delay", Method: "setVotingDelay"},
			{Label: "Set voting period", Method: "setVotingPeriod"},
			{Label: "Update quorum numerator", Method: "updateQuorumNumerator"},
		}, roleActions),
		concat([]string{"VotingDelaySet", "VotingPeriodSet", "QuorumNumeratorUpdated"}, roleEvents),
	),
	define("pool-factory", "Pool Factory", SectionFinance, 18,
		[]string{"access_control", "pool_factory"},
		[]panel.Field{
			{Label: "Pools", Method: "allPoolsLength"},
			{Label: "Default swap fee", Method: "defaultSwapFeeBps", Format: panel.FormatBps},
		},
		concat([]panel.Action{
			{Label: "Create pool", Method: "createPool"},
			{Label: "Set default swap fee (bps)", Method: "setDefaultSwapFee"},
		}, roleActions),
		concat([]string{"PoolCreated"}, roleEvents),
	),

	define("carbon-credit", "Carbon Credit Token", SectionCarbon, 18,
		[]string{"erc20", "access_control", "pausable", "carbon_credit"},
		concat(tokenFields, []panel.Field{
			{Label: "Total retired", Method: "totalRetired", Format: panel.FormatAmount},
			{Label: "Retired by you", Method: "retiredBy", Args: []string{panel.AccountArg}, Format: panel.FormatAmount},
			pauseField,
		}),
		concat([]panel.Action{
			{Label: "Issue credits", Method: "issue", Amounts: []string{"amount"}},
			{Label: "Retire credits", Method: "retire", Amounts: []string{"amount"}},
		}, pauseActions, roleActions),
		concat([]string{"Transfer", "CreditsIssued", "CreditsRetired"}, pauseEvents, roleEvents),
	),
	define("project-registry", "Project Registry", SectionCarbon, 0,
		[]string{"access_control", "project_registry"},
		[]panel.Field{
			{Label: "Projects", Method: "projectCount"},
		},
		concat([]panel.Action{
			{Label: "Register project", Method: "registerProject"},
			{Label: "Set project status", Method: "setProjectStatus"},
		}, roleActions),
		concat([]string{"ProjectRegistered", "ProjectStatusChanged"}, roleEvents),
	),
	feeRouter("carbon-fee-router", "Carbon Fee Router", SectionCarbon),

	define("mock-token", "Mock Token", SectionMockToken, 18,
		[]string{"erc20", "mock_token"},
		concat(tokenFields, []panel.Field{
			{Label: "Decimals", Method: "decimals"},
		}),
		[]panel.Action{
			{Label: "Mint", Method: "mint", Amounts: []string{"amount"}},
			{Label: "Faucet", Method: "faucet"},
			{Label: "Transfer", Method: "transfer", Amounts: []string{"value"}},
			{Label: "Approve", Method: "approve", Amounts: []string{"value"}},
		},
		[]string{"Transfer", "Approval"},
	),
}

var sectionTitles = []struct{ key, title string }{
	{SectionFinance, "Finance"},
	{SectionCarbon, "Carbon Credits"},
	{SectionMockToken, "Mock Token"},
}

// Definitions returns every panel definition in display order.
func Definitions() []panel.Definition {
	out := make([]panel.Definition, len(definitions))
	copy(out, definitions)

	return out
}

// Lookup returns the definition of the panel key.
func Lookup(key string) (panel.Definition, bool) {
	for _, d := range definitions {
		if d.Key == key {
			return d, true
		}
	}

	return panel.Definition{}, false
}

// Sections returns the navigation sections in display order.
func Sections() []Section {
	sections := make([]Section, 0, len(sectionTitles))
	for _, st := range sectionTitles {
		s := Section{Key: st.key, Title: st.title}
		for _, d := range definitions {
			if d.Section == st.key {
				s.Panels = append(s.Panels, d.Key)
			}
		}
		sections = append(sections, s)
	}

	return sections
}

// Interfaces returns the interface description of every panel, the input of the role
// registry.
func Interfaces() [][]byte {
	out := make([][]byte, 0, len(definitions))
	for _, d := range definitions {
		out = append(out, d.Interface)
	}

	return out
}
