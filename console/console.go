// Package console holds the single shared context of the admin console: the chain connection,
// the role registry, one panel per administered contract and the history of submitted writes.
package console

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	chainsel "github.com/smartcontractkit/chain-selectors"
	"golang.org/x/sync/errgroup"

	"github.com/smartcontractkit/contract-admin/chain/evm"
	"github.com/smartcontractkit/contract-admin/chain/evm/provider"
	"github.com/smartcontractkit/contract-admin/chain/evm/provider/rpcclient"
	"github.com/smartcontractkit/contract-admin/config"
	"github.com/smartcontractkit/contract-admin/config/network"
	"github.com/smartcontractkit/contract-admin/contracts"
	"github.com/smartcontractkit/contract-admin/operations"
	"github.com/smartcontractkit/contract-admin/panel"
	"github.com/smartcontractkit/contract-admin/pkg/logger"
	"github.com/smartcontractkit/contract-admin/roles"
)

var (
	ErrUnknownPanel   = errors.New("unknown panel")
	ErrUnknownSection = errors.New("unknown section")
)

const (
	defaultConfirmTimeout = 2 * time.Minute
	defaultHistorySize    = 200
	etherDecimals         = 18
)

// Option configures a Console.
type Option func(*options)

type options struct {
	provider    provider.ChainProvider
	definitions []panel.Definition
	panelOpts   []panel.Option
	historySize int
}

// WithProvider replaces the chain provider built from the configuration.
func WithProvider(p provider.ChainProvider) Option {
	return func(o *options) {
		o.provider = p
	}
}

// WithDefinitions replaces the bundled panel catalog.
func WithDefinitions(defs []panel.Definition) Option {
	return func(o *options) {
		o.definitions = defs
	}
}

// WithPanelOptions applies opts to every panel.
func WithPanelOptions(opts ...panel.Option) Option {
	return func(o *options) {
		o.panelOpts = append(o.panelOpts, opts...)
	}
}

// WithHistorySize bounds the number of submitted writes kept.
func WithHistorySize(n int) Option {
	return func(o *options) {
		o.historySize = n
	}
}

// Console is the shared connection context passed to every consumer.
type Console struct {
	lggr     logger.Logger
	chain    evm.Chain
	provider provider.ChainProvider
	registry *roles.Registry
	reporter *operations.MemoryReporter
	explorer network.BlockExplorer

	panels   map[string]*panel.Panel
	order    []string
	sections []contracts.Section

	watchCtx    context.Context
	stopWatches context.CancelFunc
	wg          sync.WaitGroup
	closeOnce   sync.Once
}

// New connects to the configured chain and creates one panel per definition.
func New(ctx context.Context, cfg *config.Config, lggr logger.Logger, opts ...Option) (*Console, error) {
	o := options{
		definitions: contracts.Definitions(),
		historySize: defaultHistorySize,
	}
	for _, opt := range opts {
		opt(&o)
	}

	var explorer network.BlockExplorer
	if o.provider == nil {
		p, exp, err := NewChainProvider(cfg, lggr)
		if err != nil {
			return nil, err
		}
		o.provider, explorer = p, exp
	}

	lggr.Infow("Connecting", "provider", o.provider.Name(), "selector", o.provider.ChainSelector())
	chain, err := o.provider.Initialize(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chain %d: %w", o.provider.ChainSelector(), err)
	}

	interfaces := make([][]byte, 0, len(o.definitions))
	for _, def := range o.definitions {
		interfaces = append(interfaces, def.Interface)
	}
	registry, err := roles.NewRegistry(lggr.Named("roles"), interfaces...)
	if err != nil {
		_ = closeClient(chain.Client)
		return nil, fmt.Errorf("failed to build role registry: %w", err)
	}

	watchCtx, stop := context.WithCancel(context.Background())
	c := &Console{
		lggr:        lggr,
		chain:       chain,
		provider:    o.provider,
		registry:    registry,
		reporter:    operations.NewMemoryReporter(operations.WithCapacity(o.historySize)),
		explorer:    explorer,
		panels:      make(map[string]*panel.Panel, len(o.definitions)),
		watchCtx:    watchCtx,
		stopWatches: stop,
	}

	panelOpts := append([]panel.Option{panel.WithReporter(c.reporter)}, o.panelOpts...)
	for _, def := range o.definitions {
		if _, dup := c.panels[def.Key]; dup {
			_ = c.Close()
			return nil, fmt.Errorf("panel %s declared twice", def.Key)
		}

		p, err := panel.New(def, cfg.ContractAddress(def.Key), chain, registry, lggr.Named("panel"), panelOpts...)
		if err != nil {
			_ = c.Close()
			return nil, err
		}
		c.panels[def.Key] = p
		c.order = append(c.order, def.Key)
	}
	c.sections = buildSections(o.definitions)

	lggr.Infow("Console ready", "chain", chain.String(), "account", chain.Account().Hex(),
		"readOnly", chain.ReadOnly(), "panels", len(c.order))

	return c, nil
}

// NewChainProvider builds the RPC chain provider of the configuration. The block explorer of
// the network is returned when the network manifest declares one.
func NewChainProvider(cfg *config.Config, lggr logger.Logger) (provider.ChainProvider, network.BlockExplorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, network.BlockExplorer{}, fmt.Errorf("invalid configuration: %w", err)
	}

	var (
		rpcs     []rpcclient.RPC
		explorer network.BlockExplorer
	)
	if cfg.Chain.NetworksFile != "" {
		networks, err := network.Load([]string{cfg.Chain.NetworksFile}, network.WithURLTransformer(os.ExpandEnv))
		if err != nil {
			return nil, explorer, err
		}
		n, err := networks.FilterWith(network.ChainFamilyFilter(chainsel.FamilyEVM)).NetworkBySelector(cfg.Chain.Selector)
		if err != nil {
			return nil, explorer, err
		}
		if n.Type == network.NetworkTypeMainnet {
			lggr.Warnw("Connecting to a mainnet network", "selector", n.ChainSelector)
		}
		if rpcs, err = n.ClientRPCs(); err != nil {
			return nil, explorer, err
		}
		explorer = n.BlockExplorer
	} else {
		rpc, err := rpcFromURL(cfg.Chain.RPCURL)
		if err != nil {
			return nil, explorer, err
		}
		rpcs = []rpcclient.RPC{rpc}
	}

	signer, err := newSigner(cfg)
	if err != nil {
		return nil, explorer, err
	}

	return provider.NewRPCChainProvider(cfg.Chain.Selector, provider.RPCChainProviderConfig{
		AdminSigner:    signer,
		RPCs:           rpcs,
		ConfirmFunctor: provider.ConfirmFuncMultiClient(defaultConfirmTimeout),
		Logger:         lggr.Named("rpc"),
	}), explorer, nil
}

// newSigner prefers the KMS key over the raw key. Without either the console is read-only.
func newSigner(cfg *config.Config) (provider.SignerGenerator, error) {
	if cfg.ReadOnly() {
		return nil, nil
	}

	kms := cfg.Onchain.KMS
	if kms.KeyID != "" {
		signer, err := provider.TransactorFromKMS(kms.KeyID, kms.KeyRegion, kms.AWSProfile)
		if err != nil {
			return nil, fmt.Errorf("failed to create KMS signer: %w", err)
		}

		return signer, nil
	}

	return provider.TransactorFromRaw(cfg.Onchain.EVM.AdminKey), nil
}

func rpcFromURL(raw string) (rpcclient.RPC, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return rpcclient.RPC{}, fmt.Errorf("invalid RPC URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
		return rpcclient.RPC{Name: u.Host, WSURL: raw}, nil
	case "http", "https":
		return rpcclient.RPC{Name: u.Host, HTTPURL: raw}, nil
	default:
		return rpcclient.RPC{}, fmt.Errorf("unsupported RPC URL scheme %q", u.Scheme)
	}
}

func buildSections(defs []panel.Definition) []contracts.Section {
	var sections []contracts.Section
	for _, s := range contracts.Sections() {
		section := contracts.Section{Key: s.Key, Title: s.Title, Panels: []string{}}
		for _, def := range defs {
			if def.Section == s.Key {
				section.Panels = append(section.Panels, def.Key)
			}
		}
		sections = append(sections, section)
	}

	return sections
}

// Chain returns the connected chain.
func (c *Console) Chain() evm.Chain { return c.chain }

// Registry returns the role registry.
func (c *Console) Registry() *roles.Registry { return c.registry }

// Sections returns the navigation sections.
func (c *Console) Sections() []contracts.Section {
	return append([]contracts.Section(nil), c.sections...)
}

// Section returns a section with its panels in display order.
func (c *Console) Section(key string) (contracts.Section, []*panel.Panel, error) {
	for _, s := range c.sections {
		if s.Key != key {
			continue
		}

		panels := make([]*panel.Panel, 0, len(s.Panels))
		for _, k := range s.Panels {
			panels = append(panels, c.panels[k])
		}

		return s, panels, nil
	}

	return contracts.Section{}, nil, fmt.Errorf("%w %q", ErrUnknownSection, key)
}

// Panel returns the panel key.
func (c *Console) Panel(key string) (*panel.Panel, error) {
	p, ok := c.panels[key]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownPanel, key)
	}

	return p, nil
}

// Panels returns every panel in display order.
func (c *Console) Panels() []*panel.Panel {
	panels := make([]*panel.Panel, 0, len(c.order))
	for _, k := range c.order {
		panels = append(panels, c.panels[k])
	}

	return panels
}

// Account returns the connected account, the zero address when read-only.
func (c *Console) Account() common.Address {
	return c.chain.Account()
}

// NativeBalance returns the native balance of the connected account in wei.
func (c *Console) NativeBalance(ctx context.Context) (*big.Int, error) {
	if c.chain.ReadOnly() {
		return nil, panel.ErrReadOnly
	}

	balance, err := c.chain.Client.BalanceAt(ctx, c.Account(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance of %s: %w", c.Account().Hex(), err)
	}

	return balance, nil
}

// AccountInfo describes the connected account.
type AccountInfo struct {
	Address  string `json:"address,omitempty"`
	Chain    string `json:"chain"`
	Selector uint64 `json:"selector"`
	ReadOnly bool   `json:"readOnly"`
	// Balance is the native balance in ether.
	Balance string `json:"balance,omitempty"`
}

// AccountInfo returns the connected account with its native balance.
func (c *Console) AccountInfo(ctx context.Context) (AccountInfo, error) {
	info := AccountInfo{
		Chain:    c.chain.Name(),
		Selector: c.chain.Selector,
		ReadOnly: c.chain.ReadOnly(),
	}
	if info.ReadOnly {
		return info, nil
	}

	info.Address = c.Account().Hex()
	balance, err := c.NativeBalance(ctx)
	if err != nil {
		return info, err
	}
	info.Balance = decimal.NewFromBigInt(balance, -etherDecimals).String()

	return info, nil
}

// RefreshAll refreshes every configured panel in parallel.
func (c *Console) RefreshAll(ctx context.Context) {
	var g errgroup.Group
	for _, p := range c.Panels() {
		if !p.Configured() {
			continue
		}
		g.Go(func() error {
			if err := p.Refresh(ctx); err != nil {
				c.lggr.Warnw("Refresh failed", "panel", p.Key(), "error", err)
			}

			return nil
		})
	}
	_ = g.Wait()
}

// WatchAll starts watching the events of every configured panel until Close. A failed watch
// only affects its own panel.
func (c *Console) WatchAll() {
	for _, p := range c.Panels() {
		if !p.Configured() || len(p.Definition().Events) == 0 {
			continue
		}

		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			if err := p.Watch(c.watchCtx); err != nil {
				c.lggr.Warnw("Event watch stopped", "panel", p.Key(), "error", err)
			}
		}()
	}
}

// History returns the submitted writes, newest first.
func (c *Console) History() ([]operations.Report[any, any], error) {
	reports, err := c.reporter.GetReports()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(reports, func(i, j int) bool {
		ti, tj := reports[i].Timestamp, reports[j].Timestamp
		if ti == nil || tj == nil {
			return tj == nil && ti != nil
		}

		return ti.After(*tj)
	})

	return reports, nil
}

// Report returns one submitted write by its report ID.
func (c *Console) Report(id string) (operations.Report[any, any], error) {
	return c.reporter.GetReport(id)
}

// TxURL returns the block explorer link of a transaction, empty without an explorer.
func (c *Console) TxURL(hash common.Hash) string {
	return c.explorer.TxURL(hash.Hex())
}

// Close stops the watchers and closes the chain client.
func (c *Console) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.stopWatches()
		c.wg.Wait()
		err = closeClient(c.chain.Client)
	})

	return err
}

func closeClient(client evm.OnchainClient) error {
	switch cl := client.(type) {
	case interface{ Close() error }:
		return cl.Close()
	case interface{ Close() }:
		cl.Close()
	}

	return nil
}
