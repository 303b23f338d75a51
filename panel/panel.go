package panel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/smartcontractkit/contract-admin/chain/evm"
	"github.com/smartcontractkit/contract-admin/operations"
	"github.com/smartcontractkit/contract-admin/pkg/logger"
	"github.com/smartcontractkit/contract-admin/roles"
)

const defaultReadConcurrency = 8

// FieldValue is the last fetched value of a field, or the error the read failed with.
type FieldValue struct {
	Label  string `json:"label"`
	Method string `json:"method"`
	Value  string `json:"value,omitempty"`
	Error  string `json:"error,omitempty"`
}

// InputInfo describes one action input.
type InputInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
	// Amount marks inputs entered as decimal token amounts.
	Amount bool `json:"amount,omitempty"`
}

// ActionInfo describes an action the operator can submit.
type ActionInfo struct {
	Name   string      `json:"name"`
	Label  string      `json:"label"`
	Inputs []InputInfo `json:"inputs"`
}

// Snapshot is the displayable state of a panel.
type Snapshot struct {
	Key     string         `json:"key"`
	Title   string         `json:"title"`
	Section string         `json:"section"`
	Address common.Address `json:"address"`
	// Error is set when the panel is misconfigured. Such a panel has no fields and no actions.
	Error       string       `json:"error,omitempty"`
	Account     string       `json:"account,omitempty"`
	ReadOnly    bool         `json:"readOnly"`
	Fields      []FieldValue `json:"fields"`
	Actions     []ActionInfo `json:"actions"`
	Roles       []string     `json:"roles,omitempty"`
	Events      []Event      `json:"events"`
	LastTx      *TxResult    `json:"lastTx,omitempty"`
	WatchError  string       `json:"watchError,omitempty"`
	RefreshedAt time.Time    `json:"refreshedAt"`
}

// Option configures a Panel.
type Option func(*Panel)

// WithAccount sets the account substituted for AccountArg in field reads. Defaults to the
// chain's admin account.
func WithAccount(account common.Address) Option {
	return func(p *Panel) {
		p.parser.account = account
	}
}

// WithReporter sets the reporter submitted writes are recorded to.
func WithReporter(reporter operations.Reporter) Option {
	return func(p *Panel) {
		p.reporter = reporter
	}
}

// WithReadConcurrency bounds the number of field reads in flight during a refresh.
func WithReadConcurrency(n int) Option {
	return func(p *Panel) {
		if n > 0 {
			p.readConcurrency = n
		}
	}
}

// WithEventLogSize sets the number of events the panel keeps.
func WithEventLogSize(n int) Option {
	return func(p *Panel) {
		p.events = NewEventLog(n)
	}
}

// WithPollInterval sets the log polling interval used when the endpoint does not support
// subscriptions.
func WithPollInterval(d time.Duration) Option {
	return func(p *Panel) {
		if d > 0 {
			p.pollInterval = d
		}
	}
}

// Panel is one contract bound to a chain.
type Panel struct {
	def      Definition
	abi      abi.ABI
	address  common.Address
	chain    evm.Chain
	contract *bind.BoundContract
	registry *roles.Registry
	lggr     logger.Logger
	reporter operations.Reporter
	parser   argParser
	events   *EventLog
	roles    []string

	readConcurrency int
	pollInterval    time.Duration

	// configErr is the message of a misconfigured panel.
	configErr string

	mu          sync.RWMutex
	fields      []FieldValue
	refreshedAt time.Time
	lastTx      *TxResult
	watchErr    string
}

// New binds a definition to a contract address on chain. An empty or malformed address does
// not fail: the panel is created in error state and every operation returns
// ErrMissingAddress.
func New(
	def Definition, address string, chain evm.Chain, registry *roles.Registry, lggr logger.Logger, opts ...Option,
) (*Panel, error) {
	if registry == nil {
		return nil, fmt.Errorf("panel %s: role registry is required", def.Key)
	}
	parsed, err := def.ParseABI()
	if err != nil {
		return nil, err
	}
	discovered, err := roles.RoleNamesFromABI(def.Interface)
	if err != nil {
		return nil, fmt.Errorf("panel %s: %w", def.Key, err)
	}

	p := &Panel{
		def:      def,
		abi:      parsed,
		chain:    chain,
		registry: registry,
		lggr:     lggr.Named(def.Key),
		reporter: operations.NewMemoryReporter(),
		parser: argParser{
			decimals: def.Decimals,
			roles:    registry,
			account:  chain.Account(),
		},
		events:          NewEventLog(DefaultEventLogSize),
		roles:           discovered,
		readConcurrency: defaultReadConcurrency,
		pollInterval:    defaultPollInterval,
	}
	for _, opt := range opts {
		opt(p)
	}

	switch {
	case address == "":
		p.configErr = fmt.Sprintf("%s: %s (%s)", def.Title, ErrMissingAddress, def.AddressEnv)
		p.lggr.Warnw("Contract address not configured", "env", def.AddressEnv)
	case !common.IsHexAddress(address):
		p.configErr = fmt.Sprintf("%s: %s, %q is not an address (%s)", def.Title, ErrMissingAddress, address, def.AddressEnv)
		p.lggr.Warnw("Contract address is malformed", "env", def.AddressEnv, "address", address)
	default:
		p.address = common.HexToAddress(address)
		p.contract = bind.NewBoundContract(p.address, parsed, chain.Client, chain.Client, chain.Client)
	}

	return p, nil
}

// Key returns the panel key.
func (p *Panel) Key() string { return p.def.Key }

// Title returns the panel title.
func (p *Panel) Title() string { return p.def.Title }

// Section returns the section the panel belongs to.
func (p *Panel) Section() string { return p.def.Section }

// Definition returns the panel definition.
func (p *Panel) Definition() Definition { return p.def }

// Address returns the bound contract address, zero for a misconfigured panel.
func (p *Panel) Address() common.Address { return p.address }

// Events returns the panel event log.
func (p *Panel) Events() *EventLog { return p.events }

// Configured reports whether the panel has a usable contract address.
func (p *Panel) Configured() bool { return p.configErr == "" }

// Err returns the configuration error of the panel, nil when it is configured.
func (p *Panel) Err() error {
	if p.configErr == "" {
		return nil
	}

	return &addressError{msg: p.configErr}
}

// Refresh re-reads every field. Reads run in parallel and fail independently: a failed read
// is stored as the field error and does not affect the others.
func (p *Panel) Refresh(ctx context.Context) error {
	if err := p.Err(); err != nil {
		return err
	}

	values := make([]FieldValue, len(p.def.Fields))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.readConcurrency)
	for i, f := range p.def.Fields {
		g.Go(func() error {
			values[i] = p.readField(gctx, f)
			return nil
		})
	}
	_ = g.Wait()

	p.mu.Lock()
	p.fields = values
	p.refreshedAt = time.Now().UTC()
	p.mu.Unlock()

	return nil
}

func (p *Panel) readField(ctx context.Context, f Field) FieldValue {
	fv := FieldValue{Label: f.Label, Method: f.Method}

	out, err := p.call(ctx, f.Method, f.Args)
	if err != nil {
		p.lggr.Debugw("Field read failed", "field", f.Label, "method", f.Method, "error", err)
		fv.Error = err.Error()

		return fv
	}
	if len(out) == 0 {
		fv.Error = f.Method + " returned no data"

		return fv
	}
	fv.Value = formatValue(out[0], f.Format, p.def.Decimals, p.registry)

	return fv
}

// Read calls a view method with raw arguments and returns the formatted results.
func (p *Panel) Read(ctx context.Context, method string, args ...string) ([]string, error) {
	if err := p.Err(); err != nil {
		return nil, err
	}

	out, err := p.call(ctx, method, args)
	if err != nil {
		return nil, err
	}

	values := make([]string, len(out))
	for i, v := range out {
		values[i] = formatRaw(v)
	}

	return values, nil
}

func (p *Panel) call(ctx context.Context, method string, raw []string) ([]any, error) {
	m, ok := p.abi.Methods[method]
	if !ok {
		return nil, fmt.Errorf("method %s not found", method)
	}
	args, err := p.parser.parseFieldArgs(m, raw)
	if err != nil {
		return nil, err
	}

	var out []any
	if err := p.contract.Call(&bind.CallOpts{Context: ctx, From: p.parser.account}, &out, method, args...); err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", method, err)
	}

	return out, nil
}

// HasRole reports whether account holds role. The role is a name or a 0x identifier.
func (p *Panel) HasRole(ctx context.Context, account common.Address, role string) (bool, error) {
	if err := p.Err(); err != nil {
		return false, err
	}
	if _, ok := p.abi.Methods["hasRole"]; !ok {
		return false, fmt.Errorf("%s has no role-based access control", p.def.Title)
	}

	hash, err := p.registry.Resolve(role)
	if err != nil {
		return false, err
	}

	var out []any
	err = p.contract.Call(&bind.CallOpts{Context: ctx}, &out, "hasRole", [32]byte(hash), account)
	if err != nil {
		return false, fmt.Errorf("failed to call hasRole: %w", err)
	}
	if len(out) == 0 {
		return false, errors.New("hasRole returned no data")
	}
	has, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("hasRole: expected bool, got %T", out[0])
	}

	return has, nil
}

// Roles returns the role names the contract exposes accessors for.
func (p *Panel) Roles() []string {
	out := make([]string, len(p.roles))
	copy(out, p.roles)

	return out
}

// Actions describes the actions of the panel with inputs taken from the interface
// description.
func (p *Panel) Actions() []ActionInfo {
	infos := make([]ActionInfo, 0, len(p.def.Actions))
	for _, a := range p.def.Actions {
		m, ok := p.abi.Methods[a.Method]
		if !ok {
			continue
		}
		amounts := make(map[string]struct{}, len(a.Amounts))
		for _, name := range a.Amounts {
			amounts[name] = struct{}{}
		}

		inputs := make([]InputInfo, 0, len(m.Inputs))
		for i, arg := range m.Inputs {
			name := inputName(i, arg)
			_, amount := amounts[name]
			inputs = append(inputs, InputInfo{Name: name, Type: arg.Type.String(), Amount: amount})
		}
		infos = append(infos, ActionInfo{Name: a.Method, Label: a.Label, Inputs: inputs})
	}

	return infos
}

// Snapshot returns the current displayable state.
func (p *Panel) Snapshot() Snapshot {
	s := Snapshot{
		Key:      p.def.Key,
		Title:    p.def.Title,
		Section:  p.def.Section,
		Error:    p.configErr,
		ReadOnly: p.chain.ReadOnly(),
		Fields:   []FieldValue{},
		Actions:  []ActionInfo{},
		Events:   []Event{},
	}
	if p.parser.account != (common.Address{}) {
		s.Account = p.parser.account.Hex()
	}
	if !p.Configured() {
		return s
	}

	s.Address = p.address
	s.Actions = p.Actions()
	s.Roles = p.Roles()
	s.Events = p.events.Recent()

	p.mu.RLock()
	defer p.mu.RUnlock()

	s.Fields = append(s.Fields, p.fields...)
	s.RefreshedAt = p.refreshedAt
	s.WatchError = p.watchErr
	if p.lastTx != nil {
		tx := *p.lastTx
		s.LastTx = &tx
	}

	return s
}
