package panel

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"
	"github.com/stretchr/testify/require"

	chainsel "github.com/smartcontractkit/chain-selectors"

	"github.com/smartcontractkit/contract-admin/chain/evm"
	"github.com/smartcontractkit/contract-admin/pkg/logger"
	"github.com/smartcontractkit/contract-admin/roles"
)

const testInterface = `[
	{"type":"function","name":"DEFAULT_ADMIN_ROLE","inputs":[],"outputs":[{"name":"","type":"bytes32"}],"stateMutability":"view"},
	{"type":"function","name":"MINTER_ROLE","inputs":[],"outputs":[{"name":"","type":"bytes32"}],"stateMutability":"view"},
	{"type":"function","name":"hasRole","inputs":[{"name":"role","type":"bytes32"},{"name":"account","type":"address"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"view"},
	{"type":"function","name":"name","inputs":[],"outputs":[{"name":"","type":"string"}],"stateMutability":"view"},
	{"type":"function","name":"totalSupply","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"balanceOf","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"paused","inputs":[],"outputs":[{"name":"","type":"bool"}],"stateMutability":"view"},
	{"type":"function","name":"feeBps","inputs":[],"outputs":[{"name":"","type":"uint16"}],"stateMutability":"view"},
	{"type":"function","name":"mint","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"function","name":"pause","inputs":[],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"function","name":"grantRole","inputs":[{"name":"role","type":"bytes32"},{"name":"account","type":"address"}],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"function","name":"setFee","inputs":[{"name":"feeBps","type":"uint16"}],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"function","name":"setRecipients","inputs":[{"name":"recipients","type":"address[]"},{"name":"shares","type":"uint256[]"}],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"function","name":"setMetadata","inputs":[{"name":"id","type":"bytes32"},{"name":"data","type":"bytes"},{"name":"uri","type":"string"},{"name":"active","type":"bool"},{"name":"delta","type":"int64"}],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"event","name":"Transfer","anonymous":false,"inputs":[{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"value","type":"uint256","indexed":false}]},
	{"type":"event","name":"RoleGranted","anonymous":false,"inputs":[{"name":"role","type":"bytes32","indexed":true},{"name":"account","type":"address","indexed":true},{"name":"sender","type":"address","indexed":true}]},
	{"type":"event","name":"Paused","anonymous":false,"inputs":[{"name":"account","type":"address","indexed":false}]}
]`

var (
	testContract = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	testHolder   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
)

func testDefinition() Definition {
	return Definition{
		Key:        "token",
		Title:      "Token",
		Section:    "finance",
		AddressEnv: "TOKEN_ADDRESS",
		Interface:  []byte(testInterface),
		Decimals:   18,
		Fields: []Field{
			{Label: "Name", Method: "name"},
			{Label: "Total supply", Method: "totalSupply", Format: FormatAmount},
			{Label: "Your balance", Method: "balanceOf", Args: []string{AccountArg}, Format: FormatAmount},
			{Label: "Paused", Method: "paused"},
			{Label: "Fee", Method: "feeBps", Format: FormatBps},
		},
		Actions: []Action{
			{Label: "Mint", Method: "mint", Amounts: []string{"amount"}},
			{Label: "Pause", Method: "pause"},
			{Label: "Grant role", Method: "grantRole"},
			{Label: "Set fee", Method: "setFee"},
			{Label: "Set recipients", Method: "setRecipients"},
		},
		Events: []string{"Transfer", "RoleGranted"},
	}
}

func testABI(t *testing.T) abi.ABI {
	t.Helper()

	parsed, err := abi.JSON(strings.NewReader(testInterface))
	require.NoError(t, err)

	return parsed
}

func testRegistry(t *testing.T) *roles.Registry {
	t.Helper()

	registry, err := roles.NewRegistry(logger.Test(t), []byte(testInterface))
	require.NoError(t, err)

	return registry
}

// fakeBackend answers contract calls by decoding the selector and packing canned results.
type fakeBackend struct {
	abi abi.ABI

	mu        sync.Mutex
	results   map[string][]any
	callErrs  map[string]error
	callArgs  map[string][]any
	sent      []*types.Transaction
	sendErr   error
	logs      []types.Log
	subErr    error
	subFeed   chan error
	head      uint64
	headCalls int
}

var _ evm.OnchainClient = (*fakeBackend)(nil)

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()

	return &fakeBackend{
		abi:      testABI(t),
		results:  make(map[string][]any),
		callErrs: make(map[string]error),
		callArgs: make(map[string][]any),
		head:     10,
	}
}

func (f *fakeBackend) setResult(method string, values ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[method] = values
}

func (f *fakeBackend) setCallErr(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callErrs[method] = err
}

func (f *fakeBackend) lastArgs(method string) []any {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.callArgs[method]
}

func (f *fakeBackend) sentTxs() []*types.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]*types.Transaction(nil), f.sent...)
}

func (f *fakeBackend) setHead(n uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.head = n
}

func (f *fakeBackend) addLog(lg types.Log) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, lg)
}

func (f *fakeBackend) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	method, err := f.abi.MethodById(call.Data)
	if err != nil {
		return nil, err
	}
	args, err := method.Inputs.Unpack(call.Data[4:])
	if err != nil {
		return nil, err
	}
	f.callArgs[method.Name] = args

	if err := f.callErrs[method.Name]; err != nil {
		return nil, err
	}
	values, ok := f.results[method.Name]
	if !ok {
		return nil, fmt.Errorf("no result for %s", method.Name)
	}

	return method.Outputs.Pack(values...)
}

func (f *fakeBackend) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return []byte{0x1}, nil
}

func (f *fakeBackend) PendingCodeAt(context.Context, common.Address) ([]byte, error) {
	return []byte{0x1}, nil
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return uint64(len(f.sent)), nil
}

func (f *fakeBackend) NonceAt(ctx context.Context, account common.Address, _ *big.Int) (uint64, error) {
	return f.PendingNonceAt(ctx, account)
}

func (f *fakeBackend) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return big.NewInt(1e18), nil
}

func (f *fakeBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.headCalls++

	return &types.Header{Number: new(big.Int).SetUint64(f.head)}, nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeBackend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 100_000, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)

	return nil
}

func (f *fakeBackend) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	return nil, ethereum.NotFound
}

func (f *fakeBackend) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []types.Log
	for _, lg := range f.logs {
		if q.FromBlock != nil && lg.BlockNumber < q.FromBlock.Uint64() {
			continue
		}
		if q.ToBlock != nil && lg.BlockNumber > q.ToBlock.Uint64() {
			continue
		}
		out = append(out, lg)
	}

	return out, nil
}

// SubscribeFilterLogs delivers the logs known at subscription time, then whatever error is
// pushed to subFeed.
func (f *fakeBackend) SubscribeFilterLogs(
	_ context.Context, _ ethereum.FilterQuery, ch chan<- types.Log,
) (ethereum.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.subErr != nil {
		return nil, f.subErr
	}
	logs := append([]types.Log(nil), f.logs...)
	feed := f.subFeed

	return event.NewSubscription(func(quit <-chan struct{}) error {
		for _, lg := range logs {
			select {
			case ch <- lg:
			case <-quit:
				return nil
			}
		}
		select {
		case err := <-feed:
			return err
		case <-quit:
			return nil
		}
	}), nil
}

// testChain returns a writable chain over backend whose confirm function reports block 7.
func testChain(t *testing.T, backend *fakeBackend) evm.Chain {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	opts, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(1337))
	require.NoError(t, err)

	return evm.Chain{
		Selector: chainsel.GETH_TESTNET.Selector,
		Client:   backend,
		AdminKey: opts,
		Confirm: func(*types.Transaction) (uint64, error) {
			return 7, nil
		},
	}
}

func newTestPanel(t *testing.T, backend *fakeBackend, opts ...Option) *Panel {
	t.Helper()

	p, err := New(testDefinition(), testContract.Hex(), testChain(t, backend), testRegistry(t), logger.Test(t), opts...)
	require.NoError(t, err)

	return p
}

func transferLog(t *testing.T, block uint64, from, to common.Address, value int64) types.Log {
	t.Helper()

	ev := testABI(t).Events["Transfer"]
	data, err := ev.Inputs.NonIndexed().Pack(big.NewInt(value))
	require.NoError(t, err)

	return types.Log{
		Address:     testContract,
		Topics:      []common.Hash{ev.ID, common.BytesToHash(from.Bytes()), common.BytesToHash(to.Bytes())},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.BigToHash(new(big.Int).SetUint64(block)),
	}
}

var errCallFailed = errors.New("execution reverted")
