package console

import (
	"context"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chainsel "github.com/smartcontractkit/chain-selectors"

	"github.com/smartcontractkit/contract-admin/chain/evm"
	"github.com/smartcontractkit/contract-admin/chain/evm/provider"
	"github.com/smartcontractkit/contract-admin/chain/evm/provider/rpcclient"
	"github.com/smartcontractkit/contract-admin/config"
	"github.com/smartcontractkit/contract-admin/contracts"
	"github.com/smartcontractkit/contract-admin/panel"
	"github.com/smartcontractkit/contract-admin/pkg/logger"
)

// constantInitCode deploys a contract answering every call with the 32-byte word 1.
const constantInitCode = "0x69600160005260206000f3600052600a6016f3"

func newSimProvider(t *testing.T) (*provider.SimChainProvider, evm.Chain) {
	t.Helper()

	p := provider.NewSimChainProvider(chainsel.GETH_TESTNET.Selector, provider.SimChainProviderConfig{})
	chain, err := p.Initialize(t.Context())
	require.NoError(t, err)

	return p, chain
}

func deployConstantContract(t *testing.T, chain evm.Chain) common.Address {
	t.Helper()

	ctx := t.Context()
	nonce, err := chain.Client.PendingNonceAt(ctx, chain.AdminKey.From)
	require.NoError(t, err)
	gasPrice, err := chain.Client.SuggestGasPrice(ctx)
	require.NoError(t, err)

	tx := types.NewContractCreation(nonce, big.NewInt(0), 100_000, gasPrice, common.FromHex(constantInitCode))
	signed, err := chain.AdminKey.Signer(chain.AdminKey.From, tx)
	require.NoError(t, err)
	require.NoError(t, chain.Client.SendTransaction(ctx, signed))
	_, err = chain.Confirm(signed)
	require.NoError(t, err)

	return crypto.CreateAddress(chain.AdminKey.From, nonce)
}

func newTestConsole(t *testing.T, cfg *config.Config, opts ...Option) *Console {
	t.Helper()

	c, err := New(t.Context(), cfg, logger.Test(t), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return c
}

func TestConsole_navigation(t *testing.T) {
	t.Parallel()

	p, _ := newSimProvider(t)
	c := newTestConsole(t, &config.Config{}, WithProvider(p))

	sections := c.Sections()
	require.Len(t, sections, 3)
	assert.Equal(t, contracts.Sections(), sections)

	section, panels, err := c.Section(contracts.SectionCarbon)
	require.NoError(t, err)
	assert.Equal(t, "Carbon Credits", section.Title)
	require.Len(t, panels, 3)
	assert.Equal(t, "carbon-credit", panels[0].Key())

	_, _, err = c.Section("nft")
	require.ErrorIs(t, err, ErrUnknownSection)

	_, err = c.Panel("nft")
	require.ErrorIs(t, err, ErrUnknownPanel)

	assert.Len(t, c.Panels(), len(contracts.Definitions()))
	assert.NotNil(t, c.Registry())
}

func TestConsole_missingAddresses(t *testing.T) {
	t.Parallel()

	p, _ := newSimProvider(t)
	c := newTestConsole(t, &config.Config{}, WithProvider(p))

	token, err := c.Panel("token")
	require.NoError(t, err)
	assert.Equal(t, "Finance Token: contract address not configured (TOKEN_ADDRESS)", token.Snapshot().Error)

	// Misconfigured panels are skipped, the others keep working.
	c.RefreshAll(t.Context())
	c.WatchAll()
	require.NoError(t, c.Close())
}

func TestConsole_AccountInfo(t *testing.T) {
	t.Parallel()

	p, chain := newSimProvider(t)
	c := newTestConsole(t, &config.Config{}, WithProvider(p))

	assert.Equal(t, chain.AdminKey.From, c.Account())

	info, err := c.AccountInfo(t.Context())
	require.NoError(t, err)
	assert.Equal(t, chain.AdminKey.From.Hex(), info.Address)
	assert.Equal(t, chainsel.GETH_TESTNET.Selector, info.Selector)
	assert.False(t, info.ReadOnly)
	assert.Equal(t, "1000000", info.Balance)
}

func TestConsole_readOnly(t *testing.T) {
	t.Parallel()

	_, chain := newSimProvider(t)
	addr := deployConstantContract(t, chain)

	chain.AdminKey = nil
	c := newTestConsole(t, &config.Config{Contracts: map[string]string{"token": addr.Hex()}},
		WithProvider(staticProvider{chain: chain}))

	info, err := c.AccountInfo(t.Context())
	require.NoError(t, err)
	assert.True(t, info.ReadOnly)
	assert.Empty(t, info.Address)

	_, err = c.NativeBalance(t.Context())
	require.ErrorIs(t, err, panel.ErrReadOnly)

	token, err := c.Panel("token")
	require.NoError(t, err)
	_, err = token.Submit(t.Context(), "pause", nil)
	require.ErrorIs(t, err, panel.ErrReadOnly)
}

func TestConsole_submitAndHistory(t *testing.T) {
	t.Parallel()

	p, chain := newSimProvider(t)
	addr := deployConstantContract(t, chain)
	c := newTestConsole(t, &config.Config{Contracts: map[string]string{"token": addr.Hex()}},
		WithProvider(p), WithHistorySize(10))

	c.RefreshAll(t.Context())
	token, err := c.Panel("token")
	require.NoError(t, err)

	fields := token.Snapshot().Fields
	require.Len(t, fields, 5)
	assert.NotEmpty(t, fields[0].Error, "name cannot be decoded from a single word")
	assert.Equal(t, "0.000000000000000001", fields[2].Value)
	assert.Equal(t, "true", fields[4].Value)

	res, err := token.Submit(t.Context(), "pause", nil)
	require.NoError(t, err)
	assert.NotZero(t, res.Block)

	_, err = token.Submit(t.Context(), "mint", map[string]string{"to": "nope", "amount": "1"})
	var verrs panel.ValidationErrors
	require.ErrorAs(t, err, &verrs)

	history, err := c.History()
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, panel.SubmitOperationID, history[0].Def.ID)
	assert.Empty(t, c.TxURL(res.Hash))
}

func TestConsole_watchAllAndClose(t *testing.T) {
	t.Parallel()

	p, chain := newSimProvider(t)
	addr := deployConstantContract(t, chain)
	c := newTestConsole(t, &config.Config{Contracts: map[string]string{"token": addr.Hex()}},
		WithProvider(p), WithPanelOptions(panel.WithPollInterval(10*time.Millisecond)))

	c.WatchAll()

	done := make(chan error, 1)
	go func() { done <- c.Close() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("close did not stop the watchers")
	}
	require.NoError(t, c.Close())
}

func TestNew_closesClientOnError(t *testing.T) {
	t.Parallel()

	def, ok := contracts.Lookup("token")
	require.True(t, ok)
	broken := def
	broken.Key = "broken"
	broken.Interface = []byte("not an interface description")

	tests := []struct {
		name    string
		give    []panel.Definition
		wantErr string
	}{
		{
			name:    "panel declared twice",
			give:    []panel.Definition{def, def},
			wantErr: "panel token declared twice",
		},
		{
			name:    "role registry",
			give:    []panel.Definition{def, broken},
			wantErr: "failed to build role registry",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, chain := newSimProvider(t)
			client := &closeCounter{OnchainClient: chain.Client}
			chain.Client = client

			_, err := New(t.Context(), &config.Config{}, logger.Test(t),
				WithProvider(staticProvider{chain: chain}), WithDefinitions(tt.give))
			require.ErrorContains(t, err, tt.wantErr)
			assert.Equal(t, int32(1), client.closed.Load())
		})
	}
}

func Test_newSigner(t *testing.T) {
	t.Parallel()

	privKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	rawKey := hexutil.Encode(crypto.FromECDSA(privKey))
	kms := config.KMSConfig{KeyID: "admin-key", KeyRegion: "eu-central-1"}

	tests := []struct {
		name     string
		give     config.OnchainConfig
		wantType provider.SignerGenerator
		wantErr  string
	}{
		{
			name:     "KMS key wins over the raw key",
			give:     config.OnchainConfig{KMS: kms, EVM: config.EVMConfig{AdminKey: rawKey}},
			wantType: provider.TransactorFromKMSSigner(nil),
		},
		{
			name:     "raw key",
			give:     config.OnchainConfig{EVM: config.EVMConfig{AdminKey: rawKey}},
			wantType: provider.TransactorFromRaw(""),
		},
		{
			name: "read-only",
		},
		{
			name:    "KMS key without region",
			give:    config.OnchainConfig{KMS: config.KMSConfig{KeyID: "admin-key"}},
			wantErr: "failed to create KMS signer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := newSigner(&config.Config{Onchain: tt.give})
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			if tt.wantType == nil {
				assert.Nil(t, got)
				return
			}
			assert.IsType(t, tt.wantType, got)
		})
	}
}

func TestNewChainProvider(t *testing.T) {
	t.Parallel()

	lggr := logger.Test(t)

	_, _, err := NewChainProvider(&config.Config{}, lggr)
	require.ErrorContains(t, err, "invalid configuration")

	p, explorer, err := NewChainProvider(&config.Config{
		Chain:   config.ChainConfig{Selector: chainsel.ETHEREUM_TESTNET_SEPOLIA.Selector, NetworksFile: "testdata/networks.yaml"},
		Onchain: config.OnchainConfig{EVM: config.EVMConfig{AdminKey: "0x01"}},
	}, lggr)
	require.NoError(t, err)
	assert.Equal(t, chainsel.ETHEREUM_TESTNET_SEPOLIA.Selector, p.ChainSelector())
	assert.Equal(t, "https://sepolia.etherscan.io", explorer.URL)

	_, _, err = NewChainProvider(&config.Config{
		Chain: config.ChainConfig{Selector: chainsel.ETHEREUM_MAINNET.Selector, NetworksFile: "testdata/networks.yaml"},
	}, lggr)
	require.ErrorContains(t, err, "not found in configuration")

	p, _, err = NewChainProvider(&config.Config{
		Chain: config.ChainConfig{Selector: chainsel.GETH_TESTNET.Selector, RPCURL: "ws://127.0.0.1:8546"},
	}, lggr)
	require.NoError(t, err)
	assert.Equal(t, "EVM RPC Chain Provider", p.Name())
}

func Test_rpcFromURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		url        string
		want       rpcclient.RPC
		wantErrMsg string
	}{
		{name: "http", url: "http://127.0.0.1:8545", want: rpcclient.RPC{Name: "127.0.0.1:8545", HTTPURL: "http://127.0.0.1:8545"}},
		{name: "wss", url: "wss://node.example.com/key", want: rpcclient.RPC{Name: "node.example.com", WSURL: "wss://node.example.com/key"}},
		{name: "unsupported", url: "ftp://node", wantErrMsg: `unsupported RPC URL scheme "ftp"`},
		{name: "malformed", url: "http://[::1", wantErrMsg: "invalid RPC URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := rpcFromURL(tt.url)
			if tt.wantErrMsg != "" {
				require.ErrorContains(t, err, tt.wantErrMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// closeCounter counts Close calls on the wrapped client.
type closeCounter struct {
	evm.OnchainClient
	closed atomic.Int32
}

func (c *closeCounter) Close() { c.closed.Add(1) }

// staticProvider hands out a prepared chain.
type staticProvider struct {
	chain evm.Chain
}

func (s staticProvider) Initialize(context.Context) (evm.Chain, error) { return s.chain, nil }
func (s staticProvider) Name() string                                  { return "static" }
func (s staticProvider) ChainSelector() uint64                         { return s.chain.Selector }
