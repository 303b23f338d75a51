package provider

import (
	"testing"
	"time"

	chainsel "github.com/smartcontractkit/chain-selectors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcontractkit/contract-admin/chain/evm/provider/rpcclient"
	"github.com/smartcontractkit/contract-admin/pkg/logger"
)

func Test_RPCChainProviderConfig_validate(t *testing.T) {
	t.Parallel()

	rpc := rpcclient.RPC{
		Name:               "Test",
		HTTPURL:            "http://localhost:8545",
		WSURL:              "ws://localhost:8546",
		PreferredURLScheme: rpcclient.URLSchemePreferenceHTTP,
	}

	confirmFuncGeth := ConfirmFuncGeth(10 * time.Millisecond)

	tests := []struct {
		name    string
		config  RPCChainProviderConfig
		wantErr string
	}{
		{
			name: "valid config",
			config: RPCChainProviderConfig{
				AdminSigner:    TransactorRandom(),
				RPCs:           []rpcclient.RPC{rpc},
				ConfirmFunctor: confirmFuncGeth,
			},
		},
		{
			name: "valid read-only config",
			config: RPCChainProviderConfig{
				RPCs:           []rpcclient.RPC{rpc},
				ConfirmFunctor: confirmFuncGeth,
			},
		},
		{
			name: "missing confirm functor",
			config: RPCChainProviderConfig{
				AdminSigner: TransactorRandom(),
				RPCs:        []rpcclient.RPC{rpc},
			},
			wantErr: "confirm functor is required",
		},
		{
			name: "missing rpcs",
			config: RPCChainProviderConfig{
				AdminSigner:    TransactorRandom(),
				ConfirmFunctor: confirmFuncGeth,
			},
			wantErr: "at least one RPC is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.config.validate()
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func Test_RPCChainProvider_Initialize(t *testing.T) {
	t.Parallel()

	var (
		chainSelector = chainsel.TEST_1000.Selector
		rpcSrv        = newFakeRPCServer(t)
		rpcs          = []rpcclient.RPC{{
			Name:               "fake",
			HTTPURL:            rpcSrv.URL,
			PreferredURLScheme: rpcclient.URLSchemePreferenceHTTP,
		}}
	)

	tests := []struct {
		name         string
		giveSelector uint64
		giveConfig   RPCChainProviderConfig
		wantReadOnly bool
		wantErr      string
	}{
		{
			name:         "valid initialization",
			giveSelector: chainSelector,
			giveConfig: RPCChainProviderConfig{
				AdminSigner:    TransactorRandom(),
				RPCs:           rpcs,
				ConfirmFunctor: ConfirmFuncGeth(1 * time.Minute),
			},
		},
		{
			name:         "read-only without an admin signer",
			giveSelector: chainSelector,
			giveConfig: RPCChainProviderConfig{
				RPCs:           rpcs,
				ConfirmFunctor: ConfirmFuncMultiClient(1 * time.Minute),
			},
			wantReadOnly: true,
		},
		{
			name:         "fails config validation",
			giveSelector: chainSelector,
			giveConfig: RPCChainProviderConfig{
				AdminSigner: TransactorRandom(),
				RPCs:        rpcs,
			},
			wantErr: "failed to validate provider config",
		},
		{
			name:         "unknown selector",
			giveSelector: 999999999999999,
			giveConfig: RPCChainProviderConfig{
				RPCs:           rpcs,
				ConfirmFunctor: ConfirmFuncGeth(1 * time.Minute),
			},
			wantErr: "failed to get chain ID from selector",
		},
		{
			name:         "admin signer fails",
			giveSelector: chainSelector,
			giveConfig: RPCChainProviderConfig{
				AdminSigner:    alwaysFailingSignerGenerator{},
				RPCs:           rpcs,
				ConfirmFunctor: ConfirmFuncGeth(1 * time.Minute),
			},
			wantErr: "failed to generate admin key",
		},
		{
			name:         "no reachable RPC",
			giveSelector: chainSelector,
			giveConfig: RPCChainProviderConfig{
				RPCs: []rpcclient.RPC{{
					Name:               "broken",
					HTTPURL:            "wxz://localhost",
					PreferredURLScheme: rpcclient.URLSchemePreferenceHTTP,
				}},
				ConfirmFunctor: ConfirmFuncGeth(1 * time.Minute),
			},
			wantErr: "failed to create multi-client",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tt.giveConfig.Logger = logger.Test(t)
			p := NewRPCChainProvider(tt.giveSelector, tt.giveConfig)

			got, err := p.Initialize(t.Context())
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.giveSelector, got.Selector)
			assert.NotNil(t, got.Client)
			assert.NotNil(t, got.Confirm)
			assert.Equal(t, tt.wantReadOnly, got.ReadOnly())

			again, err := p.Initialize(t.Context())
			require.NoError(t, err)
			assert.Equal(t, got.AdminKey, again.AdminKey)
		})
	}
}

func Test_RPCChainProvider_Name(t *testing.T) {
	t.Parallel()

	p := &RPCChainProvider{}
	assert.Equal(t, "EVM RPC Chain Provider", p.Name())
}

func Test_RPCChainProvider_ChainSelector(t *testing.T) {
	t.Parallel()

	p := &RPCChainProvider{selector: chainsel.TEST_1000.Selector}
	assert.Equal(t, chainsel.TEST_1000.Selector, p.ChainSelector())
}
