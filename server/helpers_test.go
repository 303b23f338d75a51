package server

import (
	"context"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	chainsel "github.com/smartcontractkit/chain-selectors"

	"github.com/smartcontractkit/contract-admin/chain/evm"
	"github.com/smartcontractkit/contract-admin/chain/evm/provider"
	"github.com/smartcontractkit/contract-admin/config"
	"github.com/smartcontractkit/contract-admin/console"
	"github.com/smartcontractkit/contract-admin/pkg/logger"
)

// constantInitCode deploys a contract answering every call with the 32-byte word 1.
const constantInitCode = "0x69600160005260206000f3600052600a6016f3"

type testEnv struct {
	console *console.Console
	server  *Server
	chain   evm.Chain
	token   common.Address
}

// newTestEnv starts a console on a simulated chain where only the token panel is configured.
func newTestEnv(t *testing.T, readOnly bool) *testEnv {
	t.Helper()

	p := provider.NewSimChainProvider(chainsel.GETH_TESTNET.Selector, provider.SimChainProviderConfig{})
	chain, err := p.Initialize(t.Context())
	require.NoError(t, err)
	token := deployConstantContract(t, chain)

	if readOnly {
		chain.AdminKey = nil
	}

	lggr := logger.Test(t)
	c, err := console.New(t.Context(), &config.Config{Contracts: map[string]string{"token": token.Hex()}}, lggr,
		console.WithProvider(staticProvider{chain: chain}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return &testEnv{
		console: c,
		server:  New(c, lggr),
		chain:   chain,
		token:   token,
	}
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

// do serves one request and decodes the JSON response into a generic map.
func (e *testEnv) do(t *testing.T, method, target, body string) (int, map[string]any) {
	t.Helper()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}

	return rec.Code, out
}

type staticProvider struct {
	chain evm.Chain
}

func (s staticProvider) Initialize(context.Context) (evm.Chain, error) { return s.chain, nil }
func (s staticProvider) Name() string                                  { return "static" }
func (s staticProvider) ChainSelector() uint64                         { return s.chain.Selector }

var _ http.Handler = (*Server)(nil)
