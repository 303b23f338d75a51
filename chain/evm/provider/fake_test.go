package provider

import (
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/stretchr/testify/assert"
)

// newFakeRPCServer returns a fake RPC server which always answers with a valid `eth_blockNumber“
// response.
//
// When the test is done, the server is closed automatically.
func newFakeRPCServer(t *testing.T) *httptest.Server {
	t.Helper()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		// Return a valid eth_blockNumber response
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"0x1"}`))
	})

	srv := httptest.NewServer(handler)

	t.Cleanup(func() {
		srv.Close()
	})

	return srv
}

// alwaysFailingSignerGenerator is a SignerGenerator that always fails.
type alwaysFailingSignerGenerator struct{}

func (alwaysFailingSignerGenerator) Generate(*big.Int) (*bind.TransactOpts, error) {
	return nil, assert.AnError
}
