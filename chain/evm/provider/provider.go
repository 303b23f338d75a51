// Package provider builds the evm.Chain the console talks to: an RPC backed chain for real
// networks and an in-memory simulated chain for local use and tests.
package provider

import (
	"context"

	"github.com/smartcontractkit/contract-admin/chain/evm"
)

// ChainProvider initializes a chain once and hands out the same chain afterwards.
type ChainProvider interface {
	Initialize(ctx context.Context) (evm.Chain, error)
	Name() string
	ChainSelector() uint64
}

var (
	_ ChainProvider = (*RPCChainProvider)(nil)
	_ ChainProvider = (*SimChainProvider)(nil)
)
