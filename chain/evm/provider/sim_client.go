package provider

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
)

// SimClient wraps a simulated backend. It satisfies evm.OnchainClient and exposes Commit to mine
// a block on demand.
type SimClient struct {
	mu sync.Mutex

	simulated.Client
	sim *simulated.Backend
}

// NewSimClient wraps a simulated backend.
func NewSimClient(sim *simulated.Backend) (*SimClient, error) {
	if sim == nil {
		return nil, errors.New("simulated backend must not be nil")
	}

	return &SimClient{
		sim:    sim,
		Client: sim.Client(),
	}, nil
}

// Commit mines the pending transactions into a new block.
func (b *SimClient) Commit() common.Hash {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.sim.Commit()
}

// Close stops the simulated backend.
func (b *SimClient) Close() error {
	return b.sim.Close()
}
