package provider

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/ethereum/go-ethereum/params"

	"github.com/smartcontractkit/contract-admin/chain/evm"
)

var (
	// simChainID is the chain ID of every simulated chain.
	simChainID = params.AllDevChainProtocolChanges.ChainID
	// prefundAmountWei is the balance of the admin account at genesis: 1,000,000 ether.
	prefundAmountWei = new(big.Int).Mul(big.NewInt(1_000_000), big.NewInt(params.Ether))
)

// SimChainProviderConfig holds the configuration to initialize the SimChainProvider.
type SimChainProviderConfig struct {
	// Optional: AdminSigner generates the admin key. Defaults to TransactorRandom.
	AdminSigner SignerGenerator
	// Optional: BlockTime is the interval between automatically mined blocks. With zero, blocks
	// are mined by the confirm function only.
	BlockTime time.Duration
}

// SimChainProvider manages an in-memory chain backed by go-ethereum's simulated backend. The
// admin account is prefunded at genesis.
type SimChainProvider struct {
	selector uint64
	config   SimChainProviderConfig

	chain  *evm.Chain
	client *SimClient
}

// NewSimChainProvider creates a new SimChainProvider with the given selector and configuration.
func NewSimChainProvider(selector uint64, config SimChainProviderConfig) *SimChainProvider {
	return &SimChainProvider{
		selector: selector,
		config:   config,
	}
}

// Initialize starts the simulated backend. Automatic mining stops when ctx is done.
func (p *SimChainProvider) Initialize(ctx context.Context) (evm.Chain, error) {
	if p.chain != nil {
		return *p.chain, nil
	}

	signer := p.config.AdminSigner
	if signer == nil {
		signer = TransactorRandom()
	}

	adminKey, err := signer.Generate(simChainID)
	if err != nil {
		return evm.Chain{}, fmt.Errorf("failed to generate admin key: %w", err)
	}

	backend := simulated.NewBackend(
		types.GenesisAlloc{adminKey.From: {Balance: prefundAmountWei}},
		simulated.WithBlockGasLimit(50000000),
	)
	backend.Commit()

	client, err := NewSimClient(backend)
	if err != nil {
		return evm.Chain{}, err
	}

	if p.config.BlockTime > 0 {
		startAutoMine(ctx, client, p.config.BlockTime)
	}

	p.client = client
	p.chain = &evm.Chain{
		Selector: p.selector,
		Client:   client,
		AdminKey: adminKey,
		Confirm:  p.confirm(ctx, client, adminKey),
	}

	return *p.chain, nil
}

// confirm mines a block and checks the receipt of the transaction.
func (p *SimChainProvider) confirm(ctx context.Context, client *SimClient, adminKey *bind.TransactOpts) evm.ConfirmFunc {
	return func(tx *types.Transaction) (uint64, error) {
		if tx == nil {
			return 0, fmt.Errorf("tx was nil, nothing to confirm for selector: %d", p.selector)
		}

		client.Commit()

		waitCtx, cancel := context.WithTimeout(ctx, 1*time.Minute)
		defer cancel()

		receipt, err := bind.WaitMined(waitCtx, client, tx)
		if err != nil {
			return 0, fmt.Errorf("tx %s failed to confirm for selector %d: %w", tx.Hash().Hex(), p.selector, err)
		}

		return checkReceipt(waitCtx, p.selector, client, adminKey.From, tx, receipt)
	}
}

// Client returns the simulated client, or nil before Initialize.
func (p *SimChainProvider) Client() *SimClient {
	return p.client
}

// Name returns the name of the SimChainProvider.
func (*SimChainProvider) Name() string {
	return "Simulated EVM Chain Provider"
}

// ChainSelector returns the chain selector of the simulated chain managed by this provider.
func (p *SimChainProvider) ChainSelector() uint64 {
	return p.selector
}

// startAutoMine commits a block every blockTime until ctx is done.
func startAutoMine(ctx context.Context, client *SimClient, blockTime time.Duration) {
	ticker := time.NewTicker(blockTime)
	go func() {
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				client.Commit()
			case <-ctx.Done():
				return
			}
		}
	}()
}
