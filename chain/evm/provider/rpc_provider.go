package provider

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	chainsel "github.com/smartcontractkit/chain-selectors"

	"github.com/smartcontractkit/contract-admin/chain/evm"
	"github.com/smartcontractkit/contract-admin/chain/evm/provider/rpcclient"
	"github.com/smartcontractkit/contract-admin/pkg/logger"
)

// RPCChainProviderConfig holds the configuration to initialize the RPCChainProvider.
type RPCChainProviderConfig struct {
	// Optional: AdminSigner generates the key that signs admin transactions. Use
	// TransactorFromRaw for a private key or TransactorFromKMS for a KMS key. Without a signer
	// the chain is read-only.
	AdminSigner SignerGenerator
	// Required: At least one RPC must be provided to connect to the EVM node.
	RPCs []rpcclient.RPC
	// Required: ConfirmFunctor generates the function that waits for admin transactions. If in
	// doubt, use ConfirmFuncGeth.
	ConfirmFunctor ConfirmFunctor
	// Optional: ClientOpts are applied to the MultiClient, e.g. rpcclient.WithRetryConfig.
	ClientOpts []func(client *rpcclient.MultiClient)
	// Optional: Logger defaults to logger.New.
	Logger logger.Logger
}

func (c RPCChainProviderConfig) validate() error {
	if c.ConfirmFunctor == nil {
		return errors.New("confirm functor is required")
	}
	if len(c.RPCs) == 0 {
		return errors.New("at least one RPC is required")
	}

	return nil
}

// RPCChainProvider provides a chain that connects to EVM nodes over RPC.
type RPCChainProvider struct {
	selector uint64
	config   RPCChainProviderConfig

	chain *evm.Chain
}

// NewRPCChainProvider creates a new RPCChainProvider with the given selector and configuration.
func NewRPCChainProvider(selector uint64, config RPCChainProviderConfig) *RPCChainProvider {
	return &RPCChainProvider{
		selector: selector,
		config:   config,
	}
}

// Initialize dials the RPCs and generates the admin key. Later calls return the same chain.
func (p *RPCChainProvider) Initialize(ctx context.Context) (evm.Chain, error) {
	if p.chain != nil {
		return *p.chain, nil
	}

	if p.config.Logger == nil {
		lggr, err := logger.New()
		if err != nil {
			return evm.Chain{}, fmt.Errorf("failed to create default logger: %w", err)
		}
		p.config.Logger = lggr
	}

	if err := p.config.validate(); err != nil {
		return evm.Chain{}, fmt.Errorf("failed to validate provider config: %w", err)
	}

	chainIDStr, err := chainsel.GetChainIDFromSelector(p.selector)
	if err != nil {
		return evm.Chain{}, fmt.Errorf("failed to get chain ID from selector %d: %w", p.selector, err)
	}

	chainID, ok := new(big.Int).SetString(chainIDStr, 10)
	if !ok {
		return evm.Chain{}, fmt.Errorf("failed to convert chain ID %s to big.Int", chainIDStr)
	}

	c := evm.Chain{Selector: p.selector}
	if p.config.AdminSigner != nil {
		c.AdminKey, err = p.config.AdminSigner.Generate(chainID)
		if err != nil {
			return evm.Chain{}, fmt.Errorf("failed to generate admin key: %w", err)
		}
	} else {
		p.config.Logger.Warnw("No admin key configured, chain is read-only", "chain", c.String())
	}

	client, err := rpcclient.NewMultiClient(p.config.Logger, rpcclient.RPCConfig{
		ChainSelector: p.selector,
		RPCs:          p.config.RPCs,
	}, p.config.ClientOpts...)
	if err != nil {
		return evm.Chain{}, fmt.Errorf("failed to create multi-client: %w", err)
	}
	c.Client = client

	var from common.Address
	if c.AdminKey != nil {
		from = c.AdminKey.From
	}
	c.Confirm, err = p.config.ConfirmFunctor.Generate(ctx, p.selector, client, from)
	if err != nil {
		return evm.Chain{}, fmt.Errorf("failed to generate confirm function: %w", err)
	}

	p.chain = &c

	return c, nil
}

// Name returns the name of the RPCChainProvider.
func (*RPCChainProvider) Name() string {
	return "EVM RPC Chain Provider"
}

// ChainSelector returns the chain selector of the chain managed by this provider.
func (p *RPCChainProvider) ChainSelector() uint64 {
	return p.selector
}
