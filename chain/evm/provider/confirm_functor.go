package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/smartcontractkit/contract-admin/chain/evm"
	"github.com/smartcontractkit/contract-admin/chain/evm/provider/rpcclient"
)

// ConfirmFunctor creates the function that waits for an admin transaction to be mined.
type ConfirmFunctor interface {
	Generate(
		ctx context.Context, selector uint64, client evm.OnchainClient, from common.Address,
	) (evm.ConfirmFunc, error)
}

// ConfirmFuncGeth returns a ConfirmFunctor that polls the client for the receipt.
func ConfirmFuncGeth(waitMinedTimeout time.Duration, opts ...func(*confirmFuncGeth)) ConfirmFunctor {
	cf := &confirmFuncGeth{
		tickInterval:     1 * time.Second, // matches the interval hardcoded in bind.WaitMined
		waitMinedTimeout: waitMinedTimeout,
	}
	for _, o := range opts {
		o(cf)
	}

	return cf
}

// WithTickInterval sets how often the receipt is polled.
func WithTickInterval(interval time.Duration) func(*confirmFuncGeth) {
	return func(o *confirmFuncGeth) {
		o.tickInterval = interval
	}
}

type confirmFuncGeth struct {
	tickInterval     time.Duration
	waitMinedTimeout time.Duration
}

func (g *confirmFuncGeth) Generate(
	ctx context.Context, selector uint64, client evm.OnchainClient, from common.Address,
) (evm.ConfirmFunc, error) {
	return func(tx *types.Transaction) (uint64, error) {
		if tx == nil {
			return 0, fmt.Errorf("tx was nil, nothing to confirm for selector: %d", selector)
		}

		ctxTimeout, cancel := context.WithTimeout(ctx, g.waitMinedTimeout)
		defer cancel()

		receipt, err := WaitMinedWithInterval(ctxTimeout, g.tickInterval, client, tx.Hash())
		if err != nil {
			return 0, fmt.Errorf("tx %s failed to confirm for selector %d: %w", tx.Hash().Hex(), selector, err)
		}

		return checkReceipt(ctxTimeout, selector, client, from, tx, receipt)
	}, nil
}

// ConfirmFuncMultiClient returns a ConfirmFunctor that waits on every RPC of a MultiClient at
// once and takes the first receipt.
func ConfirmFuncMultiClient(waitMinedTimeout time.Duration) ConfirmFunctor {
	return &confirmFuncMultiClient{waitMinedTimeout: waitMinedTimeout}
}

type confirmFuncMultiClient struct {
	waitMinedTimeout time.Duration
}

func (g *confirmFuncMultiClient) Generate(
	ctx context.Context, selector uint64, client evm.OnchainClient, from common.Address,
) (evm.ConfirmFunc, error) {
	multiClient, ok := client.(*rpcclient.MultiClient)
	if !ok {
		return nil, fmt.Errorf("expected client to be of type *rpcclient.MultiClient, got %T", client)
	}

	return func(tx *types.Transaction) (uint64, error) {
		if tx == nil {
			return 0, fmt.Errorf("tx was nil, nothing to confirm for selector: %d", selector)
		}

		ctxTimeout, cancel := context.WithTimeout(ctx, g.waitMinedTimeout)
		defer cancel()

		receipt, err := multiClient.WaitMined(ctxTimeout, tx)
		if err != nil {
			return 0, fmt.Errorf("tx %s failed to confirm for selector %d: %w", tx.Hash().Hex(), selector, err)
		}

		return checkReceipt(ctxTimeout, selector, client, from, tx, receipt)
	}, nil
}

// checkReceipt returns the block of a successful receipt, or an error carrying the revert
// reason of a failed one.
func checkReceipt(
	ctx context.Context,
	selector uint64,
	caller ContractCaller,
	from common.Address,
	tx *types.Transaction,
	receipt *types.Receipt,
) (uint64, error) {
	if receipt == nil {
		return 0, fmt.Errorf("receipt was nil for tx %s for selector %d", tx.Hash().Hex(), selector)
	}

	blockNum := receipt.BlockNumber.Uint64()
	if receipt.Status == types.ReceiptStatusSuccessful {
		return blockNum, nil
	}

	reason, err := getErrorReasonFromTx(ctx, caller, from, tx, receipt)
	if err == nil && reason != "" {
		return blockNum, fmt.Errorf("tx %s reverted for selector %d: %s", tx.Hash().Hex(), selector, reason)
	}

	return blockNum, fmt.Errorf("tx %s reverted, could not decode error reason for selector %d",
		tx.Hash().Hex(), selector,
	)
}

// WaitMinedWithInterval polls for the receipt at tick, for networks that produce blocks faster
// than bind.WaitMined polls.
func WaitMinedWithInterval(ctx context.Context, tick time.Duration, b bind.DeployBackend, txHash common.Hash) (*types.Receipt, error) {
	queryTicker := time.NewTicker(tick)
	defer queryTicker.Stop()
	for {
		receipt, err := b.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-queryTicker.C:
		}
	}
}
