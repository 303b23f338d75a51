// Package evm holds the chain handle the console reads from and writes to.
package evm

import (
	"context"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	chainsel "github.com/smartcontractkit/chain-selectors"
)

// ConfirmFunc is a function that takes a transaction, waits for the transaction to be confirmed,
// and returns the block number and an error.
type ConfirmFunc func(tx *types.Transaction) (uint64, error)

// OnchainClient is an EVM chain client.
// For EVM specifically we can use existing geth interface to abstract chain clients.
type OnchainClient interface {
	bind.ContractBackend
	bind.DeployBackend

	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
}

// Chain represents an EVM chain.
type Chain struct {
	Selector uint64

	Client OnchainClient
	// AdminKey signs the transactions submitted from the console. A nil key makes the chain
	// read-only.
	AdminKey *bind.TransactOpts
	Confirm  ConfirmFunc
}

// ChainSelector returns the chain selector of the chain
func (c Chain) ChainSelector() uint64 {
	return c.Selector
}

// String returns chain name and selector "<name> (<selector>)"
func (c Chain) String() string {
	return fmt.Sprintf("%s (%d)", c.Name(), c.Selector)
}

// Name returns the name of the chain, or the selector when the chain is unknown.
func (c Chain) Name() string {
	if ch, ok := chainsel.ChainBySelector(c.Selector); ok && ch.Name != "" {
		return ch.Name
	}

	return strconv.FormatUint(c.Selector, 10)
}

// Family returns the family of the chain
func (c Chain) Family() string {
	family, err := chainsel.GetSelectorFamily(c.Selector)
	if err != nil {
		return ""
	}

	return family
}

// ReadOnly reports whether the chain has no admin key to sign with.
func (c Chain) ReadOnly() bool {
	return c.AdminKey == nil
}

// Account returns the address of the admin key, or the zero address for a read-only chain.
func (c Chain) Account() common.Address {
	if c.AdminKey == nil {
		return common.Address{}
	}

	return c.AdminKey.From
}
