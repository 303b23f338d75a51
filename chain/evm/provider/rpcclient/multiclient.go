// Package rpcclient provides an EVM client that spreads calls over a primary RPC and its
// backups.
package rpcclient

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/google/uuid"

	chainsel "github.com/smartcontractkit/chain-selectors"

	"github.com/smartcontractkit/contract-admin/chain/evm"
	"github.com/smartcontractkit/contract-admin/pkg/logger"
)

const (
	// Default retry configuration for RPC calls
	RPCDefaultRetryAttempts = 1
	RPCDefaultRetryDelay    = 1000 * time.Millisecond
	RPCDefaultRetryTimeout  = 10 * time.Second

	// Default retry configuration for dialing RPC endpoints
	RPCDefaultDialRetryAttempts = 1
	RPCDefaultDialRetryDelay    = 1000 * time.Millisecond
	RPCDefaultDialTimeout       = 10 * time.Second

	RPCDefaultHealthCheckTimeout = 2 * time.Second
)

type RetryConfig struct {
	Attempts     uint
	Delay        time.Duration
	Timeout      time.Duration
	DialAttempts uint
	DialDelay    time.Duration
	DialTimeout  time.Duration
}

func defaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts:     RPCDefaultRetryAttempts,
		Delay:        RPCDefaultRetryDelay,
		Timeout:      RPCDefaultRetryTimeout,
		DialAttempts: RPCDefaultDialRetryAttempts,
		DialDelay:    RPCDefaultDialRetryDelay,
		DialTimeout:  RPCDefaultDialTimeout,
	}
}

// WithRetryConfig overrides the default retry configuration.
func WithRetryConfig(cfg RetryConfig) func(*MultiClient) {
	return func(mc *MultiClient) {
		mc.RetryConfig = cfg
	}
}

var _ evm.OnchainClient = &MultiClient{}

// MultiClient is an evm.OnchainClient backed by a primary RPC and any number of backups. Each
// call is retried against the primary, then each backup in turn. The first client to succeed
// becomes the new primary.
type MultiClient struct {
	*ethclient.Client
	Backups     []*ethclient.Client
	RetryConfig RetryConfig
	lggr        logger.Logger
	chainName   string
	mu          sync.RWMutex
}

// NewMultiClient dials every RPC of the config, dropping the ones that cannot be dialed or fail
// a block number health check. At least one RPC has to survive.
func NewMultiClient(lggr logger.Logger, rpcsCfg RPCConfig, opts ...func(client *MultiClient)) (*MultiClient, error) {
	if len(rpcsCfg.RPCs) == 0 {
		return nil, errors.New("no RPCs provided, need at least one")
	}
	chain, exists := chainsel.ChainBySelector(rpcsCfg.ChainSelector)
	if !exists {
		return nil, fmt.Errorf("chain with selector %d not found", rpcsCfg.ChainSelector)
	}
	mc := MultiClient{
		lggr:        lggr,
		chainName:   chain.Name,
		RetryConfig: defaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(&mc)
	}

	clients := make([]*ethclient.Client, 0, len(rpcsCfg.RPCs))
	for i, r := range rpcsCfg.RPCs {
		client, err := mc.dialWithRetry(r, lggr)
		if err != nil {
			lggr.Warnw("Failed to dial RPC, trying the next one",
				"index", i, "rpc", r.Name, "chain", chain.Name, "error", err)

			continue
		}
		if err := rpcHealthCheck(context.Background(), client); err != nil {
			lggr.Warnw("RPC failed health check, trying the next one",
				"index", i, "rpc", r.Name, "chain", chain.Name, "error", err)
			client.Close()

			continue
		}
		clients = append(clients, client)
	}

	if len(clients) == 0 {
		return nil, errors.New("no valid RPC clients created")
	}

	mc.Client = clients[0]
	mc.Backups = clients[1:]

	return &mc, nil
}

// rpcHealthCheck calls eth_blockNumber on the client.
func rpcHealthCheck(ctx context.Context, client *ethclient.Client) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, RPCDefaultHealthCheckTimeout)
	defer cancel()

	if _, err := client.BlockNumber(timeoutCtx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	return nil
}

func (mc *MultiClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return mc.retryWithBackups(ctx, "SendTransaction", func(ct context.Context, client *ethclient.Client) error {
		return client.SendTransaction(ct, tx)
	})
}

func (mc *MultiClient) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return withBackups(ctx, mc, "CallContract", func(ct context.Context, c *ethclient.Client) ([]byte, error) {
		return c.CallContract(ct, msg, blockNumber)
	})
}

func (mc *MultiClient) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return withBackups(ctx, mc, "CodeAt", func(ct context.Context, c *ethclient.Client) ([]byte, error) {
		return c.CodeAt(ct, account, blockNumber)
	})
}

func (mc *MultiClient) NonceAt(ctx context.Context, account common.Address, block *big.Int) (uint64, error) {
	return withBackups(ctx, mc, "NonceAt", func(ct context.Context, c *ethclient.Client) (uint64, error) {
		return c.NonceAt(ct, account, block)
	})
}

func (mc *MultiClient) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return withBackups(ctx, mc, "HeaderByNumber", func(ct context.Context, c *ethclient.Client) (*types.Header, error) {
		return c.HeaderByNumber(ct, number)
	})
}

func (mc *MultiClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return withBackups(ctx, mc, "SuggestGasPrice", func(ct context.Context, c *ethclient.Client) (*big.Int, error) {
		return c.SuggestGasPrice(ct)
	})
}

func (mc *MultiClient) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return withBackups(ctx, mc, "SuggestGasTipCap", func(ct context.Context, c *ethclient.Client) (*big.Int, error) {
		return c.SuggestGasTipCap(ct)
	})
}

func (mc *MultiClient) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return withBackups(ctx, mc, "PendingCodeAt", func(ct context.Context, c *ethclient.Client) ([]byte, error) {
		return c.PendingCodeAt(ct, account)
	})
}

func (mc *MultiClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return withBackups(ctx, mc, "PendingNonceAt", func(ct context.Context, c *ethclient.Client) (uint64, error) {
		return c.PendingNonceAt(ct, account)
	})
}

func (mc *MultiClient) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	return withBackups(ctx, mc, "EstimateGas", func(ct context.Context, c *ethclient.Client) (uint64, error) {
		return c.EstimateGas(ct, call)
	})
}

func (mc *MultiClient) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return withBackups(ctx, mc, "BalanceAt", func(ct context.Context, c *ethclient.Client) (*big.Int, error) {
		return c.BalanceAt(ct, account, blockNumber)
	})
}

func (mc *MultiClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return withBackups(ctx, mc, "FilterLogs", func(ct context.Context, c *ethclient.Client) ([]types.Log, error) {
		return c.FilterLogs(ct, q)
	})
}

// SubscribeFilterLogs subscribes on the first client that supports notifications. The
// subscription outlives the call, so no per-attempt timeout is applied. When no client
// supports notifications the returned error wraps rpc.ErrNotificationsUnsupported.
func (mc *MultiClient) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	var errs error
	for i, client := range mc.clients() {
		sub, err := client.SubscribeFilterLogs(ctx, q, ch)
		if err == nil {
			return sub, nil
		}
		mc.lggr.Debugw("Log subscription failed, trying next client",
			"chain", mc.chainName, "index", i, "error", err)
		errs = errors.Join(errs, err)
	}

	return nil, errs
}

// WaitMined waits for a transaction to be mined on any of the clients and returns the receipt.
// Retry timeouts are not applied, the deadline comes from ctx.
func (mc *MultiClient) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	mc.lggr.Debugw("Waiting for tx to be mined", "tx", tx.Hash().Hex(), "chain", mc.chainName)
	resultCh := make(chan *types.Receipt)
	doneCh := make(chan struct{})

	waitMined := func(client *ethclient.Client) {
		receipt, err := bind.WaitMined(ctx, client, tx)
		if err != nil {
			mc.lggr.Warnw("WaitMined failed", "tx", tx.Hash().Hex(), "chain", mc.chainName, "error", err)
			return
		}
		select {
		case resultCh <- receipt:
		case <-doneCh:
		}
	}

	for _, client := range mc.clients() {
		go waitMined(client)
	}

	select {
	case receipt := <-resultCh:
		close(doneCh)

		return receipt, nil
	case <-ctx.Done():
		close(doneCh)

		return nil, ctx.Err()
	}
}

// withBackups runs op through retryWithBackups and returns the value of the successful call.
func withBackups[T any](
	ctx context.Context, mc *MultiClient, opName string, op func(context.Context, *ethclient.Client) (T, error),
) (T, error) {
	var result T
	err := mc.retryWithBackups(ctx, opName, func(ct context.Context, client *ethclient.Client) error {
		var err error
		result, err = op(ct, client)

		return err
	})

	return result, err
}

func (mc *MultiClient) retryWithBackups(ctx context.Context, opName string, op func(context.Context, *ethclient.Client) error) error {
	var err error
	traceID := uuid.New().String()

	for rpcIndex, client := range mc.clients() {
		retryCount := 0
		err2 := retry.Do(func() error {
			timeoutCtx, cancel := ensureTimeout(ctx, mc.RetryConfig.Timeout)
			defer cancel()

			err = op(timeoutCtx, client)
			if err != nil {
				mc.lggr.Warnw("RPC call failed, retryable",
					"traceID", traceID, "chain", mc.chainName, "op", opName, "index", rpcIndex, "error", maybeDataErr(err))

				return err
			}
			mc.reorderRPCs(rpcIndex)

			return nil
		},
			retry.Attempts(mc.RetryConfig.Attempts),
			retry.Delay(mc.RetryConfig.Delay),
			retry.Context(ctx),
			retry.OnRetry(func(uint, error) { retryCount++ }),
		)
		if err2 == nil {
			if retryCount > 0 {
				mc.lggr.Infow("RPC call succeeded after retries",
					"traceID", traceID, "chain", mc.chainName, "op", opName, "index", rpcIndex, "retries", retryCount)
			}

			return nil
		}
		mc.lggr.Infow("RPC call failed, trying next client",
			"traceID", traceID, "chain", mc.chainName, "op", opName, "index", rpcIndex)
	}

	return errors.Join(err, fmt.Errorf("all backup clients failed for chain %q", mc.chainName))
}

func (mc *MultiClient) dialWithRetry(r RPC, lggr logger.Logger) (*ethclient.Client, error) {
	endpoint, err := r.ToEndpoint()
	if err != nil {
		return nil, err
	}

	var client *ethclient.Client
	err = retry.Do(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), mc.RetryConfig.DialTimeout)
		defer cancel()

		var err2 error
		client, err2 = ethclient.DialContext(ctx, endpoint)
		if err2 != nil {
			lggr.Warnw("Dialing RPC failed, retryable", "chain", mc.chainName, "rpc", r.Name, "error", err2)
			return err2
		}

		return nil
	}, retry.Attempts(mc.RetryConfig.DialAttempts), retry.Delay(mc.RetryConfig.DialDelay))
	if err != nil {
		return nil, errors.Join(err, fmt.Errorf("failed to dial RPC %s for chain %s after retries", r.Name, mc.chainName))
	}

	return client, nil
}

// ensureTimeout keeps the parent deadline when there is one, otherwise it applies timeout.
func ensureTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hasDeadline := parent.Deadline(); hasDeadline {
		return context.WithCancel(parent)
	}

	return context.WithTimeout(parent, timeout)
}

// reorderRPCs promotes the client at rpcIndex to primary. The clients that failed before it
// move to the back of the backup list.
func (mc *MultiClient) reorderRPCs(rpcIndex int) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if rpcIndex < 1 || len(mc.Backups) == 0 {
		return
	}

	newDefaultRPCIndex := rpcIndex - 1
	newDefaultRPC := mc.Backups[newDefaultRPCIndex]

	reordered := make([]*ethclient.Client, 0, len(mc.Backups))
	reordered = append(reordered, mc.Backups[newDefaultRPCIndex+1:]...)
	reordered = append(reordered, mc.Backups[:newDefaultRPCIndex]...)
	reordered = append(reordered, mc.Client)

	mc.Backups = reordered
	mc.Client = newDefaultRPC
}

// Close closes the primary and every backup client.
func (mc *MultiClient) Close() {
	for _, client := range mc.clients() {
		client.Close()
	}
}

func (mc *MultiClient) clients() []*ethclient.Client {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	return append([]*ethclient.Client{mc.Client}, mc.Backups...)
}

func maybeDataErr(err error) error {
	var d rpc.DataError
	if errors.As(err, &d) {
		return fmt.Errorf("%s: %v", d.Error(), d.ErrorData())
	}

	return err
}
