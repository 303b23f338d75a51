package provider

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// ContractCaller is the CallContract method of the geth client.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// getErrorReasonFromTx replays a reverted transaction as a call at its block and extracts the
// revert reason from the call error.
func getErrorReasonFromTx(
	ctx context.Context,
	caller ContractCaller,
	from common.Address,
	tx *types.Transaction,
	receipt *types.Receipt,
) (string, error) {
	call := ethereum.CallMsg{
		From:     from,
		To:       tx.To(),
		Data:     tx.Data(),
		Value:    tx.Value(),
		Gas:      tx.Gas(),
		GasPrice: tx.GasPrice(),
	}

	if _, err := caller.CallContract(ctx, call, receipt.BlockNumber); err != nil {
		if data, perr := getJSONErrorData(err); perr == nil {
			return decodeRevertData(data), nil
		}

		return err.Error(), nil
	}

	return "", fmt.Errorf("tx %s reverted with no reason", tx.Hash().Hex())
}

// getJSONErrorData extracts the data field of a JSON-RPC error.
func getJSONErrorData(err error) (string, error) {
	if err == nil {
		return "", errors.New("cannot parse nil error")
	}

	// Matches the unexported rpc.jsonError of go-ethereum.
	type jsonError interface {
		Error() string
		ErrorCode() int
		ErrorData() any
	}

	var jerr jsonError
	if !errors.As(err, &jerr) {
		return "", fmt.Errorf("error must be of type jsonError: %w", err)
	}

	var data string
	switch d := jerr.ErrorData().(type) {
	case nil:
	case string:
		data = d
	case []byte:
		data = hexutil.Encode(d)
	default:
		data = fmt.Sprint(d)
	}
	if data == "" || data == "0x" {
		if strings.Contains(jerr.Error(), "missing trie node") {
			return "", errors.New("missing trie node, likely due to not using an archive node")
		}

		return "", fmt.Errorf("json-rpc error carries no data: %w", err)
	}

	return data, nil
}

// decodeRevertData turns hex encoded revert data into its message. Error(string) and
// Panic(uint256) payloads are unpacked, any other selector is reported as a custom error.
func decodeRevertData(data string) string {
	b, err := hexutil.Decode(data)
	if err != nil {
		return data
	}
	if reason, err := abi.UnpackRevert(b); err == nil {
		return reason
	}
	if len(b) >= 4 {
		return "custom error " + data
	}

	return data
}
