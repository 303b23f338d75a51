package provider

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// contractCallerFunc adapts a function to ContractCaller.
type contractCallerFunc func(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)

func (f contractCallerFunc) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return f(ctx, call, blockNumber)
}

// revertData returns the Error(string) revert payload for reason.
func revertData(reason string) string {
	selector := crypto.Keccak256([]byte("Error(string)"))[:4]
	offset := common.LeftPadBytes(big.NewInt(32).Bytes(), 32)
	length := common.LeftPadBytes(big.NewInt(int64(len(reason))).Bytes(), 32)
	padded := common.RightPadBytes([]byte(reason), (len(reason)+31)/32*32)

	payload := append(append(append(selector, offset...), length...), padded...)

	return hexutil.Encode(payload)
}

func Test_getErrorReasonFromTx(t *testing.T) {
	t.Parallel()

	tx := types.NewTransaction(
		1,
		common.HexToAddress("0xabc123"),
		big.NewInt(0),
		21000,
		big.NewInt(20000000000),
		[]byte{0xde, 0xad, 0xbe, 0xef},
	)

	tests := []struct {
		name       string
		giveCaller contractCallerFunc
		wantReason string
		wantErr    string
	}{
		{
			name: "call does not fail",
			giveCaller: func(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
				return []byte{}, nil
			},
			wantErr: "reverted with no reason",
		},
		{
			name: "json error with raw data",
			giveCaller: func(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
				return nil, &jsonError{Code: 3, Message: "execution reverted", Data: "0x12345678"}
			},
			wantReason: "custom error 0x12345678",
		},
		{
			name: "json error without data",
			giveCaller: func(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
				return nil, &jsonError{Code: -32000, Message: "out of gas"}
			},
			wantReason: "out of gas",
		},
		{
			name: "json error with an Error(string) payload",
			giveCaller: func(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
				return nil, &jsonError{
					Code:    3,
					Message: "execution reverted",
					Data:    revertData("AccessControl: account is missing role"),
				}
			},
			wantReason: "AccessControl: account is missing role",
		},
		{
			name: "non json error",
			giveCaller: func(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
				return nil, errors.New("error message")
			},
			wantReason: "error message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := getErrorReasonFromTx(
				t.Context(), tt.giveCaller, common.HexToAddress("0x123"), tx, &types.Receipt{},
			)

			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantReason, got)
			}
		})
	}
}

func Test_getJSONErrorData(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		give    error
		want    string
		wantErr string
	}{
		{
			name: "valid error",
			give: &jsonError{Code: 100, Message: "execution reverted", Data: "0x12345678"},
			want: "0x12345678",
		},
		{
			name: "byte data",
			give: &jsonError{Code: 3, Message: "execution reverted", Data: []byte{0x12, 0x34}},
			want: "0x1234",
		},
		{
			name:    "no data",
			give:    &jsonError{Code: -32000, Message: "out of gas"},
			wantErr: "json-rpc error carries no data",
		},
		{
			name:    "nil error",
			give:    nil,
			wantErr: "cannot parse nil error",
		},
		{
			name:    "invalid error type",
			give:    errors.New("invalid"),
			wantErr: "error must be of type jsonError",
		},
		{
			name:    "trie error",
			give:    &jsonError{Code: -32000, Message: "missing trie node", Data: []byte{}},
			wantErr: "missing trie node",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := getJSONErrorData(tt.give)

			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func Test_decodeRevertData(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Pausable: paused", decodeRevertData(revertData("Pausable: paused")))
	assert.Equal(t, "custom error 0x12345678", decodeRevertData("0x12345678"))
	assert.Equal(t, "0x12", decodeRevertData("0x12"))
	assert.Equal(t, "not hex", decodeRevertData("not hex"))
}

// jsonError mirrors the JSON-RPC error of go-ethereum.
type jsonError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (err *jsonError) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("json-rpc error %d", err.Code)
	}

	return err.Message
}

func (err *jsonError) ErrorCode() int {
	return err.Code
}

func (err *jsonError) ErrorData() any {
	return err.Data
}
