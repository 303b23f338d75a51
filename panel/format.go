package panel

import (
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"

	"github.com/smartcontractkit/contract-admin/roles"
)

// formatValue renders a decoded return value for display.
func formatValue(v any, format Format, decimals uint8, registry *roles.Registry) string {
	switch format {
	case FormatAmount:
		if n, ok := toBigInt(v); ok {
			return decimal.NewFromBigInt(n, -int32(decimals)).String()
		}
	case FormatBps:
		if n, ok := toBigInt(v); ok {
			return decimal.NewFromBigInt(n, -2).String() + "%"
		}
	case FormatTimestamp:
		if n, ok := toBigInt(v); ok && n.IsInt64() {
			if n.Sign() == 0 {
				return "-"
			}

			return time.Unix(n.Int64(), 0).UTC().Format(time.RFC3339)
		}
	case FormatDuration:
		if n, ok := toBigInt(v); ok && n.IsInt64() {
			return (time.Duration(n.Int64()) * time.Second).String()
		}
	case FormatRole:
		if b, ok := v.([32]byte); ok && registry != nil {
			return registry.Label(common.Hash(b))
		}
	case FormatRaw:
	}

	return formatRaw(v)
}

func formatRaw(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case common.Address:
		return x.Hex()
	case common.Hash:
		return x.Hex()
	case [32]byte:
		return common.Hash(x).Hex()
	case []byte:
		return hexutil.Encode(x)
	case *big.Int:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case string:
		return x
	}

	if n, ok := toBigInt(v); ok {
		return n.String()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() { //nolint:exhaustive // everything else falls back to fmt
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			b := make([]byte, rv.Len())
			reflect.Copy(reflect.ValueOf(b), rv)

			return hexutil.Encode(b)
		}
		parts := make([]string, rv.Len())
		for i := range parts {
			parts[i] = formatRaw(rv.Index(i).Interface())
		}

		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(v)
	}
}

func toBigInt(v any) (*big.Int, bool) {
	if n, ok := v.(*big.Int); ok {
		if n == nil {
			return nil, false
		}

		return n, true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() { //nolint:exhaustive // only integers convert
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uint:
		return new(big.Int).SetUint64(rv.Uint()), true
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Int:
		return big.NewInt(rv.Int()), true
	default:
		return nil, false
	}
}
