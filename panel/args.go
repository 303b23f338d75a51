package panel

import (
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"

	"github.com/smartcontractkit/contract-admin/roles"
)

var errRequired = errors.New("is required")

// argParser turns operator text into values the ABI packer accepts.
type argParser struct {
	decimals uint8
	roles    *roles.Registry
	account  common.Address
}

// parseInputs validates every input of method. It returns all problems at once so the
// operator can fix them in one go.
func (p argParser) parseInputs(method abi.Method, action Action, inputs map[string]string) ([]any, ValidationErrors) {
	amounts := make(map[string]struct{}, len(action.Amounts))
	for _, name := range action.Amounts {
		amounts[name] = struct{}{}
	}

	var verrs ValidationErrors
	known := make(map[string]struct{}, len(method.Inputs))
	args := make([]any, 0, len(method.Inputs))
	for i, arg := range method.Inputs {
		name := inputName(i, arg)
		known[name] = struct{}{}

		raw, ok := inputs[name]
		if !ok {
			verrs = append(verrs, ValidationError{Input: name, Message: errRequired.Error()})
			continue
		}
		_, amount := amounts[name]
		v, err := p.parse(name, arg.Type, raw, amount)
		if err != nil {
			verrs = append(verrs, ValidationError{Input: name, Message: err.Error()})
			continue
		}
		args = append(args, v)
	}

	for name := range inputs {
		if _, ok := known[name]; !ok {
			verrs = append(verrs, ValidationError{Input: name, Message: "unknown input"})
		}
	}

	if len(verrs) > 0 {
		return nil, verrs.sorted()
	}

	return args, nil
}

// parseFieldArgs parses the fixed arguments of a field read.
func (p argParser) parseFieldArgs(method abi.Method, raw []string) ([]any, error) {
	if len(raw) != len(method.Inputs) {
		return nil, fmt.Errorf("%s takes %d arguments, got %d", method.Name, len(method.Inputs), len(raw))
	}

	args := make([]any, 0, len(raw))
	for i, arg := range method.Inputs {
		s := raw[i]
		if s == AccountArg {
			if p.account == (common.Address{}) {
				return nil, errors.New("no connected account")
			}
			s = p.account.Hex()
		}
		v, err := p.parse(inputName(i, arg), arg.Type, s, false)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", inputName(i, arg), err)
		}
		args = append(args, v)
	}

	return args, nil
}

func (p argParser) parse(name string, t abi.Type, raw string, amount bool) (any, error) {
	raw = strings.TrimSpace(raw)

	switch t.T {
	case abi.SliceTy, abi.ArrayTy:
		return p.parseList(name, t, raw)
	case abi.StringTy:
		return raw, nil
	}

	if raw == "" {
		return nil, errRequired
	}

	switch t.T {
	case abi.AddressTy:
		if !common.IsHexAddress(raw) {
			return nil, errors.New("must be a 0x-prefixed 20-byte hex address")
		}

		return common.HexToAddress(raw), nil
	case abi.UintTy, abi.IntTy:
		return p.parseInteger(t, raw, amount)
	case abi.BoolTy:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, errors.New("must be true or false")
		}

		return b, nil
	case abi.FixedBytesTy:
		if t.Size == common.HashLength && isRoleInput(name) && p.roles != nil {
			hash, err := p.roles.Resolve(raw)
			if err != nil {
				return nil, err
			}

			return [common.HashLength]byte(hash), nil
		}

		return parseFixedBytes(t, raw)
	case abi.BytesTy:
		b, err := hexutil.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("must be 0x-prefixed hex: %w", err)
		}

		return b, nil
	default:
		return nil, fmt.Errorf("unsupported input type %s", t.String())
	}
}

func (p argParser) parseInteger(t abi.Type, raw string, amount bool) (any, error) {
	var n *big.Int
	if amount {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, errors.New("must be a decimal amount")
		}
		scaled := d.Shift(int32(p.decimals))
		if !scaled.IsInteger() {
			return nil, fmt.Errorf("has more than %d decimal places", p.decimals)
		}
		n = scaled.BigInt()
	} else {
		var ok bool
		n, ok = new(big.Int).SetString(raw, 0)
		if !ok {
			return nil, errors.New("must be an integer")
		}
	}

	if err := checkRange(t, n); err != nil {
		return nil, err
	}

	return toNative(t, n), nil
}

func checkRange(t abi.Type, n *big.Int) error {
	if t.T == abi.UintTy {
		if n.Sign() < 0 {
			return errors.New("must not be negative")
		}
		if n.BitLen() > t.Size {
			return fmt.Errorf("does not fit in %s", t.String())
		}

		return nil
	}

	limit := new(big.Int).Lsh(big.NewInt(1), uint(t.Size-1))
	if n.Cmp(limit) >= 0 || n.Cmp(new(big.Int).Neg(limit)) < 0 {
		return fmt.Errorf("does not fit in %s", t.String())
	}

	return nil
}

// toNative converts n to the Go type the packer expects for t: a sized integer for widths of
// 64 bits or less, *big.Int otherwise.
func toNative(t abi.Type, n *big.Int) any {
	rt := t.GetType()
	switch rt.Kind() { //nolint:exhaustive // only integer kinds are produced for integer types
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		v := reflect.New(rt).Elem()
		v.SetUint(n.Uint64())

		return v.Interface()
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		v := reflect.New(rt).Elem()
		v.SetInt(n.Int64())

		return v.Interface()
	default:
		return n
	}
}

func parseFixedBytes(t abi.Type, raw string) (any, error) {
	b, err := hexutil.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("must be 0x-prefixed hex: %w", err)
	}
	if len(b) != t.Size {
		return nil, fmt.Errorf("must be exactly %d bytes, got %d", t.Size, len(b))
	}

	v := reflect.New(t.GetType()).Elem()
	reflect.Copy(v, reflect.ValueOf(b))

	return v.Interface(), nil
}

func (p argParser) parseList(name string, t abi.Type, raw string) (any, error) {
	var parts []string
	if raw != "" {
		parts = strings.Split(raw, ",")
	}

	if t.T == abi.ArrayTy && len(parts) != t.Size {
		return nil, fmt.Errorf("must have exactly %d comma separated values, got %d", t.Size, len(parts))
	}

	var list reflect.Value
	if t.T == abi.ArrayTy {
		list = reflect.New(t.GetType()).Elem()
	} else {
		list = reflect.MakeSlice(t.GetType(), len(parts), len(parts))
	}

	for i, part := range parts {
		v, err := p.parse(name, *t.Elem, part, false)
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", i+1, err)
		}
		list.Index(i).Set(reflect.ValueOf(v))
	}

	return list.Interface(), nil
}
