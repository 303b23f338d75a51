// Package panel implements the generic contract panel: the uniform read, write and subscribe
// surface every administered contract shares.
//
// A panel is described declaratively by a Definition (interface description, fields, actions
// and events) and bound at runtime to a contract address and a chain. Panels are independent,
// a failure in one never affects another.
package panel

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Format selects how a read value is rendered.
type Format string

const (
	// FormatRaw renders the value as is.
	FormatRaw Format = ""
	// FormatAmount renders an integer scaled down by the panel decimals.
	FormatAmount Format = "amount"
	// FormatBps renders basis points as a percentage.
	FormatBps Format = "bps"
	// FormatTimestamp renders unix seconds as an RFC 3339 time.
	FormatTimestamp Format = "timestamp"
	// FormatDuration renders seconds as a duration.
	FormatDuration Format = "duration"
	// FormatRole renders a bytes32 value as a role name when known.
	FormatRole Format = "role"
)

// AccountArg stands for the connected account in Field arguments.
const AccountArg = "$account"

// Field is one displayed value read from a view method.
type Field struct {
	Label  string
	Method string
	// Args are the raw call arguments, parsed like action inputs. AccountArg is replaced by the
	// connected account.
	Args   []string
	Format Format
}

// Action is one write method exposed to the operator. Input names and types come from the
// interface description.
type Action struct {
	Label  string
	Method string
	// Amounts names the integer inputs entered as decimal token amounts and scaled by the
	// panel decimals.
	Amounts []string
}

// Definition declares a panel.
type Definition struct {
	// Key identifies the panel in routes and configuration, e.g. "token".
	Key     string
	Title   string
	Section string
	// AddressEnv is the environment variable holding the contract address.
	AddressEnv string
	// Interface is the JSON interface description of the contract.
	Interface []byte
	// Decimals scales FormatAmount fields and Action amounts.
	Decimals uint8
	Fields   []Field
	Actions  []Action
	// Events are the names of the events appended to the panel event log.
	Events []string
}

// ParseABI parses the interface description.
func (d Definition) ParseABI() (abi.ABI, error) {
	parsed, err := abi.JSON(bytes.NewReader(d.Interface))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("panel %s: failed to parse interface description: %w", d.Key, err)
	}

	return parsed, nil
}

// Action returns the action for method.
func (d Definition) Action(method string) (Action, bool) {
	for _, a := range d.Actions {
		if a.Method == method {
			return a, true
		}
	}

	return Action{}, false
}

// Validate checks that the definition is complete and that every field, action and event
// exists in the interface description.
func (d Definition) Validate() error {
	if d.Key == "" {
		return errors.New("panel key is required")
	}
	if d.Title == "" || d.Section == "" || d.AddressEnv == "" {
		return fmt.Errorf("panel %s: title, section and address env are required", d.Key)
	}

	parsed, err := d.ParseABI()
	if err != nil {
		return err
	}

	var errs error
	for _, f := range d.Fields {
		m, ok := parsed.Methods[f.Method]
		if !ok {
			errs = errors.Join(errs, fmt.Errorf("field %q: method %s not found", f.Label, f.Method))
			continue
		}
		if !m.IsConstant() {
			errs = errors.Join(errs, fmt.Errorf("field %q: method %s is not a view method", f.Label, f.Method))
		}
		if len(f.Args) != len(m.Inputs) {
			errs = errors.Join(errs, fmt.Errorf("field %q: method %s takes %d arguments, got %d",
				f.Label, f.Method, len(m.Inputs), len(f.Args)))
		}
		if len(m.Outputs) != 1 {
			errs = errors.Join(errs, fmt.Errorf("field %q: method %s must return exactly one value", f.Label, f.Method))
		}
	}

	seen := make(map[string]struct{}, len(d.Actions))
	for _, a := range d.Actions {
		if _, dup := seen[a.Method]; dup {
			errs = errors.Join(errs, fmt.Errorf("action %s declared twice", a.Method))
		}
		seen[a.Method] = struct{}{}

		m, ok := parsed.Methods[a.Method]
		if !ok {
			errs = errors.Join(errs, fmt.Errorf("action %s: method not found", a.Method))
			continue
		}
		if m.IsConstant() {
			errs = errors.Join(errs, fmt.Errorf("action %s: method is read-only", a.Method))
		}
		for _, name := range a.Amounts {
			arg, ok := findInput(m.Inputs, name)
			if !ok {
				errs = errors.Join(errs, fmt.Errorf("action %s: amount input %s not found", a.Method, name))
				continue
			}
			if arg.Type.T != abi.UintTy && arg.Type.T != abi.IntTy {
				errs = errors.Join(errs, fmt.Errorf("action %s: amount input %s is %s, want an integer",
					a.Method, name, arg.Type.String()))
			}
		}
	}

	for _, name := range d.Events {
		if _, ok := parsed.Events[name]; !ok {
			errs = errors.Join(errs, fmt.Errorf("event %s not found", name))
		}
	}

	if errs != nil {
		return fmt.Errorf("panel %s: %w", d.Key, errs)
	}

	return nil
}

// inputName returns the name operators use for the i-th input of a method.
func inputName(i int, arg abi.Argument) string {
	if arg.Name != "" {
		return arg.Name
	}

	return fmt.Sprintf("arg%d", i)
}

func findInput(args abi.Arguments, name string) (abi.Argument, bool) {
	for i, arg := range args {
		if inputName(i, arg) == name {
			return arg, true
		}
	}

	return abi.Argument{}, false
}

func isRoleInput(name string) bool {
	return strings.Contains(strings.ToLower(name), "role")
}
