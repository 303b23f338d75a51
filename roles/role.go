// Package roles derives access-control role identifiers from role names and maps them back
// to names for display.
//
// Contracts following the OpenZeppelin AccessControl layout identify a role by the keccak256
// hash of its name, except for the default administrator role whose identifier is the zero
// value.
package roles

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/smartcontractkit/contract-admin/pkg/logger"
)

const (
	// DefaultAdminRoleName is the name of the role that administers every other role.
	DefaultAdminRoleName = "DEFAULT_ADMIN_ROLE"
	// RoleSuffix is the suffix shared by every role accessor of an interface description.
	RoleSuffix = "_ROLE"
)

// DefaultAdminRole is the identifier of DefaultAdminRoleName: 32 zero bytes.
var DefaultAdminRole = common.Hash{}

// ErrInvalidRoleName is returned when a role name cannot be hashed.
var ErrInvalidRoleName = errors.New("invalid role name")

// ComputeRoleHash returns the identifier of the named role. The default administrator role
// always maps to DefaultAdminRole, every other name maps to the keccak256 hash of its raw bytes.
// The name is not trimmed.
func ComputeRoleHash(name string) (common.Hash, error) {
	if name == "" {
		return common.Hash{}, fmt.Errorf("%w: name is empty", ErrInvalidRoleName)
	}
	if name == DefaultAdminRoleName {
		return DefaultAdminRole, nil
	}

	return crypto.Keccak256Hash([]byte(name)), nil
}

// RoleHashMap maps role identifiers back to the role names they were computed from.
type RoleHashMap map[common.Hash]string

// NewRoleHashMap computes the identifier of every name and returns the reverse mapping. The
// default administrator role is always present. Names that cannot be hashed are logged and
// left out, the role is then treated as unavailable.
func NewRoleHashMap(lggr logger.Logger, names []string) RoleHashMap {
	m := RoleHashMap{DefaultAdminRole: DefaultAdminRoleName}
	for _, name := range names {
		hash, err := ComputeRoleHash(name)
		if err != nil {
			lggr.Warnw("Role unavailable, failed to compute role hash", "role", name, "error", err)
			continue
		}
		m[hash] = name
	}

	return m
}

// Label returns the role name for hash, or its hex form when the role is unknown.
func (m RoleHashMap) Label(hash common.Hash) string {
	if name, ok := m[hash]; ok {
		return name
	}

	return hash.Hex()
}

// Names returns the known role names in lexical order.
func (m RoleHashMap) Names() []string {
	names := make([]string, 0, len(m))
	for _, name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Resolve turns operator input into a role identifier. The input may be a role name or a
// 0x-prefixed 32 byte hex string.
func (m RoleHashMap) Resolve(input string) (common.Hash, error) {
	input = strings.TrimSpace(input)
	if has0xPrefix(input) {
		b, err := hexutil.Decode(input)
		if err != nil {
			return common.Hash{}, fmt.Errorf("%w: %q is not valid hex: %w", ErrInvalidRoleName, input, err)
		}
		if len(b) != common.HashLength {
			return common.Hash{}, fmt.Errorf("%w: %q is %d bytes, want %d", ErrInvalidRoleName, input, len(b), common.HashLength)
		}

		return common.BytesToHash(b), nil
	}

	return ComputeRoleHash(input)
}

func has0xPrefix(s string) bool {
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

// abiEntry is the subset of an interface description entry needed to discover role
// accessors.
type abiEntry struct {
	Type    string     `json:"type"`
	Name    string     `json:"name"`
	Inputs  []abiParam `json:"inputs"`
	Outputs []abiParam `json:"outputs"`
}

type abiParam struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// RoleNamesFromABI returns the role accessors declared in a JSON interface description:
// zero-argument functions whose name ends in RoleSuffix and whose single output is bytes32.
// Names are returned in declaration order, each once.
func RoleNamesFromABI(interfaceJSON []byte) ([]string, error) {
	var entries []abiEntry
	if err := json.Unmarshal(interfaceJSON, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse interface description: %w", err)
	}

	seen := make(map[string]struct{})
	names := make([]string, 0)
	for _, e := range entries {
		if !isRoleAccessor(e) {
			continue
		}
		if _, ok := seen[e.Name]; ok {
			continue
		}
		seen[e.Name] = struct{}{}
		names = append(names, e.Name)
	}

	return names, nil
}

func isRoleAccessor(e abiEntry) bool {
	// An omitted type defaults to function in the solidity JSON ABI format.
	if e.Type != "" && e.Type != "function" {
		return false
	}

	return strings.HasSuffix(e.Name, RoleSuffix) &&
		len(e.Inputs) == 0 &&
		len(e.Outputs) == 1 &&
		e.Outputs[0].Type == "bytes32"
}
