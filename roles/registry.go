package roles

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartcontractkit/contract-admin/pkg/logger"
)

// Registry is the set of role names discovered once from a fixed collection of interface
// descriptions, together with the reverse lookup of their identifiers.
type Registry struct {
	names  []string
	hashes RoleHashMap
}

// NewRegistry scans every interface description for role accessors. The default
// administrator role is always part of the registry.
func NewRegistry(lggr logger.Logger, interfaces ...[]byte) (*Registry, error) {
	seen := map[string]struct{}{DefaultAdminRoleName: {}}
	names := []string{DefaultAdminRoleName}

	for i, iface := range interfaces {
		found, err := RoleNamesFromABI(iface)
		if err != nil {
			return nil, fmt.Errorf("interface description %d: %w", i, err)
		}
		for _, name := range found {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	sort.Strings(names)

	return &Registry{
		names:  names,
		hashes: NewRoleHashMap(lggr, names),
	}, nil
}

// Names returns the registered role names in lexical order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)

	return out
}

// HashMap returns the identifier to name lookup.
func (r *Registry) HashMap() RoleHashMap {
	return r.hashes
}

// Label returns the display name for a role identifier.
func (r *Registry) Label(hash common.Hash) string {
	return r.hashes.Label(hash)
}

// Resolve turns a role name or hex identifier into a role identifier.
func (r *Registry) Resolve(input string) (common.Hash, error) {
	return r.hashes.Resolve(input)
}

// Entry pairs a role name with its identifier.
type Entry struct {
	Name string      `json:"name"`
	Hash common.Hash `json:"hash"`
}

// Entries returns every registered role with its identifier, ordered by name.
func (r *Registry) Entries() []Entry {
	entries := make([]Entry, 0, len(r.names))
	for _, name := range r.names {
		hash, err := ComputeRoleHash(name)
		if err != nil {
			continue
		}
		entries = append(entries, Entry{Name: name, Hash: hash})
	}

	return entries
}
