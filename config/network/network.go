package network

import (
	"errors"
	"fmt"

	chain_selectors "github.com/smartcontractkit/chain-selectors"

	"github.com/smartcontractkit/contract-admin/chain/evm/provider/rpcclient"
)

// NetworkType represents the type of network, which can either be mainnet or testnet.
type NetworkType string

const (
	NetworkTypeMainnet NetworkType = "mainnet"
	NetworkTypeTestnet NetworkType = "testnet"
)

// Network represents a network configuration.
type Network struct {
	Type          NetworkType   `yaml:"type"`
	ChainSelector uint64        `yaml:"chain_selector"`
	BlockExplorer BlockExplorer `yaml:"block_explorer"`
	RPCs          []RPC         `yaml:"rpcs"`
}

// ChainFamily returns the family of the network based on its chain selector.
func (n *Network) ChainFamily() (string, error) {
	return chain_selectors.GetSelectorFamily(n.ChainSelector)
}

// ChainID returns the chain ID as a string based on the chain selector.
func (n *Network) ChainID() (string, error) {
	return chain_selectors.GetChainIDFromSelector(n.ChainSelector)
}

// Validate validates the network configuration to ensure that all required fields are set.
func (n *Network) Validate() error {
	if n.Type == "" {
		return errors.New("type is required")
	}
	if n.Type != NetworkTypeMainnet && n.Type != NetworkTypeTestnet {
		return fmt.Errorf("unknown network type %q", n.Type)
	}

	if n.ChainSelector == 0 {
		return errors.New("chain selector is required")
	}

	if len(n.RPCs) == 0 {
		return errors.New("at least one RPC is required")
	}

	for i, rpc := range n.RPCs {
		if _, err := rpc.ToClientRPC(); err != nil {
			return fmt.Errorf("rpc %d: %w", i, err)
		}
	}

	return nil
}

// ClientRPCs converts the RPCs for the multi-client, in manifest order.
func (n *Network) ClientRPCs() ([]rpcclient.RPC, error) {
	rpcs := make([]rpcclient.RPC, 0, len(n.RPCs))
	for _, rpc := range n.RPCs {
		r, err := rpc.ToClientRPC()
		if err != nil {
			return nil, err
		}
		rpcs = append(rpcs, r)
	}

	return rpcs, nil
}

// RPC represents an RPC configuration in the flattened structure
type RPC struct {
	RPCName            string `yaml:"rpc_name"`
	PreferredURLScheme string `yaml:"preferred_url_scheme"`
	HTTPURL            string `yaml:"http_url"`
	WSURL              string `yaml:"ws_url"`
}

// ToClientRPC converts the manifest entry into a multi-client endpoint.
func (rpc RPC) ToClientRPC() (rpcclient.RPC, error) {
	pref, err := rpcclient.URLSchemePreferenceFromString(rpc.PreferredURLScheme)
	if err != nil {
		return rpcclient.RPC{}, err
	}

	r := rpcclient.RPC{
		Name:               rpc.RPCName,
		WSURL:              rpc.WSURL,
		HTTPURL:            rpc.HTTPURL,
		PreferredURLScheme: pref,
	}
	if _, err := r.ToEndpoint(); err != nil {
		return rpcclient.RPC{}, err
	}

	return r, nil
}

// BlockExplorer represents a block explorer configuration in the flattened structure
type BlockExplorer struct {
	Type string `yaml:"type"`
	URL  string `yaml:"url"`
}

// TxURL returns the explorer link of a transaction, empty without an explorer.
func (b BlockExplorer) TxURL(hash string) string {
	if b.URL == "" {
		return ""
	}

	return fmt.Sprintf("%s/tx/%s", b.URL, hash)
}
