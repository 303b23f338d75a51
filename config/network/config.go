// Package network loads the YAML manifest describing the networks the console can connect
// to.
package network

import (
	"fmt"
	"maps"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Manifest is the YAML representation of network configuration.
type Manifest struct {
	// A YAML array of networks.
	Networks []Network `yaml:"networks"`
}

// Config represents the configuration of a collection of networks. This is loaded from the YAML
// manifest file/s.
type Config struct {
	// networks is keyed by chain selector so that selectors are unique.
	networks map[uint64]Network
}

// NewConfig creates a new config from a slice of networks. Any duplicate chain selectors will
// be overwritten.
func NewConfig(networks []Network) *Config {
	nmap := make(map[uint64]Network)

	for _, network := range networks {
		nmap[network.ChainSelector] = network
	}

	return &Config{
		networks: nmap,
	}
}

// Validate ensures that all networks are valid.
func (c *Config) Validate() error {
	for _, network := range c.Networks() {
		if err := network.Validate(); err != nil {
			return fmt.Errorf("network %d: %w", network.ChainSelector, err)
		}
	}

	return nil
}

// Networks returns all networks ordered by chain selector.
func (c *Config) Networks() []Network {
	networks := make([]Network, 0, len(c.networks))
	for _, sel := range c.ChainSelectors() {
		networks = append(networks, c.networks[sel])
	}

	return networks
}

// NetworkBySelector retrieves a network by its chain selector. If the network is not found, an
// error is returned.
func (c *Config) NetworkBySelector(selector uint64) (Network, error) {
	network, ok := c.networks[selector]
	if !ok {
		return Network{}, fmt.Errorf("network with selector %d not found in configuration", selector)
	}

	return network, nil
}

// ChainSelectors returns the chain selectors in ascending order.
func (c *Config) ChainSelectors() []uint64 {
	return slices.Sorted(maps.Keys(c.networks))
}

// Merge merges another config into the current config.
// It overwrites any networks with the same chain selector.
func (c *Config) Merge(other *Config) {
	maps.Copy(c.networks, other.networks)
}

// MarshalYAML implements the yaml.Marshaler interface for the Config struct.
func (c *Config) MarshalYAML() (any, error) {
	return Manifest{Networks: c.Networks()}, nil
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for the Config struct.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	node := Manifest{}

	if err := value.Decode(&node); err != nil {
		return err
	}

	*c = *NewConfig(node.Networks)

	return nil
}

// NetworkFilter defines a function type that filters networks based on certain criteria.
type NetworkFilter func(Network) bool

// FilterWith returns a new Config containing only Networks that pass all provided filter functions.
func (c *Config) FilterWith(filters ...NetworkFilter) *Config {
	networks := c.Networks()

	for _, filter := range filters {
		networks = slices.DeleteFunc(networks, func(network Network) bool {
			return !filter(network)
		})
	}

	return NewConfig(networks)
}

// TypesFilter returns a filter function that matches chains with the specified network types.
func TypesFilter(networkTypes ...NetworkType) NetworkFilter {
	return func(network Network) bool {
		return slices.Contains(networkTypes, network.Type)
	}
}

// ChainFamilyFilter returns a filter function that matches chains with the specified chain family.
func ChainFamilyFilter(chainFamily string) NetworkFilter {
	return func(network Network) bool {
		family, err := network.ChainFamily()
		if err != nil {
			return false
		}

		return family == chainFamily
	}
}

// transformURLs rewrites every RPC URL of every network.
func (c *Config) transformURLs(transform URLTransformer) {
	for k, n := range c.networks {
		rpcs := make([]RPC, len(n.RPCs))
		for i, rpc := range n.RPCs {
			rpc.HTTPURL = transform(rpc.HTTPURL)
			rpc.WSURL = transform(rpc.WSURL)
			rpcs[i] = rpc
		}
		n.RPCs = rpcs

		c.networks[k] = n
	}
}

// Load loads configuration from the specified file paths, and merges them into a single Config.
//
// It accepts load options to customize the loading behavior.
func Load(filePaths []string, opts ...LoadOption) (*Config, error) {
	cfg := NewConfig([]Network{})

	loadCfg := &loadConfig{}
	for _, opt := range opts {
		opt(loadCfg)
	}

	for _, fp := range filePaths {
		data, err := os.ReadFile(fp)
		if err != nil {
			return nil, fmt.Errorf("failed to read networks file: %w", err)
		}

		fileCfg, err := decodeManifest(data)
		if err != nil {
			return nil, err
		}

		cfg.Merge(fileCfg)
	}

	if loadCfg.URLTransformer != nil {
		cfg.transformURLs(loadCfg.URLTransformer)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate networks configuration: %w", err)
	}

	return cfg, nil
}

func decodeManifest(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal networks YAML: %w", err)
	}

	return &c, nil
}

// LoadOption defines a function which modifies the load configuration.
type LoadOption func(*loadConfig)

type loadConfig struct {
	URLTransformer URLTransformer
}

// URLTransformer is a function that transforms a URL.
type URLTransformer func(string) string

// WithURLTransformer transforms the HTTP and websocket URLs of the networks RPCs after loading,
// e.g. os.ExpandEnv to keep API keys out of the manifest.
func WithURLTransformer(t URLTransformer) LoadOption {
	return func(opts *loadConfig) {
		opts.URLTransformer = t
	}
}
