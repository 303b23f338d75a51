// Package config loads the console configuration from a YAML file, the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/smartcontractkit/contract-admin/contracts"
)

// KMSConfig is the configuration for the AWS KMS.
//
// WARNING: This data type contains sensitive fields and should not be logged or set in file
// configuration.
type KMSConfig struct {
	KeyID      string `mapstructure:"key_id" yaml:"key_id"`           // Secret: AWS KMS Key ID
	KeyRegion  string `mapstructure:"key_region" yaml:"key_region"`   // Secret: AWS KMS Key Region (e.g. us-west-1)
	AWSProfile string `mapstructure:"aws_profile" yaml:"aws_profile"` // AWS shared config profile
}

// EVMConfig is the configuration for the EVM chain.
//
// WARNING: This data type contains sensitive fields and should not be logged or set in file
// configuration.
type EVMConfig struct {
	AdminKey string `mapstructure:"admin_key" yaml:"admin_key"` // Secret: The private key of the admin account. Prefer to use KMS keys instead.
}

// OnchainConfig wraps the configuration for signing.
type OnchainConfig struct {
	KMS KMSConfig `mapstructure:"kms" yaml:"kms"`
	EVM EVMConfig `mapstructure:"evm" yaml:"evm"`
}

// ChainConfig selects the network the console connects to.
type ChainConfig struct {
	Selector     uint64 `mapstructure:"selector" yaml:"selector"`           // Chain selector of the network
	RPCURL       string `mapstructure:"rpc_url" yaml:"rpc_url"`             // Single RPC endpoint, used instead of the networks file
	NetworksFile string `mapstructure:"networks_file" yaml:"networks_file"` // YAML network manifest
}

// ServerConfig is the configuration of the HTTP API.
type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// LogConfig is the configuration of the logger.
type LogConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Development bool   `mapstructure:"development" yaml:"development"`
}

// Config wraps the entire configuration of the console.
type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Chain   ChainConfig   `mapstructure:"chain" yaml:"chain"`
	Onchain OnchainConfig `mapstructure:"onchain" yaml:"onchain"`
	// Contracts maps panel keys to contract addresses.
	Contracts map[string]string `mapstructure:"contracts" yaml:"contracts"`
}

// ContractAddress returns the configured address of the panel key, empty when unset.
func (c *Config) ContractAddress(key string) string {
	return strings.TrimSpace(c.Contracts[key])
}

// ReadOnly reports whether no signer is configured.
func (c *Config) ReadOnly() bool {
	return c.Onchain.KMS.KeyID == "" && c.Onchain.EVM.AdminKey == ""
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	var errs error
	if c.Chain.RPCURL == "" && c.Chain.NetworksFile == "" {
		errs = errors.Join(errs, errors.New("either chain.rpc_url (ADMIN_RPC_URL) or chain.networks_file (ADMIN_NETWORKS_FILE) is required"))
	}
	if c.Chain.Selector == 0 {
		errs = errors.Join(errs, errors.New("chain.selector (ADMIN_CHAIN_SELECTOR) is required"))
	}
	if c.Onchain.KMS.KeyID != "" && c.Onchain.KMS.KeyRegion == "" {
		errs = errors.Join(errs, errors.New("onchain.kms.key_region (ONCHAIN_KMS_KEY_REGION) is required with a KMS key"))
	}

	return errs
}

// Load loads the config from the file path, falling back to env vars if the file does not exist.
// If the file exists, any env vars that are set will override the values loaded from the file.
func Load(filePath string) (*Config, error) {
	v := newViper()

	if filePath != "" {
		v.SetConfigFile(filePath)
		if _, err := os.Stat(filePath); !errors.Is(err, fs.ErrNotExist) {
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file %s: %w", filePath, err)
			}
		}
	}

	if err := bindEnvs(v); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	return cfg, nil
}

// LoadDotEnv adds the variables of the .env files to the environment. Variables already set
// are kept. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", p, err)
		}
	}

	return nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("log.level", "info")

	return v
}

// legacyEnvPrefix is the prefix of the variables read by the browser build of the console.
const legacyEnvPrefix = "VITE_"

var (
	// envBindings defines how environment variables map to configuration keys used by Viper.
	// Each entry maps a config key to a list of environment variable names that can provide its
	// value.
	//
	// The first element in the list is the preferred environment variable name, and the second
	// (if present) is a legacy name. Viper checks each listed variable in order and uses the
	// first one that is set.
	envBindings = map[string][]string{
		"server.addr":             {"SERVER_ADDR"},
		"log.level":               {"LOG_LEVEL"},
		"log.development":         {"LOG_DEVELOPMENT"},
		"chain.selector":          {"ADMIN_CHAIN_SELECTOR"},
		"chain.rpc_url":           {"ADMIN_RPC_URL", legacyEnvPrefix + "RPC_URL"},
		"chain.networks_file":     {"ADMIN_NETWORKS_FILE"},
		"onchain.kms.key_id":      {"ONCHAIN_KMS_KEY_ID", "KMS_ADMIN_KEY_ID"},
		"onchain.kms.key_region":  {"ONCHAIN_KMS_KEY_REGION", "KMS_ADMIN_KEY_REGION"},
		"onchain.kms.aws_profile": {"ONCHAIN_KMS_AWS_PROFILE", "AWS_PROFILE"},
		"onchain.evm.admin_key":   {"ONCHAIN_EVM_ADMIN_KEY", "ADMIN_PRIVATE_KEY"},
	}
)

// contractEnvBindings binds every panel address to <KEY>_ADDRESS and its legacy
// VITE_<KEY>_ADDRESS name.
func contractEnvBindings() map[string][]string {
	bindings := make(map[string][]string)
	for _, def := range contracts.Definitions() {
		bindings["contracts."+def.Key] = []string{def.AddressEnv, legacyEnvPrefix + def.AddressEnv}
	}

	return bindings
}

// bindEnvs binds the environment variables to the viper instance.
func bindEnvs(v *viper.Viper) error {
	for _, bindings := range []map[string][]string{envBindings, contractEnvBindings()} {
		for key, envs := range bindings {
			inputs := slices.Insert(slices.Clone(envs), 0, key)

			if err := v.BindEnv(inputs...); err != nil {
				return err
			}
		}
	}

	return nil
}
