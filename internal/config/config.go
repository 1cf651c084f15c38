// Package config loads the pipeline's YAML configuration. Private
// RPC/database credentials stay in the process environment, never in
// the config file.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the indexer's YAML-sourced pipeline configuration.
type Config struct {
	PoolManagerAddress string `yaml:"pool_manager_address"`
	StartingBlock      uint64 `yaml:"starting_block"`
	SyncBatchSize      uint32 `yaml:"sync_batch_size"`

	WrappedNativeAddress          string   `yaml:"wrapped_native_address"`
	StablecoinWrappedNativePoolID string   `yaml:"stablecoin_wrapped_native_pool_id"`
	StablecoinIsToken0            bool     `yaml:"stablecoin_is_token0"`
	StablecoinAddresses           []string `yaml:"stablecoin_addresses"`
	WhitelistTokens               []string `yaml:"whitelist_tokens"`

	MinimumNativeLocked string `yaml:"minimum_native_locked"`

	RPCRateLimitPerSecond float64 `yaml:"rpc_rate_limit_per_second"`
}

const defaultSyncBatchSize uint32 = 1000

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse YAML %s: %w", path, err)
	}

	if cfg.SyncBatchSize == 0 {
		cfg.SyncBatchSize = defaultSyncBatchSize
	}
	if cfg.PoolManagerAddress == "" {
		return nil, fmt.Errorf("config: pool_manager_address is required")
	}
	cfg.PoolManagerAddress = strings.ToLower(cfg.PoolManagerAddress)
	cfg.WrappedNativeAddress = strings.ToLower(cfg.WrappedNativeAddress)

	return &cfg, nil
}

// StablecoinAddressSet returns the configured stablecoin addresses as
// a lowercase lookup set, consumed by the price oracle.
func (c *Config) StablecoinAddressSet() map[string]bool {
	set := make(map[string]bool, len(c.StablecoinAddresses))
	for _, addr := range c.StablecoinAddresses {
		set[strings.ToLower(addr)] = true
	}
	return set
}
