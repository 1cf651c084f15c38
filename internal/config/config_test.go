package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigAppliesDefaultsAndLowercases(t *testing.T) {
	path := writeConfig(t, `
pool_manager_address: "0xABCDEF0000000000000000000000000000000001"
wrapped_native_address: "0xDEADBEEF00000000000000000000000000000002"
stablecoin_addresses:
  - "0xAAAA000000000000000000000000000000AAAA"
whitelist_tokens:
  - "0xbbbb000000000000000000000000000000bbbb"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "0xabcdef0000000000000000000000000000000001", cfg.PoolManagerAddress)
	assert.Equal(t, "0xdeadbeef00000000000000000000000000000002", cfg.WrappedNativeAddress)
	assert.Equal(t, uint32(defaultSyncBatchSize), cfg.SyncBatchSize)
}

func TestLoadConfigRequiresPoolManagerAddress(t *testing.T) {
	path := writeConfig(t, `starting_block: 100`)

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/config.yml")
	assert.Error(t, err)
}

func TestLoadConfigHonorsExplicitBatchSize(t *testing.T) {
	path := writeConfig(t, `
pool_manager_address: "0xabc"
sync_batch_size: 250
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(250), cfg.SyncBatchSize)
}

func TestStablecoinAddressSet(t *testing.T) {
	cfg := &Config{StablecoinAddresses: []string{"0xAAAA", "0xbbbb"}}
	set := cfg.StablecoinAddressSet()
	assert.True(t, set["0xaaaa"])
	assert.True(t, set["0xbbbb"])
	assert.False(t, set["0xcccc"])
}
