package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Mohsinsiddi/txscan/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultConfig(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Load(dir)
	require.NoError(t, err)

	assert.Equal(t, int64(1), cfg.SelectedChain)
	assert.Equal(t, 10, cfg.DefaultLimit)
	assert.Equal(t, 20, cfg.RPCRateLimit)
	assert.Empty(t, cfg.ChainsFile)
}

func TestSaveAndReloadConfig(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Load(dir)
	require.NoError(t, err)

	cfg.SelectedChain = 137
	cfg.DefaultLimit = 25
	cfg.RPCRateLimit = 0

	require.NoError(t, cfg.Save())

	reloaded, err := config.Load(dir)
	require.NoError(t, err)

	assert.Equal(t, int64(137), reloaded.SelectedChain)
	assert.Equal(t, 25, reloaded.DefaultLimit)
	assert.Equal(t, 0, reloaded.RPCRateLimit)
}

func TestLoadRepairsBadLimit(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{"default_limit": 0, "rpc_rate_limit": -3}`), 0o600))

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.DefaultLimit)
	assert.Equal(t, 0, cfg.RPCRateLimit)
}

func TestLoadCorruptConfigErrors(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{not json`), 0o600))

	_, err := config.Load(dir)
	assert.ErrorContains(t, err, "parsing config")
}

func TestConfigFileCreatedOnSave(t *testing.T) {
	dir := t.TempDir()
	cfg, _ := config.Load(dir)
	require.NoError(t, cfg.Save())

	_, err := os.Stat(filepath.Join(dir, "config.json"))
	assert.NoError(t, err, "config.json should be created on save")
}

func TestConfigDir(t *testing.T) {
	dir := t.TempDir()
	cfg, _ := config.Load(dir)
	assert.Equal(t, dir, cfg.Dir())
}

func TestLoadFromNonExistentDir(t *testing.T) {
	dir := t.TempDir() + "/subdir"
	cfg, err := config.Load(dir)
	require.NoError(t, err)
	// Should create dir and return defaults.
	assert.Equal(t, int64(1), cfg.SelectedChain)
	assert.DirExists(t, dir)
}

func TestDefaultDirFromEnv(t *testing.T) {
	t.Setenv("TXSCAN_CONFIG_DIR", "/tmp/txscan-test")
	dir, err := config.DefaultDir()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/txscan-test", dir)
}

func TestChainsPath(t *testing.T) {
	dir := t.TempDir()
	cfg, _ := config.Load(dir)

	assert.Equal(t, filepath.Join(dir, "chains.yaml"), cfg.ChainsPath())

	cfg.ChainsFile = "custom.yaml"
	assert.Equal(t, filepath.Join(dir, "custom.yaml"), cfg.ChainsPath())

	cfg.ChainsFile = "/etc/txscan/chains.yaml"
	assert.Equal(t, "/etc/txscan/chains.yaml", cfg.ChainsPath())
}

func TestSetAndGet(t *testing.T) {
	cfg, _ := config.Load(t.TempDir())

	tests := []struct {
		key, value string
	}{
		{"selected_chain", "42161"},
		{"default_limit", "5"},
		{"rpc_rate_limit", "0"},
		{"chains_file", "mine.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			require.NoError(t, cfg.Set(tt.key, tt.value))
			got, err := cfg.Get(tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.value, got)
		})
	}
}

func TestSetRejectsBadValues(t *testing.T) {
	cfg, _ := config.Load(t.TempDir())

	assert.Error(t, cfg.Set("selected_chain", "polygon"))
	assert.Error(t, cfg.Set("selected_chain", "-1"))
	assert.Error(t, cfg.Set("default_limit", "0"))
	assert.Error(t, cfg.Set("rpc_rate_limit", "fast"))

	err := cfg.Set("network_mode", "testnet")
	assert.ErrorContains(t, err, "unknown config key")

	_, err = cfg.Get("nope")
	assert.Error(t, err)
}
