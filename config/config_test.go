package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	// no file at the path: env-only mode with defaults
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultServerAddr, cfg.Server.Addr)
	assert.Equal(t, DefaultLogLevel, cfg.Log.Level)
	assert.Equal(t, DefaultFeedTimeoutSeconds, cfg.Feed.TimeoutSeconds)
	assert.Equal(t, DefaultUpdateThresholdPct, cfg.Updater.ThresholdPct)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
log:
  level: debug
feed:
  endpoint: https://feed.example/latest
  timeout_seconds: 5
chain:
  rpc_url: http://localhost:8545
  oracle_address: "0xabc"
updater:
  threshold_pct: 0.25
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "https://feed.example/latest", cfg.Feed.Endpoint)
	assert.Equal(t, 5, cfg.Feed.TimeoutSeconds)
	assert.Equal(t, "http://localhost:8545", cfg.Chain.RPCURL)
	assert.Equal(t, "0xabc", cfg.Chain.OracleAddress)
	assert.Equal(t, 0.25, cfg.Updater.ThresholdPct)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
feed:
  endpoint: https://feed.example/latest
updater:
  threshold_pct: 0.25
`)
	t.Setenv("SERVER_ADDR", ":7070")
	t.Setenv("FEED_ENDPOINT", "https://other.example/rates")
	t.Setenv("UPDATE_THRESHOLD_PCT", "0.5")
	t.Setenv("METRICS_ENABLED", "true")
	t.Setenv("ORACLE_OWNER_KEY", "deadbeef")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, "https://other.example/rates", cfg.Feed.Endpoint)
	assert.Equal(t, 0.5, cfg.Updater.ThresholdPct)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "deadbeef", cfg.Chain.OwnerKey)
}

func TestEnvOverrideBadNumberKeepsPrevious(t *testing.T) {
	t.Setenv("FEED_TIMEOUT_SECONDS", "not-a-number")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultFeedTimeoutSeconds, cfg.Feed.TimeoutSeconds)
}

func TestLoadMalformedFile(t *testing.T) {
	path := writeConfig(t, "server: [not: valid")
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateFeed(t *testing.T) {
	cfg := &Config{}
	require.Error(t, cfg.ValidateFeed())

	cfg.Feed.Endpoint = "https://feed.example"
	require.NoError(t, cfg.ValidateFeed())
}

func TestValidateOracle(t *testing.T) {
	cfg := &Config{}
	require.Error(t, cfg.ValidateOracle())

	cfg.Chain.RPCURL = "http://localhost:8545"
	require.Error(t, cfg.ValidateOracle())

	cfg.Chain.OracleAddress = "0xabc"
	require.NoError(t, cfg.ValidateOracle())
}

func TestValidateUpdater(t *testing.T) {
	cfg := &Config{}
	cfg.Feed.Endpoint = "https://feed.example"
	cfg.Chain.RPCURL = "http://localhost:8545"
	cfg.Chain.OracleAddress = "0xabc"
	cfg.Updater.ThresholdPct = 0.1

	require.Error(t, cfg.ValidateUpdater(), "signing key must be required")

	cfg.Chain.OwnerKey = "deadbeef"
	require.NoError(t, cfg.ValidateUpdater())

	cfg.Updater.ThresholdPct = 0
	require.Error(t, cfg.ValidateUpdater())
}

func TestValidateAPI(t *testing.T) {
	cfg := &Config{}
	cfg.Chain.RPCURL = "http://localhost:8545"
	cfg.Chain.OracleAddress = "0xabc"
	cfg.Server.Addr = ":8080"
	require.NoError(t, cfg.ValidateAPI())

	cfg.Chain.OracleAddress = ""
	require.Error(t, cfg.ValidateAPI())
}
