// Package config loads the module configuration from an optional YAML file
// with environment-variable overrides. Precedence is env > file > default,
// resolved once at process start. Each entry point validates only the
// sections it needs so required values fail fast before any network call.
package config

import (
	"errors"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultUpdateThresholdPct is the percentage drift below which the
	// updater skips the on-chain write.
	DefaultUpdateThresholdPct = 0.1

	DefaultFeedTimeoutSeconds = 10
	DefaultServerAddr         = ":8080"
	DefaultLogLevel           = "info"
)

type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Metrics struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"metrics"`
	Feed struct {
		Endpoint       string `yaml:"endpoint"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"feed"`
	Chain struct {
		RPCURL          string `yaml:"rpc_url"`
		OracleAddress   string `yaml:"oracle_address"`
		OwnerKey        string `yaml:"owner_key"`
		USDTAddress     string `yaml:"usdt_address"`
		EURTAddress     string `yaml:"eurt_address"`
		CommerceAddress string `yaml:"commerce_address"`
	} `yaml:"chain"`
	Updater struct {
		ThresholdPct float64 `yaml:"threshold_pct"`
	} `yaml:"updater"`
}

// Load reads the config file at path (or CONFIG_PATH, or configs/config.yaml),
// applies env overrides and fills defaults. A missing file is tolerated so
// env-only deployments work; a malformed file is not.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "configs/config.yaml"
	}

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	case os.IsNotExist(err):
		// env-only configuration
	default:
		return nil, err
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

// ValidateFeed checks the fields the fetch diagnostic needs.
func (c *Config) ValidateFeed() error {
	if c.Feed.Endpoint == "" {
		return errors.New("feed.endpoint is required")
	}
	return nil
}

// ValidateOracle checks the fields any oracle read needs.
func (c *Config) ValidateOracle() error {
	if c.Chain.RPCURL == "" {
		return errors.New("chain.rpc_url is required")
	}
	if c.Chain.OracleAddress == "" {
		return errors.New("chain.oracle_address is required")
	}
	return nil
}

// ValidateUpdater checks the fields the rate updater needs, including the
// signing key for the oracle write.
func (c *Config) ValidateUpdater() error {
	if err := c.ValidateFeed(); err != nil {
		return err
	}
	if err := c.ValidateOracle(); err != nil {
		return err
	}
	if c.Chain.OwnerKey == "" {
		return errors.New("chain.owner_key is required")
	}
	if c.Updater.ThresholdPct <= 0 {
		return errors.New("updater.threshold_pct must be positive")
	}
	return nil
}

// ValidateAPI checks the fields the rate API server needs.
func (c *Config) ValidateAPI() error {
	if err := c.ValidateOracle(); err != nil {
		return err
	}
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("FEED_ENDPOINT"); v != "" {
		cfg.Feed.Endpoint = v
	}
	if v := os.Getenv("FEED_TIMEOUT_SECONDS"); v != "" {
		cfg.Feed.TimeoutSeconds = atoiOr(cfg.Feed.TimeoutSeconds, v)
	}
	if v := os.Getenv("RPC_URL"); v != "" {
		cfg.Chain.RPCURL = v
	}
	if v := os.Getenv("ORACLE_ADDRESS"); v != "" {
		cfg.Chain.OracleAddress = v
	}
	if v := os.Getenv("ORACLE_OWNER_KEY"); v != "" {
		cfg.Chain.OwnerKey = v
	}
	if v := os.Getenv("USDT_ADDRESS"); v != "" {
		cfg.Chain.USDTAddress = v
	}
	if v := os.Getenv("EURT_ADDRESS"); v != "" {
		cfg.Chain.EURTAddress = v
	}
	if v := os.Getenv("COMMERCE_ADDRESS"); v != "" {
		cfg.Chain.CommerceAddress = v
	}
	if v := os.Getenv("UPDATE_THRESHOLD_PCT"); v != "" {
		cfg.Updater.ThresholdPct = atofOr(cfg.Updater.ThresholdPct, v)
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = DefaultServerAddr
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Feed.TimeoutSeconds <= 0 {
		cfg.Feed.TimeoutSeconds = DefaultFeedTimeoutSeconds
	}
	if cfg.Updater.ThresholdPct == 0 {
		cfg.Updater.ThresholdPct = DefaultUpdateThresholdPct
	}
}

func atoiOr(fallback int, v string) int {
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func atofOr(fallback float64, v string) float64 {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
