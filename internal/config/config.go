// Package config provides the daemon configuration: YAML file with
// defaults written on first run, plus environment overrides for API keys
// and RPC endpoints.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the folio daemon.
type Config struct {
	// Storage settings
	Storage StorageConfig `yaml:"storage"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging"`

	// RPC surface settings
	RPC RPCConfig `yaml:"rpc"`

	// Price engine settings
	Price PriceConfig `yaml:"price"`

	// Aggregator / provider settings
	Aggregator AggregatorConfig `yaml:"aggregator"`

	// Token discovery settings
	Discovery DiscoveryConfig `yaml:"discovery"`

	// History scheduler settings
	History HistoryConfig `yaml:"history"`

	// Chains holds per-chain RPC overrides keyed by chain name.
	// Unlisted chains use the built-in endpoint lists.
	Chains map[string]*ChainConfig `yaml:"chains,omitempty"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	// DataDir is the directory for the database and config file.
	DataDir string `yaml:"data_dir"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `yaml:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// RPCConfig holds settings for the JSON-RPC surface.
type RPCConfig struct {
	// Listen is the host:port the RPC server binds to.
	Listen string `yaml:"listen"`

	// EnableWS exposes the WebSocket event stream at /ws.
	EnableWS bool `yaml:"enable_ws"`
}

// PriceConfig holds price engine settings. Delays are in seconds.
type PriceConfig struct {
	// APIURL is the base URL of the external price API.
	APIURL string `yaml:"api_url"`

	// APIKey is optional; sent when set.
	APIKey string `yaml:"api_key"`

	// BackupEndpoints are tried in order when the primary endpoint
	// fails with a network error.
	BackupEndpoints []string `yaml:"backup_endpoints,omitempty"`

	// CacheTTLSeconds bounds the in-memory price cache age.
	CacheTTLSeconds int `yaml:"cache_ttl_seconds"`

	// BatchSize is the max number of external ids per batched request.
	BatchSize int `yaml:"batch_size"`

	// RateLimitDelaySeconds is the minimum spacing between live calls.
	RateLimitDelaySeconds float64 `yaml:"rate_limit_delay_seconds"`

	// MaxRetries bounds retry attempts per request.
	MaxRetries int `yaml:"max_retries"`

	// RetryBaseDelaySeconds seeds the exponential back-off.
	RetryBaseDelaySeconds float64 `yaml:"retry_base_delay_seconds"`

	// RequestTimeoutSeconds is the total per-request timeout.
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds"`
}

// CacheTTL returns the price cache TTL as a duration.
func (p *PriceConfig) CacheTTL() time.Duration {
	return time.Duration(p.CacheTTLSeconds) * time.Second
}

// RateLimitDelay returns the inter-call throttle as a duration.
func (p *PriceConfig) RateLimitDelay() time.Duration {
	return time.Duration(p.RateLimitDelaySeconds * float64(time.Second))
}

// RetryBaseDelay returns the back-off seed as a duration.
func (p *PriceConfig) RetryBaseDelay() time.Duration {
	return time.Duration(p.RetryBaseDelaySeconds * float64(time.Second))
}

// RequestTimeout returns the request timeout as a duration.
func (p *PriceConfig) RequestTimeout() time.Duration {
	return time.Duration(p.RequestTimeoutSeconds) * time.Second
}

// AggregatorConfig holds data-aggregator and provider settings.
type AggregatorConfig struct {
	// Enabled toggles the aggregator path in token discovery.
	Enabled bool `yaml:"enabled"`

	// CacheTTLSeconds bounds aggregator result cache age.
	CacheTTLSeconds int `yaml:"cache_ttl_seconds"`

	// FallbackToChainDriver enables direct chain queries when all
	// providers come back empty.
	FallbackToChainDriver bool `yaml:"fallback_to_chain_driver"`

	// Provider name lists in priority order.
	PrimaryProviders   []string `yaml:"primary_providers"`
	SecondaryProviders []string `yaml:"secondary_providers"`
	FallbackProviders  []string `yaml:"fallback_providers"`

	// APIKeys maps provider name to credential. Empty keys are
	// permitted; such providers answer every query with empty results.
	APIKeys map[string]string `yaml:"api_keys,omitempty"`
}

// CacheTTL returns the aggregator cache TTL as a duration.
func (a *AggregatorConfig) CacheTTL() time.Duration {
	return time.Duration(a.CacheTTLSeconds) * time.Second
}

// APIKey returns the configured key for a provider, consulting the
// environment (<NAME>_API_KEY) when the config file has none.
func (a *AggregatorConfig) APIKey(provider string) string {
	if a.APIKeys != nil {
		if k, ok := a.APIKeys[provider]; ok && k != "" {
			return k
		}
	}
	return os.Getenv(strings.ToUpper(provider) + "_API_KEY")
}

// DiscoveryConfig holds token discovery settings.
type DiscoveryConfig struct {
	// MinValueUSD drops discovered tokens valued below this.
	MinValueUSD float64 `yaml:"min_value_usd"`

	// IncludeZeroBalance keeps zero-balance tokens in results.
	IncludeZeroBalance bool `yaml:"include_zero_balance"`

	// ManualAdditionEnabled allows add-token-by-contract.
	ManualAdditionEnabled bool `yaml:"manual_addition_enabled"`

	// MaxConcurrent bounds batch discovery fan-out.
	MaxConcurrent int `yaml:"max_concurrent"`

	// CacheTTLSeconds bounds discovery result cache age.
	CacheTTLSeconds int `yaml:"cache_ttl_seconds"`
}

// CacheTTL returns the discovery cache TTL as a duration.
func (d *DiscoveryConfig) CacheTTL() time.Duration {
	return time.Duration(d.CacheTTLSeconds) * time.Second
}

// HistoryConfig holds snapshot/back-fill scheduler settings.
type HistoryConfig struct {
	// RetentionYears bounds history age; cleanup deletes older rows.
	RetentionYears int `yaml:"retention_years"`

	// IntervalHours spaces scheduler runs.
	IntervalHours int `yaml:"interval_hours"`

	// AutoUpdate starts the scheduler at boot.
	AutoUpdate bool `yaml:"auto_update"`

	// BatchSize bounds time points written per back-fill batch.
	BatchSize int `yaml:"batch_size"`

	// BackfillDays is the look-back window for gap filling.
	BackfillDays int `yaml:"backfill_days"`
}

// Interval returns the scheduler period as a duration.
func (h *HistoryConfig) Interval() time.Duration {
	return time.Duration(h.IntervalHours) * time.Hour
}

// ChainConfig holds per-chain RPC endpoint overrides.
type ChainConfig struct {
	// RPCURL replaces the built-in primary endpoint.
	RPCURL string `yaml:"rpc_url,omitempty"`

	// BackupRPCURLs are appended to the built-in backup list.
	BackupRPCURLs []string `yaml:"backup_rpc_urls,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			DataDir: "~/.folio",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		RPC: RPCConfig{
			Listen:   "127.0.0.1:8787",
			EnableWS: true,
		},
		Price: PriceConfig{
			APIURL:                "https://api.coingecko.com/api/v3",
			CacheTTLSeconds:       300,
			BatchSize:             10,
			RateLimitDelaySeconds: 2.0,
			MaxRetries:            3,
			RetryBaseDelaySeconds: 1.0,
			RequestTimeoutSeconds: 30,
		},
		Aggregator: AggregatorConfig{
			Enabled:               true,
			CacheTTLSeconds:       300,
			FallbackToChainDriver: true,
			PrimaryProviders:      []string{"covalent", "mobula"},
			SecondaryProviders:    []string{"zerion", "zapper", "alchemy", "debank"},
			FallbackProviders:     []string{"bitquery", "moralis"},
		},
		Discovery: DiscoveryConfig{
			MinValueUSD:           0.01,
			IncludeZeroBalance:    false,
			ManualAdditionEnabled: true,
			MaxConcurrent:         5,
			CacheTTLSeconds:       300,
		},
		History: HistoryConfig{
			RetentionYears: 3,
			IntervalHours:  1,
			AutoUpdate:     true,
			BatchSize:      100,
			BackfillDays:   7,
		},
	}
}

// ConfigFileName is the default config file name.
const ConfigFileName = "config.yaml"

// Load loads configuration from dataDir/config.yaml.
// If the file doesn't exist, it creates one with default values.
// Unknown keys in the file are errors, not silently ignored.
func Load(dataDir string) (*Config, error) {
	expandedDir := ExpandPath(dataDir)
	configPath := filepath.Join(expandedDir, ConfigFileName)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.Storage.DataDir = dataDir

		if err := cfg.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}

		cfg.applyEnv()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnv()
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# folio daemon configuration\n# Generated automatically on first run\n\n")
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Path returns the full path to the config file for the given data directory.
func Path(dataDir string) string {
	return filepath.Join(ExpandPath(dataDir), ConfigFileName)
}

// applyEnv layers environment overrides onto the loaded config:
// COINGECKO_API_KEY, <PROVIDER>_API_KEY and <CHAIN>_RPC_URL.
func (c *Config) applyEnv() {
	if k := os.Getenv("COINGECKO_API_KEY"); k != "" {
		c.Price.APIKey = k
	}
	for _, name := range knownProviders {
		if k := os.Getenv(strings.ToUpper(name) + "_API_KEY"); k != "" {
			if c.Aggregator.APIKeys == nil {
				c.Aggregator.APIKeys = make(map[string]string)
			}
			c.Aggregator.APIKeys[name] = k
		}
	}
	for _, name := range knownChains {
		if url := os.Getenv(strings.ToUpper(name) + "_RPC_URL"); url != "" {
			if c.Chains == nil {
				c.Chains = make(map[string]*ChainConfig)
			}
			cc := c.Chains[name]
			if cc == nil {
				cc = &ChainConfig{}
				c.Chains[name] = cc
			}
			cc.RPCURL = url
		}
	}
}

// knownProviders are the provider names recognized for env overrides.
var knownProviders = []string{
	"covalent", "mobula", "zerion", "zapper", "alchemy",
	"debank", "bitquery", "moralis", "blockvision",
}

// knownChains are the chain names recognized for env overrides.
var knownChains = []string{
	"ethereum", "arbitrum", "base", "polygon", "bsc",
	"solana", "sui", "bitcoin",
}

// ChainOverride returns the configured override for a chain, or nil.
func (c *Config) ChainOverride(name string) *ChainConfig {
	if c.Chains == nil {
		return nil
	}
	return c.Chains[name]
}

// ExpandPath expands a leading ~ to the home directory.
func ExpandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
