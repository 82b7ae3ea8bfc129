package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefault(t *testing.T) {
	dir, err := os.MkdirTemp("", "folio-config-test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Storage.DataDir != dir {
		t.Errorf("DataDir = %q, want %q", cfg.Storage.DataDir, dir)
	}
	if cfg.Price.CacheTTLSeconds != 300 {
		t.Errorf("Price.CacheTTLSeconds = %d, want 300", cfg.Price.CacheTTLSeconds)
	}
	if cfg.Price.BatchSize != 10 {
		t.Errorf("Price.BatchSize = %d, want 10", cfg.Price.BatchSize)
	}
	if cfg.History.RetentionYears != 3 {
		t.Errorf("History.RetentionYears = %d, want 3", cfg.History.RetentionYears)
	}

	// Config file should have been written
	if _, err := os.Stat(filepath.Join(dir, ConfigFileName)); err != nil {
		t.Errorf("config file not created: %v", err)
	}

	// Loading again reads the written file
	cfg2, err := Load(dir)
	if err != nil {
		t.Fatalf("second Load failed: %v", err)
	}
	if cfg2.Price.APIURL != cfg.Price.APIURL {
		t.Errorf("APIURL = %q, want %q", cfg2.Price.APIURL, cfg.Price.APIURL)
	}
}

func TestLoadPartialFile(t *testing.T) {
	dir, err := os.MkdirTemp("", "folio-config-test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	partial := []byte("price:\n  batch_size: 25\nhistory:\n  retention_years: 1\n")
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), partial, 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// Overridden values
	if cfg.Price.BatchSize != 25 {
		t.Errorf("Price.BatchSize = %d, want 25", cfg.Price.BatchSize)
	}
	if cfg.History.RetentionYears != 1 {
		t.Errorf("History.RetentionYears = %d, want 1", cfg.History.RetentionYears)
	}

	// Defaults preserved for unset values
	if cfg.Price.MaxRetries != 3 {
		t.Errorf("Price.MaxRetries = %d, want 3", cfg.Price.MaxRetries)
	}
	if !cfg.Aggregator.Enabled {
		t.Error("Aggregator.Enabled should default to true")
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	dir, err := os.MkdirTemp("", "folio-config-test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	bad := []byte("price:\n  batch_size: 25\n  no_such_option: 1\n")
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), bad, 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	if _, err := Load(dir); err == nil {
		t.Error("Load accepted a config with unknown keys")
	}
}

func TestEnvOverrides(t *testing.T) {
	dir, err := os.MkdirTemp("", "folio-config-test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	t.Setenv("COVALENT_API_KEY", "cov-key-123")
	t.Setenv("ETHEREUM_RPC_URL", "https://example.invalid/rpc")
	t.Setenv("COINGECKO_API_KEY", "cg-key")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got := cfg.Aggregator.APIKey("covalent"); got != "cov-key-123" {
		t.Errorf("APIKey(covalent) = %q, want cov-key-123", got)
	}
	if got := cfg.Aggregator.APIKey("moralis"); got != "" {
		t.Errorf("APIKey(moralis) = %q, want empty", got)
	}

	ov := cfg.ChainOverride("ethereum")
	if ov == nil || ov.RPCURL != "https://example.invalid/rpc" {
		t.Errorf("ChainOverride(ethereum) = %+v, want rpc override", ov)
	}
	if cfg.ChainOverride("bitcoin") != nil {
		t.Error("ChainOverride(bitcoin) should be nil")
	}

	if cfg.Price.APIKey != "cg-key" {
		t.Errorf("Price.APIKey = %q, want cg-key", cfg.Price.APIKey)
	}
}

func TestDurationAccessors(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Price.RateLimitDelay().Seconds() != 2.0 {
		t.Errorf("RateLimitDelay = %v, want 2s", cfg.Price.RateLimitDelay())
	}
	if cfg.Price.CacheTTL().Seconds() != 300 {
		t.Errorf("CacheTTL = %v, want 300s", cfg.Price.CacheTTL())
	}
	if cfg.History.Interval().Hours() != 1 {
		t.Errorf("Interval = %v, want 1h", cfg.History.Interval())
	}
}
