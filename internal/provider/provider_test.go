package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/foliolabs/folio/internal/config"
	"github.com/foliolabs/folio/pkg/logging"
)

func testAggregatorConfig() *config.AggregatorConfig {
	cfg := config.DefaultConfig().Aggregator
	cfg.APIKeys = map[string]string{"covalent": "test-key"}
	return &cfg
}

func TestRegistryPriorityOrder(t *testing.T) {
	r := NewRegistry(testAggregatorConfig(), logging.Default())

	providers := r.All()
	if len(providers) != 9 {
		t.Fatalf("providers = %d, want 9", len(providers))
	}
	for i := 1; i < len(providers); i++ {
		if providers[i].Priority() < providers[i-1].Priority() {
			t.Errorf("provider %s (prio %d) sorted after %s (prio %d)",
				providers[i].Name(), providers[i].Priority(),
				providers[i-1].Name(), providers[i-1].Priority())
		}
	}
	if providers[0].Name() != "covalent" || providers[1].Name() != "mobula" {
		t.Errorf("primary tier = %s, %s; want covalent, mobula",
			providers[0].Name(), providers[1].Name())
	}
}

func TestRegistryTierFollowsConfigPlacement(t *testing.T) {
	cfg := testAggregatorConfig()
	// Promote moralis out of the fallback list to the head of the
	// primary list; no rebuild should be needed to reorder vendors.
	cfg.PrimaryProviders = []string{"moralis", "covalent", "mobula"}
	cfg.FallbackProviders = []string{"bitquery"}
	r := NewRegistry(cfg, logging.Default())

	providers := r.All()
	if providers[0].Name() != "moralis" {
		t.Fatalf("first provider = %s, want the promoted moralis", providers[0].Name())
	}
	if p, _ := r.Get("moralis"); p.Priority() != PriorityPrimary {
		t.Errorf("moralis priority = %d, want primary", p.Priority())
	}
	if p, _ := r.Get("bitquery"); p.Priority() != PriorityFallback {
		t.Errorf("bitquery priority = %d, want fallback", p.Priority())
	}
}

func TestRegistryForChainSuiSpecificFirst(t *testing.T) {
	r := NewRegistry(testAggregatorConfig(), logging.Default())

	sui := r.ForChain("sui")
	if len(sui) == 0 {
		t.Fatal("no providers for sui")
	}
	if sui[0].Name() != "blockvision" {
		t.Errorf("first sui provider = %s, want blockvision", sui[0].Name())
	}
	for _, p := range sui {
		if !p.SupportsChain("sui") {
			t.Errorf("provider %s in sui list but does not support sui", p.Name())
		}
	}

	// Bitcoin is covered by covalent and bitquery only.
	for _, p := range r.ForChain("bitcoin") {
		if p.Name() != "covalent" && p.Name() != "bitquery" {
			t.Errorf("unexpected bitcoin provider %s", p.Name())
		}
	}
}

func TestRegistrySkipsUnknownNames(t *testing.T) {
	cfg := testAggregatorConfig()
	cfg.PrimaryProviders = append([]string{"nonsense"}, cfg.PrimaryProviders...)
	r := NewRegistry(cfg, logging.Default())
	if _, ok := r.Get("nonsense"); ok {
		t.Error("unknown provider name should not register")
	}
	if _, ok := r.Get("covalent"); !ok {
		t.Error("known providers should still register")
	}
}

func TestHealthBookkeeping(t *testing.T) {
	p := NewCovalent("key")
	if !p.Healthy() {
		t.Fatal("fresh provider should be healthy")
	}
	p.RecordError()
	p.RecordError()
	if !p.Healthy() {
		t.Error("two errors should not bench the provider")
	}
	p.RecordError()
	if p.Healthy() {
		t.Error("three consecutive errors should bench the provider")
	}
	p.ResetErrors()
	if !p.Healthy() {
		t.Error("reset should restore health")
	}
}

func TestEmptyAPIKeyReturnsEmptyWithoutNetwork(t *testing.T) {
	p := NewCovalent("")
	p.baseURL = "http://unreachable.invalid"

	assets, err := p.GetWalletAssets(context.Background(), "ethereum", "0x1111111111111111111111111111111111111111")
	if err != nil {
		t.Fatalf("GetWalletAssets() error = %v", err)
	}
	if len(assets) != 0 {
		t.Errorf("assets = %d, want 0", len(assets))
	}
	if !p.SupportsChain("ethereum") {
		t.Error("SupportsChain should answer regardless of API key")
	}
	if !p.Healthy() {
		t.Error("keyless queries must not touch the error counter")
	}
}

func TestCovalentParsing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"items": []map[string]interface{}{
					{
						"contract_ticker_symbol": "ETH",
						"contract_name":          "Ether",
						"contract_decimals":      18,
						"balance":                "2000000000000000000",
						"quote_rate":             2500.0,
						"native_token":           true,
					},
					{
						"contract_ticker_symbol": "USDC",
						"contract_name":          "USD Coin",
						"contract_address":       "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48",
						"contract_decimals":      "6", // string-typed decimals
						"balance":                "150000000",
						"quote_rate":             "1.0",
					},
					{
						// Nameless dust entry gets dropped.
						"contract_ticker_symbol": "",
						"balance":                "1",
					},
				},
			},
		})
	}))
	defer srv.Close()

	p := NewCovalent("key")
	p.baseURL = srv.URL

	assets, err := p.GetWalletAssets(context.Background(), "ethereum", "0x1111111111111111111111111111111111111111")
	if err != nil {
		t.Fatalf("GetWalletAssets() error = %v", err)
	}
	if len(assets) != 2 {
		t.Fatalf("assets = %d, want 2", len(assets))
	}

	eth := assets[0]
	if !eth.Native || eth.Balance != 2.0 || eth.Contract != "" {
		t.Errorf("native row = %+v, want ETH 2.0 with empty contract", eth)
	}
	if eth.PriceUSD == nil || *eth.PriceUSD != 2500 {
		t.Errorf("PriceUSD = %v, want 2500", eth.PriceUSD)
	}

	usdc := assets[1]
	if usdc.Balance != 150 || usdc.Decimals != 6 {
		t.Errorf("usdc = %+v, want balance 150 decimals 6", usdc)
	}

	balance, err := p.GetTokenBalance(context.Background(), "ethereum",
		"0x1111111111111111111111111111111111111111",
		"0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	if err != nil {
		t.Fatalf("GetTokenBalance() error = %v", err)
	}
	if balance != 150 {
		t.Errorf("token balance = %v, want 150 (case-insensitive contract match)", balance)
	}
}

func TestFlexFloatShapes(t *testing.T) {
	var parsed struct {
		A flexFloat `json:"a"`
		B flexFloat `json:"b"`
		C flexFloat `json:"c"`
		D flexFloat `json:"d"`
	}
	data := []byte(`{"a": 1.5, "b": "2.5", "c": null, "d": "garbage"}`)
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("unmarshal error = %v", err)
	}
	if parsed.A != 1.5 || parsed.B != 2.5 || parsed.C != 0 || parsed.D != 0 {
		t.Errorf("parsed = %+v, want 1.5, 2.5, 0, 0", parsed)
	}
}
