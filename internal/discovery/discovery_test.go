package discovery

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/foliolabs/folio/internal/config"
	"github.com/foliolabs/folio/internal/driver"
	"github.com/foliolabs/folio/pkg/logging"
)

const (
	testSolAddr  = "So11111111111111111111111111111111111111112"
	testEthAddr  = "0x1111111111111111111111111111111111111111"
	usdcContract = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
)

type fakeBalances struct {
	enabled bool
	assets  []*driver.DiscoveredToken
	// balance keyed by contract, "" for native
	balances map[string]float64
	prices   map[string]float64

	mu          sync.Mutex
	walletCalls int
}

func (f *fakeBalances) Enabled() bool { return f.enabled }

func (f *fakeBalances) GetWalletAssets(ctx context.Context, chainName, addr string) ([]*driver.DiscoveredToken, error) {
	f.mu.Lock()
	f.walletCalls++
	f.mu.Unlock()
	return f.assets, nil
}

func (f *fakeBalances) GetTokenBalance(ctx context.Context, chainName, addr, contract string) (float64, error) {
	return f.balances[strings.ToLower(contract)], nil
}

func (f *fakeBalances) GetTokenPrice(ctx context.Context, chainName, query string) (float64, error) {
	return f.prices[strings.ToLower(query)], nil
}

func (f *fakeBalances) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.walletCalls
}

type fakeDriver struct {
	chainName string
	native    float64
	tokens    map[string]float64
	enum      []*driver.DiscoveredToken
}

func (d *fakeDriver) Chain() string                     { return d.chainName }
func (d *fakeDriver) Connect(ctx context.Context) error { return nil }
func (d *fakeDriver) ActiveEndpoint() string            { return "fake://rpc" }

func (d *fakeDriver) NativeBalance(ctx context.Context, addr string) (float64, error) {
	return d.native, nil
}

func (d *fakeDriver) TokenBalance(ctx context.Context, addr, contract string) (float64, error) {
	return d.tokens[strings.ToLower(contract)], nil
}

func (d *fakeDriver) EnumerateTokens(ctx context.Context, addr string, includeZero bool) ([]*driver.DiscoveredToken, error) {
	return d.enum, nil
}

func (d *fakeDriver) FirstTransactionTime(ctx context.Context, addr string) (*driver.FirstTx, error) {
	return &driver.FirstTx{Estimated: true}, nil
}

type fakeDrivers struct {
	drv driver.Driver
	err error
}

func (f *fakeDrivers) Driver(ctx context.Context, chainName string) (driver.Driver, error) {
	return f.drv, f.err
}

func newTestEngine(agg *fakeBalances, drv driver.Driver) *Engine {
	cfg := config.DefaultConfig()
	return New(cfg, agg, &fakeDrivers{drv: drv}, logging.Default())
}

func TestDiscoverFiltersSpamAndEmptySymbols(t *testing.T) {
	agg := &fakeBalances{
		enabled: true,
		assets: []*driver.DiscoveredToken{
			{Symbol: "SOL", Name: "Solana", Balance: 1.0, Native: true},
			{Symbol: "USDC", Name: "USD Coin", Contract: "EPjFW", Balance: 10.0},
			{Symbol: "FREE_AIRDROP_CLAIM_NOW", Name: "", Contract: "spam1", Balance: 1e9},
			{Symbol: "", Name: "mystery", Contract: "spam2", Balance: 5},
		},
	}
	e := newTestEngine(agg, &fakeDriver{chainName: "solana"})

	tokens, err := e.Discover(context.Background(), testSolAddr, "solana", false, 0.01)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(tokens) != 2 {
		t.Fatalf("Discover() returned %d tokens, want 2", len(tokens))
	}
	got := map[string]bool{}
	for _, tok := range tokens {
		got[tok.Symbol] = true
	}
	if !got["SOL"] || !got["USDC"] {
		t.Errorf("survivors = %v, want SOL and USDC", got)
	}
}

func TestDiscoverFallsBackToDriver(t *testing.T) {
	agg := &fakeBalances{enabled: true} // providers answer empty
	drv := &fakeDriver{
		chainName: "ethereum",
		enum: []*driver.DiscoveredToken{
			{Symbol: "LINK", Name: "Chainlink", Contract: "0x2222222222222222222222222222222222222222", Balance: 3},
		},
	}
	e := newTestEngine(agg, drv)

	tokens, err := e.Discover(context.Background(), testEthAddr, "ethereum", false, 0)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	found := false
	for _, tok := range tokens {
		if tok.Symbol == "LINK" {
			found = true
		}
	}
	if !found {
		t.Error("driver-enumerated token missing from results")
	}
}

func TestDiscoverProbesPredefinedCatalog(t *testing.T) {
	agg := &fakeBalances{enabled: false}
	drv := &fakeDriver{
		chainName: "ethereum",
		native:    2.0,
		tokens:    map[string]float64{usdcContract: 150},
	}
	e := newTestEngine(agg, drv)
	e.fallback = false

	tokens, err := e.Discover(context.Background(), testEthAddr, "ethereum", false, 0)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	got := map[string]float64{}
	for _, tok := range tokens {
		got[tok.Symbol] = tok.Balance
	}
	if got["ETH"] != 2.0 {
		t.Errorf("native probe balance = %v, want 2.0", got["ETH"])
	}
	if got["USDC"] != 150 {
		t.Errorf("USDC probe balance = %v, want 150", got["USDC"])
	}
}

func TestDiscoverDedupKeepsHigherBalance(t *testing.T) {
	// Aggregator and catalog probe both see USDC; the probe's larger
	// balance must win.
	agg := &fakeBalances{
		enabled: true,
		assets: []*driver.DiscoveredToken{
			{Symbol: "USDC", Name: "USD Coin", Contract: usdcContract, Balance: 10},
		},
	}
	drv := &fakeDriver{
		chainName: "ethereum",
		tokens:    map[string]float64{usdcContract: 25},
	}
	e := newTestEngine(agg, drv)

	tokens, err := e.Discover(context.Background(), testEthAddr, "ethereum", false, 0)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	count := 0
	for _, tok := range tokens {
		if tok.Symbol == "USDC" {
			count++
			if tok.Balance != 25 {
				t.Errorf("USDC balance = %v, want the higher 25", tok.Balance)
			}
		}
	}
	if count != 1 {
		t.Errorf("USDC appears %d times, want 1", count)
	}
}

func TestDiscoverCachesResults(t *testing.T) {
	agg := &fakeBalances{
		enabled: true,
		assets: []*driver.DiscoveredToken{
			{Symbol: "ETH", Name: "Ethereum", Balance: 1, Native: true},
		},
	}
	e := newTestEngine(agg, &fakeDriver{chainName: "ethereum"})

	if _, err := e.Discover(context.Background(), testEthAddr, "ethereum", false, 0); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if _, err := e.Discover(context.Background(), testEthAddr, "ethereum", false, 0); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if agg.calls() != 1 {
		t.Errorf("aggregator calls = %d, want 1 (second hit cached)", agg.calls())
	}

	// Different filter settings form a distinct cache key.
	if _, err := e.Discover(context.Background(), testEthAddr, "ethereum", true, 0); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if agg.calls() != 2 {
		t.Errorf("aggregator calls = %d, want 2 after new cache key", agg.calls())
	}
}

func TestDiscoverSortsByValueDescending(t *testing.T) {
	agg := &fakeBalances{
		enabled: true,
		assets: []*driver.DiscoveredToken{
			{Symbol: "AAA", Name: "Aaa", Contract: "0x3333333333333333333333333333333333333333", Balance: 1},
			{Symbol: "ETH", Name: "Ethereum", Balance: 2, Native: true},
			{Symbol: "BBB", Name: "Bbb", Contract: "0x4444444444444444444444444444444444444444", Balance: 1},
		},
		prices: map[string]float64{
			"eth": 2000,
			"0x4444444444444444444444444444444444444444": 5,
		},
	}
	e := newTestEngine(agg, &fakeDriver{chainName: "ethereum"})

	tokens, err := e.Discover(context.Background(), testEthAddr, "ethereum", false, 0)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(tokens) != 3 {
		t.Fatalf("got %d tokens, want 3", len(tokens))
	}
	if tokens[0].Symbol != "ETH" || tokens[1].Symbol != "BBB" || tokens[2].Symbol != "AAA" {
		t.Errorf("order = %s,%s,%s; want ETH,BBB,AAA (unpriced last)",
			tokens[0].Symbol, tokens[1].Symbol, tokens[2].Symbol)
	}
	if tokens[0].ValueUSD == nil || *tokens[0].ValueUSD != 4000 {
		t.Errorf("ETH value = %v, want 4000", tokens[0].ValueUSD)
	}
}

func TestAddManualTokenInvalidatesCache(t *testing.T) {
	agg := &fakeBalances{
		enabled: true,
		assets: []*driver.DiscoveredToken{
			{Symbol: "ETH", Name: "Ethereum", Balance: 1, Native: true},
		},
		balances: map[string]float64{usdcContract: 42},
		prices:   map[string]float64{usdcContract: 1.0},
	}
	e := newTestEngine(agg, &fakeDriver{chainName: "ethereum"})

	if _, err := e.Discover(context.Background(), testEthAddr, "ethereum", false, 0); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	token, err := e.AddManualToken(context.Background(), testEthAddr, "ethereum", usdcContract, "USDC")
	if err != nil {
		t.Fatalf("AddManualToken() error = %v", err)
	}
	if token == nil || token.Balance != 42 {
		t.Fatalf("AddManualToken() = %+v, want balance 42", token)
	}
	if token.ValueUSD == nil || *token.ValueUSD != 42 {
		t.Errorf("value = %v, want 42", token.ValueUSD)
	}
	// Catalog metadata fills in for known contracts.
	if token.Decimals != 6 {
		t.Errorf("decimals = %d, want 6 from the catalog", token.Decimals)
	}

	// Cached discovery for the wallet is gone.
	before := agg.calls()
	if _, err := e.Discover(context.Background(), testEthAddr, "ethereum", false, 0); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if agg.calls() != before+1 {
		t.Error("manual addition did not invalidate the discovery cache")
	}
}

func TestAddManualTokenZeroBalance(t *testing.T) {
	agg := &fakeBalances{enabled: true}
	e := newTestEngine(agg, &fakeDriver{chainName: "ethereum"})

	token, err := e.AddManualToken(context.Background(), testEthAddr, "ethereum", usdcContract, "USDC")
	if err != nil {
		t.Fatalf("AddManualToken() error = %v", err)
	}
	if token != nil {
		t.Errorf("AddManualToken() = %+v, want nil for zero balance", token)
	}
}

func TestBatchDiscoverRecordsFailures(t *testing.T) {
	agg := &fakeBalances{
		enabled: true,
		assets: []*driver.DiscoveredToken{
			{Symbol: "ETH", Name: "Ethereum", Balance: 1, Native: true},
		},
	}
	e := newTestEngine(agg, &fakeDriver{chainName: "ethereum"})

	results := e.BatchDiscover(context.Background(),
		[]string{testEthAddr, "not-an-address"}, "ethereum", false, 0)
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Error != "" || len(results[0].Tokens) != 1 {
		t.Errorf("good address result = %+v, want one token", results[0])
	}
	if results[1].Error == "" {
		t.Error("bad address should record an error")
	}
}

func TestSpamFilterIdempotent(t *testing.T) {
	tokens := []*driver.DiscoveredToken{
		{Symbol: "SOL", Name: "Solana", Balance: 1},
		{Symbol: "TESTCOIN", Name: "Test", Balance: 1},
		{Symbol: "XY", Name: "visit xy.com to claim", Balance: 1},
		{Symbol: "UNKNOWN", Name: "", Balance: 1},
	}
	once := filterSpam(append([]*driver.DiscoveredToken{}, tokens...), "solana")
	twice := filterSpam(append([]*driver.DiscoveredToken{}, once...), "solana")

	if len(once) != 1 || once[0].Symbol != "SOL" {
		t.Fatalf("filterSpam kept %d tokens, want only SOL", len(once))
	}
	if len(twice) != len(once) {
		t.Errorf("filterSpam not idempotent: %d != %d", len(twice), len(once))
	}
}
