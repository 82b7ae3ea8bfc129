package aggregator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/foliolabs/folio/internal/config"
	"github.com/foliolabs/folio/internal/driver"
	"github.com/foliolabs/folio/internal/provider"
	"github.com/foliolabs/folio/pkg/logging"
)

// fakeProvider scripts per-call answers for aggregator tests.
type fakeProvider struct {
	name     string
	priority provider.Priority
	delay    time.Duration
	assets   []*driver.DiscoveredToken
	balance  float64
	price    float64
	err      error

	mu          sync.Mutex
	calls       int
	consecutive int
}

func (f *fakeProvider) Name() string                    { return f.name }
func (f *fakeProvider) Type() provider.Type             { return provider.TypeMultiChain }
func (f *fakeProvider) Priority() provider.Priority     { return f.priority }
func (f *fakeProvider) SupportsChain(chain string) bool { return true }
func (f *fakeProvider) RateLimitDelay() time.Duration   { return f.delay }

func (f *fakeProvider) Healthy() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.consecutive < 3
}
func (f *fakeProvider) RecordError() { f.mu.Lock(); f.consecutive++; f.mu.Unlock() }
func (f *fakeProvider) ResetErrors() { f.mu.Lock(); f.consecutive = 0; f.mu.Unlock() }

func (f *fakeProvider) called() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeProvider) GetWalletAssets(ctx context.Context, chain, addr string) ([]*driver.DiscoveredToken, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.assets, f.err
}

func (f *fakeProvider) GetTokenBalance(ctx context.Context, chain, addr, contract string) (float64, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.balance, f.err
}

func (f *fakeProvider) GetTokenPrice(ctx context.Context, chain, query string) (float64, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.price, f.err
}

// fakeRegistry serves a fixed provider slice in order.
type fakeRegistry struct {
	providers []provider.DataProvider
}

func (r *fakeRegistry) ForChain(chainName string) []provider.DataProvider { return r.providers }
func (r *fakeRegistry) ResetAll() {
	for _, p := range r.providers {
		p.ResetErrors()
	}
}
func (r *fakeRegistry) HealthSnapshot() []*provider.Health { return nil }

func newTestAggregator(t *testing.T, fakes ...*fakeProvider) *Aggregator {
	t.Helper()
	cfg := config.DefaultConfig().Aggregator
	registry := &fakeRegistry{}
	for _, f := range fakes {
		registry.providers = append(registry.providers, f)
	}
	return New(registry, &cfg, logging.Default())
}

func TestFirstNonEmptyWins(t *testing.T) {
	empty := &fakeProvider{name: "empty"}
	full := &fakeProvider{name: "full", assets: []*driver.DiscoveredToken{{Symbol: "ETH", Balance: 1}}}
	late := &fakeProvider{name: "late", assets: []*driver.DiscoveredToken{{Symbol: "NO", Balance: 9}}}
	a := newTestAggregator(t, empty, full, late)

	assets, err := a.GetWalletAssets(context.Background(), "ethereum", "0xabc")
	if err != nil {
		t.Fatalf("GetWalletAssets() error = %v", err)
	}
	if len(assets) != 1 || assets[0].Symbol != "ETH" {
		t.Fatalf("assets = %+v, want the first non-empty answer", assets)
	}
	if late.called() != 0 {
		t.Error("providers after the first non-empty answer should not be called")
	}
}

func TestErrorsRecordAndFailover(t *testing.T) {
	failing := &fakeProvider{name: "failing", err: errors.New("boom")}
	backup := &fakeProvider{name: "backup", assets: []*driver.DiscoveredToken{{Symbol: "SOL", Balance: 2}}}
	a := newTestAggregator(t, failing, backup)

	assets, err := a.GetWalletAssets(context.Background(), "solana", "addr")
	if err != nil {
		t.Fatalf("GetWalletAssets() error = %v", err)
	}
	if len(assets) != 1 || assets[0].Symbol != "SOL" {
		t.Fatalf("assets = %+v, want backup answer", assets)
	}
	if failing.consecutive != 1 {
		t.Errorf("failing provider error count = %d, want 1", failing.consecutive)
	}
	if backup.consecutive != 0 {
		t.Errorf("backup provider error count = %d, want 0 after success", backup.consecutive)
	}
}

func TestUnhealthyProviderSkipped(t *testing.T) {
	benched := &fakeProvider{name: "benched", consecutive: 3,
		assets: []*driver.DiscoveredToken{{Symbol: "X", Balance: 1}}}
	healthy := &fakeProvider{name: "healthy", assets: []*driver.DiscoveredToken{{Symbol: "ETH", Balance: 1}}}
	a := newTestAggregator(t, benched, healthy)

	assets, err := a.GetWalletAssets(context.Background(), "ethereum", "0xabc")
	if err != nil {
		t.Fatalf("GetWalletAssets() error = %v", err)
	}
	if benched.called() != 0 {
		t.Error("unhealthy provider should be skipped")
	}
	if len(assets) != 1 || assets[0].Symbol != "ETH" {
		t.Errorf("assets = %+v, want healthy provider's answer", assets)
	}
}

func TestResultCaching(t *testing.T) {
	p := &fakeProvider{name: "p", assets: []*driver.DiscoveredToken{{Symbol: "ETH", Balance: 1}}}
	a := newTestAggregator(t, p)

	for i := 0; i < 3; i++ {
		if _, err := a.GetWalletAssets(context.Background(), "ethereum", "0xabc"); err != nil {
			t.Fatalf("GetWalletAssets() error = %v", err)
		}
	}
	if p.called() != 1 {
		t.Errorf("provider calls = %d, want 1 (cache hit after first)", p.called())
	}

	a.ClearCache()
	if _, err := a.GetWalletAssets(context.Background(), "ethereum", "0xabc"); err != nil {
		t.Fatalf("GetWalletAssets() error = %v", err)
	}
	if p.called() != 2 {
		t.Errorf("provider calls = %d, want 2 after cache clear", p.called())
	}
}

func TestSuccessfulEmptyIsCached(t *testing.T) {
	p := &fakeProvider{name: "p"}
	a := newTestAggregator(t, p)

	for i := 0; i < 2; i++ {
		assets, err := a.GetWalletAssets(context.Background(), "ethereum", "0xempty")
		if err != nil {
			t.Fatalf("GetWalletAssets() error = %v", err)
		}
		if len(assets) != 0 {
			t.Fatalf("assets = %+v, want empty", assets)
		}
	}
	if p.called() != 1 {
		t.Errorf("provider calls = %d, want 1 (empty answers cache too)", p.called())
	}
}

func TestAllProvidersFailing(t *testing.T) {
	p1 := &fakeProvider{name: "p1", err: errors.New("down")}
	p2 := &fakeProvider{name: "p2", err: errors.New("also down")}
	a := newTestAggregator(t, p1, p2)

	if _, err := a.GetWalletAssets(context.Background(), "ethereum", "0xabc"); err == nil {
		t.Fatal("GetWalletAssets() should fail when every provider errors")
	}
}

func TestTokenBalanceAndPricePaths(t *testing.T) {
	zero := &fakeProvider{name: "zero"}
	priced := &fakeProvider{name: "priced", balance: 12.5, price: 3.25}
	a := newTestAggregator(t, zero, priced)

	balance, err := a.GetTokenBalance(context.Background(), "ethereum", "0xabc", "0xdef")
	if err != nil {
		t.Fatalf("GetTokenBalance() error = %v", err)
	}
	if balance != 12.5 {
		t.Errorf("balance = %v, want 12.5 (zero answers fall through)", balance)
	}

	price, err := a.GetTokenPrice(context.Background(), "ethereum", "DEGEN")
	if err != nil {
		t.Fatalf("GetTokenPrice() error = %v", err)
	}
	if price != 3.25 {
		t.Errorf("price = %v, want 3.25", price)
	}
}

func TestPaceSpacesProviderCalls(t *testing.T) {
	p := &fakeProvider{name: "throttled", delay: 500 * time.Millisecond, balance: 1}
	a := newTestAggregator(t, p)

	now := time.Unix(1700000000, 0)
	a.clock = func() time.Time { return now }
	var waits []time.Duration
	a.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		now = now.Add(d)
		return ctx.Err()
	}

	// Two distinct queries, so the cache stays out of the way.
	if _, err := a.GetTokenBalance(context.Background(), "ethereum", "0xabc", ""); err != nil {
		t.Fatalf("GetTokenBalance() error = %v", err)
	}
	if _, err := a.GetTokenBalance(context.Background(), "ethereum", "0xdef", ""); err != nil {
		t.Fatalf("GetTokenBalance() error = %v", err)
	}

	if len(waits) != 1 || waits[0] != 500*time.Millisecond {
		t.Errorf("waits = %v, want one 500ms gap between back-to-back calls", waits)
	}

	// After the delay has naturally elapsed there is nothing to wait for.
	now = now.Add(time.Second)
	if _, err := a.GetTokenBalance(context.Background(), "ethereum", "0x123", ""); err != nil {
		t.Fatalf("GetTokenBalance() error = %v", err)
	}
	if len(waits) != 1 {
		t.Errorf("waits = %v, want no extra wait after the gap elapsed", waits)
	}
}

func TestInvalidatePrefix(t *testing.T) {
	p := &fakeProvider{name: "p", assets: []*driver.DiscoveredToken{{Symbol: "ETH", Balance: 1}}}
	a := newTestAggregator(t, p)

	a.GetWalletAssets(context.Background(), "ethereum", "0xabc")
	a.GetWalletAssets(context.Background(), "base", "0xabc")

	removed := a.InvalidatePrefix("ethereum:")
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	a.GetWalletAssets(context.Background(), "ethereum", "0xabc")
	if p.called() != 3 {
		t.Errorf("provider calls = %d, want 3 (ethereum entry re-fetched)", p.called())
	}
}
