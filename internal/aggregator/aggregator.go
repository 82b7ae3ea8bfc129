// Package aggregator queries the provider registry in priority order
// and returns the first successful non-empty answer, with a TTL cache
// in front and health bookkeeping behind.
package aggregator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/foliolabs/folio/internal/config"
	"github.com/foliolabs/folio/internal/driver"
	"github.com/foliolabs/folio/internal/provider"
	"github.com/foliolabs/folio/pkg/logging"
)

// cacheSize bounds the result cache; entries also expire on TTL.
const cacheSize = 1024

// Registry is the provider-lookup surface the aggregator consumes.
// *provider.Registry satisfies it.
type Registry interface {
	ForChain(chainName string) []provider.DataProvider
	ResetAll()
	HealthSnapshot() []*provider.Health
}

// Aggregator fans queries out to the registry. An empty result from a
// provider counts as a miss for the operation, not an error.
type Aggregator struct {
	registry Registry
	cfg      *config.AggregatorConfig
	log      *logging.Logger

	cache *lru.LRU[string, interface{}]

	clock func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	// per-provider throttle clocks, keyed by provider name.
	paceMu   sync.Mutex
	lastCall map[string]time.Time
}

// New creates an aggregator over a provider registry.
func New(registry Registry, cfg *config.AggregatorConfig, log *logging.Logger) *Aggregator {
	ttl := cfg.CacheTTL()
	if ttl <= 0 {
		ttl = 300 * time.Second
	}
	return &Aggregator{
		registry: registry,
		cfg:      cfg,
		log:      log.Component("aggregator"),
		cache:    lru.NewLRU[string, interface{}](cacheSize, nil, ttl),
		clock:    time.Now,
		sleep:    sleepCtx,
		lastCall: make(map[string]time.Time),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// pace waits out the vendor's minimum spacing since its last call.
func (a *Aggregator) pace(ctx context.Context, p provider.DataProvider) error {
	delay := p.RateLimitDelay()
	if delay <= 0 {
		return nil
	}

	a.paceMu.Lock()
	wait := delay - a.clock().Sub(a.lastCall[p.Name()])
	if wait < 0 {
		wait = 0
	}
	a.lastCall[p.Name()] = a.clock().Add(wait)
	a.paceMu.Unlock()

	if wait > 0 {
		return a.sleep(ctx, wait)
	}
	return nil
}

// Enabled reports whether the aggregator path is configured on.
func (a *Aggregator) Enabled() bool { return a.cfg.Enabled }

// GetWalletAssets returns the first non-empty wallet listing.
func (a *Aggregator) GetWalletAssets(ctx context.Context, chainName, addr string) ([]*driver.DiscoveredToken, error) {
	key := cacheKey("wallet_assets", chainName, addr)
	if cached, ok := a.cache.Get(key); ok {
		return cached.([]*driver.DiscoveredToken), nil
	}

	var lastErr error
	for _, p := range a.registry.ForChain(chainName) {
		if !p.Healthy() {
			a.log.Debug("skipping unhealthy provider", "provider", p.Name(), "chain", chainName)
			continue
		}
		if err := a.pace(ctx, p); err != nil {
			return nil, err
		}
		assets, err := p.GetWalletAssets(ctx, chainName, addr)
		if err != nil {
			lastErr = err
			p.RecordError()
			a.log.Debug("provider failed", "provider", p.Name(), "chain", chainName, "error", err)
			continue
		}
		p.ResetErrors()
		if len(assets) == 0 {
			continue
		}
		a.cache.Add(key, assets)
		a.log.Debug("wallet assets resolved", "provider", p.Name(),
			"chain", chainName, "tokens", len(assets))
		return assets, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("all providers failed for %s: %w", chainName, lastErr)
	}
	// Successful-empty answers are cached for the full TTL too.
	a.cache.Add(key, []*driver.DiscoveredToken(nil))
	return nil, nil
}

// GetTokenBalance returns the first non-zero balance answer.
func (a *Aggregator) GetTokenBalance(ctx context.Context, chainName, addr, contract string) (float64, error) {
	key := cacheKey("token_balance", chainName, addr, contract)
	if cached, ok := a.cache.Get(key); ok {
		return cached.(float64), nil
	}

	var lastErr error
	for _, p := range a.registry.ForChain(chainName) {
		if !p.Healthy() {
			continue
		}
		if err := a.pace(ctx, p); err != nil {
			return 0, err
		}
		balance, err := p.GetTokenBalance(ctx, chainName, addr, contract)
		if err != nil {
			lastErr = err
			p.RecordError()
			continue
		}
		p.ResetErrors()
		if balance == 0 {
			continue
		}
		a.cache.Add(key, balance)
		return balance, nil
	}

	if lastErr != nil {
		return 0, fmt.Errorf("all providers failed for %s: %w", chainName, lastErr)
	}
	a.cache.Add(key, float64(0))
	return 0, nil
}

// GetTokenPrice returns the first non-zero vendor price.
func (a *Aggregator) GetTokenPrice(ctx context.Context, chainName, query string) (float64, error) {
	key := cacheKey("token_price", chainName, query)
	if cached, ok := a.cache.Get(key); ok {
		return cached.(float64), nil
	}

	var lastErr error
	for _, p := range a.registry.ForChain(chainName) {
		if !p.Healthy() {
			continue
		}
		if err := a.pace(ctx, p); err != nil {
			return 0, err
		}
		price, err := p.GetTokenPrice(ctx, chainName, query)
		if err != nil {
			lastErr = err
			p.RecordError()
			continue
		}
		p.ResetErrors()
		if price == 0 {
			continue
		}
		a.cache.Add(key, price)
		return price, nil
	}

	if lastErr != nil {
		return 0, fmt.Errorf("all providers failed for %s: %w", chainName, lastErr)
	}
	a.cache.Add(key, float64(0))
	return 0, nil
}

// ClearCache drops every cached result.
func (a *Aggregator) ClearCache() {
	a.cache.Purge()
	a.log.Info("aggregator cache cleared")
}

// InvalidatePrefix drops cached entries whose argument part starts
// with the prefix (e.g. "addr:chain" after a manual token add).
func (a *Aggregator) InvalidatePrefix(prefix string) int {
	removed := 0
	for _, key := range a.cache.Keys() {
		if _, args, found := strings.Cut(key, "|"); found && strings.HasPrefix(args, prefix) {
			a.cache.Remove(key)
			removed++
		}
	}
	return removed
}

// ResetProviders re-arms every provider.
func (a *Aggregator) ResetProviders() {
	a.registry.ResetAll()
}

// ProviderHealth exposes the registry's health snapshot.
func (a *Aggregator) ProviderHealth() []*provider.Health {
	return a.registry.HealthSnapshot()
}

func cacheKey(op string, args ...string) string {
	return op + "|" + strings.Join(args, ":")
}
