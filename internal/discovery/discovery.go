// Package discovery finds the tokens a wallet holds by merging three
// sources: the data aggregator, the chain driver's enumeration, and
// parallel probes of the predefined catalog. Results pass through
// dedup, spam and value filters, price enrichment, and a value sort.
package discovery

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/foliolabs/folio/internal/chain"
	"github.com/foliolabs/folio/internal/config"
	"github.com/foliolabs/folio/internal/driver"
	"github.com/foliolabs/folio/pkg/logging"
)

// Balances is the slice of the aggregator the engine consumes.
type Balances interface {
	Enabled() bool
	GetWalletAssets(ctx context.Context, chainName, addr string) ([]*driver.DiscoveredToken, error)
	GetTokenBalance(ctx context.Context, chainName, addr, contract string) (float64, error)
	GetTokenPrice(ctx context.Context, chainName, query string) (float64, error)
}

// Drivers hands out connected chain drivers.
type Drivers interface {
	Driver(ctx context.Context, chainName string) (driver.Driver, error)
}

// Engine runs the discovery pipeline.
type Engine struct {
	cfg      *config.DiscoveryConfig
	fallback bool // chain-driver fallback when providers come back empty
	agg      Balances
	drivers  Drivers
	log      *logging.Logger

	cache *lru.LRU[string, []*driver.DiscoveredToken]
}

// New creates a discovery engine.
func New(cfg *config.Config, agg Balances, drivers Drivers, log *logging.Logger) *Engine {
	ttl := cfg.Discovery.CacheTTL()
	return &Engine{
		cfg:      &cfg.Discovery,
		fallback: cfg.Aggregator.FallbackToChainDriver,
		agg:      agg,
		drivers:  drivers,
		log:      log.Component("discovery"),
		cache:    lru.NewLRU[string, []*driver.DiscoveredToken](512, nil, ttl),
	}
}

// Discover returns the filtered, price-enriched token list for one
// wallet. Results are cached per (addr, chain, include_zero, min_value).
func (e *Engine) Discover(ctx context.Context, addr, chainName string, includeZero bool, minValueUSD float64) ([]*driver.DiscoveredToken, error) {
	params, ok := chain.Get(chainName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", driver.ErrUnsupportedChain, chainName)
	}
	if err := chain.ValidateAddress(params.Family, addr); err != nil {
		return nil, err
	}
	addr = chain.NormalizeAddress(params.Family, addr)

	key := cacheKey(addr, chainName, includeZero, minValueUSD)
	if cached, ok := e.cache.Get(key); ok {
		return cached, nil
	}

	var found []*driver.DiscoveredToken

	if e.agg.Enabled() {
		assets, err := e.agg.GetWalletAssets(ctx, chainName, addr)
		if err != nil {
			e.log.Warn("aggregator discovery failed", "chain", chainName, "error", err)
		} else {
			found = assets
		}
	}

	if len(found) == 0 && e.fallback {
		found = e.enumerateViaDriver(ctx, addr, chainName, includeZero)
	}

	found = append(found, e.probePredefined(ctx, addr, chainName)...)

	tokens := dedup(found)
	tokens = filterSpam(tokens, chainName)
	if !includeZero {
		tokens = dropZero(tokens)
	}
	tokens = dropBelowValue(tokens, minValueUSD)
	e.enrichPrices(ctx, tokens, chainName)
	sortByValue(tokens)

	e.cache.Add(key, tokens)
	e.log.Debug("discovery complete", "chain", chainName, "address", addr, "tokens", len(tokens))
	return tokens, nil
}

// BatchResult is one address's outcome in a batch discovery run.
type BatchResult struct {
	Address string                    `json:"address"`
	Tokens  []*driver.DiscoveredToken `json:"tokens,omitempty"`
	Error   string                    `json:"error,omitempty"`
}

// BatchDiscover fans Discover out over many addresses with bounded
// concurrency. Per-address failures are recorded, never fatal.
func (e *Engine) BatchDiscover(ctx context.Context, addresses []string, chainName string, includeZero bool, minValueUSD float64) []*BatchResult {
	maxConcurrent := e.cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 5
	}

	results := make([]*BatchResult, len(addresses))
	sem := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup

	for i, addr := range addresses {
		wg.Add(1)
		go func(i int, addr string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			r := &BatchResult{Address: addr}
			tokens, err := e.Discover(ctx, addr, chainName, includeZero, minValueUSD)
			if err != nil {
				r.Error = err.Error()
			} else {
				r.Tokens = tokens
			}
			results[i] = r
		}(i, addr)
	}
	wg.Wait()
	return results
}

// AddManualToken fetches one token's balance directly and returns it as
// a discovery result when the wallet holds any. Cached discovery
// results for the wallet are invalidated either way.
func (e *Engine) AddManualToken(ctx context.Context, addr, chainName, contract, symbol string) (*driver.DiscoveredToken, error) {
	if !e.cfg.ManualAdditionEnabled {
		return nil, fmt.Errorf("manual token addition is disabled")
	}
	params, ok := chain.Get(chainName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", driver.ErrUnsupportedChain, chainName)
	}
	if err := chain.ValidateAddress(params.Family, addr); err != nil {
		return nil, err
	}
	addr = chain.NormalizeAddress(params.Family, addr)
	if contract != "" {
		if err := chain.ValidateAddress(params.Family, contract); err != nil {
			return nil, fmt.Errorf("invalid contract: %w", err)
		}
		contract = chain.NormalizeAddress(params.Family, contract)
	}
	defer e.InvalidateWallet(addr, chainName)

	balance, err := e.fetchBalance(ctx, addr, chainName, contract)
	if err != nil {
		return nil, err
	}
	if balance <= 0 {
		return nil, nil
	}

	token := &driver.DiscoveredToken{
		Symbol:   strings.ToUpper(symbol),
		Name:     symbol,
		Contract: contract,
		Balance:  balance,
		Native:   contract == "",
	}
	if info, ok := lookupCatalog(chainName, contract, symbol); ok {
		token.Symbol = info.Symbol
		token.Name = info.Name
		token.Decimals = info.Decimals
		token.Native = info.Native
	}

	query := contract
	if query == "" {
		query = token.Symbol
	}
	if price, err := e.agg.GetTokenPrice(ctx, chainName, query); err == nil && price > 0 {
		value := balance * price
		token.PriceUSD = &price
		token.ValueUSD = &value
	}
	return token, nil
}

// InvalidateWallet drops every cached discovery result for a wallet.
func (e *Engine) InvalidateWallet(addr, chainName string) int {
	prefix := addr + ":" + chainName + ":"
	removed := 0
	for _, key := range e.cache.Keys() {
		if strings.HasPrefix(key, prefix) {
			e.cache.Remove(key)
			removed++
		}
	}
	return removed
}

// ClearCache drops all cached discovery results.
func (e *Engine) ClearCache() {
	e.cache.Purge()
}

func (e *Engine) fetchBalance(ctx context.Context, addr, chainName, contract string) (float64, error) {
	if e.agg.Enabled() {
		balance, err := e.agg.GetTokenBalance(ctx, chainName, addr, contract)
		if err == nil && balance > 0 {
			return balance, nil
		}
	}

	drv, err := e.drivers.Driver(ctx, chainName)
	if err != nil {
		return 0, err
	}
	if contract == "" {
		return drv.NativeBalance(ctx, addr)
	}
	return drv.TokenBalance(ctx, addr, contract)
}

func (e *Engine) enumerateViaDriver(ctx context.Context, addr, chainName string, includeZero bool) []*driver.DiscoveredToken {
	drv, err := e.drivers.Driver(ctx, chainName)
	if err != nil {
		e.log.Warn("chain driver unavailable", "chain", chainName, "error", err)
		return nil
	}
	tokens, err := drv.EnumerateTokens(ctx, addr, includeZero)
	if err != nil {
		e.log.Warn("driver enumeration failed", "chain", chainName, "error", err)
		return nil
	}
	return tokens
}

// probePredefined checks every predefined token on the chain for a
// non-zero balance, bounded by max_concurrent workers.
func (e *Engine) probePredefined(ctx context.Context, addr, chainName string) []*driver.DiscoveredToken {
	catalog := chain.ListTokens(chainName)
	if len(catalog) == 0 {
		return nil
	}
	drv, err := e.drivers.Driver(ctx, chainName)
	if err != nil {
		e.log.Debug("skipping catalog probes", "chain", chainName, "error", err)
		return nil
	}

	maxConcurrent := e.cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 5
	}

	var mu sync.Mutex
	var out []*driver.DiscoveredToken
	sem := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup

	for _, info := range catalog {
		wg.Add(1)
		go func(info *chain.TokenInfo) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			var balance float64
			var err error
			if info.Native {
				balance, err = drv.NativeBalance(ctx, addr)
			} else {
				balance, err = drv.TokenBalance(ctx, addr, info.Contract)
			}
			if err != nil || balance <= 0 {
				return
			}

			mu.Lock()
			out = append(out, &driver.DiscoveredToken{
				Symbol:   info.Symbol,
				Name:     info.Name,
				Contract: info.Contract,
				Balance:  balance,
				Decimals: info.Decimals,
				Native:   info.Native,
			})
			mu.Unlock()
		}(info)
	}
	wg.Wait()
	return out
}

// enrichPrices fills missing prices via the aggregator and recomputes
// values. Price lookups that fail leave the token unpriced.
func (e *Engine) enrichPrices(ctx context.Context, tokens []*driver.DiscoveredToken, chainName string) {
	for _, t := range tokens {
		if t.PriceUSD == nil {
			query := t.Contract
			if query == "" {
				query = t.Symbol
			}
			price, err := e.agg.GetTokenPrice(ctx, chainName, query)
			if err != nil || price <= 0 {
				continue
			}
			t.PriceUSD = &price
		}
		if t.ValueUSD == nil {
			value := t.Balance * *t.PriceUSD
			t.ValueUSD = &value
		}
	}
}

// dedup merges observations of the same token, keeping the higher
// balance. First-seen order is preserved.
func dedup(tokens []*driver.DiscoveredToken) []*driver.DiscoveredToken {
	seen := make(map[string]*driver.DiscoveredToken, len(tokens))
	var order []string

	for _, t := range tokens {
		key := dedupKey(t)
		existing, ok := seen[key]
		if !ok {
			seen[key] = t
			order = append(order, key)
			continue
		}
		if t.Balance > existing.Balance {
			seen[key] = t
		}
	}

	out := make([]*driver.DiscoveredToken, 0, len(order))
	for _, key := range order {
		out = append(out, seen[key])
	}
	return out
}

func dedupKey(t *driver.DiscoveredToken) string {
	if t.Contract != "" {
		return "contract:" + strings.ToLower(t.Contract)
	}
	return "native:" + strings.ToUpper(t.Symbol)
}

func dropZero(tokens []*driver.DiscoveredToken) []*driver.DiscoveredToken {
	out := tokens[:0]
	for _, t := range tokens {
		if t.Balance > 0 {
			out = append(out, t)
		}
	}
	return out
}

// dropBelowValue removes tokens whose known value is below the floor.
// Unpriced tokens pass; they have no value to judge yet.
func dropBelowValue(tokens []*driver.DiscoveredToken, minValueUSD float64) []*driver.DiscoveredToken {
	if minValueUSD <= 0 {
		return tokens
	}
	out := tokens[:0]
	for _, t := range tokens {
		if t.ValueUSD != nil && *t.ValueUSD < minValueUSD {
			continue
		}
		out = append(out, t)
	}
	return out
}

// sortByValue orders by USD value descending; unpriced tokens sort
// last.
func sortByValue(tokens []*driver.DiscoveredToken) {
	sort.SliceStable(tokens, func(i, j int) bool {
		vi, vj := tokens[i].ValueUSD, tokens[j].ValueUSD
		switch {
		case vi == nil:
			return false
		case vj == nil:
			return true
		default:
			return *vi > *vj
		}
	})
}

func lookupCatalog(chainName, contract, symbol string) (*chain.TokenInfo, bool) {
	if contract != "" {
		if info, ok := chain.GetTokenByContract(chainName, contract); ok {
			return info, true
		}
	}
	if symbol != "" {
		if info, ok := chain.GetToken(chainName, symbol); ok {
			return info, true
		}
	}
	return nil, false
}

func cacheKey(addr, chainName string, includeZero bool, minValueUSD float64) string {
	return addr + ":" + chainName + ":" +
		strconv.FormatBool(includeZero) + ":" +
		strconv.FormatFloat(minValueUSD, 'f', -1, 64)
}
