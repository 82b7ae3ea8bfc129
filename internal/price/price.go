// Package price implements the layered price-resolution engine:
// memory TTL cache, degraded-mode circuit breaker, stablecoin
// shortcut, external-id resolution, then the external price API with
// throttling, retries, and batched fetches.
package price

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/foliolabs/folio/internal/config"
	"github.com/foliolabs/folio/pkg/logging"
)

// stablecoins resolve to exactly 1.0 without a network call.
var stablecoins = map[string]bool{
	"USDC": true,
	"USDT": true,
	"DAI":  true,
	"BUSD": true,
}

// Stats are the engine's lifetime counters.
type Stats struct {
	TotalRequests      int64 `json:"total_requests"`
	BatchRequests      int64 `json:"batch_requests"`
	CacheHits          int64 `json:"cache_hits"`
	RateLimitHits      int64 `json:"rate_limit_hits"`
	NetworkErrors      int64 `json:"network_errors"`
	SuccessfulRequests int64 `json:"successful_requests"`
}

// cacheEntry is one memory-cached price.
type cacheEntry struct {
	price float64
	at    time.Time
}

// sleepFunc and clockFunc are injectable for tests.
type sleepFunc func(ctx context.Context, d time.Duration) error
type clockFunc func() time.Time

// Engine resolves token prices in USD.
type Engine struct {
	cfg  *config.PriceConfig
	log  *logging.Logger
	http *http.Client

	clock clockFunc
	sleep sleepFunc

	// degraded-mode latch: opens after 3 consecutive live failures,
	// stays open 5 minutes, closes on a successful half-open probe.
	breaker *gobreaker.CircuitBreaker

	mu      sync.Mutex
	cache   map[string]cacheEntry
	lastHit time.Time // throttle clock for live calls
	stats   Stats

	catalog *catalog
}

// New creates a price engine.
func New(cfg *config.PriceConfig, log *logging.Logger) *Engine {
	e := &Engine{
		cfg:   cfg,
		log:   log.Component("price"),
		http:  &http.Client{Timeout: cfg.RequestTimeout()},
		clock: time.Now,
		sleep: defaultSleep,
		cache: make(map[string]cacheEntry),
	}
	e.catalog = newCatalog(e)
	e.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "price-api",
		Timeout: 5 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			e.log.Warn("price API state change", "from", from.String(), "to", to.String())
		},
	})
	return e
}

func defaultSleep(ctx context.Context, d time.Duration) error {
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

// Degraded reports whether the engine is in its back-off window.
func (e *Engine) Degraded() bool {
	return e.breaker.State() == gobreaker.StateOpen
}

// GetPrice resolves one token's USD price. In degraded mode a cache
// miss answers 0 without touching the network.
func (e *Engine) GetPrice(ctx context.Context, symbol, chainName string) (float64, error) {
	symbol = strings.ToUpper(symbol)
	e.bump(func(s *Stats) { s.TotalRequests++ })

	if price, ok := e.cached(symbol, chainName); ok {
		e.bump(func(s *Stats) { s.CacheHits++ })
		return price, nil
	}

	if e.Degraded() {
		e.log.Debug("degraded mode, returning zero on cache miss", "symbol", symbol)
		return 0, nil
	}

	if stablecoins[symbol] {
		e.store(symbol, chainName, 1.0)
		return 1.0, nil
	}

	// Zero answers are cached too, so an unknown or unquoted symbol
	// costs one live lookup per TTL window, not one per call.
	id, ok := e.resolveID(ctx, symbol, chainName)
	if !ok {
		e.log.Debug("no external id for symbol", "symbol", symbol, "chain", chainName)
		e.store(symbol, chainName, 0)
		return 0, nil
	}

	prices, err := e.fetchPrices(ctx, []string{id})
	if err != nil {
		e.store(symbol, chainName, 0)
		return 0, err
	}
	price := prices[id]
	e.store(symbol, chainName, price)
	return price, nil
}

// Refresh drops the memory cache so the next reads go live.
func (e *Engine) Refresh() {
	e.mu.Lock()
	e.cache = make(map[string]cacheEntry)
	e.mu.Unlock()
	e.log.Info("price cache cleared")
}

// Stats returns a copy of the lifetime counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// cached returns a price younger than the TTL.
func (e *Engine) cached(symbol, chainName string) (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.cache[cacheKey(symbol, chainName)]
	if !ok {
		return 0, false
	}
	if e.clock().Sub(entry.at) > e.cfg.CacheTTL() {
		return 0, false
	}
	return entry.price, true
}

func (e *Engine) store(symbol, chainName string, price float64) {
	e.mu.Lock()
	e.cache[cacheKey(symbol, chainName)] = cacheEntry{price: price, at: e.clock()}
	e.mu.Unlock()
}

func (e *Engine) bump(fn func(*Stats)) {
	e.mu.Lock()
	fn(&e.stats)
	e.mu.Unlock()
}

func cacheKey(symbol, chainName string) string {
	return strings.ToUpper(symbol) + ":" + strings.ToLower(chainName)
}

// throttle enforces the minimum spacing between live API calls.
func (e *Engine) throttle(ctx context.Context) error {
	delay := e.cfg.RateLimitDelay()
	if delay <= 0 {
		return nil
	}

	e.mu.Lock()
	elapsed := e.clock().Sub(e.lastHit)
	wait := delay - elapsed
	e.lastHit = e.clock().Add(maxDuration(0, wait))
	e.mu.Unlock()

	if wait > 0 {
		return e.sleep(ctx, wait)
	}
	return nil
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

// errRateLimited marks an HTTP 429 from the price API.
var errRateLimited = errors.New("price API rate limited")

// fetchPrices performs one live /simple/price call through the
// breaker, with throttling and 429 retry (base·2^attempt + 60 s).
func (e *Engine) fetchPrices(ctx context.Context, ids []string) (map[string]float64, error) {
	if len(ids) == 0 {
		return map[string]float64{}, nil
	}

	result, err := e.breaker.Execute(func() (interface{}, error) {
		return e.fetchWithRetry(ctx, ids)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			return map[string]float64{}, nil
		}
		return nil, err
	}
	e.bump(func(s *Stats) { s.SuccessfulRequests++ })
	return result.(map[string]float64), nil
}

func (e *Engine) fetchWithRetry(ctx context.Context, ids []string) (map[string]float64, error) {
	endpoints := append([]string{e.cfg.APIURL}, e.cfg.BackupEndpoints...)

	var lastErr error
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if err := e.throttle(ctx); err != nil {
			return nil, err
		}

		// Backup endpoints are for network errors; rate limits retry
		// against the same endpoint after the long wait.
		endpoint := endpoints[minInt(attempt, len(endpoints)-1)]
		prices, err := e.simplePrice(ctx, endpoint, ids)
		if err == nil {
			return prices, nil
		}
		lastErr = err

		if errors.Is(err, errRateLimited) {
			e.bump(func(s *Stats) { s.RateLimitHits++ })
			wait := e.cfg.RetryBaseDelay()*time.Duration(1<<attempt) + 60*time.Second
			e.log.Debug("price API rate limited", "attempt", attempt, "wait", wait)
			if serr := e.sleep(ctx, wait); serr != nil {
				return nil, serr
			}
			continue
		}

		e.bump(func(s *Stats) { s.NetworkErrors++ })
		e.log.Debug("price API call failed", "endpoint", endpoint, "attempt", attempt, "error", err)
	}
	return nil, fmt.Errorf("price fetch failed after %d attempts: %w", e.cfg.MaxRetries+1, lastErr)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
