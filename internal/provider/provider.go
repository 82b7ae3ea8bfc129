// Package provider implements the vendor data-provider registry: nine
// aggregator APIs behind one interface, ordered by priority, with
// per-provider health bookkeeping. Providers without an API key stay
// registered and answer every query with empty results.
package provider

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/foliolabs/folio/internal/driver"
)

// Type classifies a provider's coverage.
type Type string

const (
	TypeMultiChain    Type = "multi-chain"
	TypeChainSpecific Type = "chain-specific"
	TypeFallback      Type = "fallback"
)

// Priority orders providers within the registry. Lower is tried first.
type Priority int

const (
	PriorityPrimary Priority = iota
	PrioritySecondary
	PriorityFallback
)

// ErrProviderUnhealthy marks a provider skipped for accumulated
// failures. It clears on the next successful call or an admin reset.
var ErrProviderUnhealthy = errors.New("provider unhealthy")

// unhealthyAfter is the consecutive-error count that benches a
// provider.
const unhealthyAfter = 3

// DataProvider is the uniform vendor API surface. Implementations are
// safe for concurrent use.
type DataProvider interface {
	Name() string
	Type() Type
	Priority() Priority

	// SupportsChain answers without network I/O, API key or not.
	SupportsChain(chain string) bool

	// RateLimitDelay is the minimum spacing the vendor asks between
	// calls.
	RateLimitDelay() time.Duration

	// Health bookkeeping, driven by the aggregator.
	Healthy() bool
	RecordError()
	ResetErrors()

	// GetWalletAssets lists the wallet's token holdings as the vendor
	// sees them. Empty (not an error) when the vendor has nothing.
	GetWalletAssets(ctx context.Context, chain, addr string) ([]*driver.DiscoveredToken, error)

	// GetTokenBalance returns one token balance; contract empty means
	// the native token.
	GetTokenBalance(ctx context.Context, chain, addr, contract string) (float64, error)

	// GetTokenPrice returns a USD price for a symbol or contract; 0
	// when the vendor has no pricing surface.
	GetTokenPrice(ctx context.Context, chain, query string) (float64, error)
}

// health tracks consecutive failures; embedded by every vendor.
type health struct {
	mu          sync.Mutex
	consecutive int
}

func (h *health) Healthy() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.consecutive < unhealthyAfter
}

func (h *health) RecordError() {
	h.mu.Lock()
	h.consecutive++
	h.mu.Unlock()
}

func (h *health) ResetErrors() {
	h.mu.Lock()
	h.consecutive = 0
	h.mu.Unlock()
}

// base carries the static identity every vendor shares.
type base struct {
	health
	name     string
	ptype    Type
	priority Priority
	apiKey   string
	delay    time.Duration
	chains   map[string]bool
}

func (b *base) Name() string                  { return b.name }
func (b *base) Type() Type                    { return b.ptype }
func (b *base) Priority() Priority            { return b.priority }
func (b *base) RateLimitDelay() time.Duration { return b.delay }

// setPriority lets the registry place a vendor in the tier its config
// list names, overriding the constructor default.
func (b *base) setPriority(p Priority) { b.priority = p }

func (b *base) SupportsChain(chain string) bool {
	return b.chains[chain]
}

// hasKey reports whether the vendor can actually be queried.
func (b *base) hasKey() bool { return b.apiKey != "" }

func chainSet(names ...string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}
