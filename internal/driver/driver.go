// Package driver provides per-chain adapters with a uniform capability
// set: native balance, token balance, best-effort token enumeration,
// and first-transaction lookup. Each driver encapsulates its chain's
// RPC dialect, endpoint failover, and retry tuning.
package driver

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Typed failures shared by all drivers.
var (
	// ErrRateLimited marks a 429 or semantic equivalent. Recovered
	// locally by back-off and endpoint failover.
	ErrRateLimited = errors.New("rate limited")

	// ErrUnsupportedChain is returned for chains outside the registry.
	ErrUnsupportedChain = errors.New("unsupported chain")
)

// DiscoveredToken is an ephemeral token observation for a wallet. It
// is never persisted directly; the user may promote one to an Asset.
type DiscoveredToken struct {
	Symbol   string   `json:"symbol"`
	Name     string   `json:"name"`
	Contract string   `json:"contract,omitempty"` // empty for native tokens
	Balance  float64  `json:"balance"`
	Decimals uint8    `json:"decimals"`
	Native   bool     `json:"is_native"`
	PriceUSD *float64 `json:"price_usd,omitempty"`
	ValueUSD *float64 `json:"value_usd,omitempty"`
}

// FirstTx describes a wallet's earliest observed activity. Estimated
// entries carry no timestamp and must never be treated as ground
// truth.
type FirstTx struct {
	Timestamp   *time.Time
	TxHash      string
	BlockNumber *int64
	Estimated   bool
}

// Driver is the uniform per-chain capability set. Implementations are
// safe for concurrent use.
type Driver interface {
	// Chain returns the registry name of the chain this driver serves.
	Chain() string

	// Connect probes the endpoint list and reports the first healthy
	// endpoint. Called once, under the manager's per-chain lock.
	Connect(ctx context.Context) error

	// ActiveEndpoint returns the endpoint the last successful call
	// used.
	ActiveEndpoint() string

	// NativeBalance returns the native-token balance in display units.
	NativeBalance(ctx context.Context, addr string) (float64, error)

	// TokenBalance returns a token balance in display units. Unknown
	// contracts yield 0.
	TokenBalance(ctx context.Context, addr, contract string) (float64, error)

	// EnumerateTokens returns a best-effort token listing for the
	// address. Not necessarily exhaustive.
	EnumerateTokens(ctx context.Context, addr string, includeZero bool) ([]*DiscoveredToken, error)

	// FirstTransactionTime returns the wallet's earliest activity,
	// estimated when no explorer data is available.
	FirstTransactionTime(ctx context.Context, addr string) (*FirstTx, error)
}

// sleepFunc waits for a duration or until the context is cancelled.
// Injectable so back-off behaviour is testable without real sleeps.
type sleepFunc func(ctx context.Context, d time.Duration) error

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

// isRateLimit reports whether an error is a rate-limit signal: our
// typed error, an HTTP 429, or the usual message variants.
func isRateLimit(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "too many requests")
}
