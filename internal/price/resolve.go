// Package price - Symbol to external-id resolution: hardcoded
// overrides, the predefined catalog, then the remote coin catalog
// (exact match before fuzzy).
package price

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/foliolabs/folio/internal/chain"
)

// idOverrides pins symbols whose catalog resolution is wrong or
// ambiguous. Keys are SYMBOL or SYMBOL@chain.
var idOverrides = map[string]string{
	"DEGEN@base": "degen-base",
	"SSOL":       "solana",      // liquid-staked SOL tracks SOL
	"ASBNB":      "binancecoin", // astherus BNB tracks BNB
}

// catalogTTL bounds the remote coin-catalog age.
const catalogTTL = 24 * time.Hour

// catalog caches the remote /coins/list answer with per-symbol
// indexes.
type catalog struct {
	engine *Engine

	mu        sync.Mutex
	fetchedAt time.Time
	bySymbol  map[string][]coinEntry
	entries   []coinEntry
}

func newCatalog(e *Engine) *catalog {
	return &catalog{engine: e}
}

// resolveID maps (symbol, chain) to an external price id.
func (e *Engine) resolveID(ctx context.Context, symbol, chainName string) (string, bool) {
	symbol = strings.ToUpper(symbol)

	if id, ok := idOverrides[symbol+"@"+strings.ToLower(chainName)]; ok {
		return id, true
	}
	if id, ok := idOverrides[symbol]; ok {
		return id, true
	}

	// The predefined catalog ships curated ids.
	if info, ok := chain.GetToken(chainName, symbol); ok && info.PriceID != "" {
		return info.PriceID, true
	}

	return e.catalog.lookup(ctx, symbol)
}

// lookup consults the remote catalog: exact symbol match first, then a
// fuzzy pass over names.
func (c *catalog) lookup(ctx context.Context, symbol string) (string, bool) {
	if err := c.ensure(ctx); err != nil {
		c.engine.log.Debug("coin catalog unavailable", "error", err)
		return "", false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	lower := strings.ToLower(symbol)
	if matches := c.bySymbol[lower]; len(matches) > 0 {
		// Prefer the entry whose id mirrors the symbol or name; the
		// catalog lists many wrapped/bridged duplicates.
		for _, m := range matches {
			if m.ID == lower || strings.EqualFold(m.Name, symbol) {
				return m.ID, true
			}
		}
		return matches[0].ID, true
	}

	for _, entry := range c.entries {
		if strings.Contains(strings.ToLower(entry.Name), lower) {
			return entry.ID, true
		}
	}
	return "", false
}

// ensure fetches the catalog when absent or stale.
func (c *catalog) ensure(ctx context.Context) error {
	c.mu.Lock()
	fresh := c.entries != nil && c.engine.clock().Sub(c.fetchedAt) < catalogTTL
	c.mu.Unlock()
	if fresh {
		return nil
	}

	entries, err := c.engine.coinsList(ctx)
	if err != nil {
		return err
	}

	bySymbol := make(map[string][]coinEntry)
	for _, entry := range entries {
		key := strings.ToLower(entry.Symbol)
		bySymbol[key] = append(bySymbol[key], entry)
	}

	c.mu.Lock()
	c.entries = entries
	c.bySymbol = bySymbol
	c.fetchedAt = c.engine.clock()
	c.mu.Unlock()
	return nil
}
