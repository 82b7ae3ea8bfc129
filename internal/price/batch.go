// Package price - Batched multi-symbol resolution.
package price

import (
	"context"
	"strings"
)

// GetMultiplePrices resolves many symbols in grouped API calls.
// Cached symbols and stablecoins never reach the network; the
// remainder is partitioned into groups of batch_size ids. Symbols
// that cannot be resolved answer 0.
func (e *Engine) GetMultiplePrices(ctx context.Context, symbols []string, chainName string) (map[string]float64, error) {
	e.bump(func(s *Stats) { s.BatchRequests++ })

	out := make(map[string]float64, len(symbols))
	idToSymbols := make(map[string][]string)
	var missingIDs []string

	for _, raw := range symbols {
		symbol := strings.ToUpper(raw)
		if _, done := out[symbol]; done {
			continue
		}
		e.bump(func(s *Stats) { s.TotalRequests++ })

		if price, ok := e.cached(symbol, chainName); ok {
			e.bump(func(s *Stats) { s.CacheHits++ })
			out[symbol] = price
			continue
		}
		if e.Degraded() {
			out[symbol] = 0
			continue
		}
		if stablecoins[symbol] {
			e.store(symbol, chainName, 1.0)
			out[symbol] = 1.0
			continue
		}

		id, ok := e.resolveID(ctx, symbol, chainName)
		if !ok {
			e.store(symbol, chainName, 0)
			out[symbol] = 0
			continue
		}
		if _, seen := idToSymbols[id]; !seen {
			missingIDs = append(missingIDs, id)
		}
		idToSymbols[id] = append(idToSymbols[id], symbol)
	}

	batchSize := e.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}

	for start := 0; start < len(missingIDs); start += batchSize {
		end := minInt(start+batchSize, len(missingIDs))
		group := missingIDs[start:end]

		prices, err := e.fetchPrices(ctx, group)
		if err != nil {
			// Best-available: zero this group, keep going.
			e.log.Warn("batch price fetch failed", "ids", len(group), "error", err)
			for _, id := range group {
				for _, symbol := range idToSymbols[id] {
					e.store(symbol, chainName, 0)
					out[symbol] = 0
				}
			}
			continue
		}

		for _, id := range group {
			price := prices[id]
			for _, symbol := range idToSymbols[id] {
				out[symbol] = price
				e.store(symbol, chainName, price)
			}
		}
	}
	return out, nil
}
