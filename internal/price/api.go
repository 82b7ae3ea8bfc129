// Package price - External price API calls (CoinGecko-shaped).
package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// simplePrice calls {base}/simple/price for a set of external ids.
func (e *Engine) simplePrice(ctx context.Context, baseURL string, ids []string) (map[string]float64, error) {
	query := url.Values{}
	query.Set("ids", strings.Join(ids, ","))
	query.Set("vs_currencies", "usd")

	body, err := e.get(ctx, baseURL+"/simple/price?"+query.Encode())
	if err != nil {
		return nil, err
	}

	var parsed map[string]map[string]float64
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse price response: %w", err)
	}

	prices := make(map[string]float64, len(parsed))
	for id, quote := range parsed {
		prices[id] = quote["usd"]
	}
	return prices, nil
}

// coinEntry is one /coins/list row.
type coinEntry struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// coinsList fetches the full id catalog.
func (e *Engine) coinsList(ctx context.Context) ([]coinEntry, error) {
	body, err := e.get(ctx, e.cfg.APIURL+"/coins/list")
	if err != nil {
		return nil, err
	}
	var entries []coinEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse coins list: %w", err)
	}
	return entries, nil
}

func (e *Engine) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if e.cfg.APIKey != "" {
		req.Header.Set("x-cg-demo-api-key", e.cfg.APIKey)
	}

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: HTTP 429", errRateLimited)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("price API HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
