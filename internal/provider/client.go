// Package provider - Shared HTTP plumbing and tolerant JSON parsing
// for the vendor clients.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/foliolabs/folio/internal/chain"
	"github.com/foliolabs/folio/internal/driver"
	"github.com/foliolabs/folio/pkg/helpers"
)

// httpClient wraps net/http with the vendor-call conventions: JSON in
// and out, 429 surfaced as driver.ErrRateLimited.
type httpClient struct {
	c *http.Client
}

func newHTTPClient(timeout time.Duration) *httpClient {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &httpClient{c: &http.Client{Timeout: timeout}}
}

func (h *httpClient) getJSON(ctx context.Context, url string, headers map[string]string, out interface{}) error {
	return h.doJSON(ctx, "GET", url, headers, nil, out)
}

func (h *httpClient) postJSON(ctx context.Context, url string, headers map[string]string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return h.doJSON(ctx, "POST", url, headers, data, out)
}

func (h *httpClient) doJSON(ctx context.Context, method, url string, headers map[string]string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := h.c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: HTTP 429 from %s", driver.ErrRateLimited, url)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// flexFloat unmarshals a number that vendors serve either as a JSON
// number or as a quoted string, and treats null/absent as zero.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		*f = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// Tolerate garbage fields rather than failing the whole row.
		*f = 0
		return nil
	}
	*f = flexFloat(v)
	return nil
}

func (f flexFloat) value() float64 { return float64(f) }

// flexUint8 is flexFloat for small integer fields like decimals.
type flexUint8 uint8

func (f *flexUint8) UnmarshalJSON(data []byte) error {
	var v flexFloat
	if err := v.UnmarshalJSON(data); err != nil {
		return err
	}
	if v < 0 || v > 255 {
		*f = 0
		return nil
	}
	*f = flexUint8(v)
	return nil
}

// balanceForContract picks one token out of a wallet listing: contract
// match for tokens, native flag for an empty contract.
func balanceForContract(assets []*driver.DiscoveredToken, contract string) float64 {
	want := strings.ToLower(contract)
	for _, a := range assets {
		if contract == "" {
			if a.Native {
				return a.Balance
			}
			continue
		}
		if strings.ToLower(a.Contract) == want {
			return a.Balance
		}
	}
	return 0
}

func ptr(v float64) *float64 { return &v }

// nativeSymbol returns the chain's native-token symbol.
func nativeSymbol(chainName string) (string, bool) {
	if info, ok := chain.NativeToken(chainName); ok {
		return info.Symbol, true
	}
	return "", false
}

// parseRawOrZero scales a raw smallest-unit string; empty means zero.
func parseRawOrZero(raw string, decimals uint8) (float64, error) {
	if raw == "" {
		return 0, nil
	}
	return helpers.ParseRawAmount(raw, decimals)
}
