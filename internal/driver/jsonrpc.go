// Package driver - Thin JSON-RPC 2.0 client shared by the Solana and
// Sui drivers.
package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// rpcClient issues JSON-RPC 2.0 requests over HTTP. Rate-limit
// responses surface as ErrRateLimited so the failover layer can apply
// the longer wait.
type rpcClient struct {
	httpClient *http.Client
	requestID  atomic.Uint64
}

func newRPCClient(timeout time.Duration) *rpcClient {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &rpcClient{
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Call issues one JSON-RPC request against the given endpoint.
func (c *rpcClient) Call(ctx context.Context, url, method string, params interface{}) (json.RawMessage, error) {
	id := c.requestID.Add(1)

	request := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
		"params":  params,
	}

	data, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: HTTP 429 from %s", ErrRateLimited, url)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var response struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      uint64          `json:"id"`
		Result  json.RawMessage `json:"result"`
		Error   *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if response.Error != nil {
		if response.Error.Code == 429 ||
			strings.Contains(strings.ToLower(response.Error.Message), "too many requests") {
			return nil, fmt.Errorf("%w: RPC error %d: %s",
				ErrRateLimited, response.Error.Code, response.Error.Message)
		}
		return nil, fmt.Errorf("RPC error %d: %s", response.Error.Code, response.Error.Message)
	}

	return response.Result, nil
}

// get issues a plain GET and decodes the body into out. Used by the
// Bitcoin REST driver and the explorer client.
func (c *rpcClient) get(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: HTTP 429 from %s", ErrRateLimited, url)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
