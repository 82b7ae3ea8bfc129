// Package driver - Etherscan-family explorer client used for EVM
// first-transaction lookups.
package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/foliolabs/folio/internal/chain"
)

// explorerClient queries an etherscan-compatible account API. The API
// key, when present in the environment, lifts the anonymous rate
// limit.
type explorerClient struct {
	params *chain.Params
	rpc    *rpcClient
	apiKey string
}

func newExplorerClient(params *chain.Params, timeout time.Duration) *explorerClient {
	if params.ExplorerAPI == "" {
		return nil
	}
	return &explorerClient{
		params: params,
		rpc:    newRPCClient(timeout),
		apiKey: os.Getenv("ETHERSCAN_API_KEY"),
	}
}

// firstTransaction asks for the account's transaction list sorted
// ascending with page size 1, which is exactly the earliest
// transaction.
func (c *explorerClient) firstTransaction(ctx context.Context, addr string) (*FirstTx, error) {
	query := url.Values{}
	query.Set("module", "account")
	query.Set("action", "txlist")
	query.Set("address", addr)
	query.Set("startblock", "0")
	query.Set("endblock", "99999999")
	query.Set("page", "1")
	query.Set("offset", "1")
	query.Set("sort", "asc")
	if c.apiKey != "" {
		query.Set("apikey", c.apiKey)
	}

	var response struct {
		Status  string          `json:"status"`
		Message string          `json:"message"`
		Result  json.RawMessage `json:"result"`
	}
	endpoint := c.params.ExplorerAPI + "?" + query.Encode()
	if err := c.rpc.get(ctx, endpoint, &response); err != nil {
		return nil, err
	}

	// Etherscan reports rate limiting through the message field with
	// status still "0".
	if response.Status != "1" {
		msg := strings.ToLower(response.Message)
		if strings.Contains(msg, "rate limit") || strings.Contains(msg, "max rate") {
			return nil, fmt.Errorf("%w: %s", ErrRateLimited, response.Message)
		}
		// "No transactions found" is a valid empty answer.
		if strings.Contains(msg, "no transactions") {
			return &FirstTx{Estimated: true}, nil
		}
		return nil, fmt.Errorf("explorer error: %s", response.Message)
	}

	var txs []struct {
		Hash        string `json:"hash"`
		TimeStamp   string `json:"timeStamp"`
		BlockNumber string `json:"blockNumber"`
	}
	if err := json.Unmarshal(response.Result, &txs); err != nil {
		return nil, fmt.Errorf("failed to parse explorer result: %w", err)
	}
	if len(txs) == 0 {
		return &FirstTx{Estimated: true}, nil
	}

	seconds, err := strconv.ParseInt(txs[0].TimeStamp, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad explorer timestamp %q: %w", txs[0].TimeStamp, err)
	}
	ts := time.Unix(seconds, 0).UTC()

	first := &FirstTx{Timestamp: &ts, TxHash: txs[0].Hash}
	if block, err := strconv.ParseInt(txs[0].BlockNumber, 10, 64); err == nil {
		first.BlockNumber = &block
	}
	return first, nil
}
