// Package driver - Solana driver over the public JSON-RPC API.
package driver

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/foliolabs/folio/internal/chain"
	"github.com/foliolabs/folio/pkg/logging"
)

// splTokenProgram is the SPL Token program id; getTokenAccountsByOwner
// filtered on it enumerates every token account the wallet owns.
const splTokenProgram = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"

const lamportsPerSOL = 1e9

// SolanaDriver talks to Solana RPC nodes.
type SolanaDriver struct {
	params    *chain.Params
	endpoints *endpointSet
	rpc       *rpcClient
	log       *logging.Logger
}

// NewSolanaDriver creates the Solana driver.
func NewSolanaDriver(params *chain.Params, urls []string, sleep sleepFunc, log *logging.Logger) *SolanaDriver {
	return &SolanaDriver{
		params:    params,
		endpoints: newEndpointSet(params, urls, sleep, log),
		rpc:       newRPCClient(10 * time.Second),
		log:       log,
	}
}

func (d *SolanaDriver) Chain() string          { return d.params.Name }
func (d *SolanaDriver) ActiveEndpoint() string { return d.endpoints.Active() }

// Connect probes the endpoint list with getHealth.
func (d *SolanaDriver) Connect(ctx context.Context) error {
	return d.endpoints.do(ctx, "connect", func(ctx context.Context, url string) error {
		_, err := d.rpc.Call(ctx, url, "getHealth", nil)
		return err
	})
}

// NativeBalance returns the SOL balance.
func (d *SolanaDriver) NativeBalance(ctx context.Context, addr string) (float64, error) {
	if err := chain.ValidateAddress(chain.FamilySolana, addr); err != nil {
		return 0, err
	}

	var lamports uint64
	err := d.endpoints.do(ctx, "native_balance", func(ctx context.Context, url string) error {
		result, err := d.rpc.Call(ctx, url, "getBalance", []interface{}{addr})
		if err != nil {
			return err
		}
		var parsed struct {
			Value uint64 `json:"value"`
		}
		if err := json.Unmarshal(result, &parsed); err != nil {
			return err
		}
		lamports = parsed.Value
		return nil
	})
	if err != nil {
		return 0, err
	}
	return float64(lamports) / lamportsPerSOL, nil
}

// tokenAccountsResult is the jsonParsed shape of
// getTokenAccountsByOwner.
type tokenAccountsResult struct {
	Value []struct {
		Account struct {
			Data struct {
				Parsed struct {
					Info struct {
						Mint        string `json:"mint"`
						TokenAmount struct {
							UIAmount float64 `json:"uiAmount"`
							Decimals uint8   `json:"decimals"`
						} `json:"tokenAmount"`
					} `json:"info"`
				} `json:"parsed"`
			} `json:"data"`
		} `json:"account"`
	} `json:"value"`
}

// TokenBalance sums the wallet's token accounts for one mint.
func (d *SolanaDriver) TokenBalance(ctx context.Context, addr, contract string) (float64, error) {
	if err := chain.ValidateAddress(chain.FamilySolana, addr); err != nil {
		return 0, err
	}

	var total float64
	err := d.endpoints.do(ctx, "token_balance", func(ctx context.Context, url string) error {
		result, err := d.rpc.Call(ctx, url, "getTokenAccountsByOwner", []interface{}{
			addr,
			map[string]string{"mint": contract},
			map[string]string{"encoding": "jsonParsed"},
		})
		if err != nil {
			return err
		}
		var parsed tokenAccountsResult
		if err := json.Unmarshal(result, &parsed); err != nil {
			return err
		}
		total = 0
		for _, account := range parsed.Value {
			total += account.Account.Data.Parsed.Info.TokenAmount.UIAmount
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// EnumerateTokens lists SOL plus every SPL token account the wallet
// owns. Mints outside the predefined catalog are reported with the
// mint as symbol placeholder.
func (d *SolanaDriver) EnumerateTokens(ctx context.Context, addr string, includeZero bool) ([]*DiscoveredToken, error) {
	if err := chain.ValidateAddress(chain.FamilySolana, addr); err != nil {
		return nil, err
	}

	var out []*DiscoveredToken

	sol, err := d.NativeBalance(ctx, addr)
	if err != nil {
		return nil, err
	}
	if sol > 0 || includeZero {
		out = append(out, &DiscoveredToken{
			Symbol: "SOL", Name: "Solana", Balance: sol, Decimals: 9, Native: true,
		})
	}

	var parsed tokenAccountsResult
	err = d.endpoints.do(ctx, "enumerate_tokens", func(ctx context.Context, url string) error {
		result, err := d.rpc.Call(ctx, url, "getTokenAccountsByOwner", []interface{}{
			addr,
			map[string]string{"programId": splTokenProgram},
			map[string]string{"encoding": "jsonParsed"},
		})
		if err != nil {
			return err
		}
		parsed = tokenAccountsResult{}
		return json.Unmarshal(result, &parsed)
	})
	if err != nil {
		return nil, err
	}

	// Multiple accounts can hold the same mint; sum them.
	byMint := make(map[string]*DiscoveredToken)
	var mints []string
	for _, account := range parsed.Value {
		info := account.Account.Data.Parsed.Info
		if existing, ok := byMint[info.Mint]; ok {
			existing.Balance += info.TokenAmount.UIAmount
			continue
		}
		token := &DiscoveredToken{
			Contract: info.Mint,
			Balance:  info.TokenAmount.UIAmount,
			Decimals: info.TokenAmount.Decimals,
		}
		if known, ok := chain.GetTokenByContract(d.params.Name, info.Mint); ok {
			token.Symbol = known.Symbol
			token.Name = known.Name
		} else {
			token.Symbol = shortMint(info.Mint)
			token.Name = "Unknown SPL Token"
		}
		byMint[info.Mint] = token
		mints = append(mints, info.Mint)
	}

	for _, mint := range mints {
		token := byMint[mint]
		if token.Balance == 0 && !includeZero {
			continue
		}
		out = append(out, token)
	}
	return out, nil
}

// signaturePageLimit is the getSignaturesForAddress page size. A full
// page means older activity may exist beyond it.
const signaturePageLimit = 1000

// FirstTransactionTime walks back one page of signatures and takes the
// oldest block time. Wallets with more history than one page get an
// estimated answer anchored on the oldest visible signature.
func (d *SolanaDriver) FirstTransactionTime(ctx context.Context, addr string) (*FirstTx, error) {
	if err := chain.ValidateAddress(chain.FamilySolana, addr); err != nil {
		return nil, err
	}

	type signature struct {
		Signature string `json:"signature"`
		BlockTime *int64 `json:"blockTime"`
		Slot      int64  `json:"slot"`
	}

	var signatures []signature
	err := d.endpoints.do(ctx, "first_transaction", func(ctx context.Context, url string) error {
		result, err := d.rpc.Call(ctx, url, "getSignaturesForAddress", []interface{}{
			addr,
			map[string]interface{}{"limit": signaturePageLimit},
		})
		if err != nil {
			return err
		}
		signatures = nil
		return json.Unmarshal(result, &signatures)
	})
	if err != nil {
		return nil, err
	}

	if len(signatures) == 0 {
		return &FirstTx{Estimated: true}, nil
	}

	// Results are newest-first; the last entry is the oldest visible.
	oldest := signatures[len(signatures)-1]
	if oldest.BlockTime == nil {
		return &FirstTx{Estimated: true}, nil
	}

	ts := time.Unix(*oldest.BlockTime, 0).UTC()
	slot := oldest.Slot
	return &FirstTx{
		Timestamp:   &ts,
		TxHash:      oldest.Signature,
		BlockNumber: &slot,
		Estimated:   len(signatures) == signaturePageLimit,
	}, nil
}

func shortMint(mint string) string {
	if len(mint) <= 8 {
		return strings.ToUpper(mint)
	}
	return strings.ToUpper(mint[:4] + ".." + mint[len(mint)-4:])
}

var _ Driver = (*SolanaDriver)(nil)
