// Package driver - Sui driver over the suix JSON-RPC namespace.
package driver

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/foliolabs/folio/internal/chain"
	"github.com/foliolabs/folio/pkg/helpers"
	"github.com/foliolabs/folio/pkg/logging"
)

// suiNativeCoinType is the fully qualified coin type of SUI itself.
const suiNativeCoinType = "0x2::sui::SUI"

// SuiDriver talks to Sui full nodes.
type SuiDriver struct {
	params    *chain.Params
	endpoints *endpointSet
	rpc       *rpcClient
	log       *logging.Logger
}

// NewSuiDriver creates the Sui driver.
func NewSuiDriver(params *chain.Params, urls []string, sleep sleepFunc, log *logging.Logger) *SuiDriver {
	return &SuiDriver{
		params:    params,
		endpoints: newEndpointSet(params, urls, sleep, log),
		rpc:       newRPCClient(10 * time.Second),
		log:       log,
	}
}

func (d *SuiDriver) Chain() string          { return d.params.Name }
func (d *SuiDriver) ActiveEndpoint() string { return d.endpoints.Active() }

// Connect probes the endpoint list with a chain-identifier fetch.
func (d *SuiDriver) Connect(ctx context.Context) error {
	return d.endpoints.do(ctx, "connect", func(ctx context.Context, url string) error {
		_, err := d.rpc.Call(ctx, url, "sui_getChainIdentifier", nil)
		return err
	})
}

// suiBalance is the result shape of suix_getBalance and the elements
// of suix_getAllBalances.
type suiBalance struct {
	CoinType     string `json:"coinType"`
	TotalBalance string `json:"totalBalance"`
}

// NativeBalance returns the SUI balance.
func (d *SuiDriver) NativeBalance(ctx context.Context, addr string) (float64, error) {
	return d.coinBalance(ctx, addr, suiNativeCoinType)
}

// TokenBalance returns the balance of one coin type. The contract
// argument is the fully qualified Move coin type.
func (d *SuiDriver) TokenBalance(ctx context.Context, addr, contract string) (float64, error) {
	return d.coinBalance(ctx, addr, contract)
}

func (d *SuiDriver) coinBalance(ctx context.Context, addr, coinType string) (float64, error) {
	if err := chain.ValidateAddress(chain.FamilySui, addr); err != nil {
		return 0, err
	}

	var raw string
	err := d.endpoints.do(ctx, "balance", func(ctx context.Context, url string) error {
		result, err := d.rpc.Call(ctx, url, "suix_getBalance", []interface{}{addr, coinType})
		if err != nil {
			return err
		}
		var parsed suiBalance
		if err := json.Unmarshal(result, &parsed); err != nil {
			return err
		}
		raw = parsed.TotalBalance
		return nil
	})
	if err != nil {
		return 0, err
	}
	return helpers.ParseRawAmount(raw, suiCoinDecimals(coinType))
}

// EnumerateTokens lists every coin type the address holds via
// suix_getAllBalances.
func (d *SuiDriver) EnumerateTokens(ctx context.Context, addr string, includeZero bool) ([]*DiscoveredToken, error) {
	if err := chain.ValidateAddress(chain.FamilySui, addr); err != nil {
		return nil, err
	}

	var balances []suiBalance
	err := d.endpoints.do(ctx, "enumerate_tokens", func(ctx context.Context, url string) error {
		result, err := d.rpc.Call(ctx, url, "suix_getAllBalances", []interface{}{addr})
		if err != nil {
			return err
		}
		balances = nil
		return json.Unmarshal(result, &balances)
	})
	if err != nil {
		return nil, err
	}

	var out []*DiscoveredToken
	for _, b := range balances {
		decimals := suiCoinDecimals(b.CoinType)
		balance, err := helpers.ParseRawAmount(b.TotalBalance, decimals)
		if err != nil {
			d.log.Debug("unparseable sui balance", "coin_type", b.CoinType, "error", err)
			continue
		}
		if balance == 0 && !includeZero {
			continue
		}

		native := b.CoinType == suiNativeCoinType
		token := &DiscoveredToken{
			Symbol:   suiCoinSymbol(b.CoinType),
			Balance:  balance,
			Decimals: decimals,
			Native:   native,
		}
		if native {
			token.Name = "Sui"
		} else {
			token.Contract = b.CoinType
			if known, ok := chain.GetTokenByContract(d.params.Name, b.CoinType); ok {
				token.Symbol = known.Symbol
				token.Name = known.Name
				token.Decimals = known.Decimals
			} else {
				token.Name = token.Symbol
			}
		}
		out = append(out, token)
	}
	return out, nil
}

// FirstTransactionTime is always estimated on Sui: public nodes don't
// expose an oldest-first transaction query for an address.
func (d *SuiDriver) FirstTransactionTime(ctx context.Context, addr string) (*FirstTx, error) {
	if err := chain.ValidateAddress(chain.FamilySui, addr); err != nil {
		return nil, err
	}
	return &FirstTx{Estimated: true}, nil
}

// suiCoinSymbol extracts the symbol from a Move coin type: the last
// :: segment, uppercased.
func suiCoinSymbol(coinType string) string {
	parts := strings.Split(coinType, "::")
	return strings.ToUpper(parts[len(parts)-1])
}

// suiCoinDecimals returns decimals for a coin type. The catalog wins;
// stablecoins default to 6, everything else to Sui's usual 9.
func suiCoinDecimals(coinType string) uint8 {
	if known, ok := chain.GetTokenByContract("sui", coinType); ok {
		return known.Decimals
	}
	switch suiCoinSymbol(coinType) {
	case "USDC", "USDT":
		return 6
	default:
		return 9
	}
}

var _ Driver = (*SuiDriver)(nil)
