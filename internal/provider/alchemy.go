// Package provider - Alchemy client (secondary). Speaks JSON-RPC with
// Alchemy's enhanced methods; balances come back as raw hex.
package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/foliolabs/folio/internal/chain"
	"github.com/foliolabs/folio/internal/driver"
	"github.com/foliolabs/folio/pkg/helpers"
)

// alchemyNetworks maps registry names to Alchemy subdomains.
var alchemyNetworks = map[string]string{
	"ethereum": "eth-mainnet",
	"arbitrum": "arb-mainnet",
	"base":     "base-mainnet",
	"polygon":  "polygon-mainnet",
}

// Alchemy serves EVM token balances; no pricing surface.
type Alchemy struct {
	base
	endpointFmt string // Sprintf format: network, key
	http        *httpClient
}

// NewAlchemy creates the Alchemy provider.
func NewAlchemy(apiKey string) *Alchemy {
	p := &Alchemy{
		endpointFmt: "https://%s.g.alchemy.com/v2/%s",
		http:        newHTTPClient(30 * time.Second),
	}
	p.name = "alchemy"
	p.ptype = TypeMultiChain
	p.priority = PrioritySecondary
	p.apiKey = apiKey
	p.delay = 100 * time.Millisecond
	p.chains = chainSet("ethereum", "arbitrum", "base", "polygon")
	return p
}

func (p *Alchemy) endpoint(chainName string) (string, bool) {
	network, ok := alchemyNetworks[chainName]
	if !ok {
		return "", false
	}
	return fmt.Sprintf(p.endpointFmt, network, p.apiKey), true
}

type alchemyRPCResponse struct {
	Result struct {
		TokenBalances []struct {
			ContractAddress string `json:"contractAddress"`
			TokenBalance    string `json:"tokenBalance"` // hex
		} `json:"tokenBalances"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// GetWalletAssets combines eth_getBalance with alchemy_getTokenBalances
// restricted to the predefined catalog; metadata comes from the
// catalog rather than per-token metadata calls.
func (p *Alchemy) GetWalletAssets(ctx context.Context, chainName, addr string) ([]*driver.DiscoveredToken, error) {
	endpoint, ok := p.endpoint(chainName)
	if !ok || !p.hasKey() {
		return nil, nil
	}

	var out []*driver.DiscoveredToken

	native, err := p.nativeBalance(ctx, endpoint, chainName, addr)
	if err != nil {
		return nil, err
	}
	if native != nil {
		out = append(out, native)
	}

	var contracts []string
	known := make(map[string]*chain.TokenInfo)
	for _, info := range chain.ListTokens(chainName) {
		if info.Contract == "" {
			continue
		}
		contracts = append(contracts, info.Contract)
		known[strings.ToLower(info.Contract)] = info
	}
	if len(contracts) == 0 {
		return out, nil
	}

	var parsed alchemyRPCResponse
	body := map[string]interface{}{
		"jsonrpc": "2.0", "id": 1,
		"method": "alchemy_getTokenBalances",
		"params": []interface{}{addr, contracts},
	}
	if err := p.http.postJSON(ctx, endpoint, nil, body, &parsed); err != nil {
		return nil, err
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("alchemy: RPC error %d: %s", parsed.Error.Code, parsed.Error.Message)
	}

	for _, tb := range parsed.Result.TokenBalances {
		info, ok := known[strings.ToLower(tb.ContractAddress)]
		if !ok {
			continue
		}
		balance := helpers.AmountToFloat(helpers.HexToBigInt(tb.TokenBalance), info.Decimals)
		if balance == 0 {
			continue
		}
		out = append(out, &driver.DiscoveredToken{
			Symbol:   info.Symbol,
			Name:     info.Name,
			Contract: info.Contract,
			Balance:  balance,
			Decimals: info.Decimals,
		})
	}
	return out, nil
}

func (p *Alchemy) nativeBalance(ctx context.Context, endpoint, chainName, addr string) (*driver.DiscoveredToken, error) {
	var parsed struct {
		Result string `json:"result"`
		Error  *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	body := map[string]interface{}{
		"jsonrpc": "2.0", "id": 1,
		"method": "eth_getBalance",
		"params": []interface{}{addr, "latest"},
	}
	if err := p.http.postJSON(ctx, endpoint, nil, body, &parsed); err != nil {
		return nil, err
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("alchemy: %s", parsed.Error.Message)
	}

	info, ok := chain.NativeToken(chainName)
	if !ok {
		return nil, nil
	}
	balance := helpers.AmountToFloat(helpers.HexToBigInt(parsed.Result), info.Decimals)
	if balance == 0 {
		return nil, nil
	}
	return &driver.DiscoveredToken{
		Symbol: info.Symbol, Name: info.Name,
		Balance: balance, Decimals: info.Decimals, Native: true,
	}, nil
}

// GetTokenBalance filters the listing down to one token.
func (p *Alchemy) GetTokenBalance(ctx context.Context, chainName, addr, contract string) (float64, error) {
	assets, err := p.GetWalletAssets(ctx, chainName, addr)
	if err != nil {
		return 0, err
	}
	return balanceForContract(assets, contract), nil
}

// GetTokenPrice has no surface on Alchemy's balance APIs.
func (p *Alchemy) GetTokenPrice(ctx context.Context, chainName, query string) (float64, error) {
	return 0, nil
}

var _ DataProvider = (*Alchemy)(nil)
