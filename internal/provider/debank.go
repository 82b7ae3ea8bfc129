// Package provider - DeBank client (secondary, EVM).
package provider

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/foliolabs/folio/internal/driver"
)

const debankBaseURL = "https://pro-openapi.debank.com/v1"

// debankChains maps registry names to DeBank chain ids.
var debankChains = map[string]string{
	"ethereum": "eth",
	"arbitrum": "arb",
	"base":     "base",
	"polygon":  "matic",
	"bsc":      "bsc",
}

// DeBank serves EVM token lists with scaled amounts and prices.
type DeBank struct {
	base
	baseURL string
	http    *httpClient
}

// NewDeBank creates the DeBank provider.
func NewDeBank(apiKey string) *DeBank {
	p := &DeBank{
		baseURL: debankBaseURL,
		http:    newHTTPClient(30 * time.Second),
	}
	p.name = "debank"
	p.ptype = TypeMultiChain
	p.priority = PrioritySecondary
	p.apiKey = apiKey
	p.delay = 350 * time.Millisecond
	p.chains = chainSet("ethereum", "arbitrum", "base", "polygon", "bsc")
	return p
}

type debankToken struct {
	ID       string    `json:"id"` // contract, or chain id for natives
	Chain    string    `json:"chain"`
	Symbol   string    `json:"symbol"`
	Name     string    `json:"name"`
	Decimals flexUint8 `json:"decimals"`
	Amount   flexFloat `json:"amount"` // already scaled
	Price    flexFloat `json:"price"`
}

// GetWalletAssets lists verified tokens via /user/token_list.
func (p *DeBank) GetWalletAssets(ctx context.Context, chainName, addr string) ([]*driver.DiscoveredToken, error) {
	chainID, ok := debankChains[chainName]
	if !ok || !p.hasKey() {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/user/token_list?id=%s&chain_id=%s&is_all=false",
		p.baseURL, url.QueryEscape(strings.ToLower(addr)), url.QueryEscape(chainID))
	headers := map[string]string{"AccessKey": p.apiKey}

	var parsed []debankToken
	if err := p.http.getJSON(ctx, endpoint, headers, &parsed); err != nil {
		return nil, err
	}

	var out []*driver.DiscoveredToken
	for _, item := range parsed {
		if item.Symbol == "" {
			continue
		}
		token := &driver.DiscoveredToken{
			Symbol:   item.Symbol,
			Name:     item.Name,
			Balance:  item.Amount.value(),
			Decimals: uint8(item.Decimals),
		}
		// DeBank uses the chain id as the token id for natives.
		if item.ID == chainID {
			token.Native = true
		} else {
			token.Contract = item.ID
		}
		if item.Price > 0 {
			token.PriceUSD = ptr(item.Price.value())
			token.ValueUSD = ptr(token.Balance * item.Price.value())
		}
		out = append(out, token)
	}
	return out, nil
}

// GetTokenBalance filters the token list down to one token.
func (p *DeBank) GetTokenBalance(ctx context.Context, chainName, addr, contract string) (float64, error) {
	assets, err := p.GetWalletAssets(ctx, chainName, addr)
	if err != nil {
		return 0, err
	}
	return balanceForContract(assets, contract), nil
}

// GetTokenPrice uses the per-token endpoint when the query looks like
// a contract address.
func (p *DeBank) GetTokenPrice(ctx context.Context, chainName, query string) (float64, error) {
	chainID, ok := debankChains[chainName]
	if !ok || !p.hasKey() || !strings.HasPrefix(query, "0x") {
		return 0, nil
	}

	endpoint := fmt.Sprintf("%s/token?chain_id=%s&id=%s",
		p.baseURL, url.QueryEscape(chainID), url.QueryEscape(strings.ToLower(query)))
	headers := map[string]string{"AccessKey": p.apiKey}

	var parsed debankToken
	if err := p.http.getJSON(ctx, endpoint, headers, &parsed); err != nil {
		return 0, err
	}
	return parsed.Price.value(), nil
}

var _ DataProvider = (*DeBank)(nil)
