// Package provider - Mobula client (primary, multi-chain).
package provider

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/foliolabs/folio/internal/driver"
)

const mobulaBaseURL = "https://production-api.mobula.io/api/1"

// mobulaChains maps registry names to Mobula blockchain labels.
var mobulaChains = map[string]string{
	"ethereum": "Ethereum",
	"arbitrum": "Arbitrum",
	"base":     "Base",
	"polygon":  "Polygon",
	"bsc":      "BNB Smart Chain (BEP20)",
	"solana":   "Solana",
	"sui":      "Sui",
}

// Mobula serves portfolio listings with prices included.
type Mobula struct {
	base
	baseURL string
	http    *httpClient
}

// NewMobula creates the Mobula provider.
func NewMobula(apiKey string) *Mobula {
	p := &Mobula{
		baseURL: mobulaBaseURL,
		http:    newHTTPClient(30 * time.Second),
	}
	p.name = "mobula"
	p.ptype = TypeMultiChain
	p.priority = PriorityPrimary
	p.apiKey = apiKey
	p.delay = 200 * time.Millisecond
	p.chains = chainSet("ethereum", "arbitrum", "base", "polygon", "bsc", "solana", "sui")
	return p
}

func (p *Mobula) headers() map[string]string {
	return map[string]string{"Authorization": p.apiKey}
}

type mobulaPortfolio struct {
	Data struct {
		Assets []struct {
			Asset struct {
				Symbol    string `json:"symbol"`
				Name      string `json:"name"`
				Contracts []string `json:"contracts"`
			} `json:"asset"`
			TokenBalance flexFloat `json:"token_balance"`
			Price        flexFloat `json:"price"`
			Estimated    flexFloat `json:"estimated_balance"`
		} `json:"assets"`
	} `json:"data"`
}

// GetWalletAssets lists the wallet via /wallet/portfolio.
func (p *Mobula) GetWalletAssets(ctx context.Context, chainName, addr string) ([]*driver.DiscoveredToken, error) {
	label, ok := mobulaChains[chainName]
	if !ok || !p.hasKey() {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/wallet/portfolio?wallet=%s&blockchains=%s",
		p.baseURL, url.QueryEscape(addr), url.QueryEscape(label))

	var parsed mobulaPortfolio
	if err := p.http.getJSON(ctx, endpoint, p.headers(), &parsed); err != nil {
		return nil, err
	}

	native, _ := nativeSymbol(chainName)
	var out []*driver.DiscoveredToken
	for _, item := range parsed.Data.Assets {
		symbol := item.Asset.Symbol
		if symbol == "" {
			continue
		}
		token := &driver.DiscoveredToken{
			Symbol:  symbol,
			Name:    item.Asset.Name,
			Balance: item.TokenBalance.value(),
			Native:  strings.EqualFold(symbol, native),
		}
		if !token.Native && len(item.Asset.Contracts) > 0 {
			token.Contract = item.Asset.Contracts[0]
		}
		if item.Price > 0 {
			token.PriceUSD = ptr(item.Price.value())
			token.ValueUSD = ptr(token.Balance * item.Price.value())
		} else if item.Estimated > 0 {
			token.ValueUSD = ptr(item.Estimated.value())
		}
		out = append(out, token)
	}
	return out, nil
}

// GetTokenBalance filters the portfolio down to one token.
func (p *Mobula) GetTokenBalance(ctx context.Context, chainName, addr, contract string) (float64, error) {
	assets, err := p.GetWalletAssets(ctx, chainName, addr)
	if err != nil {
		return 0, err
	}
	return balanceForContract(assets, contract), nil
}

type mobulaMarket struct {
	Data struct {
		Price flexFloat `json:"price"`
	} `json:"data"`
}

// GetTokenPrice uses /market/data by symbol or contract.
func (p *Mobula) GetTokenPrice(ctx context.Context, chainName, query string) (float64, error) {
	if !p.hasKey() {
		return 0, nil
	}

	param := "asset"
	if strings.HasPrefix(query, "0x") || len(query) > 20 {
		param = "address"
	}
	endpoint := fmt.Sprintf("%s/market/data?%s=%s", p.baseURL, param, url.QueryEscape(query))

	var parsed mobulaMarket
	if err := p.http.getJSON(ctx, endpoint, p.headers(), &parsed); err != nil {
		return 0, err
	}
	return parsed.Data.Price.value(), nil
}

var _ DataProvider = (*Mobula)(nil)
