// Package provider - Covalent client (primary, multi-chain).
package provider

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/foliolabs/folio/internal/driver"
)

const covalentBaseURL = "https://api.covalenthq.com/v1"

// covalentChains maps registry names to Covalent chain slugs.
var covalentChains = map[string]string{
	"ethereum": "eth-mainnet",
	"arbitrum": "arbitrum-mainnet",
	"base":     "base-mainnet",
	"polygon":  "matic-mainnet",
	"bsc":      "bsc-mainnet",
	"solana":   "solana-mainnet",
	"bitcoin":  "btc-mainnet",
}

// Covalent serves wallet balances across most chains in one shape.
type Covalent struct {
	base
	baseURL string
	http    *httpClient
}

// NewCovalent creates the Covalent provider.
func NewCovalent(apiKey string) *Covalent {
	p := &Covalent{
		baseURL: covalentBaseURL,
		http:    newHTTPClient(30 * time.Second),
	}
	p.name = "covalent"
	p.ptype = TypeMultiChain
	p.priority = PriorityPrimary
	p.apiKey = apiKey
	p.delay = 250 * time.Millisecond
	p.chains = chainSet("ethereum", "arbitrum", "base", "polygon", "bsc", "solana", "bitcoin")
	return p
}

type covalentBalances struct {
	Data struct {
		Items []struct {
			Symbol     string    `json:"contract_ticker_symbol"`
			Name       string    `json:"contract_name"`
			Contract   string    `json:"contract_address"`
			Decimals   flexUint8 `json:"contract_decimals"`
			Balance    string    `json:"balance"` // raw smallest units
			QuoteRate  flexFloat `json:"quote_rate"`
			Quote      flexFloat `json:"quote"`
			NativeItem bool      `json:"native_token"`
		} `json:"items"`
	} `json:"data"`
	Error        bool   `json:"error"`
	ErrorMessage string `json:"error_message"`
}

// GetWalletAssets lists the wallet's balances via balances_v2.
func (p *Covalent) GetWalletAssets(ctx context.Context, chainName, addr string) ([]*driver.DiscoveredToken, error) {
	slug, ok := covalentChains[chainName]
	if !ok || !p.hasKey() {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/%s/address/%s/balances_v2/?key=%s",
		p.baseURL, slug, url.PathEscape(addr), url.QueryEscape(p.apiKey))

	var parsed covalentBalances
	if err := p.http.getJSON(ctx, endpoint, nil, &parsed); err != nil {
		return nil, err
	}
	if parsed.Error {
		return nil, fmt.Errorf("covalent: %s", parsed.ErrorMessage)
	}

	var out []*driver.DiscoveredToken
	for _, item := range parsed.Data.Items {
		if item.Symbol == "" {
			continue
		}
		balance, err := parseRawOrZero(item.Balance, uint8(item.Decimals))
		if err != nil {
			continue
		}
		token := &driver.DiscoveredToken{
			Symbol:   item.Symbol,
			Name:     item.Name,
			Balance:  balance,
			Decimals: uint8(item.Decimals),
			Native:   item.NativeItem,
		}
		if !item.NativeItem {
			token.Contract = item.Contract
		}
		if item.QuoteRate > 0 {
			token.PriceUSD = ptr(item.QuoteRate.value())
			token.ValueUSD = ptr(balance * item.QuoteRate.value())
		}
		out = append(out, token)
	}
	return out, nil
}

// GetTokenBalance filters the wallet listing down to one token.
func (p *Covalent) GetTokenBalance(ctx context.Context, chainName, addr, contract string) (float64, error) {
	assets, err := p.GetWalletAssets(ctx, chainName, addr)
	if err != nil {
		return 0, err
	}
	return balanceForContract(assets, contract), nil
}

type covalentPricing struct {
	Data []struct {
		Items []struct {
			Price flexFloat `json:"price"`
		} `json:"items"`
	} `json:"data"`
}

// GetTokenPrice uses the spot-price ticker endpoint.
func (p *Covalent) GetTokenPrice(ctx context.Context, chainName, query string) (float64, error) {
	if !p.hasKey() {
		return 0, nil
	}

	endpoint := fmt.Sprintf("%s/pricing/tickers/?tickers=%s&key=%s",
		p.baseURL, url.QueryEscape(query), url.QueryEscape(p.apiKey))

	var parsed covalentPricing
	if err := p.http.getJSON(ctx, endpoint, nil, &parsed); err != nil {
		return 0, err
	}
	for _, group := range parsed.Data {
		for _, item := range group.Items {
			if item.Price > 0 {
				return item.Price.value(), nil
			}
		}
	}
	return 0, nil
}

var _ DataProvider = (*Covalent)(nil)
