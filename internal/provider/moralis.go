// Package provider - Moralis client (fallback, EVM + Solana).
package provider

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/foliolabs/folio/internal/chain"
	"github.com/foliolabs/folio/internal/driver"
)

const (
	moralisEVMBaseURL    = "https://deep-index.moralis.io/api/v2.2"
	moralisSolanaBaseURL = "https://solana-gateway.moralis.io"
)

// moralisChains maps registry names to Moralis chain labels.
var moralisChains = map[string]string{
	"ethereum": "eth",
	"arbitrum": "arbitrum",
	"base":     "base",
	"polygon":  "polygon",
	"bsc":      "bsc",
	"solana":   "mainnet",
}

// Moralis serves raw-integer balance listings.
type Moralis struct {
	base
	evmBaseURL    string
	solanaBaseURL string
	http          *httpClient
}

// NewMoralis creates the Moralis provider.
func NewMoralis(apiKey string) *Moralis {
	p := &Moralis{
		evmBaseURL:    moralisEVMBaseURL,
		solanaBaseURL: moralisSolanaBaseURL,
		http:          newHTTPClient(30 * time.Second),
	}
	p.name = "moralis"
	p.ptype = TypeFallback
	p.priority = PriorityFallback
	p.apiKey = apiKey
	p.delay = 600 * time.Millisecond
	p.chains = chainSet("ethereum", "arbitrum", "base", "polygon", "bsc", "solana")
	return p
}

func (p *Moralis) headers() map[string]string {
	return map[string]string{"X-API-Key": p.apiKey}
}

// GetWalletAssets dispatches per family.
func (p *Moralis) GetWalletAssets(ctx context.Context, chainName, addr string) ([]*driver.DiscoveredToken, error) {
	label, ok := moralisChains[chainName]
	if !ok || !p.hasKey() {
		return nil, nil
	}
	if chainName == "solana" {
		return p.solanaAssets(ctx, label, addr)
	}
	return p.evmAssets(ctx, label, chainName, addr)
}

type moralisERC20 struct {
	TokenAddress string    `json:"token_address"`
	Symbol       string    `json:"symbol"`
	Name         string    `json:"name"`
	Decimals     flexUint8 `json:"decimals"`
	Balance      string    `json:"balance"` // raw smallest units
	USDPrice     flexFloat `json:"usd_price"`
	Spam         bool      `json:"possible_spam"`
}

func (p *Moralis) evmAssets(ctx context.Context, label, chainName, addr string) ([]*driver.DiscoveredToken, error) {
	var out []*driver.DiscoveredToken

	// Native balance comes from a separate endpoint.
	var nativeResp struct {
		Balance string `json:"balance"`
	}
	endpoint := fmt.Sprintf("%s/%s/balance?chain=%s", p.evmBaseURL, url.PathEscape(addr), label)
	if err := p.http.getJSON(ctx, endpoint, p.headers(), &nativeResp); err != nil {
		return nil, err
	}
	if info, ok := chain.NativeToken(chainName); ok {
		balance, err := parseRawOrZero(nativeResp.Balance, info.Decimals)
		if err == nil && balance > 0 {
			out = append(out, &driver.DiscoveredToken{
				Symbol: info.Symbol, Name: info.Name,
				Balance: balance, Decimals: info.Decimals, Native: true,
			})
		}
	}

	var tokens []moralisERC20
	endpoint = fmt.Sprintf("%s/%s/erc20?chain=%s", p.evmBaseURL, url.PathEscape(addr), label)
	if err := p.http.getJSON(ctx, endpoint, p.headers(), &tokens); err != nil {
		return nil, err
	}
	for _, item := range tokens {
		if item.Symbol == "" || item.Spam {
			continue
		}
		balance, err := parseRawOrZero(item.Balance, uint8(item.Decimals))
		if err != nil {
			continue
		}
		token := &driver.DiscoveredToken{
			Symbol:   item.Symbol,
			Name:     item.Name,
			Contract: item.TokenAddress,
			Balance:  balance,
			Decimals: uint8(item.Decimals),
		}
		if item.USDPrice > 0 {
			token.PriceUSD = ptr(item.USDPrice.value())
			token.ValueUSD = ptr(balance * item.USDPrice.value())
		}
		out = append(out, token)
	}
	return out, nil
}

type moralisSPL struct {
	Mint     string    `json:"mint"`
	Symbol   string    `json:"symbol"`
	Name     string    `json:"name"`
	Decimals flexUint8 `json:"decimals"`
	Amount   flexFloat `json:"amount"` // already scaled
}

func (p *Moralis) solanaAssets(ctx context.Context, label, addr string) ([]*driver.DiscoveredToken, error) {
	var out []*driver.DiscoveredToken

	var nativeResp struct {
		Lamports string    `json:"lamports"`
		Solana   flexFloat `json:"solana"`
	}
	endpoint := fmt.Sprintf("%s/account/%s/%s/balance", p.solanaBaseURL, label, url.PathEscape(addr))
	if err := p.http.getJSON(ctx, endpoint, p.headers(), &nativeResp); err != nil {
		return nil, err
	}
	if sol := nativeResp.Solana.value(); sol > 0 {
		out = append(out, &driver.DiscoveredToken{
			Symbol: "SOL", Name: "Solana", Balance: sol, Decimals: 9, Native: true,
		})
	}

	var tokens []moralisSPL
	endpoint = fmt.Sprintf("%s/account/%s/%s/tokens", p.solanaBaseURL, label, url.PathEscape(addr))
	if err := p.http.getJSON(ctx, endpoint, p.headers(), &tokens); err != nil {
		return nil, err
	}
	for _, item := range tokens {
		if item.Symbol == "" {
			continue
		}
		out = append(out, &driver.DiscoveredToken{
			Symbol:   item.Symbol,
			Name:     item.Name,
			Contract: item.Mint,
			Balance:  item.Amount.value(),
			Decimals: uint8(item.Decimals),
		})
	}
	return out, nil
}

// GetTokenBalance filters the listing down to one token.
func (p *Moralis) GetTokenBalance(ctx context.Context, chainName, addr, contract string) (float64, error) {
	assets, err := p.GetWalletAssets(ctx, chainName, addr)
	if err != nil {
		return 0, err
	}
	return balanceForContract(assets, contract), nil
}

// GetTokenPrice uses the ERC-20 price endpoint for contract queries.
func (p *Moralis) GetTokenPrice(ctx context.Context, chainName, query string) (float64, error) {
	label, ok := moralisChains[chainName]
	if !ok || !p.hasKey() || chainName == "solana" || !strings.HasPrefix(query, "0x") {
		return 0, nil
	}

	var parsed struct {
		USDPrice flexFloat `json:"usdPrice"`
	}
	endpoint := fmt.Sprintf("%s/erc20/%s/price?chain=%s", p.evmBaseURL, url.PathEscape(query), label)
	if err := p.http.getJSON(ctx, endpoint, p.headers(), &parsed); err != nil {
		return 0, err
	}
	return parsed.USDPrice.value(), nil
}

var _ DataProvider = (*Moralis)(nil)
