// Package provider - Zapper client (secondary, EVM).
package provider

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/foliolabs/folio/internal/driver"
)

const zapperBaseURL = "https://api.zapper.xyz/v2"

// zapperNetworks maps registry names to Zapper network labels.
var zapperNetworks = map[string]string{
	"ethereum": "ethereum",
	"arbitrum": "arbitrum",
	"base":     "base",
	"polygon":  "polygon",
	"bsc":      "binance-smart-chain",
}

// Zapper serves EVM token balances keyed by address.
type Zapper struct {
	base
	baseURL string
	http    *httpClient
}

// NewZapper creates the Zapper provider.
func NewZapper(apiKey string) *Zapper {
	p := &Zapper{
		baseURL: zapperBaseURL,
		http:    newHTTPClient(30 * time.Second),
	}
	p.name = "zapper"
	p.ptype = TypeMultiChain
	p.priority = PrioritySecondary
	p.apiKey = apiKey
	p.delay = 500 * time.Millisecond
	p.chains = chainSet("ethereum", "arbitrum", "base", "polygon", "bsc")
	return p
}

type zapperEntry struct {
	Token struct {
		Symbol     string    `json:"symbol"`
		Name       string    `json:"name"`
		Address    string    `json:"address"`
		Decimals   flexUint8 `json:"decimals"`
		Balance    flexFloat `json:"balance"`
		BalanceUSD flexFloat `json:"balanceUSD"`
		Price      flexFloat `json:"price"`
	} `json:"token"`
}

// GetWalletAssets lists the wallet via /balances/tokens. The response
// is a map keyed by lowercase address.
func (p *Zapper) GetWalletAssets(ctx context.Context, chainName, addr string) ([]*driver.DiscoveredToken, error) {
	network, ok := zapperNetworks[chainName]
	if !ok || !p.hasKey() {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/balances/tokens?addresses[]=%s&network=%s",
		p.baseURL, url.QueryEscape(strings.ToLower(addr)), url.QueryEscape(network))
	headers := map[string]string{"x-zapper-api-key": p.apiKey}

	var parsed map[string][]zapperEntry
	if err := p.http.getJSON(ctx, endpoint, headers, &parsed); err != nil {
		return nil, err
	}

	native, _ := nativeSymbol(chainName)
	var out []*driver.DiscoveredToken
	for _, entry := range parsed[strings.ToLower(addr)] {
		tok := entry.Token
		if tok.Symbol == "" {
			continue
		}
		token := &driver.DiscoveredToken{
			Symbol:   tok.Symbol,
			Name:     tok.Name,
			Balance:  tok.Balance.value(),
			Decimals: uint8(tok.Decimals),
		}
		// Zapper represents natives with the zero address.
		if isZeroAddress(tok.Address) || strings.EqualFold(tok.Symbol, native) && tok.Address == "" {
			token.Native = true
		} else {
			token.Contract = tok.Address
		}
		if tok.Price > 0 {
			token.PriceUSD = ptr(tok.Price.value())
		}
		if tok.BalanceUSD > 0 {
			token.ValueUSD = ptr(tok.BalanceUSD.value())
		}
		out = append(out, token)
	}
	return out, nil
}

// GetTokenBalance filters the balance listing down to one token.
func (p *Zapper) GetTokenBalance(ctx context.Context, chainName, addr, contract string) (float64, error) {
	assets, err := p.GetWalletAssets(ctx, chainName, addr)
	if err != nil {
		return 0, err
	}
	return balanceForContract(assets, contract), nil
}

// GetTokenPrice has no standalone surface on Zapper.
func (p *Zapper) GetTokenPrice(ctx context.Context, chainName, query string) (float64, error) {
	return 0, nil
}

func isZeroAddress(addr string) bool {
	return addr == "0x0000000000000000000000000000000000000000"
}

var _ DataProvider = (*Zapper)(nil)
