// Package provider - Zerion client (secondary, EVM).
package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/foliolabs/folio/internal/driver"
)

const zerionBaseURL = "https://api.zerion.io/v1"

// zerionChains maps registry names to Zerion chain ids.
var zerionChains = map[string]string{
	"ethereum": "ethereum",
	"arbitrum": "arbitrum",
	"base":     "base",
	"polygon":  "polygon",
	"bsc":      "binance-smart-chain",
}

// Zerion serves EVM position listings with prices.
type Zerion struct {
	base
	baseURL string
	http    *httpClient
}

// NewZerion creates the Zerion provider.
func NewZerion(apiKey string) *Zerion {
	p := &Zerion{
		baseURL: zerionBaseURL,
		http:    newHTTPClient(30 * time.Second),
	}
	p.name = "zerion"
	p.ptype = TypeMultiChain
	p.priority = PrioritySecondary
	p.apiKey = apiKey
	p.delay = 300 * time.Millisecond
	p.chains = chainSet("ethereum", "arbitrum", "base", "polygon", "bsc")
	return p
}

// Zerion authenticates with HTTP basic auth, key as username.
func (p *Zerion) headers() map[string]string {
	token := base64.StdEncoding.EncodeToString([]byte(p.apiKey + ":"))
	return map[string]string{"Authorization": "Basic " + token}
}

type zerionPositions struct {
	Data []struct {
		Attributes struct {
			Quantity struct {
				Float flexFloat `json:"float"`
			} `json:"quantity"`
			Value        flexFloat `json:"value"`
			Price        flexFloat `json:"price"`
			FungibleInfo struct {
				Symbol          string `json:"symbol"`
				Name            string `json:"name"`
				Implementations []struct {
					ChainID  string    `json:"chain_id"`
					Address  string    `json:"address"`
					Decimals flexUint8 `json:"decimals"`
				} `json:"implementations"`
			} `json:"fungible_info"`
		} `json:"attributes"`
	} `json:"data"`
}

// GetWalletAssets lists the wallet's positions on one chain.
func (p *Zerion) GetWalletAssets(ctx context.Context, chainName, addr string) ([]*driver.DiscoveredToken, error) {
	chainID, ok := zerionChains[chainName]
	if !ok || !p.hasKey() {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/wallets/%s/positions/?filter[chain_ids]=%s&filter[positions]=only_simple&currency=usd",
		p.baseURL, url.PathEscape(addr), url.QueryEscape(chainID))

	var parsed zerionPositions
	if err := p.http.getJSON(ctx, endpoint, p.headers(), &parsed); err != nil {
		return nil, err
	}

	native, _ := nativeSymbol(chainName)
	var out []*driver.DiscoveredToken
	for _, position := range parsed.Data {
		attrs := position.Attributes
		if attrs.FungibleInfo.Symbol == "" {
			continue
		}
		token := &driver.DiscoveredToken{
			Symbol:  attrs.FungibleInfo.Symbol,
			Name:    attrs.FungibleInfo.Name,
			Balance: attrs.Quantity.Float.value(),
		}
		for _, impl := range attrs.FungibleInfo.Implementations {
			if impl.ChainID == chainID {
				token.Contract = impl.Address
				token.Decimals = uint8(impl.Decimals)
				break
			}
		}
		// Zerion models natives as positions with no contract address.
		token.Native = token.Contract == "" && strings.EqualFold(token.Symbol, native)
		if attrs.Price > 0 {
			token.PriceUSD = ptr(attrs.Price.value())
		}
		if attrs.Value > 0 {
			token.ValueUSD = ptr(attrs.Value.value())
		}
		out = append(out, token)
	}
	return out, nil
}

// GetTokenBalance filters the position listing down to one token.
func (p *Zerion) GetTokenBalance(ctx context.Context, chainName, addr, contract string) (float64, error) {
	assets, err := p.GetWalletAssets(ctx, chainName, addr)
	if err != nil {
		return 0, err
	}
	return balanceForContract(assets, contract), nil
}

// GetTokenPrice has no standalone surface on Zerion.
func (p *Zerion) GetTokenPrice(ctx context.Context, chainName, query string) (float64, error) {
	return 0, nil
}

var _ DataProvider = (*Zerion)(nil)
