// Package provider - Bitquery client (fallback). Queries the GraphQL
// endpoint for address balances.
package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/foliolabs/folio/internal/driver"
)

const bitqueryEndpoint = "https://graphql.bitquery.io"

// bitqueryNetworks maps registry names to Bitquery network labels.
var bitqueryNetworks = map[string]string{
	"ethereum": "ethereum",
	"bsc":      "bsc",
	"polygon":  "matic",
	"bitcoin":  "bitcoin",
}

// Bitquery serves balances through one GraphQL query per chain.
type Bitquery struct {
	base
	endpoint string
	http     *httpClient
}

// NewBitquery creates the Bitquery provider.
func NewBitquery(apiKey string) *Bitquery {
	p := &Bitquery{
		endpoint: bitqueryEndpoint,
		http:     newHTTPClient(30 * time.Second),
	}
	p.name = "bitquery"
	p.ptype = TypeFallback
	p.priority = PriorityFallback
	p.apiKey = apiKey
	p.delay = time.Second
	p.chains = chainSet("ethereum", "bsc", "polygon", "bitcoin")
	return p
}

const bitqueryBalancesQuery = `
query ($network: EthereumNetwork!, $address: String!) {
  ethereum(network: $network) {
    address(address: {is: $address}) {
      balances {
        currency { symbol name address decimals }
        value
      }
    }
  }
}`

type bitqueryResponse struct {
	Data struct {
		Ethereum struct {
			Address []struct {
				Balances []struct {
					Currency struct {
						Symbol   string    `json:"symbol"`
						Name     string    `json:"name"`
						Address  string    `json:"address"`
						Decimals flexUint8 `json:"decimals"`
					} `json:"currency"`
					Value flexFloat `json:"value"`
				} `json:"balances"`
			} `json:"address"`
		} `json:"ethereum"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// GetWalletAssets runs the balances query.
func (p *Bitquery) GetWalletAssets(ctx context.Context, chainName, addr string) ([]*driver.DiscoveredToken, error) {
	network, ok := bitqueryNetworks[chainName]
	if !ok || !p.hasKey() {
		return nil, nil
	}

	body := map[string]interface{}{
		"query": bitqueryBalancesQuery,
		"variables": map[string]string{
			"network": network,
			"address": addr,
		},
	}
	headers := map[string]string{"X-API-KEY": p.apiKey}

	var parsed bitqueryResponse
	if err := p.http.postJSON(ctx, p.endpoint, headers, body, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Errors) > 0 {
		return nil, fmt.Errorf("bitquery: %s", parsed.Errors[0].Message)
	}

	native, _ := nativeSymbol(chainName)
	var out []*driver.DiscoveredToken
	for _, address := range parsed.Data.Ethereum.Address {
		for _, b := range address.Balances {
			if b.Currency.Symbol == "" {
				continue
			}
			token := &driver.DiscoveredToken{
				Symbol:   b.Currency.Symbol,
				Name:     b.Currency.Name,
				Balance:  b.Value.value(), // bitquery serves scaled values
				Decimals: uint8(b.Currency.Decimals),
			}
			// Natives carry a "-" pseudo-address in bitquery results.
			if b.Currency.Address == "" || b.Currency.Address == "-" || token.Symbol == native {
				token.Native = true
			} else {
				token.Contract = b.Currency.Address
			}
			out = append(out, token)
		}
	}
	return out, nil
}

// GetTokenBalance filters the balances down to one token.
func (p *Bitquery) GetTokenBalance(ctx context.Context, chainName, addr, contract string) (float64, error) {
	assets, err := p.GetWalletAssets(ctx, chainName, addr)
	if err != nil {
		return 0, err
	}
	return balanceForContract(assets, contract), nil
}

// GetTokenPrice has no surface worth one GraphQL round trip.
func (p *Bitquery) GetTokenPrice(ctx context.Context, chainName, query string) (float64, error) {
	return 0, nil
}

var _ DataProvider = (*Bitquery)(nil)
