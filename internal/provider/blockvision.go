// Package provider - BlockVision client (chain-specific, Sui). The
// aggregator consults it before the generic providers for Sui
// wallets.
package provider

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/foliolabs/folio/internal/driver"
)

const blockvisionBaseURL = "https://api.blockvision.org/v2/sui"

// BlockVision serves Sui account coin listings with prices.
type BlockVision struct {
	base
	baseURL string
	http    *httpClient
}

// NewBlockVision creates the BlockVision provider.
func NewBlockVision(apiKey string) *BlockVision {
	p := &BlockVision{
		baseURL: blockvisionBaseURL,
		http:    newHTTPClient(30 * time.Second),
	}
	p.name = "blockvision"
	p.ptype = TypeChainSpecific
	p.priority = PrioritySecondary
	p.apiKey = apiKey
	p.delay = 300 * time.Millisecond
	p.chains = chainSet("sui")
	return p
}

type blockvisionCoins struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Result  struct {
		Coins []struct {
			CoinType string    `json:"coinType"`
			Symbol   string    `json:"symbol"`
			Name     string    `json:"name"`
			Decimals flexUint8 `json:"decimals"`
			Balance  string    `json:"balance"` // raw smallest units
			Price    flexFloat `json:"price"`
			USDValue flexFloat `json:"usdValue"`
		} `json:"coins"`
	} `json:"result"`
}

// GetWalletAssets lists the account's coins.
func (p *BlockVision) GetWalletAssets(ctx context.Context, chainName, addr string) ([]*driver.DiscoveredToken, error) {
	if chainName != "sui" || !p.hasKey() {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/account/coins?account=%s", p.baseURL, url.QueryEscape(addr))
	headers := map[string]string{"x-api-key": p.apiKey}

	var parsed blockvisionCoins
	if err := p.http.getJSON(ctx, endpoint, headers, &parsed); err != nil {
		return nil, err
	}
	if parsed.Code != 200 && parsed.Code != 0 {
		return nil, fmt.Errorf("blockvision: code %d: %s", parsed.Code, parsed.Message)
	}

	var out []*driver.DiscoveredToken
	for _, coin := range parsed.Result.Coins {
		if coin.Symbol == "" {
			continue
		}
		balance, err := parseRawOrZero(coin.Balance, uint8(coin.Decimals))
		if err != nil {
			continue
		}
		token := &driver.DiscoveredToken{
			Symbol:   coin.Symbol,
			Name:     coin.Name,
			Balance:  balance,
			Decimals: uint8(coin.Decimals),
			Native:   coin.CoinType == "0x2::sui::SUI",
		}
		if !token.Native {
			token.Contract = coin.CoinType
		}
		if coin.Price > 0 {
			token.PriceUSD = ptr(coin.Price.value())
			token.ValueUSD = ptr(balance * coin.Price.value())
		} else if coin.USDValue > 0 {
			token.ValueUSD = ptr(coin.USDValue.value())
		}
		out = append(out, token)
	}
	return out, nil
}

// GetTokenBalance filters the coin listing down to one coin type.
func (p *BlockVision) GetTokenBalance(ctx context.Context, chainName, addr, contract string) (float64, error) {
	assets, err := p.GetWalletAssets(ctx, chainName, addr)
	if err != nil {
		return 0, err
	}
	return balanceForContract(assets, contract), nil
}

// GetTokenPrice has no standalone surface; prices arrive with the
// coin listing.
func (p *BlockVision) GetTokenPrice(ctx context.Context, chainName, query string) (float64, error) {
	return 0, nil
}

var _ DataProvider = (*BlockVision)(nil)
