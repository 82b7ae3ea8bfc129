// Package driver - EVM family driver built on go-ethereum's ethclient.
package driver

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/foliolabs/folio/internal/chain"
	"github.com/foliolabs/folio/pkg/helpers"
	"github.com/foliolabs/folio/pkg/logging"
)

// ERC-20 function selectors, hand-packed; the two calls the driver
// needs don't justify pulling in an ABI definition.
var (
	selectorBalanceOf = []byte{0x70, 0xa0, 0x82, 0x31}
	selectorDecimals  = []byte{0x31, 0x3c, 0xe5, 0x67}
)

// EVMDriver serves every EVM-family chain. Clients are dialed lazily
// per endpoint and cached.
type EVMDriver struct {
	params    *chain.Params
	endpoints *endpointSet
	explorer  *explorerClient
	log       *logging.Logger

	mu      sync.Mutex
	clients map[string]*ethclient.Client
}

// NewEVMDriver creates a driver for an EVM chain.
func NewEVMDriver(params *chain.Params, urls []string, sleep sleepFunc, log *logging.Logger) *EVMDriver {
	return &EVMDriver{
		params:    params,
		endpoints: newEndpointSet(params, urls, sleep, log),
		explorer:  newExplorerClient(params, 10*time.Second),
		log:       log,
		clients:   make(map[string]*ethclient.Client),
	}
}

// Chain returns the chain name.
func (d *EVMDriver) Chain() string { return d.params.Name }

// ActiveEndpoint returns the endpoint of the last successful call.
func (d *EVMDriver) ActiveEndpoint() string { return d.endpoints.Active() }

// Connect probes the endpoint list with a block-number fetch.
func (d *EVMDriver) Connect(ctx context.Context) error {
	return d.endpoints.do(ctx, "connect", func(ctx context.Context, url string) error {
		client, err := d.client(ctx, url)
		if err != nil {
			return err
		}
		_, err = client.BlockNumber(ctx)
		return err
	})
}

// NativeBalance returns the native balance in display units.
func (d *EVMDriver) NativeBalance(ctx context.Context, addr string) (float64, error) {
	if err := chain.ValidateAddress(chain.FamilyEVM, addr); err != nil {
		return 0, err
	}
	account := common.HexToAddress(addr)

	var wei *big.Int
	err := d.endpoints.do(ctx, "native_balance", func(ctx context.Context, url string) error {
		client, err := d.client(ctx, url)
		if err != nil {
			return err
		}
		wei, err = client.BalanceAt(ctx, account, nil)
		return err
	})
	if err != nil {
		return 0, err
	}
	return helpers.AmountToFloat(wei, d.params.NativeDecimals), nil
}

// TokenBalance returns an ERC-20 balance in display units. Contracts
// that don't answer balanceOf yield 0.
func (d *EVMDriver) TokenBalance(ctx context.Context, addr, contract string) (float64, error) {
	if err := chain.ValidateAddress(chain.FamilyEVM, addr); err != nil {
		return 0, err
	}
	if err := chain.ValidateAddress(chain.FamilyEVM, contract); err != nil {
		return 0, err
	}

	account := common.HexToAddress(addr)
	token := common.HexToAddress(contract)

	var raw *big.Int
	var decimals uint8
	err := d.endpoints.do(ctx, "token_balance", func(ctx context.Context, url string) error {
		client, err := d.client(ctx, url)
		if err != nil {
			return err
		}

		data := append(append([]byte{}, selectorBalanceOf...), helpers.PadLeft(account.Bytes(), 32)...)
		out, err := client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
		if err != nil {
			return err
		}
		if len(out) == 0 {
			// Not a token contract; report zero.
			raw, decimals = big.NewInt(0), 0
			return nil
		}
		raw = new(big.Int).SetBytes(out)

		decimals, err = d.tokenDecimals(ctx, client, token)
		return err
	})
	if err != nil {
		return 0, err
	}
	return helpers.AmountToFloat(raw, decimals), nil
}

func (d *EVMDriver) tokenDecimals(ctx context.Context, client *ethclient.Client, token common.Address) (uint8, error) {
	out, err := client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: selectorDecimals}, nil)
	if err != nil || len(out) == 0 {
		// Default to 18 when the contract doesn't answer; most do.
		return 18, nil
	}
	n := new(big.Int).SetBytes(out)
	if n.Cmp(big.NewInt(18)) > 0 {
		return 18, nil
	}
	return uint8(n.Uint64()), nil
}

// EnumerateTokens probes the predefined catalog for the chain. EVM
// chains have no cheap on-chain enumeration, so the curated list is
// the best-effort answer.
func (d *EVMDriver) EnumerateTokens(ctx context.Context, addr string, includeZero bool) ([]*DiscoveredToken, error) {
	if err := chain.ValidateAddress(chain.FamilyEVM, addr); err != nil {
		return nil, err
	}

	var out []*DiscoveredToken
	for _, info := range chain.ListTokens(d.params.Name) {
		var balance float64
		var err error
		if info.Native {
			balance, err = d.NativeBalance(ctx, addr)
		} else {
			balance, err = d.TokenBalance(ctx, addr, info.Contract)
		}
		if err != nil {
			d.log.Debug("enumeration probe failed", "chain", d.params.Name,
				"symbol", info.Symbol, "error", err)
			continue
		}
		if balance == 0 && !includeZero {
			continue
		}
		out = append(out, &DiscoveredToken{
			Symbol:   info.Symbol,
			Name:     info.Name,
			Contract: info.Contract,
			Balance:  balance,
			Decimals: info.Decimals,
			Native:   info.Native,
		})
	}
	return out, nil
}

// FirstTransactionTime asks the chain's explorer API for the earliest
// transaction. Chains without an explorer API answer estimated.
func (d *EVMDriver) FirstTransactionTime(ctx context.Context, addr string) (*FirstTx, error) {
	if err := chain.ValidateAddress(chain.FamilyEVM, addr); err != nil {
		return nil, err
	}
	if d.explorer == nil || d.params.ExplorerAPI == "" {
		return &FirstTx{Estimated: true}, nil
	}
	first, err := d.explorer.firstTransaction(ctx, chain.NormalizeAddress(chain.FamilyEVM, addr))
	if err != nil {
		d.log.Debug("explorer lookup failed", "chain", d.params.Name, "error", err)
		return &FirstTx{Estimated: true}, nil
	}
	return first, nil
}

// client returns the cached ethclient for an endpoint, dialing on
// first use.
func (d *EVMDriver) client(ctx context.Context, url string) (*ethclient.Client, error) {
	d.mu.Lock()
	if client, ok := d.clients[url]; ok {
		d.mu.Unlock()
		return client, nil
	}
	d.mu.Unlock()

	// Dial outside the lock; RPC dialing can block.
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := d.clients[url]; ok {
		client.Close()
		return existing, nil
	}
	d.clients[url] = client
	return client, nil
}

var _ Driver = (*EVMDriver)(nil)
