// Package driver - Bitcoin driver over esplora-style REST APIs
// (blockstream.info and compatible).
package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/foliolabs/folio/internal/chain"
	"github.com/foliolabs/folio/pkg/logging"
)

const satoshisPerBTC = 1e8

// esplora serves confirmed transactions newest-first in pages of 25.
const (
	esploraPageSize = 25
	esploraMaxPages = 40 // walk at most 1000 transactions before estimating
)

// BitcoinDriver reads balances and history from esplora REST APIs.
// Bitcoin has no tokens; TokenBalance and token enumeration degrade
// accordingly.
type BitcoinDriver struct {
	params    *chain.Params
	endpoints *endpointSet
	rpc       *rpcClient
	log       *logging.Logger
}

// NewBitcoinDriver creates the Bitcoin driver.
func NewBitcoinDriver(params *chain.Params, urls []string, sleep sleepFunc, log *logging.Logger) *BitcoinDriver {
	return &BitcoinDriver{
		params:    params,
		endpoints: newEndpointSet(params, urls, sleep, log),
		rpc:       newRPCClient(15 * time.Second),
		log:       log,
	}
}

func (d *BitcoinDriver) Chain() string          { return d.params.Name }
func (d *BitcoinDriver) ActiveEndpoint() string { return d.endpoints.Active() }

// Connect probes the endpoint list with a tip-height fetch.
func (d *BitcoinDriver) Connect(ctx context.Context) error {
	return d.endpoints.do(ctx, "connect", func(ctx context.Context, url string) error {
		var height int64
		return d.rpc.get(ctx, url+"/blocks/tip/height", &height)
	})
}

type esploraAddress struct {
	ChainStats struct {
		FundedTxoSum int64 `json:"funded_txo_sum"`
		SpentTxoSum  int64 `json:"spent_txo_sum"`
		TxCount      int64 `json:"tx_count"`
	} `json:"chain_stats"`
	MempoolStats struct {
		FundedTxoSum int64 `json:"funded_txo_sum"`
		SpentTxoSum  int64 `json:"spent_txo_sum"`
	} `json:"mempool_stats"`
}

// NativeBalance returns the confirmed BTC balance.
func (d *BitcoinDriver) NativeBalance(ctx context.Context, addr string) (float64, error) {
	if err := chain.ValidateAddress(chain.FamilyBitcoin, addr); err != nil {
		return 0, err
	}

	var stats esploraAddress
	err := d.endpoints.do(ctx, "native_balance", func(ctx context.Context, url string) error {
		return d.rpc.get(ctx, fmt.Sprintf("%s/address/%s", url, addr), &stats)
	})
	if err != nil {
		return 0, err
	}

	sats := stats.ChainStats.FundedTxoSum - stats.ChainStats.SpentTxoSum
	return float64(sats) / satoshisPerBTC, nil
}

// TokenBalance always reports zero; Bitcoin has no token layer.
func (d *BitcoinDriver) TokenBalance(ctx context.Context, addr, contract string) (float64, error) {
	if err := chain.ValidateAddress(chain.FamilyBitcoin, addr); err != nil {
		return 0, err
	}
	return 0, nil
}

// EnumerateTokens reports the single native holding.
func (d *BitcoinDriver) EnumerateTokens(ctx context.Context, addr string, includeZero bool) ([]*DiscoveredToken, error) {
	balance, err := d.NativeBalance(ctx, addr)
	if err != nil {
		return nil, err
	}
	if balance == 0 && !includeZero {
		return nil, nil
	}
	return []*DiscoveredToken{{
		Symbol: "BTC", Name: "Bitcoin", Balance: balance, Decimals: 8, Native: true,
	}}, nil
}

type esploraTx struct {
	TxID   string `json:"txid"`
	Status struct {
		Confirmed   bool  `json:"confirmed"`
		BlockHeight int64 `json:"block_height"`
		BlockTime   int64 `json:"block_time"`
	} `json:"status"`
}

// FirstTransactionTime pages through the address's confirmed
// transactions (newest-first) to the oldest one. Very active addresses
// beyond the page cap get an estimated answer.
func (d *BitcoinDriver) FirstTransactionTime(ctx context.Context, addr string) (*FirstTx, error) {
	if err := chain.ValidateAddress(chain.FamilyBitcoin, addr); err != nil {
		return nil, err
	}

	var oldest *esploraTx
	var capped bool
	err := d.endpoints.do(ctx, "first_transaction", func(ctx context.Context, url string) error {
		oldest, capped = nil, false
		lastSeen := ""
		for page := 0; page < esploraMaxPages; page++ {
			endpoint := fmt.Sprintf("%s/address/%s/txs/chain", url, addr)
			if lastSeen != "" {
				endpoint += "/" + lastSeen
			}
			var txs []esploraTx
			if err := d.rpc.get(ctx, endpoint, &txs); err != nil {
				return err
			}
			if len(txs) == 0 {
				return nil
			}
			oldest = &txs[len(txs)-1]
			lastSeen = oldest.TxID
			if len(txs) < esploraPageSize {
				return nil
			}
		}
		capped = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if oldest == nil || !oldest.Status.Confirmed || capped {
		return &FirstTx{Estimated: true}, nil
	}
	if _, err := chainhash.NewHashFromStr(oldest.TxID); err != nil {
		d.log.Debug("malformed txid from explorer", "txid", oldest.TxID, "error", err)
		return &FirstTx{Estimated: true}, nil
	}

	ts := time.Unix(oldest.Status.BlockTime, 0).UTC()
	height := oldest.Status.BlockHeight
	return &FirstTx{
		Timestamp:   &ts,
		TxHash:      oldest.TxID,
		BlockNumber: &height,
		Estimated:   false,
	}, nil
}

var _ Driver = (*BitcoinDriver)(nil)
