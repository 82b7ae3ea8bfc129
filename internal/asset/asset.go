// Package asset tracks (wallet, token) pairs and values them: balance
// from history or a live chain call, price from the history-aware price
// engine, value = balance · price.
package asset

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/foliolabs/folio/internal/chain"
	"github.com/foliolabs/folio/internal/driver"
	"github.com/foliolabs/folio/internal/library"
	"github.com/foliolabs/folio/internal/price"
	"github.com/foliolabs/folio/internal/storage"
	"github.com/foliolabs/folio/pkg/logging"
)

// Balances is the slice of the aggregator the service consumes.
type Balances interface {
	Enabled() bool
	GetTokenBalance(ctx context.Context, chainName, addr, contract string) (float64, error)
}

// Drivers hands out connected chain drivers.
type Drivers interface {
	Driver(ctx context.Context, chainName string) (driver.Driver, error)
}

// Prices resolves token prices through the hourly history cache.
type Prices interface {
	GetPriceWithCache(ctx context.Context, store price.Store, token *storage.Token) (float64, error)
}

// Service is the asset tracking and valuation service.
type Service struct {
	store   *storage.Storage
	lib     *library.Library
	agg     Balances
	drivers Drivers
	prices  Prices
	log     *logging.Logger
	clock   func() int64
}

// New creates an asset service.
func New(store *storage.Storage, lib *library.Library, agg Balances, drivers Drivers, prices Prices, log *logging.Logger) *Service {
	return &Service{
		store:   store,
		lib:     lib,
		agg:     agg,
		drivers: drivers,
		prices:  prices,
		log:     log.Component("asset"),
		clock:   func() int64 { return time.Now().Unix() },
	}
}

// AddRequest describes one asset to track.
type AddRequest struct {
	Address  string `json:"address"`
	Chain    string `json:"chain"`
	Symbol   string `json:"symbol"`
	Contract string `json:"contract,omitempty"`
	Decimals uint8  `json:"decimals,omitempty"`
	Tag      string `json:"tag,omitempty"`
}

// AddResult is the outcome of tracking one asset.
type AddResult struct {
	Asset  *storage.AssetRow   `json:"asset"`
	Status storage.AssetStatus `json:"status"`
}

// Add tracks a (wallet, token) pair. Unknown tokens with a contract are
// registered as custom tokens first. Adding an already-tracked pair is
// idempotent; a soft-deleted pair is reactivated.
func (s *Service) Add(ctx context.Context, req *AddRequest) (*AddResult, error) {
	params, ok := chain.Get(req.Chain)
	if !ok {
		return nil, fmt.Errorf("%w: %s", driver.ErrUnsupportedChain, req.Chain)
	}
	if err := chain.ValidateAddress(params.Family, req.Address); err != nil {
		return nil, err
	}
	addr := chain.NormalizeAddress(params.Family, req.Address)

	token, err := s.resolveToken(req)
	if err != nil {
		return nil, err
	}

	wallet, err := s.store.GetOrCreateWallet(addr, req.Chain)
	if err != nil {
		return nil, err
	}

	asset, status, err := s.store.CreateAsset(wallet.ID, token.ID, req.Tag)
	if err != nil {
		return nil, err
	}
	row, err := s.store.GetAssetRow(asset.ID)
	if err != nil {
		return nil, err
	}
	s.log.Info("asset tracked", "symbol", token.Symbol, "chain", req.Chain,
		"address", addr, "status", status)
	return &AddResult{Asset: row, Status: status}, nil
}

// QuickAdd tracks a predefined token by symbol alone.
func (s *Service) QuickAdd(ctx context.Context, address, chainName, symbol, tag string) (*AddResult, error) {
	return s.Add(ctx, &AddRequest{
		Address: address,
		Chain:   chainName,
		Symbol:  symbol,
		Tag:     tag,
	})
}

// BatchAddResult separates per-item outcomes of a batch add.
type BatchAddResult struct {
	Added  []*AddResult  `json:"added"`
	Failed []*BatchError `json:"failed"`
}

// BatchError records one failed batch item.
type BatchError struct {
	Request *AddRequest `json:"request"`
	Error   string      `json:"error"`
}

// BatchAdd tracks many assets; sibling failures never abort the batch.
func (s *Service) BatchAdd(ctx context.Context, reqs []*AddRequest) *BatchAddResult {
	result := &BatchAddResult{}
	for _, req := range reqs {
		added, err := s.Add(ctx, req)
		if err != nil {
			result.Failed = append(result.Failed, &BatchError{Request: req, Error: err.Error()})
			continue
		}
		result.Added = append(result.Added, added)
	}
	return result
}

// Delete soft-deletes an asset; its history rows stay put.
func (s *Service) Delete(id string) error {
	return s.store.SoftDeleteAsset(id)
}

// UpdateTag sets an asset's tag.
func (s *Service) UpdateTag(id, tag string) (*storage.AssetRow, error) {
	if err := s.store.UpdateAssetTag(id, tag); err != nil {
		return nil, err
	}
	return s.store.GetAssetRow(id)
}

// Get returns one asset row.
func (s *Service) Get(id string) (*storage.AssetRow, error) {
	return s.store.GetAssetRow(id)
}

// Valuation is one displayable portfolio row.
type Valuation struct {
	*storage.AssetRow
	Balance  float64 `json:"balance"`
	PriceUSD float64 `json:"price_usd"`
	ValueUSD float64 `json:"value_usd"`
}

// Portfolio values every active asset matching the filter, newest
// assets first. Row-level failures zero the row, never the request.
func (s *Service) Portfolio(ctx context.Context, filter *storage.AssetFilter) ([]*Valuation, error) {
	rows, err := s.store.ListAssetRows(filter)
	if err != nil {
		return nil, err
	}

	out := make([]*Valuation, 0, len(rows))
	for _, row := range rows {
		v := &Valuation{AssetRow: row}

		balance, err := s.resolveBalance(ctx, row)
		if err != nil {
			s.log.Warn("balance resolution failed", "asset", row.ID,
				"symbol", row.Symbol, "error", err)
			out = append(out, v)
			continue
		}
		v.Balance = balance

		token := &storage.Token{
			ID:         row.TokenID,
			Symbol:     row.Symbol,
			Blockchain: row.Blockchain,
			Contract:   row.Contract,
			Decimals:   row.Decimals,
			PriceID:    row.PriceID,
		}
		priceUSD, err := s.prices.GetPriceWithCache(ctx, s.store, token)
		if err != nil {
			s.log.Warn("price resolution failed", "asset", row.ID,
				"symbol", row.Symbol, "error", err)
			out = append(out, v)
			continue
		}
		v.PriceUSD = priceUSD
		v.ValueUSD = balance * priceUSD
		out = append(out, v)
	}
	return out, nil
}

// Bucket is one summary aggregation cell.
type Bucket struct {
	ValueUSD float64 `json:"value_usd"`
	Assets   int     `json:"assets"`
}

// Summary is the portfolio rolled up by chain and by address.
type Summary struct {
	TotalValueUSD float64            `json:"total_value_usd"`
	Assets        int                `json:"assets"`
	PerChain      map[string]*Bucket `json:"per_chain"`
	PerAddress    map[string]*Bucket `json:"per_address"`
}

// Summarize values the portfolio and aggregates it.
func (s *Service) Summarize(ctx context.Context, filter *storage.AssetFilter) (*Summary, error) {
	valuations, err := s.Portfolio(ctx, filter)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		PerChain:   make(map[string]*Bucket),
		PerAddress: make(map[string]*Bucket),
	}
	for _, v := range valuations {
		summary.TotalValueUSD += v.ValueUSD
		summary.Assets++

		chainBucket := summary.PerChain[v.Blockchain]
		if chainBucket == nil {
			chainBucket = &Bucket{}
			summary.PerChain[v.Blockchain] = chainBucket
		}
		chainBucket.ValueUSD += v.ValueUSD
		chainBucket.Assets++

		addrBucket := summary.PerAddress[v.Address]
		if addrBucket == nil {
			addrBucket = &Bucket{}
			summary.PerAddress[v.Address] = addrBucket
		}
		addrBucket.ValueUSD += v.ValueUSD
		addrBucket.Assets++
	}
	return summary, nil
}

// resolveToken finds or registers the token a request names.
func (s *Service) resolveToken(req *AddRequest) (*storage.Token, error) {
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		return nil, fmt.Errorf("token symbol is required")
	}

	token, err := s.lib.Resolve(symbol, req.Chain)
	if err == nil {
		return token, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	if req.Contract == "" {
		return nil, fmt.Errorf("unknown token %s on %s: provide a contract to register it", symbol, req.Chain)
	}
	return s.lib.AddCustomToken(symbol, symbol, req.Chain, req.Contract, req.Decimals, "")
}

// resolveBalance answers from the latest balance-history point, else
// goes live and writes the observation back.
func (s *Service) resolveBalance(ctx context.Context, row *storage.AssetRow) (float64, error) {
	point, err := s.store.LatestBalancePoint(row.ID)
	if err == nil {
		return point.Balance, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return 0, err
	}

	balance, err := s.liveBalance(ctx, row)
	if err != nil {
		return 0, err
	}
	if werr := s.store.UpsertBalancePoint(row.ID, s.clock(), balance); werr != nil {
		s.log.Warn("failed to write balance point", "asset", row.ID, "error", werr)
	}
	return balance, nil
}

func (s *Service) liveBalance(ctx context.Context, row *storage.AssetRow) (float64, error) {
	if s.agg.Enabled() {
		balance, err := s.agg.GetTokenBalance(ctx, row.Blockchain, row.Address, row.Contract)
		if err == nil && balance > 0 {
			return balance, nil
		}
	}

	drv, err := s.drivers.Driver(ctx, row.Blockchain)
	if err != nil {
		return 0, err
	}
	if row.Contract == "" {
		return drv.NativeBalance(ctx, row.Address)
	}
	return drv.TokenBalance(ctx, row.Address, row.Contract)
}
