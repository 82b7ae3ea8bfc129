package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/foliolabs/folio/internal/storage"
)

// ========================================
// History handlers
// ========================================

// HistoryQueryParams is the shared parameter shape of history_prices and
// history_balances. Range wins over explicit bounds.
type HistoryQueryParams struct {
	Symbol  string `json:"symbol,omitempty"`
	Chain   string `json:"chain,omitempty"`
	Address string `json:"address,omitempty"`
	Range   string `json:"range,omitempty"`
	Start   int64  `json:"start,omitempty"`
	End     int64  `json:"end,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

// HistoryPricesResult is the response for history_prices.
type HistoryPricesResult struct {
	Points []*storage.PricePoint `json:"points"`
	Count  int                   `json:"count"`
	Start  int64                 `json:"start"`
	End    int64                 `json:"end"`
}

func (s *Server) historyPrices(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p HistoryQueryParams
	if params != nil {
		json.Unmarshal(params, &p)
	}

	start, end := s.scheduler.TimeRange(ctx, p.Range, p.Start, p.End, p.Address, p.Chain)
	points, err := s.scheduler.PriceHistory(&storage.HistoryFilter{
		Start:   start,
		End:     end,
		Symbol:  p.Symbol,
		Chain:   p.Chain,
		Address: p.Address,
		Limit:   p.Limit,
	})
	if err != nil {
		return nil, err
	}

	return &HistoryPricesResult{Points: points, Count: len(points), Start: start, End: end}, nil
}

// HistoryBalancesResult is the response for history_balances.
type HistoryBalancesResult struct {
	Points []*storage.BalancePoint `json:"points"`
	Count  int                     `json:"count"`
	Start  int64                   `json:"start"`
	End    int64                   `json:"end"`
}

func (s *Server) historyBalances(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p HistoryQueryParams
	if params != nil {
		json.Unmarshal(params, &p)
	}

	start, end := s.scheduler.TimeRange(ctx, p.Range, p.Start, p.End, p.Address, p.Chain)
	points, err := s.scheduler.BalanceHistory(&storage.HistoryFilter{
		Start:   start,
		End:     end,
		Symbol:  p.Symbol,
		Chain:   p.Chain,
		Address: p.Address,
		Limit:   p.Limit,
	})
	if err != nil {
		return nil, err
	}

	return &HistoryBalancesResult{Points: points, Count: len(points), Start: start, End: end}, nil
}

// AssetTrendParams is the parameters for history_assetTrend.
type AssetTrendParams struct {
	AssetID string `json:"asset_id"`
	Range   string `json:"range,omitempty"`
	Start   int64  `json:"start,omitempty"`
	End     int64  `json:"end,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

func (s *Server) historyAssetTrend(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p AssetTrendParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if p.AssetID == "" {
		return nil, fmt.Errorf("asset_id is required")
	}

	// The asset's wallet anchors the default window.
	row, err := s.store.GetAssetRow(p.AssetID)
	if err != nil {
		return nil, err
	}

	start, end := s.scheduler.TimeRange(ctx, p.Range, p.Start, p.End, row.Address, row.Blockchain)
	trend, err := s.scheduler.AssetTrend(p.AssetID, start, end, p.Limit)
	if err != nil {
		return nil, err
	}
	return trend, nil
}

// HistoryUpdateParams is the parameters for history_update.
type HistoryUpdateParams struct {
	Force bool `json:"force,omitempty"`
}

func (s *Server) historyUpdate(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p HistoryUpdateParams
	if params != nil {
		json.Unmarshal(params, &p)
	}

	// Snapshots can take minutes over many assets; run detached and
	// report completion over the event stream.
	go func() {
		runCtx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()

		if err := s.scheduler.RunOnce(runCtx, p.Force); err != nil {
			s.log.Warn("manual history update failed", "error", err)
			return
		}
		s.broadcast(EventSnapshotCompleted, map[string]interface{}{
			"completed_at": time.Now().Unix(),
			"forced":       p.Force,
		})
	}()

	return map[string]interface{}{
		"started": true,
		"forced":  p.Force,
	}, nil
}

func (s *Server) historyStatus(ctx context.Context, params json.RawMessage) (interface{}, error) {
	return s.scheduler.Stats(), nil
}

func (s *Server) historyCleanup(ctx context.Context, params json.RawMessage) (interface{}, error) {
	deleted, err := s.scheduler.Cleanup()
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"success": true,
		"deleted": deleted,
	}, nil
}
