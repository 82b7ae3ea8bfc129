package history

import (
	"context"
	"time"

	"github.com/foliolabs/folio/internal/storage"
)

// namedRanges maps the request shorthand to a look-back duration.
// "all" is handled separately: it means no lower bound.
var namedRanges = map[string]time.Duration{
	"1h":   time.Hour,
	"24h":  24 * time.Hour,
	"7d":   7 * 24 * time.Hour,
	"30d":  30 * 24 * time.Hour,
	"90d":  90 * 24 * time.Hour,
	"180d": 180 * 24 * time.Hour,
	"1y":   365 * 24 * time.Hour,
	"2y":   2 * 365 * 24 * time.Hour,
}

const maxDefaultRange = 2 * 365 * 24 * time.Hour

// TimeRange resolves a history query's [start, end] bounds. Precedence:
// a named range, then explicit bounds, then the wallet's creation time
// when younger than two years, then thirty days. A start past the end
// clamps to one day before the end.
func (s *Scheduler) TimeRange(ctx context.Context, rangeKey string, start, end int64, address, chainName string) (int64, int64) {
	now := s.clock().Unix()

	if rangeKey == "all" {
		return 0, now
	}
	if d, ok := namedRanges[rangeKey]; ok {
		return now - int64(d.Seconds()), now
	}

	if start > 0 || end > 0 {
		if end <= 0 {
			end = now
		}
		if start > end {
			start = end - 24*3600
		}
		return start, end
	}

	if address != "" && chainName != "" {
		if w, err := s.WalletCreation(ctx, address, chainName); err == nil &&
			w.CreationTimestamp != nil && now-*w.CreationTimestamp < int64(maxDefaultRange.Seconds()) {
			return *w.CreationTimestamp, now
		}
	}
	return now - int64(namedRanges["30d"].Seconds()), now
}

// Trend is an asset's snapshot series with first/last aggregates.
type Trend struct {
	AssetID       string              `json:"asset_id"`
	Points        []*storage.Snapshot `json:"points"`
	First         *storage.Snapshot   `json:"first,omitempty"`
	Last          *storage.Snapshot   `json:"last,omitempty"`
	ChangeUSD     float64             `json:"change_usd"`
	ChangePercent float64             `json:"change_percent"`
}

// AssetTrend returns the snapshot series for one asset over [start,
// end], oldest first, with value change aggregates.
func (s *Scheduler) AssetTrend(assetID string, start, end int64, limit int) (*Trend, error) {
	points, err := s.store.QuerySnapshots(assetID, start, end, limit)
	if err != nil {
		return nil, err
	}

	trend := &Trend{AssetID: assetID, Points: points}
	if len(points) == 0 {
		return trend, nil
	}

	trend.First = points[0]
	trend.Last = points[len(points)-1]
	trend.ChangeUSD = trend.Last.ValueUSD - trend.First.ValueUSD
	if trend.First.ValueUSD > 0 {
		trend.ChangePercent = trend.ChangeUSD / trend.First.ValueUSD * 100
	}
	return trend, nil
}

// PriceHistory returns price rows for the filter, oldest first.
func (s *Scheduler) PriceHistory(f *storage.HistoryFilter) ([]*storage.PricePoint, error) {
	return s.store.QueryPriceHistory(f)
}

// BalanceHistory returns balance rows for the filter, oldest first.
func (s *Scheduler) BalanceHistory(f *storage.HistoryFilter) ([]*storage.BalancePoint, error) {
	return s.store.QueryBalanceHistory(f)
}
