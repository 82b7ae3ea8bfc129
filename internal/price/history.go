// Package price - History-aware price reads backed by the store.
package price

import (
	"context"
	"errors"

	"github.com/foliolabs/folio/internal/storage"
	"github.com/foliolabs/folio/pkg/helpers"
)

// Store is the slice of the persistent store the engine consumes.
// *storage.Storage satisfies it.
type Store interface {
	LatestPricePoint(tokenID int64) (*storage.PricePoint, error)
	UpsertPricePoint(tokenID int64, timestamp int64, price float64, source string) error
}

// GetPriceWithCache answers from the token's hourly price history when
// the current hour already has a point, and otherwise goes live and
// writes the result back as this hour's point.
func (e *Engine) GetPriceWithCache(ctx context.Context, store Store, token *storage.Token) (float64, error) {
	currentHour := helpers.AlignHour(e.clock().Unix())

	point, err := store.LatestPricePoint(token.ID)
	if err == nil && point.Timestamp == currentHour {
		return point.PriceUSD, nil
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return 0, err
	}
	if err != nil {
		point = nil
	}

	price, err := e.GetPrice(ctx, token.Symbol, token.Blockchain)
	if err != nil {
		// Best-available: an older history point beats a zero.
		if point != nil {
			e.log.Debug("live price failed, serving last history point",
				"symbol", token.Symbol, "error", err)
			return point.PriceUSD, nil
		}
		return 0, err
	}

	if price > 0 {
		if werr := store.UpsertPricePoint(token.ID, e.clock().Unix(), price, "live"); werr != nil {
			e.log.Warn("failed to write price point", "symbol", token.Symbol, "error", werr)
		}
	}
	return price, nil
}
