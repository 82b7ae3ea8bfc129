// Package storage - Price and balance history operations.
package storage

import (
	"database/sql"
	"fmt"

	"github.com/foliolabs/folio/pkg/helpers"
)

// PricePoint is one hour-aligned price observation for a token.
type PricePoint struct {
	TokenID   int64   `json:"-"`
	Symbol    string  `json:"symbol"`
	Chain     string  `json:"chain"`
	Timestamp int64   `json:"timestamp"`
	Date      string  `json:"date"`
	PriceUSD  float64 `json:"price_usd"`
	Source    string  `json:"source"`
}

// BalancePoint is one hour-aligned balance observation for an asset.
type BalancePoint struct {
	AssetID   string  `json:"asset_id"`
	Timestamp int64   `json:"timestamp"`
	Date      string  `json:"date"`
	Balance   float64 `json:"balance"`
}

// UpsertPricePoint writes a price observation at an aligned hour.
// INSERT OR REPLACE is the serialization point between the snapshot
// and back-fill jobs.
func (s *Storage) UpsertPricePoint(tokenID int64, timestamp int64, price float64, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := helpers.AlignHour(timestamp)
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO price_history (token_id, timestamp, date, price_usd, source)
		VALUES (?, ?, ?, ?, ?)
	`, tokenID, ts, helpers.ISODate(ts), price, source)
	if err != nil {
		return fmt.Errorf("failed to upsert price point: %w", err)
	}
	return nil
}

// LatestPricePoint returns the most recent price row for a token.
func (s *Storage) LatestPricePoint(tokenID int64) (*PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT p.token_id, t.symbol, t.blockchain, p.timestamp, p.date, p.price_usd, p.source
		FROM price_history p
		JOIN tokens t ON t.id = p.token_id
		WHERE p.token_id = ?
		ORDER BY p.timestamp DESC LIMIT 1
	`, tokenID)
	return scanPricePoint(row)
}

// HasPricePoint reports whether a price row exists at an aligned hour.
func (s *Storage) HasPricePoint(tokenID, timestamp int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM price_history WHERE token_id = ? AND timestamp = ?
	`, tokenID, helpers.AlignHour(timestamp)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check price point: %w", err)
	}
	return n > 0, nil
}

// HistoryFilter narrows history queries. Zero values mean "no bound".
type HistoryFilter struct {
	Start   int64
	End     int64
	Symbol  string
	Chain   string
	Address string
	Limit   int
}

// QueryPriceHistory returns price rows matching the filter, oldest
// first.
func (s *Storage) QueryPriceHistory(f *HistoryFilter) ([]*PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT p.token_id, t.symbol, t.blockchain, p.timestamp, p.date, p.price_usd, p.source
		FROM price_history p
		JOIN tokens t ON t.id = p.token_id
		WHERE 1=1`
	var args []interface{}

	if f.Start > 0 {
		query += " AND p.timestamp >= ?"
		args = append(args, f.Start)
	}
	if f.End > 0 {
		query += " AND p.timestamp <= ?"
		args = append(args, f.End)
	}
	if f.Symbol != "" {
		query += " AND t.symbol = ?"
		args = append(args, f.Symbol)
	}
	if f.Chain != "" {
		query += " AND t.blockchain = ?"
		args = append(args, f.Chain)
	}
	query += " ORDER BY p.timestamp ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query price history: %w", err)
	}
	defer rows.Close()

	var out []*PricePoint
	for rows.Next() {
		p, err := scanPricePoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpsertBalancePoint writes a balance observation at an aligned hour.
func (s *Storage) UpsertBalancePoint(assetID string, timestamp int64, balance float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := helpers.AlignHour(timestamp)
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO balance_history (asset_id, timestamp, date, balance)
		VALUES (?, ?, ?, ?)
	`, assetID, ts, helpers.ISODate(ts), balance)
	if err != nil {
		return fmt.Errorf("failed to upsert balance point: %w", err)
	}
	return nil
}

// LatestBalancePoint returns the most recent balance row for an asset.
func (s *Storage) LatestBalancePoint(assetID string) (*BalancePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT asset_id, timestamp, date, balance
		FROM balance_history WHERE asset_id = ?
		ORDER BY timestamp DESC LIMIT 1
	`, assetID)
	return scanBalancePoint(row)
}

// HasBalancePoint reports whether a balance row exists at an aligned
// hour.
func (s *Storage) HasBalancePoint(assetID string, timestamp int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM balance_history WHERE asset_id = ? AND timestamp = ?
	`, assetID, helpers.AlignHour(timestamp)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check balance point: %w", err)
	}
	return n > 0, nil
}

// QueryBalanceHistory returns balance rows matching the filter, oldest
// first.
func (s *Storage) QueryBalanceHistory(f *HistoryFilter) ([]*BalancePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT b.asset_id, b.timestamp, b.date, b.balance
		FROM balance_history b
		JOIN assets a ON a.id = b.asset_id
		JOIN wallets w ON w.id = a.wallet_id
		JOIN tokens t ON t.id = a.token_id
		WHERE 1=1`
	var args []interface{}

	if f.Start > 0 {
		query += " AND b.timestamp >= ?"
		args = append(args, f.Start)
	}
	if f.End > 0 {
		query += " AND b.timestamp <= ?"
		args = append(args, f.End)
	}
	if f.Symbol != "" {
		query += " AND t.symbol = ?"
		args = append(args, f.Symbol)
	}
	if f.Chain != "" {
		query += " AND w.blockchain = ?"
		args = append(args, f.Chain)
	}
	if f.Address != "" {
		query += " AND w.address = ?"
		args = append(args, f.Address)
	}
	query += " ORDER BY b.timestamp ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query balance history: %w", err)
	}
	defer rows.Close()

	var out []*BalancePoint
	for rows.Next() {
		b, err := scanBalancePoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// DeleteHistoryBefore drops history and snapshot rows older than the
// cutoff. Returns the total number of rows removed.
func (s *Storage) DeleteHistoryBefore(cutoff int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total int64
	for _, table := range []string{"price_history", "balance_history", "asset_snapshots"} {
		result, err := s.db.Exec("DELETE FROM "+table+" WHERE timestamp < ?", cutoff)
		if err != nil {
			return total, fmt.Errorf("failed to clean %s: %w", table, err)
		}
		n, _ := result.RowsAffected()
		total += n
	}
	return total, nil
}

func scanPricePoint(row rowScanner) (*PricePoint, error) {
	var p PricePoint
	err := row.Scan(&p.TokenID, &p.Symbol, &p.Chain, &p.Timestamp, &p.Date, &p.PriceUSD, &p.Source)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan price point: %w", err)
	}
	return &p, nil
}

func scanBalancePoint(row rowScanner) (*BalancePoint, error) {
	var b BalancePoint
	err := row.Scan(&b.AssetID, &b.Timestamp, &b.Date, &b.Balance)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan balance point: %w", err)
	}
	return &b, nil
}
