// Package storage - Asset snapshot operations.
package storage

import (
	"database/sql"
	"fmt"

	"github.com/foliolabs/folio/pkg/helpers"
)

// Snapshot is one scheduler observation of an asset's quantity, price
// and value at an aligned hour. value_usd is always quantity times
// price_usd.
type Snapshot struct {
	AssetID   string  `json:"asset_id"`
	Timestamp int64   `json:"timestamp"`
	Date      string  `json:"date"`
	Quantity  float64 `json:"quantity"`
	PriceUSD  float64 `json:"price_usd"`
	ValueUSD  float64 `json:"value_usd"`
}

// UpsertSnapshot writes a snapshot row at an aligned hour.
func (s *Storage) UpsertSnapshot(assetID string, timestamp int64, quantity, priceUSD float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := helpers.AlignHour(timestamp)
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO asset_snapshots (asset_id, timestamp, date, quantity, price_usd, value_usd)
		VALUES (?, ?, ?, ?, ?, ?)
	`, assetID, ts, helpers.ISODate(ts), quantity, priceUSD, quantity*priceUSD)
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}
	return nil
}

// HasSnapshot reports whether a snapshot exists at an aligned hour.
func (s *Storage) HasSnapshot(assetID string, timestamp int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM asset_snapshots WHERE asset_id = ? AND timestamp = ?
	`, assetID, helpers.AlignHour(timestamp)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check snapshot: %w", err)
	}
	return n > 0, nil
}

// QuerySnapshots returns snapshot rows for an asset within [start,
// end], oldest first. Zero bounds are ignored.
func (s *Storage) QuerySnapshots(assetID string, start, end int64, limit int) ([]*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT asset_id, timestamp, date, quantity, price_usd, value_usd
		FROM asset_snapshots WHERE asset_id = ?`
	args := []interface{}{assetID}

	if start > 0 {
		query += " AND timestamp >= ?"
		args = append(args, start)
	}
	if end > 0 {
		query += " AND timestamp <= ?"
		args = append(args, end)
	}
	query += " ORDER BY timestamp ASC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var out []*Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// SnapshotTimestamps returns the distinct aligned hours at which any
// snapshot exists, oldest first.
func (s *Storage) SnapshotTimestamps(start, end int64) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT DISTINCT timestamp FROM asset_snapshots
		WHERE timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot timestamps: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var ts int64
		if err := rows.Scan(&ts); err != nil {
			return nil, err
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

func scanSnapshot(row rowScanner) (*Snapshot, error) {
	var snap Snapshot
	err := row.Scan(&snap.AssetID, &snap.Timestamp, &snap.Date,
		&snap.Quantity, &snap.PriceUSD, &snap.ValueUSD)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan snapshot: %w", err)
	}
	return &snap, nil
}
