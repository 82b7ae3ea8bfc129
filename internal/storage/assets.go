// Package storage - Asset table operations.
package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AssetStatus reports what CreateAsset did for a (wallet, token) pair.
type AssetStatus string

const (
	AssetCreated     AssetStatus = "created"
	AssetExisting    AssetStatus = "existing"
	AssetReactivated AssetStatus = "reactivated"
)

// Asset represents a tracked (wallet, token) pair.
type Asset struct {
	ID        string
	WalletID  int64
	TokenID   int64
	Tag       string
	IsActive  bool
	CreatedAt time.Time
}

// AssetRow is an asset joined with its wallet and token for display.
type AssetRow struct {
	Asset
	Address    string
	Blockchain string
	WalletName string
	Notes      string
	Symbol     string
	TokenName  string
	Contract   string
	Decimals   uint8
	PriceID    string
}

// CreateAsset tracks a (wallet, token) pair. An active duplicate is
// returned as-is; a soft-deleted row is reactivated. At most one
// active asset ever exists per pair.
func (s *Storage) CreateAsset(walletID, tokenID int64, tag string) (*Asset, AssetStatus, error) {
	id := uuid.New().String()

	s.mu.Lock()
	_, err := s.db.Exec(`
		INSERT INTO assets (id, wallet_id, token_id, tag, is_active, created_at)
		VALUES (?, ?, ?, ?, 1, ?)
	`, id, walletID, tokenID, nullIfEmpty(tag), time.Now().Unix())
	s.mu.Unlock()

	if err == nil {
		asset, err := s.GetAsset(id)
		return asset, AssetCreated, err
	}
	if !isUniqueViolation(err) {
		return nil, "", fmt.Errorf("failed to create asset: %w", err)
	}

	// A row already exists for this pair; return it, reviving it when
	// soft-deleted.
	existing, err := s.getAssetByPair(walletID, tokenID)
	if err != nil {
		return nil, "", err
	}
	if existing.IsActive {
		return existing, AssetExisting, nil
	}

	s.mu.Lock()
	_, err = s.db.Exec(`
		UPDATE assets SET is_active = 1, tag = ?, updated_at = ? WHERE id = ?
	`, nullIfEmpty(tag), time.Now().Unix(), existing.ID)
	s.mu.Unlock()
	if err != nil {
		return nil, "", fmt.Errorf("failed to reactivate asset: %w", err)
	}

	asset, err := s.GetAsset(existing.ID)
	return asset, AssetReactivated, err
}

// GetAsset returns an asset row by id.
func (s *Storage) GetAsset(id string) (*Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT id, wallet_id, token_id, tag, is_active, created_at
		FROM assets WHERE id = ?
	`, id)
	return scanAsset(row)
}

func (s *Storage) getAssetByPair(walletID, tokenID int64) (*Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT id, wallet_id, token_id, tag, is_active, created_at
		FROM assets WHERE wallet_id = ? AND token_id = ?
	`, walletID, tokenID)
	return scanAsset(row)
}

// SoftDeleteAsset deactivates an asset. Its history rows stay put.
func (s *Storage) SoftDeleteAsset(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`
		UPDATE assets SET is_active = 0, updated_at = ? WHERE id = ? AND is_active = 1
	`, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to delete asset: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateAssetTag sets an asset's tag.
func (s *Storage) UpdateAssetTag(id, tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`
		UPDATE assets SET tag = ?, updated_at = ? WHERE id = ?
	`, nullIfEmpty(tag), time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update asset: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AssetFilter narrows ListAssetRows.
type AssetFilter struct {
	Blockchain string
	Address    string
	Tag        string
}

// ListAssetRows returns active assets joined with wallet and token
// data, newest assets first.
func (s *Storage) ListAssetRows(filter *AssetFilter) ([]*AssetRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT a.id, a.wallet_id, a.token_id, a.tag, a.is_active, a.created_at,
		       w.address, w.blockchain, w.wallet_name, w.notes,
		       t.symbol, t.name, t.contract, t.decimals, t.external_price_id
		FROM assets a
		JOIN wallets w ON w.id = a.wallet_id
		JOIN tokens t ON t.id = a.token_id
		WHERE a.is_active = 1`
	var args []interface{}

	if filter != nil {
		if filter.Blockchain != "" {
			query += " AND w.blockchain = ?"
			args = append(args, filter.Blockchain)
		}
		if filter.Address != "" {
			query += " AND w.address = ?"
			args = append(args, filter.Address)
		}
		if filter.Tag != "" {
			query += " AND a.tag = ?"
			args = append(args, filter.Tag)
		}
	}
	query += " ORDER BY a.created_at DESC, a.id DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	defer rows.Close()

	var out []*AssetRow
	for rows.Next() {
		r, err := scanAssetRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetAssetRow returns one asset joined with wallet and token data.
func (s *Storage) GetAssetRow(id string) (*AssetRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT a.id, a.wallet_id, a.token_id, a.tag, a.is_active, a.created_at,
		       w.address, w.blockchain, w.wallet_name, w.notes,
		       t.symbol, t.name, t.contract, t.decimals, t.external_price_id
		FROM assets a
		JOIN wallets w ON w.id = a.wallet_id
		JOIN tokens t ON t.id = a.token_id
		WHERE a.id = ?
	`, id)
	return scanAssetRow(row)
}

func scanAsset(row rowScanner) (*Asset, error) {
	var a Asset
	var tag sql.NullString
	var active int
	var createdAt int64

	err := row.Scan(&a.ID, &a.WalletID, &a.TokenID, &tag, &active, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan asset: %w", err)
	}

	a.Tag = tag.String
	a.IsActive = active != 0
	a.CreatedAt = time.Unix(createdAt, 0)
	return &a, nil
}

func scanAssetRow(row rowScanner) (*AssetRow, error) {
	var r AssetRow
	var tag, walletName, notes, priceID sql.NullString
	var active, decimals int
	var createdAt int64

	err := row.Scan(&r.ID, &r.WalletID, &r.TokenID, &tag, &active, &createdAt,
		&r.Address, &r.Blockchain, &walletName, &notes,
		&r.Symbol, &r.TokenName, &r.Contract, &decimals, &priceID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan asset row: %w", err)
	}

	r.Tag = tag.String
	r.IsActive = active != 0
	r.CreatedAt = time.Unix(createdAt, 0)
	r.WalletName = walletName.String
	r.Notes = notes.String
	r.Decimals = uint8(decimals)
	r.PriceID = priceID.String
	return &r, nil
}
