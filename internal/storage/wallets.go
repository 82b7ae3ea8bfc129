// Package storage - Wallet table operations.
package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// Wallet represents a tracked (address, chain) pair.
type Wallet struct {
	ID         int64
	Address    string
	Blockchain string
	Name       string
	Notes      string

	// Creation metadata, filled lazily from the chain's explorer.
	CreationTimestamp *int64
	CreationDate      string
	FirstTxHash       string
	BlockNumber       *int64
	IsEstimated       bool

	CreatedAt time.Time
}

// GetOrCreateWallet returns the wallet row for (address, chain),
// creating it on first reference. A concurrent insert losing the
// uniqueness race falls back to re-reading the winner's row.
func (s *Storage) GetOrCreateWallet(address, blockchain string) (*Wallet, error) {
	if w, err := s.GetWallet(address, blockchain); err == nil {
		return w, nil
	} else if err != ErrNotFound {
		return nil, err
	}

	s.mu.Lock()
	_, err := s.db.Exec(`
		INSERT INTO wallets (address, blockchain, is_estimated, created_at)
		VALUES (?, ?, 0, ?)
	`, address, blockchain, time.Now().Unix())
	s.mu.Unlock()

	if err != nil && !isUniqueViolation(err) {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}

	return s.GetWallet(address, blockchain)
}

// GetWallet returns the wallet row for (address, chain).
func (s *Storage) GetWallet(address, blockchain string) (*Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT id, address, blockchain, wallet_name, notes,
		       creation_timestamp, creation_date, first_transaction_hash,
		       block_number, is_estimated, created_at
		FROM wallets WHERE address = ? AND blockchain = ?
	`, address, blockchain)

	return scanWallet(row)
}

// GetWalletByID returns a wallet row by id.
func (s *Storage) GetWalletByID(id int64) (*Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT id, address, blockchain, wallet_name, notes,
		       creation_timestamp, creation_date, first_transaction_hash,
		       block_number, is_estimated, created_at
		FROM wallets WHERE id = ?
	`, id)

	return scanWallet(row)
}

// ListWallets returns all wallet rows, newest first.
func (s *Storage) ListWallets() ([]*Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, address, blockchain, wallet_name, notes,
		       creation_timestamp, creation_date, first_transaction_hash,
		       block_number, is_estimated, created_at
		FROM wallets ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}
	defer rows.Close()

	var out []*Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// UpdateWalletMeta sets the user-assigned name and notes.
func (s *Storage) UpdateWalletMeta(id int64, name, notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE wallets SET wallet_name = ?, notes = ? WHERE id = ?
	`, nullIfEmpty(name), nullIfEmpty(notes), id)
	if err != nil {
		return fmt.Errorf("failed to update wallet: %w", err)
	}
	return nil
}

// SetWalletCreation records a wallet's first-transaction metadata.
// Estimated timestamps keep is_estimated set so later consumers never
// treat them as ground truth.
func (s *Storage) SetWalletCreation(id int64, timestamp *int64, txHash string, blockNumber *int64, estimated bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var date interface{}
	if timestamp != nil {
		date = time.Unix(*timestamp, 0).UTC().Format("2006-01-02T15:04:05Z")
	}

	_, err := s.db.Exec(`
		UPDATE wallets SET
			creation_timestamp = ?,
			creation_date = ?,
			first_transaction_hash = ?,
			block_number = ?,
			is_estimated = ?
		WHERE id = ?
	`, timestamp, date, nullIfEmpty(txHash), blockNumber, boolToInt(estimated), id)
	if err != nil {
		return fmt.Errorf("failed to set wallet creation: %w", err)
	}
	return nil
}

func scanWallet(row rowScanner) (*Wallet, error) {
	var w Wallet
	var name, notes, creationDate, txHash sql.NullString
	var creationTS, blockNumber sql.NullInt64
	var estimated int
	var createdAt int64

	err := row.Scan(&w.ID, &w.Address, &w.Blockchain, &name, &notes,
		&creationTS, &creationDate, &txHash, &blockNumber, &estimated, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan wallet: %w", err)
	}

	w.Name = name.String
	w.Notes = notes.String
	w.CreationDate = creationDate.String
	w.FirstTxHash = txHash.String
	if creationTS.Valid {
		ts := creationTS.Int64
		w.CreationTimestamp = &ts
	}
	if blockNumber.Valid {
		bn := blockNumber.Int64
		w.BlockNumber = &bn
	}
	w.IsEstimated = estimated != 0
	w.CreatedAt = time.Unix(createdAt, 0)
	return &w, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
