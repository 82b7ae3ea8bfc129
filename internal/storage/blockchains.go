// Package storage - Blockchain table operations.
package storage

import (
	"database/sql"
	"fmt"
)

// Blockchain represents a supported chain row.
type Blockchain struct {
	Name        string
	DisplayName string
	RPCURL      string
	ExplorerURL string
	ChainType   string
	IsActive    bool
}

// UpsertBlockchain inserts or updates a blockchain row. Idempotent;
// called for every registered chain at startup.
func (s *Storage) UpsertBlockchain(b *Blockchain) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO blockchains (name, display_name, rpc_url, explorer_url, chain_type, is_active)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			display_name = excluded.display_name,
			rpc_url = excluded.rpc_url,
			explorer_url = excluded.explorer_url,
			chain_type = excluded.chain_type,
			is_active = excluded.is_active
	`, b.Name, b.DisplayName, b.RPCURL, b.ExplorerURL, b.ChainType, boolToInt(b.IsActive))

	if err != nil {
		return fmt.Errorf("failed to upsert blockchain: %w", err)
	}
	return nil
}

// GetBlockchain returns a blockchain row by name.
func (s *Storage) GetBlockchain(name string) (*Blockchain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT name, display_name, rpc_url, explorer_url, chain_type, is_active
		FROM blockchains WHERE name = ?
	`, name)

	return scanBlockchain(row)
}

// ListBlockchains returns all blockchain rows ordered by name.
func (s *Storage) ListBlockchains() ([]*Blockchain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT name, display_name, rpc_url, explorer_url, chain_type, is_active
		FROM blockchains ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list blockchains: %w", err)
	}
	defer rows.Close()

	var out []*Blockchain
	for rows.Next() {
		b, err := scanBlockchain(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBlockchain(row rowScanner) (*Blockchain, error) {
	var b Blockchain
	var rpcURL, explorerURL sql.NullString
	var active int

	err := row.Scan(&b.Name, &b.DisplayName, &rpcURL, &explorerURL, &b.ChainType, &active)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan blockchain: %w", err)
	}

	b.RPCURL = rpcURL.String
	b.ExplorerURL = explorerURL.String
	b.IsActive = active != 0
	return &b, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
