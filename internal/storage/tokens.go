// Package storage - Token table operations.
package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Token represents a token catalog row. Contract is empty for the
// chain's native token.
type Token struct {
	ID           int64
	Symbol       string
	Name         string
	Blockchain   string
	Contract     string
	Decimals     uint8
	PriceID      string // external price API id
	IsPredefined bool
	IsActive     bool
	CreatedAt    time.Time
}

// UpsertPredefinedToken inserts or refreshes a predefined catalog row.
// Idempotent: re-running the seed leaves the table unchanged. It never
// reactivates a row a user has deactivated.
func (s *Storage) UpsertPredefinedToken(t *Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO tokens (symbol, name, blockchain, contract, decimals,
			external_price_id, is_predefined, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, 1, ?)
		ON CONFLICT(symbol, blockchain, contract) DO UPDATE SET
			name = excluded.name,
			decimals = excluded.decimals,
			external_price_id = excluded.external_price_id,
			is_predefined = 1
	`, strings.ToUpper(t.Symbol), t.Name, t.Blockchain, t.Contract,
		t.Decimals, nullIfEmpty(t.PriceID), time.Now().Unix())

	if err != nil {
		return fmt.Errorf("failed to upsert predefined token: %w", err)
	}
	return nil
}

// InsertToken inserts a custom token row. On a uniqueness conflict the
// existing row is read and returned; this is the explicit happy path
// for concurrent adds of the same token.
func (s *Storage) InsertToken(t *Token) (*Token, error) {
	s.mu.Lock()
	_, err := s.db.Exec(`
		INSERT INTO tokens (symbol, name, blockchain, contract, decimals,
			external_price_id, is_predefined, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?)
	`, strings.ToUpper(t.Symbol), t.Name, t.Blockchain, t.Contract,
		t.Decimals, nullIfEmpty(t.PriceID), boolToInt(t.IsPredefined), time.Now().Unix())
	s.mu.Unlock()

	if err != nil {
		if isUniqueViolation(err) {
			return s.GetToken(t.Symbol, t.Blockchain, t.Contract)
		}
		return nil, fmt.Errorf("failed to insert token: %w", err)
	}

	return s.GetToken(t.Symbol, t.Blockchain, t.Contract)
}

// GetToken returns the token row for (symbol, chain, contract).
func (s *Storage) GetToken(symbol, blockchain, contract string) (*Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT id, symbol, name, blockchain, contract, decimals,
		       external_price_id, is_predefined, is_active, created_at
		FROM tokens WHERE symbol = ? AND blockchain = ? AND contract = ?
	`, strings.ToUpper(symbol), blockchain, contract)

	return scanToken(row)
}

// GetTokenByID returns a token row by id.
func (s *Storage) GetTokenByID(id int64) (*Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT id, symbol, name, blockchain, contract, decimals,
		       external_price_id, is_predefined, is_active, created_at
		FROM tokens WHERE id = ?
	`, id)

	return scanToken(row)
}

// FindToken returns the first active token matching (symbol, chain),
// preferring predefined rows.
func (s *Storage) FindToken(symbol, blockchain string) (*Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT id, symbol, name, blockchain, contract, decimals,
		       external_price_id, is_predefined, is_active, created_at
		FROM tokens
		WHERE symbol = ? AND blockchain = ? AND is_active = 1
		ORDER BY is_predefined DESC, id ASC
		LIMIT 1
	`, strings.ToUpper(symbol), blockchain)

	return scanToken(row)
}

// ListTokens returns token rows, optionally filtered by chain and
// restricted to active rows.
func (s *Storage) ListTokens(blockchain string, activeOnly bool) ([]*Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, symbol, name, blockchain, contract, decimals,
		       external_price_id, is_predefined, is_active, created_at
		FROM tokens WHERE 1=1`
	var args []interface{}

	if blockchain != "" {
		query += " AND blockchain = ?"
		args = append(args, blockchain)
	}
	if activeOnly {
		query += " AND is_active = 1"
	}
	query += " ORDER BY blockchain, symbol"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	defer rows.Close()

	return collectTokens(rows)
}

// SearchTokens returns active tokens whose symbol has the given prefix,
// followed by tokens whose name contains the query. The caller applies
// its own limit on top of ours.
func (s *Storage) SearchTokens(query string, limit int) ([]*Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	q := strings.ToUpper(query)

	rows, err := s.db.Query(`
		SELECT id, symbol, name, blockchain, contract, decimals,
		       external_price_id, is_predefined, is_active, created_at
		FROM tokens
		WHERE is_active = 1 AND (symbol LIKE ? OR UPPER(name) LIKE ?)
		ORDER BY
			CASE WHEN symbol LIKE ? THEN 0 ELSE 1 END,
			symbol, blockchain
		LIMIT ?
	`, q+"%", "%"+q+"%", q+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search tokens: %w", err)
	}
	defer rows.Close()

	return collectTokens(rows)
}

// UpdateToken updates the mutable attributes of a token row.
func (s *Storage) UpdateToken(id int64, name string, decimals uint8, priceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`
		UPDATE tokens SET name = ?, decimals = ?, external_price_id = ?
		WHERE id = ?
	`, name, decimals, nullIfEmpty(priceID), id)
	if err != nil {
		return fmt.Errorf("failed to update token: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetTokenActive toggles a token's active flag.
func (s *Storage) SetTokenActive(id int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`UPDATE tokens SET is_active = ? WHERE id = ?`,
		boolToInt(active), id)
	if err != nil {
		return fmt.Errorf("failed to set token active: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteToken removes a custom token row. Predefined rows are never
// removed; callers deactivate them instead.
func (s *Storage) DeleteToken(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`DELETE FROM tokens WHERE id = ? AND is_predefined = 0`, id)
	if err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountActiveAssetsForToken returns the number of active assets that
// reference a token. Tokens with references cannot be removed.
func (s *Storage) CountActiveAssetsForToken(tokenID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM assets WHERE token_id = ? AND is_active = 1
	`, tokenID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count assets: %w", err)
	}
	return count, nil
}

// TokenStats summarizes the token catalog.
type TokenStats struct {
	Total      int            `json:"total"`
	Predefined int            `json:"predefined"`
	Custom     int            `json:"custom"`
	Active     int            `json:"active"`
	PerChain   map[string]int `json:"per_chain"`
}

// GetTokenStats returns catalog totals and per-chain counts.
func (s *Storage) GetTokenStats() (*TokenStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &TokenStats{PerChain: make(map[string]int)}

	err := s.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(is_predefined), 0),
		       COALESCE(SUM(CASE WHEN is_predefined = 0 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(is_active), 0)
		FROM tokens
	`).Scan(&stats.Total, &stats.Predefined, &stats.Custom, &stats.Active)
	if err != nil {
		return nil, fmt.Errorf("failed to get token stats: %w", err)
	}

	rows, err := s.db.Query(`SELECT blockchain, COUNT(*) FROM tokens GROUP BY blockchain`)
	if err != nil {
		return nil, fmt.Errorf("failed to get per-chain stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var chain string
		var count int
		if err := rows.Scan(&chain, &count); err != nil {
			return nil, err
		}
		stats.PerChain[chain] = count
	}
	return stats, rows.Err()
}

func scanToken(row rowScanner) (*Token, error) {
	var t Token
	var priceID sql.NullString
	var predefined, active, decimals int
	var createdAt int64

	err := row.Scan(&t.ID, &t.Symbol, &t.Name, &t.Blockchain, &t.Contract,
		&decimals, &priceID, &predefined, &active, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan token: %w", err)
	}

	t.Decimals = uint8(decimals)
	t.PriceID = priceID.String
	t.IsPredefined = predefined != 0
	t.IsActive = active != 0
	t.CreatedAt = time.Unix(createdAt, 0)
	return &t, nil
}

func collectTokens(rows *sql.Rows) ([]*Token, error) {
	var out []*Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
