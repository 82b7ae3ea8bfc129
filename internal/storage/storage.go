// Package storage provides persistent storage using SQLite.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Storage provides persistent storage for the folio daemon.
type Storage struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// Config holds storage configuration.
type Config struct {
	DataDir string
}

// New creates a new Storage instance.
func New(cfg *Config) (*Storage, error) {
	dataDir := expandPath(cfg.DataDir)

	// Ensure directory exists
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "folio.db")

	// Open database
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Storage{
		db:     db,
		dbPath: dbPath,
	}

	// Initialize schema
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *Storage) DB() *sql.DB {
	return s.db
}

// initSchema creates all database tables.
func (s *Storage) initSchema() error {
	schema := `
	-- Supported blockchains, seeded idempotently at startup
	CREATE TABLE IF NOT EXISTS blockchains (
		name TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		rpc_url TEXT,
		explorer_url TEXT,
		chain_type TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1
	);

	-- Tracked wallets, one row per (address, chain)
	-- Creation metadata is filled in lazily from the chain's explorer;
	-- is_estimated marks timestamps that could not be confirmed on-chain.
	CREATE TABLE IF NOT EXISTS wallets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		address TEXT NOT NULL,
		blockchain TEXT NOT NULL,
		wallet_name TEXT,
		notes TEXT,
		creation_timestamp INTEGER,
		creation_date TEXT,
		first_transaction_hash TEXT,
		block_number INTEGER,
		is_estimated INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		UNIQUE(address, blockchain),
		FOREIGN KEY (blockchain) REFERENCES blockchains(name)
	);

	CREATE INDEX IF NOT EXISTS idx_wallets_chain ON wallets(blockchain);

	-- Token catalog: predefined rows seeded at startup, custom rows
	-- added by users. contract is '' for native tokens; NOT NULL keeps
	-- the uniqueness constraint effective (SQLite treats NULLs as
	-- distinct).
	CREATE TABLE IF NOT EXISTS tokens (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		name TEXT NOT NULL,
		blockchain TEXT NOT NULL,
		contract TEXT NOT NULL DEFAULT '',
		decimals INTEGER NOT NULL DEFAULT 18,
		external_price_id TEXT,
		is_predefined INTEGER NOT NULL DEFAULT 0,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL,
		UNIQUE(symbol, blockchain, contract),
		FOREIGN KEY (blockchain) REFERENCES blockchains(name)
	);

	CREATE INDEX IF NOT EXISTS idx_tokens_chain ON tokens(blockchain);
	CREATE INDEX IF NOT EXISTS idx_tokens_symbol ON tokens(symbol);

	-- Assets: a user's interest in a (wallet, token) pair.
	-- Soft-deleted via is_active; rows are never removed while history
	-- references them.
	CREATE TABLE IF NOT EXISTS assets (
		id TEXT PRIMARY KEY,
		wallet_id INTEGER NOT NULL,
		token_id INTEGER NOT NULL,
		tag TEXT,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL,
		updated_at INTEGER,
		UNIQUE(wallet_id, token_id),
		FOREIGN KEY (wallet_id) REFERENCES wallets(id),
		FOREIGN KEY (token_id) REFERENCES tokens(id)
	);

	CREATE INDEX IF NOT EXISTS idx_assets_wallet ON assets(wallet_id);
	CREATE INDEX IF NOT EXISTS idx_assets_token ON assets(token_id);
	CREATE INDEX IF NOT EXISTS idx_assets_active ON assets(is_active);

	-- Hourly price history, one row per (token, aligned hour)
	CREATE TABLE IF NOT EXISTS price_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		token_id INTEGER NOT NULL,
		timestamp INTEGER NOT NULL,
		date TEXT NOT NULL,
		price_usd REAL NOT NULL,
		source TEXT NOT NULL DEFAULT 'live',
		UNIQUE(token_id, timestamp),
		FOREIGN KEY (token_id) REFERENCES tokens(id)
	);

	CREATE INDEX IF NOT EXISTS idx_price_history_token ON price_history(token_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_price_history_time ON price_history(timestamp);

	-- Hourly balance history, one row per (asset, aligned hour)
	CREATE TABLE IF NOT EXISTS balance_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		asset_id TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		date TEXT NOT NULL,
		balance REAL NOT NULL,
		UNIQUE(asset_id, timestamp),
		FOREIGN KEY (asset_id) REFERENCES assets(id)
	);

	CREATE INDEX IF NOT EXISTS idx_balance_history_asset ON balance_history(asset_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_balance_history_time ON balance_history(timestamp);

	-- Portfolio snapshots written by the scheduler
	CREATE TABLE IF NOT EXISTS asset_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		asset_id TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		date TEXT NOT NULL,
		quantity REAL NOT NULL,
		price_usd REAL NOT NULL,
		value_usd REAL NOT NULL,
		UNIQUE(asset_id, timestamp),
		FOREIGN KEY (asset_id) REFERENCES assets(id)
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_asset ON asset_snapshots(asset_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_snapshots_time ON asset_snapshots(timestamp);

	-- Key/value system configuration
	CREATE TABLE IF NOT EXISTS system_config (
		config_key TEXT PRIMARY KEY,
		config_value TEXT NOT NULL,
		description TEXT,
		updated_at INTEGER NOT NULL
	);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	return s.seedSystemConfig()
}

// ReinitSchema drops all tables and recreates them. Administrative
// action; all data is lost.
func (s *Storage) ReinitSchema() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	drop := `
	DROP TABLE IF EXISTS asset_snapshots;
	DROP TABLE IF EXISTS balance_history;
	DROP TABLE IF EXISTS price_history;
	DROP TABLE IF EXISTS assets;
	DROP TABLE IF EXISTS tokens;
	DROP TABLE IF EXISTS wallets;
	DROP TABLE IF EXISTS blockchains;
	DROP TABLE IF EXISTS system_config;
	`
	if _, err := s.db.Exec(drop); err != nil {
		return fmt.Errorf("failed to drop tables: %w", err)
	}

	return s.initSchema()
}

// ClearAll deletes every row from every table while keeping the schema.
func (s *Storage) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"asset_snapshots", "balance_history", "price_history",
		"assets", "tokens", "wallets", "blockchains",
	}
	for _, table := range tables {
		if _, err := s.db.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
// Callers that hit one re-read the existing row instead of failing.
func isUniqueViolation(err error) bool {
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) {
		return sqlErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqlErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
