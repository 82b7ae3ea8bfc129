// Package storage - System configuration key/value operations.
package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// seedSystemConfig writes default system_config rows without touching
// existing values.
func (s *Storage) seedSystemConfig() error {
	defaults := []struct {
		key, value, description string
	}{
		{"db_version", "1", "Schema version"},
		{"history_cache_enabled", "true", "Whether history caching is active"},
		{"history_retention_years", "3", "History retention window in years"},
	}

	for _, d := range defaults {
		_, err := s.db.Exec(`
			INSERT INTO system_config (config_key, config_value, description, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(config_key) DO NOTHING
		`, d.key, d.value, d.description, time.Now().Unix())
		if err != nil {
			return fmt.Errorf("failed to seed system config: %w", err)
		}
	}
	return nil
}

// SetConfig writes a system_config value.
func (s *Storage) SetConfig(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO system_config (config_key, config_value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(config_key) DO UPDATE SET
			config_value = excluded.config_value,
			updated_at = excluded.updated_at
	`, key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to set config: %w", err)
	}
	return nil
}

// GetConfig reads a system_config value.
func (s *Storage) GetConfig(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRow(`
		SELECT config_value FROM system_config WHERE config_key = ?
	`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get config: %w", err)
	}
	return value, nil
}
