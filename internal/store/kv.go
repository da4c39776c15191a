package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/haasonsaas/sheetflow/internal/db"
)

// ConfigStore persists key-value configuration. Global keys live in
// config_kv; when a user identity is bound, reads check the per-user table
// first and fall back to the global value.
type ConfigStore struct {
	db     *db.DB
	userID string
}

// NewConfigStore creates a config store.
func NewConfigStore(d *db.DB, userID string) *ConfigStore {
	return &ConfigStore{db: d, userID: userID}
}

// Set writes a key. With a bound user identity the write goes to the
// per-user table; otherwise to the global table.
func (s *ConfigStore) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return fmt.Errorf("config key is required")
	}
	var err error
	if s.userID != "" {
		_, err = s.db.Exec(ctx, `
			INSERT OR REPLACE INTO user_config_kv (user_id, key, value, updated_at)
			VALUES (?, ?, ?, ?)`, s.userID, key, value, nowUTC())
	} else {
		_, err = s.db.Exec(ctx, `
			INSERT OR REPLACE INTO config_kv (key, value, updated_at)
			VALUES (?, ?, ?)`, key, value, nowUTC())
	}
	if err != nil {
		return fmt.Errorf("failed to set config key: %w", err)
	}
	return nil
}

// Get reads a key, preferring the per-user value. Returns ("", false, nil)
// when the key is unset.
func (s *ConfigStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s.userID != "" {
		var value string
		err := s.db.QueryRow(ctx,
			`SELECT value FROM user_config_kv WHERE user_id = ? AND key = ?`,
			s.userID, key).Scan(&value)
		if err == nil {
			return value, true, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", false, fmt.Errorf("failed to get user config key: %w", err)
		}
	}

	var value string
	err := s.db.QueryRow(ctx,
		`SELECT value FROM config_kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get config key: %w", err)
	}
	return value, true, nil
}

// Delete removes a key from the scope's table.
func (s *ConfigStore) Delete(ctx context.Context, key string) error {
	var err error
	if s.userID != "" {
		_, err = s.db.Exec(ctx,
			`DELETE FROM user_config_kv WHERE user_id = ? AND key = ?`, s.userID, key)
	} else {
		_, err = s.db.Exec(ctx, `DELETE FROM config_kv WHERE key = ?`, key)
	}
	if err != nil {
		return fmt.Errorf("failed to delete config key: %w", err)
	}
	return nil
}
