package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type SettingsRepository struct {
	db *DB
}

func (r *SettingsRepository) Get(ctx context.Context, key string) (string, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var value string
	err := r.db.conn.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: setting %q", ErrNotFound, key)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read setting %q: %w", key, err)
	}

	return value, nil
}

func (r *SettingsRepository) Set(ctx context.Context, key, value string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	_, err := r.db.conn.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to write setting %q: %w", key, err)
	}

	return nil
}
