package database

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// GetValue returns the value stored under key and whether it exists.
func (d *Database) GetValue(ctx context.Context, key string) (string, bool, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("kv_get", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var value string
	err = d.db.QueryRowContext(ctx, "SELECT value FROM kv_store WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// SetValue stores value under key, replacing any previous value.
func (d *Database) SetValue(ctx context.Context, key, value string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("kv_set", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, strftime('%s', 'now'))
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value)
	return err
}

// DeleteValue removes key. It reports whether a value was present.
func (d *Database) DeleteValue(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("kv_delete", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := d.db.ExecContext(ctx, "DELETE FROM kv_store WHERE key = ?", key)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
