package database

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const lastStartupKey = "last_startup"

// GetMetadata retrieves a metadata value by key. It returns sql.ErrNoRows
// when the key does not exist.
func (d *Database) GetMetadata(ctx context.Context, key string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var value string
	err := d.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err != nil {
		return "", err
	}
	return value, nil
}

// SetMetadata sets a metadata key-value pair.
func (d *Database) SetMetadata(ctx context.Context, key, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// MarkStartup records the service start time.
func (d *Database) MarkStartup(ctx context.Context, t time.Time) error {
	return d.SetMetadata(ctx, lastStartupKey, t.UTC().Format(time.RFC3339))
}

// LastStartup returns the recorded start time, or the zero time if none.
func (d *Database) LastStartup(ctx context.Context) (time.Time, error) {
	value, err := d.GetMetadata(ctx, lastStartupKey)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && value == "") {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, value)
}
