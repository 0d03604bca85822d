package store

import (
	"database/sql"
	"time"
)

// CursorPoll is the sync_state key holding the last successful poll time.
const CursorPoll = "poll_cursor"

// GetCursor returns the stored value for key and whether it exists.
func (db *DB) GetCursor(key string) (string, bool, error) {
	var v string
	err := db.QueryRow(`SELECT value FROM sync_state WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// SetCursor stores value under key.
func (db *DB) SetCursor(key, value string) error {
	_, err := db.Exec(`
		INSERT INTO sync_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	return err
}
