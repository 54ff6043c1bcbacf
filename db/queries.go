package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ReadValue returns the cached value for key. A missing key is not an error.
func ReadValue(db *sql.DB, key string) (string, bool, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM status_cache WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, true, nil
}

// ReadAllValues returns every cached key, used by the debug CLI.
func ReadAllValues(db *sql.DB) (map[string]string, error) {
	rows, err := db.Query(`SELECT key, value FROM status_cache`)
	if err != nil {
		return nil, fmt.Errorf("failed to query status cache: %w", err)
	}
	defer rows.Close()

	values := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan cache row: %w", err)
		}
		values[k] = v
	}
	return values, rows.Err()
}

func IsMuted(db *sql.DB, channel string) (bool, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM muted_channels WHERE channel = ?`, channel).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check channel %s: %w", channel, err)
	}
	return n > 0, nil
}

type MutedChannel struct {
	Channel string
	MutedAt time.Time
}

func GetMutedChannels(db *sql.DB) ([]MutedChannel, error) {
	rows, err := db.Query(`SELECT channel, muted_at FROM muted_channels ORDER BY channel`)
	if err != nil {
		return nil, fmt.Errorf("failed to query muted channels: %w", err)
	}
	defer rows.Close()

	var out []MutedChannel
	for rows.Next() {
		var m MutedChannel
		var mutedAt string
		if err := rows.Scan(&m.Channel, &mutedAt); err != nil {
			return nil, fmt.Errorf("failed to scan muted channel: %w", err)
		}
		m.MutedAt, _ = time.Parse(time.RFC3339, mutedAt)
		out = append(out, m)
	}
	return out, rows.Err()
}
