package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

const schema = `
CREATE TABLE IF NOT EXISTS status_cache (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS muted_channels (
	channel  TEXT PRIMARY KEY,
	muted_at TEXT NOT NULL
);`

// Open opens the sqlite database at path and makes sure the schema exists.
// ":memory:" is accepted; the pool is pinned to one connection so the
// in-memory database lives as long as the returned handle.
func Open(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(0)

	if err := EnsureSchema(conn); err != nil {
		conn.Close()
		return nil, err
	}

	log.Info().Str("path", path).Msg("Database ready")
	return conn, nil
}

func EnsureSchema(conn *sql.DB) error {
	if _, err := conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SeedMutedChannels marks the configured quiet channels as muted. Channels
// that are already muted keep their original timestamp.
func SeedMutedChannels(conn *sql.DB, channels []string) error {
	if len(channels) == 0 {
		return nil
	}

	tx, err := StartTransaction(conn)
	if err != nil {
		return err
	}
	defer RollbackTransaction(tx)

	now := time.Now().UTC().Format(time.RFC3339)
	for _, ch := range channels {
		_, err = tx.Exec(`INSERT OR IGNORE INTO muted_channels (channel, muted_at) VALUES (?, ?)`, ch, now)
		if err != nil {
			return fmt.Errorf("failed to seed muted channel %s: %w", ch, err)
		}
	}

	if err := CommitTransaction(tx); err != nil {
		return err
	}
	log.Info().Strs("channels", channels).Msg("Seeded muted channels")
	return nil
}
