package db

import (
	"database/sql"
	"fmt"
	"sort"
	"time"
)

// StartTransaction starts a new database transaction.
func StartTransaction(db *sql.DB) (*sql.Tx, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	return tx, nil
}

// CommitTransaction commits the given transaction.
func CommitTransaction(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RollbackTransaction rolls back the given transaction. It is a no-op on a
// transaction that was already committed.
func RollbackTransaction(tx *sql.Tx) {
	tx.Rollback()
}

func writeValueWithTx(tx *sql.Tx, key, value string, at time.Time) error {
	_, err := tx.Exec(`INSERT OR REPLACE INTO status_cache (key, value, updated_at) VALUES (?, ?, ?)`,
		key, value, at.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// WriteValues stores every key/value pair in one transaction.
func WriteValues(db *sql.DB, values map[string]string) error {
	tx, err := StartTransaction(db)
	if err != nil {
		return err
	}
	defer RollbackTransaction(tx)

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	now := time.Now()
	for _, k := range keys {
		if err := writeValueWithTx(tx, k, values[k], now); err != nil {
			return err
		}
	}
	return CommitTransaction(tx)
}

func WriteValue(db *sql.DB, key, value string) error {
	tx, err := StartTransaction(db)
	if err != nil {
		return err
	}
	defer RollbackTransaction(tx)

	if err := writeValueWithTx(tx, key, value, time.Now()); err != nil {
		return err
	}
	return CommitTransaction(tx)
}

func MuteChannel(db *sql.DB, channel string, at time.Time) error {
	_, err := db.Exec(`INSERT OR REPLACE INTO muted_channels (channel, muted_at) VALUES (?, ?)`,
		channel, at.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("mute channel %s: %w", channel, err)
	}
	return nil
}

func UnmuteChannel(db *sql.DB, channel string) error {
	_, err := db.Exec(`DELETE FROM muted_channels WHERE channel = ?`, channel)
	if err != nil {
		return fmt.Errorf("unmute channel %s: %w", channel, err)
	}
	return nil
}
