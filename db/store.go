package db

import (
	"database/sql"
	"time"
)

// KVStore backs the status cache with the status_cache table.
type KVStore struct {
	conn *sql.DB
}

func NewKVStore(conn *sql.DB) *KVStore {
	return &KVStore{conn: conn}
}

func (s *KVStore) Read(key string) (string, bool, error) {
	return ReadValue(s.conn, key)
}

func (s *KVStore) Write(key, value string) error {
	return WriteValue(s.conn, key, value)
}

func (s *KVStore) WriteAll(values map[string]string) error {
	return WriteValues(s.conn, values)
}

// Channels persists which channels have status updates turned off.
type Channels struct {
	conn *sql.DB
	now  func() time.Time
}

func NewChannels(conn *sql.DB) *Channels {
	return &Channels{conn: conn, now: time.Now}
}

func (c *Channels) IsMuted(channel string) (bool, error) {
	return IsMuted(c.conn, channel)
}

func (c *Channels) Mute(channel string) error {
	return MuteChannel(c.conn, channel, c.now())
}

func (c *Channels) Unmute(channel string) error {
	return UnmuteChannel(c.conn, channel)
}
