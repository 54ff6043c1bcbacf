// Package cache keeps the last reported status messages behind a single lock.
package cache

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/space-status/internal/model"
)

const (
	KeyDefault     = "message_default"
	KeyHuman       = "message_human"
	KeyRaw         = "message_raw"
	KeyTimeFetched = "time_fetched"

	// NotSetMessage is served for a message that was never written.
	NotSetMessage = "no status yet"
	// NoStatusMessage replaces empty messages on write.
	NoStatusMessage = "No status available yet."
)

var Keys = []string{KeyDefault, KeyHuman, KeyRaw, KeyTimeFetched}

// Backing is the key/value store the cache persists through.
type Backing interface {
	Read(key string) (value string, ok bool, err error)
	Write(key, value string) error
}

// BatchWriter is implemented by backings that can write several keys atomically.
type BatchWriter interface {
	WriteAll(values map[string]string) error
}

type IOError struct {
	Op  string
	Key string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("cache %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

type Cache struct {
	mu    sync.Mutex
	store Backing
}

func New(store Backing) *Cache {
	return &Cache{store: store}
}

func (c *Cache) GetAll() (model.CacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readLocked()
}

// SetAll writes all four fields as a unit. A nil entry is a no-op and an entry
// whose messages match the cached ones is not written again.
func (c *Cache) SetAll(entry *model.CacheEntry) error {
	if entry == nil {
		return nil
	}

	next := *entry
	next.Default = orNoStatus(next.Default)
	next.Human = orNoStatus(next.Human)
	next.Raw = orNoStatus(next.Raw)

	c.mu.Lock()
	defer c.mu.Unlock()

	existing, err := c.readLocked()
	if err != nil {
		return err
	}
	if existing.SameMessages(next) {
		log.Debug().Msg("Cached status unchanged, skipping write")
		return nil
	}

	values := map[string]string{
		KeyDefault:     next.Default,
		KeyHuman:       next.Human,
		KeyRaw:         next.Raw,
		KeyTimeFetched: strconv.FormatInt(next.TimeFetched, 10),
	}
	if err := c.writeLocked(values); err != nil {
		return err
	}

	log.Debug().Str("default", next.Default).Msg("Updated cached status")
	return nil
}

// Touch records a successful fetch without touching the messages.
func (c *Cache) Touch(fetched time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Write(KeyTimeFetched, strconv.FormatInt(fetched.Unix(), 10)); err != nil {
		return &IOError{Op: "write", Key: KeyTimeFetched, Err: err}
	}
	return nil
}

// Age reports how long ago the cached status was fetched. A cache that was
// never fetched reports ok=false.
func (c *Cache) Age(now time.Time) (age time.Duration, ok bool, err error) {
	entry, err := c.GetAll()
	if err != nil {
		return 0, false, err
	}
	if entry.TimeFetched == 0 {
		return 0, false, nil
	}
	return now.Sub(time.Unix(entry.TimeFetched, 0)), true, nil
}

func (c *Cache) readLocked() (model.CacheEntry, error) {
	var entry model.CacheEntry
	fields := []struct {
		key string
		dst *string
	}{
		{KeyDefault, &entry.Default},
		{KeyHuman, &entry.Human},
		{KeyRaw, &entry.Raw},
	}
	for _, f := range fields {
		v, ok, err := c.store.Read(f.key)
		if err != nil {
			return model.CacheEntry{}, &IOError{Op: "read", Key: f.key, Err: err}
		}
		if !ok || v == "" {
			v = NotSetMessage
		}
		*f.dst = v
	}

	v, ok, err := c.store.Read(KeyTimeFetched)
	if err != nil {
		return model.CacheEntry{}, &IOError{Op: "read", Key: KeyTimeFetched, Err: err}
	}
	if ok && v != "" {
		ts, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			log.Warn().Err(err).Str("value", v).Msg("Ignoring malformed cached fetch time")
		} else {
			entry.TimeFetched = ts
		}
	}
	return entry, nil
}

func (c *Cache) writeLocked(values map[string]string) error {
	if bw, ok := c.store.(BatchWriter); ok {
		if err := bw.WriteAll(values); err != nil {
			return &IOError{Op: "write", Key: "*", Err: err}
		}
		return nil
	}
	for _, key := range Keys {
		if err := c.store.Write(key, values[key]); err != nil {
			return &IOError{Op: "write", Key: key, Err: err}
		}
	}
	return nil
}

func orNoStatus(s string) string {
	if s == "" {
		return NoStatusMessage
	}
	return s
}
