// Package health watches fetch outcomes and raises an alert when the sensor
// endpoint stops answering, and again when it comes back.
package health

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/space-status/internal/datadog"
	"github.com/thatsimonsguy/space-status/internal/model"
)

const DefaultMaxFailures = 100

// Notifier interface for sending alerts
type Notifier interface {
	Send(title, message string) error
}

type Options struct {
	// MaxFailures is the number of consecutive failed fetches before the
	// sensor is considered offline.
	MaxFailures int
	SpaceName   string
}

type Snapshot struct {
	Offline      bool      `json:"offline"`
	Failures     int       `json:"consecutive_failures"`
	LastGood     time.Time `json:"last_good"`
	OfflineSince time.Time `json:"offline_since,omitempty"`
}

type Tracker struct {
	mu           sync.Mutex
	failures     int
	offline      bool
	offlineSince time.Time
	lastGood     time.Time

	maxFailures int
	spaceName   string
	notifier    Notifier
}

func New(opts Options, notifier Notifier) *Tracker {
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = DefaultMaxFailures
	}
	if opts.SpaceName == "" {
		opts.SpaceName = model.DefaultSpaceName
	}
	return &Tracker{
		maxFailures: opts.MaxFailures,
		spaceName:   opts.SpaceName,
		notifier:    notifier,
	}
}

// Observe records the outcome of one fetch.
func (t *Tracker) Observe(fetchOK bool, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if fetchOK {
		t.lastGood = at
		t.failures = 0
		if t.offline {
			t.offline = false
			down := at.Sub(t.offlineSince)
			log.Info().Dur("downtime", down).Msg("Sensor endpoint recovered")
			t.send("Sensor Recovery", fmt.Sprintf("[%s Sensor Recovered] reporting again after %s", t.spaceName, down.Round(time.Second)))
		}
		datadog.Gauge("status.sensor.offline", 0)
		return
	}

	t.failures++
	if t.failures < t.maxFailures || t.offline {
		return
	}

	t.offline = true
	t.offlineSince = at
	datadog.Gauge("status.sensor.offline", 1)

	last := "never"
	if !t.lastGood.IsZero() {
		last = t.lastGood.Format(time.RFC3339)
	}
	log.Error().
		Int("failures", t.failures).
		Str("last_good", last).
		Msg("Sensor endpoint is offline")
	t.send("Sensor Failure", fmt.Sprintf("[%s Sensor Offline] %d failed fetches in a row, last good: %s", t.spaceName, t.failures, last))
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		Offline:      t.offline,
		Failures:     t.failures,
		LastGood:     t.lastGood,
		OfflineSince: t.offlineSince,
	}
}

func (t *Tracker) send(title, message string) {
	if t.notifier == nil {
		return
	}
	if err := t.notifier.Send(title, message); err != nil {
		log.Error().Err(err).Str("title", title).Msg("Failed to send sensor health notification")
	}
}
