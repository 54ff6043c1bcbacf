// Package monitor runs the background poll loop that keeps the status cache
// current and announces reportable changes.
package monitor

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/space-status/internal/datadog"
	"github.com/thatsimonsguy/space-status/internal/model"
)

const (
	DefaultConnectDelay = 15 * time.Second
	DefaultInterval     = 3 * time.Second
)

// Checker runs one fetch and compare cycle. *updater.Updater satisfies it.
// Poll returns the time of this cycle's fetch, zero when it failed.
type Checker interface {
	Poll(ctx context.Context) (*model.Messages, time.Time)
	LastFetched() time.Time
	Current() *model.Reading
}

// Store is the part of the status cache the loop writes to.
type Store interface {
	SetAll(entry *model.CacheEntry) error
	Touch(fetched time.Time) error
}

// Announcer is told about every reportable change after it is cached.
type Announcer interface {
	Announce(ctx context.Context, msgs *model.Messages) error
}

// Observer is told whether each cycle's fetch succeeded.
type Observer interface {
	Observe(fetchOK bool, at time.Time)
}

type Options struct {
	ConnectDelay time.Duration
	Interval     time.Duration
	Observer     Observer
	// Parked keeps the cache current but stops announcing changes.
	Parked bool
}

type Monitor struct {
	checker      Checker
	store        Store
	announcers   []Announcer
	observer     Observer
	parked       bool
	connectDelay time.Duration
	interval     time.Duration

	refreshing atomic.Bool

	sleep func(ctx context.Context, d time.Duration) error
}

func New(opts Options, checker Checker, store Store, announcers ...Announcer) *Monitor {
	if opts.ConnectDelay < 0 {
		opts.ConnectDelay = DefaultConnectDelay
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	return &Monitor{
		checker:      checker,
		store:        store,
		announcers:   announcers,
		observer:     opts.Observer,
		parked:       opts.Parked,
		connectDelay: opts.ConnectDelay,
		interval:     opts.Interval,
		sleep:        sleepCtx,
	}
}

// Run polls until ctx is cancelled. Cancellation is observed between cycles;
// a cycle that has started finishes under a context that ignores it.
func (m *Monitor) Run(ctx context.Context) {
	log.Info().
		Dur("connect_delay", m.connectDelay).
		Dur("interval", m.interval).
		Msg("Status monitor starting")

	if err := m.sleep(ctx, m.connectDelay); err != nil {
		log.Info().Msg("Status monitor stopped before first poll")
		return
	}

	for {
		if err := m.sleep(ctx, m.interval); err != nil {
			log.Info().Msg("Status monitor stopped")
			return
		}
		m.Cycle(context.WithoutCancel(ctx))
	}
}

// Refresh runs one cycle synchronously. It returns false without doing
// anything when another forced refresh is already running.
func (m *Monitor) Refresh(ctx context.Context) bool {
	if !m.refreshing.CompareAndSwap(false, true) {
		log.Debug().Msg("Forced refresh already in progress, skipping")
		return false
	}
	defer m.refreshing.Store(false)

	datadog.Incr("status.refresh.forced")
	m.Cycle(ctx)
	return true
}

// Cycle checks for a new status once, caches it and announces it. It reports
// whether the status changed. Panics and errors are logged, never returned.
func (m *Monitor) Cycle(ctx context.Context) (reported bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic in status cycle")
			reported = false
		}
	}()

	msgs, fetched := m.checker.Poll(ctx)
	fetchOK := !fetched.IsZero()
	if last := m.checker.LastFetched(); !last.IsZero() {
		datadog.Gauge("status.fetch.age_seconds", time.Since(last).Seconds())
	}
	if m.observer != nil {
		m.observer.Observe(fetchOK, time.Now())
	}

	if msgs == nil {
		if fetchOK {
			if err := m.store.Touch(fetched); err != nil {
				log.Error().Err(err).Msg("Failed to record fetch time")
			}
		}
		return false
	}

	msgs.TimeFetched = fetched.Unix()
	entry := msgs.Entry(fetched)
	if err := m.store.SetAll(&entry); err != nil {
		log.Error().Err(err).Msg("Failed to cache status")
	}

	datadog.Incr("status.reports")
	if current := m.checker.Current(); current != nil {
		datadog.Gauge("status.open", stateGauge(current.Summary()))
	}

	if m.parked {
		log.Debug().Str("status", msgs.Default).Msg("Parked, not announcing status change")
		return true
	}
	for _, a := range m.announcers {
		if err := a.Announce(ctx, msgs); err != nil {
			log.Warn().Err(err).Msg("Failed to announce status change")
		}
	}
	return true
}

func stateGauge(s model.State) float64 {
	switch s {
	case model.StateOn:
		return 1
	case model.StateOff:
		return 0
	default:
		return -1
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
