package updater

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/space-status/internal/model"
)

var ErrMissingSourceURL = errors.New("missing source_url configuration value")

type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type Parser interface {
	Parse(raw string) *model.Reading
}

type Options struct {
	SourceURL string
	// MinChangeInterval, when positive, also requires the new reading to be at
	// least this much newer than the stored one before it is reported.
	MinChangeInterval time.Duration
}

type Updater struct {
	source            string
	minChangeInterval time.Duration
	fetcher           Fetcher
	parser            Parser

	mu          sync.Mutex
	previous    *model.Reading
	current     *model.Reading
	lastFetched time.Time
	now         func() time.Time
}

func New(opts Options, fetcher Fetcher, parser Parser) (*Updater, error) {
	if opts.SourceURL == "" {
		return nil, ErrMissingSourceURL
	}
	return &Updater{
		source:            opts.SourceURL,
		minChangeInterval: opts.MinChangeInterval,
		fetcher:           fetcher,
		parser:            parser,
		now:               time.Now,
	}, nil
}

// Check runs one fetch, parse and compare cycle. It returns the new reading's
// messages when the change is reportable and nil otherwise, including on any
// fetch or parse failure.
func (u *Updater) Check(ctx context.Context) *model.Messages {
	msgs, _ := u.Poll(ctx)
	return msgs
}

// Poll is Check that also returns when this cycle fetched the source. fetched
// is zero when the fetch failed.
func (u *Updater) Poll(ctx context.Context) (msgs *model.Messages, fetched time.Time) {
	u.mu.Lock()
	defer u.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic while checking status")
			msgs = nil
		}
	}()

	raw, err := u.fetcher.Fetch(ctx, u.source)
	if err != nil {
		log.Warn().Err(err).Str("source", u.source).Msg("No status data this cycle")
		return nil, time.Time{}
	}
	fetched = u.now()
	u.lastFetched = fetched

	reading := u.parser.Parse(string(raw))
	if reading == nil {
		log.Warn().Msg("Parser returned no reading")
		return nil, fetched
	}

	log.Debug().
		Stringer("reading", reading).
		Bool("first_run", u.current == nil).
		Msg("Parsed status upload")

	if u.current == nil {
		u.previous = reading
		u.current = reading
		log.Info().Str("status", reading.Messages.Default).Msg("Initial status")
		return copyMessages(reading), fetched
	}

	if !u.isReportable(reading) {
		return nil, fetched
	}

	u.previous = u.current
	u.current = reading
	log.Info().
		Str("status", reading.Messages.Default).
		Str("previous", u.previous.Messages.Default).
		Msg("Status changed")
	return copyMessages(reading), fetched
}

func (u *Updater) isReportable(reading *model.Reading) bool {
	if _, ok := reading.Compare(u.current); !ok {
		log.Debug().Msg("Status timestamp missing, cannot order readings")
		return false
	}
	if !reading.NotOlderThan(u.current) {
		log.Debug().Msg("Ignoring status older than the stored one")
		return false
	}
	if reading.SameState(u.current) {
		return false
	}
	if u.minChangeInterval > 0 && reading.ChangedAt.Sub(*u.current.ChangedAt) < u.minChangeInterval {
		log.Debug().
			Dur("min_change_interval", u.minChangeInterval).
			Msg("Status change inside debounce window")
		return false
	}
	return true
}

func (u *Updater) Current() *model.Reading {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.current
}

func (u *Updater) Previous() *model.Reading {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.previous
}

func (u *Updater) LastFetched() time.Time {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.lastFetched
}

func copyMessages(r *model.Reading) *model.Messages {
	m := r.Messages
	return &m
}
