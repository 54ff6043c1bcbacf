// Package status answers status queries from the cache, refreshing it first
// when it has gone stale.
package status

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/space-status/internal/model"
)

const (
	FormatDefault = "default"
	FormatHuman   = "human"
	FormatRaw     = "raw"

	// NoStatusReply is served when the cache cannot be read.
	NoStatusReply = "No status is available yet."
	// UnknownFormatReply is the user-facing text for ErrUnknownFormat.
	UnknownFormatReply = "I'm sorry, I'm afraid I can't do that."

	DefaultParkedMessage = "Status reporting is parked."
)

var ErrUnknownFormat = errors.New(UnknownFormatReply)

var Formats = []string{FormatDefault, FormatHuman, FormatRaw}

type Reader interface {
	GetAll() (model.CacheEntry, error)
}

type Refresher interface {
	Refresh(ctx context.Context) bool
}

type Options struct {
	// MaxAge triggers a synchronous refresh before reading when the cached
	// status is older. Zero disables the check.
	MaxAge        time.Duration
	Parked        bool
	ParkedMessage string
}

type Service struct {
	reader    Reader
	refresher Refresher
	maxAge    time.Duration
	parked    bool
	parkedMsg string
	now       func() time.Time
}

func New(opts Options, reader Reader, refresher Refresher) *Service {
	if opts.ParkedMessage == "" {
		opts.ParkedMessage = DefaultParkedMessage
	}
	return &Service{
		reader:    reader,
		refresher: refresher,
		maxAge:    opts.MaxAge,
		parked:    opts.Parked,
		parkedMsg: opts.ParkedMessage,
		now:       time.Now,
	}
}

// Status renders the cached status in the requested format. An empty format
// means FormatDefault.
func (s *Service) Status(ctx context.Context, format string) (string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = FormatDefault
	}
	if !validFormat(format) {
		log.Debug().Str("format", format).Msg("Unknown status format requested")
		return UnknownFormatReply, ErrUnknownFormat
	}
	if s.parked {
		return s.parkedMsg, nil
	}

	entry, err := s.Entry(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read cached status")
		return NoStatusReply, nil
	}

	var msg string
	switch format {
	case FormatHuman:
		msg = entry.Human
	case FormatRaw:
		msg = entry.Raw
	default:
		msg = entry.Default
	}
	if msg == "" {
		msg = NoStatusReply
	}
	return msg, nil
}

// Entry returns the full cached entry, refreshing it first when stale. While
// parked every message field holds the parked message.
func (s *Service) Entry(ctx context.Context) (model.CacheEntry, error) {
	if s.parked {
		return s.parkedEntry(), nil
	}

	entry, err := s.reader.GetAll()
	if err != nil {
		return model.CacheEntry{}, err
	}
	if !s.stale(entry) {
		return entry, nil
	}

	log.Info().
		Int64("time_fetched", entry.TimeFetched).
		Dur("max_age", s.maxAge).
		Msg("Cached status is stale, refreshing")
	if s.refresher != nil {
		s.refresher.Refresh(ctx)
	}
	return s.reader.GetAll()
}

func (s *Service) parkedEntry() model.CacheEntry {
	entry, err := s.reader.GetAll()
	if err != nil {
		log.Debug().Err(err).Msg("Parked, cached fetch time unavailable")
		entry = model.CacheEntry{}
	}
	entry.Default = s.parkedMsg
	entry.Human = s.parkedMsg
	entry.Raw = s.parkedMsg
	return entry
}

func (s *Service) Parked() bool {
	return s.parked
}

func (s *Service) stale(entry model.CacheEntry) bool {
	if s.maxAge <= 0 {
		return false
	}
	age := s.now().Sub(time.Unix(entry.TimeFetched, 0))
	return age > s.maxAge
}

func validFormat(format string) bool {
	for _, f := range Formats {
		if f == format {
			return true
		}
	}
	return false
}
