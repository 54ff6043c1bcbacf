package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/space-status/internal/datadog"
	"github.com/thatsimonsguy/space-status/internal/model"
)

const (
	DefaultServer = "https://ntfy.sh"

	// ntfy priorities: notices go out quietly, direct messages at the default level.
	PriorityNotice = 2
	PriorityDirect = 3
	PriorityAlert  = 4
)

var ErrNoMuteStore = errors.New("no mute store configured")

// MuteStore remembers which channels have status updates turned off.
type MuteStore interface {
	IsMuted(channel string) (bool, error)
	Mute(channel string) error
	Unmute(channel string) error
}

type Options struct {
	Server    string
	Channels  []string
	UseNotice bool
	Title     string
	Timeout   time.Duration
}

// Broadcaster announces status changes to every configured channel, one ntfy
// topic per channel.
type Broadcaster struct {
	client    *http.Client
	server    string
	channels  []string
	useNotice bool
	title     string
	mutes     MuteStore
}

func New(opts Options, mutes MuteStore) *Broadcaster {
	if opts.Server == "" {
		opts.Server = DefaultServer
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Title == "" {
		opts.Title = model.DefaultSpaceName + " status"
	}

	b := &Broadcaster{
		client:    &http.Client{Timeout: opts.Timeout},
		server:    strings.TrimRight(opts.Server, "/"),
		channels:  append([]string(nil), opts.Channels...),
		useNotice: opts.UseNotice,
		title:     opts.Title,
		mutes:     mutes,
	}

	if len(b.channels) == 0 {
		log.Warn().Msg("No notification channels configured - status changes will not be announced")
	} else {
		log.Info().
			Str("server", b.server).
			Strs("channels", b.channels).
			Bool("use_notice", b.useNotice).
			Msg("Ntfy notifications initialized")
	}
	return b
}

// Announce sends the default message to every channel that has updates on.
// A failing channel does not stop delivery to the others.
func (b *Broadcaster) Announce(ctx context.Context, msgs *model.Messages) error {
	if msgs == nil {
		return nil
	}

	priority := PriorityDirect
	if b.useNotice {
		priority = PriorityNotice
	}

	var errs []error
	for _, ch := range b.channels {
		on, err := b.UpdatesEnabled(ch)
		if err != nil {
			log.Warn().Err(err).Str("channel", ch).Msg("Could not read channel updates setting, announcing anyway")
			on = true
		}
		if !on {
			log.Debug().Str("channel", ch).Msg("Updates off, skipping channel")
			continue
		}
		if err := b.Send(ctx, ch, b.title, msgs.Default, priority); err != nil {
			datadog.Incr("status.notifications.failed", "channel:"+ch)
			errs = append(errs, err)
			continue
		}
		datadog.Incr("status.notifications.sent", "channel:"+ch)
	}
	return errors.Join(errs...)
}

// Send publishes one message to the channel's ntfy topic.
func (b *Broadcaster) Send(ctx context.Context, channel, title, message string, priority int) error {
	payload := map[string]interface{}{
		"topic":    Topic(channel),
		"title":    title,
		"message":  message,
		"priority": priority,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.server, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification to %s: %w", channel, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy returned non-success status for %s: %d", channel, resp.StatusCode)
	}

	log.Debug().
		Str("channel", channel).
		Int("priority", priority).
		Int("status", resp.StatusCode).
		Msg("Notification sent successfully")
	return nil
}

// SetUpdates turns status announcements for a channel on or off.
func (b *Broadcaster) SetUpdates(channel string, on bool) error {
	if b.mutes == nil {
		return ErrNoMuteStore
	}
	var err error
	if on {
		err = b.mutes.Unmute(channel)
	} else {
		err = b.mutes.Mute(channel)
	}
	if err != nil {
		return fmt.Errorf("set updates for %s: %w", channel, err)
	}
	log.Info().Str("channel", channel).Bool("updates", on).Msg("Channel updates changed")
	return nil
}

func (b *Broadcaster) UpdatesEnabled(channel string) (bool, error) {
	if b.mutes == nil {
		return true, nil
	}
	muted, err := b.mutes.IsMuted(channel)
	if err != nil {
		return false, err
	}
	return !muted, nil
}

func (b *Broadcaster) Channels() []string {
	return append([]string(nil), b.channels...)
}

// Topic maps a channel name onto an ntfy topic.
func Topic(channel string) string {
	return strings.TrimLeft(channel, "#")
}

// Alerter sends operator alerts to a single channel, ignoring mutes.
type Alerter struct {
	b       *Broadcaster
	channel string
}

func (b *Broadcaster) Alerter(channel string) *Alerter {
	return &Alerter{b: b, channel: channel}
}

func (a *Alerter) Send(title, message string) error {
	if a.channel == "" {
		log.Warn().Str("title", title).Str("message", message).Msg("No alert channel configured, alert not sent")
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.b.client.Timeout)
	defer cancel()
	return a.b.Send(ctx, a.channel, title, message, PriorityAlert)
}
