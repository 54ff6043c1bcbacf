package model

import (
	"fmt"
	"strings"
	"time"
)

// SummaryField is the subject sensor that carries the overall open/closed state.
const SummaryField = "lights"

const (
	DefaultSpaceName = "HacDC"
	UnknownDate      = "date unknown"

	// changedLayout renders as e.g. 12:17AM Monday 20 Jan.
	changedLayout = "03:04PM Monday 02 Jan"
)

type Messages struct {
	Default     string `json:"default"`
	Human       string `json:"human"`
	Raw         string `json:"raw"`
	ChangedAt   int64  `json:"changed_at"`
	TimeFetched int64  `json:"time_fetched"`
}

// Entry converts the messages into a cache entry stamped with the fetch time.
func (m Messages) Entry(fetched time.Time) CacheEntry {
	return CacheEntry{
		Default:     m.Default,
		Human:       m.Human,
		Raw:         m.Raw,
		TimeFetched: fetched.Unix(),
	}
}

type CacheEntry struct {
	Default     string `json:"default"`
	Human       string `json:"human"`
	Raw         string `json:"raw"`
	TimeFetched int64  `json:"time_fetched"`
}

// SameMessages compares the message fields, ignoring the fetch time.
func (e CacheEntry) SameMessages(other CacheEntry) bool {
	return e.Default == other.Default && e.Human == other.Human && e.Raw == other.Raw
}

// Reading is one parsed upload. It is not mutated after NewReading returns.
type Reading struct {
	ChangedAt *time.Time        `json:"changed_at"`
	Sensors   map[string]Sensor `json:"sensors"`
	Subject   map[string]Sensor `json:"subject"`
	Raw       string            `json:"raw"`
	Messages  Messages          `json:"messages"`
}

func NewReading(changedAt *time.Time, sensors, subject []Sensor, raw, spaceName string) *Reading {
	if spaceName == "" {
		spaceName = DefaultSpaceName
	}

	r := &Reading{
		Sensors: make(map[string]Sensor, len(sensors)),
		Subject: make(map[string]Sensor, len(subject)),
		Raw:     raw,
	}
	if changedAt != nil {
		t := *changedAt
		r.ChangedAt = &t
	}
	for _, s := range sensors {
		r.Sensors[s.ID] = s
	}
	for _, s := range subject {
		r.Subject[s.ID] = s
	}

	r.Messages = Messages{
		Default: renderDefault(spaceName, r.Summary(), r.ChangedAt),
		Human:   renderHuman(sensors),
		Raw:     raw,
	}
	if r.ChangedAt != nil {
		r.Messages.ChangedAt = r.ChangedAt.Unix()
	}
	return r
}

func (r *Reading) Summary() State {
	return r.Subject[SummaryField].State
}

// SameState reports whether both readings carry the same summary state.
func (r *Reading) SameState(other *Reading) bool {
	return r.Summary() == other.Summary()
}

// Compare orders readings by ChangedAt. ok is false when either timestamp is missing.
func (r *Reading) Compare(other *Reading) (cmp int, ok bool) {
	if r.ChangedAt == nil || other.ChangedAt == nil {
		return 0, false
	}
	switch {
	case r.ChangedAt.Before(*other.ChangedAt):
		return -1, true
	case r.ChangedAt.After(*other.ChangedAt):
		return 1, true
	default:
		return 0, true
	}
}

func (r *Reading) NotOlderThan(other *Reading) bool {
	cmp, ok := r.Compare(other)
	return ok && cmp >= 0
}

func (r *Reading) String() string {
	changed := "nil"
	if r.ChangedAt != nil {
		changed = r.ChangedAt.Format(time.RFC3339)
	}
	return fmt.Sprintf("{changed_at:%s, summary:%s, default:%q}", changed, r.Summary(), r.Messages.Default)
}

func renderDefault(spaceName string, summary State, changedAt *time.Time) string {
	date := UnknownDate
	if changedAt != nil {
		date = changedAt.Format(changedLayout)
	}

	var word string
	switch summary {
	case StateOn:
		word = "open"
	case StateOff:
		word = "closed"
	default:
		word = "unknown"
	}
	return fmt.Sprintf("%s is %s since %s", spaceName, word, date)
}

func renderHuman(sensors []Sensor) string {
	parts := make([]string, 0, len(sensors))
	for _, s := range sensors {
		if s.Label == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s is %s", s.Label, s.State))
	}
	return strings.Join(parts, ", ")
}
