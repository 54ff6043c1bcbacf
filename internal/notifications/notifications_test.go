package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/space-status/internal/model"
)

type published struct {
	Topic    string `json:"topic"`
	Title    string `json:"title"`
	Message  string `json:"message"`
	Priority int    `json:"priority"`
}

type fakeNtfy struct {
	mu       sync.Mutex
	received []published
	failFor  string
}

func (f *fakeNtfy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var p published
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if p.Topic == f.failFor {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
		return
	}
	f.mu.Lock()
	f.received = append(f.received, p)
	f.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

type memMutes struct {
	muted map[string]bool
	err   error
}

func (m *memMutes) IsMuted(ch string) (bool, error) { return m.muted[ch], m.err }
func (m *memMutes) Mute(ch string) error          { m.muted[ch] = true; return m.err }
func (m *memMutes) Unmute(ch string) error        { delete(m.muted, ch); return m.err }

func newTestBroadcaster(t *testing.T, useNotice bool, mutes MuteStore, channels ...string) (*Broadcaster, *fakeNtfy) {
	ntfy := &fakeNtfy{}
	srv := httptest.NewServer(ntfy)
	t.Cleanup(srv.Close)
	b := New(Options{Server: srv.URL, Channels: channels, UseNotice: useNotice}, mutes)
	return b, ntfy
}

var msgs = &model.Messages{Default: "HacDC is open since 06:00PM Monday 20 Jan"}

func TestAnnounce_DirectPriority(t *testing.T) {
	b, ntfy := newTestBroadcaster(t, false, nil, "#hacdc", "#members")

	require.NoError(t, b.Announce(context.Background(), msgs))
	require.Len(t, ntfy.received, 2)
	assert.Equal(t, "hacdc", ntfy.received[0].Topic)
	assert.Equal(t, "members", ntfy.received[1].Topic)
	assert.Equal(t, PriorityDirect, ntfy.received[0].Priority)
	assert.Equal(t, msgs.Default, ntfy.received[0].Message)
	assert.Equal(t, "HacDC status", ntfy.received[0].Title)
}

func TestAnnounce_NoticePriority(t *testing.T) {
	b, ntfy := newTestBroadcaster(t, true, nil, "#hacdc")
	require.NoError(t, b.Announce(context.Background(), msgs))
	require.Len(t, ntfy.received, 1)
	assert.Equal(t, PriorityNotice, ntfy.received[0].Priority)
}

func TestAnnounce_SkipsMutedChannels(t *testing.T) {
	mutes := &memMutes{muted: map[string]bool{"#members": true}}
	b, ntfy := newTestBroadcaster(t, false, mutes, "#hacdc", "#members")

	require.NoError(t, b.Announce(context.Background(), msgs))
	require.Len(t, ntfy.received, 1)
	assert.Equal(t, "hacdc", ntfy.received[0].Topic)
}

func TestAnnounce_NilMessages(t *testing.T) {
	b, ntfy := newTestBroadcaster(t, false, nil, "#hacdc")
	require.NoError(t, b.Announce(context.Background(), nil))
	assert.Empty(t, ntfy.received)
}

func TestAnnounce_FailingChannelDoesNotStopOthers(t *testing.T) {
	b, ntfy := newTestBroadcaster(t, false, nil, "#broken", "#hacdc")
	ntfy.failFor = "broken"

	err := b.Announce(context.Background(), msgs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	require.Len(t, ntfy.received, 1)
	assert.Equal(t, "hacdc", ntfy.received[0].Topic)
}

func TestAnnounce_MuteStoreErrorStillAnnounces(t *testing.T) {
	mutes := &memMutes{muted: map[string]bool{}, err: errors.New("database is locked")}
	b, ntfy := newTestBroadcaster(t, false, mutes, "#hacdc")
	require.NoError(t, b.Announce(context.Background(), msgs))
	assert.Len(t, ntfy.received, 1)
}

func TestSetUpdates(t *testing.T) {
	mutes := &memMutes{muted: map[string]bool{}}
	b, _ := newTestBroadcaster(t, false, mutes, "#hacdc")

	on, err := b.UpdatesEnabled("#hacdc")
	require.NoError(t, err)
	assert.True(t, on)

	require.NoError(t, b.SetUpdates("#hacdc", false))
	on, err = b.UpdatesEnabled("#hacdc")
	require.NoError(t, err)
	assert.False(t, on)

	require.NoError(t, b.SetUpdates("#hacdc", true))
	on, _ = b.UpdatesEnabled("#hacdc")
	assert.True(t, on)
}

func TestSetUpdates_WithoutStore(t *testing.T) {
	b, _ := newTestBroadcaster(t, false, nil, "#hacdc")
	assert.ErrorIs(t, b.SetUpdates("#hacdc", false), ErrNoMuteStore)
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "hacdc", Topic("#hacdc"))
	assert.Equal(t, "hacdc", Topic("##hacdc"))
	assert.Equal(t, "hacdc-alerts", Topic("hacdc-alerts"))
}

func TestAlerter(t *testing.T) {
	mutes := &memMutes{muted: map[string]bool{"#ops": true}}
	b, ntfy := newTestBroadcaster(t, true, mutes, "#hacdc")

	require.NoError(t, b.Alerter("#ops").Send("Sensor Failure", "[HacDC Sensor Offline] 100 failed fetches in a row"))
	require.Len(t, ntfy.received, 1)
	assert.Equal(t, "ops", ntfy.received[0].Topic)
	assert.Equal(t, PriorityAlert, ntfy.received[0].Priority)
	assert.Equal(t, "Sensor Failure", ntfy.received[0].Title)

	require.NoError(t, b.Alerter("").Send("Sensor Failure", "dropped"))
	assert.Len(t, ntfy.received, 1)
}
