package updater

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/space-status/internal/model"
	"github.com/thatsimonsguy/space-status/internal/parser"
)

type step struct {
	body string
	err  error
}

type scriptedFetcher struct {
	steps []step
	calls int
}

func (f *scriptedFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	s := f.steps[f.calls%len(f.steps)]
	f.calls++
	if s.err != nil {
		return nil, s.err
	}
	return []byte(s.body), nil
}

type panicParser struct{}

func (panicParser) Parse(string) *model.Reading { panic("boom") }

func upload(date, lights string) string {
	s := "subject=Lights=" + lights + "\nbody=FA3=" + lights
	if date != "" {
		s = "date=" + date + "\n" + s
	}
	return s
}

func newTestUpdater(t *testing.T, minInterval time.Duration, steps ...step) (*Updater, *scriptedFetcher) {
	f := &scriptedFetcher{steps: steps}
	u, err := New(Options{SourceURL: "http://sensor.test/OccSensor.txt", MinChangeInterval: minInterval}, f, parser.New(parser.Options{Location: time.UTC}))
	require.NoError(t, err)
	return u, f
}

func TestNew_MissingSourceURL(t *testing.T) {
	u, err := New(Options{}, &scriptedFetcher{}, parser.New(parser.Options{}))
	assert.Nil(t, u)
	assert.ErrorIs(t, err, ErrMissingSourceURL)
}

func TestCheck_FirstRunAlwaysReports(t *testing.T) {
	u, _ := newTestUpdater(t, 0, step{body: upload("Monday,_Jan_20_at_12:17_AM", "false")})

	msgs := u.Check(context.Background())
	require.NotNil(t, msgs)
	assert.Contains(t, msgs.Default, "closed")
	assert.Same(t, u.Current(), u.Previous())
	assert.False(t, u.LastFetched().IsZero())
}

func TestCheck_FirstRunWithoutTimestampStillReports(t *testing.T) {
	u, _ := newTestUpdater(t, 0, step{body: upload("", "true")})
	msgs := u.Check(context.Background())
	require.NotNil(t, msgs)
	assert.Contains(t, msgs.Default, model.UnknownDate)
}

func TestCheck_FlapSuppression(t *testing.T) {
	u, _ := newTestUpdater(t, 0,
		step{body: upload("Monday,_Jan_20_at_12:17_AM", "false")},
		step{body: upload("Monday,_Jan_20_at_12:30_AM", "false")},
		step{body: upload("Monday,_Jan_20_at_12:45_AM", "false")},
	)

	reports := 0
	for i := 0; i < 3; i++ {
		if u.Check(context.Background()) != nil {
			reports++
		}
	}
	assert.Equal(t, 1, reports)
	assert.Equal(t, 0, u.Current().ChangedAt.Hour())
	assert.Equal(t, 17, u.Current().ChangedAt.Minute())
}

func TestCheck_ReportsStateChange(t *testing.T) {
	u, _ := newTestUpdater(t, 0,
		step{body: upload("Monday,_Jan_20_at_12:17_AM", "false")},
		step{body: upload("Monday,_Jan_20_at_06:00_PM", "true")},
	)

	first := u.Check(context.Background())
	require.NotNil(t, first)
	firstReading := u.Current()

	second := u.Check(context.Background())
	require.NotNil(t, second)
	assert.Contains(t, second.Default, "open")
	assert.Same(t, firstReading, u.Previous())
	assert.Equal(t, model.StateOn, u.Current().Summary())
}

func TestCheck_SameTimestampDifferentStateReports(t *testing.T) {
	u, _ := newTestUpdater(t, 0,
		step{body: upload("Monday,_Jan_20_at_12:17_AM", "false")},
		step{body: upload("Monday,_Jan_20_at_12:17_AM", "true")},
	)
	u.Check(context.Background())
	assert.NotNil(t, u.Check(context.Background()))
}

func TestCheck_OlderReadingIgnored(t *testing.T) {
	u, _ := newTestUpdater(t, 0,
		step{body: upload("Monday,_Jan_20_at_06:00_PM", "false")},
		step{body: upload("Monday,_Jan_20_at_12:17_AM", "true")},
	)
	u.Check(context.Background())
	assert.Nil(t, u.Check(context.Background()))
	assert.Equal(t, model.StateOff, u.Current().Summary())
}

func TestCheck_MissingTimestampIsIndeterminate(t *testing.T) {
	u, _ := newTestUpdater(t, 0,
		step{body: upload("Monday,_Jan_20_at_12:17_AM", "false")},
		step{body: upload("", "true")},
		step{body: upload("not a date", "true")},
	)
	u.Check(context.Background())
	assert.Nil(t, u.Check(context.Background()))
	assert.Nil(t, u.Check(context.Background()))
	assert.Equal(t, model.StateOff, u.Current().Summary())
}

func TestCheck_FetchFailureIsNoReport(t *testing.T) {
	u, f := newTestUpdater(t, 0,
		step{err: errors.New("connection refused")},
		step{body: upload("Monday,_Jan_20_at_12:17_AM", "false")},
	)

	assert.Nil(t, u.Check(context.Background()))
	assert.Nil(t, u.Current())
	assert.True(t, u.LastFetched().IsZero())

	// still in the first-run state
	assert.NotNil(t, u.Check(context.Background()))
	assert.Equal(t, 2, f.calls)
}

func TestCheck_ParserPanicIsNoReport(t *testing.T) {
	f := &scriptedFetcher{steps: []step{{body: "anything"}}}
	u, err := New(Options{SourceURL: "http://sensor.test"}, f, panicParser{})
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		assert.Nil(t, u.Check(context.Background()))
	})
}

func TestCheck_MinChangeInterval(t *testing.T) {
	u, _ := newTestUpdater(t, time.Hour,
		step{body: upload("Monday,_Jan_20_at_12:17_AM", "false")},
		step{body: upload("Monday,_Jan_20_at_12:30_AM", "true")},
		step{body: upload("Monday,_Jan_20_at_01:17_AM", "true")},
	)

	require.NotNil(t, u.Check(context.Background()))
	assert.Nil(t, u.Check(context.Background()), "inside debounce window")
	assert.NotNil(t, u.Check(context.Background()), "at the window boundary")
}

func TestCheck_ReturnsCopy(t *testing.T) {
	u, _ := newTestUpdater(t, 0, step{body: upload("Monday,_Jan_20_at_12:17_AM", "false")})
	msgs := u.Check(context.Background())
	require.NotNil(t, msgs)
	msgs.Default = "tampered"
	assert.NotEqual(t, "tampered", u.Current().Messages.Default)
}

func TestPoll_ReturnsThisCyclesFetchTime(t *testing.T) {
	u, _ := newTestUpdater(t, 0,
		step{body: upload("Monday,_Jan_20_at_12:17_AM", "false")},
		step{body: upload("Monday,_Jan_20_at_12:30_AM", "false")},
		step{err: errors.New("connection refused")},
	)
	at := time.Date(2025, time.January, 20, 0, 20, 0, 0, time.UTC)
	u.now = func() time.Time { return at }

	msgs, fetched := u.Poll(context.Background())
	require.NotNil(t, msgs)
	assert.Equal(t, at, fetched)

	at = at.Add(time.Minute)
	msgs, fetched = u.Poll(context.Background())
	assert.Nil(t, msgs)
	assert.Equal(t, at, fetched, "no change still counts as a fetch")

	msgs, fetched = u.Poll(context.Background())
	assert.Nil(t, msgs)
	assert.True(t, fetched.IsZero())
	assert.Equal(t, at, u.LastFetched())
}
