package cache

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/space-status/internal/model"
	"github.com/thatsimonsguy/space-status/internal/store"
)

type failingStore struct {
	readErr  error
	writeErr error
}

func (f *failingStore) Read(key string) (string, bool, error) {
	return "", false, f.readErr
}

func (f *failingStore) Write(key, value string) error {
	return f.writeErr
}

type batchStore struct {
	*store.Memory
	batches []map[string]string
}

func (b *batchStore) WriteAll(values map[string]string) error {
	b.batches = append(b.batches, values)
	for k, v := range values {
		b.Memory.Write(k, v)
	}
	return nil
}

func entry(def string, fetched int64) *model.CacheEntry {
	return &model.CacheEntry{Default: def, Human: "hall light is off", Raw: "raw " + def, TimeFetched: fetched}
}

func TestGetAll_Defaults(t *testing.T) {
	c := New(store.NewMemory())
	got, err := c.GetAll()
	require.NoError(t, err)

	assert.Equal(t, NotSetMessage, got.Default)
	assert.Equal(t, NotSetMessage, got.Human)
	assert.Equal(t, NotSetMessage, got.Raw)
	assert.Zero(t, got.TimeFetched)
}

func TestSetAll_RoundTrip(t *testing.T) {
	c := New(store.NewMemory())
	require.NoError(t, c.SetAll(entry("HacDC is closed", 1700000000)))

	got, err := c.GetAll()
	require.NoError(t, err)
	assert.Equal(t, *entry("HacDC is closed", 1700000000), got)
}

func TestSetAll_NilIsNoop(t *testing.T) {
	mem := store.NewMemory()
	c := New(mem)
	require.NoError(t, c.SetAll(nil))
	for _, k := range Keys {
		assert.Zero(t, mem.Writes(k), k)
	}
}

func TestSetAll_SkipsIdenticalBundles(t *testing.T) {
	mem := store.NewMemory()
	c := New(mem)

	require.NoError(t, c.SetAll(entry("HacDC is closed", 100)))
	require.NoError(t, c.SetAll(entry("HacDC is closed", 200)))

	for _, k := range Keys {
		assert.Equal(t, 1, mem.Writes(k), k)
	}
	got, _ := c.GetAll()
	assert.Equal(t, int64(100), got.TimeFetched)

	require.NoError(t, c.SetAll(entry("HacDC is open", 300)))
	for _, k := range Keys {
		assert.Equal(t, 2, mem.Writes(k), k)
	}
}

func TestSetAll_EmptyMessagesGetPlaceholder(t *testing.T) {
	c := New(store.NewMemory())
	require.NoError(t, c.SetAll(&model.CacheEntry{Default: "HacDC is open", TimeFetched: 5}))

	got, err := c.GetAll()
	require.NoError(t, err)
	assert.Equal(t, "HacDC is open", got.Default)
	assert.Equal(t, NoStatusMessage, got.Human)
	assert.Equal(t, NoStatusMessage, got.Raw)
}

func TestSetAll_UsesBatchWriter(t *testing.T) {
	b := &batchStore{Memory: store.NewMemory()}
	c := New(b)
	require.NoError(t, c.SetAll(entry("HacDC is open", 1)))

	require.Len(t, b.batches, 1)
	assert.Len(t, b.batches[0], len(Keys))
	assert.Equal(t, "1", b.batches[0][KeyTimeFetched])
}

func TestTouch(t *testing.T) {
	mem := store.NewMemory()
	c := New(mem)
	require.NoError(t, c.SetAll(entry("HacDC is open", 1)))

	now := time.Unix(1700000500, 0)
	require.NoError(t, c.Touch(now))

	got, err := c.GetAll()
	require.NoError(t, err)
	assert.Equal(t, "HacDC is open", got.Default)
	assert.Equal(t, now.Unix(), got.TimeFetched)
	assert.Equal(t, 1, mem.Writes(KeyDefault))
}

func TestAge(t *testing.T) {
	c := New(store.NewMemory())
	now := time.Unix(1700000000, 0)

	_, ok, err := c.Age(now)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.SetAll(entry("HacDC is open", now.Add(-90*time.Second).Unix())))
	age, ok, err := c.Age(now)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 90*time.Second, age)
}

func TestBackingFailures(t *testing.T) {
	boom := errors.New("disk full")

	t.Run("read", func(t *testing.T) {
		c := New(&failingStore{readErr: boom})
		_, err := c.GetAll()
		var ioErr *IOError
		require.ErrorAs(t, err, &ioErr)
		assert.Equal(t, "read", ioErr.Op)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("write", func(t *testing.T) {
		c := New(&failingStore{writeErr: boom})
		err := c.SetAll(entry("HacDC is open", 1))
		var ioErr *IOError
		require.ErrorAs(t, err, &ioErr)
		assert.Equal(t, "write", ioErr.Op)
	})

	t.Run("touch", func(t *testing.T) {
		c := New(&failingStore{writeErr: boom})
		assert.ErrorIs(t, c.Touch(time.Now()), boom)
	})
}

func TestMalformedTimestampIgnored(t *testing.T) {
	mem := store.NewMemory()
	mem.Write(KeyTimeFetched, "yesterday")
	c := New(mem)

	got, err := c.GetAll()
	require.NoError(t, err)
	assert.Zero(t, got.TimeFetched)
}

func TestConcurrentReadersNeverSeeMixedEntries(t *testing.T) {
	c := New(store.NewMemory())
	require.NoError(t, c.SetAll(&model.CacheEntry{Default: "a", Human: "a", Raw: "a"}))

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		vals := []string{"a", "b"}
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			v := vals[i%2]
			c.SetAll(&model.CacheEntry{Default: v, Human: v, Raw: v, TimeFetched: int64(i)})
		}
	}()

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				got, err := c.GetAll()
				if !assert.NoError(t, err) {
					return
				}
				assert.Equal(t, got.Default, got.Human)
				assert.Equal(t, got.Default, got.Raw)
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(stop)
	wg.Wait()
}
