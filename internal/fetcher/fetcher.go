package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/space-status/internal/datadog"
)

const (
	DefaultTimeout     = 30 * time.Second
	DefaultBackoff     = 3 * time.Second
	DefaultMaxAttempts = 3

	maxBodyBytes = 1 << 16
)

var ErrTimeout = errors.New("request timed out")

type FetchError struct {
	URL        string
	Attempts   int
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s failed after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

type Options struct {
	Timeout     time.Duration
	Backoff     time.Duration
	MaxAttempts int
}

type Fetcher struct {
	client      *http.Client
	timeout     time.Duration
	backoff     time.Duration
	maxAttempts int
	sleep       func(context.Context, time.Duration) error
}

func New(opts Options) *Fetcher {
	f := &Fetcher{
		client:      &http.Client{},
		timeout:     opts.Timeout,
		backoff:     opts.Backoff,
		maxAttempts: opts.MaxAttempts,
		sleep:       sleepCtx,
	}
	if f.timeout <= 0 {
		f.timeout = DefaultTimeout
	}
	if f.backoff <= 0 {
		f.backoff = DefaultBackoff
	}
	if f.maxAttempts <= 0 {
		f.maxAttempts = DefaultMaxAttempts
	}
	return f
}

// Fetch GETs url. Only timeouts are retried; any other failure, including a
// non-200 status, is returned immediately.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := f.sleep(ctx, f.backoff); err != nil {
				return nil, &FetchError{URL: url, Attempts: attempt - 1, Err: err}
			}
		}

		datadog.Incr("status.fetch.attempts")
		body, status, err := f.get(ctx, url)
		if err == nil && status == http.StatusOK {
			return body, nil
		}
		if err == nil {
			datadog.Incr("status.fetch.failures", "reason:status")
			return nil, &FetchError{URL: url, Attempts: attempt, StatusCode: status}
		}
		if !isTimeout(err) {
			datadog.Incr("status.fetch.failures", "reason:network")
			return nil, &FetchError{URL: url, Attempts: attempt, Err: err}
		}

		lastErr = err
		log.Warn().
			Err(err).
			Str("url", url).
			Int("attempt", attempt).
			Int("max_attempts", f.maxAttempts).
			Msg("Status fetch timed out")
	}

	datadog.Incr("status.fetch.failures", "reason:timeout")
	return nil, &FetchError{URL: url, Attempts: f.maxAttempts, Err: fmt.Errorf("%w: %v", ErrTimeout, lastErr)}
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read body: %w", err)
	}
	return body, resp.StatusCode, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
