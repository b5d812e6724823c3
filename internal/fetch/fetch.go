// Package fetch provides the bounded-retry, timeout-bounded HTTP fetch
// primitive used for all remote image and metadata requests.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	// DefaultTimeout bounds the first attempt; later attempts grow from it.
	DefaultTimeout = 5 * time.Second

	maxTimeout = 8 * time.Second
	maxBackoff = 2 * time.Second
)

// TimeoutError reports that every attempt was cancelled by its timeout.
type TimeoutError struct {
	URL      string
	Attempts int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("fetch %s: timed out after %d attempts", e.URL, e.Attempts)
}

// NetworkError reports a non-timeout transport failure. These are treated as
// definitive and never retried.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Response is a fully drained HTTP response. Reading the body inside the
// fetch keeps the per-attempt cancellation boundary self-contained: the
// attempt's timer is always released before Fetch returns.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Options configures a Client.
type Options struct {
	// Timeout bounds the first attempt. Default: DefaultTimeout.
	Timeout time.Duration

	// HTTPClient overrides the underlying client. Default: http.DefaultClient.
	HTTPClient *http.Client
}

// Client performs single HTTP GETs with bounded retries on timeout. Only
// timeout-classified failures retry; connection-level failures are
// definitive and propagate immediately.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration

	// sleep is swapped out in tests to observe backoff without real timers.
	sleep func(context.Context, time.Duration) error
}

// NewClient creates a fetch client with the given options.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	return &Client{
		httpClient: opts.HTTPClient,
		timeout:    opts.Timeout,
		sleep:      sleepCtx,
	}
}

// Fetch GETs url, retrying up to retries additional times when an attempt is
// cancelled by its own timeout. Each retry sleeps min(1s*attemptsUsed, 2s)
// and grows the next attempt's timeout by 20%, capped at 8s. Exhausting all
// retries fails with *TimeoutError carrying the attempt count.
func (c *Client) Fetch(ctx context.Context, url string, retries int) (*Response, error) {
	timeout := c.timeout
	attempts := 0

	for {
		attempts++
		resp, err := c.attempt(ctx, url, timeout)
		if err == nil {
			return resp, nil
		}

		// The parent being cancelled is not ours to retry.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if !isTimeout(err) {
			return nil, &NetworkError{URL: url, Err: err}
		}

		if retries <= 0 {
			return nil, &TimeoutError{URL: url, Attempts: attempts}
		}
		retries--

		nextTimeout, delay := nextAttempt(attempts, timeout)
		slog.Debug("Fetch attempt timed out, retrying.",
			"url", url, "attempt", attempts, "backoff", delay.String(), "nextTimeout", nextTimeout.String())
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
		timeout = nextTimeout
	}
}

// attempt runs one request inside its own cancellation boundary. The timer
// is released on every exit path.
func (c *Client) attempt(ctx context.Context, url string, timeout time.Duration) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// nextAttempt computes the retry schedule after attemptsUsed attempts have
// failed: the backoff before the next attempt, and the next attempt's grown
// timeout. Pure so the schedule is testable without timers.
func nextAttempt(attemptsUsed int, timeout time.Duration) (nextTimeout, delay time.Duration) {
	delay = time.Duration(attemptsUsed) * time.Second
	if delay > maxBackoff {
		delay = maxBackoff
	}
	nextTimeout = timeout + timeout/5
	if nextTimeout > maxTimeout {
		nextTimeout = maxTimeout
	}
	return nextTimeout, delay
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
