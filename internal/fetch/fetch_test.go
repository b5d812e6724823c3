package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(timeout time.Duration) (*Client, *[]time.Duration) {
	var delays []time.Duration
	c := NewClient(Options{Timeout: timeout})
	c.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return c, &delays
}

func TestFetchSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("payload"))
	}))
	defer server.Close()

	c, delays := newTestClient(time.Second)
	resp, err := c.Fetch(context.Background(), server.URL, 2)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []byte("payload"), resp.Body)
	assert.Empty(t, *delays)
}

func TestFetchTimesOutTwiceThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			time.Sleep(300 * time.Millisecond)
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	c, delays := newTestClient(50 * time.Millisecond)
	resp, err := c.Fetch(context.Background(), server.URL, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), resp.Body)
	assert.Equal(t, int32(3), calls.Load())

	require.Len(t, *delays, 2)
	assert.GreaterOrEqual(t, (*delays)[1], (*delays)[0])
}

func TestFetchExhaustsRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer server.Close()

	c, _ := newTestClient(50 * time.Millisecond)
	_, err := c.Fetch(context.Background(), server.URL, 1)
	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, 2, timeoutErr.Attempts)
}

func TestFetchNetworkErrorNoRetry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused from here on

	c, delays := newTestClient(time.Second)
	_, err := c.Fetch(context.Background(), server.URL, 3)
	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Empty(t, *delays, "network errors must not back off and retry")
}

func TestFetchParentCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	c, _ := newTestClient(5 * time.Second)
	_, err := c.Fetch(ctx, server.URL, 3)
	require.ErrorIs(t, err, context.Canceled)
}

func TestNextAttemptSchedule(t *testing.T) {
	tests := map[string]struct {
		attemptsUsed int
		timeout      time.Duration
		wantTimeout  time.Duration
		wantDelay    time.Duration
	}{
		"first retry":    {1, 5 * time.Second, 6 * time.Second, time.Second},
		"second retry":   {2, 6 * time.Second, 7200 * time.Millisecond, 2 * time.Second},
		"delay capped":   {5, 5 * time.Second, 6 * time.Second, 2 * time.Second},
		"timeout capped": {1, 7 * time.Second, 8 * time.Second, time.Second},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			nextTimeout, delay := nextAttempt(tc.attemptsUsed, tc.timeout)
			assert.Equal(t, tc.wantTimeout, nextTimeout)
			assert.Equal(t, tc.wantDelay, delay)
		})
	}
}
