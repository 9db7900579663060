package rates

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testTicker = `{
	"USD": {"15m": 63120.0, "last": 63123.45, "symbol": "$"},
	"EUR": {"15m": 58000.0, "last": 58001.01, "symbol": "€"}
}`

// TestFeedFetch tests that the feed extracts the configured fiat currency
// from the ticker document.
func TestFeedFetch(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(testTicker))
		},
	))
	defer server.Close()

	feed := NewFeed(FeedConfig{
		URL:  server.URL,
		Fiat: "USD",
	})

	rate, err := feed.fetch()
	require.NoError(t, err)
	require.Equal(t, 63123.45, rate.Price)
	require.Equal(t, "USD", string(rate.Fiat))
	require.False(t, rate.Timestamp.IsZero())

	// An unlisted currency is a distinct error.
	feed = NewFeed(FeedConfig{
		URL:  server.URL,
		Fiat: "XXX",
	})
	_, err = feed.fetch()
	require.ErrorIs(t, err, ErrNoRate)
}

// TestFeedPolling tests that a started feed eventually serves a rate
// snapshot and clears down properly.
func TestFeedPolling(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(testTicker))
		},
	))
	defer server.Close()

	feed := NewFeed(FeedConfig{
		URL:             server.URL,
		Fiat:            "EUR",
		RefreshInterval: time.Hour,
	})

	// Before the first poll there is no rate.
	require.Nil(t, feed.Rate())

	feed.Start()
	defer feed.Stop()

	require.Eventually(t, func() bool {
		return feed.Rate() != nil
	}, 5*time.Second, 10*time.Millisecond)

	rate := feed.Rate()
	require.Equal(t, 58001.01, rate.Price)
	require.Equal(t, "EUR", string(rate.Fiat))
}

// TestFeedBackOff tests that failed fetches are retried until the endpoint
// recovers.
func TestFeedBackOff(t *testing.T) {
	t.Parallel()

	var requests int32
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			// Fail the first two requests.
			if atomic.AddInt32(&requests, 1) <= 2 {
				http.Error(
					w, "try later",
					http.StatusServiceUnavailable,
				)
				return
			}
			_, _ = w.Write([]byte(testTicker))
		},
	))
	defer server.Close()

	feed := NewFeed(FeedConfig{
		URL:             server.URL,
		Fiat:            "USD",
		RefreshInterval: time.Hour,
	})
	feed.Start()
	defer feed.Stop()

	require.Eventually(t, func() bool {
		return feed.Rate() != nil
	}, 10*time.Second, 10*time.Millisecond)

	require.GreaterOrEqual(t, atomic.LoadInt32(&requests), int32(3))
}
