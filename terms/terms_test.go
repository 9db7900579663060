package terms

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightningnetwork/lnd/lnwallet/chainfee"
	"github.com/stretchr/testify/require"
)

// fakeSource is a Source returning a scripted sequence of results.
type fakeSource struct {
	terms *SwapTerms
	err   error
	calls int
}

func (s *fakeSource) SwapTerms(_ context.Context) (*SwapTerms, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.terms, nil
}

// TestDefaultTerms tests the hardcoded fallback bounds.
func TestDefaultTerms(t *testing.T) {
	t.Parallel()

	terms := DefaultTerms()
	require.NoError(t, terms.Validate())
	require.Equal(t, chainfee.SatPerKVByte(20_000), terms.MinFeeRate)
	require.Equal(t, btcutil.Amount(10_000), terms.MinAmount)
	require.Equal(t, btcutil.Amount(2_000_000), terms.MaxAmount)
}

// TestTermsValidate tests the sanity checks on externally supplied terms.
func TestTermsValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		terms SwapTerms
		valid bool
	}{{
		name:  "defaults",
		terms: *DefaultTerms(),
		valid: true,
	}, {
		name: "zero fee rate",
		terms: SwapTerms{
			MinAmount: 1, MaxAmount: 2,
		},
	}, {
		name: "zero amounts",
		terms: SwapTerms{
			MinFeeRate: 1000,
		},
	}, {
		name: "min above max",
		terms: SwapTerms{
			MinFeeRate: 1000, MinAmount: 5, MaxAmount: 2,
		},
	}}

	for _, tc := range cases {
		err := tc.terms.Validate()
		if tc.valid {
			require.NoError(t, err, tc.name)
		} else {
			require.Error(t, err, tc.name)
		}
	}
}

// TestFallbackSource tests the degradation chain of fetched terms, last
// known good terms and hardcoded defaults.
func TestFallbackSource(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	// Without a wrapped source the defaults always apply.
	fallback := NewFallbackSource(nil)
	require.Equal(t, DefaultTerms(), fallback.Current(ctx))

	// A failing source without history degrades to the defaults too.
	src := &fakeSource{err: errors.New("offline")}
	fallback = NewFallbackSource(src)
	require.Equal(t, DefaultTerms(), fallback.Current(ctx))

	// Once the source answers, its terms win.
	remote := &SwapTerms{
		MinFeeRate: 30_000,
		MinAmount:  20_000,
		MaxAmount:  4_000_000,
	}
	src.err = nil
	src.terms = remote
	require.Equal(t, remote, fallback.Current(ctx))

	// If the source starts failing again, the last good terms stick.
	src.err = errors.New("offline again")
	require.Equal(t, remote, fallback.Current(ctx))

	// Invalid terms count as a failed fetch.
	src.err = nil
	src.terms = &SwapTerms{}
	require.Equal(t, remote, fallback.Current(ctx))
}

// TestHTTPSource tests parsing the remote wallet context document.
func TestHTTPSource(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{
				"swap_out": {
					"v1": {
						"min_feerate_sat_byte": 25,
						"min_amount_sat": 15000,
						"max_amount_sat": 3000000
					}
				}
			}`))
		},
	))
	defer server.Close()

	src := NewHTTPSource(server.URL)
	terms, err := src.SwapTerms(context.Background())
	require.NoError(t, err)
	require.Equal(t, chainfee.SatPerKVByte(25_000), terms.MinFeeRate)
	require.Equal(t, btcutil.Amount(15_000), terms.MinAmount)
	require.Equal(t, btcutil.Amount(3_000_000), terms.MaxAmount)
}

// TestHTTPSourceErrors tests that HTTP errors and malformed documents are
// reported instead of producing zero valued terms.
func TestHTTPSourceErrors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusInternalServerError)
		},
	))
	defer server.Close()

	src := NewHTTPSource(server.URL)
	_, err := src.SwapTerms(context.Background())
	require.Error(t, err)

	// An empty document parses but fails validation.
	server2 := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{}`))
		},
	))
	defer server2.Close()

	src = NewHTTPSource(server2.URL)
	_, err = src.SwapTerms(context.Background())
	require.Error(t, err)
}

// TestLinearFeeSchedule tests the fee computation of the linear schedule.
func TestLinearFeeSchedule(t *testing.T) {
	t.Parallel()

	schedule := NewLinearFeeSchedule(1000, 100)
	require.Equal(t, btcutil.Amount(1000), schedule.BaseFee())
	require.Equal(t, btcutil.Amount(100), schedule.FeeRate())

	// 100 ppm of 1,000,000 sats is 100 sats.
	require.Equal(
		t, btcutil.Amount(100), schedule.ServiceFee(1_000_000),
	)
	require.Equal(t, btcutil.Amount(0), schedule.ServiceFee(5_000))
}
