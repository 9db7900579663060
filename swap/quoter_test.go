package swap

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/nownosw/phoenix/terms"
	"github.com/stretchr/testify/require"
)

// TestScheduleQuoter tests the local fee quote computation.
func TestScheduleQuoter(t *testing.T) {
	t.Parallel()

	// Base fee 1000 sats, 100 ppm proportional fee.
	quoter := NewScheduleQuoter(terms.NewLinearFeeSchedule(1000, 100))

	// At 20 sat/vByte the estimated miner fee for the sweep is
	// 250 vBytes * 20 sat/vByte = 5000 sats. The service fee for
	// 1,000,000 sats is 1000 + 100 = 1100 sats.
	fee, err := quoter.SwapOutQuote(
		context.Background(), nil, 1_000_000, 20_000,
	)
	require.NoError(t, err)
	require.Equal(t, btcutil.Amount(6_100), fee)
}
