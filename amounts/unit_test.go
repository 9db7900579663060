package amounts

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/stretchr/testify/require"
)

// TestBitcoinUnitMultipliers tests the satoshi multiplier of each unit.
func TestBitcoinUnitMultipliers(t *testing.T) {
	t.Parallel()

	require.Equal(t, btcutil.Amount(1), UnitSat.Multiplier())
	require.Equal(t, btcutil.Amount(100), UnitBit.Multiplier())
	require.Equal(t, btcutil.Amount(100_000), UnitMilliBtc.Multiplier())
	require.Equal(
		t, btcutil.Amount(btcutil.SatoshiPerBitcoin),
		UnitBtc.Multiplier(),
	)
}

// TestParseBitcoinUnit tests that every unit round trips through its string
// representation.
func TestParseBitcoinUnit(t *testing.T) {
	t.Parallel()

	units := []BitcoinUnit{UnitSat, UnitBit, UnitMilliBtc, UnitBtc}
	for _, unit := range units {
		parsed, err := ParseBitcoinUnit(unit.String())
		require.NoError(t, err)
		require.Equal(t, unit, parsed)
	}

	// The empty string defaults to satoshis.
	parsed, err := ParseBitcoinUnit("")
	require.NoError(t, err)
	require.Equal(t, UnitSat, parsed)

	_, err = ParseBitcoinUnit("doge")
	require.Error(t, err)
}
