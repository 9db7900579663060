package amounts

import (
	"math"
	"strconv"

	"github.com/btcsuite/btcd/btcutil"
)

// ComplexAmount is the successful result of a conversion. It always carries
// the canonical amount in satoshis and, if an exchange rate was available at
// conversion time, the equivalent fiat value. Instances are never mutated
// after construction.
type ComplexAmount struct {
	// Amount is the canonical amount in satoshis.
	Amount btcutil.Amount

	// FiatValue is the value of Amount in the fiat currency of the rate
	// that was used for the conversion. Only valid if FiatCurrency is
	// non-empty.
	FiatValue float64

	// FiatCurrency is the code of the fiat currency FiatValue is
	// denominated in. Empty if no rate was available.
	FiatCurrency FiatUnit
}

// HasFiat returns true if a fiat equivalent was computed for the amount.
func (a *ComplexAmount) HasFiat() bool {
	return a.FiatCurrency != ""
}

// SatoshiFromUnit scales a raw value entered in the given bitcoin unit to
// satoshis, rounding to the nearest satoshi. Values beyond the int64 range
// saturate so they remain out of range for the supply cap check.
func SatoshiFromUnit(value float64, unit BitcoinUnit) btcutil.Amount {
	return clampSatoshi(math.Round(
		value * float64(unit.Multiplier()),
	))
}

// SatoshiFromFiat converts a fiat value to satoshis using the given rate,
// rounding to the nearest satoshi. Fractional satoshis are never propagated
// and values beyond the int64 range saturate.
func SatoshiFromFiat(value float64, rate *BitcoinPriceRate) btcutil.Amount {
	return clampSatoshi(math.Round(
		value / rate.Price * btcutil.SatoshiPerBitcoin,
	))
}

// clampSatoshi narrows a rounded float satoshi value to an Amount. A plain
// int64 conversion of an out of range float wraps around, which would let an
// absurdly large input slip past the supply cap check as a negative amount.
func clampSatoshi(satValue float64) btcutil.Amount {
	switch {
	case satValue >= math.MaxInt64:
		return btcutil.Amount(math.MaxInt64)

	case satValue <= math.MinInt64:
		return btcutil.Amount(math.MinInt64)
	}

	return btcutil.Amount(satValue)
}

// FiatValue returns the value of the given amount in the fiat currency of the
// rate.
func FiatValue(amt btcutil.Amount, rate *BitcoinPriceRate) float64 {
	return amt.ToBTC() * rate.Price
}

// ToUnit returns the value of the given amount expressed in the given bitcoin
// unit.
func ToUnit(amt btcutil.Amount, unit BitcoinUnit) float64 {
	return amt.ToUnit(unit.AmountUnit())
}

// PrettyString formats the given amount in the given bitcoin unit, including
// the unit suffix.
func PrettyString(amt btcutil.Amount, unit BitcoinUnit) string {
	return amt.Format(unit.AmountUnit())
}

// PlainString formats the given amount in the given bitcoin unit without a
// unit suffix, suitable for pre-filling an input field.
func PlainString(amt btcutil.Amount, unit BitcoinUnit) string {
	return strconv.FormatFloat(ToUnit(amt, unit), 'f', -1, 64)
}

// FiatString formats a fiat value with its currency code.
func FiatString(value float64, fiat FiatUnit) string {
	return strconv.FormatFloat(value, 'f', 2, 64) + " " + string(fiat)
}
