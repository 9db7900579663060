package amounts

import (
	"math"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
)

// NoConversionText is the informational text placed in the converted value
// channel when a conversion between fiat and bitcoin is not possible because
// no exchange rate is available. This is a soft degradation, not an error.
const NoConversionText = "no conversion"

// Result is the outcome of a single conversion attempt. The Converted and Err
// channels are mutually exclusive and both start out cleared on every
// attempt, so stale feedback from a previous attempt can never leak through.
type Result struct {
	// Amount is the converted amount. Nil if the input was empty, invalid
	// or a fiat input could not be bridged to bitcoin.
	Amount *ComplexAmount

	// Converted is the human readable counter value of the conversion,
	// meant for direct display. For a bitcoin input this is the fiat
	// equivalent, for a fiat input the bitcoin equivalent in the preferred
	// display unit.
	Converted string

	// Err is the validation failure of the attempt, if any.
	Err error
}

// Empty returns true if the result represents the "no amount entered" state.
func (r Result) Empty() bool {
	return r.Amount == nil && r.Converted == "" && r.Err == nil
}

// Convert parses the given raw user input in the given unit and converts it
// to a canonical satoshi amount, using the given exchange rate where a
// fiat/bitcoin bridge is needed. The displayUnit is the bitcoin unit used to
// render the converted value of a fiat input.
//
// A blank input is not an error, it yields an empty result with both feedback
// channels cleared. The function is deterministic and has no state of its
// own, the rate is only ever read.
func Convert(raw string, unit CurrencyUnit, displayUnit BitcoinUnit,
	rate *BitcoinPriceRate) Result {

	log.Debugf("Amount input update, amount=%q unit=%v rate=%v", raw,
		unit, rate)

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Result{}
	}

	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) ||
		value <= 0 {

		return Result{Err: ErrInvalidNumber}
	}

	switch u := unit.(type) {
	case FiatUnit:
		// Without a rate there is no way to bridge fiat to bitcoin.
		// This is reported as an informational state and not as an
		// error, the instruction to pay doesn't require a rate.
		if rate == nil {
			log.Warnf("Cannot convert fiat amount to bitcoin "+
				"without a rate, fiat=%v", u)
			return Result{Converted: NoConversionText}
		}

		sat := SatoshiFromFiat(value, rate)
		if sat > btcutil.MaxSatoshi {
			return Result{Err: ErrAmountTooLarge}
		}
		if sat < 0 {
			return Result{Err: ErrAmountNegative}
		}

		return Result{
			Amount: &ComplexAmount{
				Amount:       sat,
				FiatValue:    value,
				FiatCurrency: u,
			},
			Converted: PrettyString(sat, displayUnit),
		}

	case BitcoinUnit:
		sat := SatoshiFromUnit(value, u)
		if sat > btcutil.MaxSatoshi {
			return Result{Err: ErrAmountTooLarge}
		}
		if sat < 0 {
			return Result{Err: ErrAmountNegative}
		}

		// A missing rate only costs us the fiat equivalent for user
		// feedback, it never blocks a bitcoin denominated amount.
		if rate == nil {
			return Result{
				Amount:    &ComplexAmount{Amount: sat},
				Converted: NoConversionText,
			}
		}

		fiat := FiatValue(sat, rate)
		return Result{
			Amount: &ComplexAmount{
				Amount:       sat,
				FiatValue:    fiat,
				FiatCurrency: rate.Fiat,
			},
			Converted: FiatString(fiat, rate.Fiat),
		}

	default:
		// The CurrencyUnit interface is sealed, this cannot happen.
		return Result{Err: ErrInvalidNumber}
	}
}
