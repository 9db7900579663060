package amounts

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
)

// CurrencyUnit represents a unit an amount can be entered in by the user. It
// is either one of the fixed bitcoin denominated units or a fiat currency. The
// interface is sealed on purpose, no other implementations than the two in
// this package are valid.
type CurrencyUnit interface {
	fmt.Stringer

	// currencyUnit seals the interface to this package.
	currencyUnit()
}

// BitcoinUnit is one of the four bitcoin denominated units amounts can be
// entered and displayed in. We don't use iota for the constants since the unit
// is part of our external API.
type BitcoinUnit uint8

const (
	// UnitSat is the satoshi, the smallest bitcoin sub unit and the
	// canonical unit all amount arithmetic is done in.
	UnitSat BitcoinUnit = 0

	// UnitBit is one millionth of a bitcoin, 100 satoshis.
	UnitBit BitcoinUnit = 1

	// UnitMilliBtc is one thousandth of a bitcoin, 100 000 satoshis.
	UnitMilliBtc BitcoinUnit = 2

	// UnitBtc is one whole bitcoin, 100 000 000 satoshis.
	UnitBtc BitcoinUnit = 3
)

// Multiplier returns the number of satoshis one of the given unit corresponds
// to.
func (u BitcoinUnit) Multiplier() btcutil.Amount {
	switch u {
	case UnitBit:
		return 100

	case UnitMilliBtc:
		return 100_000

	case UnitBtc:
		return btcutil.SatoshiPerBitcoin

	default:
		return 1
	}
}

// AmountUnit maps the unit to the matching btcutil denomination, mostly useful
// for formatting amounts for display.
func (u BitcoinUnit) AmountUnit() btcutil.AmountUnit {
	switch u {
	case UnitBit:
		return btcutil.AmountMicroBTC

	case UnitMilliBtc:
		return btcutil.AmountMilliBTC

	case UnitBtc:
		return btcutil.AmountBTC

	default:
		return btcutil.AmountSatoshi
	}
}

// String returns a human readable representation of the unit.
func (u BitcoinUnit) String() string {
	switch u {
	case UnitSat:
		return "sat"

	case UnitBit:
		return "bit"

	case UnitMilliBtc:
		return "mBTC"

	case UnitBtc:
		return "BTC"

	default:
		return fmt.Sprintf("unknown<%d>", uint8(u))
	}
}

// currencyUnit is part of the CurrencyUnit interface.
func (u BitcoinUnit) currencyUnit() {}

// ParseBitcoinUnit parses a human readable unit name as returned by String
// back into a BitcoinUnit.
func ParseBitcoinUnit(s string) (BitcoinUnit, error) {
	switch s {
	case "sat", "":
		return UnitSat, nil

	case "bit":
		return UnitBit, nil

	case "mBTC", "mbtc":
		return UnitMilliBtc, nil

	case "BTC", "btc":
		return UnitBtc, nil

	default:
		return 0, fmt.Errorf("unknown bitcoin unit %q", s)
	}
}

// FiatUnit is a fiat currency identified by its ISO 4217 like code, for
// example "USD" or "EUR". Amounts entered in a fiat unit require an exchange
// rate to be converted to satoshis.
type FiatUnit string

// String returns the currency code of the fiat unit.
func (u FiatUnit) String() string {
	return string(u)
}

// currencyUnit is part of the CurrencyUnit interface.
func (u FiatUnit) currencyUnit() {}

// Compile time assertions that both unit flavors implement CurrencyUnit.
var _ CurrencyUnit = UnitSat
var _ CurrencyUnit = FiatUnit("USD")
