package amounts

import (
	"fmt"
	"time"
)

// BitcoinPriceRate is a snapshot of the price of one whole bitcoin expressed
// in a fiat currency. Instances are read-only, a feed replaces the whole
// snapshot on refresh.
type BitcoinPriceRate struct {
	// Fiat is the ISO 4217 like code of the fiat currency the price is
	// denominated in.
	Fiat FiatUnit

	// Price is the price of one whole bitcoin in the fiat currency.
	Price float64

	// Timestamp is the time the rate was fetched at.
	Timestamp time.Time
}

// String returns a human readable representation of the rate.
func (r *BitcoinPriceRate) String() string {
	return fmt.Sprintf("%.2f %v/BTC", r.Price, r.Fiat)
}
