package terms

import (
	"context"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightningnetwork/lnd/lnwallet/chainfee"
)

const (
	// DefaultMinFeeRate is the fallback minimum fee rate for the on-chain
	// part of a swap out, 20 sat/vByte.
	DefaultMinFeeRate chainfee.SatPerKVByte = 20_000

	// DefaultMinAmount is the fallback minimum amount of a swap out.
	DefaultMinAmount btcutil.Amount = 10_000

	// DefaultMaxAmount is the fallback maximum amount of a swap out.
	DefaultMaxAmount btcutil.Amount = 2_000_000
)

// SwapTerms holds the dynamic bounds the swap out service defines. They are
// supplied externally and refreshed periodically, the fixed defaults apply
// whenever the external source is unavailable.
type SwapTerms struct {
	// MinFeeRate is the minimum fee rate the service will use for the
	// on-chain transaction of a swap out.
	MinFeeRate chainfee.SatPerKVByte

	// MinAmount is the smallest amount accepted for a swap out.
	MinAmount btcutil.Amount

	// MaxAmount is the largest amount accepted for a swap out.
	MaxAmount btcutil.Amount
}

// DefaultTerms returns the hardcoded fallback terms.
func DefaultTerms() *SwapTerms {
	return &SwapTerms{
		MinFeeRate: DefaultMinFeeRate,
		MinAmount:  DefaultMinAmount,
		MaxAmount:  DefaultMaxAmount,
	}
}

// Validate makes sure the terms are sane.
func (t *SwapTerms) Validate() error {
	if t.MinFeeRate <= 0 {
		return fmt.Errorf("invalid min fee rate %v", t.MinFeeRate)
	}
	if t.MinAmount <= 0 || t.MaxAmount <= 0 {
		return fmt.Errorf("swap amount bounds must be positive")
	}
	if t.MinAmount > t.MaxAmount {
		return fmt.Errorf("min amount %v is above max amount %v",
			t.MinAmount, t.MaxAmount)
	}
	return nil
}

// String returns a human readable representation of the terms.
func (t *SwapTerms) String() string {
	return fmt.Sprintf("min_fee_rate=%v min_amount=%v max_amount=%v",
		t.MinFeeRate, t.MinAmount, t.MaxAmount)
}

// Source delivers the current swap terms from an external service.
type Source interface {
	// SwapTerms returns the current swap out terms.
	SwapTerms(ctx context.Context) (*SwapTerms, error)
}

// FallbackSource wraps a Source and never fails. If the wrapped source
// errors, the last successfully fetched terms are returned, or the hardcoded
// defaults if there never was a successful fetch.
type FallbackSource struct {
	src Source

	mtx  sync.Mutex
	last *SwapTerms
}

// NewFallbackSource creates a FallbackSource around the given source. The
// source may be nil in which case the defaults are always used.
func NewFallbackSource(src Source) *FallbackSource {
	return &FallbackSource{src: src}
}

// Current returns the freshest terms available, falling back to the last
// known good terms and finally the defaults.
func (f *FallbackSource) Current(ctx context.Context) *SwapTerms {
	if f.src == nil {
		return DefaultTerms()
	}

	fetched, err := f.src.SwapTerms(ctx)
	if err == nil {
		err = fetched.Validate()
	}

	f.mtx.Lock()
	defer f.mtx.Unlock()

	if err != nil {
		log.Warnf("Could not fetch swap terms, using fallback: %v",
			err)

		if f.last != nil {
			return f.last
		}
		return DefaultTerms()
	}

	f.last = fetched
	return fetched
}
