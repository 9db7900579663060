package terms

import "github.com/btcsuite/btcd/btcutil"

// FeeSchedule is an interface that represents the configuration source the
// swap service uses to determine how much to charge in service fees for a
// swap out, on top of the on-chain miner fee.
type FeeSchedule interface {
	// BaseFee is the flat fee charged per swap out, regardless of the
	// swapped amount.
	BaseFee() btcutil.Amount

	// ServiceFee computes the variable part of the fee (usually based off
	// of a rate) for the target amount.
	ServiceFee(amt btcutil.Amount) btcutil.Amount
}

// LinearFeeSchedule is a FeeSchedule that calculates the service fee based
// upon a static base fee and a variable fee rate in parts per million.
type LinearFeeSchedule struct {
	baseFee btcutil.Amount
	feeRate btcutil.Amount
}

// BaseFee is the flat fee charged per swap out, regardless of the swapped
// amount.
//
// NOTE: This method is part of the FeeSchedule interface.
func (s *LinearFeeSchedule) BaseFee() btcutil.Amount {
	return s.baseFee
}

// FeeRate is the variable fee rate in parts per million.
func (s *LinearFeeSchedule) FeeRate() btcutil.Amount {
	return s.feeRate
}

// ServiceFee computes the variable part of the fee for the target amount.
//
// NOTE: This method is part of the FeeSchedule interface.
func (s *LinearFeeSchedule) ServiceFee(amt btcutil.Amount) btcutil.Amount {
	return amt * s.feeRate / 1_000_000
}

// NewLinearFeeSchedule creates a new linear fee schedule based upon a static
// base fee and a relative fee rate in parts per million.
func NewLinearFeeSchedule(baseFee, feeRate btcutil.Amount) *LinearFeeSchedule {
	return &LinearFeeSchedule{
		baseFee: baseFee,
		feeRate: feeRate,
	}
}

// This is a compile time check to make certain that LinearFeeSchedule
// implements the FeeSchedule interface.
var _ FeeSchedule = (*LinearFeeSchedule)(nil)
