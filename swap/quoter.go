package swap

import (
	"context"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightningnetwork/lnd/lnwallet/chainfee"
	"github.com/nownosw/phoenix/terms"
)

// swapOutTxVSize is a conservative estimate of the virtual size of the
// on-chain transaction sweeping a swap out to a single destination output.
const swapOutTxVSize = 250

// ScheduleQuoter computes fee quotes locally from a fee schedule plus an
// estimated miner fee at the requested fee rate. It stands in for the remote
// swap service in setups that have no quote endpoint configured.
type ScheduleQuoter struct {
	schedule terms.FeeSchedule
}

// NewScheduleQuoter creates a quoter charging fees according to the given
// schedule.
func NewScheduleQuoter(schedule terms.FeeSchedule) *ScheduleQuoter {
	return &ScheduleQuoter{schedule: schedule}
}

// SwapOutQuote returns the fee for swapping out the given amount, the service
// fee per the schedule plus the miner fee for the sweep transaction at the
// given fee rate.
//
// NOTE: This is part of the Quoter interface.
func (q *ScheduleQuoter) SwapOutQuote(_ context.Context, _ btcutil.Address,
	amt btcutil.Amount,
	minFeeRate chainfee.SatPerKVByte) (btcutil.Amount, error) {

	minerFee := btcutil.Amount(minFeeRate) * swapOutTxVSize / 1000
	serviceFee := q.schedule.BaseFee() + q.schedule.ServiceFee(amt)

	fee := minerFee + serviceFee
	log.Debugf("Quoting swap out of %v: miner_fee=%v service_fee=%v",
		amt, minerFee, serviceFee)

	return fee, nil
}

// Compile time check that ScheduleQuoter implements the Quoter interface.
var _ Quoter = (*ScheduleQuoter)(nil)
