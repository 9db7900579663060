package swap

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/lnwallet/chainfee"
)

// ID is a 32 byte pseudo randomly generated unique swap out identifier.
type ID [32]byte

// String returns the hex encoded representation of the ID.
func (i ID) String() string {
	return hex.EncodeToString(i[:])
}

// NewID creates a new random swap out ID.
func NewID() (ID, error) {
	var id ID
	if _, err := rand.Read(id[:]); err != nil {
		return id, err
	}
	return id, nil
}

// ZeroID is used to find out if a user-provided ID is empty.
var ZeroID ID

// IDFromString parses a hex encoded swap out ID.
func IDFromString(s string) (ID, error) {
	var id ID
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(raw) != len(id) {
		return id, fmt.Errorf("invalid swap ID length %d", len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// State describes the different possible states of a swap out flow. We don't
// use iota for the constants due to the state being persisted to disk.
type State uint8

const (
	// StateInit is the state a flow starts out in. The destination
	// address is known but the amount has not been confirmed with a fee
	// quote yet.
	StateInit State = 0

	// StateRequestingQuote is the state a flow is in while a fee quote
	// request is in flight.
	StateRequestingQuote State = 1

	// StateReady is the state a flow is in once a fee quote came back and
	// the total to be debited is fixed.
	StateReady State = 2

	// StateSending is the state a flow enters when the swap out is
	// submitted. This state is terminal for the flow instance.
	StateSending State = 3
)

// String returns a human readable string representation of the flow state.
func (s State) String() string {
	switch s {
	case StateInit:
		return "init"

	case StateRequestingQuote:
		return "requesting_quote"

	case StateReady:
		return "ready"

	case StateSending:
		return "sending"

	default:
		return fmt.Sprintf("unknown<%d>", uint8(s))
	}
}

// Terminal returns true if no more transitions are possible from the state.
func (s State) Terminal() bool {
	return s == StateSending
}

// Quote fixes the total amount a prepared swap out will debit. A quote is
// only valid as long as the user sticks to the amount it was requested for.
type Quote struct {
	// UserAmount is the amount the user chose to swap out.
	UserAmount btcutil.Amount

	// Fee is the fee quoted by the swap service, including the on-chain
	// miner fee.
	Fee btcutil.Amount

	// Total is the total that will be debited, UserAmount plus Fee.
	Total btcutil.Amount
}

// wellFormed returns true if the quote satisfies the ready state invariant,
// the total reconciles with amount plus fee and is strictly positive.
func (q Quote) wellFormed() bool {
	return q.Total == q.UserAmount+q.Fee && q.Total > 0
}

// String returns a human readable representation of the quote.
func (q Quote) String() string {
	return fmt.Sprintf("amount=%v fee=%v total=%v", q.UserAmount, q.Fee,
		q.Total)
}

// SwapRecord is the persisted form of a swap out flow.
type SwapRecord struct {
	// ID is the unique identifier of the swap out.
	ID ID

	// Address is the destination address, encoded for the flow's chain.
	Address string

	// RequestedAmount is the amount the originating payment link asked
	// for, or zero if the user entered the amount freely.
	RequestedAmount btcutil.Amount

	// Amount is the user's current chosen amount.
	Amount btcutil.Amount

	// Fee and Total are only set once a quote was obtained.
	Fee   btcutil.Amount
	Total btcutil.Amount

	// State is the current state of the flow.
	State State

	// TxID is the transaction ID of the published swap out, all zeroes as
	// long as nothing was published.
	TxID chainhash.Hash
}

// Quoter requests a fee quote for a swap out from the swap service.
type Quoter interface {
	// SwapOutQuote returns the fee the service will charge for swapping
	// out the given amount to the given address, using at least the given
	// fee rate for the on-chain transaction.
	SwapOutQuote(ctx context.Context, addr btcutil.Address,
		amt btcutil.Amount,
		minFeeRate chainfee.SatPerKVByte) (btcutil.Amount, error)
}

// Publisher submits a ready swap out for execution.
type Publisher interface {
	// PublishSwapOut hands the fixed swap out over for execution and
	// returns the transaction ID of the resulting on-chain payment.
	PublishSwapOut(ctx context.Context, addr btcutil.Address,
		quote Quote) (*chainhash.Hash, error)
}

// BalanceSource exposes the current off-chain balance snapshot. The balance
// may be unknown, in which case balance bound checks are skipped.
type BalanceSource interface {
	// Balance returns the current balance and true, or false if the
	// balance is not known.
	Balance() (btcutil.Amount, bool)
}

// Store is responsible for persisting swap out records and their events.
type Store interface {
	// CreateSwap stores a new swap out record. It is an error if a record
	// with the same ID already exists.
	CreateSwap(*SwapRecord) error

	// UpdateSwap overwrites an existing swap out record, tracking the
	// state change in the event log.
	UpdateSwap(*SwapRecord) error
}

var (
	// ErrFlowNotInit is returned if an action that requires the initial
	// state is attempted on a flow that moved past it. The flow must be
	// invalidated first.
	ErrFlowNotInit = errors.New("swap out flow is not in init state")

	// ErrFlowNotReady is returned if a submission is attempted on a flow
	// that holds no valid quote.
	ErrFlowNotReady = errors.New("swap out flow is not in ready state")

	// ErrNoAmount is returned if a swap out is prepared without an
	// amount.
	ErrNoAmount = errors.New("no amount entered")

	// ErrQuoteSuperseded is returned to a prepare call whose quote
	// response was discarded because the flow was invalidated or prepared
	// again while the request was in flight.
	ErrQuoteSuperseded = errors.New("quote request superseded")

	// ErrQuoteInconsistent is returned if the quoted total no longer
	// reconciles with the chosen amount plus fee. The flow invalidates
	// itself when this is detected.
	ErrQuoteInconsistent = errors.New("quote total does not match " +
		"amount plus fee")
)

// ErrAmountBelowMinimum is returned if the chosen amount is below the minimum
// the swap service accepts.
type ErrAmountBelowMinimum struct {
	// Min is the smallest accepted amount.
	Min btcutil.Amount
}

// Error returns the underlying error message.
func (e *ErrAmountBelowMinimum) Error() string {
	return fmt.Sprintf("amount is below the swap minimum of %v", e.Min)
}

// ErrAmountAboveMaximum is returned if the chosen amount is above the maximum
// the swap service accepts.
type ErrAmountAboveMaximum struct {
	// Max is the largest accepted amount.
	Max btcutil.Amount
}

// Error returns the underlying error message.
func (e *ErrAmountAboveMaximum) Error() string {
	return fmt.Sprintf("amount is above the swap maximum of %v", e.Max)
}

// ErrAmountOverBalance is returned if the chosen amount exceeds the available
// balance.
type ErrAmountOverBalance struct {
	// Balance is the currently available balance.
	Balance btcutil.Amount
}

// Error returns the underlying error message.
func (e *ErrAmountOverBalance) Error() string {
	return fmt.Sprintf("amount exceeds the available balance of %v",
		e.Balance)
}

// ErrAmountBelowRequested is returned if the chosen amount is below the
// amount the originating payment link requested.
type ErrAmountBelowRequested struct {
	// Requested is the amount the payment link asked for.
	Requested btcutil.Amount
}

// Error returns the underlying error message.
func (e *ErrAmountBelowRequested) Error() string {
	return fmt.Sprintf("amount is below the requested amount of %v",
		e.Requested)
}

// ErrInsufficientFundsForFee is returned if the balance covers the chosen
// amount but not the quoted total including fees. The flow stays in the ready
// state, the submission is just blocked.
type ErrInsufficientFundsForFee struct {
	// Total is the quoted total to be debited.
	Total btcutil.Amount

	// Balance is the currently available balance.
	Balance btcutil.Amount
}

// Error returns the underlying error message.
func (e *ErrInsufficientFundsForFee) Error() string {
	return fmt.Sprintf("balance of %v cannot cover total of %v including "+
		"fees", e.Balance, e.Total)
}
