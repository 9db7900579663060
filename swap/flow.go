package swap

import (
	"context"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/nownosw/phoenix/terms"
)

// FlowUpdate is the notification observers receive whenever a flow changes
// its state.
type FlowUpdate struct {
	// ID is the identifier of the flow that changed.
	ID ID

	// State is the state the flow transitioned to.
	State State

	// Amount is the user's current chosen amount.
	Amount btcutil.Amount

	// Quote is the current quote, only meaningful in the ready and
	// sending states.
	Quote Quote
}

// FlowConfig contains all of the required dependencies for a flow to carry
// out its duties.
type FlowConfig struct {
	// Quoter requests fee quotes from the swap service.
	Quoter Quoter

	// Publisher submits ready swap outs for execution.
	Publisher Publisher

	// Balance exposes the current off-chain balance snapshot.
	Balance BalanceSource

	// Terms supplies the current swap out bounds, falling back to the
	// hardcoded defaults when the external source is unavailable.
	Terms *terms.FallbackSource

	// Store persists the flow's record and events.
	Store Store

	// ChainParams identify the chain destination addresses must be valid
	// for.
	ChainParams *chaincfg.Params

	// OnUpdate, if set, is invoked on every state transition. The
	// callback must not block and must not call back into the flow.
	OnUpdate func(FlowUpdate)
}

// Flow is the state machine driving a single user initiated swap out attempt
// from amount entry to submission. It is safe to use from an event driven
// context where balance updates, quote responses and user input interleave,
// all transitions are applied atomically.
type Flow struct {
	cfg FlowConfig

	id              ID
	address         btcutil.Address
	addressStr      string
	requestedAmount btcutil.Amount

	mtx    sync.Mutex
	state  State
	amount btcutil.Amount
	quote  Quote

	// quoteGen is bumped whenever an in-flight quote request is
	// superseded so its response can be told apart from the current one.
	quoteGen uint64

	// pendingInvalidate is set when an amount change arrives while a
	// quote request is outstanding. The invalidation is applied as soon
	// as the in-flight quote resolves.
	pendingInvalidate bool
}

// NewFlow creates a new swap out flow for the given destination address. The
// requested amount is the amount an originating payment link asked for, zero
// if the user is free to choose.
func NewFlow(cfg FlowConfig, address string,
	requestedAmount btcutil.Amount) (*Flow, error) {

	addr, err := btcutil.DecodeAddress(address, cfg.ChainParams)
	if err != nil {
		return nil, fmt.Errorf("invalid destination address: %v", err)
	}
	if !addr.IsForNet(cfg.ChainParams) {
		return nil, fmt.Errorf("address %v is not valid for network "+
			"%v", address, cfg.ChainParams.Name)
	}

	id, err := NewID()
	if err != nil {
		return nil, err
	}

	f := &Flow{
		cfg:             cfg,
		id:              id,
		address:         addr,
		addressStr:      address,
		requestedAmount: requestedAmount,
		state:           StateInit,
		amount:          requestedAmount,
	}

	if err := cfg.Store.CreateSwap(f.recordLocked()); err != nil {
		return nil, err
	}

	log.Infof("Swap out flow %v created, address=%v requested=%v", id,
		address, requestedAmount)

	return f, nil
}

// ID returns the unique identifier of the flow.
func (f *Flow) ID() ID {
	return f.id
}

// Address returns the destination address of the flow.
func (f *Flow) Address() string {
	return f.addressStr
}

// RequestedAmount returns the amount the originating payment link asked for,
// zero if none.
func (f *Flow) RequestedAmount() btcutil.Amount {
	return f.requestedAmount
}

// State returns the current state of the flow.
func (f *Flow) State() State {
	f.mtx.Lock()
	defer f.mtx.Unlock()

	return f.state
}

// Amount returns the user's current chosen amount.
func (f *Flow) Amount() btcutil.Amount {
	f.mtx.Lock()
	defer f.mtx.Unlock()

	return f.amount
}

// Quote returns the current quote and true if the flow holds one.
func (f *Flow) Quote() (Quote, bool) {
	f.mtx.Lock()
	defer f.mtx.Unlock()

	if f.state != StateReady && f.state != StateSending {
		return Quote{}, false
	}
	return f.quote, true
}

// ValidateAmount checks the given amount against the swap terms, the
// available balance and the requested amount of the originating payment
// link. It never transitions the flow.
func (f *Flow) ValidateAmount(ctx context.Context,
	amt btcutil.Amount) error {

	return f.validateAmount(amt, f.cfg.Terms.Current(ctx))
}

// validateAmount applies the bound checks against the given terms.
func (f *Flow) validateAmount(amt btcutil.Amount,
	t *terms.SwapTerms) error {

	if amt < t.MinAmount {
		return &ErrAmountBelowMinimum{Min: t.MinAmount}
	}
	if amt > t.MaxAmount {
		return &ErrAmountAboveMaximum{Max: t.MaxAmount}
	}
	if balance, ok := f.cfg.Balance.Balance(); ok && amt > balance {
		return &ErrAmountOverBalance{Balance: balance}
	}
	if f.requestedAmount != 0 && amt < f.requestedAmount {
		return &ErrAmountBelowRequested{
			Requested: f.requestedAmount,
		}
	}

	return nil
}

// UpdateAmount records a change of the user's chosen amount. If the flow
// already moved past the initial state and the amount actually changed, the
// flow is invalidated first so a stale quote can never be submitted. The
// returned error is the validation feedback for the new amount.
func (f *Flow) UpdateAmount(ctx context.Context, amt btcutil.Amount) error {
	f.mtx.Lock()
	if f.state != StateInit && amt != f.amount {
		// A swap out was already prepared for a different amount, we
		// must start over.
		f.invalidateLocked()
	}
	f.amount = amt
	f.mtx.Unlock()

	if amt == 0 {
		return nil
	}
	return f.ValidateAmount(ctx, amt)
}

// Invalidate forces the flow back to the initial state, discarding any
// in-flight or obtained quote. Calling it on a flow in the initial state is a
// no-op.
func (f *Flow) Invalidate() {
	f.mtx.Lock()
	defer f.mtx.Unlock()

	f.invalidateLocked()
}

// invalidateLocked applies the invalidation transition. If a quote request is
// currently in flight the invalidation is queued and applied when the
// request resolves, the response itself is discarded.
func (f *Flow) invalidateLocked() {
	switch f.state {
	case StateInit:

	case StateRequestingQuote:
		f.pendingInvalidate = true
		f.quoteGen++

	default:
		f.toInitLocked()
	}
}

// toInitLocked resets the flow to the initial state.
func (f *Flow) toInitLocked() {
	f.quote = Quote{}
	f.pendingInvalidate = false
	f.transitionLocked(StateInit)
}

// transitionLocked applies a state transition, persists the updated record
// and notifies observers.
func (f *Flow) transitionLocked(newState State) {
	log.Debugf("Swap out flow %v: %v -> %v", f.id, f.state, newState)

	f.state = newState

	if err := f.cfg.Store.UpdateSwap(f.recordLocked()); err != nil {
		log.Errorf("Could not persist swap out flow %v: %v", f.id,
			err)
	}

	if f.cfg.OnUpdate != nil {
		f.cfg.OnUpdate(FlowUpdate{
			ID:     f.id,
			State:  newState,
			Amount: f.amount,
			Quote:  f.quote,
		})
	}
}

// recordLocked snapshots the flow into its persisted form.
func (f *Flow) recordLocked() *SwapRecord {
	return &SwapRecord{
		ID:              f.id,
		Address:         f.addressStr,
		RequestedAmount: f.requestedAmount,
		Amount:          f.amount,
		Fee:             f.quote.Fee,
		Total:           f.quote.Total,
		State:           f.state,
	}
}

// PrepareSwapOut validates the chosen amount and requests a fee quote for
// it. It is only valid in the initial state, a flow holding a quote must be
// invalidated first. On success the flow ends up in the ready state with the
// total to be debited fixed. No transition happens on validation failure.
func (f *Flow) PrepareSwapOut(ctx context.Context,
	amt btcutil.Amount) error {

	if amt == 0 {
		return ErrNoAmount
	}

	// Reading the terms may hit the network, do it before grabbing the
	// lock.
	t := f.cfg.Terms.Current(ctx)

	f.mtx.Lock()
	if f.state != StateInit {
		f.mtx.Unlock()
		return ErrFlowNotInit
	}
	if err := f.validateAmount(amt, t); err != nil {
		f.mtx.Unlock()
		return err
	}

	f.amount = amt
	f.quoteGen++
	gen := f.quoteGen
	f.transitionLocked(StateRequestingQuote)
	f.mtx.Unlock()

	fee, err := f.cfg.Quoter.SwapOutQuote(
		ctx, f.address, amt, t.MinFeeRate,
	)

	f.mtx.Lock()
	defer f.mtx.Unlock()

	// The flow moved on while the request was in flight, the response
	// must not revive it.
	if f.state != StateRequestingQuote {
		log.Debugf("Swap out flow %v: discarding stale quote "+
			"response", f.id)
		return ErrQuoteSuperseded
	}

	// An invalidation was queued while the request was outstanding,
	// apply it now and discard the response.
	if f.pendingInvalidate || f.quoteGen != gen {
		f.toInitLocked()
		return ErrQuoteSuperseded
	}

	if err != nil {
		f.toInitLocked()
		return fmt.Errorf("quote request failed: %w", err)
	}

	quote := Quote{
		UserAmount: amt,
		Fee:        fee,
		Total:      amt + fee,
	}
	if !quote.wellFormed() {
		f.toInitLocked()
		return ErrQuoteInconsistent
	}

	f.quote = quote
	f.transitionLocked(StateReady)

	log.Infof("Swap out flow %v ready, %v", f.id, quote)

	return nil
}

// SendSwapOut submits the quoted swap out for execution. It is only valid in
// the ready state and requires the balance, when known, to cover the quoted
// total. If the total no longer reconciles with amount plus fee the flow
// invalidates itself instead of submitting.
func (f *Flow) SendSwapOut(ctx context.Context) error {
	f.mtx.Lock()
	if f.state != StateReady {
		f.mtx.Unlock()
		return ErrFlowNotReady
	}

	// Consistency guard against stale quotes, e.g. due to a race with an
	// amount change.
	quote := f.quote
	if !quote.wellFormed() || quote.UserAmount != f.amount {
		f.toInitLocked()
		f.mtx.Unlock()
		return ErrQuoteInconsistent
	}

	// The submission is blocked, but the quote stays valid, if the
	// balance cannot cover the total including fees.
	if balance, ok := f.cfg.Balance.Balance(); ok && quote.Total > balance {
		f.mtx.Unlock()
		return &ErrInsufficientFundsForFee{
			Total:   quote.Total,
			Balance: balance,
		}
	}

	f.transitionLocked(StateSending)
	f.mtx.Unlock()

	txid, err := f.cfg.Publisher.PublishSwapOut(ctx, f.address, quote)
	if err != nil {
		return fmt.Errorf("swap out submission failed: %w", err)
	}

	f.mtx.Lock()
	defer f.mtx.Unlock()

	// The flow may have been invalidated while the submission was in
	// flight. The swap out was still published, but the transaction ID
	// must not be stamped onto a record that went back to the initial
	// state.
	if f.state != StateSending {
		log.Warnf("Swap out flow %v published as txid=%v but was "+
			"invalidated during submission", f.id, txid)
		return nil
	}

	record := f.recordLocked()
	record.TxID = *txid
	if err := f.cfg.Store.UpdateSwap(record); err != nil {
		log.Errorf("Could not persist swap out flow %v: %v", f.id,
			err)
	}

	log.Infof("Swap out flow %v sent, txid=%v", f.id, txid)

	return nil
}
