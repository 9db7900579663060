package swap

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/nownosw/phoenix/terms"
	"github.com/stretchr/testify/require"
)

const testAddr = "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq"

// testHarness bundles a flow with all its mocked dependencies.
type testHarness struct {
	t *testing.T

	quoter    *mockQuoter
	publisher *mockPublisher
	balance   *mockBalance
	store     *mockStore

	flow *Flow
}

func newTestHarness(t *testing.T, requestedAmount btcutil.Amount,
	quoter *mockQuoter) *testHarness {

	t.Helper()

	h := &testHarness{
		t:         t,
		quoter:    quoter,
		publisher: &mockPublisher{txid: chainhash.Hash{1, 2, 3}},
		balance:   &mockBalance{amt: 3_000_000, known: true},
		store:     newMockStore(),
	}

	flow, err := NewFlow(FlowConfig{
		Quoter:      h.quoter,
		Publisher:   h.publisher,
		Balance:     h.balance,
		Terms:       terms.NewFallbackSource(nil),
		Store:       h.store,
		ChainParams: &chaincfg.MainNetParams,
	}, testAddr, requestedAmount)
	require.NoError(t, err)

	h.flow = flow
	return h
}

func (h *testHarness) assertState(expected State) {
	h.t.Helper()

	require.Equal(h.t, expected, h.flow.State())
}

// TestNewFlowAddressValidation tests that a flow can only be created for a
// destination address that is valid for the configured network.
func TestNewFlowAddressValidation(t *testing.T) {
	t.Parallel()

	cfg := FlowConfig{
		Quoter:      &mockQuoter{},
		Publisher:   &mockPublisher{},
		Balance:     &mockBalance{},
		Terms:       terms.NewFallbackSource(nil),
		Store:       newMockStore(),
		ChainParams: &chaincfg.MainNetParams,
	}

	_, err := NewFlow(cfg, "not-an-address", 0)
	require.Error(t, err)

	// A testnet address must be rejected on mainnet.
	_, err = NewFlow(
		cfg, "tb1qw508d6qejxtdg4y5r3zarvary0c5xw7kxpjzsx", 0,
	)
	require.Error(t, err)

	flow, err := NewFlow(cfg, testAddr, 0)
	require.NoError(t, err)
	require.Equal(t, StateInit, flow.State())
}

// TestPrepareValidation tests that the amount bounds are enforced in the
// documented order before any quote is requested.
func TestPrepareValidation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	cases := []struct {
		name      string
		amt       btcutil.Amount
		balance   btcutil.Amount
		requested btcutil.Amount
		expErr    error
	}{{
		name:   "below minimum",
		amt:    terms.DefaultMinAmount - 1,
		expErr: &ErrAmountBelowMinimum{},
	}, {
		name:    "minimum is too low even with low balance",
		amt:     5_000,
		balance: 50_000,
		expErr:  &ErrAmountBelowMinimum{},
	}, {
		name:   "above maximum",
		amt:    terms.DefaultMaxAmount + 1,
		expErr: &ErrAmountAboveMaximum{},
	}, {
		name:    "over balance",
		amt:     60_000,
		balance: 50_000,
		expErr:  &ErrAmountOverBalance{},
	}, {
		name:      "below requested",
		amt:       40_000,
		requested: 50_000,
		expErr:    &ErrAmountBelowRequested{},
	}}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			quoter := &mockQuoter{fee: 300}
			h := newTestHarness(t, tc.requested, quoter)
			if tc.balance != 0 {
				h.balance.set(tc.balance)
			}

			err := h.flow.PrepareSwapOut(ctx, tc.amt)
			require.Error(t, err)
			require.IsType(t, tc.expErr, err)

			// Validation failures never transition the flow.
			h.assertState(StateInit)
		})
	}
}

// TestPrepareBoundaries tests that the bound checks are inclusive.
func TestPrepareBoundaries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	// Exactly the minimum amount is fine.
	h := newTestHarness(t, 0, &mockQuoter{fee: 300})
	require.NoError(t, h.flow.PrepareSwapOut(ctx, terms.DefaultMinAmount))
	h.assertState(StateReady)

	// Exactly the maximum amount is fine too.
	h = newTestHarness(t, 0, &mockQuoter{fee: 300})
	require.NoError(t, h.flow.PrepareSwapOut(ctx, terms.DefaultMaxAmount))
	h.assertState(StateReady)
}

// TestPrepareSwapOut tests the happy path of obtaining a quote.
func TestPrepareSwapOut(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newTestHarness(t, 0, &mockQuoter{fee: 300})

	require.ErrorIs(t, h.flow.PrepareSwapOut(ctx, 0), ErrNoAmount)

	require.NoError(t, h.flow.PrepareSwapOut(ctx, 1_000_000))
	h.assertState(StateReady)

	quote, ok := h.flow.Quote()
	require.True(t, ok)
	require.Equal(t, btcutil.Amount(1_000_000), quote.UserAmount)
	require.Equal(t, btcutil.Amount(300), quote.Fee)
	require.Equal(t, btcutil.Amount(1_000_300), quote.Total)

	// The ready state must be persisted together with the quote.
	record := h.store.get(h.flow.ID())
	require.Equal(t, StateReady, record.State)
	require.Equal(t, btcutil.Amount(1_000_300), record.Total)

	// A second prepare without invalidation must be rejected.
	err := h.flow.PrepareSwapOut(ctx, 1_000_000)
	require.ErrorIs(t, err, ErrFlowNotInit)
}

// TestPrepareQuoterError tests that a failing quote request resets the flow
// to the initial state.
func TestPrepareQuoterError(t *testing.T) {
	t.Parallel()

	quoter := &mockQuoter{err: errors.New("service offline")}
	h := newTestHarness(t, 0, quoter)

	err := h.flow.PrepareSwapOut(context.Background(), 1_000_000)
	require.Error(t, err)
	h.assertState(StateInit)

	_, ok := h.flow.Quote()
	require.False(t, ok)
}

// TestSendSwapOut tests the happy path of submitting a prepared swap out.
func TestSendSwapOut(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newTestHarness(t, 0, &mockQuoter{fee: 300})

	// Sending an unprepared flow must fail.
	require.ErrorIs(t, h.flow.SendSwapOut(ctx), ErrFlowNotReady)

	require.NoError(t, h.flow.PrepareSwapOut(ctx, 1_000_000))
	require.NoError(t, h.flow.SendSwapOut(ctx))
	h.assertState(StateSending)

	require.Equal(t, 1, h.publisher.numPublished())
	require.Equal(
		t, btcutil.Amount(1_000_300), h.publisher.published[0].Total,
	)

	// The txid of the submission must be persisted.
	record := h.store.get(h.flow.ID())
	require.Equal(t, StateSending, record.State)
	require.Equal(t, chainhash.Hash{1, 2, 3}, record.TxID)
}

// TestSendInsufficientFunds tests that a submission is blocked, with the
// quote kept intact, while the balance cannot cover the total including
// fees.
func TestSendInsufficientFunds(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newTestHarness(t, 0, &mockQuoter{fee: 300})

	require.NoError(t, h.flow.PrepareSwapOut(ctx, 1_000_000))

	// The amount alone fits the balance, but amount plus fee does not.
	h.balance.set(1_000_100)

	var insufficient *ErrInsufficientFundsForFee
	err := h.flow.SendSwapOut(ctx)
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, btcutil.Amount(1_000_300), insufficient.Total)

	// The flow stays ready, a balance top-up unblocks it.
	h.assertState(StateReady)
	require.Zero(t, h.publisher.numPublished())

	h.balance.set(1_000_300)
	require.NoError(t, h.flow.SendSwapOut(ctx))
	h.assertState(StateSending)
}

// TestInvalidateDuringSend tests that a flow invalidated while the submission
// is in flight never records the published transaction on the reset record.
func TestInvalidateDuringSend(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newTestHarness(t, 0, &mockQuoter{fee: 300})
	h.publisher.gate = make(chan struct{})
	h.publisher.calls = make(chan struct{}, 1)

	require.NoError(t, h.flow.PrepareSwapOut(ctx, 1_000_000))

	sendErr := make(chan error, 1)
	go func() {
		sendErr <- h.flow.SendSwapOut(ctx)
	}()

	// Wait for the submission to be in flight, then invalidate the flow
	// while it is outstanding.
	select {
	case <-h.publisher.calls:
	case <-time.After(5 * time.Second):
		t.Fatal("swap out was never submitted")
	}
	h.flow.Invalidate()
	h.assertState(StateInit)

	close(h.publisher.gate)

	select {
	case err := <-sendErr:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("send never returned")
	}

	// The swap out was published, but the transaction ID must not end up
	// on a record that went back to the initial state.
	h.assertState(StateInit)
	record := h.store.get(h.flow.ID())
	require.Equal(t, StateInit, record.State)
	require.Equal(t, chainhash.Hash{}, record.TxID)
	require.Zero(t, record.Total)
}

// TestAmountChangeInvalidates tests that changing the amount of a prepared
// flow discards the quote and resets the flow.
func TestAmountChangeInvalidates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newTestHarness(t, 0, &mockQuoter{fee: 300})

	require.NoError(t, h.flow.PrepareSwapOut(ctx, 1_000_000))
	h.assertState(StateReady)

	// Re-entering the same amount changes nothing.
	require.NoError(t, h.flow.UpdateAmount(ctx, 1_000_000))
	h.assertState(StateReady)

	// A different amount invalidates the quote.
	require.NoError(t, h.flow.UpdateAmount(ctx, 1_500_000))
	h.assertState(StateInit)

	_, ok := h.flow.Quote()
	require.False(t, ok)

	// The old quote must not be usable anymore.
	require.ErrorIs(t, h.flow.SendSwapOut(ctx), ErrFlowNotReady)
}

// TestStaleQuoteDiscarded tests that a quote response arriving after the
// flow was invalidated is discarded instead of reviving the flow.
func TestStaleQuoteDiscarded(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	quoter := &mockQuoter{
		fee:   300,
		gate:  make(chan struct{}),
		calls: make(chan struct{}, 1),
	}
	h := newTestHarness(t, 0, quoter)

	prepareErr := make(chan error, 1)
	go func() {
		prepareErr <- h.flow.PrepareSwapOut(ctx, 1_000_000)
	}()

	// Wait for the quote request to be in flight, then invalidate the
	// flow while it is outstanding.
	select {
	case <-quoter.calls:
	case <-time.After(5 * time.Second):
		t.Fatal("quote request was never sent")
	}
	h.assertState(StateRequestingQuote)
	h.flow.Invalidate()

	// Release the quote response. It must be discarded and the flow must
	// settle in the initial state.
	close(quoter.gate)

	select {
	case err := <-prepareErr:
		require.ErrorIs(t, err, ErrQuoteSuperseded)
	case <-time.After(5 * time.Second):
		t.Fatal("prepare never returned")
	}

	h.assertState(StateInit)
	_, ok := h.flow.Quote()
	require.False(t, ok)
}

// TestQueuedInvalidation tests that an amount change during an in-flight
// quote request queues an invalidation that is applied when the request
// resolves.
func TestQueuedInvalidation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	quoter := &mockQuoter{
		fee:   300,
		gate:  make(chan struct{}),
		calls: make(chan struct{}, 1),
	}
	h := newTestHarness(t, 0, quoter)

	prepareErr := make(chan error, 1)
	go func() {
		prepareErr <- h.flow.PrepareSwapOut(ctx, 1_000_000)
	}()

	select {
	case <-quoter.calls:
	case <-time.After(5 * time.Second):
		t.Fatal("quote request was never sent")
	}

	// The user types a new amount while the request is outstanding.
	require.NoError(t, h.flow.UpdateAmount(ctx, 1_500_000))

	close(quoter.gate)

	select {
	case err := <-prepareErr:
		require.ErrorIs(t, err, ErrQuoteSuperseded)
	case <-time.After(5 * time.Second):
		t.Fatal("prepare never returned")
	}

	h.assertState(StateInit)
	require.Equal(t, btcutil.Amount(1_500_000), h.flow.Amount())

	// The new amount can be prepared normally afterwards.
	require.NoError(t, h.flow.PrepareSwapOut(ctx, 1_500_000))
	h.assertState(StateReady)
}

// TestUpdateAmountFeedback tests that amount updates return the validation
// feedback for the new amount without transitioning the flow.
func TestUpdateAmountFeedback(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newTestHarness(t, 0, &mockQuoter{fee: 300})

	// A cleared amount is not an error.
	require.NoError(t, h.flow.UpdateAmount(ctx, 0))

	var belowMin *ErrAmountBelowMinimum
	err := h.flow.UpdateAmount(ctx, terms.DefaultMinAmount-1)
	require.ErrorAs(t, err, &belowMin)

	// The feedback is advisory, the amount is recorded regardless and
	// the flow stays in the initial state.
	require.Equal(
		t, terms.DefaultMinAmount-1, h.flow.Amount(),
	)
	h.assertState(StateInit)
}

// TestBalanceUnknown tests that an unknown balance skips the balance check
// instead of blocking the flow.
func TestBalanceUnknown(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newTestHarness(t, 0, &mockQuoter{fee: 300})
	h.balance.known = false

	require.NoError(t, h.flow.PrepareSwapOut(ctx, 1_000_000))
	require.NoError(t, h.flow.SendSwapOut(ctx))
	h.assertState(StateSending)
}
