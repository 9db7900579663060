package swap

import (
	"context"
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/lnwallet/chainfee"
)

// mockQuoter is a Quoter returning a fixed fee or error. Setting the gate
// channel makes the quote request block until the channel is closed, the
// calls channel signals that a request arrived.
type mockQuoter struct {
	fee btcutil.Amount
	err error

	gate  chan struct{}
	calls chan struct{}
}

func (q *mockQuoter) SwapOutQuote(_ context.Context, _ btcutil.Address,
	_ btcutil.Amount, _ chainfee.SatPerKVByte) (btcutil.Amount, error) {

	if q.calls != nil {
		q.calls <- struct{}{}
	}
	if q.gate != nil {
		<-q.gate
	}
	return q.fee, q.err
}

// mockPublisher is a Publisher returning a fixed txid or error. The optional
// gate and calls channels work the same way as for the mockQuoter.
type mockPublisher struct {
	txid chainhash.Hash
	err  error

	gate  chan struct{}
	calls chan struct{}

	mtx       sync.Mutex
	published []Quote
}

func (p *mockPublisher) PublishSwapOut(_ context.Context, _ btcutil.Address,
	quote Quote) (*chainhash.Hash, error) {

	p.mtx.Lock()
	p.published = append(p.published, quote)
	p.mtx.Unlock()

	if p.calls != nil {
		p.calls <- struct{}{}
	}
	if p.gate != nil {
		<-p.gate
	}

	if p.err != nil {
		return nil, p.err
	}
	txid := p.txid
	return &txid, nil
}

func (p *mockPublisher) numPublished() int {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	return len(p.published)
}

// mockBalance is a BalanceSource serving a static snapshot.
type mockBalance struct {
	mtx   sync.Mutex
	amt   btcutil.Amount
	known bool
}

func (b *mockBalance) Balance() (btcutil.Amount, bool) {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	return b.amt, b.known
}

func (b *mockBalance) set(amt btcutil.Amount) {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	b.amt = amt
	b.known = true
}

// mockStore is an in-memory Store that keeps the latest version of each
// record.
type mockStore struct {
	mtx     sync.Mutex
	records map[ID]*SwapRecord
	updates int
}

func newMockStore() *mockStore {
	return &mockStore{
		records: make(map[ID]*SwapRecord),
	}
}

func (s *mockStore) CreateSwap(record *SwapRecord) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	s.records[record.ID] = record
	return nil
}

func (s *mockStore) UpdateSwap(record *SwapRecord) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	s.records[record.ID] = record
	s.updates++
	return nil
}

func (s *mockStore) get(id ID) *SwapRecord {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	return s.records[id]
}
