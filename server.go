package phoenix

import (
	"fmt"
	"net"
	"path/filepath"
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/nownosw/phoenix/clientdb"
	"github.com/nownosw/phoenix/rates"
	"github.com/nownosw/phoenix/swap"
	"github.com/nownosw/phoenix/terms"
)

// Server is the main phoenixd daemon. It glues together the database, the
// exchange rate feed, the swap terms source and the set of in-flight swap
// out flows, and exposes all of it over the JSON HTTP interface.
type Server struct {
	cfg         *Config
	chainParams *chaincfg.Params

	db        *clientdb.DB
	ratesFeed *rates.Feed
	termsSrc  *terms.FallbackSource
	quoter    swap.Quoter
	publisher swap.Publisher

	rpcServer *rpcServer

	// balanceMtx guards the off-chain balance snapshot pushed by the
	// wallet host.
	balanceMtx   sync.Mutex
	balance      btcutil.Amount
	balanceKnown bool

	// flowMtx guards the map of live swap out flows.
	flowMtx sync.Mutex
	flows   map[swap.ID]*swap.Flow

	updates *updateHub

	started sync.Once
	stopped sync.Once
}

// NewServer creates a new daemon instance from the given configuration. The
// database is opened and all subsystems are constructed, but nothing is
// started yet.
func NewServer(cfg *Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	chainParams, err := networkParams(cfg.Network)
	if err != nil {
		return nil, err
	}

	// Open the main database in the network specific subdirectory.
	networkDir := filepath.Join(cfg.BaseDir, cfg.Network)
	db, err := clientdb.New(networkDir)
	if err != nil {
		return nil, err
	}

	// The terms source is optional, the fallback source degrades to the
	// hardcoded defaults without one.
	var termsHTTP terms.Source
	if cfg.TermsURL != "" {
		termsHTTP = terms.NewHTTPSource(cfg.TermsURL)
	}

	s := &Server{
		cfg:         cfg,
		chainParams: chainParams,
		db:          db,
		termsSrc:    terms.NewFallbackSource(termsHTTP),
		quoter:      swap.NewScheduleQuoter(cfg.feeSchedule()),
		publisher:   newWebhookPublisher(cfg.PublishURL),
		flows:       make(map[swap.ID]*swap.Flow),
		updates:     newUpdateHub(),
	}

	s.ratesFeed = rates.NewFeed(rates.FeedConfig{
		URL:             cfg.Rates.URL,
		Fiat:            cfg.fiatUnit(),
		RefreshInterval: cfg.Rates.Interval,
	})

	s.rpcServer = newRPCServer(s)

	return s, nil
}

// Start runs all subsystems and begins serving the JSON HTTP interface.
func (s *Server) Start() error {
	var startErr error
	s.started.Do(func() {
		log.Infof("Starting phoenixd version %v", Version())

		s.ratesFeed.Start()

		// If a custom listener was provided, use it instead of
		// binding the configured address ourselves.
		listener := s.cfg.RPCListener
		if listener == nil {
			listener, startErr = net.Listen("tcp", s.cfg.RPCListen)
			if startErr != nil {
				startErr = fmt.Errorf("unable to listen on "+
					"%v: %v", s.cfg.RPCListen, startErr)
				return
			}
		}

		startErr = s.rpcServer.start(listener)
	})
	return startErr
}

// Stop shuts down all subsystems in reverse start order.
func (s *Server) Stop() error {
	var stopErr error
	s.stopped.Do(func() {
		log.Infof("Stopping phoenixd")

		if err := s.rpcServer.stop(); err != nil {
			log.Errorf("Error stopping rpc server: %v", err)
			stopErr = err
		}

		s.ratesFeed.Stop()

		if err := s.db.Close(); err != nil {
			log.Errorf("Error closing database: %v", err)
			stopErr = err
		}
	})
	return stopErr
}

// Balance returns the last off-chain balance snapshot the wallet host pushed
// to us. The second return value is false as long as no snapshot arrived yet.
//
// NOTE: This is part of the swap.BalanceSource interface.
func (s *Server) Balance() (btcutil.Amount, bool) {
	s.balanceMtx.Lock()
	defer s.balanceMtx.Unlock()

	return s.balance, s.balanceKnown
}

// SetBalance records a new off-chain balance snapshot.
func (s *Server) SetBalance(balance btcutil.Amount) {
	s.balanceMtx.Lock()
	s.balance = balance
	s.balanceKnown = true
	s.balanceMtx.Unlock()

	log.Debugf("Balance snapshot updated to %v", balance)
}

// NewSwap creates a new swap out flow for the given destination address and
// registers it with the server.
func (s *Server) NewSwap(address string, requestedAmount btcutil.Amount) (
	*swap.Flow, error) {

	flow, err := swap.NewFlow(swap.FlowConfig{
		Quoter:      s.quoter,
		Publisher:   s.publisher,
		Balance:     s,
		Terms:       s.termsSrc,
		Store:       s.db,
		ChainParams: s.chainParams,
		OnUpdate:    s.updates.publish,
	}, address, requestedAmount)
	if err != nil {
		return nil, err
	}

	s.flowMtx.Lock()
	s.flows[flow.ID()] = flow
	s.flowMtx.Unlock()

	return flow, nil
}

// GetFlow returns the live flow with the given ID, if there is one.
func (s *Server) GetFlow(id swap.ID) (*swap.Flow, bool) {
	s.flowMtx.Lock()
	defer s.flowMtx.Unlock()

	flow, ok := s.flows[id]
	return flow, ok
}

// updateHub fans swap out flow updates out to all registered subscribers.
// Slow subscribers miss updates instead of blocking the flows.
type updateHub struct {
	mtx    sync.Mutex
	nextID uint64
	subs   map[uint64]chan swap.FlowUpdate
}

func newUpdateHub() *updateHub {
	return &updateHub{
		subs: make(map[uint64]chan swap.FlowUpdate),
	}
}

// subscribe registers a new subscriber and returns its ID together with the
// channel updates are delivered on.
func (h *updateHub) subscribe() (uint64, <-chan swap.FlowUpdate) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	id := h.nextID
	h.nextID++

	updates := make(chan swap.FlowUpdate, 16)
	h.subs[id] = updates

	return id, updates
}

// unsubscribe removes the subscriber with the given ID.
func (h *updateHub) unsubscribe(id uint64) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	delete(h.subs, id)
}

// publish delivers an update to all subscribers without blocking.
func (h *updateHub) publish(update swap.FlowUpdate) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	for id, sub := range h.subs {
		select {
		case sub <- update:
		default:
			log.Warnf("Subscriber %d is too slow, dropping "+
				"update", id)
		}
	}
}
