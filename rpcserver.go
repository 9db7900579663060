package phoenix

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/nownosw/phoenix/amounts"
	"github.com/nownosw/phoenix/clientdb"
	"github.com/nownosw/phoenix/swap"
)

const (
	// rpcTimeout is how long a request handler may run before the
	// connection is cut off.
	rpcTimeout = 10 * time.Second

	// wsWriteWait is the time allowed to write an event to a websocket
	// peer.
	wsWriteWait = 10 * time.Second

	// wsPingPeriod is the interval between two keepalive pings on the
	// event stream.
	wsPingPeriod = 50 * time.Second
)

// rpcServer implements the JSON HTTP and websocket interface of the daemon.
type rpcServer struct {
	server *Server

	srv      *http.Server
	listener net.Listener

	wg   sync.WaitGroup
	quit chan struct{}
}

// newRPCServer creates a new RPC server with all routes registered.
func newRPCServer(server *Server) *rpcServer {
	s := &rpcServer{
		server: server,
		quit:   make(chan struct{}),
	}

	mux := chi.NewRouter()
	mux.Use(middleware.Recoverer)

	mux.Route("/v1", func(r chi.Router) {
		r.Use(middleware.AllowContentType("application/json"))

		r.Post("/convert", s.handleConvert)
		r.Post("/balance", s.handleSetBalance)
		r.Get("/rate", s.handleRate)
		r.Get("/terms", s.handleTerms)

		r.Post("/swaps", s.handleNewSwap)
		r.Get("/swaps", s.handleListSwaps)
		r.Get("/swaps/{id}", s.handleGetSwap)
		r.Post("/swaps/{id}/amount", s.handleUpdateAmount)
		r.Post("/swaps/{id}/prepare", s.handlePrepare)
		r.Post("/swaps/{id}/send", s.handleSend)
		r.Post("/swaps/{id}/invalidate", s.handleInvalidate)
	})
	mux.Get("/v1/events", s.handleEvents)

	s.srv = &http.Server{
		Handler:      mux,
		ReadTimeout:  rpcTimeout,
		WriteTimeout: rpcTimeout,
	}

	return s
}

// start begins serving requests on the given listener.
func (s *rpcServer) start(listener net.Listener) error {
	s.listener = listener

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		rpcLog.Infof("RPC server listening on %v", listener.Addr())
		err := s.srv.Serve(listener)
		if !errors.Is(err, http.ErrServerClosed) {
			rpcLog.Errorf("RPC server exited with error: %v", err)
		}
	}()

	return nil
}

// stop shuts the HTTP server down and waits for all handlers to finish.
func (s *rpcServer) stop() error {
	close(s.quit)

	ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
	defer cancel()

	err := s.srv.Shutdown(ctx)
	s.wg.Wait()

	return err
}

// convertRequest is the request body of the convert endpoint. Amount is the
// raw user input, unit names either one of the bitcoin units or a fiat
// currency code, and the display unit selects the bitcoin unit the converted
// value is rendered in.
type convertRequest struct {
	Amount      string `json:"amount"`
	Unit        string `json:"unit"`
	DisplayUnit string `json:"display_unit"`
}

// convertResponse mirrors the conversion result. Either the amount fields are
// set, or the error field carries the user facing validation feedback.
type convertResponse struct {
	AmountSat    int64   `json:"amount_sat,omitempty"`
	FiatValue    float64 `json:"fiat_value,omitempty"`
	FiatCurrency string  `json:"fiat_currency,omitempty"`
	Converted    string  `json:"converted,omitempty"`
	Error        string  `json:"error,omitempty"`
}

func (s *rpcServer) handleConvert(w http.ResponseWriter, r *http.Request) {
	var req convertRequest
	if !readJSON(w, r, &req) {
		return
	}

	unit, err := parseCurrencyUnit(req.Unit)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}

	displayUnit := amounts.UnitSat
	if req.DisplayUnit != "" {
		displayUnit, err = amounts.ParseBitcoinUnit(req.DisplayUnit)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err)
			return
		}
	}

	result := amounts.Convert(
		req.Amount, unit, displayUnit, s.server.ratesFeed.Rate(),
	)

	resp := convertResponse{Converted: result.Converted}
	if result.Err != nil {
		resp.Error = result.Err.Error()
	}
	if result.Amount != nil {
		resp.AmountSat = int64(result.Amount.Amount)
		resp.FiatValue = result.Amount.FiatValue
		resp.FiatCurrency = string(result.Amount.FiatCurrency)
	}

	writeJSON(w, resp)
}

// parseCurrencyUnit maps a unit name to either a bitcoin unit or a fiat
// currency code.
func parseCurrencyUnit(s string) (amounts.CurrencyUnit, error) {
	if unit, err := amounts.ParseBitcoinUnit(s); err == nil {
		return unit, nil
	}
	return amounts.FiatUnit(strings.ToUpper(s)), nil
}

type balanceRequest struct {
	BalanceSat int64 `json:"balance_sat"`
}

func (s *rpcServer) handleSetBalance(w http.ResponseWriter, r *http.Request) {
	var req balanceRequest
	if !readJSON(w, r, &req) {
		return
	}

	s.server.SetBalance(btcutil.Amount(req.BalanceSat))
	writeJSON(w, struct{}{})
}

type rateResponse struct {
	Fiat      string  `json:"fiat"`
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"`
}

func (s *rpcServer) handleRate(w http.ResponseWriter, r *http.Request) {
	rate := s.server.ratesFeed.Rate()
	if rate == nil {
		writeJSONError(
			w, http.StatusServiceUnavailable,
			errors.New("no exchange rate available yet"),
		)
		return
	}

	writeJSON(w, rateResponse{
		Fiat:      string(rate.Fiat),
		Price:     rate.Price,
		Timestamp: rate.Timestamp.Unix(),
	})
}

type termsResponse struct {
	MinFeerateSatByte int64 `json:"min_feerate_sat_byte"`
	MinAmountSat      int64 `json:"min_amount_sat"`
	MaxAmountSat      int64 `json:"max_amount_sat"`
}

func (s *rpcServer) handleTerms(w http.ResponseWriter, r *http.Request) {
	t := s.server.termsSrc.Current(r.Context())
	writeJSON(w, termsResponse{
		MinFeerateSatByte: int64(t.MinFeeRate / 1000),
		MinAmountSat:      int64(t.MinAmount),
		MaxAmountSat:      int64(t.MaxAmount),
	})
}

type newSwapRequest struct {
	Address            string `json:"address"`
	RequestedAmountSat int64  `json:"requested_amount_sat"`
}

// swapResponse is the JSON rendering of a swap out flow or its stored
// record.
type swapResponse struct {
	ID                 string `json:"id"`
	Address            string `json:"address"`
	State              string `json:"state"`
	RequestedAmountSat int64  `json:"requested_amount_sat,omitempty"`
	AmountSat          int64  `json:"amount_sat,omitempty"`
	FeeSat             int64  `json:"fee_sat,omitempty"`
	TotalSat           int64  `json:"total_sat,omitempty"`
	Txid               string `json:"txid,omitempty"`
}

func marshallFlow(f *swap.Flow) *swapResponse {
	resp := &swapResponse{
		ID:                 f.ID().String(),
		Address:            f.Address(),
		State:              f.State().String(),
		RequestedAmountSat: int64(f.RequestedAmount()),
		AmountSat:          int64(f.Amount()),
	}
	if quote, ok := f.Quote(); ok {
		resp.FeeSat = int64(quote.Fee)
		resp.TotalSat = int64(quote.Total)
	}
	return resp
}

func marshallRecord(rec *swap.SwapRecord) *swapResponse {
	resp := &swapResponse{
		ID:                 rec.ID.String(),
		Address:            rec.Address,
		State:              rec.State.String(),
		RequestedAmountSat: int64(rec.RequestedAmount),
		AmountSat:          int64(rec.Amount),
		FeeSat:             int64(rec.Fee),
		TotalSat:           int64(rec.Total),
	}
	if rec.TxID != (chainhash.Hash{}) {
		resp.Txid = rec.TxID.String()
	}
	return resp
}

func (s *rpcServer) handleNewSwap(w http.ResponseWriter, r *http.Request) {
	var req newSwapRequest
	if !readJSON(w, r, &req) {
		return
	}

	flow, err := s.server.NewSwap(
		req.Address, btcutil.Amount(req.RequestedAmountSat),
	)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}

	writeJSON(w, marshallFlow(flow))
}

func (s *rpcServer) handleListSwaps(w http.ResponseWriter, r *http.Request) {
	records, err := s.server.db.GetSwaps()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}

	resp := make([]*swapResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, marshallRecord(rec))
	}
	writeJSON(w, resp)
}

func (s *rpcServer) handleGetSwap(w http.ResponseWriter, r *http.Request) {
	id, ok := s.parseSwapID(w, r)
	if !ok {
		return
	}

	// Prefer the live flow, it also knows about quotes that were not
	// persisted yet.
	if flow, ok := s.server.GetFlow(id); ok {
		writeJSON(w, marshallFlow(flow))
		return
	}

	rec, err := s.server.db.GetSwap(id)
	switch {
	case errors.Is(err, clientdb.ErrNoSwap):
		writeJSONError(w, http.StatusNotFound, err)
		return

	case err != nil:
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, marshallRecord(rec))
}

type updateAmountRequest struct {
	AmountSat int64 `json:"amount_sat"`
}

func (s *rpcServer) handleUpdateAmount(w http.ResponseWriter,
	r *http.Request) {

	flow, ok := s.liveFlow(w, r)
	if !ok {
		return
	}

	var req updateAmountRequest
	if !readJSON(w, r, &req) {
		return
	}

	err := flow.UpdateAmount(r.Context(), btcutil.Amount(req.AmountSat))
	if err != nil {
		writeSwapError(w, err)
		return
	}

	writeJSON(w, marshallFlow(flow))
}

func (s *rpcServer) handlePrepare(w http.ResponseWriter, r *http.Request) {
	flow, ok := s.liveFlow(w, r)
	if !ok {
		return
	}

	err := flow.PrepareSwapOut(r.Context(), flow.Amount())
	if err != nil {
		writeSwapError(w, err)
		return
	}

	writeJSON(w, marshallFlow(flow))
}

func (s *rpcServer) handleSend(w http.ResponseWriter, r *http.Request) {
	flow, ok := s.liveFlow(w, r)
	if !ok {
		return
	}

	if err := flow.SendSwapOut(r.Context()); err != nil {
		writeSwapError(w, err)
		return
	}

	writeJSON(w, marshallFlow(flow))
}

func (s *rpcServer) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	flow, ok := s.liveFlow(w, r)
	if !ok {
		return
	}

	flow.Invalidate()
	writeJSON(w, marshallFlow(flow))
}

// handleEvents upgrades the connection to a websocket and streams swap out
// flow updates until the peer disconnects or the server shuts down.
func (s *rpcServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		rpcLog.Errorf("Websocket upgrade failed: %v", err)
		return
	}

	id, updates := s.server.updates.subscribe()
	rpcLog.Debugf("New event subscriber %d from %v", id, r.RemoteAddr)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.server.updates.unsubscribe(id)
		defer conn.Close()

		// Discard inbound messages, but notice the peer going away.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		pings := time.NewTicker(wsPingPeriod)
		defer pings.Stop()

		for {
			select {
			case update := <-updates:
				err := conn.SetWriteDeadline(
					time.Now().Add(wsWriteWait),
				)
				if err != nil {
					return
				}
				err = conn.WriteJSON(marshallUpdate(update))
				if err != nil {
					rpcLog.Debugf("Event subscriber %d "+
						"write failed: %v", id, err)
					return
				}

			case <-pings.C:
				err := conn.WriteControl(
					websocket.PingMessage, nil,
					time.Now().Add(wsWriteWait),
				)
				if err != nil {
					return
				}

			case <-done:
				return

			case <-s.quit:
				return
			}
		}
	}()
}

// eventMessage is the JSON rendering of a flow update on the event stream.
type eventMessage struct {
	ID        string `json:"id"`
	State     string `json:"state"`
	AmountSat int64  `json:"amount_sat"`
	FeeSat    int64  `json:"fee_sat,omitempty"`
	TotalSat  int64  `json:"total_sat,omitempty"`
}

func marshallUpdate(update swap.FlowUpdate) *eventMessage {
	return &eventMessage{
		ID:        update.ID.String(),
		State:     update.State.String(),
		AmountSat: int64(update.Amount),
		FeeSat:    int64(update.Quote.Fee),
		TotalSat:  int64(update.Quote.Total),
	}
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// parseSwapID extracts and parses the swap ID from the request URL.
func (s *rpcServer) parseSwapID(w http.ResponseWriter, r *http.Request) (
	swap.ID, bool) {

	id, err := swap.IDFromString(chi.URLParam(r, "id"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return swap.ID{}, false
	}
	return id, true
}

// liveFlow resolves the request's swap ID to a live flow, writing the error
// response if there is none.
func (s *rpcServer) liveFlow(w http.ResponseWriter, r *http.Request) (
	*swap.Flow, bool) {

	id, ok := s.parseSwapID(w, r)
	if !ok {
		return nil, false
	}

	flow, ok := s.server.GetFlow(id)
	if !ok {
		writeJSONError(
			w, http.StatusNotFound,
			errors.New("no active swap with that id"),
		)
		return nil, false
	}
	return flow, true
}

// errorResponse is the uniform error envelope of all endpoints.
type errorResponse struct {
	Error string `json:"error"`
}

// readJSON decodes the request body into dest and writes the error response
// on failure.
func readJSON(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

// writeJSON marshals the provided value and writes it to the
// ResponseWriter.
func writeJSON(w http.ResponseWriter, thing interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(thing); err != nil {
		rpcLog.Infof("JSON encode error: %v", err)
	}
}

// writeJSONError writes the uniform error envelope with the given status
// code.
func writeJSONError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	encodeErr := json.NewEncoder(w).Encode(errorResponse{
		Error: err.Error(),
	})
	if encodeErr != nil {
		rpcLog.Infof("JSON encode error: %v", encodeErr)
	}
}

// writeSwapError maps errors of the swap state machine to HTTP status codes.
// Validation feedback and state conflicts are client errors, everything else
// is reported as an internal error.
func writeSwapError(w http.ResponseWriter, err error) {
	var (
		belowMin     *swap.ErrAmountBelowMinimum
		aboveMax     *swap.ErrAmountAboveMaximum
		overBalance  *swap.ErrAmountOverBalance
		belowReq     *swap.ErrAmountBelowRequested
		insufficient *swap.ErrInsufficientFundsForFee
	)

	switch {
	case errors.As(err, &belowMin), errors.As(err, &aboveMax),
		errors.As(err, &overBalance), errors.As(err, &belowReq),
		errors.As(err, &insufficient),
		errors.Is(err, swap.ErrNoAmount):

		writeJSONError(w, http.StatusBadRequest, err)

	case errors.Is(err, swap.ErrFlowNotInit),
		errors.Is(err, swap.ErrFlowNotReady),
		errors.Is(err, swap.ErrQuoteSuperseded),
		errors.Is(err, swap.ErrQuoteInconsistent):

		writeJSONError(w, http.StatusConflict, err)

	default:
		writeJSONError(w, http.StatusInternalServerError, err)
	}
}
