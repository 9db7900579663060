package terms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightningnetwork/lnd/lnwallet/chainfee"
)

const (
	// termsRequestTimeout is the maximum time we wait for the terms
	// endpoint to answer.
	termsRequestTimeout = time.Second * 5

	// maxResponseSize limits how much of the response body we are willing
	// to read.
	maxResponseSize = 1 << 20
)

// walletContext mirrors the JSON document published by the swap service that
// contains, among other chain parameters, the current swap out terms.
type walletContext struct {
	SwapOut struct {
		V1 struct {
			MinFeerateSatByte int64 `json:"min_feerate_sat_byte"`
			MinAmountSat      int64 `json:"min_amount_sat"`
			MaxAmountSat      int64 `json:"max_amount_sat"`
		} `json:"v1"`
	} `json:"swap_out"`
}

// HTTPSource fetches swap terms from a remote wallet context document.
type HTTPSource struct {
	url    string
	client *http.Client
}

// NewHTTPSource creates a terms source reading from the given URL.
func NewHTTPSource(url string) *HTTPSource {
	return &HTTPSource{
		url:    url,
		client: &http.Client{},
	}
}

// SwapTerms returns the current swap out terms as published by the remote
// service.
//
// NOTE: This is part of the Source interface.
func (s *HTTPSource) SwapTerms(ctx context.Context) (*SwapTerms, error) {
	ctx, cancel := context.WithTimeout(ctx, termsRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, s.url, nil,
	)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("error %d fetching %q",
			resp.StatusCode, s.url)
	}

	var walletCtx walletContext
	reader := io.LimitReader(resp.Body, maxResponseSize)
	if err := json.NewDecoder(reader).Decode(&walletCtx); err != nil {
		return nil, fmt.Errorf("unable to decode wallet context: %v",
			err)
	}

	v1 := walletCtx.SwapOut.V1
	fetched := &SwapTerms{
		MinFeeRate: chainfee.SatPerKVByte(
			v1.MinFeerateSatByte * 1000,
		),
		MinAmount: btcutil.Amount(v1.MinAmountSat),
		MaxAmount: btcutil.Amount(v1.MaxAmountSat),
	}
	if err := fetched.Validate(); err != nil {
		return nil, err
	}

	log.Debugf("Fetched swap terms: %v", fetched)

	return fetched, nil
}

// Compile time check that HTTPSource implements the Source interface.
var _ Source = (*HTTPSource)(nil)
