package phoenix

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/nownosw/phoenix/swap"
)

const (
	// publishTimeout is the maximum time a single broadcast request may
	// take.
	publishTimeout = 30 * time.Second

	// maxPublishResponseSize limits how much of a broadcast response we
	// are willing to read.
	maxPublishResponseSize = 1 << 20
)

// ErrNoPublisher is returned when a swap out is sent but no broadcast
// endpoint was configured.
var ErrNoPublisher = errors.New("no publish endpoint configured")

// webhookPublisher submits ready swap outs to a remote HTTP endpoint that
// constructs and broadcasts the on-chain transaction. The endpoint responds
// with the transaction ID of the broadcast.
type webhookPublisher struct {
	url    string
	client *http.Client
}

// newWebhookPublisher creates a publisher posting to the given URL. An empty
// URL is allowed, publishing will fail until one is configured.
func newWebhookPublisher(url string) *webhookPublisher {
	return &webhookPublisher{
		url: url,
		client: &http.Client{
			Timeout: publishTimeout,
		},
	}
}

// publishRequest is the body posted to the broadcast endpoint.
type publishRequest struct {
	Address   string `json:"address"`
	AmountSat int64  `json:"amount_sat"`
	FeeSat    int64  `json:"fee_sat"`
	TotalSat  int64  `json:"total_sat"`
}

// publishResponse is the expected response of the broadcast endpoint.
type publishResponse struct {
	Txid string `json:"txid"`
}

// PublishSwapOut submits the quoted swap out for broadcast and returns the
// resulting transaction ID.
//
// NOTE: This is part of the swap.Publisher interface.
func (p *webhookPublisher) PublishSwapOut(ctx context.Context,
	address btcutil.Address, quote swap.Quote) (*chainhash.Hash, error) {

	if p.url == "" {
		return nil, ErrNoPublisher
	}

	body, err := json.Marshal(&publishRequest{
		Address:   address.String(),
		AmountSat: int64(quote.UserAmount),
		FeeSat:    int64(quote.Fee),
		TotalSat:  int64(quote.Total),
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, p.url, bytes.NewReader(body),
	)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent())

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	reader := io.LimitReader(resp.Body, maxPublishResponseSize)
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(reader)
		return nil, fmt.Errorf("publish endpoint returned status "+
			"%d: %s", resp.StatusCode, respBody)
	}

	var publishResp publishResponse
	if err := json.NewDecoder(reader).Decode(&publishResp); err != nil {
		return nil, fmt.Errorf("invalid publish response: %v", err)
	}

	txid, err := chainhash.NewHashFromStr(publishResp.Txid)
	if err != nil {
		return nil, fmt.Errorf("invalid txid in publish response: %v",
			err)
	}

	return txid, nil
}

// A compile time check to ensure webhookPublisher implements the
// swap.Publisher interface.
var _ swap.Publisher = (*webhookPublisher)(nil)
