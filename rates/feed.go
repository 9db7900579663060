package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/nownosw/phoenix/amounts"
)

const (
	// DefaultTickerURL is the public ticker endpoint the feed polls by
	// default. It serves a JSON document keyed by fiat currency code.
	DefaultTickerURL = "https://blockchain.info/ticker"

	// DefaultRefreshInterval is how often the feed refreshes the rate
	// snapshot when polling succeeds.
	DefaultRefreshInterval = time.Minute * 5

	// rateRequestTimeout is the maximum time we wait for the ticker
	// endpoint to answer.
	rateRequestTimeout = time.Second * 5

	// maxResponseSize limits how much of the response body we are willing
	// to read.
	maxResponseSize = 1 << 20
)

// ErrNoRate is returned by fetch attempts when the ticker document does not
// contain the requested fiat currency.
var ErrNoRate = errors.New("fiat currency not found in ticker")

// Source supplies the current exchange rate snapshot, or nil if no rate is
// known (yet). Consumers only ever read the snapshot, it is replaced as a
// whole on refresh.
type Source interface {
	// Rate returns the latest known rate, or nil.
	Rate() *amounts.BitcoinPriceRate
}

// FeedConfig contains all settings of the rate feed.
type FeedConfig struct {
	// URL is the ticker endpoint to poll.
	URL string

	// Fiat is the fiat currency we want the bitcoin price in.
	Fiat amounts.FiatUnit

	// RefreshInterval is the poll interval after a successful fetch.
	// Failed fetches are retried with an exponential back off instead.
	RefreshInterval time.Duration
}

// Feed polls a public ticker endpoint in the background and maintains the
// latest bitcoin price snapshot for a single fiat currency. Before the first
// successful poll Rate returns nil, which callers must treat as "no rate
// available".
type Feed struct {
	started sync.Once
	stopped sync.Once

	cfg    FeedConfig
	client *http.Client

	mtx  sync.Mutex
	rate *amounts.BitcoinPriceRate

	wg   sync.WaitGroup
	quit chan struct{}
}

// Compile time assertion that Feed implements the Source interface.
var _ Source = (*Feed)(nil)

// NewFeed creates a new rate feed with the given configuration. Zero values
// in the config are replaced by the defaults.
func NewFeed(cfg FeedConfig) *Feed {
	if cfg.URL == "" {
		cfg.URL = DefaultTickerURL
	}
	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}

	return &Feed{
		cfg:    cfg,
		client: &http.Client{},
		quit:   make(chan struct{}),
	}
}

// Start launches the background poller.
func (f *Feed) Start() {
	f.started.Do(func() {
		log.Infof("Starting rate feed, url=%v fiat=%v", f.cfg.URL,
			f.cfg.Fiat)

		f.wg.Add(1)
		go f.poll()
	})
}

// Stop shuts down the background poller and waits for it to exit.
func (f *Feed) Stop() {
	f.stopped.Do(func() {
		close(f.quit)
		f.wg.Wait()
	})
}

// Rate returns the latest known rate snapshot, or nil if no rate has been
// fetched successfully yet.
//
// NOTE: This is part of the Source interface.
func (f *Feed) Rate() *amounts.BitcoinPriceRate {
	f.mtx.Lock()
	defer f.mtx.Unlock()

	return f.rate
}

// poll fetches the rate in a loop until the feed is shut down. A failed fetch
// is retried with an exponential back off so a flaky or unreachable ticker
// doesn't cause a request storm.
func (f *Feed) poll() {
	defer f.wg.Done()

	var retry backOffer
	for {
		rate, err := f.fetch()
		if err != nil {
			log.Warnf("Could not fetch exchange rate: %v", err)

			select {
			case <-retry.backOff("rate feed"):
				continue

			case <-f.quit:
				return
			}
		}

		retry.reset()

		f.mtx.Lock()
		f.rate = rate
		f.mtx.Unlock()

		log.Debugf("Exchange rate refreshed: %v", rate)

		select {
		case <-time.After(f.cfg.RefreshInterval):
		case <-f.quit:
			return
		}
	}
}

// fetch performs a single request against the ticker endpoint and extracts
// the price for the configured fiat currency.
func (f *Feed) fetch() (*amounts.BitcoinPriceRate, error) {
	ctx, cancel := context.WithTimeout(
		context.Background(), rateRequestTimeout,
	)
	defer cancel()

	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, f.cfg.URL, nil,
	)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("error %d fetching %q",
			resp.StatusCode, f.cfg.URL)
	}

	// The ticker document is keyed by currency code, every entry carries
	// the last traded price.
	var ticker map[string]struct {
		Last float64 `json:"last"`
	}
	reader := io.LimitReader(resp.Body, maxResponseSize)
	if err := json.NewDecoder(reader).Decode(&ticker); err != nil {
		return nil, fmt.Errorf("unable to decode ticker: %v", err)
	}

	entry, ok := ticker[string(f.cfg.Fiat)]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrNoRate, f.cfg.Fiat)
	}
	if entry.Last <= 0 {
		return nil, fmt.Errorf("zero price returned for %v",
			f.cfg.Fiat)
	}

	return &amounts.BitcoinPriceRate{
		Fiat:      f.cfg.Fiat,
		Price:     entry.Last,
		Timestamp: time.Now(),
	}, nil
}
