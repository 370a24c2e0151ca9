package pricesource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/shopspring/decimal"

	"github.com/matviysuk/btcwallet-backend/internal/domain"
)

const (
	// DefaultURL is the public CoinGecko simple price endpoint for BTC/USD
	DefaultURL = "https://api.coingecko.com/api/v3/simple/price?ids=bitcoin&vs_currencies=usd"

	// DefaultRatePath locates the USD rate inside the response body
	DefaultRatePath = "$.bitcoin.usd"

	defaultTimeout = 10 * time.Second
)

// CoinGeckoFetcher implements domain.RateFetcher against a JSON price endpoint
type CoinGeckoFetcher struct {
	client   *http.Client
	url      string
	ratePath string
}

var _ domain.RateFetcher = (*CoinGeckoFetcher)(nil)

// Option configures a CoinGeckoFetcher
type Option func(*CoinGeckoFetcher)

// WithHTTPClient replaces the default client
func WithHTTPClient(c *http.Client) Option {
	return func(f *CoinGeckoFetcher) { f.client = c }
}

// WithURL points the fetcher at a different endpoint
func WithURL(url string) Option {
	return func(f *CoinGeckoFetcher) { f.url = url }
}

// WithRatePath changes the JSONPath used to extract the rate
func WithRatePath(path string) Option {
	return func(f *CoinGeckoFetcher) { f.ratePath = path }
}

// NewCoinGeckoFetcher creates a fetcher with a bounded HTTP timeout
func NewCoinGeckoFetcher(opts ...Option) *CoinGeckoFetcher {
	f := &CoinGeckoFetcher{
		client:   &http.Client{Timeout: defaultTimeout},
		url:      DefaultURL,
		ratePath: DefaultRatePath,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch performs one GET and returns the positive BTC/USD rate
func (f *CoinGeckoFetcher) Fetch(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return decimal.Zero, &domain.FetchError{Kind: domain.FetchNetwork, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return decimal.Zero, &domain.FetchError{Kind: domain.FetchNetwork, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, &domain.FetchError{
			Kind: domain.FetchNetwork,
			Err:  fmt.Errorf("cannot http GET %v%v: %v", req.URL.Host, req.URL.Path, resp.Status),
		}
	}

	var jobj any
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&jobj); err != nil {
		return decimal.Zero, &domain.FetchError{Kind: domain.FetchDecode, Err: err}
	}

	rate, err := extractRate(f.ratePath, jobj)
	if err != nil {
		return decimal.Zero, &domain.FetchError{Kind: domain.FetchDecode, Err: err}
	}
	return rate, nil
}

func extractRate(path string, jobj any) (decimal.Decimal, error) {
	jval, err := jsonpath.Get(path, jobj)
	if err != nil {
		return decimal.Zero, fmt.Errorf("error reading %q: %w", path, err)
	}
	num, ok := jval.(json.Number)
	if !ok {
		return decimal.Zero, fmt.Errorf("value at %q is not a number: %v", path, jval)
	}

	rate, err := decimal.NewFromString(num.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("value at %q is not a decimal: %w", path, err)
	}
	if !rate.IsPositive() {
		return decimal.Zero, errors.New("rate must be positive")
	}
	return rate, nil
}
