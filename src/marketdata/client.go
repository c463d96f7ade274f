package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/lynardsalingujay/lynardme-datafeed/src/logger"
)

// Client quotes prices and FX rates for the valuation reports. All rates are
// spot as of the call; historical marks come from the statements themselves.
type Client interface {
	// LatestPrice returns the most recent traded price for a symbol.
	LatestPrice(ctx context.Context, symbol string) (float64, error)
	// Crossrate returns the rate that converts one unit of from into to.
	Crossrate(ctx context.Context, from, to string) (float64, error)
	// GBPRate returns the rate that converts one unit of currency into GBP.
	GBPRate(ctx context.Context, currency string) (float64, error)
}

// Config mirrors the MARKET_DATA_* settings.
type Config struct {
	Status  string // live, demo or mock
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// NewClient builds the client for the configured environment. The mock
// client serves canned quotes and is the default when no API key is set.
func NewClient(cfg Config) (Client, error) {
	switch cfg.Status {
	case "live", "demo":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("market data status %q requires an API key", cfg.Status)
		}
		return newHTTPClient(cfg), nil
	case "mock":
		return NewMockClient(), nil
	}
	return nil, fmt.Errorf("unknown market data status: %q", cfg.Status)
}

type httpClient struct {
	baseURL string
	apiKey  string
	client  *http.Client

	// Quote cache keeps repeated valuation calls from hammering the feed;
	// the limiter keeps us inside the provider's request budget.
	quotes  *cache.Cache
	limiter *rate.Limiter
}

func newHTTPClient(cfg Config) *httpClient {
	return &httpClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.Timeout},
		quotes:  cache.New(1*time.Minute, 5*time.Minute),
		limiter: rate.NewLimiter(rate.Limit(5), 10),
	}
}

type ohlcBar struct {
	Timestamp int64   `json:"timestamp"`
	Close     float64 `json:"close,string"`
}

type crossrateResponse struct {
	Pair string  `json:"pair"`
	Rate float64 `json:"rate,string"`
}

func (c *httpClient) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	cacheKey := "price:" + symbol
	if v, found := c.quotes.Get(cacheKey); found {
		return v.(float64), nil
	}

	// One 60-second bar is the smallest window the feed serves.
	endpoint := fmt.Sprintf("%s/ohlc/%s/60", c.baseURL, url.PathEscape(symbol))
	var bars []ohlcBar
	if err := c.getJSON(ctx, endpoint, url.Values{"size": {"1"}}, &bars); err != nil {
		return 0, fmt.Errorf("fetching latest price for %s: %w", symbol, err)
	}
	if len(bars) == 0 {
		return 0, fmt.Errorf("no price bars returned for %s", symbol)
	}

	price := bars[0].Close
	c.quotes.Set(cacheKey, price, cache.DefaultExpiration)
	return price, nil
}

func (c *httpClient) Crossrate(ctx context.Context, from, to string) (float64, error) {
	if from == to {
		return 1, nil
	}
	cacheKey := "crossrate:" + from + "/" + to
	if v, found := c.quotes.Get(cacheKey); found {
		return v.(float64), nil
	}

	endpoint := fmt.Sprintf("%s/crossrates/%s/%s", c.baseURL, url.PathEscape(from), url.PathEscape(to))
	var resp crossrateResponse
	if err := c.getJSON(ctx, endpoint, nil, &resp); err != nil {
		return 0, fmt.Errorf("fetching crossrate %s/%s: %w", from, to, err)
	}

	c.quotes.Set(cacheKey, resp.Rate, cache.DefaultExpiration)
	return resp.Rate, nil
}

func (c *httpClient) GBPRate(ctx context.Context, currency string) (float64, error) {
	return c.Crossrate(ctx, currency, "GBP")
}

func (c *httpClient) getJSON(ctx context.Context, endpoint string, query url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	if len(query) > 0 {
		req.URL.RawQuery = query.Encode()
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if logger.L != nil {
			logger.L.Warn("market data request failed", "endpoint", endpoint, "status", resp.StatusCode)
		}
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, endpoint)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// MockClient serves deterministic quotes so reports can be exercised without
// a feed connection.
type MockClient struct {
	Prices map[string]float64
	Rates  map[string]float64 // keyed "FROM/TO"
}

func NewMockClient() *MockClient {
	return &MockClient{
		Prices: map[string]float64{},
		Rates: map[string]float64{
			"USD/GBP": 0.78,
			"JPY/GBP": 0.0052,
			"EUR/GBP": 0.85,
			"CHF/GBP": 0.88,
		},
	}
}

func (m *MockClient) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	if p, ok := m.Prices[symbol]; ok {
		return p, nil
	}
	return 100, nil
}

func (m *MockClient) Crossrate(ctx context.Context, from, to string) (float64, error) {
	if from == to {
		return 1, nil
	}
	if r, ok := m.Rates[from+"/"+to]; ok {
		return r, nil
	}
	if r, ok := m.Rates[to+"/"+from]; ok && r != 0 {
		return 1 / r, nil
	}
	return 0, fmt.Errorf("no mock rate for %s/%s", from, to)
}

func (m *MockClient) GBPRate(ctx context.Context, currency string) (float64, error) {
	return m.Crossrate(ctx, currency, "GBP")
}

var _ Client = (*httpClient)(nil)
var _ Client = (*MockClient)(nil)
