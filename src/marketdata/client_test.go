package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_StatusSelectsImplementation(t *testing.T) {
	client, err := NewClient(Config{Status: "mock"})
	require.NoError(t, err)
	assert.IsType(t, &MockClient{}, client)

	client, err = NewClient(Config{Status: "demo", APIKey: "k", BaseURL: "http://feed"})
	require.NoError(t, err)
	assert.IsType(t, &httpClient{}, client)

	_, err = NewClient(Config{Status: "live"})
	assert.Error(t, err, "a live feed without an API key is a configuration mistake")

	_, err = NewClient(Config{Status: "paper"})
	assert.Error(t, err)
}

func TestMockClient_RatesInvertWhenOnlyTheReverseIsCanned(t *testing.T) {
	m := NewMockClient()
	ctx := context.Background()

	rate, err := m.Crossrate(ctx, "USD", "GBP")
	require.NoError(t, err)
	assert.InDelta(t, 0.78, rate, 1e-9)

	inverse, err := m.Crossrate(ctx, "GBP", "USD")
	require.NoError(t, err)
	assert.InDelta(t, 1/0.78, inverse, 1e-9)

	same, err := m.Crossrate(ctx, "GBP", "GBP")
	require.NoError(t, err)
	assert.InDelta(t, 1, same, 1e-9)

	_, err = m.GBPRate(ctx, "AUD")
	assert.Error(t, err)
}

func TestHTTPClient_LatestPriceParsesAndCaches(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "/ohlc/ESZ19/60", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("size"))
		w.Write([]byte(`[{"timestamp": 1573000000000, "close": "3012.25"}]`))
	}))
	defer server.Close()

	c := newHTTPClient(Config{Status: "demo", BaseURL: server.URL, APIKey: "test-key", Timeout: 5 * time.Second})
	ctx := context.Background()

	price, err := c.LatestPrice(ctx, "ESZ19")
	require.NoError(t, err)
	assert.InDelta(t, 3012.25, price, 1e-9, "the feed quotes numbers as strings")

	price, err = c.LatestPrice(ctx, "ESZ19")
	require.NoError(t, err)
	assert.InDelta(t, 3012.25, price, 1e-9)
	assert.Equal(t, 1, calls, "a repeated quote within the cache window never hits the feed")
}

func TestHTTPClient_CrossrateErrorsSurface(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such pair", http.StatusNotFound)
	}))
	defer server.Close()

	c := newHTTPClient(Config{Status: "demo", BaseURL: server.URL, APIKey: "test-key", Timeout: 5 * time.Second})
	_, err := c.Crossrate(context.Background(), "USD", "XXX")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 404")
}
