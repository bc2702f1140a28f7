package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/basisarb/internal/httpx"
)

const exchangeInfoBody = `{
	"symbols": [
		{
			"symbol": "BTCUSDT",
			"filters": [
				{"filterType": "PRICE_FILTER", "minPrice": "0.01"},
				{"filterType": "LOT_SIZE", "minQty": "0.00100000", "maxQty": "9000.00000000", "stepSize": "0.00100000"}
			]
		},
		{
			"symbol": "ETHUSDT",
			"filters": [
				{"filterType": "LOT_SIZE", "minQty": "0.01000000", "maxQty": "100000.00000000", "stepSize": "0.01000000"}
			]
		},
		{
			"symbol": "NOFILTER",
			"filters": []
		}
	]
}`

func TestLoadSpotExchangeInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/exchangeInfo", r.URL.Path)
		w.Write([]byte(exchangeInfoBody))
	}))
	defer srv.Close()

	c := New(httpx.New(), WithBaseURLs(srv.URL, srv.URL, srv.URL))
	require.NoError(t, c.LoadSpotExchangeInfo(context.Background()))

	f, ok := c.SpotLot("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 0.001, f.MinQty)
	assert.Equal(t, 9000.0, f.MaxQty)
	assert.Equal(t, 0.001, f.StepSize)

	_, ok = c.SpotLot("NOFILTER")
	assert.False(t, ok)

	assert.InDelta(t, 0.001, c.ClampSpotQty("BTCUSDT", 0.0015), 1e-12)
	assert.Zero(t, c.ClampSpotQty("BTCUSDT", 0.0005))
}

func TestClampPassThroughWhenUnknown(t *testing.T) {
	c := New(httpx.New())
	// No catalog loaded: the original quantity passes through for the venue
	// to validate.
	assert.Equal(t, 0.1234, c.ClampSpotQty("BTCUSDT", 0.1234))
}

func TestVendorErrorOnBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	}))
	defer srv.Close()

	c := New(httpx.New(), WithBaseURLs(srv.URL, srv.URL, srv.URL))
	err := c.LoadSpotExchangeInfo(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "-1121")
}

func TestAuthenticatedCallsRequireCredentials(t *testing.T) {
	c := New(httpx.New())
	_, err := c.FetchAssets(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key not set")
}
