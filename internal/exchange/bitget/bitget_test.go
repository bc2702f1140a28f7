package bitget

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/basisarb/internal/httpx"
	"github.com/quantfold/basisarb/internal/model"
)

func TestNextFundingTime(t *testing.T) {
	tests := []struct {
		now  string
		want string
	}{
		{"2025-06-01T00:00:00Z", "2025-06-01T04:00:00Z"},
		{"2025-06-01T03:59:59Z", "2025-06-01T04:00:00Z"},
		{"2025-06-01T04:00:00Z", "2025-06-01T08:00:00Z"},
		{"2025-06-01T13:30:00Z", "2025-06-01T16:00:00Z"},
		{"2025-06-01T23:10:00Z", "2025-06-02T00:00:00Z"},
	}
	for _, tt := range tests {
		now, err := time.Parse(time.RFC3339, tt.now)
		require.NoError(t, err)
		want, err := time.Parse(time.RFC3339, tt.want)
		require.NoError(t, err)
		assert.Equal(t, want, NextFundingTime(now), "now=%s", tt.now)
	}
}

func TestListPerps(t *testing.T) {
	var mu sync.Mutex
	oiHits := map[string]int{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/mix/v1/market/tickers":
			w.Write([]byte(`{
				"code": "00000", "msg": "success",
				"data": [
					{"symbol": "BTCUSDT_UMCBL", "last": "100000", "usdtVolume": "5000000000", "indexPrice": "100010", "fundingRate": "0.0001"},
					{"symbol": "ETHUSDT_UMCBL", "last": "4000", "usdtVolume": "900000000", "indexPrice": "4001", "fundingRate": "-0.00005"},
					{"symbol": "OLDUSDT_UMCBL", "last": "1", "usdtVolume": "0", "indexPrice": "1", "fundingRate": "0"},
					{"symbol": "BTCUSD_DMCBL", "last": "100000", "usdtVolume": "1", "indexPrice": "100000", "fundingRate": "0"}
				]
			}`))
		case "/api/mix/v1/market/open-interest":
			symbol := r.URL.Query().Get("symbol")
			mu.Lock()
			oiHits[symbol]++
			mu.Unlock()
			switch symbol {
			case "BTCUSDT_UMCBL":
				w.Write([]byte(`{"code": "00000", "msg": "success", "data": {"symbol": "BTCUSDT_UMCBL", "amount": "-1234.5"}}`))
			case "ETHUSDT_UMCBL":
				w.Write([]byte(`{"code": "00000", "msg": "success", "data": {"symbol": "ETHUSDT_UMCBL", "amount": "50000"}}`))
			default:
				// Delisted symbols answer with a vendor error that must be
				// skipped silently.
				w.Write([]byte(`{"code": "40034", "msg": "The symbol has been removed", "data": null}`))
			}
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewWithBaseURL(httpx.New(), srv.URL)
	snaps, err := c.ListPerps(context.Background())
	require.NoError(t, err)

	require.Len(t, snaps, 3, "only the UMCBL family is listed")
	bySymbol := map[string]model.PerpSnapshot{}
	for _, s := range snaps {
		bySymbol[s.Symbol] = s
		assert.Equal(t, model.VenueBitget, s.Venue)
		assert.Positive(t, s.MarkPrice)
		assert.GreaterOrEqual(t, s.OpenInterestQuote, 0.0)
		require.NotNil(t, s.NextFundingTime)
	}

	btc := bySymbol["BTCUSDT"]
	// Negative v1 amounts are taken as absolute contracts.
	assert.InDelta(t, 1234.5*100010, btc.OpenInterestQuote, 1e-3)
	assert.Equal(t, 0.0001, btc.FundingRate)

	old := bySymbol["OLDUSDT"]
	assert.Zero(t, old.OpenInterestQuote)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, oiHits, 3, "one OI request per UMCBL symbol")
}

func TestListPerpsSkipsAntiBotBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/mix/v1/market/tickers":
			w.Write([]byte(`{
				"code": "00000", "msg": "success",
				"data": [{"symbol": "BTCUSDT_UMCBL", "last": "1", "usdtVolume": "1", "indexPrice": "1", "fundingRate": "0"}]
			}`))
		default:
			w.Write([]byte(`<html>cloudflare says hello</html>`))
		}
	}))
	defer srv.Close()

	c := NewWithBaseURL(httpx.New(), srv.URL)
	snaps, err := c.ListPerps(context.Background())
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Zero(t, snaps[0].OpenInterestQuote)
}

func TestListSpots(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/spot/v1/market/tickers", r.URL.Path)
		w.Write([]byte(`{
			"code": "00000", "msg": "success",
			"data": [
				{"symbol": "BTCUSDT", "close": "100000", "usdtVol": "7000000000"},
				{"symbol": "ETHBTC", "close": "0.05", "usdtVol": "1"}
			]
		}`))
	}))
	defer srv.Close()

	c := NewWithBaseURL(httpx.New(), srv.URL)
	snaps, err := c.ListSpots(context.Background())
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "BTCUSDT", snaps[0].Symbol)
	assert.Equal(t, 7e9, snaps[0].Volume24hQuote)
}
