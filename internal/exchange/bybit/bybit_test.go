package bybit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/basisarb/internal/httpx"
	"github.com/quantfold/basisarb/internal/model"
)

func TestListPerps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v5/market/tickers", r.URL.Path)
		assert.Equal(t, "linear", r.URL.Query().Get("category"))
		w.Write([]byte(`{
			"retCode": 0, "retMsg": "OK",
			"result": {
				"category": "linear",
				"list": [
					{"symbol": "BTCUSDT", "lastPrice": "100000", "markPrice": "100012.5",
					 "fundingRate": "0.00008", "nextFundingTime": "1760000000000",
					 "openInterestValue": "8200000000", "turnover24h": "12000000000"},
					{"symbol": "BTCPERP", "lastPrice": "100000", "markPrice": "100000",
					 "fundingRate": "0", "nextFundingTime": "0",
					 "openInterestValue": "1", "turnover24h": "1"}
				]
			}
		}`))
	}))
	defer srv.Close()

	c := NewWithBaseURL(httpx.New(), srv.URL)
	snaps, err := c.ListPerps(context.Background())
	require.NoError(t, err)

	require.Len(t, snaps, 1, "only the USDT family is listed")
	s := snaps[0]
	assert.Equal(t, model.VenueBybit, s.Venue)
	assert.Equal(t, "BTCUSDT", s.Symbol)
	assert.Equal(t, 100012.5, s.MarkPrice)
	assert.Equal(t, 0.00008, s.FundingRate)
	assert.Equal(t, 8.2e9, s.OpenInterestQuote)
	require.NotNil(t, s.NextFundingTime)
}

func TestListSpotsVendorError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"retCode": 10001, "retMsg": "params error", "result": {"category": "spot", "list": []}}`))
	}))
	defer srv.Close()

	c := NewWithBaseURL(httpx.New(), srv.URL)
	_, err := c.ListSpots(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "10001")
}
