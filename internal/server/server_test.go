package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/basisarb/internal/collector"
	"github.com/quantfold/basisarb/internal/model"
	"github.com/quantfold/basisarb/internal/record"
)

func TestHealthAndSnapshots(t *testing.T) {
	store := collector.NewStore()
	store.Replace(
		[]model.PerpSnapshot{{Venue: model.VenueBinance, Symbol: "BTCUSDT", Quote: model.CurrencyUSDT, MarkPrice: 100000, ObservedAt: time.Now().UTC()}},
		nil,
		nil,
	)

	srv := httptest.NewServer(New(store, nil).Router())
	defer srv.Close()

	res, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, err = http.Get(srv.URL + "/perp-snapshots")
	require.NoError(t, err)
	defer res.Body.Close()
	var snaps []model.PerpSnapshot
	require.NoError(t, json.NewDecoder(res.Body).Decode(&snaps))
	require.Len(t, snaps, 1)
	assert.Equal(t, "BTCUSDT", snaps[0].Symbol)
}

func TestTradeRecordsWithoutRepo(t *testing.T) {
	srv := httptest.NewServer(New(collector.NewStore(), nil).Router())
	defer srv.Close()

	res, err := http.Get(srv.URL + "/trade-records")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
}

func TestTradeRecordsWithRepo(t *testing.T) {
	repo, err := record.Open(":memory:")
	require.NoError(t, err)
	defer repo.Close()

	require.NoError(t, repo.InsertTrade(record.TradeRecord{
		Venue: "binance", Symbol: "BTCUSDT", Market: "spot", Side: "BUY",
		OrderType: "MARKET", Qty: 0.001, Price: 100000, ExecutedAt: time.Now().UTC(),
	}))

	srv := httptest.NewServer(New(collector.NewStore(), repo).Router())
	defer srv.Close()

	res, err := http.Get(srv.URL + "/trade-records")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	var trades []record.TradeRecord
	require.NoError(t, json.NewDecoder(res.Body).Decode(&trades))
	require.Len(t, trades, 1)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := httptest.NewServer(New(collector.NewStore(), nil).Router())
	defer srv.Close()

	res, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}
