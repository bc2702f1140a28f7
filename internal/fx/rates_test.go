package fx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quantfold/basisarb/internal/httpx"
)

func jsonServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchAllHappyPath(t *testing.T) {
	usdKRW := jsonServer(t, `{"rates": {"KRW": 1385.2}}`)
	usdtUSD := jsonServer(t, `{"price": "0.99950000"}`)
	usdtKRW := jsonServer(t, `{"status": "0000", "data": {"closing_price": "1391"}}`)

	p := NewProviderWithURLs(httpx.New(), usdKRW.URL, usdtUSD.URL, usdtKRW.URL)
	rates := p.FetchAll(context.Background())

	assert.Equal(t, 1385.2, rates.USDKRW)
	assert.InDelta(t, 1/0.9995, rates.USDTUSD, 1e-9)
	assert.Equal(t, 1391.0, rates.USDTKRW)
	assert.False(t, rates.ObservedAt.IsZero())
}

func TestFetchAllFallsBackPerLookup(t *testing.T) {
	failing := jsonServer(t, `oops not json`)
	usdtUSD := jsonServer(t, `{"price": "1.0000"}`)
	errStatus := jsonServer(t, `{"status": "5600", "data": {"closing_price": "0"}}`)

	p := NewProviderWithURLs(httpx.New(), failing.URL, usdtUSD.URL, errStatus.URL)
	rates := p.FetchAll(context.Background())

	// One lookup failing never fails the aggregate.
	assert.Equal(t, FallbackUSDKRW, rates.USDKRW)
	assert.Equal(t, 1.0, rates.USDTUSD)
	assert.Equal(t, FallbackUSDTKRW, rates.USDTKRW)
}

func TestFetchAllAllRatesPositive(t *testing.T) {
	zero := jsonServer(t, `{"rates": {"KRW": 0}}`)
	negPrice := jsonServer(t, `{"price": "-3"}`)
	badPrice := jsonServer(t, `{"status": "0000", "data": {"closing_price": "abc"}}`)

	p := NewProviderWithURLs(httpx.New(), zero.URL, negPrice.URL, badPrice.URL)
	rates := p.FetchAll(context.Background())

	assert.Positive(t, rates.USDKRW)
	assert.Positive(t, rates.USDTUSD)
	assert.Positive(t, rates.USDTKRW)
}
