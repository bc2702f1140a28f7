package bithumb

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/basisarb/internal/httpx"
)

func TestJWTTokenClaims(t *testing.T) {
	c := New(httpx.New(), WithCredentials("access", "secret"))

	token, err := c.jwtToken(nil)
	require.NoError(t, err)

	parsed, err := jwt.Parse(token, func(tk *jwt.Token) (any, error) {
		assert.Equal(t, jwt.SigningMethodHS256, tk.Method)
		return []byte("secret"), nil
	})
	require.NoError(t, err)
	require.True(t, parsed.Valid)

	claims := parsed.Claims.(jwt.MapClaims)
	assert.Equal(t, "access", claims["access_key"])
	assert.NotEmpty(t, claims["nonce"])
	assert.NotZero(t, claims["timestamp"])
	_, hasHash := claims["query_hash"]
	assert.False(t, hasHash, "no query hash without params")
}

func TestJWTTokenQueryHash(t *testing.T) {
	c := New(httpx.New(), WithCredentials("access", "secret"))

	params := url.Values{}
	params.Set("market", "KRW-BTC")
	params.Set("units", "0.1")

	token, err := c.jwtToken(params)
	require.NoError(t, err)

	parsed, err := jwt.Parse(token, func(*jwt.Token) (any, error) { return []byte("secret"), nil })
	require.NoError(t, err)
	claims := parsed.Claims.(jwt.MapClaims)
	assert.Equal(t, "SHA512", claims["query_hash_alg"])
	// SHA-512 of "market=KRW-BTC&units=0.1", hex
	assert.Contains(t, claims["query_hash"], "adf590e4388bb8ee99eb84a6d617982d")
}

func TestLegacySign(t *testing.T) {
	endpoint := "/trade/market_buy"
	params := "order_currency=BTC&payment_currency=KRW&units=0.10000000"
	nonce := "1700000000000000"

	got := legacySign("mysecret", endpoint, params, nonce)

	mac := hmac.New(sha512.New, []byte("mysecret"))
	mac.Write([]byte(endpoint + "\x00" + params + "\x00" + nonce))
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	assert.Equal(t, want, got)

	// Deterministic for identical inputs.
	assert.Equal(t, got, legacySign("mysecret", endpoint, params, nonce))
}

func TestPairFor(t *testing.T) {
	pair, err := pairFor("BTCKRW")
	require.NoError(t, err)
	assert.Equal(t, "BTC_KRW", pair)

	pair, err = pairFor("usdt-krw")
	require.NoError(t, err)
	assert.Equal(t, "USDT_KRW", pair)

	_, err = pairFor("BTCEUR")
	assert.Error(t, err)
}

func TestFetchAssetsRequiresCredentials(t *testing.T) {
	c := New(httpx.New())
	_, err := c.FetchAssets(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key not set")
}

func TestListSpots(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/public/ticker/ALL_KRW", r.URL.Path)
		w.Write([]byte(`{
			"status": "0000",
			"data": {
				"BTC": {"closing_price": "138000000", "acc_trade_value_24H": "250000000000"},
				"ETH": {"closing_price": "4900000", "acc_trade_value_24H": "90000000000"},
				"BAD": {"closing_price": "0", "acc_trade_value_24H": "1"},
				"date": "1700000000000"
			}
		}`))
	}))
	defer srv.Close()

	c := New(httpx.New(), WithBaseURL(srv.URL))
	snaps, err := c.ListSpots(context.Background())
	require.NoError(t, err)
	require.Len(t, snaps, 2, "date entry and zero prices are dropped")

	for _, s := range snaps {
		assert.Positive(t, s.Price)
		assert.True(t, s.Symbol == "BTCKRW" || s.Symbol == "ETHKRW")
		assert.Equal(t, "KRW", string(s.Quote))
	}
}

func TestFetchOrderBookOrdering(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/public/orderbook/BTC_KRW", r.URL.Path)
		w.Write([]byte(`{
			"status": "0000",
			"data": {
				"bids": [
					{"price": "137990000", "quantity": "0.5"},
					{"price": "138000000", "quantity": "0.1"},
					{"price": "0", "quantity": "1"}
				],
				"asks": [
					{"price": "138020000", "quantity": "0.3"},
					{"price": "138010000", "quantity": "0.2"}
				]
			}
		}`))
	}))
	defer srv.Close()

	c := New(httpx.New(), WithBaseURL(srv.URL))
	book, err := c.FetchOrderBook(context.Background(), "BTCKRW")
	require.NoError(t, err)

	require.Len(t, book.Bids, 2, "non-positive levels are dropped")
	require.Len(t, book.Asks, 2)

	// Bids descending, asks ascending, no crossed book.
	for i := 1; i < len(book.Bids); i++ {
		assert.GreaterOrEqual(t, book.Bids[i-1].Price, book.Bids[i].Price)
	}
	for i := 1; i < len(book.Asks); i++ {
		assert.LessOrEqual(t, book.Asks[i-1].Price, book.Asks[i].Price)
	}
	assert.Less(t, book.BestBid(), book.BestAsk())
}

func TestVendorErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "5500", "data": {}}`))
	}))
	defer srv.Close()

	c := New(httpx.New(), WithBaseURL(srv.URL))
	_, err := c.ListSpots(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "5500")
}
