package bithumb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quantfold/basisarb/internal/exchange"
	"github.com/quantfold/basisarb/internal/model"
)

const (
	marketBuyEndpoint  = "/trade/market_buy"
	marketSellEndpoint = "/trade/market_sell"
)

// MarketBuy submits a spot market buy on the legacy private API.
func (c *Client) MarketBuy(ctx context.Context, symbol string, qty float64) (model.OrderAck, error) {
	return c.placeMarketOrder(ctx, symbol, qty, marketBuyEndpoint)
}

// MarketSell submits a spot market sell on the legacy private API.
func (c *Client) MarketSell(ctx context.Context, symbol string, qty float64) (model.OrderAck, error) {
	return c.placeMarketOrder(ctx, symbol, qty, marketSellEndpoint)
}

func (c *Client) placeMarketOrder(ctx context.Context, symbol string, qty float64, endpoint string) (model.OrderAck, error) {
	if err := c.requireCredentials(); err != nil {
		return model.OrderAck{}, err
	}

	base, quote, err := model.SplitSymbol(symbol)
	if err != nil {
		return model.OrderAck{}, exchange.Vendorf(model.VenueBithumb, "unsupported symbol: %s", symbol)
	}

	form := url.Values{}
	form.Set("order_currency", base)
	form.Set("payment_currency", string(quote))
	form.Set("units", fmt.Sprintf("%.8f", qty))
	params := form.Encode()

	log.Info().Str("symbol", symbol).Str("endpoint", endpoint).Float64("qty", qty).
		Msg("placing bithumb market order")

	data, err := c.postPrivate(ctx, endpoint, params)
	if err != nil {
		return model.OrderAck{}, err
	}

	ack := model.OrderAck{Symbol: model.Canonicalize(symbol), Status: "FILLED"}
	var orderID string
	if err := json.Unmarshal(data, &orderID); err == nil {
		ack.ClientOrderID = orderID
	}
	return ack, nil
}

type privateResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	OrderID json.RawMessage `json:"order_id"`
}

// postPrivate signs and posts to the legacy API. The signature covers
// endpoint, form body and nonce, joined by NUL bytes.
func (c *Client) postPrivate(ctx context.Context, endpoint, params string) (json.RawMessage, error) {
	nonce := fmt.Sprintf("%d", time.Now().UnixMicro())
	signature := legacySign(c.apiSecret, endpoint, params, nonce)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, strings.NewReader(params))
	if err != nil {
		return nil, exchange.Transport("bithumb: build request", err)
	}
	req.Header.Set("Api-Key", c.apiKey)
	req.Header.Set("Api-Sign", signature)
	req.Header.Set("Api-Nonce", nonce)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, exchange.Transport("bithumb: POST "+endpoint, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, exchange.Transport("bithumb: read body", err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, exchange.Vendorf(model.VenueBithumb, "HTTP error: status %d, response: %s",
			res.StatusCode, exchange.Truncate(string(body)))
	}

	var parsed privateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, exchange.Vendorf(model.VenueBithumb, "failed to parse response: %v, payload: %s",
			err, exchange.Truncate(string(body)))
	}
	if parsed.Status != "0000" {
		return nil, exchange.Vendorf(model.VenueBithumb, "API error: status %s, response: %s",
			parsed.Status, exchange.Truncate(string(body)))
	}
	if len(parsed.OrderID) > 0 {
		return parsed.OrderID, nil
	}
	return parsed.Data, nil
}
