package bithumb

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/quantfold/basisarb/internal/exchange"
	"github.com/quantfold/basisarb/internal/model"
)

type tickerAllResponse struct {
	Status string                     `json:"status"`
	Data   map[string]json.RawMessage `json:"data"`
}

type tickerEntry struct {
	ClosingPrice     string `json:"closing_price"`
	AccTradeValue24H string `json:"acc_trade_value_24H"`
}

// ListSpots lists every KRW pair from the all-market ticker.
func (c *Client) ListSpots(ctx context.Context) ([]model.SpotSnapshot, error) {
	var resp tickerAllResponse
	url := c.baseURL + "/public/ticker/ALL_KRW"
	if err := c.http.GetJSON(ctx, url, &resp); err != nil {
		return nil, exchange.Transport("bithumb: GET "+url, err)
	}
	if resp.Status != "0000" {
		return nil, exchange.Vendorf(model.VenueBithumb, "API error: status %s", resp.Status)
	}

	now := time.Now().UTC()
	out := make([]model.SpotSnapshot, 0, len(resp.Data))
	for base, raw := range resp.Data {
		if base == "date" {
			continue
		}
		var t tickerEntry
		if err := json.Unmarshal(raw, &t); err != nil {
			continue
		}
		price, err := strconv.ParseFloat(t.ClosingPrice, 64)
		if err != nil || price <= 0 {
			continue
		}
		volKRW, _ := strconv.ParseFloat(t.AccTradeValue24H, 64)

		out = append(out, model.SpotSnapshot{
			Venue:          model.VenueBithumb,
			Symbol:         base + "KRW",
			Quote:          model.CurrencyKRW,
			Price:          price,
			Volume24hQuote: volKRW,
			ObservedAt:     now,
		})
	}
	return out, nil
}

type orderBookResponse struct {
	Status string `json:"status"`
	Data   struct {
		Bids []orderBookEntry `json:"bids"`
		Asks []orderBookEntry `json:"asks"`
	} `json:"data"`
}

type orderBookEntry struct {
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
}

// FetchOrderBook fetches one pair's book and normalizes the ordering: bids
// descending, asks ascending.
func (c *Client) FetchOrderBook(ctx context.Context, symbol string) (model.OrderBook, error) {
	pair, err := pairFor(symbol)
	if err != nil {
		return model.OrderBook{}, err
	}

	var resp orderBookResponse
	url := c.baseURL + "/public/orderbook/" + pair
	if err := c.http.GetJSON(ctx, url, &resp); err != nil {
		return model.OrderBook{}, exchange.Transport("bithumb: GET "+url, err)
	}
	if resp.Status != "0000" {
		return model.OrderBook{}, exchange.Vendorf(model.VenueBithumb, "API error: status %s", resp.Status)
	}

	bids := parseBookSide(resp.Data.Bids)
	asks := parseBookSide(resp.Data.Asks)
	sort.Slice(bids, func(i, j int) bool { return bids[i].Price > bids[j].Price })
	sort.Slice(asks, func(i, j int) bool { return asks[i].Price < asks[j].Price })

	return model.OrderBook{
		Venue:      model.VenueBithumb,
		Symbol:     model.Canonicalize(symbol),
		Bids:       bids,
		Asks:       asks,
		ObservedAt: time.Now().UTC(),
	}, nil
}

func parseBookSide(entries []orderBookEntry) []model.BookLevel {
	out := make([]model.BookLevel, 0, len(entries))
	for _, e := range entries {
		price, err1 := strconv.ParseFloat(e.Price, 64)
		qty, err2 := strconv.ParseFloat(e.Quantity, 64)
		if err1 != nil || err2 != nil || price <= 0 || qty <= 0 {
			continue
		}
		out = append(out, model.BookLevel{Price: price, Qty: qty})
	}
	return out
}
