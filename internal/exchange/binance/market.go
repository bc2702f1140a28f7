package binance

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/quantfold/basisarb/internal/exchange"
	"github.com/quantfold/basisarb/internal/model"
)

type premiumIndex struct {
	Symbol          string `json:"symbol"`
	MarkPrice       string `json:"markPrice"`
	LastFundingRate string `json:"lastFundingRate"`
	NextFundingTime int64  `json:"nextFundingTime"`
}

type futuresTicker24h struct {
	Symbol       string `json:"symbol"`
	QuoteVolume  string `json:"quoteVolume"`
	OpenInterest string `json:"openInterest"`
}

// ListPerps merges the premium index with the 24h futures tickers and keeps
// the USDT-quoted family.
func (c *Client) ListPerps(ctx context.Context) ([]model.PerpSnapshot, error) {
	var premium []premiumIndex
	if err := c.getJSON(ctx, c.futuresBaseURL+"/fapi/v1/premiumIndex", &premium); err != nil {
		return nil, err
	}

	var tickers []futuresTicker24h
	if err := c.getJSON(ctx, c.futuresBaseURL+"/fapi/v1/ticker/24hr", &tickers); err != nil {
		return nil, err
	}

	tickerMap := make(map[string]futuresTicker24h, len(tickers))
	for _, t := range tickers {
		tickerMap[t.Symbol] = t
	}

	now := time.Now().UTC()
	out := make([]model.PerpSnapshot, 0, len(premium))
	for _, p := range premium {
		if !strings.HasSuffix(p.Symbol, "USDT") {
			continue
		}
		t, ok := tickerMap[p.Symbol]
		if !ok {
			continue
		}
		markPrice, err := strconv.ParseFloat(p.MarkPrice, 64)
		if err != nil || markPrice <= 0 {
			continue
		}
		fundingRate, _ := strconv.ParseFloat(p.LastFundingRate, 64)
		oiContracts, _ := strconv.ParseFloat(t.OpenInterest, 64)
		quoteVolume, _ := strconv.ParseFloat(t.QuoteVolume, 64)

		var nextFunding *time.Time
		if p.NextFundingTime > 0 {
			ts := time.UnixMilli(p.NextFundingTime).UTC()
			nextFunding = &ts
		}

		out = append(out, model.PerpSnapshot{
			Venue:             model.VenueBinance,
			Symbol:            p.Symbol,
			Quote:             model.CurrencyUSDT,
			MarkPrice:         markPrice,
			OpenInterestQuote: oiContracts * markPrice,
			Volume24hQuote:    quoteVolume,
			FundingRate:       fundingRate,
			NextFundingTime:   nextFunding,
			ObservedAt:        now,
		})
	}
	return out, nil
}

type spotTicker24h struct {
	Symbol      string `json:"symbol"`
	LastPrice   string `json:"lastPrice"`
	QuoteVolume string `json:"quoteVolume"`
}

// ListSpots lists USDT-quoted spot pairs from the 24h ticker endpoint.
func (c *Client) ListSpots(ctx context.Context) ([]model.SpotSnapshot, error) {
	var tickers []spotTicker24h
	if err := c.getJSON(ctx, c.spotBaseURL+"/api/v3/ticker/24hr", &tickers); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	out := make([]model.SpotSnapshot, 0, len(tickers))
	for _, t := range tickers {
		if !strings.HasSuffix(t.Symbol, "USDT") {
			continue
		}
		price, err := strconv.ParseFloat(t.LastPrice, 64)
		if err != nil || price <= 0 {
			continue
		}
		quoteVolume, _ := strconv.ParseFloat(t.QuoteVolume, 64)
		out = append(out, model.SpotSnapshot{
			Venue:          model.VenueBinance,
			Symbol:         t.Symbol,
			Quote:          model.CurrencyUSDT,
			Price:          price,
			Volume24hQuote: quoteVolume,
			ObservedAt:     now,
		})
	}
	return out, nil
}

type depthResponse struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

// FetchOrderBook fetches the spot depth snapshot for one symbol. Bids come
// back descending and asks ascending, which we preserve.
func (c *Client) FetchOrderBook(ctx context.Context, symbol string) (model.OrderBook, error) {
	sym := model.Canonicalize(symbol)
	url := fmt.Sprintf("%s/api/v3/depth?symbol=%s&limit=100", c.spotBaseURL, sym)

	var depth depthResponse
	if err := c.getJSON(ctx, url, &depth); err != nil {
		return model.OrderBook{}, err
	}

	return model.OrderBook{
		Venue:      model.VenueBinance,
		Symbol:     sym,
		Bids:       parseLevels(depth.Bids),
		Asks:       parseLevels(depth.Asks),
		ObservedAt: time.Now().UTC(),
	}, nil
}

func parseLevels(raw [][]string) []model.BookLevel {
	out := make([]model.BookLevel, 0, len(raw))
	for _, e := range raw {
		if len(e) < 2 {
			continue
		}
		price, err1 := strconv.ParseFloat(e[0], 64)
		qty, err2 := strconv.ParseFloat(e[1], 64)
		if err1 != nil || err2 != nil || price <= 0 || qty <= 0 {
			continue
		}
		out = append(out, model.BookLevel{Price: price, Qty: qty})
	}
	return out
}

type priceTicker struct {
	Price string `json:"price"`
}

// SpotPrice fetches the last spot trade price.
func (c *Client) SpotPrice(ctx context.Context, symbol string) (float64, error) {
	var pt priceTicker
	url := fmt.Sprintf("%s/api/v3/ticker/price?symbol=%s", c.spotBaseURL, model.Canonicalize(symbol))
	if err := c.getJSON(ctx, url, &pt); err != nil {
		return 0, err
	}
	price, err := strconv.ParseFloat(pt.Price, 64)
	if err != nil {
		return 0, exchange.Vendorf(model.VenueBinance, "failed to parse price %q: %v", pt.Price, err)
	}
	return price, nil
}

type markTicker struct {
	MarkPrice string `json:"markPrice"`
}

// MarkPrice fetches the futures mark price from the premium index.
func (c *Client) MarkPrice(ctx context.Context, symbol string) (float64, error) {
	var mt markTicker
	url := fmt.Sprintf("%s/fapi/v1/premiumIndex?symbol=%s", c.futuresBaseURL, model.Canonicalize(symbol))
	if err := c.getJSON(ctx, url, &mt); err != nil {
		return 0, err
	}
	price, err := strconv.ParseFloat(mt.MarkPrice, 64)
	if err != nil {
		return 0, exchange.Vendorf(model.VenueBinance, "failed to parse mark price %q: %v", mt.MarkPrice, err)
	}
	return price, nil
}
