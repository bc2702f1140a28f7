// Package bybit implements the Bybit market-data adapter (public v5 API,
// USDT quote family only).
package bybit

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/quantfold/basisarb/internal/exchange"
	"github.com/quantfold/basisarb/internal/httpx"
	"github.com/quantfold/basisarb/internal/model"
)

const defaultBaseURL = "https://api.bybit.com"

type Client struct {
	http    *httpx.Client
	baseURL string
}

func New(httpc *httpx.Client) *Client {
	return &Client{http: httpc, baseURL: defaultBaseURL}
}

// NewWithBaseURL is used by tests to point at a stub server.
func NewWithBaseURL(httpc *httpx.Client, baseURL string) *Client {
	return &Client{http: httpc, baseURL: baseURL}
}

func (c *Client) Venue() model.Venue { return model.VenueBybit }

type tickersResponse struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		Category string   `json:"category"`
		List     []ticker `json:"list"`
	} `json:"result"`
}

type ticker struct {
	Symbol            string `json:"symbol"`
	LastPrice         string `json:"lastPrice"`
	MarkPrice         string `json:"markPrice"`
	FundingRate       string `json:"fundingRate"`
	NextFundingTime   string `json:"nextFundingTime"`
	OpenInterestValue string `json:"openInterestValue"`
	Turnover24h       string `json:"turnover24h"`
}

func (c *Client) tickers(ctx context.Context, category string) ([]ticker, error) {
	var resp tickersResponse
	url := c.baseURL + "/v5/market/tickers?category=" + category
	if err := c.http.GetJSON(ctx, url, &resp); err != nil {
		return nil, exchange.Transport("bybit: GET "+url, err)
	}
	if resp.RetCode != 0 {
		return nil, exchange.Vendorf(model.VenueBybit, "API error (%s): %d - %s",
			category, resp.RetCode, resp.RetMsg)
	}
	return resp.Result.List, nil
}

// ListPerps lists USDT linear perpetuals.
func (c *Client) ListPerps(ctx context.Context) ([]model.PerpSnapshot, error) {
	list, err := c.tickers(ctx, "linear")
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	out := make([]model.PerpSnapshot, 0, len(list))
	for _, t := range list {
		if !strings.HasSuffix(t.Symbol, "USDT") {
			continue
		}
		markPrice, err := strconv.ParseFloat(t.MarkPrice, 64)
		if err != nil || markPrice <= 0 {
			continue
		}
		fundingRate, _ := strconv.ParseFloat(t.FundingRate, 64)
		oiValue, _ := strconv.ParseFloat(t.OpenInterestValue, 64)
		turnover, _ := strconv.ParseFloat(t.Turnover24h, 64)

		var nextFunding *time.Time
		if ms, err := strconv.ParseInt(t.NextFundingTime, 10, 64); err == nil && ms > 0 {
			ts := time.UnixMilli(ms).UTC()
			nextFunding = &ts
		}

		out = append(out, model.PerpSnapshot{
			Venue:             model.VenueBybit,
			Symbol:            t.Symbol,
			Quote:             model.CurrencyUSDT,
			MarkPrice:         markPrice,
			OpenInterestQuote: oiValue,
			Volume24hQuote:    turnover,
			FundingRate:       fundingRate,
			NextFundingTime:   nextFunding,
			ObservedAt:        now,
		})
	}
	return out, nil
}

// ListSpots lists USDT spot pairs.
func (c *Client) ListSpots(ctx context.Context) ([]model.SpotSnapshot, error) {
	list, err := c.tickers(ctx, "spot")
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	out := make([]model.SpotSnapshot, 0, len(list))
	for _, t := range list {
		if !strings.HasSuffix(t.Symbol, "USDT") {
			continue
		}
		price, err := strconv.ParseFloat(t.LastPrice, 64)
		if err != nil || price <= 0 {
			continue
		}
		turnover, _ := strconv.ParseFloat(t.Turnover24h, 64)
		out = append(out, model.SpotSnapshot{
			Venue:          model.VenueBybit,
			Symbol:         t.Symbol,
			Quote:          model.CurrencyUSDT,
			Price:          price,
			Volume24hQuote: turnover,
			ObservedAt:     now,
		})
	}
	return out, nil
}
