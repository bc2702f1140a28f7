// Package bitget implements the Bitget market-data adapter. Open interest
// needs one request per symbol, so the perp listing fans out with a bounded
// worker pool.
package bitget

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quantfold/basisarb/internal/exchange"
	"github.com/quantfold/basisarb/internal/httpx"
	"github.com/quantfold/basisarb/internal/model"
)

const (
	defaultBaseURL = "https://api.bitget.com"
	umcblSuffix    = "_UMCBL"

	// Fan-out discipline: bounded in-flight requests plus a small delay per
	// request keeps the anti-bot layer quiet.
	maxInflight  = 10
	requestDelay = 50 * time.Millisecond
)

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

func (c *Client) Venue() model.Venue { return model.VenueBitget }

type apiResponse[T any] struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data T      `json:"data"`
}

type perpTicker struct {
	Symbol      string `json:"symbol"`
	Last        string `json:"last"`
	UsdtVolume  string `json:"usdtVolume"`
	IndexPrice  string `json:"indexPrice"`
	FundingRate string `json:"fundingRate"`
}

type openInterest struct {
	Symbol string `json:"symbol"`
	Amount string `json:"amount"`
}

// NextFundingTime returns the next slot of Bitget's 4-hour UTC funding grid.
func NextFundingTime(now time.Time) time.Time {
	now = now.UTC()
	next := now.Truncate(4 * time.Hour).Add(4 * time.Hour)
	return next
}

// ListPerps lists USDT-margined perpetuals. The holding amount on the ticker
// is a net position, so real open interest comes from a per-symbol fan-out;
// symbols whose lookup fails are reported with zero OI rather than dropped.
func (c *Client) ListPerps(ctx context.Context) ([]model.PerpSnapshot, error) {
	var resp apiResponse[[]perpTicker]
	url := c.baseURL + "/api/mix/v1/market/tickers?productType=umcbl"
	if err := c.http.GetJSON(ctx, url, &resp); err != nil {
		return nil, exchange.Transport("bitget: GET "+url, err)
	}
	if resp.Code != "00000" {
		return nil, exchange.Vendorf(model.VenueBitget, "API error (tickers): %s - %s", resp.Code, resp.Msg)
	}

	symbols := make([]string, 0, len(resp.Data))
	for _, t := range resp.Data {
		if strings.HasSuffix(t.Symbol, umcblSuffix) {
			symbols = append(symbols, t.Symbol)
		}
	}
	oiMap := c.fetchOpenInterest(ctx, symbols)

	now := time.Now().UTC()
	nextFunding := NextFundingTime(now)
	out := make([]model.PerpSnapshot, 0, len(resp.Data))
	for _, t := range resp.Data {
		if !strings.HasSuffix(t.Symbol, umcblSuffix) {
			continue
		}
		markPrice, err := strconv.ParseFloat(t.IndexPrice, 64)
		if err != nil || markPrice <= 0 {
			continue
		}
		fundingRate, _ := strconv.ParseFloat(t.FundingRate, 64)
		volQuote, _ := strconv.ParseFloat(t.UsdtVolume, 64)

		// amount can be negative on the v1 API
		oiContracts := math.Abs(oiMap[t.Symbol])

		out = append(out, model.PerpSnapshot{
			Venue:             model.VenueBitget,
			Symbol:            strings.TrimSuffix(t.Symbol, umcblSuffix),
			Quote:             model.CurrencyUSDT,
			MarkPrice:         markPrice,
			OpenInterestQuote: oiContracts * markPrice,
			Volume24hQuote:    volQuote,
			FundingRate:       fundingRate,
			NextFundingTime:   &nextFunding,
			ObservedAt:        now,
		})
	}
	return out, nil
}

// fetchOpenInterest fans out one OI request per symbol with at most
// maxInflight concurrent requests. Failures are skipped; anti-bot responses
// and delisted symbols are skipped silently.
func (c *Client) fetchOpenInterest(ctx context.Context, symbols []string) map[string]float64 {
	var (
		mu  sync.Mutex
		out = make(map[string]float64, len(symbols))
		wg  sync.WaitGroup
		sem = make(chan struct{}, maxInflight)
	)

	for _, symbol := range symbols {
		wg.Add(1)
		sem <- struct{}{}
		go func(symbol string) {
			defer wg.Done()
			defer func() { <-sem }()

			time.Sleep(requestDelay)

			amount, ok := c.openInterestFor(ctx, symbol)
			if !ok {
				return
			}
			mu.Lock()
			out[symbol] = amount
			mu.Unlock()
		}(symbol)
	}
	wg.Wait()
	return out
}

func (c *Client) openInterestFor(ctx context.Context, symbol string) (float64, bool) {
	url := fmt.Sprintf("%s/api/mix/v1/market/open-interest?symbol=%s&productType=umcbl", c.baseURL, symbol)
	res, err := c.http.Get(ctx, url)
	if err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("failed to fetch open interest")
		return 0, false
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("failed to read open interest body")
		return 0, false
	}
	text := string(body)

	// Anti-bot interstitials are transient; skip without surfacing.
	if strings.Contains(text, "cloudflare") || strings.Contains(text, "block") {
		return 0, false
	}

	var resp apiResponse[openInterest]
	if err := json.Unmarshal(body, &resp); err != nil {
		if !strings.Contains(text, "The symbol has been removed") {
			log.Warn().Err(err).Str("symbol", symbol).Str("response", exchange.Truncate(text)).
				Msg("failed to parse open interest")
		}
		return 0, false
	}
	if resp.Code != "00000" {
		if !strings.Contains(resp.Msg, "The symbol has been removed") {
			log.Warn().Str("symbol", symbol).Str("code", resp.Code).Str("msg", resp.Msg).
				Msg("open interest API error")
		}
		return 0, false
	}

	amount, err := strconv.ParseFloat(resp.Data.Amount, 64)
	if err != nil {
		return 0, false
	}
	return amount, true
}

type spotTicker struct {
	Symbol   string `json:"symbol"`
	Close    string `json:"close"`
	UsdtVol  string `json:"usdtVol"`
	QuoteVol string `json:"quoteVol"`
}

// ListSpots lists USDT spot pairs.
func (c *Client) ListSpots(ctx context.Context) ([]model.SpotSnapshot, error) {
	var resp apiResponse[[]spotTicker]
	url := c.baseURL + "/api/spot/v1/market/tickers"
	if err := c.http.GetJSON(ctx, url, &resp); err != nil {
		return nil, exchange.Transport("bitget: GET "+url, err)
	}
	if resp.Code != "00000" {
		return nil, exchange.Vendorf(model.VenueBitget, "API error (spot tickers): %s - %s", resp.Code, resp.Msg)
	}

	now := time.Now().UTC()
	out := make([]model.SpotSnapshot, 0, len(resp.Data))
	for _, t := range resp.Data {
		if !strings.HasSuffix(t.Symbol, "USDT") {
			continue
		}
		price, err := strconv.ParseFloat(t.Close, 64)
		if err != nil || price <= 0 {
			continue
		}
		volQuote, _ := strconv.ParseFloat(t.UsdtVol, 64)
		if volQuote == 0 {
			volQuote, _ = strconv.ParseFloat(t.QuoteVol, 64)
		}
		out = append(out, model.SpotSnapshot{
			Venue:          model.VenueBitget,
			Symbol:         t.Symbol,
			Quote:          model.CurrencyUSDT,
			Price:          price,
			Volume24hQuote: volQuote,
			ObservedAt:     now,
		})
	}
	return out, nil
}
