// Package okx implements the OKX market-data adapter. Funding rates arrive
// over a persistent public WebSocket; everything else is REST.
package okx

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/quantfold/basisarb/internal/exchange"
	"github.com/quantfold/basisarb/internal/httpx"
	"github.com/quantfold/basisarb/internal/model"
)

const (
	defaultBaseURL = "https://www.okx.com"
	defaultWSURL   = "wss://ws.okx.com:8443/ws/v5/public"

	swapSuffix = "-USDT-SWAP"

	// Subscription batching imposed by the venue.
	maxArgsPerSubscribe = 20
	subscribePause      = 100 * time.Millisecond
	reconnectDelay      = 5 * time.Second
)

type fundingInfo struct {
	rate     float64
	nextTime *time.Time
}

type Client struct {
	http    *httpx.Client
	baseURL string
	wsURL   string

	mu      sync.RWMutex
	funding map[string]fundingInfo

	startOnce sync.Once
}

func New(httpc *httpx.Client) *Client {
	return &Client{
		http:    httpc,
		baseURL: defaultBaseURL,
		wsURL:   defaultWSURL,
		funding: make(map[string]fundingInfo),
	}
}

func (c *Client) Venue() model.Venue { return model.VenueOKX }

// Start launches the funding-rate subscriber. Safe to call more than once.
func (c *Client) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		go c.runFundingSubscriber(ctx)
	})
}

func (c *Client) runFundingSubscriber(ctx context.Context) {
	for {
		if err := c.subscribeFunding(ctx); err != nil {
			log.Error().Err(err).Msg("okx funding websocket error, reconnecting")
		} else {
			log.Warn().Msg("okx funding websocket closed, reconnecting")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (c *Client) subscribeFunding(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return exchange.Transport("okx: dial websocket", err)
	}
	defer conn.Close()
	log.Info().Str("url", c.wsURL).Msg("okx websocket connected")

	instIDs, err := c.swapInstruments(ctx)
	if err != nil {
		return err
	}
	log.Info().Int("instruments", len(instIDs)).Msg("subscribing okx funding-rate channel")

	for i := 0; i < len(instIDs); i += maxArgsPerSubscribe {
		end := i + maxArgsPerSubscribe
		if end > len(instIDs) {
			end = len(instIDs)
		}
		args := make([]map[string]string, 0, end-i)
		for _, id := range instIDs[i:end] {
			args = append(args, map[string]string{"channel": "funding-rate", "instId": id})
		}
		msg := map[string]any{"op": "subscribe", "args": args}
		if err := conn.WriteJSON(msg); err != nil {
			return exchange.Transport("okx: subscribe", err)
		}
		time.Sleep(subscribePause)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil // outer loop reconnects
		}
		c.handleFundingMessage(data)
	}
}

type wsFundingMessage struct {
	Data []struct {
		InstID          string `json:"instId"`
		FundingRate     string `json:"fundingRate"`
		NextFundingTime string `json:"nextFundingTime"`
	} `json:"data"`
}

func (c *Client) handleFundingMessage(data []byte) {
	var msg wsFundingMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return // subscription acks and errors are not funding payloads
	}
	for _, d := range msg.Data {
		rate, _ := strconv.ParseFloat(d.FundingRate, 64)
		info := fundingInfo{rate: rate}
		if ms, err := strconv.ParseInt(d.NextFundingTime, 10, 64); err == nil && ms > 0 {
			ts := time.UnixMilli(ms).UTC()
			info.nextTime = &ts
		}
		c.mu.Lock()
		c.funding[d.InstID] = info
		c.mu.Unlock()
	}
}

type apiResponse[T any] struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data T      `json:"data"`
}

func getData[T any](ctx context.Context, c *Client, path string) (T, error) {
	var resp apiResponse[T]
	url := c.baseURL + path
	if err := c.http.GetJSON(ctx, url, &resp); err != nil {
		var zero T
		return zero, exchange.Transport("okx: GET "+url, err)
	}
	if resp.Code != "0" {
		var zero T
		return zero, exchange.Vendorf(model.VenueOKX, "API error (%s): %s - %s", path, resp.Code, resp.Msg)
	}
	return resp.Data, nil
}

type tickerEntry struct {
	InstID    string `json:"instId"`
	Last      string `json:"last"`
	Vol24h    string `json:"vol24h"`
	VolCcy24h string `json:"volCcy24h"`
}

func (c *Client) swapInstruments(ctx context.Context) ([]string, error) {
	tickers, err := getData[[]tickerEntry](ctx, c, "/api/v5/market/tickers?instType=SWAP")
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		if strings.HasSuffix(t.InstID, swapSuffix) {
			out = append(out, t.InstID)
		}
	}
	return out, nil
}

type markPriceEntry struct {
	InstID string `json:"instId"`
	MarkPx string `json:"markPx"`
}

type openInterestEntry struct {
	InstID string `json:"instId"`
	OI     string `json:"oi"`
	OICcy  string `json:"oiCcy"`
	OIUsd  string `json:"oiUsd"`
}

// ListPerps joins tickers, mark prices and open interest for the USDT swap
// family. Funding comes from the WebSocket cache when warm.
func (c *Client) ListPerps(ctx context.Context) ([]model.PerpSnapshot, error) {
	tickers, err := getData[[]tickerEntry](ctx, c, "/api/v5/market/tickers?instType=SWAP")
	if err != nil {
		return nil, err
	}
	marks, err := getData[[]markPriceEntry](ctx, c, "/api/v5/public/mark-price?instType=SWAP")
	if err != nil {
		return nil, err
	}
	ois, err := getData[[]openInterestEntry](ctx, c, "/api/v5/public/open-interest?instType=SWAP")
	if err != nil {
		return nil, err
	}

	markMap := make(map[string]string, len(marks))
	for _, m := range marks {
		markMap[m.InstID] = m.MarkPx
	}
	oiMap := make(map[string]openInterestEntry, len(ois))
	for _, o := range ois {
		oiMap[o.InstID] = o
	}

	now := time.Now().UTC()
	out := make([]model.PerpSnapshot, 0, len(tickers))
	for _, t := range tickers {
		if !strings.HasSuffix(t.InstID, swapSuffix) {
			continue
		}
		markPrice, err := strconv.ParseFloat(markMap[t.InstID], 64)
		if err != nil || markPrice <= 0 {
			continue
		}

		c.mu.RLock()
		info, hasFunding := c.funding[t.InstID]
		c.mu.RUnlock()

		fundingRate := info.rate
		nextFunding := info.nextTime
		if !hasFunding {
			fundingRate = 0
		}

		var oiQuote float64
		if o, ok := oiMap[t.InstID]; ok {
			if o.OICcy != "" {
				oiQuote, _ = strconv.ParseFloat(o.OICcy, 64)
			} else {
				contracts, _ := strconv.ParseFloat(o.OI, 64)
				oiQuote = contracts * markPrice
			}
		}

		volQuote, _ := strconv.ParseFloat(t.VolCcy24h, 64)
		if volQuote == 0 {
			volQuote, _ = strconv.ParseFloat(t.Vol24h, 64)
		}

		// "BTC-USDT-SWAP" -> "BTCUSDT"
		symbol := model.Canonicalize(strings.TrimSuffix(t.InstID, "-SWAP"))

		out = append(out, model.PerpSnapshot{
			Venue:             model.VenueOKX,
			Symbol:            symbol,
			Quote:             model.CurrencyUSDT,
			MarkPrice:         markPrice,
			OpenInterestQuote: oiQuote,
			Volume24hQuote:    volQuote,
			FundingRate:       fundingRate,
			NextFundingTime:   nextFunding,
			ObservedAt:        now,
		})
	}
	return out, nil
}

// ListSpots lists USDT spot pairs.
func (c *Client) ListSpots(ctx context.Context) ([]model.SpotSnapshot, error) {
	tickers, err := getData[[]tickerEntry](ctx, c, "/api/v5/market/tickers?instType=SPOT")
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	out := make([]model.SpotSnapshot, 0, len(tickers))
	for _, t := range tickers {
		if !strings.HasSuffix(t.InstID, "-USDT") {
			continue
		}
		price, err := strconv.ParseFloat(t.Last, 64)
		if err != nil || price <= 0 {
			continue
		}
		volQuote, _ := strconv.ParseFloat(t.VolCcy24h, 64)
		out = append(out, model.SpotSnapshot{
			Venue:          model.VenueOKX,
			Symbol:         model.Canonicalize(t.InstID),
			Quote:          model.CurrencyUSDT,
			Price:          price,
			Volume24hQuote: volQuote,
			ObservedAt:     now,
		})
	}
	return out, nil
}
