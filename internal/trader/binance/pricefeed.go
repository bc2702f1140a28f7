package binance

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	binanceex "github.com/quantfold/basisarb/internal/exchange/binance"
)

const (
	defaultSpotWSBase    = "wss://stream.binance.com:9443/ws"
	defaultFuturesWSBase = "wss://fstream.binance.com/ws"

	reconnectDelay = 5 * time.Second
)

type priceState struct {
	spotPrice   float64
	markPrice   float64
	hasSpot     bool
	hasMark     bool
	lastUpdated time.Time
}

// PriceFeed keeps the last spot price and futures mark per symbol, fed by one
// WebSocket per leg with an HTTP fallback for cold reads.
type PriceFeed struct {
	client *binanceex.Client

	mu     sync.RWMutex
	prices map[string]*priceState

	spotWSBase    string
	futuresWSBase string

	started map[string]struct{}
}

func NewPriceFeed(client *binanceex.Client) *PriceFeed {
	return &PriceFeed{
		client:        client,
		prices:        make(map[string]*priceState),
		spotWSBase:    defaultSpotWSBase,
		futuresWSBase: defaultFuturesWSBase,
		started:       make(map[string]struct{}),
	}
}

// StartSymbol launches the spot ticker and futures mark-price listeners for a
// symbol. Idempotent per symbol.
func (f *PriceFeed) StartSymbol(ctx context.Context, symbol string) {
	f.mu.Lock()
	if _, ok := f.started[symbol]; ok {
		f.mu.Unlock()
		return
	}
	f.started[symbol] = struct{}{}
	f.mu.Unlock()

	go f.runStream(ctx, symbol, f.spotWSBase+"/"+strings.ToLower(symbol)+"@ticker", f.handleSpotTicker)
	go f.runStream(ctx, symbol, f.futuresWSBase+"/"+strings.ToLower(symbol)+"@markPrice", f.handleMarkPrice)

	log.Info().Str("symbol", symbol).Msg("price feed listeners started")
}

// SpotPrice reads the cached spot price, falling back to one HTTP fetch that
// also warms the cache.
func (f *PriceFeed) SpotPrice(ctx context.Context, symbol string) (float64, error) {
	f.mu.RLock()
	st, ok := f.prices[symbol]
	if ok && st.hasSpot {
		price := st.spotPrice
		f.mu.RUnlock()
		return price, nil
	}
	f.mu.RUnlock()

	log.Warn().Str("symbol", symbol).Msg("spot price not in feed, falling back to http")
	price, err := f.client.SpotPrice(ctx, symbol)
	if err != nil {
		return 0, err
	}
	f.setSpot(symbol, price)
	return price, nil
}

// MarkPrice reads the cached futures mark, falling back to one HTTP fetch
// that also warms the cache.
func (f *PriceFeed) MarkPrice(ctx context.Context, symbol string) (float64, error) {
	f.mu.RLock()
	st, ok := f.prices[symbol]
	if ok && st.hasMark {
		price := st.markPrice
		f.mu.RUnlock()
		return price, nil
	}
	f.mu.RUnlock()

	log.Warn().Str("symbol", symbol).Msg("mark price not in feed, falling back to http")
	price, err := f.client.MarkPrice(ctx, symbol)
	if err != nil {
		return 0, err
	}
	f.setMark(symbol, price)
	return price, nil
}

// Age returns how long ago the symbol's entry was last updated.
func (f *PriceFeed) Age(symbol string) (time.Duration, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	st, ok := f.prices[symbol]
	if !ok || st.lastUpdated.IsZero() {
		return 0, false
	}
	return time.Since(st.lastUpdated), true
}

func (f *PriceFeed) entry(symbol string) *priceState {
	st, ok := f.prices[symbol]
	if !ok {
		st = &priceState{}
		f.prices[symbol] = st
	}
	return st
}

func (f *PriceFeed) setSpot(symbol string, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.entry(symbol)
	st.spotPrice = price
	st.hasSpot = true
	st.lastUpdated = time.Now()
}

func (f *PriceFeed) setMark(symbol string, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.entry(symbol)
	st.markPrice = price
	st.hasMark = true
	st.lastUpdated = time.Now()
}

// runStream is the supervised connect/read/reconnect loop shared by both
// legs. Cancellation comes only from ctx.
func (f *PriceFeed) runStream(ctx context.Context, symbol, url string, handle func(symbol string, data []byte)) {
	for {
		if err := f.readStream(ctx, symbol, url, handle); err != nil {
			log.Warn().Err(err).Str("url", url).Msg("websocket error, reconnecting")
		} else {
			log.Warn().Str("url", url).Msg("websocket closed, reconnecting")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (f *PriceFeed) readStream(ctx context.Context, symbol, url string, handle func(symbol string, data []byte)) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Info().Str("url", url).Str("symbol", symbol).Msg("websocket connected")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil // outer loop reconnects after the backoff
		}
		handle(symbol, data)
	}
}

func (f *PriceFeed) handleSpotTicker(symbol string, data []byte) {
	var msg struct {
		Symbol    string `json:"s"`
		LastPrice string `json:"c"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Warn().Err(err).Msg("failed to parse spot ticker message")
		return
	}
	if msg.Symbol != symbol {
		return
	}
	price, err := strconv.ParseFloat(msg.LastPrice, 64)
	if err != nil {
		log.Warn().Str("price", msg.LastPrice).Msg("failed to parse spot ticker price")
		return
	}
	f.setSpot(symbol, price)
}

func (f *PriceFeed) handleMarkPrice(symbol string, data []byte) {
	var msg struct {
		Symbol    string `json:"s"`
		MarkPrice string `json:"p"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Warn().Err(err).Msg("failed to parse mark price message")
		return
	}
	if msg.Symbol != symbol {
		return
	}
	price, err := strconv.ParseFloat(msg.MarkPrice, 64)
	if err != nil {
		log.Warn().Str("price", msg.MarkPrice).Msg("failed to parse mark price")
		return
	}
	f.setMark(symbol, price)
}
