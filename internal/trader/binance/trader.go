// Package binance wires the exchange client, the WebSocket price feed and
// the user data stream into a trader serving both legs of a hedged position.
package binance

import (
	"context"
	"time"

	binanceex "github.com/quantfold/basisarb/internal/exchange/binance"
	"github.com/quantfold/basisarb/internal/model"
)

type Trader struct {
	client *binanceex.Client
	feed   *PriceFeed
	stream *UserStream
}

func NewTrader(client *binanceex.Client, apiKey, apiSecret string) *Trader {
	return &Trader{
		client: client,
		feed:   NewPriceFeed(client),
		stream: NewUserStream(apiKey, apiSecret),
	}
}

func (t *Trader) Venue() model.Venue { return model.VenueBinance }

// Client exposes the underlying exchange client.
func (t *Trader) Client() *binanceex.Client { return t.client }

// StartListeners launches the price feed streams for a symbol.
func (t *Trader) StartListeners(ctx context.Context, symbol string) {
	t.feed.StartSymbol(ctx, symbol)
}

// RunUserStream consumes order and balance events until ctx is done.
func (t *Trader) RunUserStream(ctx context.Context, handler func(UserDataEvent)) error {
	return t.stream.Run(ctx, handler)
}

// PriceAge reports the staleness of the symbol's feed entry.
func (t *Trader) PriceAge(symbol string) (time.Duration, bool) {
	return t.feed.Age(symbol)
}

func (t *Trader) EnsureExchangeInfo(ctx context.Context) error {
	if err := t.client.LoadSpotExchangeInfo(ctx); err != nil {
		return err
	}
	return t.client.LoadFuturesExchangeInfo(ctx)
}

func (t *Trader) EnsureAccountSetup(ctx context.Context, symbol string, leverage int, isolated bool) error {
	return t.client.EnsureFuturesSetup(ctx, symbol, leverage, isolated)
}

func (t *Trader) SpotPrice(ctx context.Context, symbol string) (float64, error) {
	return t.feed.SpotPrice(ctx, symbol)
}

func (t *Trader) MarkPrice(ctx context.Context, symbol string) (float64, error) {
	return t.feed.MarkPrice(ctx, symbol)
}

func (t *Trader) ClampSpotQty(symbol string, qty float64) float64 {
	return t.client.ClampSpotQty(symbol, qty)
}

func (t *Trader) ClampFuturesQty(symbol string, qty float64) float64 {
	return t.client.ClampFuturesQty(symbol, qty)
}

func (t *Trader) BuySpot(ctx context.Context, symbol string, qty float64) (model.OrderAck, error) {
	return t.client.PlaceSpotMarket(ctx, symbol, "BUY", qty, false)
}

func (t *Trader) SellSpot(ctx context.Context, symbol string, qty float64) (model.OrderAck, error) {
	return t.client.PlaceSpotMarket(ctx, symbol, "SELL", qty, false)
}

func (t *Trader) BuyFutures(ctx context.Context, symbol string, qty float64, reduceOnly bool) (model.OrderAck, error) {
	return t.client.PlaceFuturesMarket(ctx, symbol, "BUY", qty, reduceOnly)
}

func (t *Trader) SellFutures(ctx context.Context, symbol string, qty float64, reduceOnly bool) (model.OrderAck, error) {
	return t.client.PlaceFuturesMarket(ctx, symbol, "SELL", qty, reduceOnly)
}

// SpotBalance returns the available spot balance of one asset.
func (t *Trader) SpotBalance(ctx context.Context, asset string) (float64, error) {
	assets, err := t.client.FetchAssets(ctx)
	if err != nil {
		return 0, err
	}
	for _, a := range assets {
		if a.Currency == asset {
			return a.Available, nil
		}
	}
	return 0, nil
}

// TradeFee returns the account's spot fee schedule for one symbol.
func (t *Trader) TradeFee(ctx context.Context, symbol string) (model.FeeInfo, error) {
	return t.client.TradeFee(ctx, symbol)
}
