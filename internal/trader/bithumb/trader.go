// Package bithumb adapts the Bithumb client to the spot-leg trader
// interface. Bithumb publishes no symbol catalog with lot filters, so the
// trader falls back to per-quote default step sizes.
package bithumb

import (
	"context"
	"math"
	"strings"

	"github.com/rs/zerolog/log"

	bithumbex "github.com/quantfold/basisarb/internal/exchange/bithumb"
	"github.com/quantfold/basisarb/internal/model"
)

const (
	krwStepSize     = 0.0001
	defaultStepSize = 0.000001
)

type Trader struct {
	client *bithumbex.Client
}

func NewTrader(client *bithumbex.Client) *Trader {
	return &Trader{client: client}
}

func (t *Trader) Venue() model.Venue { return model.VenueBithumb }

// EnsureExchangeInfo is a no-op; there is no catalog to load.
func (t *Trader) EnsureExchangeInfo(context.Context) error { return nil }

func (t *Trader) SpotPrice(ctx context.Context, symbol string) (float64, error) {
	book, err := t.client.FetchOrderBook(ctx, symbol)
	if err != nil {
		return 0, err
	}
	bid, ask := book.BestBid(), book.BestAsk()
	if bid > 0 && ask > 0 {
		return (bid + ask) / 2, nil
	}
	if ask > 0 {
		return ask, nil
	}
	return bid, nil
}

func stepSizeFor(symbol string) float64 {
	if strings.HasSuffix(model.Canonicalize(symbol), "KRW") {
		return krwStepSize
	}
	return defaultStepSize
}

func (t *Trader) ClampSpotQty(symbol string, qty float64) float64 {
	if qty <= 0 {
		return 0
	}
	step := stepSizeFor(symbol)
	clamped := math.Floor(qty/step) * step
	if clamped <= 0 {
		log.Warn().Str("symbol", symbol).Float64("qty", qty).Float64("step", step).
			Msg("quantity too small after clamp")
		return 0
	}
	return clamped
}

func (t *Trader) BuySpot(ctx context.Context, symbol string, qty float64) (model.OrderAck, error) {
	return t.client.MarketBuy(ctx, symbol, qty)
}

func (t *Trader) SellSpot(ctx context.Context, symbol string, qty float64) (model.OrderAck, error) {
	return t.client.MarketSell(ctx, symbol, qty)
}

func (t *Trader) SpotBalance(ctx context.Context, asset string) (float64, error) {
	assets, err := t.client.FetchAssets(ctx)
	if err != nil {
		return 0, err
	}
	target := strings.ToUpper(asset)
	for _, a := range assets {
		if a.Currency == target {
			return a.Available, nil
		}
	}
	return 0, nil
}
