// Package trader defines the execution-side interfaces the strategies drive.
// A venue that can serve as the spot leg implements SpotTrader; one that can
// serve as the hedge (futures) leg implements FuturesTrader.
package trader

import (
	"context"

	"github.com/quantfold/basisarb/internal/model"
)

// SpotTrader controls the spot leg of a hedged position.
type SpotTrader interface {
	EnsureExchangeInfo(ctx context.Context) error
	SpotPrice(ctx context.Context, symbol string) (float64, error)
	ClampSpotQty(symbol string, qty float64) float64
	BuySpot(ctx context.Context, symbol string, qty float64) (model.OrderAck, error)
	SellSpot(ctx context.Context, symbol string, qty float64) (model.OrderAck, error)
	SpotBalance(ctx context.Context, asset string) (float64, error)
}

// FuturesTrader controls the futures leg of a hedged position.
type FuturesTrader interface {
	EnsureExchangeInfo(ctx context.Context) error
	EnsureAccountSetup(ctx context.Context, symbol string, leverage int, isolated bool) error
	MarkPrice(ctx context.Context, symbol string) (float64, error)
	ClampFuturesQty(symbol string, qty float64) float64
	BuyFutures(ctx context.Context, symbol string, qty float64, reduceOnly bool) (model.OrderAck, error)
	SellFutures(ctx context.Context, symbol string, qty float64, reduceOnly bool) (model.OrderAck, error)
}
