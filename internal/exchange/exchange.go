// Package exchange defines the capability surface venue adapters implement
// and the shared error and lot-size machinery they build on. A venue exposes
// only the capabilities it actually supports; consumers hold the narrow
// interface they need.
package exchange

import (
	"context"

	"github.com/quantfold/basisarb/internal/model"
)

// PerpLister lists all linear perpetuals a venue trades.
type PerpLister interface {
	Venue() model.Venue
	ListPerps(ctx context.Context) ([]model.PerpSnapshot, error)
}

// SpotLister lists all spot pairs of a venue's supported quote family.
type SpotLister interface {
	Venue() model.Venue
	ListSpots(ctx context.Context) ([]model.SpotSnapshot, error)
}

// OrderBookFetcher fetches one symbol's order book.
type OrderBookFetcher interface {
	Venue() model.Venue
	FetchOrderBook(ctx context.Context, symbol string) (model.OrderBook, error)
}

// AssetFetcher lists account balances. Authenticated.
type AssetFetcher interface {
	Venue() model.Venue
	FetchAssets(ctx context.Context) ([]model.Asset, error)
}

// FeeProvider exposes trading and transfer fee schedules.
type FeeProvider interface {
	Venue() model.Venue
	Fee(market model.MarketType) model.FeeInfo
	DepositWithdrawalFee(ctx context.Context, currency string) (model.DepositWithdrawalFee, error)
}
