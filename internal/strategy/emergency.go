package strategy

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/quantfold/basisarb/internal/exchange"
	"github.com/quantfold/basisarb/internal/model"
)

// quoteAssets are never liquidated: they are what everything else is
// flattened into.
var quoteAssets = map[string]struct{}{
	"USDT": {}, "KRW": {}, "USD": {}, "BUSD": {}, "USDC": {},
}

// Liquidator is the minimal surface needed to flatten an account.
type Liquidator interface {
	SellSpot(ctx context.Context, symbol string, qty float64) (model.OrderAck, error)
	ClampSpotQty(symbol string, qty float64) float64
}

// LiquidateAll market-sells every non-quote spot balance into the quote
// currency. Per-asset failures are logged and skipped so one refused order
// cannot stop the flatten.
func LiquidateAll(ctx context.Context, assets exchange.AssetFetcher, l Liquidator, quote model.Currency) error {
	balances, err := assets.FetchAssets(ctx)
	if err != nil {
		return err
	}

	for _, a := range balances {
		if _, ok := quoteAssets[a.Currency]; ok {
			continue
		}
		if a.Available <= 0 {
			continue
		}

		symbol := a.Currency + string(quote)
		qty := l.ClampSpotQty(symbol, a.Available)
		if qty <= 0 {
			log.Warn().Str("currency", a.Currency).Float64("available", a.Available).
				Msg("balance too small to liquidate")
			continue
		}

		log.Info().Str("symbol", symbol).Float64("qty", qty).Msg("emergency liquidation sell")
		if _, err := l.SellSpot(ctx, symbol, qty); err != nil {
			log.Error().Err(err).Str("symbol", symbol).Msg("liquidation sell failed")
			continue
		}
	}
	return nil
}
