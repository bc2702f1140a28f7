package strategy

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quantfold/basisarb/internal/exchange"
	"github.com/quantfold/basisarb/internal/model"
	"github.com/quantfold/basisarb/internal/trader"
)

// Cross runs the cross-venue variant: the spot leg on the premium venue, the
// futures hedge on another. The primary spot price is pulled into the hedge
// quote currency with the FX adjustment before basis is computed, and sizes
// are bounded by what both venues can absorb.
type Cross struct {
	spot   trader.SpotTrader
	hedge  trader.FuturesTrader
	params CrossParams
	store  *StateStore
}

func NewCross(spot trader.SpotTrader, hedge trader.FuturesTrader, params CrossParams, store *StateStore) *Cross {
	return &Cross{spot: spot, hedge: hedge, params: params, store: store}
}

// targetQuantity is the common size both notionals can carry at current
// prices.
func (s *Cross) targetQuantity(primaryPrice, hedgePrice float64) float64 {
	var primaryQty, hedgeQty float64
	if primaryPrice > 0 {
		primaryQty = s.params.PrimaryNotional / primaryPrice
	}
	if hedgePrice > 0 {
		hedgeQty = s.params.HedgeNotional / hedgePrice
	}
	if primaryQty < hedgeQty {
		return primaryQty
	}
	return hedgeQty
}

// clampCross aligns qty to both venues' lot rules and keeps the smaller.
func (s *Cross) clampCross(qty float64) float64 {
	spotQty := s.spot.ClampSpotQty(s.params.PrimarySymbol, qty)
	futQty := s.hedge.ClampFuturesQty(s.params.HedgeSymbol, qty)
	if spotQty < futQty {
		return spotQty
	}
	return futQty
}

// Run performs pre-flight and ticks until ctx is done.
func (s *Cross) Run(ctx context.Context) error {
	if err := s.spot.EnsureExchangeInfo(ctx); err != nil {
		return err
	}
	if err := s.hedge.EnsureExchangeInfo(ctx); err != nil {
		return err
	}
	if err := s.hedge.EnsureAccountSetup(ctx, s.params.HedgeSymbol, s.params.Leverage, s.params.Isolated); err != nil {
		return err
	}

	key := s.params.Key()
	state, err := s.store.Load(key)
	if err != nil {
		return err
	}
	if state.Key != key {
		state = NewPositionState(key)
	}

	log.Info().
		Str("primary", s.params.PrimaryVenue+" "+s.params.PrimarySymbol).
		Str("hedge", s.params.HedgeVenue+" "+s.params.HedgeSymbol).
		Str("mode", string(s.params.Mode)).
		Float64("entry_bps", s.params.EntryBps).
		Float64("exit_bps", s.params.ExitBps).
		Msg("starting cross-venue basis arbitrage strategy")

	tick := s.params.TickInterval
	if tick <= 0 {
		tick = 100 * time.Microsecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		s.step(ctx, &state)
	}
}

func (s *Cross) step(ctx context.Context, state *PositionState) {
	primaryPrice, err := s.spot.SpotPrice(ctx, s.params.PrimarySymbol)
	if err != nil {
		log.Warn().Err(err).Msg("failed to get primary spot price")
		return
	}
	hedgeMark, err := s.hedge.MarkPrice(ctx, s.params.HedgeSymbol)
	if err != nil {
		log.Warn().Err(err).Msg("failed to get hedge mark price")
		return
	}

	adjusted := primaryPrice * s.params.FxAdjustment
	if adjusted <= 0 {
		log.Warn().Float64("adjusted", adjusted).Msg("adjusted primary price invalid, skipping tick")
		return
	}
	basisBps := ComputeBasisBps(adjusted, hedgeMark)

	log.Debug().
		Float64("primary", primaryPrice).
		Float64("hedge", hedgeMark).
		Float64("basis_bps", basisBps).
		Msg("cross tick")

	if state.Open {
		s.maybeClose(ctx, state, basisBps)
		return
	}
	s.maybeOpen(ctx, state, primaryPrice, hedgeMark, basisBps)
}

func (s *Cross) maybeClose(ctx context.Context, state *PositionState, basisBps float64) {
	var shouldClose bool
	switch state.Direction {
	case DirectionCarry:
		shouldClose = basisBps <= s.params.ExitBps
	case DirectionReverse:
		shouldClose = basisBps >= -s.params.ExitBps
	default:
		log.Warn().Str("direction", string(state.Direction)).Msg("open state with unknown direction")
		return
	}
	if !shouldClose {
		return
	}

	log.Info().Float64("basis_bps", basisBps).Msg("exit condition met, closing cross position")

	var (
		actions json.RawMessage
		err     error
	)
	if state.Direction == DirectionCarry {
		actions, err = s.closeCarry(ctx, state.Pair.FutOrderQty)
	} else {
		actions, err = s.closeReverse(ctx, state.Pair.FutOrderQty)
	}
	if err != nil {
		log.Warn().Err(err).Msg("failed to close cross position")
		return
	}

	state.MarkClosed(basisBps, actions)
	if err := s.store.Save(*state); err != nil {
		log.Error().Err(err).Msg("state write failed after close")
	}
	log.Info().Msg("cross position closed")
}

func (s *Cross) maybeOpen(ctx context.Context, state *PositionState, primaryPrice, hedgeMark, basisBps float64) {
	openCarry := (s.params.Mode == ModeCarry || s.params.Mode == ModeAuto) && basisBps > s.params.EntryBps
	openReverse := (s.params.Mode == ModeReverse || s.params.Mode == ModeAuto) && basisBps < -s.params.EntryBps
	if !openCarry && !openReverse {
		return
	}

	qty := s.targetQuantity(primaryPrice, hedgeMark)
	if qty <= 0 {
		log.Warn().Float64("primary", primaryPrice).Float64("hedge", hedgeMark).
			Msg("target quantity too small")
		return
	}

	var (
		dir     Direction
		pair    model.HedgedPair
		actions json.RawMessage
		err     error
	)
	if openCarry {
		dir = DirectionCarry
		pair, actions, err = s.openCarry(ctx, qty)
	} else {
		dir = DirectionReverse
		pair, actions, err = s.openReverse(ctx, qty)
	}
	if err != nil {
		log.Warn().Err(err).Str("direction", string(dir)).Msg("failed to open cross position")
		return
	}

	state.MarkOpen(dir, pair, basisBps, actions)
	if err := s.store.Save(*state); err != nil {
		log.Error().Err(err).Msg("state write failed after open")
	}
	log.Info().Str("direction", string(dir)).Msg("cross position opened")
}

func (s *Cross) openCarry(ctx context.Context, qty float64) (model.HedgedPair, json.RawMessage, error) {
	log.Info().Float64("qty", qty).
		Str("primary", s.params.PrimarySymbol).
		Str("hedge", s.params.HedgeSymbol).
		Msg("opening cross carry: primary spot BUY, hedge futures SELL")

	if s.params.DryRun {
		log.Info().Msgf("DRY RUN: would BUY spot %v %s, SELL futures %v %s",
			qty, s.params.PrimarySymbol, qty, s.params.HedgeSymbol)
		return model.HedgedPair{}, nil, ErrDryRun
	}

	tradeQty := s.clampCross(qty)
	if tradeQty <= 0 {
		return model.HedgedPair{}, nil, exchange.Vendorf("",
			"quantity too small after clamping, requested=%v", qty)
	}

	spotAck, err := s.spot.BuySpot(ctx, s.params.PrimarySymbol, tradeQty)
	if err != nil {
		return model.HedgedPair{}, nil, err
	}
	hedgeAck, err := s.hedge.SellFutures(ctx, s.params.HedgeSymbol, tradeQty, false)
	if err != nil {
		s.recordPendingHedge(spotAck, err)
		return model.HedgedPair{}, nil, err
	}

	actions, _ := json.Marshal(map[string]model.OrderAck{"spot": spotAck, "hedge": hedgeAck})
	pair := model.HedgedPair{SpotOrderQty: tradeQty, FutOrderQty: tradeQty, SpotNetQtyEst: tradeQty}
	return pair, actions, nil
}

func (s *Cross) openReverse(ctx context.Context, qty float64) (model.HedgedPair, json.RawMessage, error) {
	log.Info().Float64("qty", qty).
		Str("primary", s.params.PrimarySymbol).
		Str("hedge", s.params.HedgeSymbol).
		Msg("opening cross reverse: primary spot SELL, hedge futures BUY")

	if s.params.DryRun {
		log.Info().Msgf("DRY RUN: would SELL spot %v %s, BUY futures %v %s",
			qty, s.params.PrimarySymbol, qty, s.params.HedgeSymbol)
		return model.HedgedPair{}, nil, ErrDryRun
	}

	balance, err := s.spot.SpotBalance(ctx, s.params.PrimaryBaseAsset)
	if err != nil {
		return model.HedgedPair{}, nil, err
	}
	if balance <= 0 {
		return model.HedgedPair{}, nil, exchange.Vendorf("",
			"insufficient spot inventory on %s: balance=%v", s.params.PrimaryVenue, balance)
	}

	maxQty := qty
	if balance < maxQty {
		maxQty = balance
	}
	tradeQty := s.clampCross(maxQty)
	if tradeQty <= 0 {
		return model.HedgedPair{}, nil, exchange.Vendorf("",
			"quantity too small after inventory clamp")
	}

	spotAck, err := s.spot.SellSpot(ctx, s.params.PrimarySymbol, tradeQty)
	if err != nil {
		return model.HedgedPair{}, nil, err
	}
	hedgeAck, err := s.hedge.BuyFutures(ctx, s.params.HedgeSymbol, tradeQty, false)
	if err != nil {
		s.recordPendingHedge(spotAck, err)
		return model.HedgedPair{}, nil, err
	}

	actions, _ := json.Marshal(map[string]model.OrderAck{"spot": spotAck, "hedge": hedgeAck})
	pair := model.HedgedPair{SpotOrderQty: tradeQty, FutOrderQty: tradeQty, SpotNetQtyEst: tradeQty}
	return pair, actions, nil
}

func (s *Cross) closeCarry(ctx context.Context, qty float64) (json.RawMessage, error) {
	log.Info().Float64("qty", qty).Msg("closing cross carry (reduce only)")

	if s.params.DryRun {
		log.Info().Msgf("DRY RUN: would BUY futures %v %s (reduce only) and SELL spot %v %s",
			qty, s.params.HedgeSymbol, qty, s.params.PrimarySymbol)
		return nil, ErrDryRun
	}

	tradeQty := s.clampCross(qty)
	if tradeQty <= 0 {
		return nil, exchange.Vendorf("", "quantity too small after clamping")
	}

	hedgeAck, err := s.hedge.BuyFutures(ctx, s.params.HedgeSymbol, tradeQty, true)
	if err != nil {
		return nil, err
	}
	spotAck, err := s.spot.SellSpot(ctx, s.params.PrimarySymbol, tradeQty)
	if err != nil {
		return nil, err
	}

	actions, _ := json.Marshal(map[string]model.OrderAck{"hedge": hedgeAck, "spot": spotAck})
	return actions, nil
}

func (s *Cross) closeReverse(ctx context.Context, qty float64) (json.RawMessage, error) {
	log.Info().Float64("qty", qty).Msg("closing cross reverse (reduce only)")

	if s.params.DryRun {
		log.Info().Msgf("DRY RUN: would SELL futures %v %s (reduce only), BUY spot %v %s",
			qty, s.params.HedgeSymbol, qty, s.params.PrimarySymbol)
		return nil, ErrDryRun
	}

	tradeQty := s.clampCross(qty)
	if tradeQty <= 0 {
		return nil, exchange.Vendorf("", "quantity too small after clamping")
	}

	hedgeAck, err := s.hedge.SellFutures(ctx, s.params.HedgeSymbol, tradeQty, true)
	if err != nil {
		return nil, err
	}
	spotAck, err := s.spot.BuySpot(ctx, s.params.PrimarySymbol, tradeQty)
	if err != nil {
		return nil, err
	}

	actions, _ := json.Marshal(map[string]model.OrderAck{"hedge": hedgeAck, "spot": spotAck})
	return actions, nil
}

func (s *Cross) recordPendingHedge(survivor model.OrderAck, cause error) {
	log.Error().Err(cause).
		Str("primary", s.params.PrimarySymbol).
		Interface("surviving_leg", survivor).
		Msg("hedge leg failed after primary leg filled; position is unhedged")

	key := s.params.Key()
	state, err := s.store.Load(key)
	if err != nil {
		state = NewPositionState(key)
	}
	actions, _ := json.Marshal(map[string]any{
		"pending_hedge": survivor,
		"error":         cause.Error(),
	})
	state.LastActions = actions
	state.UpdatedAt = time.Now().UTC()
	if err := s.store.Save(state); err != nil {
		log.Error().Err(err).Msg("failed to persist pending hedge")
	}
}
