package strategy

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quantfold/basisarb/internal/exchange"
	"github.com/quantfold/basisarb/internal/model"
	"github.com/quantfold/basisarb/internal/record"
	"github.com/quantfold/basisarb/internal/trader"
)

// listenerSettleDelay gives the WebSocket listeners a moment to populate the
// price feed before the first tick.
const listenerSettleDelay = 2 * time.Second

// IntraTrader is the single-venue trader surface the intra strategy drives:
// both legs, the hedge sizer, fee lookup and price-feed staleness.
type IntraTrader interface {
	trader.SpotTrader
	trader.FuturesTrader
	FindHedgedPair(symbol string, targetNetQty, spotFeeRate float64) (model.HedgedPair, bool)
	TradeFee(ctx context.Context, symbol string) (model.FeeInfo, error)
	StartListeners(ctx context.Context, symbol string)
	PriceAge(symbol string) (time.Duration, bool)
}

// Intra runs the intra-venue basis arbitrage state machine for one symbol.
type Intra struct {
	t      IntraTrader
	params Params
	store  *StateStore
	repo   *record.Repository
	venue  model.Venue
}

func NewIntra(t IntraTrader, venue model.Venue, params Params, store *StateStore, repo *record.Repository) *Intra {
	return &Intra{t: t, params: params, store: store, repo: repo, venue: venue}
}

// Run performs the pre-flight sequence and then ticks until ctx is done.
// Transition failures are logged and retried on later ticks; only price-read
// failures and state-store write failures after a fill are tolerated too.
func (s *Intra) Run(ctx context.Context) error {
	if err := s.params.Validate(); err != nil {
		return err
	}

	log.Info().Msg("loading exchange info")
	if err := s.t.EnsureExchangeInfo(ctx); err != nil {
		return err
	}
	if err := s.t.EnsureAccountSetup(ctx, s.params.Symbol, s.params.Leverage, s.params.Isolated); err != nil {
		return err
	}

	s.t.StartListeners(ctx, s.params.Symbol)
	time.Sleep(listenerSettleDelay)

	state, err := s.store.Load(s.params.Symbol)
	if err != nil {
		return err
	}
	if state.Key != s.params.Symbol {
		state = NewPositionState(s.params.Symbol)
	}

	log.Info().
		Str("symbol", s.params.Symbol).
		Str("mode", string(s.params.Mode)).
		Float64("entry_bps", s.params.EntryBps).
		Float64("exit_bps", s.params.ExitBps).
		Float64("notional", s.params.Notional).
		Bool("open", state.Open).
		Str("direction", string(state.Direction)).
		Msg("starting basis arbitrage strategy")

	ticker := time.NewTicker(s.params.TickInterval)
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

// step evaluates one tick of the state machine.
func (s *Intra) step(ctx context.Context, state *PositionState) {
	if age, ok := s.t.PriceAge(s.params.Symbol); ok && s.params.StalenessBudget > 0 && age > s.params.StalenessBudget {
		log.Debug().Dur("age", age).Msg("price feed stale, skipping tick")
		return
	}

	spotPrice, err := s.t.SpotPrice(ctx, s.params.Symbol)
	if err != nil {
		log.Warn().Err(err).Msg("failed to get spot price")
		return
	}
	markPrice, err := s.t.MarkPrice(ctx, s.params.Symbol)
	if err != nil {
		log.Warn().Err(err).Msg("failed to get mark price")
		return
	}

	basisBps := ComputeBasisBps(spotPrice, markPrice)
	log.Debug().
		Float64("spot", spotPrice).
		Float64("mark", markPrice).
		Float64("basis_bps", basisBps).
		Msg("tick")

	if state.Open {
		s.maybeClose(ctx, state, basisBps)
		return
	}
	s.maybeOpen(ctx, state, spotPrice, basisBps)
}

func (s *Intra) maybeClose(ctx context.Context, state *PositionState, basisBps float64) {
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

	log.Info().Float64("basis_bps", basisBps).Msg("exit condition met, closing position")

	var (
		actions json.RawMessage
		err     error
	)
	if state.Direction == DirectionCarry {
		actions, err = s.closeCarry(ctx, state.Pair)
	} else {
		actions, err = s.closeReverse(ctx, state.Pair)
	}
	if err != nil {
		// A transient close failure leaves the position open; the next tick
		// retries while the exit guard still holds.
		log.Warn().Err(err).Msg("failed to close position")
		return
	}

	if s.repo != nil {
		if err := s.repo.ClosePosition(state.Key, basisBps, time.Now().UTC()); err != nil {
			log.Warn().Err(err).Msg("failed to record position close")
		}
	}

	state.MarkClosed(basisBps, actions)
	if err := s.store.Save(*state); err != nil {
		log.Error().Err(err).Msg("state write failed after close")
	}
	log.Info().Msg("position closed")
}

func (s *Intra) maybeOpen(ctx context.Context, state *PositionState, spotPrice, basisBps float64) {
	openCarry := (s.params.Mode == ModeCarry || s.params.Mode == ModeAuto) && basisBps > s.params.EntryBps
	openReverse := (s.params.Mode == ModeReverse || s.params.Mode == ModeAuto) && basisBps < -s.params.EntryBps
	if !openCarry && !openReverse {
		return
	}

	dir := DirectionCarry
	if openReverse {
		dir = DirectionReverse
	}
	log.Info().Str("direction", string(dir)).Float64("basis_bps", basisBps).
		Msg("entry condition met, opening position")

	pair, actions, err := s.open(ctx, dir, spotPrice)
	if err != nil {
		log.Warn().Err(err).Str("direction", string(dir)).Msg("failed to open position")
		return
	}

	if s.repo != nil {
		if _, err := s.repo.InsertPosition(record.PositionRecord{
			Key:          state.Key,
			Direction:    string(dir),
			SpotQty:      pair.SpotOrderQty,
			FutQty:       pair.FutOrderQty,
			OpenBasisBps: basisBps,
			OpenedAt:     time.Now().UTC(),
		}); err != nil {
			log.Warn().Err(err).Msg("failed to record position open")
		}
	}

	state.MarkOpen(dir, pair, basisBps, actions)
	if err := s.store.Save(*state); err != nil {
		// The venue holds the position even if the write failed.
		log.Error().Err(err).Msg("state write failed after open")
	}
	log.Info().Str("direction", string(dir)).Msg("position opened")
}

// sizePair derives the hedged pair for the configured notional at the
// current spot price. The fee fed into the sizer follows the execution
// policy: taker for market legs, maker for resting spot legs.
func (s *Intra) sizePair(ctx context.Context, spotPrice float64, maxSpotQty float64) (model.HedgedPair, error) {
	if spotPrice <= 0 {
		return model.HedgedPair{}, exchange.Vendorf(s.venue, "invalid spot price %v", spotPrice)
	}
	target := s.params.Notional / spotPrice
	target = s.t.ClampSpotQty(s.params.Symbol, target)
	if maxSpotQty > 0 && target > maxSpotQty {
		target = maxSpotQty
	}
	if target <= 0 {
		return model.HedgedPair{}, exchange.Vendorf(s.venue,
			"quantity too small after clamping, increase notional (notional=%v, price=%v)",
			s.params.Notional, spotPrice)
	}

	fee, err := s.t.TradeFee(ctx, s.params.Symbol)
	if err != nil {
		log.Warn().Err(err).Msg("trade fee lookup failed, using default schedule")
		fee = model.FeeInfo{MakerBps: 10, TakerBps: 10}
	}
	feeRate := fee.TakerRate()
	if s.params.Policy.UsesMakerSpot() {
		feeRate = fee.MakerRate()
	}

	pair, ok := s.t.FindHedgedPair(s.params.Symbol, target, feeRate)
	if !ok {
		return model.HedgedPair{}, exchange.Vendorf(s.venue,
			"no hedged pair within tolerance for target %v", target)
	}
	return pair, nil
}

func (s *Intra) open(ctx context.Context, dir Direction, spotPrice float64) (model.HedgedPair, json.RawMessage, error) {
	if dir == DirectionCarry {
		return s.openCarry(ctx, spotPrice)
	}
	return s.openReverse(ctx, spotPrice)
}

// openCarry buys spot then shorts futures. The spot fill is not reversed if
// the futures leg fails; the surviving leg is persisted for the operator.
func (s *Intra) openCarry(ctx context.Context, spotPrice float64) (model.HedgedPair, json.RawMessage, error) {
	pair, err := s.sizePair(ctx, spotPrice, 0)
	if err != nil {
		return model.HedgedPair{}, nil, err
	}

	log.Info().
		Float64("spot_qty", pair.SpotOrderQty).
		Float64("fut_qty", pair.FutOrderQty).
		Str("symbol", s.params.Symbol).
		Msg("opening carry: spot BUY, futures SELL")

	if s.params.DryRun {
		log.Info().Msgf("DRY RUN: spot BUY %v %s", pair.SpotOrderQty, s.params.Symbol)
		log.Info().Msgf("DRY RUN: futures SELL %v %s", pair.FutOrderQty, s.params.Symbol)
		return model.HedgedPair{}, nil, ErrDryRun
	}

	spotAck, err := s.t.BuySpot(ctx, s.params.Symbol, pair.SpotOrderQty)
	if err != nil {
		return model.HedgedPair{}, nil, err
	}
	futAck, err := s.t.SellFutures(ctx, s.params.Symbol, pair.FutOrderQty, false)
	if err != nil {
		s.recordPendingHedge(spotAck, err)
		return model.HedgedPair{}, nil, err
	}
	s.recordTrades(spotPrice,
		legFill{model.MarketSpot, "BUY", pair.SpotOrderQty},
		legFill{model.MarketFutures, "SELL", pair.FutOrderQty})

	actions, _ := json.Marshal(map[string]model.OrderAck{"spot": spotAck, "futures": futAck})
	return pair, actions, nil
}

// openReverse sells held spot inventory then longs futures. Spot is never
// shorted; the position is capped by the available base balance.
func (s *Intra) openReverse(ctx context.Context, spotPrice float64) (model.HedgedPair, json.RawMessage, error) {
	base := model.BaseAsset(s.params.Symbol)
	free, err := s.t.SpotBalance(ctx, base)
	if err != nil {
		return model.HedgedPair{}, nil, err
	}
	if free <= 0 {
		return model.HedgedPair{}, nil, exchange.Vendorf(s.venue,
			"insufficient spot inventory to sell: free=%v", free)
	}

	pair, err := s.sizePair(ctx, spotPrice, free)
	if err != nil {
		return model.HedgedPair{}, nil, err
	}
	if pair.SpotOrderQty > free {
		return model.HedgedPair{}, nil, exchange.Vendorf(s.venue,
			"insufficient spot inventory to sell: free=%v, required=%v", free, pair.SpotOrderQty)
	}

	log.Info().
		Float64("spot_qty", pair.SpotOrderQty).
		Float64("fut_qty", pair.FutOrderQty).
		Str("symbol", s.params.Symbol).
		Msg("opening reverse: spot SELL, futures BUY")

	if s.params.DryRun {
		log.Info().Msgf("DRY RUN: spot SELL %v %s", pair.SpotOrderQty, s.params.Symbol)
		log.Info().Msgf("DRY RUN: futures BUY %v %s", pair.FutOrderQty, s.params.Symbol)
		return model.HedgedPair{}, nil, ErrDryRun
	}

	spotAck, err := s.t.SellSpot(ctx, s.params.Symbol, pair.SpotOrderQty)
	if err != nil {
		return model.HedgedPair{}, nil, err
	}
	futAck, err := s.t.BuyFutures(ctx, s.params.Symbol, pair.FutOrderQty, false)
	if err != nil {
		s.recordPendingHedge(spotAck, err)
		return model.HedgedPair{}, nil, err
	}
	s.recordTrades(spotPrice,
		legFill{model.MarketSpot, "SELL", pair.SpotOrderQty},
		legFill{model.MarketFutures, "BUY", pair.FutOrderQty})

	actions, _ := json.Marshal(map[string]model.OrderAck{"spot": spotAck, "futures": futAck})
	return pair, actions, nil
}

// closeCarry buys back the futures short reduce-only, then sells the spot
// net quantity actually received at open.
func (s *Intra) closeCarry(ctx context.Context, pair model.HedgedPair) (json.RawMessage, error) {
	if s.params.DryRun {
		log.Info().Msgf("DRY RUN: futures BUY %v %s (reduce only)", pair.FutOrderQty, s.params.Symbol)
		log.Info().Msgf("DRY RUN: spot SELL %v %s", pair.SpotNetQtyEst, s.params.Symbol)
		return nil, ErrDryRun
	}

	futAck, err := s.t.BuyFutures(ctx, s.params.Symbol, pair.FutOrderQty, true)
	if err != nil {
		return nil, err
	}

	spotQty := s.t.ClampSpotQty(s.params.Symbol, pair.SpotNetQtyEst)
	spotAck, err := s.t.SellSpot(ctx, s.params.Symbol, spotQty)
	if err != nil {
		return nil, err
	}
	s.recordTrades(0,
		legFill{model.MarketFutures, "BUY", pair.FutOrderQty},
		legFill{model.MarketSpot, "SELL", spotQty})

	actions, _ := json.Marshal(map[string]model.OrderAck{"futures": futAck, "spot": spotAck})
	return actions, nil
}

// closeReverse sells the futures long reduce-only, then buys the spot back.
func (s *Intra) closeReverse(ctx context.Context, pair model.HedgedPair) (json.RawMessage, error) {
	if s.params.DryRun {
		log.Info().Msgf("DRY RUN: futures SELL %v %s (reduce only)", pair.FutOrderQty, s.params.Symbol)
		log.Info().Msgf("DRY RUN: spot BUY %v %s", pair.SpotNetQtyEst, s.params.Symbol)
		return nil, ErrDryRun
	}

	futAck, err := s.t.SellFutures(ctx, s.params.Symbol, pair.FutOrderQty, true)
	if err != nil {
		return nil, err
	}

	spotQty := s.t.ClampSpotQty(s.params.Symbol, pair.SpotNetQtyEst)
	spotAck, err := s.t.BuySpot(ctx, s.params.Symbol, spotQty)
	if err != nil {
		return nil, err
	}
	s.recordTrades(0,
		legFill{model.MarketFutures, "SELL", pair.FutOrderQty},
		legFill{model.MarketSpot, "BUY", spotQty})

	actions, _ := json.Marshal(map[string]model.OrderAck{"futures": futAck, "spot": spotAck})
	return actions, nil
}

// recordPendingHedge persists the surviving first leg when the second leg
// failed so the operator (or the emergency command) can resolve the naked
// exposure. No automatic rollback is attempted.
func (s *Intra) recordPendingHedge(survivor model.OrderAck, cause error) {
	log.Error().Err(cause).
		Str("symbol", s.params.Symbol).
		Interface("surviving_leg", survivor).
		Msg("second leg failed after first leg filled; position is unhedged")

	state, err := s.store.Load(s.params.Symbol)
	if err != nil {
		state = NewPositionState(s.params.Symbol)
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

type legFill struct {
	market model.MarketType
	side   string
	qty    float64
}

func (s *Intra) recordTrades(price float64, fills ...legFill) {
	if s.repo == nil {
		return
	}
	now := time.Now().UTC()
	for _, f := range fills {
		t := record.TradeRecord{
			Venue:      string(s.venue),
			Symbol:     s.params.Symbol,
			Market:     string(f.market),
			Side:       f.side,
			OrderType:  "MARKET",
			Qty:        f.qty,
			Price:      price,
			ExecutedAt: now,
		}
		if err := s.repo.InsertTrade(t); err != nil {
			log.Warn().Err(err).Msg("failed to record trade")
		}
	}
}
