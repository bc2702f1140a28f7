package strategy

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/basisarb/internal/model"
)

type placedOrder struct {
	market     string
	side       string
	qty        float64
	reduceOnly bool
}

// stubTrader drives the state machine with scripted prices and filters.
type stubTrader struct {
	spotPrice float64
	markPrice float64

	spotFilter model.LotSizeFilter
	futFilter  model.LotSizeFilter

	balance map[string]float64
	fee     model.FeeInfo

	orders  []placedOrder
	failFut bool
}

func newStubTrader(spot, mark float64) *stubTrader {
	return &stubTrader{
		spotPrice:  spot,
		markPrice:  mark,
		spotFilter: model.LotSizeFilter{MinQty: 0, MaxQty: 9000, StepSize: 0.001},
		futFilter:  model.LotSizeFilter{MinQty: 0, MaxQty: 9000, StepSize: 0.001},
		balance:    map[string]float64{},
		fee:        model.FeeInfo{MakerBps: 10, TakerBps: 10},
	}
}

func (s *stubTrader) EnsureExchangeInfo(context.Context) error { return nil }
func (s *stubTrader) EnsureAccountSetup(context.Context, string, int, bool) error {
	return nil
}
func (s *stubTrader) StartListeners(context.Context, string) {}
func (s *stubTrader) PriceAge(string) (time.Duration, bool)  { return 0, false }

func (s *stubTrader) SpotPrice(context.Context, string) (float64, error) { return s.spotPrice, nil }
func (s *stubTrader) MarkPrice(context.Context, string) (float64, error) { return s.markPrice, nil }

func (s *stubTrader) ClampSpotQty(_ string, qty float64) float64 {
	return s.spotFilter.Clamp(qty)
}
func (s *stubTrader) ClampFuturesQty(_ string, qty float64) float64 {
	return s.futFilter.Clamp(qty)
}

func (s *stubTrader) TradeFee(context.Context, string) (model.FeeInfo, error) { return s.fee, nil }

func (s *stubTrader) SpotBalance(_ context.Context, asset string) (float64, error) {
	return s.balance[asset], nil
}

func (s *stubTrader) FindHedgedPair(_ string, targetNetQty, feeRate float64) (model.HedgedPair, bool) {
	fut := s.futFilter.Clamp(targetNetQty)
	if fut <= 0 {
		return model.HedgedPair{}, false
	}
	spot := s.spotFilter.Clamp(fut / (1 - feeRate))
	if spot <= 0 {
		return model.HedgedPair{}, false
	}
	net := spot * (1 - feeRate)
	return model.HedgedPair{
		SpotOrderQty:  spot,
		FutOrderQty:   fut,
		SpotNetQtyEst: net,
		DeltaEst:      net - fut,
	}, true
}

func (s *stubTrader) BuySpot(_ context.Context, symbol string, qty float64) (model.OrderAck, error) {
	s.orders = append(s.orders, placedOrder{market: "spot", side: "BUY", qty: qty})
	return model.OrderAck{Symbol: symbol, OrderID: int64(len(s.orders)), Status: "FILLED"}, nil
}

func (s *stubTrader) SellSpot(_ context.Context, symbol string, qty float64) (model.OrderAck, error) {
	s.orders = append(s.orders, placedOrder{market: "spot", side: "SELL", qty: qty})
	return model.OrderAck{Symbol: symbol, OrderID: int64(len(s.orders)), Status: "FILLED"}, nil
}

func (s *stubTrader) BuyFutures(_ context.Context, symbol string, qty float64, reduceOnly bool) (model.OrderAck, error) {
	if s.failFut {
		return model.OrderAck{}, assert.AnError
	}
	s.orders = append(s.orders, placedOrder{market: "futures", side: "BUY", qty: qty, reduceOnly: reduceOnly})
	return model.OrderAck{Symbol: symbol, OrderID: int64(len(s.orders)), Status: "FILLED"}, nil
}

func (s *stubTrader) SellFutures(_ context.Context, symbol string, qty float64, reduceOnly bool) (model.OrderAck, error) {
	if s.failFut {
		return model.OrderAck{}, assert.AnError
	}
	s.orders = append(s.orders, placedOrder{market: "futures", side: "SELL", qty: qty, reduceOnly: reduceOnly})
	return model.OrderAck{Symbol: symbol, OrderID: int64(len(s.orders)), Status: "FILLED"}, nil
}

func testParams(mode Mode) Params {
	p := DefaultParams()
	p.Mode = mode
	p.StalenessBudget = 0
	return p
}

func newTestIntra(t *testing.T, st *stubTrader, params Params) (*Intra, *PositionState) {
	t.Helper()
	store := NewStateStore(filepath.Join(t.TempDir(), "arb_state.json"))
	state := NewPositionState(params.Symbol)
	return NewIntra(st, model.VenueBinance, params, store, nil), &state
}

func TestCarryEntryExitCycle(t *testing.T) {
	// basis = (100025 - 100000) / 100000 * 10000 = 2.5 bps > entry 2.0
	st := newStubTrader(100000, 100025)
	s, state := newTestIntra(t, st, testParams(ModeCarry))

	s.step(context.Background(), state)

	require.True(t, state.Open)
	assert.Equal(t, DirectionCarry, state.Direction)
	assert.InDelta(t, 0.001, state.Pair.SpotOrderQty, 1e-12)
	assert.InDelta(t, 0.001, state.Pair.FutOrderQty, 1e-12)
	require.NotNil(t, state.LastOpenBasisBps)
	assert.InDelta(t, 2.5, *state.LastOpenBasisBps, 1e-9)

	require.Len(t, st.orders, 2)
	assert.Equal(t, placedOrder{market: "spot", side: "BUY", qty: 0.001}, st.orders[0])
	assert.Equal(t, "futures", st.orders[1].market)
	assert.Equal(t, "SELL", st.orders[1].side)
	assert.False(t, st.orders[1].reduceOnly)

	// basis narrows to 0.1 bps <= exit 0.2: close.
	st.markPrice = 100001
	s.step(context.Background(), state)

	assert.False(t, state.Open)
	assert.Equal(t, DirectionNone, state.Direction)
	assert.True(t, state.Pair.IsZero())
	require.NotNil(t, state.LastCloseBasisBps)
	assert.InDelta(t, 0.1, *state.LastCloseBasisBps, 1e-9)

	// Close ordering: futures reduce-only first, then spot.
	require.Len(t, st.orders, 4)
	assert.Equal(t, "futures", st.orders[2].market)
	assert.Equal(t, "BUY", st.orders[2].side)
	assert.True(t, st.orders[2].reduceOnly)
	assert.InDelta(t, 0.001, st.orders[2].qty, 1e-12)
	assert.Equal(t, "spot", st.orders[3].market)
	assert.Equal(t, "SELL", st.orders[3].side)
}

func TestReverseRefusedWithoutInventory(t *testing.T) {
	// basis = -5 bps < -entry
	st := newStubTrader(100000, 99950)
	s, state := newTestIntra(t, st, testParams(ModeReverse))

	s.step(context.Background(), state)

	assert.False(t, state.Open)
	assert.Empty(t, st.orders, "no orders may be sent without inventory")
}

func TestReverseUsesInventory(t *testing.T) {
	st := newStubTrader(100000, 99950)
	st.balance["BTC"] = 1
	s, state := newTestIntra(t, st, testParams(ModeReverse))

	s.step(context.Background(), state)

	require.True(t, state.Open)
	assert.Equal(t, DirectionReverse, state.Direction)
	require.Len(t, st.orders, 2)
	assert.Equal(t, "SELL", st.orders[0].side)
	assert.Equal(t, "spot", st.orders[0].market)
	assert.Equal(t, "BUY", st.orders[1].side)
	assert.Equal(t, "futures", st.orders[1].market)
}

func TestNotionalTooSmallRefusesOpen(t *testing.T) {
	st := newStubTrader(100000, 100025)
	st.spotFilter.MinQty = 0.001
	st.futFilter.MinQty = 0.001
	params := testParams(ModeCarry)
	params.Notional = 0.1 // raw qty 1e-6 clamps to zero
	s, state := newTestIntra(t, st, params)

	s.step(context.Background(), state)

	assert.False(t, state.Open)
	assert.Empty(t, st.orders)
}

func TestDryRunLeavesStateUntouched(t *testing.T) {
	st := newStubTrader(100000, 100025)
	params := testParams(ModeCarry)
	params.DryRun = true
	s, state := newTestIntra(t, st, params)

	s.step(context.Background(), state)

	assert.False(t, state.Open)
	assert.Empty(t, st.orders)
}

func TestSecondLegFailureLeavesClosedWithPendingHedge(t *testing.T) {
	st := newStubTrader(100000, 100025)
	st.failFut = true
	s, state := newTestIntra(t, st, testParams(ModeCarry))

	s.step(context.Background(), state)

	// The spot leg filled but the hedge did not: the machine does not commit
	// the open, and the surviving leg is persisted for the operator.
	assert.False(t, state.Open)
	require.Len(t, st.orders, 1)
	assert.Equal(t, "spot", st.orders[0].market)

	persisted, err := s.store.Load(s.params.Symbol)
	require.NoError(t, err)
	assert.Contains(t, string(persisted.LastActions), "pending_hedge")
}

func TestNoEntryInsideBand(t *testing.T) {
	// 1 bps premium: inside the entry threshold both ways.
	st := newStubTrader(100000, 100010)
	s, state := newTestIntra(t, st, testParams(ModeAuto))

	s.step(context.Background(), state)

	assert.False(t, state.Open)
	assert.Empty(t, st.orders)
}

func TestCarryCloseWaitsForExit(t *testing.T) {
	st := newStubTrader(100000, 100025)
	s, state := newTestIntra(t, st, testParams(ModeCarry))

	s.step(context.Background(), state)
	require.True(t, state.Open)

	// Still above exit: hold.
	st.markPrice = 100010
	s.step(context.Background(), state)
	assert.True(t, state.Open)
	assert.Len(t, st.orders, 2)
}
