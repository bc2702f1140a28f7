package strategy

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/basisarb/internal/model"
)

type stubSpotLeg struct {
	price   float64
	filter  model.LotSizeFilter
	balance map[string]float64
	orders  []placedOrder
}

func (s *stubSpotLeg) EnsureExchangeInfo(context.Context) error { return nil }
func (s *stubSpotLeg) SpotPrice(context.Context, string) (float64, error) {
	return s.price, nil
}
func (s *stubSpotLeg) ClampSpotQty(_ string, qty float64) float64 { return s.filter.Clamp(qty) }
func (s *stubSpotLeg) SpotBalance(_ context.Context, asset string) (float64, error) {
	return s.balance[asset], nil
}
func (s *stubSpotLeg) BuySpot(_ context.Context, symbol string, qty float64) (model.OrderAck, error) {
	s.orders = append(s.orders, placedOrder{market: "spot", side: "BUY", qty: qty})
	return model.OrderAck{Symbol: symbol, Status: "FILLED"}, nil
}
func (s *stubSpotLeg) SellSpot(_ context.Context, symbol string, qty float64) (model.OrderAck, error) {
	s.orders = append(s.orders, placedOrder{market: "spot", side: "SELL", qty: qty})
	return model.OrderAck{Symbol: symbol, Status: "FILLED"}, nil
}

type stubHedgeLeg struct {
	mark   float64
	filter model.LotSizeFilter
	orders []placedOrder
}

func (s *stubHedgeLeg) EnsureExchangeInfo(context.Context) error { return nil }
func (s *stubHedgeLeg) EnsureAccountSetup(context.Context, string, int, bool) error {
	return nil
}
func (s *stubHedgeLeg) MarkPrice(context.Context, string) (float64, error) { return s.mark, nil }
func (s *stubHedgeLeg) ClampFuturesQty(_ string, qty float64) float64      { return s.filter.Clamp(qty) }
func (s *stubHedgeLeg) BuyFutures(_ context.Context, symbol string, qty float64, reduceOnly bool) (model.OrderAck, error) {
	s.orders = append(s.orders, placedOrder{market: "futures", side: "BUY", qty: qty, reduceOnly: reduceOnly})
	return model.OrderAck{Symbol: symbol, Status: "FILLED"}, nil
}
func (s *stubHedgeLeg) SellFutures(_ context.Context, symbol string, qty float64, reduceOnly bool) (model.OrderAck, error) {
	s.orders = append(s.orders, placedOrder{market: "futures", side: "SELL", qty: qty, reduceOnly: reduceOnly})
	return model.OrderAck{Symbol: symbol, Status: "FILLED"}, nil
}

func testCrossParams(mode Mode) CrossParams {
	return CrossParams{
		PrimaryVenue: "bithumb", PrimarySymbol: "BTCKRW",
		PrimaryNotional: 130000000, PrimaryBaseAsset: "BTC",
		HedgeVenue: "binance", HedgeSymbol: "BTCUSDT",
		HedgeNotional: 100000,
		FxAdjustment:  1.0 / 1300,
		Mode:          mode, EntryBps: 2.0, ExitBps: 0.2,
		Leverage: 1,
	}
}

func newTestCross(t *testing.T, spot *stubSpotLeg, hedge *stubHedgeLeg, params CrossParams) (*Cross, *PositionState) {
	t.Helper()
	store := NewStateStore(filepath.Join(t.TempDir(), "arb_state.json"))
	state := NewPositionState(params.Key())
	return NewCross(spot, hedge, params, store), &state
}

func TestCrossCarryCycle(t *testing.T) {
	filter := model.LotSizeFilter{MinQty: 0, MaxQty: 9000, StepSize: 0.001}
	// Primary 130,000,000 KRW -> 100,000 USDT equivalent; hedge mark at a
	// 5 bps premium.
	spot := &stubSpotLeg{price: 130000000, filter: filter, balance: map[string]float64{}}
	hedge := &stubHedgeLeg{mark: 100050, filter: filter}
	s, state := newTestCross(t, spot, hedge, testCrossParams(ModeCarry))

	s.step(context.Background(), state)

	require.True(t, state.Open)
	assert.Equal(t, DirectionCarry, state.Direction)
	require.Len(t, spot.orders, 1)
	require.Len(t, hedge.orders, 1)
	assert.Equal(t, "BUY", spot.orders[0].side)
	assert.Equal(t, "SELL", hedge.orders[0].side)
	assert.False(t, hedge.orders[0].reduceOnly)
	// Common quantity is min of the two notional-derived sizes, lot-aligned.
	assert.InDelta(t, 0.999, hedge.orders[0].qty, 1e-9)

	// Premium collapses: close.
	hedge.mark = 100001
	s.step(context.Background(), state)

	assert.False(t, state.Open)
	require.Len(t, hedge.orders, 2)
	assert.Equal(t, "BUY", hedge.orders[1].side)
	assert.True(t, hedge.orders[1].reduceOnly)
	require.Len(t, spot.orders, 2)
	assert.Equal(t, "SELL", spot.orders[1].side)
}

func TestCrossReverseNeedsInventory(t *testing.T) {
	filter := model.LotSizeFilter{MinQty: 0, MaxQty: 9000, StepSize: 0.001}
	spot := &stubSpotLeg{price: 130000000, filter: filter, balance: map[string]float64{}}
	hedge := &stubHedgeLeg{mark: 99900, filter: filter} // deep discount
	s, state := newTestCross(t, spot, hedge, testCrossParams(ModeReverse))

	s.step(context.Background(), state)

	assert.False(t, state.Open)
	assert.Empty(t, spot.orders)
	assert.Empty(t, hedge.orders)
}

func TestCrossDryRun(t *testing.T) {
	filter := model.LotSizeFilter{MinQty: 0, MaxQty: 9000, StepSize: 0.001}
	spot := &stubSpotLeg{price: 130000000, filter: filter, balance: map[string]float64{}}
	hedge := &stubHedgeLeg{mark: 100050, filter: filter}
	params := testCrossParams(ModeCarry)
	params.DryRun = true
	s, state := newTestCross(t, spot, hedge, params)

	s.step(context.Background(), state)

	assert.False(t, state.Open)
	assert.Empty(t, spot.orders)
	assert.Empty(t, hedge.orders)
}

func TestCrossBasisUsesFxAdjustment(t *testing.T) {
	// 130,000,000 KRW * (1/1300) = 100,000; mark 100,050 -> +5 bps.
	got := CrossBasisBps(130000000, 100050, 1.0/1300)
	assert.InDelta(t, 5.0, got, 1e-9)
}
