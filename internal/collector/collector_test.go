package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/basisarb/internal/exchange"
	"github.com/quantfold/basisarb/internal/model"
)

type fakePerpLister struct {
	venue model.Venue
	snaps []model.PerpSnapshot
	err   error
}

func (f fakePerpLister) Venue() model.Venue { return f.venue }
func (f fakePerpLister) ListPerps(context.Context) ([]model.PerpSnapshot, error) {
	return f.snaps, f.err
}

type fakeSpotLister struct {
	venue model.Venue
	snaps []model.SpotSnapshot
	err   error
}

func (f fakeSpotLister) Venue() model.Venue { return f.venue }
func (f fakeSpotLister) ListSpots(context.Context) ([]model.SpotSnapshot, error) {
	return f.snaps, f.err
}

func perp(venue model.Venue, symbol string, oi float64, at time.Time) model.PerpSnapshot {
	return model.PerpSnapshot{
		Venue: venue, Symbol: symbol, Quote: model.CurrencyUSDT,
		MarkPrice: 100, OpenInterestQuote: oi, ObservedAt: at,
	}
}

func spot(venue model.Venue, symbol string, vol float64, at time.Time) model.SpotSnapshot {
	return model.SpotSnapshot{
		Venue: venue, Symbol: symbol, Quote: model.CurrencyUSDT,
		Price: 99, Volume24hQuote: vol, ObservedAt: at,
	}
}

func TestMergeBothLegs(t *testing.T) {
	early := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	late := early.Add(3 * time.Second)
	rates := model.ExchangeRates{USDKRW: 1300, USDTUSD: 1, USDTKRW: 1300, ObservedAt: late}

	unified := Merge(
		[]model.PerpSnapshot{perp(model.VenueBinance, "BTCUSDT", 5e9, early)},
		[]model.SpotSnapshot{spot(model.VenueBinance, "BTCUSDT", 1e9, late)},
		rates,
	)

	require.Len(t, unified, 1)
	u := unified[0]
	require.NotNil(t, u.Perp)
	require.NotNil(t, u.Spot)
	// Timestamp follows the fresher leg; quote follows the perp leg.
	assert.Equal(t, late, u.ObservedAt)
	assert.Equal(t, model.CurrencyUSDT, u.Quote)
	assert.Equal(t, rates, u.FxRates)
}

func TestMergeSingleLeg(t *testing.T) {
	at := time.Now().UTC()
	unified := Merge(
		[]model.PerpSnapshot{perp(model.VenueBybit, "ETHUSDT", 1e8, at)},
		[]model.SpotSnapshot{spot(model.VenueBithumb, "ETHKRW", 1e7, at)},
		model.ExchangeRates{},
	)

	require.Len(t, unified, 2)
	for _, u := range unified {
		hasPerp := u.Perp != nil
		hasSpot := u.Spot != nil
		assert.True(t, hasPerp || hasSpot)
		assert.False(t, hasPerp && hasSpot, "legs from different venues must not merge")
	}
}

type staticRates struct{ rates model.ExchangeRates }

func (s staticRates) FetchAll(context.Context) model.ExchangeRates { return s.rates }

func TestCollectOnceSkipsFailingVenue(t *testing.T) {
	at := time.Now().UTC()
	store := NewStore()

	perps := []exchange.PerpLister{
		fakePerpLister{venue: model.VenueBinance, snaps: []model.PerpSnapshot{perp(model.VenueBinance, "BTCUSDT", 100, at)}},
		fakePerpLister{venue: model.VenueOKX, err: errors.New("connection reset")},
		fakePerpLister{venue: model.VenueBybit, snaps: []model.PerpSnapshot{perp(model.VenueBybit, "BTCUSDT", 900, at)}},
	}
	spots := []exchange.SpotLister{
		fakeSpotLister{venue: model.VenueBinance, snaps: []model.SpotSnapshot{spot(model.VenueBinance, "BTCUSDT", 50, at)}},
	}

	c := New(perps, spots, staticRates{}, store, time.Second)
	c.CollectOnce(context.Background())

	got := store.Perps()
	require.Len(t, got, 2, "the failing venue is skipped, not fatal")

	// Sorted by open interest descending.
	assert.Equal(t, model.VenueBybit, got[0].Venue)
	assert.Equal(t, model.VenueBinance, got[1].Venue)

	assert.Len(t, store.Spots(), 1)
	assert.Len(t, store.Unified(), 2)
}

func TestCollectOnceSortsSpotsByVolume(t *testing.T) {
	at := time.Now().UTC()
	store := NewStore()

	spots := []exchange.SpotLister{
		fakeSpotLister{venue: model.VenueBinance, snaps: []model.SpotSnapshot{
			spot(model.VenueBinance, "AUSDT", 10, at),
			spot(model.VenueBinance, "BUSDT", 500, at),
		}},
		fakeSpotLister{venue: model.VenueBybit, snaps: []model.SpotSnapshot{
			spot(model.VenueBybit, "CUSDT", 90, at),
		}},
	}

	c := New(nil, spots, staticRates{}, store, time.Second)
	c.CollectOnce(context.Background())

	got := store.Spots()
	require.Len(t, got, 3)
	assert.Equal(t, "BUSDT", got[0].Symbol)
	assert.Equal(t, "CUSDT", got[1].Symbol)
	assert.Equal(t, "AUSDT", got[2].Symbol)
}

func TestStoreSwapIsAllOrNothing(t *testing.T) {
	store := NewStore()
	at := time.Now().UTC()

	store.Replace(
		[]model.PerpSnapshot{perp(model.VenueBinance, "BTCUSDT", 1, at)},
		[]model.SpotSnapshot{spot(model.VenueBinance, "BTCUSDT", 1, at)},
		nil,
	)

	// Readers get copies; mutating a returned slice does not leak back.
	first := store.Perps()
	first[0].Symbol = "MUTATED"
	assert.Equal(t, "BTCUSDT", store.Perps()[0].Symbol)
}
