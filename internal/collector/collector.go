// Package collector runs the periodic multi-venue collection loop and merges
// per-venue snapshots into unified records.
package collector

import (
	"context"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"

	"github.com/quantfold/basisarb/internal/exchange"
	"github.com/quantfold/basisarb/internal/model"
)

var (
	ticksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "basisarb_collector_ticks_total",
		Help: "Completed collection ticks.",
	})
	venueErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "basisarb_collector_venue_errors_total",
		Help: "Per-venue fetch failures, by venue and market.",
	}, []string{"venue", "market"})
)

// RatesFetcher resolves the FX snapshot attached to unified records.
// *fx.Provider is the production implementation.
type RatesFetcher interface {
	FetchAll(ctx context.Context) model.ExchangeRates
}

type Collector struct {
	perps    []exchange.PerpLister
	spots    []exchange.SpotLister
	fx       RatesFetcher
	store    *Store
	interval time.Duration
}

func New(perps []exchange.PerpLister, spots []exchange.SpotLister, fxp RatesFetcher, store *Store, interval time.Duration) *Collector {
	return &Collector{perps: perps, spots: spots, fx: fxp, store: store, interval: interval}
}

// Run collects immediately, then on every tick until ctx is done.
func (c *Collector) Run(ctx context.Context) {
	log.Info().
		Int("perp_venues", len(c.perps)).
		Int("spot_venues", len(c.spots)).
		Dur("interval", c.interval).
		Msg("collection loop started")

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		c.CollectOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// CollectOnce performs a single tick: fan out, sort, merge, swap.
func (c *Collector) CollectOnce(ctx context.Context) {
	var allPerps []model.PerpSnapshot
	for _, ex := range c.perps {
		snaps, err := ex.ListPerps(ctx)
		if err != nil {
			venueErrors.WithLabelValues(string(ex.Venue()), "perp").Inc()
			log.Warn().Err(err).Str("venue", string(ex.Venue())).Msg("perp fetch failed")
			continue
		}
		allPerps = append(allPerps, snaps...)
	}
	sort.SliceStable(allPerps, func(i, j int) bool {
		return allPerps[i].OpenInterestQuote > allPerps[j].OpenInterestQuote
	})

	var allSpots []model.SpotSnapshot
	for _, ex := range c.spots {
		snaps, err := ex.ListSpots(ctx)
		if err != nil {
			venueErrors.WithLabelValues(string(ex.Venue()), "spot").Inc()
			log.Warn().Err(err).Str("venue", string(ex.Venue())).Msg("spot fetch failed")
			continue
		}
		allSpots = append(allSpots, snaps...)
	}
	sort.SliceStable(allSpots, func(i, j int) bool {
		return allSpots[i].Volume24hQuote > allSpots[j].Volume24hQuote
	})

	rates := c.fx.FetchAll(ctx)
	unified := Merge(allPerps, allSpots, rates)

	c.store.Replace(allPerps, allSpots, unified)
	ticksTotal.Inc()

	log.Info().
		Int("perps", len(allPerps)).
		Int("spots", len(allSpots)).
		Int("unified", len(unified)).
		Msg("collection tick complete")
}

type mergeKey struct {
	venue  model.Venue
	symbol string
}

// Merge groups perp and spot snapshots by (venue, symbol). When both legs are
// present the unified timestamp is the fresher one and the quote currency
// follows the perp leg.
func Merge(perps []model.PerpSnapshot, spots []model.SpotSnapshot, rates model.ExchangeRates) []model.UnifiedSnapshot {
	unified := make(map[mergeKey]*model.UnifiedSnapshot)

	for _, p := range perps {
		key := mergeKey{p.Venue, p.Symbol}
		u, ok := unified[key]
		if !ok {
			u = &model.UnifiedSnapshot{
				Venue:      p.Venue,
				Symbol:     p.Symbol,
				FxRates:    rates,
				ObservedAt: p.ObservedAt,
			}
			unified[key] = u
		}
		u.Perp = &model.PerpData{
			MarkPrice:         p.MarkPrice,
			OpenInterestQuote: p.OpenInterestQuote,
			Volume24hQuote:    p.Volume24hQuote,
			FundingRate:       p.FundingRate,
			NextFundingTime:   p.NextFundingTime,
			ObservedAt:        p.ObservedAt,
		}
		u.Quote = p.Quote
		if p.ObservedAt.After(u.ObservedAt) {
			u.ObservedAt = p.ObservedAt
		}
	}

	for _, s := range spots {
		key := mergeKey{s.Venue, s.Symbol}
		u, ok := unified[key]
		if !ok {
			u = &model.UnifiedSnapshot{
				Venue:      s.Venue,
				Symbol:     s.Symbol,
				FxRates:    rates,
				ObservedAt: s.ObservedAt,
			}
			unified[key] = u
		}
		u.Spot = &model.SpotData{
			Price:          s.Price,
			Volume24hQuote: s.Volume24hQuote,
			ObservedAt:     s.ObservedAt,
		}
		if u.Perp == nil {
			u.Quote = s.Quote
		}
		if s.ObservedAt.After(u.ObservedAt) {
			u.ObservedAt = s.ObservedAt
		}
	}

	out := make([]model.UnifiedSnapshot, 0, len(unified))
	for _, u := range unified {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Venue != out[j].Venue {
			return out[i].Venue < out[j].Venue
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}
