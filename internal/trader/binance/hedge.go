package binance

import (
	"math"

	"github.com/quantfold/basisarb/internal/model"
)

const maxSizerIterations = 50

// FindHedgedPair searches near targetNetQty for a (spot, futures) quantity
// pair where both sides satisfy their lot filters and the fee-adjusted spot
// net quantity covers the futures leg within tolerance. The futures candidate
// walks down one step at a time until the pair lines up or the search floor
// is hit. The second return value is false when no pair exists.
func (t *Trader) FindHedgedPair(symbol string, targetNetQty, spotFeeRate float64) (model.HedgedPair, bool) {
	return findHedgedPair(hedgeFilters{
		clampSpot:    func(q float64) float64 { return t.ClampSpotQty(symbol, q) },
		clampFutures: func(q float64) float64 { return t.ClampFuturesQty(symbol, q) },
		spotStep:     stepOf(t.client.SpotLot(symbol)),
		futuresStep:  stepOf(t.client.FuturesLot(symbol)),
	}, targetNetQty, spotFeeRate)
}

type hedgeFilters struct {
	clampSpot    func(float64) float64
	clampFutures func(float64) float64
	spotStep     float64
	futuresStep  float64
}

func stepOf(f model.LotSizeFilter, ok bool) float64 {
	if !ok {
		return 0
	}
	return f.StepSize
}

func findHedgedPair(f hedgeFilters, targetNetQty, spotFeeRate float64) (model.HedgedPair, bool) {
	if targetNetQty <= 0 || spotFeeRate >= 1 {
		return model.HedgedPair{}, false
	}

	futCandidate := f.clampFutures(targetNetQty)
	if futCandidate <= 0 {
		return model.HedgedPair{}, false
	}

	spotStep := f.spotStep
	if spotStep <= 0 {
		spotStep = math.Max(f.futuresStep, 1e-8)
	}
	futStep := f.futuresStep

	tol := spotStep / 2
	if futStep > 0 && futStep < spotStep {
		tol = futStep / 2
	}

	for i := 0; i < maxSizerIterations; i++ {
		// Covering the futures leg exactly requires
		// spotNet = spotOrder*(1-fee) == futCandidate.
		idealSpot := futCandidate / (1 - spotFeeRate)
		if math.IsInf(idealSpot, 0) || math.IsNaN(idealSpot) || idealSpot <= 0 {
			break
		}

		spotOrderQty := f.clampSpot(idealSpot)
		if spotOrderQty <= 0 {
			break
		}

		spotNet := spotOrderQty * (1 - spotFeeRate)
		delta := spotNet - futCandidate
		if math.Abs(delta) <= tol {
			return model.HedgedPair{
				SpotOrderQty:  spotOrderQty,
				FutOrderQty:   futCandidate,
				SpotNetQtyEst: spotNet,
				DeltaEst:      delta,
			}, true
		}

		if futStep <= 0 {
			break
		}
		next := f.clampFutures(futCandidate - futStep)
		if next <= 0 || math.Abs(next-futCandidate) < 1e-12 {
			break
		}
		futCandidate = next
	}
	return model.HedgedPair{}, false
}
