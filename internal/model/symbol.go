package model

import (
	"fmt"
	"math"
	"strings"
)

// quotes ordered longest-first so USDT wins over USD.
var quotes = []Currency{CurrencyUSDT, CurrencyKRW, CurrencyUSD, CurrencyBTC}

// Canonicalize upper-cases a symbol and strips delimiters.
func Canonicalize(symbol string) string {
	s := strings.ToUpper(symbol)
	s = strings.NewReplacer("-", "", "_", "", "/", "").Replace(s)
	return s
}

// SplitSymbol splits a canonical symbol into base and quote. The quote must
// be one of KRW, USDT, USD or BTC.
func SplitSymbol(symbol string) (base string, quote Currency, err error) {
	s := Canonicalize(symbol)
	for _, q := range quotes {
		qs := string(q)
		if strings.HasSuffix(s, qs) && len(s) > len(qs) {
			return s[:len(s)-len(qs)], q, nil
		}
	}
	return "", "", fmt.Errorf("unsupported symbol: %s", symbol)
}

// BaseAsset extracts the base asset of a symbol, e.g. "BTCUSDT" -> "BTC".
// Unknown quotes return the symbol unchanged.
func BaseAsset(symbol string) string {
	if base, _, err := SplitSymbol(symbol); err == nil {
		return base
	}
	return Canonicalize(symbol)
}

// LotSizeFilter is a venue's (min, max, step) quantity rule for one symbol.
type LotSizeFilter struct {
	MinQty   float64 `json:"min_qty"`
	MaxQty   float64 `json:"max_qty"`
	StepSize float64 `json:"step_size"`
}

// basePrecision guards against float noise before step alignment.
const basePrecision = 1e8

// Clamp aligns qty to the filter. The result is zero (too small to trade) or
// a quantity within [MinQty, MaxQty] on the step grid.
func (f LotSizeFilter) Clamp(qty float64) float64 {
	if qty <= 0 {
		return 0
	}
	qty = math.Floor(qty*basePrecision) / basePrecision
	if f.StepSize > 0 {
		qty = math.Floor(qty/f.StepSize) * f.StepSize
	}
	if qty < f.MinQty {
		return 0
	}
	if f.MaxQty > 0 && qty > f.MaxQty {
		qty = f.MaxQty
	}
	return qty
}
