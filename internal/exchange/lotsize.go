package exchange

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/quantfold/basisarb/internal/model"
)

// LotSizeCache holds per-symbol lot filters loaded from a venue's symbol
// catalog. Built once at startup, rebuilt on demand; reads dominate.
type LotSizeCache struct {
	mu      sync.RWMutex
	filters map[string]model.LotSizeFilter
}

func NewLotSizeCache() *LotSizeCache {
	return &LotSizeCache{filters: make(map[string]model.LotSizeFilter)}
}

// Replace swaps the whole cache for a freshly loaded catalog.
func (c *LotSizeCache) Replace(filters map[string]model.LotSizeFilter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filters = filters
}

// Get returns the filter for a symbol.
func (c *LotSizeCache) Get(symbol string) (model.LotSizeFilter, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.filters[symbol]
	return f, ok
}

// Len returns the number of cached symbols.
func (c *LotSizeCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.filters)
}

// Clamp aligns qty to the symbol's filter. When the symbol is unknown the
// original quantity passes through so the venue rejects it instead of us
// silently zeroing a live order.
func (c *LotSizeCache) Clamp(symbol string, qty float64) float64 {
	f, ok := c.Get(symbol)
	if !ok {
		log.Warn().Str("symbol", symbol).Msg("lot size filter not found, using original quantity")
		return qty
	}
	return f.Clamp(qty)
}
