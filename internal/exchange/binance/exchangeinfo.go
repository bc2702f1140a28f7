package binance

import (
	"context"
	"math"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/quantfold/basisarb/internal/model"
)

type exchangeInfo struct {
	Symbols []struct {
		Symbol  string `json:"symbol"`
		Filters []struct {
			FilterType string `json:"filterType"`
			MinQty     string `json:"minQty"`
			MaxQty     string `json:"maxQty"`
			StepSize   string `json:"stepSize"`
		} `json:"filters"`
	} `json:"symbols"`
}

func lotFilters(info exchangeInfo) map[string]model.LotSizeFilter {
	out := make(map[string]model.LotSizeFilter, len(info.Symbols))
	for _, s := range info.Symbols {
		for _, f := range s.Filters {
			if f.FilterType != "LOT_SIZE" {
				continue
			}
			minQty, _ := strconv.ParseFloat(f.MinQty, 64)
			maxQty, err := strconv.ParseFloat(f.MaxQty, 64)
			if err != nil {
				maxQty = math.MaxFloat64
			}
			stepSize, err := strconv.ParseFloat(f.StepSize, 64)
			if err != nil || stepSize <= 0 {
				stepSize = 1
			}
			out[s.Symbol] = model.LotSizeFilter{MinQty: minQty, MaxQty: maxQty, StepSize: stepSize}
			break
		}
	}
	return out
}

// LoadSpotExchangeInfo refreshes the spot lot-size cache.
func (c *Client) LoadSpotExchangeInfo(ctx context.Context) error {
	var info exchangeInfo
	if err := c.getJSON(ctx, c.spotBaseURL+"/api/v3/exchangeInfo", &info); err != nil {
		return err
	}
	filters := lotFilters(info)
	c.spotLots.Replace(filters)
	log.Info().Int("symbols", len(filters)).Msg("loaded spot lot size filters")
	return nil
}

// LoadFuturesExchangeInfo refreshes the futures lot-size cache.
func (c *Client) LoadFuturesExchangeInfo(ctx context.Context) error {
	var info exchangeInfo
	if err := c.getJSON(ctx, c.futuresBaseURL+"/fapi/v1/exchangeInfo", &info); err != nil {
		return err
	}
	filters := lotFilters(info)
	c.futLots.Replace(filters)
	log.Info().Int("symbols", len(filters)).Msg("loaded futures lot size filters")
	return nil
}

// SpotLot returns the spot lot filter for a symbol.
func (c *Client) SpotLot(symbol string) (model.LotSizeFilter, bool) { return c.spotLots.Get(symbol) }

// FuturesLot returns the futures lot filter for a symbol.
func (c *Client) FuturesLot(symbol string) (model.LotSizeFilter, bool) { return c.futLots.Get(symbol) }

// ClampSpotQty aligns qty to the spot lot filter.
func (c *Client) ClampSpotQty(symbol string, qty float64) float64 {
	return c.spotLots.Clamp(symbol, qty)
}

// ClampFuturesQty aligns qty to the futures lot filter.
func (c *Client) ClampFuturesQty(symbol string, qty float64) float64 {
	return c.futLots.Clamp(symbol, qty)
}
