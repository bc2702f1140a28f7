package binance

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/quantfold/basisarb/internal/model"
)

// marginTypeNoChange is Binance's "No need to change margin type" code.
const marginTypeNoChange = "-4046"

// PlaceSpotMarket submits a spot market order. test routes to the validate-
// only endpoint.
func (c *Client) PlaceSpotMarket(ctx context.Context, symbol, side string, qty float64, test bool) (model.OrderAck, error) {
	endpoint := "/api/v3/order"
	if test {
		endpoint = "/api/v3/order/test"
	}

	q := new(query)
	q.add("symbol", model.Canonicalize(symbol))
	q.add("side", side)
	q.add("type", "MARKET")
	q.add("quantity", fmt.Sprintf("%.8f", qty))
	q.add("timestamp", strconv.FormatInt(timestampMS(), 10))
	q.add("recvWindow", strconv.Itoa(recvWindowMS))

	log.Info().Str("symbol", symbol).Str("side", side).Float64("qty", qty).Msg("placing spot market order")

	var ack model.OrderAck
	if err := c.doSigned(ctx, http.MethodPost, c.spotBaseURL, endpoint, q, &ack); err != nil {
		return model.OrderAck{}, err
	}
	return ack, nil
}

// PlaceFuturesMarket submits a futures market order, optionally reduce-only.
func (c *Client) PlaceFuturesMarket(ctx context.Context, symbol, side string, qty float64, reduceOnly bool) (model.OrderAck, error) {
	q := new(query)
	q.add("symbol", model.Canonicalize(symbol))
	q.add("side", side)
	q.add("type", "MARKET")
	q.add("quantity", fmt.Sprintf("%.8f", qty))
	q.add("timestamp", strconv.FormatInt(timestampMS(), 10))
	q.add("recvWindow", strconv.Itoa(recvWindowMS))
	if reduceOnly {
		q.add("reduceOnly", "true")
	}

	log.Info().Str("symbol", symbol).Str("side", side).Float64("qty", qty).
		Bool("reduce_only", reduceOnly).Msg("placing futures market order")

	var ack model.OrderAck
	if err := c.doSigned(ctx, http.MethodPost, c.futuresBaseURL, "/fapi/v1/order", q, &ack); err != nil {
		return model.OrderAck{}, err
	}
	return ack, nil
}

// EnsureFuturesSetup sets the margin mode and leverage for a symbol. The
// "already set" vendor code for margin mode is swallowed; a leverage failure
// is logged but does not abort.
func (c *Client) EnsureFuturesSetup(ctx context.Context, symbol string, leverage int, isolated bool) error {
	sym := model.Canonicalize(symbol)

	marginType := "CROSSED"
	if isolated {
		marginType = "ISOLATED"
	}
	q := new(query)
	q.add("symbol", sym)
	q.add("marginType", marginType)
	q.add("timestamp", strconv.FormatInt(timestampMS(), 10))
	q.add("recvWindow", strconv.Itoa(recvWindowMS))

	if err := c.doSigned(ctx, http.MethodPost, c.futuresBaseURL, "/fapi/v1/marginType", q, nil); err != nil {
		if !strings.Contains(err.Error(), marginTypeNoChange) {
			log.Warn().Err(err).Str("symbol", symbol).Msg("failed to set margin type")
		}
	}

	q = new(query)
	q.add("symbol", sym)
	q.add("leverage", strconv.Itoa(leverage))
	q.add("timestamp", strconv.FormatInt(timestampMS(), 10))
	q.add("recvWindow", strconv.Itoa(recvWindowMS))

	if err := c.doSigned(ctx, http.MethodPost, c.futuresBaseURL, "/fapi/v1/leverage", q, nil); err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Int("leverage", leverage).Msg("failed to set leverage")
	}
	return nil
}
