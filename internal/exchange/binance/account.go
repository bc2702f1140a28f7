package binance

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/quantfold/basisarb/internal/model"
)

type accountResponse struct {
	Balances []struct {
		Asset  string `json:"asset"`
		Free   string `json:"free"`
		Locked string `json:"locked"`
	} `json:"balances"`
}

// FetchAssets lists spot account balances. Authenticated.
func (c *Client) FetchAssets(ctx context.Context) ([]model.Asset, error) {
	q := new(query)
	q.add("timestamp", strconv.FormatInt(timestampMS(), 10))
	q.add("recvWindow", strconv.Itoa(recvWindowMS))

	var account accountResponse
	if err := c.doSigned(ctx, http.MethodGet, c.spotBaseURL, "/api/v3/account", q, &account); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	assets := make([]model.Asset, 0, len(account.Balances))
	for _, b := range account.Balances {
		free, _ := strconv.ParseFloat(b.Free, 64)
		locked, _ := strconv.ParseFloat(b.Locked, 64)
		total := free + locked
		if total <= 0 {
			continue
		}
		assets = append(assets, model.Asset{
			Currency:   b.Asset,
			Total:      total,
			Available:  free,
			InUse:      locked,
			ObservedAt: now,
		})
	}
	return assets, nil
}

type futuresBalance struct {
	Asset   string `json:"asset"`
	Balance string `json:"balance"`
}

// FuturesBalance returns the USDT margin balance.
func (c *Client) FuturesBalance(ctx context.Context) (float64, error) {
	q := new(query)
	q.add("timestamp", strconv.FormatInt(timestampMS(), 10))
	q.add("recvWindow", strconv.Itoa(recvWindowMS))

	var balances []futuresBalance
	if err := c.doSigned(ctx, http.MethodGet, c.futuresBaseURL, "/fapi/v2/balance", q, &balances); err != nil {
		return 0, err
	}
	for _, b := range balances {
		if b.Asset == "USDT" {
			v, err := strconv.ParseFloat(b.Balance, 64)
			if err != nil {
				return 0, nil
			}
			return v, nil
		}
	}
	return 0, nil
}
