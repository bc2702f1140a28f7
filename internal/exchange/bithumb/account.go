package bithumb

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/quantfold/basisarb/internal/exchange"
	"github.com/quantfold/basisarb/internal/model"
)

type account struct {
	Currency string `json:"currency"`
	Balance  string `json:"balance"`
	Locked   string `json:"locked"`
}

// FetchAssets lists balances from the new API. Authenticated with a JWT
// bearer token.
func (c *Client) FetchAssets(ctx context.Context) ([]model.Asset, error) {
	if err := c.requireCredentials(); err != nil {
		return nil, err
	}

	token, err := c.jwtToken(nil)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/accounts", nil)
	if err != nil {
		return nil, exchange.Transport("bithumb: build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, exchange.Transport("bithumb: GET /v1/accounts", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, exchange.Transport("bithumb: read body", err)
	}
	if res.StatusCode != http.StatusOK {
		return nil, exchange.Vendorf(model.VenueBithumb, "HTTP error: status %d, response: %s",
			res.StatusCode, exchange.Truncate(string(body)))
	}

	var accounts []account
	if err := json.Unmarshal(body, &accounts); err != nil {
		return nil, exchange.Vendorf(model.VenueBithumb, "failed to parse accounts: %v, response: %s",
			err, exchange.Truncate(string(body)))
	}

	now := time.Now().UTC()
	assets := make([]model.Asset, 0, len(accounts))
	for _, a := range accounts {
		balance, _ := strconv.ParseFloat(a.Balance, 64)
		locked, _ := strconv.ParseFloat(a.Locked, 64)
		total := balance + locked
		if total <= 0 {
			continue
		}
		assets = append(assets, model.Asset{
			Currency:   strings.ToUpper(a.Currency),
			Total:      total,
			Available:  balance,
			InUse:      locked,
			ObservedAt: now,
		})
	}
	return assets, nil
}
