package bithumb

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/quantfold/basisarb/internal/exchange"
	"github.com/quantfold/basisarb/internal/model"
)

// Flat public schedule; account-level coupons are not modelled.
var krwMarketFee = model.FeeInfo{MakerBps: 25, TakerBps: 25}

// Fee returns the trading fee schedule for a market type.
func (c *Client) Fee(model.MarketType) model.FeeInfo {
	return krwMarketFee
}

type assetStatus struct {
	WithdrawalFee string `json:"withdrawal_fee"`
	DepositFee    string `json:"deposit_fee"`
}

// DepositWithdrawalFee fetches the transfer fees for one currency from the
// public asset-status endpoint, cached for the process lifetime.
func (c *Client) DepositWithdrawalFee(ctx context.Context, currency string) (model.DepositWithdrawalFee, error) {
	c.feeMu.RLock()
	if fee, ok := c.transferFees[currency]; ok {
		c.feeMu.RUnlock()
		return fee, nil
	}
	c.feeMu.RUnlock()

	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	url := c.baseURL + "/public/assetsstatus/" + currency
	if err := c.http.GetJSON(ctx, url, &resp); err != nil {
		return model.DepositWithdrawalFee{}, exchange.Transport("bithumb: GET "+url, err)
	}
	if resp.Status != "0000" {
		return model.DepositWithdrawalFee{}, exchange.Vendorf(model.VenueBithumb,
			"fee not found for currency %s (status %s)", currency, resp.Status)
	}

	var st assetStatus
	if err := json.Unmarshal(resp.Data, &st); err != nil {
		return model.DepositWithdrawalFee{}, exchange.Vendorf(model.VenueBithumb,
			"failed to parse asset status for %s: %v", currency, err)
	}

	withdrawal, _ := strconv.ParseFloat(st.WithdrawalFee, 64)
	deposit, _ := strconv.ParseFloat(st.DepositFee, 64)
	fee := model.DepositWithdrawalFee{
		Currency:      currency,
		DepositFee:    deposit,
		WithdrawalFee: withdrawal,
		ObservedAt:    time.Now().UTC(),
	}

	c.feeMu.Lock()
	c.transferFees[currency] = fee
	c.feeMu.Unlock()
	return fee, nil
}
