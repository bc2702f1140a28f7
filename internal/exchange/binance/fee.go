package binance

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/quantfold/basisarb/internal/exchange"
	"github.com/quantfold/basisarb/internal/model"
)

// Default VIP-0 spot schedule, used when no per-symbol fee has been fetched.
var defaultSpotFee = model.FeeInfo{MakerBps: 10, TakerBps: 10}
var defaultFuturesFee = model.FeeInfo{MakerBps: 2, TakerBps: 5}

// feeCache holds the lazily loaded trade-fee and transfer-fee tables.
type feeCache struct {
	mu        sync.RWMutex
	tradeFees map[string]model.FeeInfo
	transfer  map[string]model.DepositWithdrawalFee
}

func newFeeCache() *feeCache {
	return &feeCache{
		tradeFees: make(map[string]model.FeeInfo),
		transfer:  make(map[string]model.DepositWithdrawalFee),
	}
}

// Fee returns the static default schedule for a market type.
func (c *Client) Fee(market model.MarketType) model.FeeInfo {
	if market == model.MarketFutures {
		return defaultFuturesFee
	}
	return defaultSpotFee
}

type tradeFeeEntry struct {
	Symbol          string `json:"symbol"`
	MakerCommission string `json:"makerCommission"`
	TakerCommission string `json:"takerCommission"`
}

// TradeFee returns the account's spot fee for one symbol, cached after the
// first lookup.
func (c *Client) TradeFee(ctx context.Context, symbol string) (model.FeeInfo, error) {
	sym := model.Canonicalize(symbol)

	c.fees.mu.RLock()
	fee, ok := c.fees.tradeFees[sym]
	c.fees.mu.RUnlock()
	if ok {
		return fee, nil
	}

	q := new(query)
	q.add("symbol", sym)
	q.add("timestamp", strconv.FormatInt(timestampMS(), 10))
	q.add("recvWindow", strconv.Itoa(recvWindowMS))

	var entries []tradeFeeEntry
	if err := c.doSigned(ctx, http.MethodGet, c.sapiBaseURL, "/sapi/v1/asset/tradeFee", q, &entries); err != nil {
		return model.FeeInfo{}, err
	}
	if len(entries) == 0 {
		return model.FeeInfo{}, exchange.Vendorf(model.VenueBinance, "fee not found for symbol %s", sym)
	}

	maker, _ := strconv.ParseFloat(entries[0].MakerCommission, 64)
	taker, _ := strconv.ParseFloat(entries[0].TakerCommission, 64)
	fee = model.FeeInfo{MakerBps: maker * 10000, TakerBps: taker * 10000}

	c.fees.mu.Lock()
	c.fees.tradeFees[sym] = fee
	c.fees.mu.Unlock()
	return fee, nil
}

type coinInfo struct {
	Coin        string `json:"coin"`
	NetworkList []struct {
		Network     string `json:"network"`
		WithdrawFee string `json:"withdrawFee"`
	} `json:"networkList"`
}

// majorCoins limits the transfer-fee table to the currencies the strategies
// actually move.
var majorCoins = map[string]struct{}{
	"BTC": {}, "ETH": {}, "USDT": {}, "BNB": {}, "SOL": {}, "XRP": {},
	"ADA": {}, "DOGE": {}, "DOT": {}, "LINK": {}, "UNI": {}, "LTC": {}, "AVAX": {},
}

// RefreshDepositWithdrawalFees reloads the transfer-fee table. For coins with
// multiple networks the cheapest withdrawal network wins.
func (c *Client) RefreshDepositWithdrawalFees(ctx context.Context) error {
	q := new(query)
	q.add("timestamp", strconv.FormatInt(timestampMS(), 10))
	q.add("recvWindow", strconv.Itoa(recvWindowMS))

	var coins []coinInfo
	if err := c.doSigned(ctx, http.MethodGet, c.sapiBaseURL, "/sapi/v1/capital/config/getall", q, &coins); err != nil {
		return err
	}

	now := time.Now().UTC()
	fresh := make(map[string]model.DepositWithdrawalFee)
	for _, info := range coins {
		if _, ok := majorCoins[info.Coin]; !ok {
			continue
		}
		minFee := math.MaxFloat64
		for _, n := range info.NetworkList {
			fee, err := strconv.ParseFloat(n.WithdrawFee, 64)
			if err != nil {
				continue
			}
			if fee < minFee {
				minFee = fee
			}
		}
		if minFee == math.MaxFloat64 {
			continue
		}
		fresh[info.Coin] = model.DepositWithdrawalFee{
			Currency:      info.Coin,
			DepositFee:    0,
			WithdrawalFee: minFee,
			ObservedAt:    now,
		}
	}

	c.fees.mu.Lock()
	c.fees.transfer = fresh
	c.fees.mu.Unlock()
	return nil
}

// DepositWithdrawalFee returns the transfer fees for one currency, loading
// the table on first use.
func (c *Client) DepositWithdrawalFee(ctx context.Context, currency string) (model.DepositWithdrawalFee, error) {
	c.fees.mu.RLock()
	empty := len(c.fees.transfer) == 0
	c.fees.mu.RUnlock()

	if empty {
		if err := c.RefreshDepositWithdrawalFees(ctx); err != nil {
			return model.DepositWithdrawalFee{}, err
		}
	}

	c.fees.mu.RLock()
	defer c.fees.mu.RUnlock()
	fee, ok := c.fees.transfer[currency]
	if !ok {
		return model.DepositWithdrawalFee{}, exchange.Vendorf(model.VenueBinance, "fee not found for currency %s", currency)
	}
	return fee, nil
}
