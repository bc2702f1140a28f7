package model

import "time"

// Venue identifies an exchange.
type Venue string

const (
	VenueBinance Venue = "binance"
	VenueBybit   Venue = "bybit"
	VenueOKX     Venue = "okx"
	VenueBitget  Venue = "bitget"
	VenueBithumb Venue = "bithumb"
)

// Currency is a quote or settlement currency.
type Currency string

const (
	CurrencyKRW  Currency = "KRW"
	CurrencyUSDT Currency = "USDT"
	CurrencyUSD  Currency = "USD"
	CurrencyBTC  Currency = "BTC"
)

// MarketType selects a fee schedule.
type MarketType string

const (
	MarketSpot    MarketType = "spot"
	MarketFutures MarketType = "futures"
)

// PerpSnapshot is one venue's view of a linear perpetual at a point in time.
// MarkPrice is always positive; OpenInterestQuote and Volume24hQuote are
// denominated in the quote currency.
type PerpSnapshot struct {
	Venue             Venue      `json:"venue"`
	Symbol            string     `json:"symbol"`
	Quote             Currency   `json:"quote_currency"`
	MarkPrice         float64    `json:"mark_price"`
	OpenInterestQuote float64    `json:"open_interest_quote"`
	Volume24hQuote    float64    `json:"volume_24h_quote"`
	FundingRate       float64    `json:"funding_rate"`
	NextFundingTime   *time.Time `json:"next_funding_time,omitempty"`
	ObservedAt        time.Time  `json:"observed_at"`
}

// SpotSnapshot is one venue's view of a spot pair at a point in time.
type SpotSnapshot struct {
	Venue          Venue     `json:"venue"`
	Symbol         string    `json:"symbol"`
	Quote          Currency  `json:"quote_currency"`
	Price          float64   `json:"price"`
	Volume24hQuote float64   `json:"volume_24h_quote"`
	ObservedAt     time.Time `json:"observed_at"`
}

// BookLevel is a single price level of an order book.
type BookLevel struct {
	Price float64 `json:"price"`
	Qty   float64 `json:"qty"`
}

// OrderBook holds bids sorted descending and asks sorted ascending by price.
type OrderBook struct {
	Venue      Venue       `json:"venue"`
	Symbol     string      `json:"symbol"`
	Bids       []BookLevel `json:"bids"`
	Asks       []BookLevel `json:"asks"`
	ObservedAt time.Time   `json:"observed_at"`
}

// BestBid returns the highest bid, or zero when the book side is empty.
func (b OrderBook) BestBid() float64 {
	if len(b.Bids) == 0 {
		return 0
	}
	return b.Bids[0].Price
}

// BestAsk returns the lowest ask, or zero when the book side is empty.
func (b OrderBook) BestAsk() float64 {
	if len(b.Asks) == 0 {
		return 0
	}
	return b.Asks[0].Price
}

// Asset is a single balance entry of an account.
type Asset struct {
	Currency   string    `json:"currency"`
	Total      float64   `json:"total"`
	Available  float64   `json:"available"`
	InUse      float64   `json:"in_use"`
	ObservedAt time.Time `json:"observed_at"`
}

// FeeInfo carries maker/taker fees in basis points.
type FeeInfo struct {
	MakerBps float64 `json:"maker_bps"`
	TakerBps float64 `json:"taker_bps"`
}

// MakerRate returns the maker fee as a fraction (10 bps -> 0.001).
func (f FeeInfo) MakerRate() float64 { return f.MakerBps / 10000 }

// TakerRate returns the taker fee as a fraction.
func (f FeeInfo) TakerRate() float64 { return f.TakerBps / 10000 }

// DepositWithdrawalFee is a venue's transfer fee schedule for one currency.
type DepositWithdrawalFee struct {
	Currency      string    `json:"currency"`
	DepositFee    float64   `json:"deposit_fee"`
	WithdrawalFee float64   `json:"withdrawal_fee"`
	ObservedAt    time.Time `json:"observed_at"`
}

// ExchangeRates is the FX snapshot used to compare KRW and USDT legs.
type ExchangeRates struct {
	USDKRW     float64   `json:"usd_krw"`
	USDTUSD    float64   `json:"usdt_usd"`
	USDTKRW    float64   `json:"usdt_krw"`
	ObservedAt time.Time `json:"observed_at"`
}

// PerpData is the perp leg of a unified snapshot.
type PerpData struct {
	MarkPrice         float64    `json:"mark_price"`
	OpenInterestQuote float64    `json:"open_interest_quote"`
	Volume24hQuote    float64    `json:"volume_24h_quote"`
	FundingRate       float64    `json:"funding_rate"`
	NextFundingTime   *time.Time `json:"next_funding_time,omitempty"`
	ObservedAt        time.Time  `json:"observed_at"`
}

// SpotData is the spot leg of a unified snapshot.
type SpotData struct {
	Price          float64   `json:"price"`
	Volume24hQuote float64   `json:"volume_24h_quote"`
	ObservedAt     time.Time `json:"observed_at"`
}

// UnifiedSnapshot merges a symbol's perp and spot legs at one venue. At least
// one leg is present; ObservedAt is the fresher of the two.
type UnifiedSnapshot struct {
	Venue      Venue         `json:"venue"`
	Symbol     string        `json:"symbol"`
	Quote      Currency      `json:"quote_currency"`
	Perp       *PerpData     `json:"perp,omitempty"`
	Spot       *SpotData     `json:"spot,omitempty"`
	FxRates    ExchangeRates `json:"fx_rates"`
	ObservedAt time.Time     `json:"observed_at"`
}

// HedgedPair is a spot/futures quantity pair where both sides satisfy their
// lot filters and the fee-adjusted residual delta is within tolerance.
type HedgedPair struct {
	SpotOrderQty  float64 `json:"spot_order_qty"`
	FutOrderQty   float64 `json:"fut_order_qty"`
	SpotNetQtyEst float64 `json:"spot_net_qty_est"`
	DeltaEst      float64 `json:"delta_est"`
}

// IsZero reports whether the pair carries no quantities.
func (p HedgedPair) IsZero() bool {
	return p.SpotOrderQty == 0 && p.FutOrderQty == 0
}

// OrderAck is the minimal acknowledgment a venue returns for an order.
type OrderAck struct {
	Symbol        string `json:"symbol"`
	OrderID       int64  `json:"orderId,omitempty"`
	ClientOrderID string `json:"clientOrderId,omitempty"`
	ExecutedQty   string `json:"executedQty,omitempty"`
	Status        string `json:"status,omitempty"`
}
