// Package fx fetches the FX rates needed to compare KRW and USDT legs. Each
// lookup has a hard-coded fallback so the aggregate never fails.
package fx

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quantfold/basisarb/internal/httpx"
	"github.com/quantfold/basisarb/internal/model"
)

const (
	FallbackUSDKRW  = 1300.0
	FallbackUSDTUSD = 1.0
	FallbackUSDTKRW = 1300.0
)

const (
	defaultUSDKRWURL  = "https://api.exchangerate-api.com/v4/latest/USD"
	defaultUSDTUSDURL = "https://api.binance.com/api/v3/ticker/price?symbol=USDCUSDT"
	defaultUSDTKRWURL = "https://api.bithumb.com/public/ticker/USDT_KRW"
)

type Provider struct {
	http *httpx.Client

	usdKRWURL  string
	usdtUSDURL string
	usdtKRWURL string
}

func NewProvider(httpc *httpx.Client) *Provider {
	return &Provider{
		http:       httpc,
		usdKRWURL:  defaultUSDKRWURL,
		usdtUSDURL: defaultUSDTUSDURL,
		usdtKRWURL: defaultUSDTKRWURL,
	}
}

// NewProviderWithURLs is used by tests to point at stub servers.
func NewProviderWithURLs(httpc *httpx.Client, usdKRW, usdtUSD, usdtKRW string) *Provider {
	return &Provider{http: httpc, usdKRWURL: usdKRW, usdtUSDURL: usdtUSD, usdtKRWURL: usdtKRW}
}

// FetchAll resolves the three rates, substituting fallbacks on any failure.
func (p *Provider) FetchAll(ctx context.Context) model.ExchangeRates {
	usdKRW, err := p.fetchUSDKRW(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("usd/krw lookup failed, using fallback")
		usdKRW = FallbackUSDKRW
	}
	usdtUSD, err := p.fetchUSDTUSD(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("usdt/usd lookup failed, using fallback")
		usdtUSD = FallbackUSDTUSD
	}
	usdtKRW, err := p.fetchUSDTKRW(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("usdt/krw lookup failed, using fallback")
		usdtKRW = FallbackUSDTKRW
	}
	return model.ExchangeRates{
		USDKRW:     usdKRW,
		USDTUSD:    usdtUSD,
		USDTKRW:    usdtKRW,
		ObservedAt: time.Now().UTC(),
	}
}

func (p *Provider) fetchUSDKRW(ctx context.Context) (float64, error) {
	var resp struct {
		Rates struct {
			KRW float64 `json:"KRW"`
		} `json:"rates"`
	}
	if err := p.http.GetJSON(ctx, p.usdKRWURL, &resp); err != nil {
		return 0, err
	}
	if resp.Rates.KRW <= 0 {
		return FallbackUSDKRW, nil
	}
	return resp.Rates.KRW, nil
}

// fetchUSDTUSD derives the rate from the USDC/USDT spot price: USDC tracks
// USD, so USDT/USD is its inverse.
func (p *Provider) fetchUSDTUSD(ctx context.Context) (float64, error) {
	var resp struct {
		Price string `json:"price"`
	}
	if err := p.http.GetJSON(ctx, p.usdtUSDURL, &resp); err != nil {
		return 0, err
	}
	usdcUSDT, err := strconv.ParseFloat(resp.Price, 64)
	if err != nil || usdcUSDT <= 0 {
		return FallbackUSDTUSD, nil
	}
	return 1 / usdcUSDT, nil
}

func (p *Provider) fetchUSDTKRW(ctx context.Context) (float64, error) {
	var resp struct {
		Status string `json:"status"`
		Data   struct {
			ClosingPrice string `json:"closing_price"`
		} `json:"data"`
	}
	if err := p.http.GetJSON(ctx, p.usdtKRWURL, &resp); err != nil {
		return 0, err
	}
	if resp.Status != "0000" {
		return FallbackUSDTKRW, nil
	}
	price, err := strconv.ParseFloat(resp.Data.ClosingPrice, 64)
	if err != nil || price <= 0 {
		return FallbackUSDTKRW, nil
	}
	return price, nil
}
