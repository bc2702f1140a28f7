package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/quantfold/basisarb/internal/collector"
	"github.com/quantfold/basisarb/internal/exchange"
	binanceex "github.com/quantfold/basisarb/internal/exchange/binance"
	"github.com/quantfold/basisarb/internal/exchange/bitget"
	bithumbex "github.com/quantfold/basisarb/internal/exchange/bithumb"
	"github.com/quantfold/basisarb/internal/exchange/bybit"
	"github.com/quantfold/basisarb/internal/exchange/okx"
	"github.com/quantfold/basisarb/internal/fx"
	"github.com/quantfold/basisarb/internal/httpx"
	"github.com/quantfold/basisarb/internal/model"
	"github.com/quantfold/basisarb/internal/record"
	"github.com/quantfold/basisarb/internal/server"
	"github.com/quantfold/basisarb/internal/strategy"
	binancetrader "github.com/quantfold/basisarb/internal/trader/binance"
	bithumbtrader "github.com/quantfold/basisarb/internal/trader/bithumb"
)

// venues bundles all constructed adapters for a process.
type venues struct {
	httpc   *httpx.Client
	binance *binanceex.Client
	bithumb *bithumbex.Client
	bybit   *bybit.Client
	okx     *okx.Client
	bitget  *bitget.Client
}

func buildVenues(ctx context.Context) *venues {
	httpc := httpx.New()

	var binanceOpts []binanceex.Option
	if creds.BinanceKey != "" {
		binanceOpts = append(binanceOpts, binanceex.WithCredentials(creds.BinanceKey, creds.BinanceSecret))
	}
	var bithumbOpts []bithumbex.Option
	if creds.BithumbKey != "" {
		bithumbOpts = append(bithumbOpts, bithumbex.WithCredentials(creds.BithumbKey, creds.BithumbSecret))
	}

	v := &venues{
		httpc:   httpc,
		binance: binanceex.New(httpc, binanceOpts...),
		bithumb: bithumbex.New(httpc, bithumbOpts...),
		bybit:   bybit.New(httpc),
		okx:     okx.New(httpc),
		bitget:  bitget.New(httpc),
	}
	v.okx.Start(ctx)
	return v
}

func (v *venues) perpListers() []exchange.PerpLister {
	return []exchange.PerpLister{v.binance, v.bybit, v.okx, v.bitget}
}

func (v *venues) spotListers() []exchange.SpotLister {
	return []exchange.SpotLister{v.binance, v.bybit, v.okx, v.bitget, v.bithumb}
}

func strategyParams(dryRun bool) (strategy.Params, error) {
	mode, err := strategy.ParseMode(cfg.Strategy.Mode)
	if err != nil {
		return strategy.Params{}, err
	}
	p := strategy.DefaultParams()
	p.Symbol = model.Canonicalize(cfg.Strategy.Symbol)
	p.Mode = mode
	p.EntryBps = cfg.Strategy.EntryBps
	p.ExitBps = cfg.Strategy.ExitBps
	p.Notional = cfg.Strategy.Notional
	p.Leverage = cfg.Strategy.Leverage
	p.Isolated = cfg.Strategy.Isolated
	p.DryRun = cfg.Strategy.DryRun || dryRun
	if cfg.Strategy.TickInterval > 0 {
		p.TickInterval = cfg.Strategy.TickInterval.Std()
	}
	if cfg.Strategy.StalenessBudget > 0 {
		p.StalenessBudget = cfg.Strategy.StalenessBudget.Std()
	}
	return p, nil
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the collector, API server and strategy",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			v := buildVenues(ctx)

			repo, err := record.Open(cfg.Record.Path)
			if err != nil {
				return err
			}
			defer repo.Close()

			store := collector.NewStore()
			coll := collector.New(v.perpListers(), v.spotListers(), fx.NewProvider(v.httpc), store, cfg.Collector.Interval.Std())
			go coll.Run(ctx)

			srv := server.New(store, repo)
			go func() {
				if err := srv.ListenAndServe(cfg.Server.Port); err != nil {
					log.Error().Err(err).Msg("http server stopped")
				}
			}()

			params, err := strategyParams(false)
			if err != nil {
				return err
			}
			t := binancetrader.NewTrader(v.binance, creds.BinanceKey, creds.BinanceSecret)
			go func() {
				if err := t.RunUserStream(ctx, logUserDataEvent); err != nil && ctx.Err() == nil {
					log.Error().Err(err).Msg("user data stream stopped")
				}
			}()

			st := strategy.NewIntra(t, model.VenueBinance, params, strategy.NewStateStore(cfg.Strategy.StatePath), repo)
			return st.Run(ctx)
		},
	}
}

func logUserDataEvent(ev binancetrader.UserDataEvent) {
	switch {
	case ev.ExecutionReport != nil:
		r := ev.ExecutionReport
		log.Info().
			Str("symbol", r.Symbol).
			Str("side", r.Side).
			Str("status", r.OrderStatus).
			Str("filled", r.CumulativeQty).
			Str("commission", r.Commission).
			Msg("execution report")
	case ev.AccountPosition != nil:
		log.Info().Int("balances", len(ev.AccountPosition.Balances)).Msg("account position update")
	case ev.BalanceUpdate != nil:
		log.Info().Str("asset", ev.BalanceUpdate.Asset).Str("delta", ev.BalanceUpdate.Delta).
			Msg("balance update")
	default:
		log.Debug().RawJSON("event", ev.Raw).Msg("unknown user data event")
	}
}

func newCollectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "collect",
		Short: "Run only the market data collector and API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			v := buildVenues(ctx)

			store := collector.NewStore()
			coll := collector.New(v.perpListers(), v.spotListers(), fx.NewProvider(v.httpc), store, cfg.Collector.Interval.Std())
			go coll.Run(ctx)

			return server.New(store, nil).ListenAndServe(cfg.Server.Port)
		},
	}
}

func newExploreTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "explore-test",
		Short: "Collect one snapshot round and print venue data",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			v := buildVenues(ctx)

			store := collector.NewStore()
			coll := collector.New(v.perpListers(), v.spotListers(), fx.NewProvider(v.httpc), store, cfg.Collector.Interval.Std())
			coll.CollectOnce(ctx)

			unified := store.Unified()
			fmt.Printf("collected %d unified snapshots\n", len(unified))
			for i, u := range unified {
				if i >= 20 {
					fmt.Printf("... and %d more\n", len(unified)-i)
					break
				}
				printUnified(u)
			}

			if v.binance.HasCredentials() {
				assets, err := v.binance.FetchAssets(ctx)
				if err != nil {
					log.Warn().Err(err).Msg("binance asset fetch failed")
				} else {
					printAssets("binance", assets)
				}
			}
			if v.bithumb.HasCredentials() {
				assets, err := v.bithumb.FetchAssets(ctx)
				if err != nil {
					log.Warn().Err(err).Msg("bithumb asset fetch failed")
				} else {
					printAssets("bithumb", assets)
				}
			}
			return nil
		},
	}
}

func printUnified(u model.UnifiedSnapshot) {
	line := fmt.Sprintf("%-8s %-12s", u.Venue, u.Symbol)
	if u.Perp != nil {
		line += fmt.Sprintf(" mark=%.4f oi=%.0f funding=%.6f", u.Perp.MarkPrice, u.Perp.OpenInterestQuote, u.Perp.FundingRate)
	}
	if u.Spot != nil {
		line += fmt.Sprintf(" spot=%.4f vol=%.0f", u.Spot.Price, u.Spot.Volume24hQuote)
	}
	fmt.Println(line)
}

func printAssets(venue string, assets []model.Asset) {
	fmt.Printf("%s assets:\n", venue)
	for _, a := range assets {
		fmt.Printf("  %-8s total=%.8f available=%.8f in_use=%.8f\n", a.Currency, a.Total, a.Available, a.InUse)
	}
}

func newArbitrageTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "arbitrage-test",
		Short: "Run the strategy in dry-run mode (no orders are sent)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			v := buildVenues(ctx)

			params, err := strategyParams(true)
			if err != nil {
				return err
			}
			log.Info().
				Str("symbol", params.Symbol).
				Str("mode", string(params.Mode)).
				Float64("entry_bps", params.EntryBps).
				Float64("exit_bps", params.ExitBps).
				Float64("notional", params.Notional).
				Msg("starting dry-run arbitrage test")

			t := binancetrader.NewTrader(v.binance, creds.BinanceKey, creds.BinanceSecret)
			st := strategy.NewIntra(t, model.VenueBinance, params, strategy.NewStateStore(cfg.Strategy.StatePath), nil)
			return st.Run(ctx)
		},
	}
}

func newEmergencyTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "emergency-test",
		Short: "Flatten every open asset to the quote currency",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			v := buildVenues(ctx)

			log.Warn().Msg("emergency liquidation: this sends real orders")

			if v.binance.HasCredentials() {
				t := binancetrader.NewTrader(v.binance, creds.BinanceKey, creds.BinanceSecret)
				if err := t.EnsureExchangeInfo(ctx); err != nil {
					return err
				}
				if err := strategy.LiquidateAll(ctx, v.binance, t, model.CurrencyUSDT); err != nil {
					return err
				}
			}
			if v.bithumb.HasCredentials() {
				t := bithumbtrader.NewTrader(v.bithumb)
				if err := strategy.LiquidateAll(ctx, v.bithumb, t, model.CurrencyKRW); err != nil {
					return err
				}
			}
			log.Info().Msg("emergency liquidation complete")
			return nil
		},
	}
}
