// Command basisarb runs the basis-arbitrage platform: the multi-venue market
// data collector, the read-only API server and the strategy engine.
package main

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/quantfold/basisarb/internal/applog"
	"github.com/quantfold/basisarb/internal/config"
)

var (
	cfgPath string
	cfg     config.Config
	creds   config.Credentials
)

func main() {
	root := &cobra.Command{
		Use:          "basisarb",
		Short:        "Cryptocurrency basis-arbitrage execution platform",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(cfgPath)
			if err != nil {
				return err
			}
			applog.Setup(cfg.LogDir, zerolog.InfoLevel)
			creds = config.LoadCredentials()
			return nil
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "path to the configuration file")

	root.AddCommand(
		newRunCmd(),
		newCollectCmd(),
		newExploreTestCmd(),
		newArbitrageTestCmd(),
		newEmergencyTestCmd(),
	)

	if err := root.ExecuteContext(context.Background()); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
