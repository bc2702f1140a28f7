// Package config loads the YAML runtime configuration and the venue
// credentials from the environment.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Duration parses "10s"-style strings from YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std converts back to the standard type.
func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	LogDir    string          `yaml:"log_dir"`
	Collector CollectorConfig `yaml:"collector"`
	Server    ServerConfig    `yaml:"server"`
	Record    RecordConfig    `yaml:"record"`
	Strategy  StrategyConfig  `yaml:"strategy"`
	Cross     CrossConfig     `yaml:"cross"`
}

type CollectorConfig struct {
	Interval Duration `yaml:"interval"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type RecordConfig struct {
	Path string `yaml:"path"`
}

type StrategyConfig struct {
	Symbol          string        `yaml:"symbol"`
	Mode            string        `yaml:"mode"`
	EntryBps        float64       `yaml:"entry_bps"`
	ExitBps         float64       `yaml:"exit_bps"`
	Notional        float64       `yaml:"notional"`
	Leverage        int           `yaml:"leverage"`
	Isolated        bool          `yaml:"isolated"`
	DryRun          bool          `yaml:"dry_run"`
	TickInterval    Duration `yaml:"tick_interval"`
	StalenessBudget Duration `yaml:"staleness_budget"`
	StatePath       string   `yaml:"state_path"`
}

type CrossConfig struct {
	Enabled          bool    `yaml:"enabled"`
	PrimaryVenue     string  `yaml:"primary_venue"`
	PrimarySymbol    string  `yaml:"primary_symbol"`
	PrimaryNotional  float64 `yaml:"primary_notional"`
	PrimaryBaseAsset string  `yaml:"primary_base_asset"`
	HedgeVenue       string  `yaml:"hedge_venue"`
	HedgeSymbol      string  `yaml:"hedge_symbol"`
	HedgeNotional    float64 `yaml:"hedge_notional"`
	FxAdjustment     float64 `yaml:"fx_adjustment"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		LogDir:    "logs",
		Collector: CollectorConfig{Interval: Duration(10 * time.Second)},
		Server:    ServerConfig{Port: 8090},
		Record:    RecordConfig{Path: "basisarb.db"},
		Strategy: StrategyConfig{
			Symbol:          "BTCUSDT",
			Mode:            "carry",
			EntryBps:        2.0,
			ExitBps:         0.2,
			Notional:        100,
			Leverage:        1,
			TickInterval:    Duration(100 * time.Microsecond),
			StalenessBudget: Duration(2 * time.Second),
			StatePath:       "arb_state.json",
		},
		Cross: CrossConfig{FxAdjustment: 1},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Strategy.EntryBps <= cfg.Strategy.ExitBps {
		return cfg, fmt.Errorf("entry_bps (%v) must be greater than exit_bps (%v)",
			cfg.Strategy.EntryBps, cfg.Strategy.ExitBps)
	}
	return cfg, nil
}

// Credentials are per-venue API keys pulled from the environment. Empty
// fields leave the venue public-only.
type Credentials struct {
	BinanceKey    string
	BinanceSecret string
	BithumbKey    string
	BithumbSecret string
}

// LoadCredentials reads .env when present, then the process environment.
func LoadCredentials() Credentials {
	_ = godotenv.Load()
	return Credentials{
		BinanceKey:    os.Getenv("BINANCE_API_KEY"),
		BinanceSecret: os.Getenv("BINANCE_API_SECRET"),
		BithumbKey:    os.Getenv("BITHUMB_API_KEY"),
		BithumbSecret: os.Getenv("BITHUMB_API_SECRET"),
	}
}
