// Package config defines all configuration for the order-flow signal engine.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive and operational fields overridable via FLOW_* environment
// variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	Exchange   ExchangeConfig   `mapstructure:"exchange"`
	Book       BookConfig       `mapstructure:"book"`
	Flow       FlowConfig       `mapstructure:"flow"`
	Signal     SignalConfig     `mapstructure:"signal"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Output     OutputConfig     `mapstructure:"output"`
}

// ExchangeConfig names the market and the endpoints the Exchange Connector
// dials. Symbol/Name are descriptive only; the connector is exchange-generic
// as long as the wire shapes match spec.md §3.
type ExchangeConfig struct {
	Name          string `mapstructure:"name"`
	Symbol        string `mapstructure:"symbol"`
	RESTBaseURL   string `mapstructure:"rest_base_url"`
	DepthEndpoint string `mapstructure:"depth_endpoint"`
	DiffStreamURL string `mapstructure:"diff_stream_url"`
	TradeStreamURL string `mapstructure:"trade_stream_url"`
	SnapshotLimit int    `mapstructure:"snapshot_limit"`
}

// BookConfig tunes the Order Book's level bookkeeping.
//
//   - MaxLevels: target depth kept per side; levels beyond 2x this count,
//     more than 1% away from mid, are evicted.
//   - StaleAfter: book is considered stale if not updated within this window.
type BookConfig struct {
	MaxLevels  int           `mapstructure:"max_levels"`
	StaleAfter time.Duration `mapstructure:"stale_after"`
}

// FlowConfig tunes the Flow Analyzer: delta window, volatility, liquidity
// sweep, and absorption detection.
//
//   - DeltaWindowSeconds: base width of the buy/sell volume window before
//     ATR adaptation (W_t = base x clamp(0.0001/ATR, 0.6, 2.0)).
//   - TradeHistorySeconds: how long raw trades are retained in the trade buffer.
//   - AbsorptionWindowSeconds / AbsorptionMinTrades: the window absorption
//     detection looks back over, and the minimum trade count required
//     before it evaluates.
//   - AbsorptionThreshold: minimum aggressive volume absorption must clear
//     before the volume/depth ratio gate is even checked.
//   - MinAbsorptionRatio: the volume/depth ratio gate itself.
//   - PriceMovementThreshold: base max price move (as a fraction) for
//     absorption, volatility-adjusted.
//   - SweepMinLevels: minimum adjacent removed levels to consider a sweep.
//   - SweepConfirmWindowMs: freshness bound for sweep detection; a sweep is
//     only looked for when the previous book copy is at most this old. The
//     trade-confirmation lookback is a fixed 2 seconds, not this value.
//   - MinSweepNotional / MinTradeConfirmNotional: dollar gates for sweep
//     detection and its confirming trade.
//   - ATRLookback: number of most-recent per-trade price changes averaged
//     into the ATR proxy (spec.md §4.3: "the last 20 trades").
type FlowConfig struct {
	DeltaWindowSeconds      float64       `mapstructure:"delta_window_seconds"`
	TradeHistorySeconds     float64       `mapstructure:"trade_history_seconds"`
	AbsorptionWindowSeconds float64       `mapstructure:"absorption_window_seconds"`
	AbsorptionMinTrades     int           `mapstructure:"absorption_min_trades"`
	AbsorptionThreshold     float64       `mapstructure:"absorption_threshold"`
	MinAbsorptionRatio      float64       `mapstructure:"min_absorption_ratio"`
	PriceMovementThreshold  float64       `mapstructure:"price_movement_threshold"`
	SweepMinLevels          int           `mapstructure:"sweep_min_levels"`
	SweepConfirmWindowMs    int64         `mapstructure:"sweep_confirm_window_ms"`
	MinSweepNotional        float64       `mapstructure:"min_sweep_notional"`
	MinTradeConfirmNotional float64       `mapstructure:"min_trade_confirm_notional"`
	ATRLookback             int           `mapstructure:"atr_lookback"`
}

// SignalConfig tunes the Signal Generator.
//
//   - CooldownSeconds: minimum gap between emitted signals.
//   - MinDeltaFlip: base magnitude a delta must cross to count as a flip,
//     ATR-adjusted upward in volatile regimes.
//   - HistorySize: capacity of the emitted-signal ring buffer.
type SignalConfig struct {
	CooldownSeconds float64 `mapstructure:"cooldown_seconds"`
	MinDeltaFlip    float64 `mapstructure:"min_delta_flip"`
	HistorySize     int     `mapstructure:"history_size"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// OutputConfig controls the console printer, CSV signal log, and optional
// status/signal dashboard.
type OutputConfig struct {
	Mode             string   `mapstructure:"mode"` // normal|quiet|silent
	Color            bool     `mapstructure:"color"`
	CSVPath          string   `mapstructure:"csv_path"` // empty disables CSV logging
	DashboardEnabled bool     `mapstructure:"dashboard_enabled"`
	DashboardPort    int      `mapstructure:"dashboard_port"`
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
}

// Load reads config from a YAML file with env var overrides.
// Operational fields use env vars: FLOW_EXCHANGE_DIFF_STREAM_URL,
// FLOW_EXCHANGE_TRADE_STREAM_URL, FLOW_OUTPUT_CSV_PATH, FLOW_LOGGING_LEVEL.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("FLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if url := os.Getenv("FLOW_EXCHANGE_DIFF_STREAM_URL"); url != "" {
		cfg.Exchange.DiffStreamURL = url
	}
	if url := os.Getenv("FLOW_EXCHANGE_TRADE_STREAM_URL"); url != "" {
		cfg.Exchange.TradeStreamURL = url
	}
	if path := os.Getenv("FLOW_OUTPUT_CSV_PATH"); path != "" {
		cfg.Output.CSVPath = path
	}
	if level := os.Getenv("FLOW_LOGGING_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Exchange.Symbol == "" {
		return fmt.Errorf("exchange.symbol is required")
	}
	if c.Exchange.RESTBaseURL == "" {
		return fmt.Errorf("exchange.rest_base_url is required")
	}
	if c.Exchange.DiffStreamURL == "" {
		return fmt.Errorf("exchange.diff_stream_url is required")
	}
	if c.Exchange.TradeStreamURL == "" {
		return fmt.Errorf("exchange.trade_stream_url is required")
	}
	if c.Book.MaxLevels <= 0 {
		return fmt.Errorf("book.max_levels must be > 0")
	}
	if c.Flow.DeltaWindowSeconds <= 0 {
		return fmt.Errorf("flow.delta_window_seconds must be > 0")
	}
	if c.Flow.SweepMinLevels <= 0 {
		return fmt.Errorf("flow.sweep_min_levels must be > 0")
	}
	if c.Flow.MinSweepNotional <= 0 {
		return fmt.Errorf("flow.min_sweep_notional must be > 0")
	}
	if c.Signal.CooldownSeconds <= 0 {
		return fmt.Errorf("signal.cooldown_seconds must be > 0")
	}
	if c.Signal.HistorySize <= 0 {
		return fmt.Errorf("signal.history_size must be > 0")
	}
	switch c.Output.Mode {
	case "normal", "quiet", "silent":
	default:
		return fmt.Errorf("output.mode must be one of: normal, quiet, silent")
	}
	return nil
}
