// Package config
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pouyanh/rsi-trader/internal/tfutils"
)

/*
YAML config example:

mode: backtest
symbol: "ETH-USDT"
timeframe: "15m"
backtest_from: "2025-01-01"
backtest_to: "2025-04-10"
db_conn_str: "host=localhost port=5432 user=postgres dbname=rsitrader sslmode=disable"
api_retry_base_delay: 2s
starting_balance: 100000
slippage_percent: 0.05
commission_percent: 0.05
strategy:
  rsi_period: 14
  oversold_threshold: 30
  overbought_threshold: 70
  stop_loss_pct: 1.5
  take_profit_pct: 3.0
  position_size_pct: 2.0
optimizer:
  max_combinations: 200
  seed: 42
  min_sharpe: 1.5
  min_win_rate: 55
*/

// Duration is a time.Duration that unmarshals from YAML as either a duration
// string ("2s", "500ms") or integer nanoseconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration %q", value.Value)
	}
	*d = Duration(n)
	return nil
}

// StrategyParams is the immutable parameter bundle of the RSI crossover
// strategy. Validate before use; an invalid bundle is fatal at construction.
type StrategyParams struct {
	RSIPeriod           int     `yaml:"rsi_period"`
	OversoldThreshold   float64 `yaml:"oversold_threshold"`
	OverboughtThreshold float64 `yaml:"overbought_threshold"`
	StopLossPct         float64 `yaml:"stop_loss_pct"`
	TakeProfitPct       float64 `yaml:"take_profit_pct"`
	PositionSizePct     float64 `yaml:"position_size_pct"`
}

// Validate checks threshold ordering and percentage bounds.
func (p StrategyParams) Validate() error {
	if p.RSIPeriod < 2 {
		return fmt.Errorf("rsi_period must be >= 2, got %d", p.RSIPeriod)
	}
	if p.OversoldThreshold <= 0 || p.OverboughtThreshold >= 100 || p.OversoldThreshold >= p.OverboughtThreshold {
		return fmt.Errorf("thresholds must satisfy 0 < oversold < overbought < 100, got oversold=%.2f overbought=%.2f",
			p.OversoldThreshold, p.OverboughtThreshold)
	}
	if p.StopLossPct <= 0 {
		return errors.New("stop_loss_pct must be positive")
	}
	if p.TakeProfitPct <= 0 {
		return errors.New("take_profit_pct must be positive")
	}
	if p.PositionSizePct <= 0 || p.PositionSizePct > 100 {
		return fmt.Errorf("position_size_pct must be in (0, 100], got %.2f", p.PositionSizePct)
	}
	return nil
}

// DefaultStrategyParams mirrors the stock RSI(14) 30/70 setup.
func DefaultStrategyParams() StrategyParams {
	return StrategyParams{
		RSIPeriod:           14,
		OversoldThreshold:   30,
		OverboughtThreshold: 70,
		StopLossPct:         1.5,
		TakeProfitPct:       3.0,
		PositionSizePct:     2.0,
	}
}

// OptimizerParams bounds the grid search and filters its output.
type OptimizerParams struct {
	MaxCombinations int     `yaml:"max_combinations"`
	Seed            int64   `yaml:"seed"`
	MinSharpe       float64 `yaml:"min_sharpe"`
	MinWinRate      float64 `yaml:"min_win_rate"`
	MaxDrawdownPct  float64 `yaml:"max_drawdown_pct"`
	TopN            int     `yaml:"top_n"`
}

type Config struct {
	Mode      string `yaml:"mode"`
	Symbol    string `yaml:"symbol"`
	Timeframe string `yaml:"timeframe"`

	BacktestFrom time.Time `yaml:"backtest_from"`
	BacktestTo   time.Time `yaml:"backtest_to"`

	DBConnStr string `yaml:"db_conn_str"`
	DBMaxOpen int    `yaml:"db_max_open"`
	DBMaxIdle int    `yaml:"db_max_idle"`

	ProxyURL            string   `yaml:"proxy_url"`
	APIRetryMaxAttempts int      `yaml:"api_retry_max_attempts"`
	APIRetryBaseDelay   Duration `yaml:"api_retry_base_delay"`
	APIRetryMaxDelay    Duration `yaml:"api_retry_max_delay"`

	StartingBalance   float64 `yaml:"starting_balance"`
	SlippagePercent   float64 `yaml:"slippage_percent"`
	CommissionPercent float64 `yaml:"commission_percent"`

	SyntheticDays int   `yaml:"synthetic_days"`
	SyntheticSeed int64 `yaml:"synthetic_seed"`

	WallexAPIKey   string `yaml:"wallex_api_key"`
	TelegramToken  string `yaml:"telegram_token"`
	TelegramChatID string `yaml:"telegram_chat_id"`

	ResultsDir  string `yaml:"results_dir"`
	MetricsAddr string `yaml:"metrics_addr"`

	Strategy  StrategyParams  `yaml:"strategy"`
	Optimizer OptimizerParams `yaml:"optimizer"`
}

// Validate checks the whole config; strategy params are validated with it.
func (c Config) Validate() error {
	switch c.Mode {
	case "backtest", "optimize", "synth":
	default:
		return fmt.Errorf("unsupported mode %q", c.Mode)
	}
	if c.Symbol == "" {
		return errors.New("symbol cannot be empty")
	}
	if !tfutils.IsValidTimeframe(c.Timeframe) {
		return fmt.Errorf("unsupported timeframe %q", c.Timeframe)
	}
	if c.StartingBalance <= 0 {
		return errors.New("starting_balance must be positive")
	}
	if !c.BacktestTo.After(c.BacktestFrom) {
		return errors.New("backtest window is empty")
	}
	return c.Strategy.Validate()
}

// Load builds the configuration from flags, falling back to a YAML file when
// -config is given. The file, if present, wins wholesale like a deployment
// profile; flags cover the interactive case.
func Load() (Config, error) {
	mode := flag.String("mode", "backtest", "Mode: backtest, optimize or synth")
	symbol := flag.String("symbol", "ETH-USDT", "Trading symbol")
	timeframe := flag.String("timeframe", "15m", "Candle timeframe")
	from := flag.String("from", time.Now().AddDate(0, 0, -100).Format("2006-01-02"), "Backtest start date (YYYY-MM-DD)")
	to := flag.String("to", time.Now().Format("2006-01-02"), "Backtest end date (YYYY-MM-DD)")
	startingBalance := flag.Float64("starting-balance", 100000, "Starting account balance")
	slippagePercent := flag.Float64("slippage-percent", 0.05, "Slippage percent per fill")
	commissionPercent := flag.Float64("commission-percent", 0.05, "Commission percent per fill")
	rsiPeriod := flag.Int("rsi-period", 14, "RSI lookback period")
	oversold := flag.Float64("oversold", 30, "RSI oversold threshold (long entry)")
	overbought := flag.Float64("overbought", 70, "RSI overbought threshold (short entry)")
	stopLossPct := flag.Float64("stop-loss-percent", 1.5, "Stop loss percent from entry")
	takeProfitPct := flag.Float64("take-profit-percent", 3.0, "Take profit percent from entry")
	positionSizePct := flag.Float64("position-size-percent", 2.0, "Position size as percent of free equity")
	maxCombinations := flag.Int("max-combinations", 200, "Grid search combination cap")
	seed := flag.Int64("seed", 42, "Seed for grid sub-sampling and synthetic data")
	syntheticDays := flag.Int("synthetic-days", 100, "Days of synthetic data to generate")
	resultsDir := flag.String("results-dir", "results", "Directory for CSV results")
	metricsAddr := flag.String("metrics-addr", "", "Listen address for prometheus metrics (empty disables)")
	proxyURL := flag.String("proxy-url", "", "Optional HTTP proxy for candle downloads")
	telegramToken := flag.String("telegram-token", "", "Telegram bot token for notifications")
	telegramChatID := flag.String("telegram-chat", "", "Telegram chat ID for notifications")
	configFile := flag.String("config", "", "Path to YAML config file")
	flag.Parse()

	if *configFile != "" {
		data, err := os.ReadFile(*configFile)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
		applyDefaults(&fileCfg)
		return fileCfg, fileCfg.Validate()
	}

	fromTime, err := time.Parse("2006-01-02", *from)
	if err != nil {
		return Config{}, fmt.Errorf("invalid -from date: %w", err)
	}
	toTime, err := time.Parse("2006-01-02", *to)
	if err != nil {
		return Config{}, fmt.Errorf("invalid -to date: %w", err)
	}

	cfg := Config{
		Mode:              *mode,
		Symbol:            *symbol,
		Timeframe:         *timeframe,
		BacktestFrom:      fromTime,
		BacktestTo:        toTime,
		DBConnStr:         os.Getenv("DB_CONN_STR"),
		ProxyURL:          *proxyURL,
		StartingBalance:   *startingBalance,
		SlippagePercent:   *slippagePercent,
		CommissionPercent: *commissionPercent,
		SyntheticDays:     *syntheticDays,
		SyntheticSeed:     *seed,
		WallexAPIKey:      os.Getenv("WALLEX_API_KEY"),
		TelegramToken:     *telegramToken,
		TelegramChatID:    *telegramChatID,
		ResultsDir:        *resultsDir,
		MetricsAddr:       *metricsAddr,
		Strategy: StrategyParams{
			RSIPeriod:           *rsiPeriod,
			OversoldThreshold:   *oversold,
			OverboughtThreshold: *overbought,
			StopLossPct:         *stopLossPct,
			TakeProfitPct:       *takeProfitPct,
			PositionSizePct:     *positionSizePct,
		},
		Optimizer: OptimizerParams{
			MaxCombinations: *maxCombinations,
			Seed:            *seed,
		},
	}
	applyDefaults(&cfg)
	return cfg, cfg.Validate()
}

func applyDefaults(cfg *Config) {
	if cfg.DBMaxOpen == 0 {
		cfg.DBMaxOpen = 10
	}
	if cfg.DBMaxIdle == 0 {
		cfg.DBMaxIdle = 5
	}
	if cfg.APIRetryMaxAttempts == 0 {
		cfg.APIRetryMaxAttempts = 3
	}
	if cfg.APIRetryBaseDelay == 0 {
		cfg.APIRetryBaseDelay = Duration(2 * time.Second)
	}
	if cfg.APIRetryMaxDelay == 0 {
		cfg.APIRetryMaxDelay = Duration(15 * time.Second)
	}
	if cfg.Optimizer.TopN == 0 {
		cfg.Optimizer.TopN = 10
	}
	if cfg.ResultsDir == "" {
		cfg.ResultsDir = "results"
	}
}
