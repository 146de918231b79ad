// Package config loads, defaults, validates and watches the single
// YAML configuration file the host binary runs from.
package config

import (
	"time"

	"wick/internal/broker/binance"
	"wick/internal/strategy"
)

type Config struct {
	App      AppConfig       `toml:"app"`
	Exchange binance.Config  `toml:"exchange"`
	Robot    RobotConfig     `toml:"robot"`
	Trading  TradingConfig   `toml:"trading"`
	Strategy strategy.Config `toml:"strategy"`
	Backtest BacktestConfig  `toml:"backtest"`
}

type AppConfig struct {
	// LogLevel is hot-reloadable; everything else is start-time-fixed.
	LogLevel string `toml:"log_level"`

	// LogPath tees logs into a file next to stderr when set.
	LogPath string `toml:"log_path"`

	// ReportPath is where the end-of-run JSON report lands.
	ReportPath string `toml:"report_path"`
}

type RobotConfig struct {
	InstrumentID string `toml:"instrument_id"`
	Interval     string `toml:"interval"`

	FeedLagRetryDelay time.Duration `toml:"feed_lag_retry_delay"`
	CandleCloseMargin time.Duration `toml:"candle_close_margin"`

	// RunDuration bounds a live run; zero means run until interrupted.
	RunDuration time.Duration `toml:"run_duration"`
}

type TradingConfig struct {
	AccountID              string        `toml:"account_id"`
	LotsPerBet             int64         `toml:"lots_per_bet"`
	MaxConcurrentBets      int           `toml:"max_concurrent_bets"`
	TakeProfitPercent      float64       `toml:"take_profit_percent"`
	StopLossPercent        float64       `toml:"stop_loss_percent"`
	OrderStatePollInterval time.Duration `toml:"order_state_poll_interval"`
}

type BacktestConfig struct {
	From string `toml:"from"`
	To   string `toml:"to"`

	CommissionPercent float64       `toml:"commission_percent"`
	TickDelay         time.Duration `toml:"tick_delay"`

	CacheDir  string `toml:"cache_dir"`
	ChartPath string `toml:"chart_path"`
}

// Window parses the backtest date range. Dates are YYYY-MM-DD in UTC.
func (b BacktestConfig) Window() (time.Time, time.Time, error) {
	from, err := time.ParseInLocation(time.DateOnly, b.From, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := time.ParseInLocation(time.DateOnly, b.To, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to, nil
}
