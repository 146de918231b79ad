package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const validConfig = `
app:
  log_level: debug
robot:
  instrument_id: BTCUSDT
  interval: 5m
trading:
  account_id: spot
  lots_per_bet: 2
  take_profit_percent: 0.02
  stop_loss_percent: 0.01
  order_state_poll_interval: 500ms
strategy:
  name: bollinger
  bollinger:
    periods: 20
    deviation: 2
backtest:
  from: 2024-01-01
  to: 2024-02-01
`

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, "BTCUSDT", cfg.Robot.InstrumentID)
	assert.Equal(t, "5m", cfg.Robot.Interval)
	assert.Equal(t, int64(2), cfg.Trading.LotsPerBet)
	assert.Equal(t, 500*time.Millisecond, cfg.Trading.OrderStatePollInterval)
	assert.Equal(t, "bollinger", cfg.Strategy.Name)
	assert.Equal(t, 20, cfg.Strategy.Bollinger.Periods)

	from, to, err := cfg.Backtest.Window()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), to)
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
robot:
  instrument_id: BTCUSDT
trading:
  take_profit_percent: 0.02
  stop_loss_percent: 0.01
strategy:
  name: sma_cross
  sma_cross:
    fast_periods: 5
    slow_periods: 20
`))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, "1m", cfg.Robot.Interval)
	assert.Equal(t, time.Second, cfg.Robot.FeedLagRetryDelay)
	assert.Equal(t, int64(1), cfg.Trading.LotsPerBet)
	assert.Equal(t, 1, cfg.Trading.MaxConcurrentBets)
	assert.Equal(t, "cache", cfg.Backtest.CacheDir)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"missing instrument": `
trading: {take_profit_percent: 0.02, stop_loss_percent: 0.01}
strategy: {name: bollinger, bollinger: {periods: 20, deviation: 2}}
`,
		"bad interval": `
robot: {instrument_id: BTCUSDT, interval: 7m}
trading: {take_profit_percent: 0.02, stop_loss_percent: 0.01}
strategy: {name: bollinger, bollinger: {periods: 20, deviation: 2}}
`,
		"stop loss not a fraction": `
robot: {instrument_id: BTCUSDT}
trading: {take_profit_percent: 0.02, stop_loss_percent: 2}
strategy: {name: bollinger, bollinger: {periods: 20, deviation: 2}}
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}

func TestLoadRejectsSchemaViolations(t *testing.T) {
	cases := map[string]string{
		"unknown strategy": `
robot: {instrument_id: BTCUSDT}
trading: {take_profit_percent: 0.02, stop_loss_percent: 0.01}
strategy: {name: momentum}
`,
		"missing params block": `
robot: {instrument_id: BTCUSDT}
trading: {take_profit_percent: 0.02, stop_loss_percent: 0.01}
strategy: {name: bollinger}
`,
		"periods below minimum": `
robot: {instrument_id: BTCUSDT}
trading: {take_profit_percent: 0.02, stop_loss_percent: 0.01}
strategy: {name: bollinger, bollinger: {periods: 1, deviation: 2}}
`,
		"wrong param type": `
robot: {instrument_id: BTCUSDT}
trading: {take_profit_percent: 0.02, stop_loss_percent: 0.01}
strategy: {name: sma_cross, sma_cross: {fast_periods: fast, slow_periods: 20}}
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}

func TestDumpRedactsSecret(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig+`
exchange:
  api_key: key
  api_secret: hunter2
`))
	require.NoError(t, err)

	dump, err := cfg.Dump()
	require.NoError(t, err)
	assert.NotContains(t, dump, "hunter2")
	assert.Contains(t, dump, "BTCUSDT")
}
