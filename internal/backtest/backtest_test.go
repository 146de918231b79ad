package backtest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wick/internal/broker"
	"wick/internal/market"
	"wick/internal/strategy"
	"wick/internal/trader"
)

type fixedSource struct {
	candles []market.Candle
	calls   int
}

func (s *fixedSource) GetCandles(context.Context, broker.GetCandlesRequest) ([]market.Candle, error) {
	s.calls++
	return s.candles, nil
}

func (s *fixedSource) GetLastCandles(context.Context, broker.GetLastCandlesRequest) ([]market.Candle, error) {
	return nil, nil
}

// buyAt signals a buy whenever the last close equals the trigger.
type buyAt struct {
	trigger decimal.Decimal
}

func (b buyAt) Predict(candles []market.Candle) (strategy.Action, bool) {
	if candles[len(candles)-1].Close.Equal(b.trigger) {
		return strategy.ActionBuy, true
	}
	return "", false
}

func (buyAt) MinimalCandles() int { return 1 }
func (buyAt) Name() string        { return "buy_at" }

func candleOHLC(t time.Time, open, high, low, clos float64) market.Candle {
	return market.Candle{
		Open:       decimal.NewFromFloat(open),
		High:       decimal.NewFromFloat(high),
		Low:        decimal.NewFromFloat(low),
		Close:      decimal.NewFromFloat(clos),
		Time:       t,
		IsComplete: true,
	}
}

func replaySeries(t0 time.Time) []market.Candle {
	step := market.Interval1Min.Duration()
	return []market.Candle{
		candleOHLC(t0, 100, 100, 100, 100),                 // entry signal at 100
		candleOHLC(t0.Add(step), 100, 103, 100, 103),       // take-profit tick at 103
		candleOHLC(t0.Add(2*step), 103, 103.5, 102.5, 103), // flat tail
	}
}

func replayConfig(t0 time.Time) Config {
	return Config{
		InstrumentID: "BTCUSDT",
		Interval:     market.Interval1Min,
		From:         t0,
		To:           t0.Add(time.Hour),
		Strategy:     buyAt{trigger: decimal.NewFromInt(100)},
		Instrument:   broker.Instrument{Lot: 1},
		Trader: trader.Config{
			LotsPerBet:        1,
			MaxConcurrentBets: 1,
			TakeProfitPercent: 0.02,
			StopLossPercent:   0.02,
		},
	}
}

func TestReplayExitsOnSyntheticTick(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	src := &fixedSource{candles: replaySeries(t0)}

	bt, err := New(replayConfig(t0), src)
	require.NoError(t, err)

	result, err := bt.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Signals, 1)
	require.Len(t, result.Realizations, 1)
	snap := result.Realizations[result.Signals[0].ID()]
	assert.Equal(t, trader.StatusSuccessful, snap.Status,
		"the 103 tick crosses the 102 take-profit and closes the position")
	assert.NotEmpty(t, snap.OpenOrderID)
	assert.NotEmpty(t, snap.CloseOrderID)
}

func TestNoExitFromSignalCandleTicks(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	step := market.Interval1Min.Duration()

	// The signal candle spikes to 103 before closing at 100, and nothing
	// after entry trades above 100.5. A position opened at the close must
	// not take profit off the spike it never saw.
	src := &fixedSource{candles: []market.Candle{
		candleOHLC(t0, 100, 103, 100, 100),
		candleOHLC(t0.Add(step), 100, 100.5, 99.5, 100.5),
		candleOHLC(t0.Add(2*step), 100.5, 100.5, 99.5, 100.5),
	}}

	bt, err := New(replayConfig(t0), src)
	require.NoError(t, err)
	result, err := bt.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Signals, 1)
	snap := result.Realizations[result.Signals[0].ID()]
	assert.Equal(t, trader.StatusFailed, snap.Status,
		"no post-entry tick crosses a threshold, so only the forced finish closes the run")
	assert.Empty(t, snap.CloseOrderID)
}

func TestReplayIsDeterministic(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	run := func() Result {
		src := &fixedSource{candles: replaySeries(t0)}
		bt, err := New(replayConfig(t0), src)
		require.NoError(t, err)
		result, err := bt.Run(context.Background())
		require.NoError(t, err)
		return result
	}

	first, second := run(), run()

	assert.Equal(t, first.Candles, second.Candles)
	require.Equal(t, len(first.Signals), len(second.Signals))
	for i := range first.Signals {
		assert.Equal(t, first.Signals[i].Action, second.Signals[i].Action)
		assert.True(t, first.Signals[i].LastCandle.Time.Equal(second.Signals[i].LastCandle.Time))
	}
	require.Equal(t, len(first.Realizations), len(second.Realizations))
	for i := range first.Signals {
		a := first.Realizations[first.Signals[i].ID()]
		b := second.Realizations[second.Signals[i].ID()]
		assert.Equal(t, a.Status, b.Status)
		assert.Equal(t, a.Error, b.Error)
	}
}

func TestReplayServedFromCacheWithoutSource(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	dir := t.TempDir()

	cfg := replayConfig(t0)
	cfg.CacheDir = dir

	// First run populates the cache through the source.
	src := &fixedSource{candles: replaySeries(t0)}
	bt, err := New(cfg, src)
	require.NoError(t, err)
	_, err = bt.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)

	// Second run has no source at all and still replays.
	btCached, err := New(cfg, nil)
	require.NoError(t, err)
	result, err := btCached.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Candles)
}

func TestChartRendered(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	src := &fixedSource{candles: replaySeries(t0)}

	cfg := replayConfig(t0)
	cfg.ChartPath = filepath.Join(t.TempDir(), "run.html")

	bt, err := New(cfg, src)
	require.NoError(t, err)
	_, err = bt.Run(context.Background())
	require.NoError(t, err)

	info, statErr := os.Stat(cfg.ChartPath)
	require.NoError(t, statErr)
	assert.Greater(t, info.Size(), int64(0))
}
