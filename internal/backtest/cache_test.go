package backtest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wick/internal/broker"
	"wick/internal/market"
)

func cacheRequest(t0 time.Time) broker.GetCandlesRequest {
	return broker.GetCandlesRequest{
		InstrumentID: "BTCUSDT",
		Interval:     market.Interval1Min,
		From:         t0,
		To:           t0.Add(time.Hour),
	}
}

func TestCandleCacheRoundTrip(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	cache := NewCandleCache(t.TempDir())
	req := cacheRequest(t0)
	candles := replaySeries(t0)

	_, ok := cache.Load(req)
	assert.False(t, ok)

	cache.Store(req, candles)
	loaded, ok := cache.Load(req)
	require.True(t, ok)
	require.Len(t, loaded, len(candles))
	for i := range candles {
		assert.True(t, candles[i].Close.Equal(loaded[i].Close))
		assert.True(t, candles[i].Time.Equal(loaded[i].Time))
	}
}

func TestCandleCacheIgnoresMalformedFile(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	dir := t.TempDir()
	cache := NewCandleCache(dir)
	req := cacheRequest(t0)

	cache.Store(req, replaySeries(t0))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NoError(t, os.WriteFile(filepath.Join(dir, entries[0].Name()), []byte("{not json"), 0o644))

	_, ok := cache.Load(req)
	assert.False(t, ok)
}

func TestCandleCacheWriteFailureIsNonFatal(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	// The cache dir path collides with a regular file; Store must just
	// log and move on.
	cache := NewCandleCache(filepath.Join(blocker, "cache"))
	cache.Store(cacheRequest(t0), replaySeries(t0))

	_, ok := cache.Load(cacheRequest(t0))
	assert.False(t, ok)
}
