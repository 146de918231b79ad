package backtest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"

	"wick/internal/broker"
	"wick/internal/logger"
	"wick/internal/market"
)

// CandleCache is a flat-file cache of historical candle ranges, one
// JSON file per (instrument, interval, from, to) tuple. Cache failures
// are never fatal: a broken or missing file just means a refetch.
type CandleCache struct {
	dir string
}

func NewCandleCache(dir string) *CandleCache {
	return &CandleCache{dir: dir}
}

type cacheEntry struct {
	InstrumentID string          `json:"instrument_id"`
	Interval     market.Interval `json:"interval"`
	FromUnix     int64           `json:"from_unix"`
	ToUnix       int64           `json:"to_unix"`
	Candles      []market.Candle `json:"candles"`
}

func (c *CandleCache) path(req broker.GetCandlesRequest) string {
	name := fmt.Sprintf("%s_%s_%d_%d.json",
		req.InstrumentID, req.Interval, req.From.Unix(), req.To.Unix())
	return filepath.Join(c.dir, name)
}

// Load returns the cached candles for the exact range, or ok=false.
func (c *CandleCache) Load(req broker.GetCandlesRequest) ([]market.Candle, bool) {
	if c == nil || c.dir == "" {
		return nil, false
	}
	path := c.path(req)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	if !gjson.ValidBytes(raw) || !gjson.GetBytes(raw, "candles").IsArray() {
		logger.Warnf("CandleCache: malformed cache file path=%s, ignoring", path)
		return nil, false
	}
	var entry cacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		logger.Warnf("CandleCache: unreadable cache file path=%s err=%v", path, err)
		return nil, false
	}
	if entry.InstrumentID != req.InstrumentID || entry.Interval != req.Interval {
		logger.Warnf("CandleCache: key mismatch in path=%s, ignoring", path)
		return nil, false
	}
	logger.Debugf("CandleCache: hit path=%s candles=%d", path, len(entry.Candles))
	return entry.Candles, true
}

// Store writes the range to disk. Errors are logged and swallowed.
func (c *CandleCache) Store(req broker.GetCandlesRequest, candles []market.Candle) {
	if c == nil || c.dir == "" {
		return
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		logger.Warnf("CandleCache: cannot create dir=%s err=%v", c.dir, err)
		return
	}
	entry := cacheEntry{
		InstrumentID: req.InstrumentID,
		Interval:     req.Interval,
		FromUnix:     req.From.Unix(),
		ToUnix:       req.To.Unix(),
		Candles:      candles,
	}
	raw, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		logger.Warnf("CandleCache: marshal failed err=%v", err)
		return
	}
	path := c.path(req)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		logger.Warnf("CandleCache: write failed path=%s err=%v", path, err)
		return
	}
	logger.Debugf("CandleCache: stored path=%s candles=%d", path, len(candles))
}
