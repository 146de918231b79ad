package strategy

import (
	"fmt"

	talib "github.com/markcheno/go-talib"

	"wick/internal/market"
)

type SMACrossConfig struct {
	FastPeriods int `toml:"fast_periods" json:"fast_periods"`
	SlowPeriods int `toml:"slow_periods" json:"slow_periods"`
}

// SMACross emits a buy when the fast moving average crosses above the
// slow one on the freshest candle, and a sell on the opposite cross.
type SMACross struct {
	cfg SMACrossConfig
}

func NewSMACross(cfg SMACrossConfig) (*SMACross, error) {
	if cfg.FastPeriods <= 1 {
		return nil, fmt.Errorf("sma_cross: fast_periods must be 2 or more, got %d", cfg.FastPeriods)
	}
	if cfg.SlowPeriods <= cfg.FastPeriods {
		return nil, fmt.Errorf("sma_cross: slow_periods must exceed fast_periods, got fast=%d slow=%d",
			cfg.FastPeriods, cfg.SlowPeriods)
	}
	return &SMACross{cfg: cfg}, nil
}

func (s *SMACross) Predict(candles []market.Candle) (Action, bool) {
	// One extra candle so the previous fast/slow relation is defined.
	need := s.MinimalCandles()
	if len(candles) < need {
		return "", false
	}

	window := market.LastN(candles, need)
	closes := make([]float64, len(window))
	for i, c := range window {
		closes[i] = c.Close.InexactFloat64()
	}

	fast := talib.Sma(closes, s.cfg.FastPeriods)
	slow := talib.Sma(closes, s.cfg.SlowPeriods)

	n := len(closes)
	prevDelta := fast[n-2] - slow[n-2]
	currDelta := fast[n-1] - slow[n-1]

	switch {
	case prevDelta <= 0 && currDelta > 0:
		return ActionBuy, true
	case prevDelta >= 0 && currDelta < 0:
		return ActionSell, true
	}
	return "", false
}

func (s *SMACross) MinimalCandles() int {
	return s.cfg.SlowPeriods + 1
}

func (s *SMACross) Name() string {
	return fmt.Sprintf("sma_cross(fast=%d, slow=%d)", s.cfg.FastPeriods, s.cfg.SlowPeriods)
}
