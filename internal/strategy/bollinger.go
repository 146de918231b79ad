package strategy

import (
	"fmt"

	talib "github.com/markcheno/go-talib"
	"github.com/shopspring/decimal"

	"wick/internal/market"
)

type BollingerConfig struct {
	Periods   int     `toml:"periods" json:"periods"`
	Deviation float64 `toml:"deviation" json:"deviation"`
}

// Bollinger emits a buy when the close breaks above the upper band and
// a sell when it breaks below the lower band.
type Bollinger struct {
	cfg BollingerConfig
}

func NewBollinger(cfg BollingerConfig) (*Bollinger, error) {
	if cfg.Periods <= 1 {
		return nil, fmt.Errorf("bollinger: periods must be 2 or more, got %d", cfg.Periods)
	}
	if cfg.Deviation <= 0 {
		return nil, fmt.Errorf("bollinger: deviation must be positive, got %v", cfg.Deviation)
	}
	return &Bollinger{cfg: cfg}, nil
}

func (b *Bollinger) Predict(candles []market.Candle) (Action, bool) {
	if len(candles) < b.cfg.Periods {
		return "", false
	}

	window := market.LastN(candles, b.cfg.Periods)
	closes := make([]float64, len(window))
	for i, c := range window {
		closes[i] = c.Close.InexactFloat64()
	}

	upper, _, lower := talib.BBands(
		closes,
		b.cfg.Periods,
		b.cfg.Deviation,
		b.cfg.Deviation,
		talib.SMA,
	)

	last := window[len(window)-1].Close
	upperBand := decimal.NewFromFloat(upper[len(upper)-1])
	lowerBand := decimal.NewFromFloat(lower[len(lower)-1])

	switch {
	case last.GreaterThanOrEqual(upperBand):
		return ActionBuy, true
	case last.LessThanOrEqual(lowerBand):
		return ActionSell, true
	}
	return "", false
}

func (b *Bollinger) MinimalCandles() int {
	return b.cfg.Periods
}

func (b *Bollinger) Name() string {
	return fmt.Sprintf("bollinger(periods=%d, deviation=%v)", b.cfg.Periods, b.cfg.Deviation)
}
