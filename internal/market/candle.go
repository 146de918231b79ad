// Package market holds the exchange-facing data model: candles,
// intervals and trading days. Prices are decimals end to end; binary
// floating point would bias profit/loss math and threshold comparisons.
package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle is an OHLC summary for one interval bucket. Immutable once
// observed.
type Candle struct {
	Open  decimal.Decimal `json:"open"`
	Close decimal.Decimal `json:"close"`
	High  decimal.Decimal `json:"high"`
	Low   decimal.Decimal `json:"low"`

	// Time is the candle open time.
	Time time.Time `json:"time"`

	// IsComplete is false while the candle's interval is still running.
	// Strategies must only ever see complete candles.
	IsComplete bool `json:"is_complete"`
}

// CloseTime is the nominal end of the candle's bucket.
func (c Candle) CloseTime(interval Interval) time.Time {
	return c.Time.Add(interval.Duration())
}

// BodyLow returns the lesser of open and close.
func (c Candle) BodyLow() decimal.Decimal {
	if c.Open.GreaterThan(c.Close) {
		return c.Close
	}
	return c.Open
}

// BodyHigh returns the greater of open and close.
func (c Candle) BodyHigh() decimal.Decimal {
	if c.Open.GreaterThan(c.Close) {
		return c.Open
	}
	return c.Close
}

// CompleteOnly filters candles down to the complete ones, keeping order.
func CompleteOnly(candles []Candle) []Candle {
	out := make([]Candle, 0, len(candles))
	for _, c := range candles {
		if c.IsComplete {
			out = append(out, c)
		}
	}
	return out
}

// LastN returns the most recent n candles (all of them when fewer).
func LastN(candles []Candle, n int) []Candle {
	if n <= 0 || len(candles) <= n {
		return candles
	}
	return candles[len(candles)-n:]
}
