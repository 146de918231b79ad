package strategy

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wick/internal/market"
)

func candlesFromCloses(closes ...float64) []market.Candle {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	out := make([]market.Candle, len(closes))
	for i, cl := range closes {
		price := decimal.NewFromFloat(cl)
		out[i] = market.Candle{
			Open:       price,
			Close:      price,
			High:       price,
			Low:        price,
			Time:       base.Add(time.Duration(i) * time.Minute),
			IsComplete: true,
		}
	}
	return out
}

func TestNewSelectsKnownStrategies(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "bollinger",
			cfg:  Config{Name: "bollinger", Bollinger: BollingerConfig{Periods: 20, Deviation: 2}},
		},
		{
			name: "sma_cross",
			cfg:  Config{Name: "sma_cross", SMACross: SMACrossConfig{FastPeriods: 5, SlowPeriods: 20}},
		},
		{
			name:    "unknown",
			cfg:     Config{Name: "momentum"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.name, s.Name()[:len(tt.name)])
		})
	}
}

func TestBollingerValidation(t *testing.T) {
	_, err := NewBollinger(BollingerConfig{Periods: 1, Deviation: 2})
	assert.Error(t, err)

	_, err = NewBollinger(BollingerConfig{Periods: 20, Deviation: 0})
	assert.Error(t, err)
}

func TestBollingerBreakdownBelowLowerBand(t *testing.T) {
	s, err := NewBollinger(BollingerConfig{Periods: 5, Deviation: 1})
	require.NoError(t, err)

	candles := candlesFromCloses(100, 102, 98, 101, 85)
	action, ok := s.Predict(candles)
	require.True(t, ok)
	assert.Equal(t, ActionSell, action)
}

func TestBollingerBreakoutAboveUpperBand(t *testing.T) {
	s, err := NewBollinger(BollingerConfig{Periods: 5, Deviation: 1})
	require.NoError(t, err)

	candles := candlesFromCloses(100, 100.1, 99.9, 100, 115)
	action, ok := s.Predict(candles)
	require.True(t, ok)
	assert.Equal(t, ActionBuy, action)
}

func TestBollingerInsideBandsNoSignal(t *testing.T) {
	s, err := NewBollinger(BollingerConfig{Periods: 5, Deviation: 2})
	require.NoError(t, err)

	candles := candlesFromCloses(100, 103, 97, 102, 99.5)
	_, ok := s.Predict(candles)
	assert.False(t, ok)
}

func TestBollingerMinimalCandles(t *testing.T) {
	s, err := NewBollinger(BollingerConfig{Periods: 20, Deviation: 2})
	require.NoError(t, err)
	assert.Equal(t, 20, s.MinimalCandles())

	_, ok := s.Predict(candlesFromCloses(100, 101))
	assert.False(t, ok)
}

func TestSMACrossValidation(t *testing.T) {
	_, err := NewSMACross(SMACrossConfig{FastPeriods: 1, SlowPeriods: 5})
	assert.Error(t, err)

	_, err = NewSMACross(SMACrossConfig{FastPeriods: 5, SlowPeriods: 5})
	assert.Error(t, err)
}

func TestSMACrossGoldenCross(t *testing.T) {
	s, err := NewSMACross(SMACrossConfig{FastPeriods: 2, SlowPeriods: 4})
	require.NoError(t, err)
	require.Equal(t, 5, s.MinimalCandles())

	// Downtrend then a sharp recovery: the 2-period average overtakes
	// the 4-period one on the final candle.
	candles := candlesFromCloses(110, 100, 90, 95, 120)
	action, ok := s.Predict(candles)
	require.True(t, ok)
	assert.Equal(t, ActionBuy, action)
}

func TestSMACrossDeathCross(t *testing.T) {
	s, err := NewSMACross(SMACrossConfig{FastPeriods: 2, SlowPeriods: 4})
	require.NoError(t, err)

	candles := candlesFromCloses(90, 100, 110, 105, 80)
	action, ok := s.Predict(candles)
	require.True(t, ok)
	assert.Equal(t, ActionSell, action)
}

func TestSMACrossNoCrossNoSignal(t *testing.T) {
	s, err := NewSMACross(SMACrossConfig{FastPeriods: 2, SlowPeriods: 4})
	require.NoError(t, err)

	candles := candlesFromCloses(100, 101, 102, 103, 104)
	_, ok := s.Predict(candles)
	assert.False(t, ok)
}
