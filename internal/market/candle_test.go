package market

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandleBodyBounds(t *testing.T) {
	bull := Candle{Open: decimal.NewFromInt(100), Close: decimal.NewFromInt(105)}
	assert.True(t, bull.BodyLow().Equal(decimal.NewFromInt(100)))
	assert.True(t, bull.BodyHigh().Equal(decimal.NewFromInt(105)))

	bear := Candle{Open: decimal.NewFromInt(105), Close: decimal.NewFromInt(100)}
	assert.True(t, bear.BodyLow().Equal(decimal.NewFromInt(100)))
	assert.True(t, bear.BodyHigh().Equal(decimal.NewFromInt(105)))
}

func TestCandleCloseTime(t *testing.T) {
	open := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c := Candle{Time: open}
	assert.Equal(t, open.Add(time.Minute), c.CloseTime(Interval1Min))
	assert.Equal(t, open.Add(time.Hour), c.CloseTime(IntervalHour))
}

func TestCompleteOnlyKeepsOrder(t *testing.T) {
	candles := []Candle{
		{Time: time.Unix(0, 0), IsComplete: true},
		{Time: time.Unix(60, 0), IsComplete: false},
		{Time: time.Unix(120, 0), IsComplete: true},
	}
	got := CompleteOnly(candles)
	require.Len(t, got, 2)
	assert.Equal(t, time.Unix(0, 0), got[0].Time)
	assert.Equal(t, time.Unix(120, 0), got[1].Time)
}

func TestLastN(t *testing.T) {
	candles := []Candle{
		{Time: time.Unix(0, 0)},
		{Time: time.Unix(60, 0)},
		{Time: time.Unix(120, 0)},
	}
	got := LastN(candles, 2)
	require.Len(t, got, 2)
	assert.Equal(t, time.Unix(60, 0), got[0].Time)

	assert.Len(t, LastN(candles, 10), 3)
	assert.Len(t, LastN(candles, 0), 3)
}

func TestParseInterval(t *testing.T) {
	in, err := ParseInterval(" 1M ")
	require.NoError(t, err)
	assert.Equal(t, Interval1Min, in)
	assert.Equal(t, time.Minute, in.Duration())

	_, err = ParseInterval("3m")
	assert.Error(t, err)
}

func TestTradingDayHasSession(t *testing.T) {
	now := time.Now()
	assert.True(t, TradingDay{IsTradingDay: true, StartTime: now, EndTime: now.Add(8 * time.Hour)}.HasSession())
	assert.False(t, TradingDay{IsTradingDay: false, StartTime: now, EndTime: now}.HasSession())
	assert.False(t, TradingDay{IsTradingDay: true}.HasSession())
}
