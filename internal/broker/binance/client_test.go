package binance

import (
	"context"
	"testing"
	"time"

	gobinance "github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wick/internal/broker"
)

func TestConvertKlineKeepsDecimalPrecision(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 1, 30, 0, time.UTC)
	kl := &gobinance.Kline{
		OpenTime:  now.Add(-90 * time.Second).UnixMilli(),
		CloseTime: now.Add(-30 * time.Second).UnixMilli(),
		Open:      "65000.01",
		High:      "65100.99",
		Low:       "64999.00",
		Close:     "65050.50",
	}

	candle, err := convertKline(kl, now)
	require.NoError(t, err)
	assert.Equal(t, "65000.01", candle.Open.String())
	assert.Equal(t, "65050.5", candle.Close.String())
	assert.True(t, candle.IsComplete)

	kl.CloseTime = now.Add(30 * time.Second).UnixMilli()
	inProgress, err := convertKline(kl, now)
	require.NoError(t, err)
	assert.False(t, inProgress.IsComplete)
}

func TestConvertKlineRejectsBadPrice(t *testing.T) {
	_, err := convertKline(&gobinance.Kline{Open: "not-a-price"}, time.Now())
	require.Error(t, err)
}

func TestStatusMapping(t *testing.T) {
	cases := map[gobinance.OrderStatusType]broker.OrderStatus{
		gobinance.OrderStatusTypeNew:             broker.OrderStatusNew,
		gobinance.OrderStatusTypePartiallyFilled: broker.OrderStatusPartiallyCompleted,
		gobinance.OrderStatusTypeFilled:          broker.OrderStatusCompleted,
		gobinance.OrderStatusTypeCanceled:        broker.OrderStatusCancelledByUser,
		gobinance.OrderStatusTypeRejected:        broker.OrderStatusRejected,
		gobinance.OrderStatusTypeExpired:         broker.OrderStatusRejected,
	}
	for in, want := range cases {
		assert.Equal(t, want, statusFor(in), string(in))
	}
}

func TestOrderStateCarriesPostedLots(t *testing.T) {
	resp := &gobinance.Order{
		Side:                     gobinance.SideTypeSell,
		Status:                   gobinance.OrderStatusTypeFilled,
		CummulativeQuoteQuantity: "200",
	}
	posted := postedOrder{Symbol: "BTCUSDT", Lots: 2}

	order := orderFromState(resp, "order-1", "spot", posted, decimal.NewFromFloat(0.001))

	// Lots must survive the poll: the exit thresholds divide by them.
	assert.Equal(t, int64(2), order.Lots)
	assert.Equal(t, "BTCUSDT", order.InstrumentID)
	assert.Equal(t, broker.OrderDirectionSell, order.Direction)
	assert.Equal(t, broker.OrderStatusCompleted, order.Status)
	assert.Equal(t, "200", order.TotalPrice.String())
	assert.Equal(t, "0.2", order.TotalCommission.String())
}

func TestMinPriceStepFromFilters(t *testing.T) {
	filters := []map[string]interface{}{
		{"filterType": "LOT_SIZE", "stepSize": "0.00010000"},
		{"filterType": "PRICE_FILTER", "tickSize": "0.01000000", "minPrice": "0.01"},
	}
	assert.Equal(t, "0.01", minPriceStep(filters).String())

	assert.True(t, minPriceStep(nil).IsZero())
	assert.True(t, minPriceStep([]map[string]interface{}{{"filterType": "LOT_SIZE"}}).IsZero())
}

func TestTradingScheduleIsAlwaysOpen(t *testing.T) {
	c := &Client{}
	from := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	days, err := c.GetTradingSchedule(context.Background(), "BINANCE", from, from.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, days, 2)
	for _, day := range days {
		assert.True(t, day.IsTradingDay)
		assert.True(t, day.HasSession())
	}
}
