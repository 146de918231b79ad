package market

import "time"

// TradingDay describes one day of an exchange's trading calendar. The
// robot only ever asks for today and tomorrow.
type TradingDay struct {
	Date         time.Time `json:"date"`
	StartTime    time.Time `json:"start_time,omitempty"`
	EndTime      time.Time `json:"end_time,omitempty"`
	IsTradingDay bool      `json:"is_trading_day"`
}

// HasSession reports whether the day carries a usable trading window.
func (d TradingDay) HasSession() bool {
	return d.IsTradingDay && !d.StartTime.IsZero() && !d.EndTime.IsZero()
}
