// Package broker defines the contracts the robot core consumes from a
// brokerage: market data, order placement, instrument metadata and the
// live price stream. Adapters (live binance, backtest simulators)
// implement these behind one interface so the core never knows which
// one it is driving.
package broker

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderDirection string

const (
	OrderDirectionBuy  OrderDirection = "buy"
	OrderDirectionSell OrderDirection = "sell"
)

// Opposite returns the closing direction for an open leg.
func (d OrderDirection) Opposite() OrderDirection {
	if d == OrderDirectionBuy {
		return OrderDirectionSell
	}
	return OrderDirectionBuy
}

type OrderStatus string

const (
	OrderStatusNew                OrderStatus = "new"
	OrderStatusPartiallyCompleted OrderStatus = "partially_completed"
	OrderStatusCompleted          OrderStatus = "completed"
	OrderStatusRejected           OrderStatus = "rejected"
	OrderStatusCancelledByUser    OrderStatus = "cancelled_by_user"
)

// Terminal reports whether the status can no longer change.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusCompleted, OrderStatusRejected, OrderStatusCancelledByUser:
		return true
	}
	return false
}

// Order is the broker-owned view of a posted order. TotalPrice and
// TotalCommission are only populated once the order completed.
type Order struct {
	ID              string          `json:"id"`
	InstrumentID    string          `json:"instrument_id"`
	AccountID       string          `json:"account_id,omitempty"`
	Direction       OrderDirection  `json:"direction"`
	Lots            int64           `json:"lots"`
	Status          OrderStatus     `json:"status"`
	TotalPrice      decimal.Decimal `json:"total_price"`
	TotalCommission decimal.Decimal `json:"total_commission"`
}

// Completed reports a fully filled order carrying its totals.
func (o Order) Completed() bool {
	return o.Status == OrderStatusCompleted
}

// Instrument is the tradable-unit metadata fetched before committing
// capital to a signal.
type Instrument struct {
	ID           string          `json:"id"`
	Ticker       string          `json:"ticker"`
	Exchange     string          `json:"exchange"`
	Lot          int64           `json:"lot"`
	MinPriceStep decimal.Decimal `json:"min_price_step"`
	Tradable     bool            `json:"tradable"`
}

// Account is informational only; the core never manages accounts.
type Account struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Status   string    `json:"status"`
	OpenedAt time.Time `json:"opened_at,omitempty"`
}
