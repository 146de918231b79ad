package broker

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"wick/internal/market"
)

// GetLastCandlesRequest asks for the most recent amount candles whose
// open time is not older than From.
type GetLastCandlesRequest struct {
	InstrumentID string
	Interval     market.Interval
	Amount       int
	From         time.Time
}

// GetCandlesRequest asks for the full candle range [From, To).
type GetCandlesRequest struct {
	InstrumentID string
	Interval     market.Interval
	From         time.Time
	To           time.Time
}

type MarketService interface {
	GetLastCandles(ctx context.Context, req GetLastCandlesRequest) ([]market.Candle, error)
	GetCandles(ctx context.Context, req GetCandlesRequest) ([]market.Candle, error)
}

// LastPriceHandler receives live last-trade prices for one instrument.
type LastPriceHandler func(price decimal.Decimal)

// MarketDataStream is the live last-price feed. Subscriptions are
// instance-owned: two streams never share a registry, so several robot
// instances can run in one process without cross-talk.
type MarketDataStream interface {
	// SubscribeLastPrice registers handler for the instrument and
	// returns an unsubscribe function. The handler may be invoked from
	// the stream's own goroutine.
	SubscribeLastPrice(instrumentID string, handler LastPriceHandler) (unsubscribe func())
}

// PostMarketOrderRequest posts a market order. OrderID is the caller's
// idempotency key: reposting with the same id must not duplicate the
// position.
type PostMarketOrderRequest struct {
	InstrumentID string
	AccountID    string
	Direction    OrderDirection
	Lots         int64
	OrderID      string

	// Price backs the simulated fill during backtesting; live adapters
	// ignore it.
	Price decimal.Decimal
}

type OrdersService interface {
	PostMarketOrder(ctx context.Context, req PostMarketOrderRequest) (Order, error)
	GetOrderState(ctx context.Context, accountID, orderID string) (Order, error)
	CancelOrder(ctx context.Context, accountID, orderID string) error
}

type InstrumentsService interface {
	GetInstrumentByID(ctx context.Context, id string) (Instrument, error)
	// GetTradingSchedule returns the exchange calendar for [from, to].
	// An empty result is a configuration error, not a transient fault.
	GetTradingSchedule(ctx context.Context, exchange string, from, to time.Time) ([]market.TradingDay, error)
}

type AccountsService interface {
	GetAccounts(ctx context.Context) ([]Account, error)
}

// Services bundles the collaborator set handed to the robot and the
// signal resolver. Live and backtest wiring differ only here.
type Services struct {
	Market      MarketService
	Stream      MarketDataStream
	Orders      OrdersService
	Instruments InstrumentsService
}
