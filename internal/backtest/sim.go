package backtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"wick/internal/broker"
	"wick/internal/market"
)

// Stream is the simulated last-price feed. Registries are instance
// owned. A subscriber only ever sees prices published after it
// subscribed: a position opened at a candle close must not meet that
// candle's own ticks again, or the replay front-runs the market.
type Stream struct {
	mu       sync.Mutex
	nextID   int
	handlers map[string]map[int]broker.LastPriceHandler
}

func NewStream() *Stream {
	return &Stream{
		handlers: make(map[string]map[int]broker.LastPriceHandler),
	}
}

func (s *Stream) SubscribeLastPrice(instrumentID string, handler broker.LastPriceHandler) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	if s.handlers[instrumentID] == nil {
		s.handlers[instrumentID] = make(map[int]broker.LastPriceHandler)
	}
	s.handlers[instrumentID][id] = handler
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.handlers[instrumentID], id)
		s.mu.Unlock()
	}
}

// Publish delivers the price to every subscriber synchronously.
func (s *Stream) Publish(instrumentID string, price decimal.Decimal) {
	s.mu.Lock()
	handlers := make([]broker.LastPriceHandler, 0, len(s.handlers[instrumentID]))
	for _, h := range s.handlers[instrumentID] {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()

	for _, h := range handlers {
		h(price)
	}
}

func (s *Stream) Subscribers(instrumentID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handlers[instrumentID])
}

// OrdersConfig parameterizes the simulated exchange.
type OrdersConfig struct {
	// LotSize is units per lot, matching the simulated instrument.
	LotSize int64

	// CommissionPercent is charged on the notional of every fill,
	// e.g. 0.0004 for 4 bps.
	CommissionPercent float64
}

// Orders is the simulated OrdersService: every market order fills
// instantly and completely at the price carried on the request.
type Orders struct {
	cfg        OrdersConfig
	commission decimal.Decimal

	mu     sync.Mutex
	orders map[string]broker.Order
}

func NewOrders(cfg OrdersConfig) *Orders {
	if cfg.LotSize <= 0 {
		cfg.LotSize = 1
	}
	return &Orders{
		cfg:        cfg,
		commission: decimal.NewFromFloat(cfg.CommissionPercent),
		orders:     make(map[string]broker.Order),
	}
}

func (o *Orders) PostMarketOrder(_ context.Context, req broker.PostMarketOrderRequest) (broker.Order, error) {
	if req.OrderID == "" {
		return broker.Order{}, errors.New("backtest: order id is required")
	}
	if req.Price.IsZero() {
		return broker.Order{}, fmt.Errorf("backtest: order %s carries no fill price", req.OrderID)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	// Idempotent on the order id, like the live exchange.
	if existing, ok := o.orders[req.OrderID]; ok {
		return existing, nil
	}

	notional := req.Price.Mul(decimal.NewFromInt(req.Lots)).Mul(decimal.NewFromInt(o.cfg.LotSize))
	order := broker.Order{
		ID:              req.OrderID,
		InstrumentID:    req.InstrumentID,
		AccountID:       req.AccountID,
		Direction:       req.Direction,
		Lots:            req.Lots,
		Status:          broker.OrderStatusCompleted,
		TotalPrice:      notional,
		TotalCommission: notional.Mul(o.commission),
	}
	o.orders[req.OrderID] = order
	return order, nil
}

func (o *Orders) GetOrderState(_ context.Context, _, orderID string) (broker.Order, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	order, ok := o.orders[orderID]
	if !ok {
		return broker.Order{}, fmt.Errorf("backtest: unknown order %s", orderID)
	}
	return order, nil
}

func (o *Orders) CancelOrder(_ context.Context, _, orderID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.orders[orderID]; !ok {
		return fmt.Errorf("backtest: unknown order %s", orderID)
	}
	return nil
}

// PostedOrders returns every simulated fill, insertion order not
// guaranteed.
func (o *Orders) PostedOrders() []broker.Order {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]broker.Order, 0, len(o.orders))
	for _, order := range o.orders {
		out = append(out, order)
	}
	return out
}

// Instruments serves a single fixed instrument and a synthetic
// round-the-clock calendar, which is what a 24/7 crypto venue reports.
type Instruments struct {
	instrument broker.Instrument
}

func NewInstruments(instrument broker.Instrument) *Instruments {
	if instrument.Lot <= 0 {
		instrument.Lot = 1
	}
	instrument.Tradable = true
	return &Instruments{instrument: instrument}
}

func (i *Instruments) GetInstrumentByID(_ context.Context, id string) (broker.Instrument, error) {
	instr := i.instrument
	if instr.ID == "" {
		instr.ID = id
	}
	return instr, nil
}

func (i *Instruments) GetTradingSchedule(_ context.Context, _ string, from, to time.Time) ([]market.TradingDay, error) {
	var days []market.TradingDay
	for day := from.Truncate(24 * time.Hour); !day.After(to); day = day.Add(24 * time.Hour) {
		days = append(days, market.TradingDay{
			Date:         day,
			IsTradingDay: true,
			StartTime:    day,
			EndTime:      day.Add(24 * time.Hour),
		})
	}
	return days, nil
}
