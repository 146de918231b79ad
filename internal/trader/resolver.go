package trader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"wick/internal/broker"
	"wick/internal/logger"
	"wick/internal/pkg/interrupt"
	"wick/internal/robot"
	"wick/internal/strategy"
)

// errWorkStopped marks a poll-wait that was cut short by shutdown
// rather than by the order reaching a terminal state.
var errWorkStopped = errors.New("order wait stopped before a terminal state")

type Config struct {
	AccountID string

	// LotsPerBet sizes every position.
	LotsPerBet int64

	// MaxConcurrentBets caps signals processed at once; excess signals
	// are rejected at admission, not queued.
	MaxConcurrentBets int

	// TakeProfitPercent and StopLossPercent are fractions of the entry
	// price, e.g. 0.02 for 2%.
	TakeProfitPercent float64
	StopLossPercent   float64

	// OrderStatePollInterval separates consecutive order-state polls.
	OrderStatePollInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.OrderStatePollInterval <= 0 {
		c.OrderStatePollInterval = time.Second
	}
	return c
}

func (c Config) validate() error {
	if c.AccountID == "" {
		return errors.New("trader: account id is required")
	}
	if c.LotsPerBet <= 0 {
		return fmt.Errorf("trader: lots_per_bet must be positive, got %d", c.LotsPerBet)
	}
	if c.MaxConcurrentBets <= 0 {
		return fmt.Errorf("trader: max_concurrent_bets must be positive, got %d", c.MaxConcurrentBets)
	}
	if c.TakeProfitPercent <= 0 {
		return fmt.Errorf("trader: take_profit_percent must be positive, got %v", c.TakeProfitPercent)
	}
	if c.StopLossPercent <= 0 {
		return fmt.Errorf("trader: stop_loss_percent must be positive, got %v", c.StopLossPercent)
	}
	return nil
}

// Resolver consumes signals and realizes them as order pairs. It is
// the robot.SignalReceiver used in production and in backtests.
type Resolver struct {
	cfg      Config
	services broker.Services
	token    *interrupt.Token

	takeProfit decimal.Decimal
	stopLoss   decimal.Decimal

	mu            sync.Mutex
	working       bool
	closing       bool
	processing    int
	realizations  map[string]*Realization
	finishWaiters []chan struct{}
}

// NewResolver builds a resolver sharing token with the scheduling loop
// so one stop request reaches every wait. A nil token gets its own.
func NewResolver(cfg Config, services broker.Services, token *interrupt.Token) (*Resolver, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if token == nil {
		token = interrupt.NewToken()
	}
	return &Resolver{
		cfg:          cfg,
		services:     services,
		token:        token,
		takeProfit:   decimal.NewFromFloat(cfg.TakeProfitPercent),
		stopLoss:     decimal.NewFromFloat(cfg.StopLossPercent),
		working:      true,
		realizations: make(map[string]*Realization),
	}, nil
}

// Receive admits the signal and runs its saga asynchronously. The three
// admission rejections (stopped/closing, concurrency ceiling, duplicate
// id) are silent no-ops, logged only.
func (r *Resolver) Receive(signal robot.Signal) {
	id := signal.ID()

	r.mu.Lock()
	if !r.working || r.closing {
		r.mu.Unlock()
		logger.Debugf("Resolver: reject signal id=%s: resolver is stopped", id)
		return
	}
	if r.processing >= r.cfg.MaxConcurrentBets {
		r.mu.Unlock()
		logger.Warnf("Resolver: reject signal id=%s: max_concurrent_bets=%d reached", id, r.cfg.MaxConcurrentBets)
		return
	}
	if _, exists := r.realizations[id]; exists {
		r.mu.Unlock()
		logger.Warnf("Resolver: reject duplicate signal id=%s", id)
		return
	}

	realization := NewRealization(signal)
	r.realizations[id] = realization
	r.processing++
	r.mu.Unlock()

	logger.Debugf("Resolver: accepted signal id=%s action=%s instrument=%s", id, signal.Action, signal.InstrumentID)
	go r.resolve(signal, realization)
}

// resolve runs the whole saga for one signal. Every exit path passes
// through stopProcessing exactly once.
func (r *Resolver) resolve(signal robot.Signal, realization *Realization) {
	defer r.stopProcessing()

	ctx := context.Background()
	id := signal.ID()

	instrument, err := r.services.Instruments.GetInstrumentByID(ctx, signal.InstrumentID)
	if err != nil {
		realization.Fail(ReasonFatal, fmt.Errorf("fetching instrument: %w", err))
		return
	}
	if !instrument.Tradable {
		realization.Fail(ReasonFatal, fmt.Errorf("instrument %s is not tradable", instrument.ID))
		return
	}
	if instrument.Lot <= 0 {
		realization.Fail(ReasonFatal, fmt.Errorf("instrument %s reports lot size %d", instrument.ID, instrument.Lot))
		return
	}

	// The signal id doubles as the open order's idempotency key: a
	// retried post cannot duplicate the position.
	openOrder, err := r.services.Orders.PostMarketOrder(ctx, broker.PostMarketOrderRequest{
		InstrumentID: signal.InstrumentID,
		AccountID:    r.cfg.AccountID,
		Direction:    directionFor(signal.Action),
		Lots:         r.cfg.LotsPerBet,
		OrderID:      id,
		Price:        signal.LastCandle.Close,
	})
	if err != nil {
		realization.Fail(ReasonPostOpenOrder, fmt.Errorf("posting open order: %w", err))
		return
	}
	realization.SetOpenOrderID(openOrder.ID)

	completedOpen, err := r.waitForCompleteOrder(ctx, openOrder)
	if err != nil {
		if errors.Is(err, errWorkStopped) {
			realization.Fail(ReasonFatal, err)
		} else {
			realization.Fail(ReasonPostOpenOrder, err)
		}
		return
	}

	exitPrice := r.waitForExitPrice(completedOpen, instrument)

	closeOrder, err := r.services.Orders.PostMarketOrder(ctx, broker.PostMarketOrderRequest{
		InstrumentID: signal.InstrumentID,
		AccountID:    r.cfg.AccountID,
		Direction:    directionFor(signal.Action).Opposite(),
		Lots:         r.cfg.LotsPerBet,
		OrderID:      uuid.NewString(),
		Price:        exitPrice,
	})
	if err != nil {
		realization.Fail(ReasonPostCloseOrder, fmt.Errorf("posting close order: %w", err))
		return
	}

	completedClose, err := r.waitForCompleteOrder(ctx, closeOrder)
	if err != nil {
		// The close leg was posted but its fill is unconfirmed; keep
		// the order id in the record so an operator can reconcile. No
		// automatic reversal of the open leg is attempted.
		realization.Fail(ReasonPostCloseOrder,
			fmt.Errorf("close order %s posted, fill unconfirmed: %w", closeOrder.ID, err))
		return
	}

	if err := realization.SetCloseOrderID(completedClose.ID); err != nil {
		realization.Fail(ReasonFatal, err)
		return
	}
	logger.Infof("Resolver: realized signal id=%s open=%s close=%s", id, openOrder.ID, completedClose.ID)
}

// waitForCompleteOrder polls the order until COMPLETED. NEW and
// PARTIALLY_COMPLETED keep polling; any other terminal status is an
// error. Shutdown mid-wait surfaces as errWorkStopped.
func (r *Resolver) waitForCompleteOrder(ctx context.Context, order broker.Order) (broker.Order, error) {
	for r.isWorking() {
		state, err := r.services.Orders.GetOrderState(ctx, r.cfg.AccountID, order.ID)
		if err != nil {
			return broker.Order{}, fmt.Errorf("polling order %s: %w", order.ID, err)
		}

		switch state.Status {
		case broker.OrderStatusCompleted:
			// Lots guard matters: the exit thresholds divide by the lot
			// count, and a broker that drops it would crash the saga.
			if state.Lots <= 0 || state.TotalPrice.IsZero() || state.TotalCommission.IsNegative() {
				return broker.Order{}, fmt.Errorf("order %s completed without usable totals", state.ID)
			}
			return state, nil
		case broker.OrderStatusNew, broker.OrderStatusPartiallyCompleted:
			r.sleepIfWorking(r.cfg.OrderStatePollInterval)
		default:
			return broker.Order{}, fmt.Errorf("order %s ended in unexpected status %s", state.ID, state.Status)
		}
	}
	return broker.Order{}, errWorkStopped
}

// waitForExitPrice blocks until the live price crosses the take-profit
// or stop-loss threshold, or until shutdown, in which case the last
// observed price is returned so the close leg can still be priced.
func (r *Resolver) waitForExitPrice(order broker.Order, instrument broker.Instrument) decimal.Decimal {
	lots := decimal.NewFromInt(order.Lots)
	lotSize := decimal.NewFromInt(instrument.Lot)

	entry := order.TotalPrice.Div(lots).Div(lotSize)
	commissionPerUnit := order.TotalCommission.Div(lots).Div(lotSize)

	// The commission buffer widens both thresholds the same way, so the
	// exit decision reflects round-trip cost rather than the open leg
	// alone.
	takeProfit := entry.Mul(decimal.NewFromInt(1).Add(r.takeProfit)).Add(commissionPerUnit)
	stopLoss := entry.Mul(decimal.NewFromInt(1).Sub(r.stopLoss)).Sub(commissionPerUnit)

	var priceMu sync.Mutex
	lastPrice := order.TotalPrice.Sub(order.TotalCommission).Div(lots).Div(lotSize)

	if !r.isWorking() {
		return lastPrice
	}

	done := make(chan decimal.Decimal, 1)
	var once sync.Once
	settle := func(price decimal.Decimal) {
		once.Do(func() { done <- price })
	}

	unsubscribe := r.services.Stream.SubscribeLastPrice(instrument.ID, func(price decimal.Decimal) {
		priceMu.Lock()
		lastPrice = price
		priceMu.Unlock()

		if takeProfit.LessThanOrEqual(price) || stopLoss.GreaterThanOrEqual(price) {
			settle(price)
		}
	})
	defer unsubscribe()

	// A forced stop resolves the wait with whatever price was seen
	// last instead of blocking forever.
	cancelUnsub := r.token.OnCancel(func() {
		priceMu.Lock()
		price := lastPrice
		priceMu.Unlock()
		settle(price)
	})
	defer cancelUnsub()

	return <-done
}

// Stop stops admitting signals and blocks until every in-flight saga
// reaches a terminal state.
func (r *Resolver) Stop() {
	r.mu.Lock()
	r.closing = true
	if r.processing == 0 {
		r.working = false
		r.mu.Unlock()
		return
	}
	waiter := make(chan struct{})
	r.finishWaiters = append(r.finishWaiters, waiter)
	r.mu.Unlock()

	<-waiter

	r.mu.Lock()
	r.working = false
	r.mu.Unlock()
}

// ForceStop additionally fires the token, unblocking every price-wait
// and poll-wait in flight. Sagas finalize quickly in a degraded state.
func (r *Resolver) ForceStop() {
	r.mu.Lock()
	r.working = false
	r.mu.Unlock()

	r.token.Cancel()
	r.Stop()
}

// FinishWork force-stops the resolver and hands back the realization
// map for the final report.
func (r *Resolver) FinishWork() map[string]Snapshot {
	r.ForceStop()
	return r.Realizations()
}

// Realizations snapshots the per-signal outcomes keyed by signal id.
func (r *Resolver) Realizations() map[string]Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]Snapshot, len(r.realizations))
	for id, realization := range r.realizations {
		out[id] = realization.Snapshot()
	}
	return out
}

// Processing reports the number of in-flight sagas.
func (r *Resolver) Processing() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.processing
}

func (r *Resolver) isWorking() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.working
}

func (r *Resolver) sleepIfWorking(d time.Duration) {
	if r.isWorking() {
		_ = r.token.Sleep(d)
	}
}

// stopProcessing decrements the in-flight counter and, at zero, wakes
// everyone blocked in Stop.
func (r *Resolver) stopProcessing() {
	r.mu.Lock()
	r.processing--
	var waiters []chan struct{}
	if r.processing == 0 {
		waiters = r.finishWaiters
		r.finishWaiters = nil
	}
	r.mu.Unlock()

	for _, w := range waiters {
		close(w)
	}
}

func directionFor(action strategy.Action) broker.OrderDirection {
	if action == strategy.ActionBuy {
		return broker.OrderDirectionBuy
	}
	return broker.OrderDirectionSell
}
