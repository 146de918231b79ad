// Package robot implements the market-synchronized scheduling loop: it
// walks the exchange calendar, polls for newly closed candles at the
// candle cadence, asks the strategy for an opinion and forwards
// non-duplicate signals to the receiver.
package robot

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"wick/internal/broker"
	"wick/internal/logger"
	"wick/internal/market"
	"wick/internal/pkg/interrupt"
	"wick/internal/strategy"
)

type Config struct {
	// FeedLagRetryDelay is how long to back off when the brokerage feed
	// has not yet published the candle that should already be closed.
	FeedLagRetryDelay time.Duration

	// CandleCloseMargin pads the sleep until the next candle close so
	// the loop does not hammer the feed exactly at the boundary.
	CandleCloseMargin time.Duration

	// NoScheduleWait bounds the idle period when the calendar gives no
	// start time for the next trading day.
	NoScheduleWait time.Duration
}

func (c Config) withDefaults() Config {
	if c.FeedLagRetryDelay <= 0 {
		c.FeedLagRetryDelay = time.Second
	}
	if c.CandleCloseMargin < 0 {
		c.CandleCloseMargin = 0
	}
	if c.NoScheduleWait <= 0 {
		c.NoScheduleWait = 12 * time.Hour
	}
	return c
}

// RunOptions parameterize one Run.
type RunOptions struct {
	InstrumentID string
	Interval     market.Interval
	Strategy     strategy.Strategy

	// TerminateAt schedules a self-stop. Zero means run until Stop.
	TerminateAt time.Time
}

// Robot is the top-level scheduling loop. One instance drives one
// instrument with one strategy.
type Robot struct {
	id       string
	cfg      Config
	market   broker.MarketService
	instr    broker.InstrumentsService
	receiver SignalReceiver
	token    *interrupt.Token

	mu      sync.Mutex
	running bool
	runErr  error
	emitted map[string]Signal

	nowFn   func() time.Time
	sleepFn func(d time.Duration) error
}

func New(cfg Config, services broker.Services, receiver SignalReceiver) *Robot {
	r := &Robot{
		id:       "robot-" + uuid.NewString(),
		cfg:      cfg.withDefaults(),
		market:   services.Market,
		instr:    services.Instruments,
		receiver: receiver,
		token:    interrupt.NewToken(),
		emitted:  make(map[string]Signal),
		nowFn:    time.Now,
	}
	r.sleepFn = r.token.Sleep
	return r
}

func (r *Robot) ID() string {
	return r.id
}

// Token exposes the robot's cancellation token so collaborators (the
// signal resolver, the host) can share one stop signal.
func (r *Robot) Token() *interrupt.Token {
	return r.token
}

// Run executes the scheduling loop until Stop, TerminateAt or a fatal
// calendar/feed error. Starting an already running robot is a no-op.
func (r *Robot) Run(ctx context.Context, opts RunOptions) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = true
	r.runErr = nil
	r.mu.Unlock()
	r.token.Reset()

	logger.Infof("Robot: started id=%s instrument=%s interval=%s strategy=%s",
		r.id, opts.InstrumentID, opts.Interval, opts.Strategy.Name())

	if !opts.TerminateAt.IsZero() {
		if remained := opts.TerminateAt.Sub(r.nowFn()); remained > 0 {
			go func() {
				if err := r.sleepFn(remained); err == nil {
					r.Stop()
				}
			}()
		}
	}

	err := r.loop(ctx, opts)
	if err != nil {
		logger.Errorf("Robot: stopped on error id=%s err=%v", r.id, err)
	}

	r.mu.Lock()
	r.runErr = err
	r.mu.Unlock()
	r.Stop()
	return err
}

// Stop is idempotent: it flips the running flag and fires the token so
// any in-progress sleep resolves promptly.
func (r *Robot) Stop() {
	r.mu.Lock()
	wasRunning := r.running
	r.running = false
	r.mu.Unlock()

	if wasRunning {
		logger.Infof("Robot: stopped id=%s", r.id)
		r.token.Cancel()
	}
}

func (r *Robot) isRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Robot) loop(ctx context.Context, opts RunOptions) error {
	instrument, err := r.instr.GetInstrumentByID(ctx, opts.InstrumentID)
	if err != nil {
		return fmt.Errorf("fetching instrument %s: %w", opts.InstrumentID, err)
	}

	for r.isRunning() {
		today, tomorrow, err := r.tradingDaysForNow(ctx, instrument.Exchange)
		if err != nil {
			return err
		}

		if today.HasSession() {
			if wait := today.StartTime.Sub(r.nowFn()); wait > 0 {
				logger.Debugf("Robot: waiting for day start id=%s wait=%s", r.id, wait)
				r.sleepIfRunning(wait)
			}

			logger.Debugf("Robot: trading day started id=%s", r.id)
			if err := r.work(ctx, opts, today.EndTime); err != nil {
				return err
			}
			logger.Debugf("Robot: trading day finished id=%s", r.id)
		}

		if !tomorrow.StartTime.IsZero() {
			if wait := tomorrow.StartTime.Sub(r.nowFn()); wait > 0 {
				r.sleepIfRunning(wait)
			}
		} else {
			r.sleepIfRunning(r.cfg.NoScheduleWait)
		}
	}
	return nil
}

// work runs the intraday polling loop until finish or Stop.
func (r *Robot) work(ctx context.Context, opts RunOptions, finish time.Time) error {
	step := opts.Interval.Duration()

	// Skip the candle currently in progress so the strategy only ever
	// judges a freshly closed one.
	candles, err := r.lastCandles(ctx, opts)
	if err != nil {
		return err
	}
	if len(candles) > 0 {
		r.waitForCandleClose(candles[len(candles)-1], step)
	}

	for r.isRunning() && r.nowFn().Before(finish) {
		candles, err := r.lastCandles(ctx, opts)
		if err != nil {
			return err
		}
		if len(candles) == 0 {
			r.sleepIfRunning(r.cfg.FeedLagRetryDelay)
			continue
		}

		lastCandle := candles[len(candles)-1]
		closeTime := lastCandle.CloseTime(opts.Interval)

		// The feed legitimately lags around candle boundaries; back off
		// briefly instead of treating it as an error.
		if r.nowFn().Sub(closeTime) > step {
			r.sleepIfRunning(r.cfg.FeedLagRetryDelay)
			continue
		}

		if action, ok := opts.Strategy.Predict(candles); ok {
			r.emit(Signal{
				StrategyName: opts.Strategy.Name(),
				Action:       action,
				InstrumentID: opts.InstrumentID,
				Interval:     opts.Interval,
				LastCandle:   lastCandle,
				EmittedAt:    r.nowFn(),
				RobotID:      r.id,
			})
		}

		r.waitForCandleClose(lastCandle, step)
	}
	return nil
}

// lastCandles fetches the strategy window plus one extra candle to
// tolerate an in-progress one, filtered down to complete candles.
func (r *Robot) lastCandles(ctx context.Context, opts RunOptions) ([]market.Candle, error) {
	amount := opts.Strategy.MinimalCandles()
	step := opts.Interval.Duration()

	candles, err := r.market.GetLastCandles(ctx, broker.GetLastCandlesRequest{
		InstrumentID: opts.InstrumentID,
		Interval:     opts.Interval,
		Amount:       amount + 1,
		From:         r.nowFn().Add(-time.Duration(amount+2) * step),
	})
	if err != nil {
		return nil, fmt.Errorf("fetching last candles: %w", err)
	}
	return market.LastN(market.CompleteOnly(candles), amount), nil
}

func (r *Robot) emit(sig Signal) {
	id := sig.ID()

	r.mu.Lock()
	if _, seen := r.emitted[id]; seen {
		r.mu.Unlock()
		return
	}
	r.emitted[id] = sig
	r.mu.Unlock()

	logger.Debugf("Robot: signal %s id=%s instrument=%s candle_time=%s",
		sig.Action, id, sig.InstrumentID, sig.LastCandle.Time.Format(time.RFC3339))
	r.receiver.Receive(sig)
}

// tradingDaysForNow requests the two-day calendar window. An empty
// calendar is a configuration error, not a transient fault.
func (r *Robot) tradingDaysForNow(ctx context.Context, exchange string) (market.TradingDay, market.TradingDay, error) {
	now := r.nowFn()
	days, err := r.instr.GetTradingSchedule(ctx, exchange, now, now.Add(24*time.Hour))
	if err != nil {
		return market.TradingDay{}, market.TradingDay{}, fmt.Errorf("fetching trading schedule: %w", err)
	}
	if len(days) == 0 {
		return market.TradingDay{}, market.TradingDay{}, fmt.Errorf("trading schedule for %s came back empty", exchange)
	}

	today := days[0]
	var tomorrow market.TradingDay
	if len(days) > 1 {
		tomorrow = days[1]
	}
	return today, tomorrow, nil
}

// waitForCandleClose sleeps until the next candle is expected to close,
// plus the configured safety margin.
func (r *Robot) waitForCandleClose(candle market.Candle, step time.Duration) {
	closeTime := candle.Time.Add(step)
	wait := step - r.nowFn().Sub(closeTime) + r.cfg.CandleCloseMargin
	if wait > 0 {
		r.sleepIfRunning(wait)
	}
}

func (r *Robot) sleepIfRunning(d time.Duration) {
	if d <= 0 || !r.isRunning() {
		return
	}
	_ = r.sleepFn(d)
}

// EmittedSignals returns the signals produced so far, oldest first.
func (r *Robot) EmittedSignals() []Signal {
	r.mu.Lock()
	out := make([]Signal, 0, len(r.emitted))
	for _, sig := range r.emitted {
		out = append(out, sig)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].EmittedAt.Before(out[j].EmittedAt)
	})
	return out
}

// Report summarizes one robot run for the flat audit file.
type Report struct {
	RobotID string   `json:"robot_id"`
	Error   string   `json:"error,omitempty"`
	Signals []Signal `json:"signals"`
}

func (r *Robot) MakeReport() Report {
	r.mu.Lock()
	errMsg := ""
	if r.runErr != nil {
		errMsg = r.runErr.Error()
	}
	r.mu.Unlock()

	return Report{
		RobotID: r.id,
		Error:   errMsg,
		Signals: r.EmittedSignals(),
	}
}
