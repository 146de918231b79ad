// Package backtest replays historical candles through the exact
// strategy and order-realization code the live robot runs, against
// simulated exchange services. Each candle is decomposed into four
// synthetic ticks so take-profit and stop-loss exits fire inside the
// candle, not only at its close.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"wick/internal/broker"
	"wick/internal/logger"
	"wick/internal/market"
	"wick/internal/pkg/interrupt"
	"wick/internal/robot"
	"wick/internal/strategy"
	"wick/internal/trader"
)

type Config struct {
	InstrumentID string
	Interval     market.Interval
	From         time.Time
	To           time.Time

	Strategy strategy.Strategy

	// Instrument describes the simulated venue's instrument; ID is
	// filled from InstrumentID when empty.
	Instrument broker.Instrument

	Orders OrdersConfig
	Trader trader.Config

	// TickDelay separates synthetic ticks so in-flight order workflows
	// get scheduled between them.
	TickDelay time.Duration

	// CacheDir enables the flat-file candle cache when non-empty.
	CacheDir string

	// ChartPath, when non-empty, is where the HTML kline chart of the
	// run is written.
	ChartPath string
}

func (c Config) withDefaults() Config {
	if c.TickDelay <= 0 {
		c.TickDelay = 500 * time.Microsecond
	}
	return c
}

// Result is everything one replay produced.
type Result struct {
	RobotID      string                     `json:"robot_id"`
	Signals      []robot.Signal             `json:"signals"`
	Realizations map[string]trader.Snapshot `json:"realizations"`
	Candles      int                        `json:"candles"`
}

// Backtester drives one replay. Build one per run.
type Backtester struct {
	cfg    Config
	source broker.MarketService
	cache  *CandleCache
}

func New(cfg Config, source broker.MarketService) (*Backtester, error) {
	cfg = cfg.withDefaults()
	if cfg.Strategy == nil {
		return nil, errors.New("backtest: strategy is required")
	}
	if cfg.InstrumentID == "" {
		return nil, errors.New("backtest: instrument id is required")
	}
	if !cfg.From.Before(cfg.To) {
		return nil, fmt.Errorf("backtest: bad range [%s, %s)", cfg.From, cfg.To)
	}
	var cache *CandleCache
	if cfg.CacheDir != "" {
		cache = NewCandleCache(cfg.CacheDir)
	}
	return &Backtester{cfg: cfg, source: source, cache: cache}, nil
}

// Run replays the configured range and returns the per-signal outcomes.
func (b *Backtester) Run(ctx context.Context) (Result, error) {
	candles, err := b.loadCandles(ctx)
	if err != nil {
		return Result{}, err
	}
	minimal := b.cfg.Strategy.MinimalCandles()
	if len(candles) < minimal {
		return Result{}, fmt.Errorf("backtest: %d candles loaded, strategy needs %d", len(candles), minimal)
	}

	stream := NewStream()
	orders := NewOrders(b.cfg.Orders)
	instrument := b.cfg.Instrument
	if instrument.ID == "" {
		instrument.ID = b.cfg.InstrumentID
	}

	token := interrupt.NewToken()
	resolver, err := trader.NewResolver(b.traderConfig(), broker.Services{
		Market:      b.source,
		Stream:      stream,
		Orders:      orders,
		Instruments: NewInstruments(instrument),
	}, token)
	if err != nil {
		return Result{}, err
	}

	robotID := "backtest-" + uuid.NewString()
	step := b.cfg.Interval.Duration()
	var signals []robot.Signal

	logger.Infof("Backtest: started id=%s instrument=%s interval=%s candles=%d strategy=%s",
		robotID, b.cfg.InstrumentID, b.cfg.Interval, len(candles), b.cfg.Strategy.Name())

	for i, candle := range candles {
		if err := ctx.Err(); err != nil {
			resolver.FinishWork()
			return Result{}, err
		}

		b.publishTicks(ctx, stream, candle)

		if i+1 < minimal {
			continue
		}
		window := candles[i+1-minimal : i+1]
		action, ok := b.cfg.Strategy.Predict(window)
		if !ok {
			continue
		}

		sig := robot.Signal{
			StrategyName: b.cfg.Strategy.Name(),
			Action:       action,
			InstrumentID: b.cfg.InstrumentID,
			Interval:     b.cfg.Interval,
			LastCandle:   candle,
			EmittedAt:    candle.Time.Add(step),
			RobotID:      robotID,
		}
		signals = append(signals, sig)
		b.deliver(resolver, stream, sig)
	}

	realizations := resolver.FinishWork()

	if b.cfg.ChartPath != "" {
		if err := RenderChart(b.cfg.ChartPath, b.cfg.InstrumentID, candles, signals); err != nil {
			logger.Warnf("Backtest: chart render failed path=%s err=%v", b.cfg.ChartPath, err)
		}
	}

	logger.Infof("Backtest: finished id=%s signals=%d realizations=%d",
		robotID, len(signals), len(realizations))
	return Result{
		RobotID:      robotID,
		Signals:      signals,
		Realizations: realizations,
		Candles:      len(candles),
	}, nil
}

func (b *Backtester) traderConfig() trader.Config {
	cfg := b.cfg.Trader
	if cfg.AccountID == "" {
		cfg.AccountID = "backtest"
	}
	// Keep replay latency down: simulated fills are instant anyway.
	if cfg.OrderStatePollInterval <= 0 {
		cfg.OrderStatePollInterval = time.Millisecond
	}
	return cfg
}

// publishTicks decomposes the candle into the four prices a position
// could plausibly have traded through, worst first: low, lower body
// edge, upper body edge, high.
func (b *Backtester) publishTicks(ctx context.Context, stream *Stream, candle market.Candle) {
	ticks := [4]decimal.Decimal{candle.Low, candle.BodyLow(), candle.BodyHigh(), candle.High}
	for _, price := range ticks {
		stream.Publish(b.cfg.InstrumentID, price)
		sleepWithContext(ctx, b.cfg.TickDelay)
	}
}

// deliver hands the signal to the resolver and blocks until its
// workflow either reached the price wait or already finished, keeping
// the replay deterministic: subsequent ticks always see the position.
func (b *Backtester) deliver(resolver *trader.Resolver, stream *Stream, sig robot.Signal) {
	id := sig.ID()
	subscribersBefore := stream.Subscribers(sig.InstrumentID)
	_, duplicate := resolver.Realizations()[id]

	resolver.Receive(sig)
	if duplicate {
		return
	}
	if _, admitted := resolver.Realizations()[id]; !admitted {
		return
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if stream.Subscribers(sig.InstrumentID) > subscribersBefore {
			return
		}
		snap, ok := resolver.Realizations()[id]
		if ok && snap.Status != trader.StatusProcessing {
			return
		}
		time.Sleep(time.Millisecond)
	}
	logger.Warnf("Backtest: signal id=%s never reached its price wait", id)
}

func (b *Backtester) loadCandles(ctx context.Context) ([]market.Candle, error) {
	req := broker.GetCandlesRequest{
		InstrumentID: b.cfg.InstrumentID,
		Interval:     b.cfg.Interval,
		From:         b.cfg.From,
		To:           b.cfg.To,
	}
	if candles, ok := b.cache.Load(req); ok {
		return market.CompleteOnly(candles), nil
	}
	if b.source == nil {
		return nil, errors.New("backtest: no candle source and no cache hit")
	}
	candles, err := b.source.GetCandles(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("loading candles: %w", err)
	}
	b.cache.Store(req, candles)
	return market.CompleteOnly(candles), nil
}

func sleepWithContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
