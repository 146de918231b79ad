// Package app wires configuration into runnable commands: the live
// robot, the offline backtest and the informational accounts listing.
package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"wick/internal/backtest"
	"wick/internal/broker"
	"wick/internal/broker/binance"
	"wick/internal/config"
	"wick/internal/logger"
	"wick/internal/market"
	"wick/internal/report"
	"wick/internal/robot"
	"wick/internal/strategy"
	"wick/internal/trader"
)

type App struct {
	cfg      *config.Config
	services broker.Services
	accounts broker.AccountsService
	stream   *binance.Stream
}

func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(cfg)
}

func (a *App) Close() error {
	if a.stream != nil {
		return a.stream.Close()
	}
	return nil
}

// RunLive drives one robot against the live exchange until the context
// is cancelled or the configured run duration elapses, then writes the
// report.
func (a *App) RunLive(ctx context.Context, configPath string) error {
	interval, err := market.ParseInterval(a.cfg.Robot.Interval)
	if err != nil {
		return err
	}
	strat, err := strategy.New(a.cfg.Strategy)
	if err != nil {
		return err
	}
	resolver, err := trader.NewResolver(a.traderConfig(), a.services, nil)
	if err != nil {
		return err
	}
	r := robot.New(robot.Config{
		FeedLagRetryDelay: a.cfg.Robot.FeedLagRetryDelay,
		CandleCloseMargin: a.cfg.Robot.CandleCloseMargin,
	}, a.services, resolver)

	// Only the log level follows config edits; trading parameters stay
	// fixed for the lifetime of the run.
	if configPath != "" {
		if err := config.Watch(configPath, func(next *config.Config) {
			logger.SetLevel(next.App.LogLevel)
		}); err != nil {
			logger.Warnf("App: config watch unavailable err=%v", err)
		}
	}

	opts := robot.RunOptions{
		InstrumentID: a.cfg.Robot.InstrumentID,
		Interval:     interval,
		Strategy:     strat,
	}
	if a.cfg.Robot.RunDuration > 0 {
		opts.TerminateAt = time.Now().Add(a.cfg.Robot.RunDuration)
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return r.Run(ctx, opts)
	})
	group.Go(func() error {
		<-ctx.Done()
		r.Stop()
		return nil
	})
	runErr := group.Wait()

	// FinishWork force-stops: a graceful Stop here could park forever on
	// a price wait that no in-band tick will ever settle.
	realizations := resolver.FinishWork()
	robotReport := r.MakeReport()
	if err := report.Write(a.cfg.App.ReportPath, report.Report{
		Robot:        &robotReport,
		Realizations: realizations,
	}); err != nil {
		logger.Errorf("App: report write failed err=%v", err)
	}
	return runErr
}

// RunBacktest replays the configured window offline and writes the
// result as the report.
func (a *App) RunBacktest(ctx context.Context) error {
	interval, err := market.ParseInterval(a.cfg.Robot.Interval)
	if err != nil {
		return err
	}
	strat, err := strategy.New(a.cfg.Strategy)
	if err != nil {
		return err
	}
	from, to, err := a.cfg.Backtest.Window()
	if err != nil {
		return fmt.Errorf("backtest window: %w", err)
	}

	bt, err := backtest.New(backtest.Config{
		InstrumentID: a.cfg.Robot.InstrumentID,
		Interval:     interval,
		From:         from,
		To:           to,
		Strategy:     strat,
		Orders: backtest.OrdersConfig{
			LotSize:           1,
			CommissionPercent: a.cfg.Backtest.CommissionPercent,
		},
		Trader:    a.traderConfig(),
		TickDelay: a.cfg.Backtest.TickDelay,
		CacheDir:  a.cfg.Backtest.CacheDir,
		ChartPath: a.cfg.Backtest.ChartPath,
	}, a.services.Market)
	if err != nil {
		return err
	}

	result, err := bt.Run(ctx)
	if err != nil {
		return err
	}
	return report.Write(a.cfg.App.ReportPath, report.Report{
		Backtest: &result,
	})
}

// ListAccounts prints the accounts visible to the configured keys.
func (a *App) ListAccounts(ctx context.Context) error {
	accounts, err := a.accounts.GetAccounts(ctx)
	if err != nil {
		return err
	}
	for _, acct := range accounts {
		logger.Infof("Account: id=%s name=%s status=%s", acct.ID, acct.Name, acct.Status)
	}
	return nil
}

func (a *App) traderConfig() trader.Config {
	return trader.Config{
		AccountID:              a.cfg.Trading.AccountID,
		LotsPerBet:             a.cfg.Trading.LotsPerBet,
		MaxConcurrentBets:      a.cfg.Trading.MaxConcurrentBets,
		TakeProfitPercent:      a.cfg.Trading.TakeProfitPercent,
		StopLossPercent:        a.cfg.Trading.StopLossPercent,
		OrderStatePollInterval: a.cfg.Trading.OrderStatePollInterval,
	}
}
