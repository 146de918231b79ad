package app

import (
	"fmt"

	"wick/internal/broker"
	"wick/internal/broker/binance"
	"wick/internal/config"
)

// AppBuilder assembles the brokerage collaborators the commands run
// against. Live wiring only; the backtest command builds its own
// simulated services internally.
type AppBuilder struct {
	cfg *config.Config
}

func NewAppBuilder(cfg *config.Config) *AppBuilder {
	return &AppBuilder{cfg: cfg}
}

func (b *AppBuilder) Build() (*App, error) {
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	client, err := binance.New(b.cfg.Exchange)
	if err != nil {
		return nil, fmt.Errorf("building exchange client: %w", err)
	}
	stream := binance.NewStream()

	return &App{
		cfg: b.cfg,
		services: broker.Services{
			Market:      client,
			Stream:      stream,
			Orders:      client,
			Instruments: client,
		},
		accounts: client,
		stream:   stream,
	}, nil
}
