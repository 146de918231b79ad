// Package strategy holds the prediction contract the robot drives and
// the built-in strategies. The set of strategies is closed: selection
// happens at configuration-load time over known names, not through an
// open string-keyed registry.
package strategy

import (
	"fmt"

	"wick/internal/market"
)

// Action is a strategy's opinion about the freshest closed candle.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

// Strategy turns a window of complete candles into an optional action.
type Strategy interface {
	// Predict inspects candles (oldest first) and returns an action
	// plus true when a signal fires. The window always holds at least
	// MinimalCandles entries.
	Predict(candles []market.Candle) (Action, bool)

	// MinimalCandles is the smallest window Predict can work with.
	MinimalCandles() int

	// Name identifies the strategy and its parameters in signals and
	// reports, e.g. "bollinger(periods=20, deviation=2)".
	Name() string
}

// Config selects and parameterizes one of the known strategies.
type Config struct {
	Name      string          `toml:"name" json:"name"`
	Bollinger BollingerConfig `toml:"bollinger" json:"bollinger"`
	SMACross  SMACrossConfig  `toml:"sma_cross" json:"sma_cross"`
}

// New builds the configured strategy. Unknown names are a
// configuration error.
func New(cfg Config) (Strategy, error) {
	switch cfg.Name {
	case "bollinger":
		return NewBollinger(cfg.Bollinger)
	case "sma_cross":
		return NewSMACross(cfg.SMACross)
	default:
		return nil, fmt.Errorf("unknown strategy %q", cfg.Name)
	}
}
