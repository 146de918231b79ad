package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"

	"wick/internal/market"
)

func validate(c *Config) error {
	if strings.TrimSpace(c.Robot.InstrumentID) == "" {
		return fmt.Errorf("robot.instrument_id is required")
	}
	if _, err := market.ParseInterval(c.Robot.Interval); err != nil {
		return fmt.Errorf("robot.interval: %w", err)
	}
	if c.Trading.TakeProfitPercent <= 0 {
		return fmt.Errorf("trading.take_profit_percent must be positive")
	}
	if c.Trading.StopLossPercent <= 0 {
		return fmt.Errorf("trading.stop_loss_percent must be positive")
	}
	if c.Trading.StopLossPercent >= 1 {
		return fmt.Errorf("trading.stop_loss_percent is a fraction of the entry price, got %v", c.Trading.StopLossPercent)
	}
	return nil
}

// Parameter shapes for each known strategy. Structural complaints
// (missing block, wrong type, out-of-range period) surface at load
// time instead of at the first prediction.
var strategySchemas = map[string]string{
	"bollinger": `{
		"type": "object",
		"properties": {
			"name": {"const": "bollinger"},
			"bollinger": {
				"type": "object",
				"properties": {
					"periods": {"type": "integer", "minimum": 2},
					"deviation": {"type": "number", "exclusiveMinimum": 0}
				},
				"required": ["periods", "deviation"]
			}
		},
		"required": ["name", "bollinger"]
	}`,
	"sma_cross": `{
		"type": "object",
		"properties": {
			"name": {"const": "sma_cross"},
			"sma_cross": {
				"type": "object",
				"properties": {
					"fast_periods": {"type": "integer", "minimum": 1},
					"slow_periods": {"type": "integer", "minimum": 2}
				},
				"required": ["fast_periods", "slow_periods"]
			}
		},
		"required": ["name", "sma_cross"]
	}`,
}

func validateStrategyParams(sub *viper.Viper) error {
	if sub == nil {
		return fmt.Errorf("strategy block is required")
	}
	name := strings.TrimSpace(sub.GetString("name"))
	raw, ok := strategySchemas[name]
	if !ok {
		return fmt.Errorf("unknown strategy %q, known: %s", name, strings.Join(knownStrategies(), ", "))
	}

	compiler := jsonschema.NewCompiler()
	resource := name + ".schema.json"
	if err := compiler.AddResource(resource, strings.NewReader(raw)); err != nil {
		return fmt.Errorf("compiling %s schema: %w", name, err)
	}
	schema, err := compiler.Compile(resource)
	if err != nil {
		return fmt.Errorf("compiling %s schema: %w", name, err)
	}
	if err := schema.Validate(sub.AllSettings()); err != nil {
		return fmt.Errorf("strategy %s parameters: %w", name, err)
	}
	return nil
}

func knownStrategies() []string {
	names := make([]string, 0, len(strategySchemas))
	for name := range strategySchemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
