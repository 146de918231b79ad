// Package report writes the flat JSON audit file produced at the end
// of a run: every emitted signal and the realization each one reached.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"wick/internal/backtest"
	"wick/internal/logger"
	"wick/internal/robot"
	"wick/internal/trader"
)

type Report struct {
	GeneratedAt  time.Time                  `json:"generated_at"`
	Robot        *robot.Report              `json:"robot,omitempty"`
	Realizations map[string]trader.Snapshot `json:"realizations,omitempty"`
	Backtest     *backtest.Result           `json:"backtest,omitempty"`
}

// Write persists the report, creating parent directories as needed.
func Write(path string, r Report) error {
	if path == "" {
		return fmt.Errorf("report path cannot be empty")
	}
	if r.GeneratedAt.IsZero() {
		r.GeneratedAt = time.Now().UTC()
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating report dir: %w", err)
		}
	}
	raw, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling report: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	logger.Infof("Report: written path=%s", path)
	return nil
}
