package robot

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"wick/internal/market"
	"wick/internal/strategy"
)

// signalNamespace is the fixed namespace for name-based signal ids.
// Changing it would re-open dedup for candles already acted upon.
var signalNamespace = uuid.MustParse("7e255a4c-ff9a-409b-957f-65115fadc5eb")

// Signal is one strategy opinion on one closed candle. Immutable; its
// identity is derived, never stored.
type Signal struct {
	StrategyName string          `json:"strategy_name"`
	Action       strategy.Action `json:"action"`
	InstrumentID string          `json:"instrument_id"`
	Interval     market.Interval `json:"interval"`
	LastCandle   market.Candle   `json:"last_candle"`
	EmittedAt    time.Time       `json:"emitted_at"`
	RobotID      string          `json:"robot_id"`
}

// ID derives the deduplication id from (robot, instrument, candle close
// time). It is a name-based UUID, so the same candle maps to the same
// id across process restarts as long as the robot id is reused.
func (s Signal) ID() string {
	name := fmt.Sprintf("%s$%s%d", s.RobotID, s.InstrumentID, s.LastCandle.Time.UnixMilli())
	return uuid.NewSHA1(signalNamespace, []byte(name)).String()
}

// SignalReceiver consumes deduplicated signals. Receive must not block
// the scheduling loop; admission rejections are silent.
type SignalReceiver interface {
	Receive(signal Signal)
}
