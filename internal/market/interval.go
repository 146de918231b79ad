package market

import (
	"fmt"
	"strings"
	"time"
)

// Interval is a candle interval supported by the brokerage feed.
type Interval string

const (
	Interval1Min  Interval = "1m"
	Interval5Min  Interval = "5m"
	Interval15Min Interval = "15m"
	IntervalHour  Interval = "1h"
	IntervalDay   Interval = "1d"
)

var intervalDurations = map[Interval]time.Duration{
	Interval1Min:  time.Minute,
	Interval5Min:  5 * time.Minute,
	Interval15Min: 15 * time.Minute,
	IntervalHour:  time.Hour,
	IntervalDay:   24 * time.Hour,
}

// Duration maps the interval to its bucket length. Unknown intervals
// map to zero; ParseInterval is the validating entry point.
func (i Interval) Duration() time.Duration {
	return intervalDurations[i]
}

func (i Interval) String() string {
	return string(i)
}

// ParseInterval parses "1m", "5m", "15m", "1h", "1d".
func ParseInterval(s string) (Interval, error) {
	in := Interval(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := intervalDurations[in]; !ok {
		return "", fmt.Errorf("unknown candle interval %q", s)
	}
	return in, nil
}
