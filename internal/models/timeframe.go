package models

import (
	"fmt"
	"time"
)

// Timeframe is the symbolic candle interval ("1h", "4h", ...).
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF3m  Timeframe = "3m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF30m Timeframe = "30m"
	TF1h  Timeframe = "1h"
	TF2h  Timeframe = "2h"
	TF4h  Timeframe = "4h"
	TF6h  Timeframe = "6h"
	TF8h  Timeframe = "8h"
	TF12h Timeframe = "12h"
	TF1d  Timeframe = "1d"
	TF3d  Timeframe = "3d"
	TF1w  Timeframe = "1w"
)

// timeframeMinutes maps each supported timeframe to its fixed minute count.
var timeframeMinutes = map[Timeframe]int{
	TF1m: 1, TF3m: 3, TF5m: 5, TF15m: 15, TF30m: 30,
	TF1h: 60, TF2h: 120, TF4h: 240, TF6h: 360, TF8h: 480, TF12h: 720,
	TF1d: 1440, TF3d: 4320, TF1w: 10080,
}

// AllTimeframes lists the supported timeframes in ascending duration order.
func AllTimeframes() []Timeframe {
	return []Timeframe{
		TF1m, TF3m, TF5m, TF15m, TF30m,
		TF1h, TF2h, TF4h, TF6h, TF8h, TF12h,
		TF1d, TF3d, TF1w,
	}
}

// Valid reports whether tf is one of the supported timeframes.
func (tf Timeframe) Valid() bool {
	_, ok := timeframeMinutes[tf]
	return ok
}

// Minutes returns the interval length in minutes, or 0 for unknown timeframes.
func (tf Timeframe) Minutes() int {
	return timeframeMinutes[tf]
}

// Duration returns the interval length as a time.Duration.
func (tf Timeframe) Duration() time.Duration {
	return time.Duration(timeframeMinutes[tf]) * time.Minute
}

// ParseTimeframe validates a timeframe string.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if !tf.Valid() {
		return "", fmt.Errorf("unsupported timeframe: %q", s)
	}
	return tf, nil
}
