package models

import (
	"fmt"
	"sort"
	"time"
)

// Candle is one normalized OHLCV interval. All venue responses are converted
// into this shape before leaving the exchange layer.
type Candle struct {
	Timestamp time.Time `json:"timestamp" db:"ts"`
	Open      float64   `json:"open" db:"open"`
	High      float64   `json:"high" db:"high"`
	Low       float64   `json:"low" db:"low"`
	Close     float64   `json:"close" db:"close"`
	Volume    float64   `json:"volume" db:"volume"`
}

// Validate checks the OHLCV invariants: low <= open,close <= high and
// non-negative volume.
func (c Candle) Validate() error {
	if c.Low > c.High {
		return fmt.Errorf("candle at %s: low %.8f > high %.8f", c.Timestamp.Format(time.RFC3339), c.Low, c.High)
	}
	if c.Open < c.Low || c.Open > c.High {
		return fmt.Errorf("candle at %s: open %.8f outside [low, high]", c.Timestamp.Format(time.RFC3339), c.Open)
	}
	if c.Close < c.Low || c.Close > c.High {
		return fmt.Errorf("candle at %s: close %.8f outside [low, high]", c.Timestamp.Format(time.RFC3339), c.Close)
	}
	if c.Volume < 0 {
		return fmt.Errorf("candle at %s: negative volume %.8f", c.Timestamp.Format(time.RFC3339), c.Volume)
	}
	return nil
}

// SortCandles orders candles ascending by timestamp in place.
func SortCandles(candles []Candle) {
	sort.Slice(candles, func(i, j int) bool {
		return candles[i].Timestamp.Before(candles[j].Timestamp)
	})
}

// CandlesAscending reports whether the sequence is strictly time-ordered.
func CandlesAscending(candles []Candle) bool {
	for i := 1; i < len(candles); i++ {
		if !candles[i].Timestamp.After(candles[i-1].Timestamp) {
			return false
		}
	}
	return true
}

// AggregateCandles folds `count` consecutive base candles into one coarser
// candle: open of the first, close of the last, max high, min low, summed
// volume. Used by the derived-timeframe path of the candle cache.
func AggregateCandles(base []Candle, count int) []Candle {
	if count <= 1 || len(base) == 0 {
		return base
	}
	out := make([]Candle, 0, len(base)/count)
	for i := 0; i+count <= len(base); i += count {
		group := base[i : i+count]
		agg := Candle{
			Timestamp: group[0].Timestamp,
			Open:      group[0].Open,
			High:      group[0].High,
			Low:       group[0].Low,
			Close:     group[len(group)-1].Close,
		}
		for _, c := range group {
			if c.High > agg.High {
				agg.High = c.High
			}
			if c.Low < agg.Low {
				agg.Low = c.Low
			}
			agg.Volume += c.Volume
		}
		out = append(out, agg)
	}
	return out
}
