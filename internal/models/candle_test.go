package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkCandle(ts time.Time, o, h, l, c, v float64) Candle {
	return Candle{Timestamp: ts, Open: o, High: h, Low: l, Close: c, Volume: v}
}

func TestCandleValidate(t *testing.T) {
	ts := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	assert.NoError(t, mkCandle(ts, 100, 101, 99, 100.5, 1).Validate())
	assert.Error(t, mkCandle(ts, 100, 99, 101, 100, 1).Validate())  // low > high
	assert.Error(t, mkCandle(ts, 102, 101, 99, 100, 1).Validate())  // open above high
	assert.Error(t, mkCandle(ts, 100, 101, 99, 98, 1).Validate())   // close below low
	assert.Error(t, mkCandle(ts, 100, 101, 99, 100, -1).Validate()) // negative volume
}

func TestSortCandles(t *testing.T) {
	ts := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	candles := []Candle{
		mkCandle(ts.Add(2*time.Hour), 100, 101, 99, 100, 1),
		mkCandle(ts, 100, 101, 99, 100, 1),
		mkCandle(ts.Add(time.Hour), 100, 101, 99, 100, 1),
	}
	SortCandles(candles)
	assert.True(t, CandlesAscending(candles))
	assert.Equal(t, ts, candles[0].Timestamp)
}

func TestAggregateCandles(t *testing.T) {
	ts := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	base := []Candle{
		mkCandle(ts, 100, 102, 99, 101, 1),
		mkCandle(ts.Add(time.Hour), 101, 105, 100, 104, 2),
		mkCandle(ts.Add(2*time.Hour), 104, 104, 95, 96, 3),
		mkCandle(ts.Add(3*time.Hour), 96, 98, 96, 97, 4),
		mkCandle(ts.Add(4*time.Hour), 97, 99, 96, 98, 5), // incomplete group dropped
	}

	out := AggregateCandles(base, 4)
	require.Len(t, out, 1)
	agg := out[0]
	assert.Equal(t, ts, agg.Timestamp)
	assert.Equal(t, 100.0, agg.Open)
	assert.Equal(t, 105.0, agg.High)
	assert.Equal(t, 95.0, agg.Low)
	assert.Equal(t, 97.0, agg.Close)
	assert.Equal(t, 10.0, agg.Volume)
}
