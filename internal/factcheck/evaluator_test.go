package factcheck

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigvet/sigvet/internal/models"
)

func candleSeq(closes ...float64) []models.Candle {
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		out[i] = models.Candle{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Open:      c,
			High:      c * 1.005,
			Low:       c * 0.995,
			Close:     c,
			Volume:    10,
		}
	}
	return out
}

func TestEvaluateBuyProfitTarget(t *testing.T) {
	e := NewEvaluator(5.0, 0.1)
	eval := e.Evaluate(100, models.SignalBuy, candleSeq(100, 100.5, 101, 102))

	assert.True(t, eval.Correct)
	assert.Equal(t, models.ExitProfitTarget, eval.ExitReason)
	assert.InDelta(t, 2.0, eval.PriceChangePct, 1e-9)
	assert.Equal(t, models.MoveUp, eval.ActualMove)
	assert.Equal(t, 3, eval.CandlesElapsed)
}

func TestEvaluateBuyStoppedOut(t *testing.T) {
	e := NewEvaluator(5.0, 0.1)
	candles := candleSeq(100, 99, 98, 101)
	candles[2].Low = 94 // trades through the 95.00 stop

	eval := e.Evaluate(100, models.SignalBuy, candles)

	require.False(t, eval.Correct)
	assert.Equal(t, "STOPPED_OUT_CANDLE_2", eval.ExitReason)
	assert.InDelta(t, -5.0, eval.PriceChangePct, 1e-9)
	assert.True(t, models.IsStoppedOut(eval.ExitReason))
	assert.Equal(t, models.MoveDown, eval.ActualMove)
	assert.Equal(t, 2, eval.CandlesElapsed)
}

func TestEvaluateUnitMismatch(t *testing.T) {
	e := NewEvaluator(5.0, 0.1)
	// entry priced in USDT, candles in a different unit entirely
	eval := e.Evaluate(100, models.SignalBuy, candleSeq(2000, 2010, 2020))

	assert.False(t, eval.Correct)
	assert.Equal(t, models.ExitPriceUnitMismatch, eval.ExitReason)
	assert.Zero(t, eval.PriceChangePct)
	assert.Equal(t, models.MoveFlat, eval.ActualMove)
}

func TestEvaluateInsufficientData(t *testing.T) {
	e := NewEvaluator(5.0, 0.1)
	for _, candles := range [][]models.Candle{nil, candleSeq(100)} {
		eval := e.Evaluate(100, models.SignalBuy, candles)
		assert.False(t, eval.Correct)
		assert.Equal(t, models.ExitInsufficientData, eval.ExitReason)
		assert.Zero(t, eval.PriceChangePct)
	}
}

func TestEvaluateBuyProfitTooSmall(t *testing.T) {
	e := NewEvaluator(5.0, 0.1)
	eval := e.Evaluate(100, models.SignalBuy, candleSeq(100, 100.02, 100.05))

	assert.False(t, eval.Correct)
	assert.Equal(t, models.ExitProfitTooSmall, eval.ExitReason)
	assert.InDelta(t, 0.05, eval.PriceChangePct, 1e-9)
	assert.Equal(t, models.MoveFlat, eval.ActualMove)
}

func TestEvaluateBuyLoss(t *testing.T) {
	e := NewEvaluator(5.0, 0.1)
	eval := e.Evaluate(100, models.SignalBuy, candleSeq(100, 99.5, 98))

	assert.False(t, eval.Correct)
	assert.Equal(t, models.ExitLoss, eval.ExitReason)
	assert.InDelta(t, -2.0, eval.PriceChangePct, 1e-9)
	assert.Equal(t, models.MoveDown, eval.ActualMove)
}

func TestEvaluateSellPaths(t *testing.T) {
	e := NewEvaluator(5.0, 0.1)

	t.Run("profit on decline", func(t *testing.T) {
		eval := e.Evaluate(100, models.SignalSell, candleSeq(100, 99, 97))
		assert.True(t, eval.Correct)
		assert.Equal(t, models.ExitProfitTarget, eval.ExitReason)
		assert.InDelta(t, 3.0, eval.PriceChangePct, 1e-9)
		// move is derived from the prediction-relative change, which is
		// positive for a profitable short
		assert.Equal(t, models.MoveUp, eval.ActualMove)
	})

	t.Run("stopped out on rally", func(t *testing.T) {
		candles := candleSeq(100, 101, 102)
		candles[1].High = 105.5
		eval := e.Evaluate(100, models.SignalSell, candles)
		assert.False(t, eval.Correct)
		assert.Equal(t, "STOPPED_OUT_CANDLE_1", eval.ExitReason)
		assert.InDelta(t, -5.0, eval.PriceChangePct, 1e-9)
	})

	t.Run("loss on rally", func(t *testing.T) {
		eval := e.Evaluate(100, models.SignalSell, candleSeq(100, 101, 102))
		assert.False(t, eval.Correct)
		assert.Equal(t, models.ExitLoss, eval.ExitReason)
		assert.InDelta(t, -2.0, eval.PriceChangePct, 1e-9)
	})
}

func TestEvaluateStopScanSkipsDetectionCandle(t *testing.T) {
	e := NewEvaluator(5.0, 0.1)
	candles := candleSeq(100, 100.5, 101)
	candles[0].Low = 90 // the detection candle's wick must not trigger the stop

	eval := e.Evaluate(100, models.SignalBuy, candles)
	assert.Equal(t, models.ExitProfitTarget, eval.ExitReason)
}

func TestEvaluateDefaults(t *testing.T) {
	e := NewEvaluator(0, 0)
	candles := candleSeq(100, 98, 97)
	candles[2].Low = 94.9
	eval := e.Evaluate(100, models.SignalBuy, candles)

	// zero knobs fall back to 5% stop and 0.1% min profit
	assert.Equal(t, fmt.Sprintf("%s_CANDLE_2", models.ExitStoppedOutPrefix), eval.ExitReason)
	assert.InDelta(t, -5.0, eval.PriceChangePct, 1e-9)
}
