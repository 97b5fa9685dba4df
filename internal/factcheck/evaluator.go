// Package factcheck validates detected signals against the candle journey
// that followed them: the evaluator applies stop-loss and profit-threshold
// semantics, the filter decides which signals are worth checking, and the
// orchestrator drives bulk runs.
package factcheck

import (
	"fmt"

	"github.com/sigvet/sigvet/internal/models"
)

const (
	// DefaultStopLossPct is the stop-loss distance used when none is
	// configured. A single constant governs both BUY and SELL validation.
	DefaultStopLossPct = 5.0
	// DefaultMinProfitPct is the threshold below which a positive move
	// still counts as a miss.
	DefaultMinProfitPct = 0.1

	// unitMismatchRatio flags entry/final ratios that can only come from
	// mixing price units (e.g. Rial candles against a USDT entry).
	unitMismatchRatio = 10.0
	// maxSanePriceChange caps plausible window moves; larger swings are
	// recorded as anomalies rather than outcomes.
	maxSanePriceChange = 50.0
)

// Evaluation is the outcome of replaying one signal against its journey.
type Evaluation struct {
	Correct        bool
	ExitReason     string
	PriceChangePct float64
	ActualMove     models.ActualMove
	CandlesElapsed int
	FinalPrice     float64
}

// Evaluator applies BUY/SELL validation semantics.
type Evaluator struct {
	stopLossPct  float64
	minProfitPct float64
}

// NewEvaluator creates an evaluator; non-positive knobs use the defaults.
func NewEvaluator(stopLossPct, minProfitPct float64) *Evaluator {
	if stopLossPct <= 0 {
		stopLossPct = DefaultStopLossPct
	}
	if minProfitPct <= 0 {
		minProfitPct = DefaultMinProfitPct
	}
	return &Evaluator{stopLossPct: stopLossPct, minProfitPct: minProfitPct}
}

// Evaluate replays a signal. The candle sequence must be ascending and
// start at (or just after) the detection instant; candles[0] is the
// detection candle and is not considered for stop-outs.
func (e *Evaluator) Evaluate(entryPrice float64, signalType models.SignalType, candles []models.Candle) Evaluation {
	if len(candles) < 2 {
		return Evaluation{
			ExitReason: models.ExitInsufficientData,
			ActualMove: models.MoveFlat,
		}
	}

	finalPrice := candles[len(candles)-1].Close
	if ratio := finalPrice / entryPrice; ratio > unitMismatchRatio || ratio < 1/unitMismatchRatio {
		return Evaluation{
			ExitReason:     models.ExitPriceUnitMismatch,
			ActualMove:     models.MoveFlat,
			CandlesElapsed: len(candles) - 1,
			FinalPrice:     finalPrice,
		}
	}

	var eval Evaluation
	switch signalType {
	case models.SignalSell:
		eval = e.evaluateSell(entryPrice, candles)
	default:
		eval = e.evaluateBuy(entryPrice, candles)
	}
	eval.FinalPrice = finalPrice
	eval.ActualMove = deriveMove(eval.PriceChangePct)
	return eval
}

// evaluateBuy checks a long prediction: stopped out when any forward candle
// trades through entry*(1-stop), otherwise judged on the final close.
func (e *Evaluator) evaluateBuy(entry float64, candles []models.Candle) Evaluation {
	stopPrice := entry * (1 - e.stopLossPct/100)
	for i := 1; i < len(candles); i++ {
		if candles[i].Low <= stopPrice {
			return Evaluation{
				ExitReason:     fmt.Sprintf("%s_CANDLE_%d", models.ExitStoppedOutPrefix, i),
				PriceChangePct: -e.stopLossPct,
				CandlesElapsed: i,
			}
		}
	}
	final := candles[len(candles)-1].Close
	pct := (final - entry) / entry * 100
	return e.classify(pct, len(candles)-1)
}

// evaluateSell is the symmetric short-like check: stop above entry, profit
// measured on the way down.
func (e *Evaluator) evaluateSell(entry float64, candles []models.Candle) Evaluation {
	stopPrice := entry * (1 + e.stopLossPct/100)
	for i := 1; i < len(candles); i++ {
		if candles[i].High >= stopPrice {
			return Evaluation{
				ExitReason:     fmt.Sprintf("%s_CANDLE_%d", models.ExitStoppedOutPrefix, i),
				PriceChangePct: -e.stopLossPct,
				CandlesElapsed: i,
			}
		}
	}
	final := candles[len(candles)-1].Close
	pct := (entry - final) / entry * 100
	return e.classify(pct, len(candles)-1)
}

func (e *Evaluator) classify(pct float64, elapsed int) Evaluation {
	if pct > maxSanePriceChange || pct < -maxSanePriceChange {
		return Evaluation{
			ExitReason:     models.ExitInvalidChange,
			CandlesElapsed: elapsed,
		}
	}
	switch {
	case pct > e.minProfitPct:
		return Evaluation{Correct: true, ExitReason: models.ExitProfitTarget, PriceChangePct: pct, CandlesElapsed: elapsed}
	case pct > 0:
		return Evaluation{ExitReason: models.ExitProfitTooSmall, PriceChangePct: pct, CandlesElapsed: elapsed}
	default:
		return Evaluation{ExitReason: models.ExitLoss, PriceChangePct: pct, CandlesElapsed: elapsed}
	}
}

// deriveMove classifies the realized direction: moves within ±0.1% are FLAT.
func deriveMove(pct float64) models.ActualMove {
	switch {
	case pct > 0.1:
		return models.MoveUp
	case pct < -0.1:
		return models.MoveDown
	default:
		return models.MoveFlat
	}
}
