// Package accuracy derives per-signal statistics from the fact-check log and
// maintains the accuracy-weighted confidence adjustments.
package accuracy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sigvet/sigvet/internal/models"
	"github.com/sigvet/sigvet/internal/persistence"
)

const (
	// DefaultMinSamples gates statistics that would otherwise be noise.
	DefaultMinSamples = 20
	// fallbackConfidence is used when a signal has no catalog entry.
	fallbackConfidence = 70.0
	// fullWeightSamples is the sample count at which measured accuracy
	// fully replaces the configured baseline.
	fullWeightSamples = 500.0
)

// ErrInsufficientSamples is returned when a pair's history is below the
// minimum sample gate.
var ErrInsufficientSamples = errors.New("insufficient fact-check samples")

// Aggregator computes accuracy stats and confidence adjustments.
type Aggregator struct {
	factChecks persistence.FactCheckRepo
	confidence persistence.ConfidenceRepo
	signals    persistence.SignalRepo
	minSamples int
	now        func() time.Time
}

// New creates an aggregator; minSamples <= 0 uses the default gate.
func New(repos *persistence.Repository, minSamples int) *Aggregator {
	if minSamples <= 0 {
		minSamples = DefaultMinSamples
	}
	return &Aggregator{
		factChecks: repos.FactChecks,
		confidence: repos.Confidence,
		signals:    repos.Signals,
		minSamples: minSamples,
		now:        time.Now,
	}
}

// SignalStats scans the full fact-check history of one pair. Returns
// ErrInsufficientSamples below the gate.
func (a *Aggregator) SignalStats(ctx context.Context, signalName string, tf models.Timeframe) (*models.SignalAccuracy, error) {
	checks, err := a.factChecks.ListBySignal(ctx, signalName, tf, 0)
	if err != nil {
		return nil, fmt.Errorf("accuracy %s/%s: %w", signalName, tf, err)
	}
	if len(checks) < a.minSamples {
		return nil, fmt.Errorf("accuracy %s/%s (%d samples): %w", signalName, tf, len(checks), ErrInsufficientSamples)
	}
	return Summarize(signalName, tf, checks), nil
}

// Summarize computes the accuracy statistic over an already-loaded history.
func Summarize(signalName string, tf models.Timeframe, checks []models.FactCheck) *models.SignalAccuracy {
	acc := &models.SignalAccuracy{
		SignalName:   signalName,
		Timeframe:    tf,
		TotalSamples: len(checks),
	}
	var sumAll, sumWin, sumLoss float64
	var losses int
	for _, fc := range checks {
		sumAll += fc.PriceChangePct
		if fc.PredictedCorrectly {
			acc.CorrectPredictions++
			sumWin += fc.PriceChangePct
		} else {
			losses++
			sumLoss += fc.PriceChangePct
		}
		if models.IsStoppedOut(fc.ExitReason) {
			acc.StoppedOut++
		}
	}
	if acc.TotalSamples > 0 {
		acc.Accuracy = float64(acc.CorrectPredictions) / float64(acc.TotalSamples) * 100
		acc.AvgPriceChange = sumAll / float64(acc.TotalSamples)
		acc.StoppedOutRate = float64(acc.StoppedOut) / float64(acc.TotalSamples) * 100
	}
	if acc.CorrectPredictions > 0 {
		acc.AvgWin = sumWin / float64(acc.CorrectPredictions)
	}
	if losses > 0 {
		acc.AvgLoss = sumLoss / float64(losses)
	}
	if acc.AvgLoss != 0 {
		acc.ProfitFactor = math.Abs(acc.AvgWin / acc.AvgLoss)
	}
	return acc
}

// AdjustConfidence blends the configured baseline confidence with measured
// accuracy, weighted by sample size, and upserts the result.
func (a *Aggregator) AdjustConfidence(ctx context.Context, signalName string, tf models.Timeframe) (*models.ConfidenceAdjustment, error) {
	stats, err := a.SignalStats(ctx, signalName, tf)
	if err != nil {
		return nil, err
	}

	original := fallbackConfidence
	def, err := a.signals.Get(ctx, signalName, tf)
	switch {
	case err == nil && def.BaseConfidence > 0:
		original = def.BaseConfidence
	case err != nil && !errors.Is(err, persistence.ErrNotFound):
		return nil, fmt.Errorf("confidence %s/%s: %w", signalName, tf, err)
	}

	weight := math.Min(1.0, float64(stats.TotalSamples)/fullWeightSamples)
	base := original*(1-weight) + stats.Accuracy*weight

	var profitBonus float64
	switch pf := stats.ProfitFactor; {
	case pf > 2.0:
		profitBonus = math.Min(10, (pf-2)*5)
	case pf < 1.0:
		profitBonus = math.Max(-15, (pf-1)*15)
	}

	var stopPenalty float64
	if stats.StoppedOutRate > 30 {
		stopPenalty = (stats.StoppedOutRate - 30) * 0.3
	}

	adjusted := math.Round(base + profitBonus - stopPenalty)
	if adjusted < 0 {
		adjusted = 0
	} else if adjusted > 100 {
		adjusted = 100
	}

	adj := &models.ConfidenceAdjustment{
		SignalName:         signalName,
		Timeframe:          tf,
		OriginalConfidence: original,
		AdjustedConfidence: adjusted,
		AccuracyRate:       stats.Accuracy,
		SampleSize:         stats.TotalSamples,
		LastUpdated:        a.now(),
	}
	if err := a.confidence.Upsert(ctx, *adj); err != nil {
		return nil, fmt.Errorf("confidence upsert %s/%s: %w", signalName, tf, err)
	}
	return adj, nil
}

// Recompute refreshes the confidence adjustment for each touched pair.
// Pairs under the sample gate are skipped quietly.
func (a *Aggregator) Recompute(ctx context.Context, pairs []models.SignalTimeframe) {
	for _, pair := range pairs {
		adj, err := a.AdjustConfidence(ctx, pair.SignalName, pair.Timeframe)
		if err != nil {
			if errors.Is(err, ErrInsufficientSamples) {
				continue
			}
			log.Warn().Err(err).Str("signal", pair.SignalName).Str("timeframe", string(pair.Timeframe)).
				Msg("Confidence recompute failed")
			continue
		}
		log.Info().Str("signal", pair.SignalName).Str("timeframe", string(pair.Timeframe)).
			Float64("adjusted", adj.AdjustedConfidence).Float64("accuracy", adj.AccuracyRate).
			Int("samples", adj.SampleSize).Msg("Confidence adjusted")
	}
}
