package combos

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigvet/sigvet/internal/models"
	"github.com/sigvet/sigvet/internal/persistence/memory"
)

func TestMineCrossTimeframeWithinWindow(t *testing.T) {
	store := memory.NewStore()
	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	// the 4h echo lands 600s after each 1h base occurrence, inside the
	// one-hour tolerance window
	for i := 0; i < 4; i++ {
		at := base.Add(time.Duration(i) * 24 * time.Hour)
		store.SeedFactChecks(
			models.FactCheck{
				SignalName: "macd_cross", Timeframe: models.TF1h,
				DetectedAt: at, PredictedCorrectly: true, PriceChangePct: 2.0,
			},
			models.FactCheck{
				SignalName: "ema_stack", Timeframe: models.TF4h,
				DetectedAt: at.Add(600 * time.Second), PredictedCorrectly: true, PriceChangePct: 1.5,
			},
		)
	}

	miner := NewMiner(store.Repository(), nil, nil, miningConfig())
	summary, err := miner.MineCrossTimeframe(context.Background(), CrossOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Stored)

	combos, err := store.ListCrossTFCombos(context.Background())
	require.NoError(t, err)
	require.Len(t, combos, 1)

	combo := combos[0]
	assert.Equal(t, "ema_stack@4h+macd_cross@1h", combo.ComboSignature)
	assert.Equal(t, 4, combo.SampleCount)
	assert.InDelta(t, 100.0, combo.Accuracy, 1e-9)
	assert.Equal(t, 2, combo.NumTimeframes)
	assert.Equal(t, 2, combo.ComboSize)
}

func TestMineCrossTimeframeOutsideWindow(t *testing.T) {
	store := memory.NewStore()
	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	// echoes land two hours away, outside the window
	for i := 0; i < 4; i++ {
		at := base.Add(time.Duration(i) * 24 * time.Hour)
		store.SeedFactChecks(
			models.FactCheck{
				SignalName: "macd_cross", Timeframe: models.TF1h,
				DetectedAt: at, PredictedCorrectly: true, PriceChangePct: 2.0,
			},
			models.FactCheck{
				SignalName: "ema_stack", Timeframe: models.TF4h,
				DetectedAt: at.Add(2 * time.Hour), PredictedCorrectly: true, PriceChangePct: 1.5,
			},
		)
	}

	miner := NewMiner(store.Repository(), nil, nil, miningConfig())
	summary, err := miner.MineCrossTimeframe(context.Background(), CrossOptions{})
	require.NoError(t, err)
	assert.Zero(t, summary.Stored)
}

func TestMineCrossTimeframeRequiresDistinctTimeframes(t *testing.T) {
	store := memory.NewStore()
	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	// two pairs sharing one timeframe never reach the distinct-TF minimum
	for i := 0; i < 4; i++ {
		at := base.Add(time.Duration(i) * 24 * time.Hour)
		store.SeedFactChecks(
			models.FactCheck{
				SignalName: "macd_cross", Timeframe: models.TF1h,
				DetectedAt: at, PredictedCorrectly: true, PriceChangePct: 2.0,
			},
			models.FactCheck{
				SignalName: "rsi_oversold", Timeframe: models.TF1h,
				DetectedAt: at, PredictedCorrectly: true, PriceChangePct: 1.0,
			},
		)
	}

	miner := NewMiner(store.Repository(), nil, nil, miningConfig())
	summary, err := miner.MineCrossTimeframe(context.Background(), CrossOptions{})
	require.NoError(t, err)
	assert.Zero(t, summary.Stored)
}

func TestMineCrossTimeframeAccuracyFromBase(t *testing.T) {
	store := memory.NewStore()
	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	// the base pair (first in sorted order) alternates outcomes; the echo
	// is always present
	for i := 0; i < 4; i++ {
		at := base.Add(time.Duration(i) * 24 * time.Hour)
		store.SeedFactChecks(
			models.FactCheck{
				SignalName: "alpha_macd", Timeframe: models.TF1h,
				DetectedAt: at, PredictedCorrectly: i%2 == 0, PriceChangePct: 2.0,
			},
			models.FactCheck{
				SignalName: "beta_ema", Timeframe: models.TF4h,
				DetectedAt: at, PredictedCorrectly: true, PriceChangePct: 1.5,
			},
		)
	}

	cfg := miningConfig()
	cfg.MinAccuracy = 40.0
	miner := NewMiner(store.Repository(), nil, nil, cfg)
	summary, err := miner.MineCrossTimeframe(context.Background(), CrossOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, summary.Stored)

	combos, err := store.ListCrossTFCombos(context.Background())
	require.NoError(t, err)
	require.Len(t, combos, 1)
	assert.InDelta(t, 50.0, combos[0].Accuracy, 1e-9)
	assert.Equal(t, 2, combos[0].CorrectPredictions)
}
