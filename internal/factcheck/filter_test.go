package factcheck

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigvet/sigvet/internal/models"
	"github.com/sigvet/sigvet/internal/persistence/memory"
)

func weakSignal(tf models.Timeframe) models.LiveSignal {
	return models.LiveSignal{
		SignalName: "rsi_oversold",
		Timeframe:  tf,
		Symbol:     "BTC",
		SignalType: models.SignalBuy,
		Strength:   models.StrengthWeak,
		Confidence: 40,
		Price:      50000,
		Timestamp:  time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

// seedHistory gives a pair enough fact-checks to clear the sample gate.
func seedHistory(s *memory.Store, name string, tf models.Timeframe, n int) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		s.SeedFactChecks(models.FactCheck{
			SignalName: name,
			Timeframe:  tf,
			DetectedAt: base.Add(time.Duration(i) * time.Hour),
		})
	}
}

func TestFilterStrengthRules(t *testing.T) {
	store := memory.NewStore()
	f := NewFilter(store, store)

	for _, tc := range []struct {
		strength models.Strength
		reason   string
	}{
		{models.StrengthVeryStrong, ReasonStrongSignal},
		{models.StrengthStrong, ReasonStrongSignal},
		{models.StrengthModerate, ReasonModerateSignal},
	} {
		sig := weakSignal(models.TF1h)
		sig.Strength = tc.strength
		d, err := f.Decide(context.Background(), sig)
		require.NoError(t, err)
		assert.True(t, d.ShouldCheck)
		assert.Equal(t, tc.reason, d.Reason)
	}
}

func TestFilterHighConfidence(t *testing.T) {
	store := memory.NewStore()
	f := NewFilter(store, store)

	sig := weakSignal(models.TF1h)
	sig.Confidence = 80

	d, err := f.Decide(context.Background(), sig)
	require.NoError(t, err)
	assert.True(t, d.ShouldCheck)
	assert.Equal(t, ReasonHighConfidence, d.Reason)
}

func TestFilterWinningComboMember(t *testing.T) {
	store := memory.NewStore()
	seedHistory(store, "rsi_oversold", models.TF1h, 25)
	require.NoError(t, store.UpsertTFCombo(context.Background(), models.TFCombo{
		SignalNames:     []string{"rsi_oversold_extreme", "macd_cross"},
		SignalNamesHash: models.ComboHash([]string{"rsi_oversold_extreme", "macd_cross"}, models.TF1h),
		Timeframe:       models.TF1h,
		Accuracy:        72,
		SampleCount:     40,
	}))

	f := NewFilter(store, store)
	f.SetRandFunc(func() float64 { return 0.99 })

	// "rsi_oversold" is a substring of the combo member "rsi_oversold_extreme"
	d, err := f.Decide(context.Background(), weakSignal(models.TF1h))
	require.NoError(t, err)
	assert.True(t, d.ShouldCheck)
	assert.Equal(t, ReasonWinningComboMember, d.Reason)
}

func TestFilterInsufficientData(t *testing.T) {
	store := memory.NewStore()
	f := NewFilter(store, store)
	f.SetRandFunc(func() float64 { return 0.99 })

	d, err := f.Decide(context.Background(), weakSignal(models.TF1h))
	require.NoError(t, err)
	assert.True(t, d.ShouldCheck)
	assert.Equal(t, ReasonInsufficientData, d.Reason)
}

func TestFilterRandomSample(t *testing.T) {
	store := memory.NewStore()
	seedHistory(store, "rsi_oversold", models.TF1h, 25)
	f := NewFilter(store, store)

	f.SetRandFunc(func() float64 { return 0.1 })
	d, err := f.Decide(context.Background(), weakSignal(models.TF1h))
	require.NoError(t, err)
	assert.True(t, d.ShouldCheck)
	assert.Equal(t, ReasonRandomSample, d.Reason)

	f.SetRandFunc(func() float64 { return 0.5 })
	d, err = f.Decide(context.Background(), weakSignal(models.TF1h))
	require.NoError(t, err)
	assert.False(t, d.ShouldCheck)
	assert.Equal(t, ReasonWeakSignalSkip, d.Reason)
}

func TestFilterNonStandardTimeframe(t *testing.T) {
	store := memory.NewStore()
	f := NewFilter(store, store)
	f.SetRandFunc(func() float64 { return 0.99 })

	for _, tf := range []models.Timeframe{models.TF2h, models.TF6h} {
		seedHistory(store, "rsi_oversold", tf, 25)
		d, err := f.Decide(context.Background(), weakSignal(tf))
		require.NoError(t, err)
		assert.False(t, d.ShouldCheck)
		assert.Equal(t, ReasonNonStandardTF, d.Reason)
	}
}

func TestFilterStats(t *testing.T) {
	store := memory.NewStore()
	seedHistory(store, "rsi_oversold", models.TF1h, 25)
	f := NewFilter(store, store)
	f.SetRandFunc(func() float64 { return 0.99 })

	strong := weakSignal(models.TF1h)
	strong.Strength = models.StrengthStrong
	_, err := f.Decide(context.Background(), strong)
	require.NoError(t, err)
	_, err = f.Decide(context.Background(), weakSignal(models.TF1h))
	require.NoError(t, err)

	stats := f.Stats()
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Checked)
	assert.InDelta(t, 0.5, stats.CheckRate, 1e-9)
	assert.Equal(t, 1, stats.ByReason[ReasonStrongSignal])
	assert.Equal(t, 1, stats.ByReason[ReasonWeakSignalSkip])
}
