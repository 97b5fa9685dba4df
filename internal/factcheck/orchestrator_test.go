package factcheck

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigvet/sigvet/internal/accuracy"
	"github.com/sigvet/sigvet/internal/exchange"
	"github.com/sigvet/sigvet/internal/models"
	"github.com/sigvet/sigvet/internal/persistence/memory"
	"github.com/sigvet/sigvet/internal/pricedata"
)

// fakeFetcher serves deterministic journeys keyed by symbol.
type fakeFetcher struct {
	journeys map[string][]models.Candle
	calls    int
}

func (f *fakeFetcher) FetchWithFallback(_ context.Context, req exchange.CandleRequest) ([]models.Candle, error) {
	f.calls++
	return f.journeys[req.Symbol], nil
}

func journeyFrom(anchor time.Time, closes ...float64) []models.Candle {
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		out[i] = models.Candle{
			Timestamp: anchor.Add(time.Duration(i) * time.Hour),
			Open:      c, High: c * 1.002, Low: c * 0.998, Close: c,
			Volume: 5,
		}
	}
	return out
}

func TestOrchestratorRun(t *testing.T) {
	anchor := time.Now().UTC().Add(-48 * time.Hour).Truncate(time.Hour)
	store := memory.NewStore()
	store.SeedLiveSignals(
		models.LiveSignal{
			SignalName: "macd_cross", Timeframe: models.TF1h, Symbol: "BTC",
			SignalType: models.SignalBuy, Strength: models.StrengthStrong,
			Price: 100, Timestamp: anchor,
		},
		models.LiveSignal{
			SignalName: "rsi_overbought", Timeframe: models.TF1h, Symbol: "ETH",
			SignalType: models.SignalSell, Strength: models.StrengthStrong,
			Price: 100, Timestamp: anchor.Add(time.Hour),
		},
	)

	fetcher := &fakeFetcher{journeys: map[string][]models.Candle{
		"BTC": journeyFrom(anchor, 100, 101, 102),         // long wins
		"ETH": journeyFrom(anchor.Add(time.Hour), 100, 101, 103), // short loses
	}}

	repos := store.Repository()
	orch := NewOrchestrator(repos, pricedata.New(fetcher), NewEvaluator(5, 0.1),
		NewFilter(store, store), accuracy.New(repos, 1), nil)

	summary, err := orch.Run(context.Background(), Options{UseFiltering: true, MaxWorkers: 2})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Pending)
	assert.Equal(t, 2, summary.TotalChecked)
	assert.Equal(t, 1, summary.Correct)
	assert.Equal(t, 1, summary.Incorrect)
	assert.InDelta(t, 50.0, summary.Accuracy, 1e-9)
	assert.False(t, summary.Partial)
	assert.NotEmpty(t, summary.RunID)
	assert.Len(t, summary.Details, 2)

	// both outcomes persisted
	n, err := store.CountBySignal(context.Background(), "macd_cross", models.TF1h)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// confidence recomputed for the touched pairs
	adj, err := store.GetAdjustment(context.Background(), "macd_cross", models.TF1h)
	require.NoError(t, err)
	assert.Equal(t, 1, adj.SampleSize)
}

func TestOrchestratorIdempotent(t *testing.T) {
	anchor := time.Now().UTC().Add(-24 * time.Hour).Truncate(time.Hour)
	store := memory.NewStore()
	store.SeedLiveSignals(models.LiveSignal{
		SignalName: "macd_cross", Timeframe: models.TF1h, Symbol: "BTC",
		SignalType: models.SignalBuy, Strength: models.StrengthStrong,
		Price: 100, Timestamp: anchor,
	})
	fetcher := &fakeFetcher{journeys: map[string][]models.Candle{
		"BTC": journeyFrom(anchor, 100, 101, 102),
	}}

	repos := store.Repository()
	orch := NewOrchestrator(repos, pricedata.New(fetcher), NewEvaluator(5, 0.1), nil, nil, nil)

	first, err := orch.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, first.TotalChecked)

	// the anti-join leaves nothing pending on a re-run
	second, err := orch.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Zero(t, second.Pending)
	assert.Zero(t, second.TotalChecked)
}

func TestOrchestratorFilterDrops(t *testing.T) {
	anchor := time.Now().UTC().Add(-24 * time.Hour).Truncate(time.Hour)
	store := memory.NewStore()
	sig := models.LiveSignal{
		SignalName: "obv_div", Timeframe: models.TF1h, Symbol: "BTC",
		SignalType: models.SignalBuy, Strength: models.StrengthWeak,
		Confidence: 10, Price: 100, Timestamp: anchor,
	}
	store.SeedLiveSignals(sig)
	// enough history that the sample-size door stays closed
	for i := 0; i < 25; i++ {
		store.SeedFactChecks(models.FactCheck{
			SignalName: "obv_div", Timeframe: models.TF1h,
			DetectedAt: anchor.Add(-time.Duration(i+1) * time.Hour),
		})
	}

	filter := NewFilter(store, store)
	filter.SetRandFunc(func() float64 { return 0.99 })

	fetcher := &fakeFetcher{journeys: map[string][]models.Candle{
		"BTC": journeyFrom(anchor, 100, 101, 102),
	}}
	repos := store.Repository()
	orch := NewOrchestrator(repos, pricedata.New(fetcher), NewEvaluator(5, 0.1), filter, nil, nil)

	summary, err := orch.Run(context.Background(), Options{UseFiltering: true})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Filtered)
	assert.Zero(t, summary.TotalChecked)
	assert.Zero(t, fetcher.calls)
}

func TestOrchestratorCancelledContext(t *testing.T) {
	anchor := time.Now().UTC().Add(-24 * time.Hour).Truncate(time.Hour)
	store := memory.NewStore()
	store.SeedLiveSignals(models.LiveSignal{
		SignalName: "macd_cross", Timeframe: models.TF1h, Symbol: "BTC",
		SignalType: models.SignalBuy, Strength: models.StrengthStrong,
		Price: 100, Timestamp: anchor,
	})
	fetcher := &fakeFetcher{journeys: map[string][]models.Candle{
		"BTC": journeyFrom(anchor, 100, 101, 102),
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	repos := store.Repository()
	orch := NewOrchestrator(repos, pricedata.New(fetcher), NewEvaluator(5, 0.1), nil, nil, nil)
	summary, err := orch.Run(ctx, Options{})
	require.NoError(t, err)
	assert.True(t, summary.Partial)
	assert.Zero(t, summary.TotalChecked)
}
