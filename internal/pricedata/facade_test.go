package pricedata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigvet/sigvet/internal/exchange"
	"github.com/sigvet/sigvet/internal/models"
)

type scriptedFetcher struct {
	candles []models.Candle
	err     error
	reqs    []exchange.CandleRequest
}

func (s *scriptedFetcher) FetchWithFallback(_ context.Context, req exchange.CandleRequest) ([]models.Candle, error) {
	s.reqs = append(s.reqs, req)
	return s.candles, s.err
}

func makeCandles(anchor time.Time, tf models.Timeframe, n int) []models.Candle {
	out := make([]models.Candle, n)
	for i := range out {
		out[i] = models.Candle{
			Timestamp: anchor.Add(time.Duration(i) * tf.Duration()),
			Open:      100, High: 101, Low: 99, Close: 100, Volume: 1,
		}
	}
	return out
}

func TestJourneyRequestsPaddedRange(t *testing.T) {
	anchor := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	fetcher := &scriptedFetcher{candles: makeCandles(anchor, models.TF1h, 20)}
	f := New(fetcher)
	f.now = func() time.Time { return anchor.Add(30 * 24 * time.Hour) }

	candles, err := f.Journey(context.Background(), JourneyRequest{
		Symbol: "BTC", Anchor: anchor, Timeframe: models.TF1h, Horizon: 10,
	})
	require.NoError(t, err)

	// horizon 10 plus the 5-candle buffer
	assert.Len(t, candles, 15)
	require.Len(t, fetcher.reqs, 1)
	req := fetcher.reqs[0]
	assert.Equal(t, anchor.Unix(), req.Start)
	assert.Equal(t, anchor.Add(15*time.Hour).Unix(), req.End)
}

func TestJourneyRejectsAncientAnchor(t *testing.T) {
	anchor := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f := New(&scriptedFetcher{})
	f.now = func() time.Time { return anchor.Add(400 * 24 * time.Hour) }

	_, err := f.Journey(context.Background(), JourneyRequest{
		Symbol: "BTC", Anchor: anchor, Timeframe: models.TF1h, Horizon: 10,
	})
	assert.ErrorIs(t, err, ErrAnchorTooOld)
}

func TestJourneyRequiresTwoCandles(t *testing.T) {
	anchor := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	fetcher := &scriptedFetcher{candles: makeCandles(anchor, models.TF1h, 1)}
	f := New(fetcher)
	f.now = func() time.Time { return anchor.Add(24 * time.Hour) }

	_, err := f.Journey(context.Background(), JourneyRequest{
		Symbol: "BTC", Anchor: anchor, Timeframe: models.TF1h, Horizon: 10,
	})
	assert.ErrorIs(t, err, ErrInsufficientJourney)
}

func TestJourneyInvalidTimeframe(t *testing.T) {
	f := New(&scriptedFetcher{})
	_, err := f.Journey(context.Background(), JourneyRequest{
		Symbol: "BTC", Anchor: time.Now(), Timeframe: models.Timeframe("7m"), Horizon: 10,
	})
	assert.Error(t, err)
}

func TestJourneyPropagatesFetchError(t *testing.T) {
	anchor := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	boom := errors.New("all venues failed")
	f := New(&scriptedFetcher{err: boom})
	f.now = func() time.Time { return anchor.Add(24 * time.Hour) }

	_, err := f.Journey(context.Background(), JourneyRequest{
		Symbol: "BTC", Anchor: anchor, Timeframe: models.TF1h, Horizon: 10,
	})
	assert.ErrorIs(t, err, boom)
}

func TestJourneyBatchStopsOnCancel(t *testing.T) {
	anchor := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	fetcher := &scriptedFetcher{candles: makeCandles(anchor, models.TF1h, 20)}
	f := New(fetcher)
	f.now = func() time.Time { return anchor.Add(24 * time.Hour) }

	reqs := make([]JourneyRequest, 25)
	for i := range reqs {
		reqs[i] = JourneyRequest{Symbol: "BTC", Anchor: anchor, Timeframe: models.TF1h, Horizon: 10}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results := f.JourneyBatch(ctx, reqs)

	// the first chunk of ten completes, the cancelled inter-chunk pause
	// stops the rest
	assert.Len(t, results, 10)
	for _, r := range results {
		assert.NoError(t, r.Err)
	}
}
