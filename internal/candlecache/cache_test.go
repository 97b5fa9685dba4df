package candlecache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigvet/sigvet/internal/models"
)

func series(tf models.Timeframe, n int) []models.Candle {
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, n)
	for i := range out {
		out[i] = models.Candle{
			Timestamp: base.Add(time.Duration(i) * tf.Duration()),
			Open:      100, High: 101, Low: 99, Close: 100, Volume: 1,
		}
	}
	return out
}

func TestGetFetchesOnceThenServesFromMemory(t *testing.T) {
	c := New(Options{TTL: time.Minute, MaxLimit: 100})
	var calls atomic.Int64
	fetch := func(ctx context.Context, tf models.Timeframe, limit int) ([]models.Candle, error) {
		calls.Add(1)
		assert.Equal(t, 100, limit) // always fills to MaxLimit
		return series(tf, 50), nil
	}

	first, err := c.Get(context.Background(), "BTC", models.TF1h, 10, fetch)
	require.NoError(t, err)
	assert.Len(t, first, 10)

	second, err := c.Get(context.Background(), "BTC", models.TF1h, 30, fetch)
	require.NoError(t, err)
	assert.Len(t, second, 30)

	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, 1, c.Len())
}

func TestGetTailReturnsMostRecent(t *testing.T) {
	c := New(Options{TTL: time.Minute, MaxLimit: 100})
	fetch := func(ctx context.Context, tf models.Timeframe, limit int) ([]models.Candle, error) {
		return series(tf, 50), nil
	}

	candles, err := c.Get(context.Background(), "BTC", models.TF1h, 5, fetch)
	require.NoError(t, err)
	require.Len(t, candles, 5)

	full := series(models.TF1h, 50)
	assert.Equal(t, full[49].Timestamp, candles[4].Timestamp)
	assert.Equal(t, full[45].Timestamp, candles[0].Timestamp)
}

func TestConcurrentMissesShareOneFetch(t *testing.T) {
	c := New(Options{TTL: time.Minute, MaxLimit: 100})
	var calls atomic.Int64
	fetch := func(ctx context.Context, tf models.Timeframe, limit int) ([]models.Candle, error) {
		calls.Add(1)
		time.Sleep(50 * time.Millisecond)
		return series(tf, 50), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			candles, err := c.Get(context.Background(), "BTC", models.TF1h, 10, fetch)
			assert.NoError(t, err)
			assert.Len(t, candles, 10)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, calls.Load())
}

func TestExpiredEntryRefetches(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	c := New(Options{TTL: 10 * time.Minute, MaxLimit: 100})
	c.now = func() time.Time { return now }

	var calls atomic.Int64
	fetch := func(ctx context.Context, tf models.Timeframe, limit int) ([]models.Candle, error) {
		calls.Add(1)
		return series(tf, 50), nil
	}

	_, err := c.Get(context.Background(), "BTC", models.TF1h, 10, fetch)
	require.NoError(t, err)

	now = now.Add(11 * time.Minute)
	_, err = c.Get(context.Background(), "BTC", models.TF1h, 10, fetch)
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())

	now = now.Add(11 * time.Minute)
	assert.Equal(t, 1, c.Evict())
	assert.Zero(t, c.Len())
}

func TestFetchErrorPropagates(t *testing.T) {
	c := New(Options{TTL: time.Minute, MaxLimit: 100})
	boom := errors.New("venue down")
	_, err := c.Get(context.Background(), "BTC", models.TF1h, 10,
		func(ctx context.Context, tf models.Timeframe, limit int) ([]models.Candle, error) {
			return nil, boom
		})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, c.Len())
}

func TestDerivedTimeframeAggregatesBase(t *testing.T) {
	c := New(Options{TTL: time.Minute, MaxLimit: 100, Derive: true})
	var fetchedTF models.Timeframe
	fetch := func(ctx context.Context, tf models.Timeframe, limit int) ([]models.Candle, error) {
		fetchedTF = tf
		return series(tf, 8), nil
	}

	candles, err := c.Get(context.Background(), "BTC", models.TF4h, 0, fetch)
	require.NoError(t, err)

	// a 4h request is served by aggregating 1h base candles
	assert.Equal(t, models.TF1h, fetchedTF)
	assert.Len(t, candles, 2)
	assert.Equal(t, 4.0, candles[0].Volume) // four base volumes summed
}
