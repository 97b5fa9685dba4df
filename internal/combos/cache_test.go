package combos

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemorySummaryCacheExpires(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	cache := NewMemorySummaryCache(time.Hour).(*memorySummaryCache)
	cache.now = func() time.Time { return now }

	ctx := context.Background()
	cache.Set(ctx, "macd_cross|1h", SignalSummary{Accuracy: 75, SampleSize: 40, Timestamp: now})

	got, ok := cache.Get(ctx, "macd_cross|1h")
	assert.True(t, ok)
	assert.Equal(t, 75.0, got.Accuracy)

	now = now.Add(2 * time.Hour)
	_, ok = cache.Get(ctx, "macd_cross|1h")
	assert.False(t, ok)
}

func TestMemorySummaryCacheMissOnUnknownKey(t *testing.T) {
	cache := NewMemorySummaryCache(0)
	_, ok := cache.Get(context.Background(), "nope|1h")
	assert.False(t, ok)
}
