package exchange

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateWindowSaturation(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	w := NewRateWindow(10)
	w.now = func() time.Time { return now }

	for i := 0; i < 8; i++ {
		w.Record()
	}
	assert.False(t, w.Saturated())

	w.Record() // 9 of 10 crosses the 90% threshold
	assert.True(t, w.Saturated())
	assert.Equal(t, 9, w.Count())
}

func TestRateWindowSlides(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	w := NewRateWindow(10)
	w.now = func() time.Time { return now }

	for i := 0; i < 9; i++ {
		w.Record()
	}
	assert.True(t, w.Saturated())

	now = now.Add(61 * time.Second)
	assert.False(t, w.Saturated())
	assert.Zero(t, w.Count())
}

func TestRateWindowDefaultLimit(t *testing.T) {
	w := NewRateWindow(0)
	assert.Equal(t, 60, w.Limit())
}
