package exchange

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvailabilityMarksAreMutuallyExclusive(t *testing.T) {
	c := NewAvailabilityCache(time.Hour)
	c.MarkUnavailable("BTC", VenueBinance)
	assert.True(t, c.IsUnavailable("BTC", VenueBinance))

	c.MarkAvailable("BTC", VenueBinance)
	assert.False(t, c.IsUnavailable("BTC", VenueBinance))
	venues := c.AvailableVenues("BTC")
	assert.Contains(t, venues, VenueBinance)
}

func TestAvailabilityExpires(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	c := NewAvailabilityCache(time.Hour)
	c.now = func() time.Time { return now }

	c.MarkAvailable("BTC", VenueBinance)
	assert.NotNil(t, c.AvailableVenues("BTC"))

	now = now.Add(2 * time.Hour)
	assert.Nil(t, c.AvailableVenues("BTC"))
	assert.False(t, c.IsUnavailable("BTC", VenueBinance))
}

func TestAvailabilitySnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "availability.json")

	c := NewAvailabilityCache(time.Hour)
	c.MarkAvailable("BTC", VenueBinance)
	c.MarkAvailable("BTC", VenueBybit)
	c.MarkUnavailable("OBSCURE", VenueKraken)
	require.NoError(t, c.Save(path))

	restored := NewAvailabilityCache(time.Hour)
	require.NoError(t, restored.Load(path))
	assert.Contains(t, restored.AvailableVenues("BTC"), VenueBinance)
	assert.True(t, restored.IsUnavailable("OBSCURE", VenueKraken))
	assert.Equal(t, 2, restored.Len())
}

func TestAvailabilityLoadMissingFile(t *testing.T) {
	c := NewAvailabilityCache(time.Hour)
	assert.NoError(t, c.Load(filepath.Join(t.TempDir(), "missing.json")))
}
