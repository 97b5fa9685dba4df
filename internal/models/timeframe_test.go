package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeframe(t *testing.T) {
	tf, err := ParseTimeframe("4h")
	require.NoError(t, err)
	assert.Equal(t, TF4h, tf)
	assert.Equal(t, 240, tf.Minutes())
	assert.Equal(t, 4*time.Hour, tf.Duration())

	_, err = ParseTimeframe("7m")
	assert.Error(t, err)
}

func TestTimeframeValid(t *testing.T) {
	for _, tf := range AllTimeframes() {
		assert.True(t, tf.Valid(), string(tf))
		assert.Positive(t, tf.Minutes(), string(tf))
	}
	assert.False(t, Timeframe("").Valid())
	assert.False(t, Timeframe("2w").Valid())
}
