package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComboHashIsOrderInsensitive(t *testing.T) {
	a := ComboHash([]string{"macd_cross", "rsi_oversold"}, TF1h)
	b := ComboHash([]string{"rsi_oversold", "macd_cross"}, TF1h)
	assert.Equal(t, a, b)

	// timeframe is part of the identity
	c := ComboHash([]string{"macd_cross", "rsi_oversold"}, TF4h)
	assert.NotEqual(t, a, c)
}

func TestCrossComboSignature(t *testing.T) {
	sig, hash := CrossComboSignature([]SignalTimeframe{
		{SignalName: "rsi_oversold", Timeframe: TF4h},
		{SignalName: "macd_cross", Timeframe: TF1h},
	})
	assert.Equal(t, "macd_cross@1h+rsi_oversold@4h", sig)
	assert.Len(t, hash, 64)

	// order of the input pairs does not matter
	sig2, hash2 := CrossComboSignature([]SignalTimeframe{
		{SignalName: "macd_cross", Timeframe: TF1h},
		{SignalName: "rsi_oversold", Timeframe: TF4h},
	})
	assert.Equal(t, sig, sig2)
	assert.Equal(t, hash, hash2)
}

func TestIsStoppedOut(t *testing.T) {
	assert.True(t, IsStoppedOut("STOPPED_OUT_CANDLE_2"))
	assert.False(t, IsStoppedOut(ExitLoss))
	assert.False(t, IsStoppedOut(""))
}
