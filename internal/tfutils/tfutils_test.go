package tfutils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseTimeframe(t *testing.T) {
	d, err := ParseTimeframe("15m")
	assert.NoError(t, err)
	assert.Equal(t, 15*time.Minute, d)

	_, err = ParseTimeframe("2w")
	assert.Error(t, err)
}

func TestBarsPerDay(t *testing.T) {
	assert.Equal(t, 96, BarsPerDay("15m"))
	assert.Equal(t, 1440, BarsPerDay("1m"))
	assert.Equal(t, 24, BarsPerDay("1h"))
	assert.Equal(t, 1, BarsPerDay("1d"))
	assert.Equal(t, 0, BarsPerDay("2w"))
}

func TestIsValidTimeframe(t *testing.T) {
	for _, tf := range GetSupportedTimeframes() {
		assert.True(t, IsValidTimeframe(tf), tf)
	}
	assert.False(t, IsValidTimeframe(""))
	assert.False(t, IsValidTimeframe("10s"))
}
