package codec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCandle_Example(t *testing.T) {
	line := "2025-06-16T07:32:00+00:00,107109.5,107155.5,107109.5,107128.5,29"
	c, err := ParseCandle(line)
	require.NoError(t, err)

	want := time.Date(2025, 6, 16, 7, 32, 0, 0, time.UTC)
	assert.True(t, c.Timestamp.Equal(want))
	assert.InDelta(t, 107109.5, c.Open, 1e-9)
	assert.InDelta(t, 107155.5, c.High, 1e-9)
	assert.InDelta(t, 107109.5, c.Low, 1e-9)
	assert.InDelta(t, 107128.5, c.Close, 1e-9)
	assert.InDelta(t, 29, c.Volume, 1e-9)
}

func TestParseCandle_AppliesOffset(t *testing.T) {
	line := "2025-06-16T10:32:00+03:00,1,1,1,1,1"
	c, err := ParseCandle(line)
	require.NoError(t, err)

	want := time.Date(2025, 6, 16, 7, 32, 0, 0, time.UTC)
	assert.True(t, c.Timestamp.Equal(want))
}

func TestParseCandle_MalformedFieldCount(t *testing.T) {
	_, err := ParseCandle("2025-06-16T07:32:00+00:00,1,2,3")
	require.Error(t, err)
}

func TestParseCandle_MalformedTimestamp(t *testing.T) {
	_, err := ParseCandle("not-a-timestamp,1,2,3,4,5")
	require.Error(t, err)
}
