package frequency

import (
	"testing"
	"time"

	"github.com/mozilla/crontabber/internal/cronerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Basic(t *testing.T) {
	cases := []struct {
		freq   string
		anchor string
		want   time.Duration
	}{
		{"5m", "", 5 * time.Minute},
		{"2h", "", 2 * time.Hour},
		{"3d", "", 3 * 24 * time.Hour},
		{"1d", "09:30", 24 * time.Hour},
	}
	for _, c := range cases {
		got, err := Parse(c.freq, c.anchor)
		require.NoError(t, err, c.freq)
		assert.Equal(t, c.want, got.Period)
	}
}

func TestParse_Anchor(t *testing.T) {
	got, err := Parse("1d", "9:30")
	require.NoError(t, err)
	require.NotNil(t, got.Anchor)
	assert.Equal(t, 9*time.Hour+30*time.Minute, *got.Anchor)
}

func TestParse_BadUnit(t *testing.T) {
	_, err := Parse("5s", "")
	require.Error(t, err)
	var ce *cronerr.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, cronerr.BadFrequency, ce.Kind)
}

func TestParse_ZeroMagnitude(t *testing.T) {
	_, err := Parse("0m", "")
	require.Error(t, err)
}

func TestParse_NonInteger(t *testing.T) {
	_, err := Parse("1.5h", "")
	require.Error(t, err)
}

func TestParse_TimeOnSubdailyFrequency(t *testing.T) {
	_, err := Parse("30m", "09:00")
	require.Error(t, err)
	var ce *cronerr.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, cronerr.TimeOnSubdailyFrequency, ce.Kind)
}

func TestString_RoundTrip(t *testing.T) {
	f, err := Parse("2d", "14:05")
	require.NoError(t, err)
	assert.Equal(t, "2d|14:05", f.String())

	f2, err := Parse("45m", "")
	require.NoError(t, err)
	assert.Equal(t, "45m", f2.String())
}
