package duration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{"standard seconds", "15s", 15 * time.Second, false},
		{"standard compound", "1h30m", 90 * time.Minute, false},
		{"milliseconds", "500ms", 500 * time.Millisecond, false},

		{"days short", "2d", 2 * Day, false},
		{"days word", "2 days", 2 * Day, false},
		{"single day", "1 day", Day, false},
		{"weeks short", "1w", Week, false},
		{"weeks word", "3 weeks", 3 * Week, false},

		{"mixed extended", "1w2d12h", Week + 2*Day + 12*time.Hour, false},
		{"spelled out minutes", "90 minutes", 90 * time.Minute, false},
		{"spelled out mixed", "1 day 6 hours", 30 * time.Hour, false},

		{"negative", "-30m", -30 * time.Minute, false},
		{"negative with space", "- 2d", -2 * Day, false},

		{"empty", "", 0, true},
		{"garbage", "soon", 0, true},
		{"bare number", "42", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Parse(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, d)
		})
	}
}

func TestMustParse(t *testing.T) {
	assert.Equal(t, 2*Day, MustParse("2d"))
	assert.Panics(t, func() { MustParse("whenever") })
}

func TestFormat(t *testing.T) {
	tests := []struct {
		d        time.Duration
		expected string
	}{
		{0, "0s"},
		{15 * time.Second, "15s"},
		{90 * time.Second, "1m30s"},
		{36 * time.Hour, "1d12h"},
		{Week + Day, "1w1d"},
		{250 * time.Millisecond, "250ms"},
		{-30 * time.Minute, "-30m"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, Format(tt.d))
	}
}

func TestRoundTrip(t *testing.T) {
	for _, d := range []time.Duration{time.Second, time.Minute, time.Hour, Day, Week, 36 * time.Hour} {
		parsed, err := Parse(Format(d))
		require.NoError(t, err)
		assert.Equal(t, d, parsed)
	}
}
