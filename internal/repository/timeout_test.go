package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeoutSeconds(t *testing.T) {
	dur := func(d time.Duration) *time.Duration { return &d }

	tests := []struct {
		name string
		in   *time.Duration
		want int64
	}{
		{name: "sub-second rounds up", in: dur(500 * time.Millisecond), want: 1},
		{name: "exact second", in: dur(time.Second), want: 1},
		{name: "partial second rounds up", in: dur(1500 * time.Millisecond), want: 2},
		{name: "hours", in: dur(48 * time.Hour), want: 48 * 3600},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := timeoutSeconds(tt.in)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, *got)
		})
	}

	assert.Nil(t, timeoutSeconds(nil))
}

func TestTimeoutFromSecondsRoundTrip(t *testing.T) {
	d := 36 * time.Hour
	got := timeoutFromSeconds(timeoutSeconds(&d))
	require.NotNil(t, got)
	assert.Equal(t, d, *got)

	assert.Nil(t, timeoutFromSeconds(nil))
}
