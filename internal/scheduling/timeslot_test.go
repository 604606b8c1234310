package scheduling

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTime(t *testing.T) {
	tests := []struct {
		in      string
		want    Clock
		wantErr bool
	}{
		{"00:00", Clock{0, 0}, false},
		{"09:30", Clock{9, 30}, false},
		{"23:59", Clock{23, 59}, false},
		{"24:00", Clock{}, true},
		{"12:60", Clock{}, true},
		{"9:30", Clock{}, true},
		{"09:3", Clock{}, true},
		{"0930", Clock{}, true},
		{"ab:cd", Clock{}, true},
		{" 09:30", Clock{}, true},
		{"", Clock{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTime(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidFormat))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToMinutesRoundTrip(t *testing.T) {
	for h := 0; h < 24; h++ {
		for m := 0; m < 60; m += 7 {
			s := FormatMinutes(h*60 + m)
			first, err := ParseMinutes(s)
			require.NoError(t, err)
			second, err := ParseMinutes(s)
			require.NoError(t, err)
			assert.Equal(t, h*60+m, first)
			assert.Equal(t, first, second)
		}
	}
}

func TestFormatMinutesWraps(t *testing.T) {
	assert.Equal(t, "00:30", FormatMinutes(24*60+30))
	assert.Equal(t, "23:00", FormatMinutes(-60))
}

func TestOverlapsHalfOpen(t *testing.T) {
	nine := 9 * 60
	assert.False(t, Overlaps(nine, 60, 10*60, 11*60), "slot ending at range start")
	assert.False(t, Overlaps(11*60, 60, 10*60, 11*60), "slot starting at range end")
	assert.True(t, Overlaps(nine, 60, 9*60+30, 10*60+30))
	assert.True(t, Overlaps(10*60, 60, 9*60+30, 10*60+30))
	assert.True(t, Overlaps(nine, 120, 9*60+15, 9*60+45), "range inside slot")
	assert.True(t, Overlaps(9*60+15, 15, nine, 10*60), "slot inside range")
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2026-10-19")
	require.NoError(t, err)
	assert.Equal(t, "Monday", d.Weekday().String())

	d, err = ParseDate("2026-10-19T00:00:00.000Z")
	require.NoError(t, err)
	assert.Equal(t, "2026-10-19", d.Format(DateLayout))

	_, err = ParseDate("19/10/2026")
	assert.ErrorIs(t, err, ErrInvalidFormat)
}
