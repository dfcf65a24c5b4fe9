package daytime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(day, hour, minute, second int) time.Time {
	return time.Date(2024, time.March, day, hour, minute, second, 0, time.UTC)
}

func TestNewRejectsOutOfRange(t *testing.T) {
	_, err := New(24, 0, 0)
	assert.Error(t, err)
	_, err = New(0, 60, 0)
	assert.Error(t, err)
	_, err = New(0, 0, -1)
	assert.Error(t, err)

	tod, err := New(23, 59, 59)
	require.NoError(t, err)
	assert.Equal(t, "23:59:59", tod.String())
}

func TestParse(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"08:30:00", "08:30:00", false},
		{"23:00", "23:00:00", false},
		{"00:00:01", "00:00:01", false},
		{"25:00:00", "", true},
		{"noon", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestResolveForward(t *testing.T) {
	tod := MustParse("08:00:00")

	got, err := tod.Resolve(at(10, 7, 0, 0), Forward)
	require.NoError(t, err)
	assert.Equal(t, at(10, 8, 0, 0), got)

	got, err = tod.Resolve(at(10, 9, 0, 0), Forward)
	require.NoError(t, err)
	assert.Equal(t, at(11, 8, 0, 0), got, "past candidates wrap to the next day")
}

func TestResolveBackward(t *testing.T) {
	tod := MustParse("23:00:00")

	got, err := tod.Resolve(at(10, 7, 30, 0), Backward)
	require.NoError(t, err)
	assert.Equal(t, at(9, 23, 0, 0), got, "future candidates wrap to the previous day")

	got, err = tod.Resolve(at(10, 23, 30, 0), Backward)
	require.NoError(t, err)
	assert.Equal(t, at(10, 23, 0, 0), got)
}

func TestResolveExactMatch(t *testing.T) {
	tod := MustParse("12:00:00")
	ref := at(10, 12, 0, 0)

	fwd, err := tod.Resolve(ref, Forward)
	require.NoError(t, err)
	assert.Equal(t, ref, fwd)

	back, err := tod.Resolve(ref, Backward)
	require.NoError(t, err)
	assert.Equal(t, ref, back)
}

func TestResolveSubSecondReference(t *testing.T) {
	tod := MustParse("12:00:00")
	ref := at(10, 12, 0, 0).Add(500 * time.Millisecond)

	fwd, err := tod.Resolve(ref, Forward)
	require.NoError(t, err)
	assert.Equal(t, at(11, 12, 0, 0), fwd)

	back, err := tod.Resolve(ref, Backward)
	require.NoError(t, err)
	assert.Equal(t, at(10, 12, 0, 0), back)
}

func TestResolveAcrossMonthEnd(t *testing.T) {
	tod := MustParse("06:00:00")
	ref := time.Date(2024, time.February, 29, 22, 0, 0, 0, time.UTC)

	got, err := tod.Resolve(ref, Forward)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.March, 1, 6, 0, 0, 0, time.UTC), got)
}

func TestResolveKeepsLocation(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	ref := time.Date(2024, time.June, 1, 1, 0, 0, 0, loc)

	got, err := MustParse("21:00:00").Resolve(ref, Backward)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.May, 31, 21, 0, 0, 0, loc), got)
	assert.Equal(t, loc, got.Location())
}

func TestFromTimeTruncates(t *testing.T) {
	tod := FromTime(time.Date(2024, time.March, 1, 13, 14, 15, 999, time.UTC))
	assert.Equal(t, "13:14:15", tod.String())
	assert.Equal(t, 13*3600+14*60+15, tod.Seconds())
}
