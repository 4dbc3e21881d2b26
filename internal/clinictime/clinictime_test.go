package clinictime

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeOfDay(t *testing.T) {
	cases := []struct {
		in      string
		want    TimeOfDay
		wantErr bool
	}{
		{"00:00", 0, false},
		{"09:30", 570, false},
		{"9:05", 545, false},
		{"23:59", 1439, false},
		{"24:00", 0, true},
		{"24:01", 0, true},
		{"12:60", 0, true},
		{"-1:00", 0, true},
		{"1200", 0, true},
		{"ab:cd", 0, true},
		{"", 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseTimeOfDay(tc.in)
			if tc.wantErr {
				var tfe *TimeFormatError
				require.Error(t, err)
				assert.True(t, errors.As(err, &tfe))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseEndTimeOfDayAcceptsMidnight(t *testing.T) {
	got, err := ParseEndTimeOfDay("24:00")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay(MinutesPerDay), got)
	assert.Equal(t, "24:00", got.String())
}

func TestParseInterval(t *testing.T) {
	iv, err := ParseInterval("22:00-24:00")
	require.NoError(t, err)
	assert.Equal(t, Interval{Start: 1320, End: 1440}, iv)

	_, err = ParseInterval("24:00-24:00")
	assert.Error(t, err)

	_, err = ParseInterval("10:00-10:00")
	assert.Error(t, err, "zero-length interval")

	_, err = ParseInterval("11:00-10:00")
	assert.Error(t, err)

	_, err = ParseInterval("10:00")
	assert.Error(t, err)
}

func TestIntervalOverlapsHalfOpen(t *testing.T) {
	a := MustInterval("10:00-10:30")
	assert.False(t, a.Overlaps(MustInterval("10:30-11:00")))
	assert.False(t, a.Overlaps(MustInterval("09:30-10:00")))
	assert.True(t, a.Overlaps(MustInterval("10:15-10:45")))
	assert.True(t, a.Overlaps(MustInterval("09:00-12:00")))
}

func TestIntervalSubtract(t *testing.T) {
	base := MustInterval("09:00-12:00")

	assert.Equal(t, []Interval{MustInterval("09:00-10:00"), MustInterval("10:30-12:00")},
		base.Subtract(MustInterval("10:00-10:30")))
	assert.Equal(t, []Interval{MustInterval("10:00-12:00")},
		base.Subtract(MustInterval("08:00-10:00")))
	assert.Equal(t, []Interval{MustInterval("09:00-11:00")},
		base.Subtract(MustInterval("11:00-13:00")))
	assert.Empty(t, base.Subtract(MustInterval("08:00-13:00")))
	assert.Equal(t, []Interval{base}, base.Subtract(MustInterval("12:00-13:00")))
}

func TestIntervalIntersectAndContains(t *testing.T) {
	a := MustInterval("09:00-12:00")
	got, ok := a.Intersect(MustInterval("11:00-13:00"))
	require.True(t, ok)
	assert.Equal(t, MustInterval("11:00-12:00"), got)

	_, ok = a.Intersect(MustInterval("12:00-13:00"))
	assert.False(t, ok)

	assert.True(t, a.Contains(MustInterval("09:00-12:00")))
	assert.False(t, a.Contains(MustInterval("11:30-12:30")))
}

func TestIntervalAlign(t *testing.T) {
	got, ok := MustInterval("09:10-11:50").Align(30)
	require.True(t, ok)
	assert.Equal(t, MustInterval("09:30-11:30"), got)

	_, ok = MustInterval("09:10-09:50").Align(30)
	assert.False(t, ok)

	assert.True(t, MustInterval("09:30-10:00").AlignedTo(30))
	assert.False(t, MustInterval("09:15-10:00").AlignedTo(30))
}

func TestNormalizeMergesAndSorts(t *testing.T) {
	in := []Interval{
		MustInterval("13:00-14:00"),
		MustInterval("09:00-10:00"),
		MustInterval("10:00-11:00"),
		MustInterval("09:30-09:45"),
		MustInterval("15:00-16:00"),
	}
	want := []Interval{
		MustInterval("09:00-11:00"),
		MustInterval("13:00-14:00"),
		MustInterval("15:00-16:00"),
	}
	assert.Equal(t, want, Normalize(in))
	assert.Equal(t, MustInterval("13:00-14:00"), in[0], "input must not be reordered")
	assert.Nil(t, Normalize(nil))
}

func TestClipBefore(t *testing.T) {
	set := []Interval{MustInterval("08:00-09:00"), MustInterval("10:00-12:00")}
	assert.Equal(t, []Interval{MustInterval("10:30-12:00")}, ClipBefore(set, MustTime("10:30")))
	assert.Equal(t, set, ClipBefore(set, 0))
	assert.Empty(t, ClipBefore(set, MustTime("12:00")))
}

func TestContainedIn(t *testing.T) {
	set := []Interval{MustInterval("09:00-10:00"), MustInterval("10:30-12:00")}
	idx, ok := ContainedIn(set, MustInterval("11:00-11:30"))
	require.True(t, ok)
	assert.Equal(t, 1, idx)

	_, ok = ContainedIn(set, MustInterval("09:45-10:45"))
	assert.False(t, ok)
}

func TestValidateDisjoint(t *testing.T) {
	assert.NoError(t, ValidateDisjoint([]Interval{MustInterval("09:00-10:00"), MustInterval("10:00-11:00")}))
	assert.Error(t, ValidateDisjoint([]Interval{MustInterval("09:00-10:30"), MustInterval("10:00-11:00")}))
	assert.Error(t, ValidateDisjoint([]Interval{MustInterval("10:00-11:00"), MustInterval("09:00-09:30")}))
}

func TestLocalDate(t *testing.T) {
	d := MustDate("2025-03-10")
	assert.Equal(t, time.Monday, d.Weekday())
	assert.Equal(t, "2025-03-11", d.AddDays(1).String())
	assert.Equal(t, "2025-06-08", d.AddDays(90).String())
	assert.Equal(t, 90, d.DaysUntil(d.AddDays(90)))
	assert.True(t, d.Before(d.AddDays(1)))
	assert.Equal(t, 0, d.Compare(MustDate("2025-03-10")))

	_, err := ParseDate("2025-02-30")
	assert.Error(t, err)
	_, err = ParseDate("10/03/2025")
	assert.Error(t, err)
}

func TestWeekdayAcrossDST(t *testing.T) {
	loc, err := LoadLocation("Europe/Amsterdam")
	require.NoError(t, err)

	// clocks jump 02:00 -> 03:00 on this Sunday
	d := MustDate("2025-03-30")
	assert.Equal(t, time.Sunday, Weekday(d, loc))

	at := d.At(MustTime("09:00"), loc)
	assert.Equal(t, 9, at.Hour())
	assert.Equal(t, d, DateOf(at, loc))
	assert.Equal(t, MustTime("09:00"), TimeOfDayOf(at, loc))
}

func TestParseWeekday(t *testing.T) {
	for in, want := range map[string]time.Weekday{
		"monday": time.Monday,
		"Tue":    time.Tuesday,
		"SUNDAY": time.Sunday,
		"6":      time.Saturday,
	} {
		got, err := ParseWeekday(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseWeekday("funday")
	assert.Error(t, err)
}

func TestFixedClock(t *testing.T) {
	loc, err := LoadLocation("Europe/Amsterdam")
	require.NoError(t, err)
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, loc)

	c := NewFixedClock(start)
	assert.Equal(t, start, c.Now())
	c.Advance(time.Hour)
	assert.Equal(t, 10, NowIn(c, loc).Hour())
}
