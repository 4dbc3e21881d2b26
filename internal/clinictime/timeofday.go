package clinictime

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// MinutesPerDay is also the largest valid TimeOfDay, usable only as an interval end.
	MinutesPerDay = 24 * 60
)

// TimeOfDay is a wall-clock time expressed in minutes since 00:00, in [0, 1440].
type TimeOfDay int

// ParseTimeOfDay parses HH:MM with HH in [0,23] and MM in [0,59].
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	return parseTimeOfDay(s, false)
}

// ParseEndTimeOfDay is ParseTimeOfDay that also accepts 24:00.
func ParseEndTimeOfDay(s string) (TimeOfDay, error) {
	return parseTimeOfDay(s, true)
}

func parseTimeOfDay(s string, allowMidnightEnd bool) (TimeOfDay, error) {
	raw := strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(raw, ":")
	if !ok || len(hh) == 0 || len(hh) > 2 || len(mm) != 2 {
		return 0, &TimeFormatError{Input: s, Reason: "time must be HH:MM"}
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, &TimeFormatError{Input: s, Reason: "hour is not a number"}
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, &TimeFormatError{Input: s, Reason: "minute is not a number"}
	}
	if h == 24 && m == 0 {
		if !allowMidnightEnd {
			return 0, &TimeFormatError{Input: s, Reason: "24:00 is only valid as an interval end"}
		}
		return MinutesPerDay, nil
	}
	if h < 0 || h > 23 {
		return 0, &TimeFormatError{Input: s, Reason: "hour out of range"}
	}
	if m < 0 || m > 59 {
		return 0, &TimeFormatError{Input: s, Reason: "minute out of range"}
	}
	return TimeOfDay(h*60 + m), nil
}

// MustTime is ParseEndTimeOfDay for literals; it panics on malformed input.
func MustTime(s string) TimeOfDay {
	t, err := ParseEndTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

// TimeOfDayOf returns the wall-clock minute of t in loc, truncating seconds.
func TimeOfDayOf(t time.Time, loc *time.Location) TimeOfDay {
	t = t.In(loc)
	return TimeOfDay(t.Hour()*60 + t.Minute())
}

func (t TimeOfDay) Valid() bool {
	return t >= 0 && t <= MinutesPerDay
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	parsed, err := ParseEndTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
