package clinictime

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

const dateLayout = "2006-01-02"

// LocalDate is a calendar date in a clinic's timezone. It carries no zone itself.
type LocalDate struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (LocalDate, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return LocalDate{}, &TimeFormatError{Input: s, Reason: "date must be YYYY-MM-DD"}
	}
	return LocalDate{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

// MustDate is ParseDate for literals; it panics on malformed input.
func MustDate(s string) LocalDate {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// DateOf returns the wall-clock date of t in loc.
func DateOf(t time.Time, loc *time.Location) LocalDate {
	t = t.In(loc)
	return LocalDate{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

func (d LocalDate) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

func (d LocalDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// midnightUTC is only used for calendar arithmetic.
func (d LocalDate) midnightUTC() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d LocalDate) AddDays(n int) LocalDate {
	t := d.midnightUTC().AddDate(0, 0, n)
	return LocalDate{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// DaysUntil returns the number of calendar days from d to other (negative if other is earlier).
func (d LocalDate) DaysUntil(other LocalDate) int {
	return int(other.midnightUTC().Sub(d.midnightUTC()).Hours() / 24)
}

func (d LocalDate) Compare(other LocalDate) int {
	switch {
	case d.Year != other.Year:
		return cmpInt(d.Year, other.Year)
	case d.Month != other.Month:
		return cmpInt(int(d.Month), int(other.Month))
	default:
		return cmpInt(d.Day, other.Day)
	}
}

func (d LocalDate) Before(other LocalDate) bool { return d.Compare(other) < 0 }
func (d LocalDate) After(other LocalDate) bool  { return d.Compare(other) > 0 }

// Weekday is calendar-determined and independent of any zone.
func (d LocalDate) Weekday() time.Weekday {
	return d.midnightUTC().Weekday()
}

// At returns the instant at wall-clock tod on d in loc. 24:00 maps to the next midnight.
// A wall clock that falls in a DST gap is normalized by the time package.
func (d LocalDate) At(tod TimeOfDay, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, int(tod), 0, 0, loc)
}

func (d LocalDate) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *LocalDate) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Weekday returns the weekday of a clinic-local date. The zone is accepted for
// symmetry with NowIn; a LocalDate is already expressed in it.
func Weekday(d LocalDate, _ *time.Location) time.Weekday {
	return d.Weekday()
}

// ParseWeekday accepts English weekday names in any case ("monday", "Mon").
func ParseWeekday(s string) (time.Weekday, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		name := strings.ToLower(wd.String())
		if key == name || key == name[:3] {
			return wd, nil
		}
	}
	if n, err := strconv.Atoi(key); err == nil && n >= 0 && n <= 6 {
		return time.Weekday(n), nil
	}
	return 0, &TimeFormatError{Input: s, Reason: "unknown weekday"}
}

var locations sync.Map // map[string]*time.Location

// LoadLocation wraps time.LoadLocation with a process-wide cache.
func LoadLocation(name string) (*time.Location, error) {
	if v, ok := locations.Load(name); ok {
		return v.(*time.Location), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	locations.Store(name, loc)
	return loc, nil
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
