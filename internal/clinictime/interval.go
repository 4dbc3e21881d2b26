package clinictime

import (
	"strings"
)

// Interval is a half-open range [Start, End) of wall-clock minutes within one day.
type Interval struct {
	Start TimeOfDay
	End   TimeOfDay
}

// NewInterval validates start < end and both within [0, 1440].
func NewInterval(start, end TimeOfDay) (Interval, error) {
	iv := Interval{Start: start, End: end}
	if !start.Valid() || !end.Valid() || start == MinutesPerDay {
		return Interval{}, &TimeFormatError{Input: iv.String(), Reason: "time out of range"}
	}
	if start >= end {
		return Interval{}, &TimeFormatError{Input: iv.String(), Reason: "start must be before end"}
	}
	return iv, nil
}

// ParseInterval parses "HH:MM-HH:MM" where the end is exclusive and may be 24:00.
func ParseInterval(s string) (Interval, error) {
	startRaw, endRaw, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return Interval{}, &TimeFormatError{Input: s, Reason: "interval must be HH:MM-HH:MM"}
	}
	return ParseBounds(startRaw, endRaw)
}

// ParseBounds parses a start/end pair given separately.
func ParseBounds(startRaw, endRaw string) (Interval, error) {
	start, err := ParseTimeOfDay(startRaw)
	if err != nil {
		return Interval{}, err
	}
	end, err := ParseEndTimeOfDay(endRaw)
	if err != nil {
		return Interval{}, err
	}
	return NewInterval(start, end)
}

// MustInterval is ParseInterval for literals; it panics on malformed input.
func MustInterval(s string) Interval {
	iv, err := ParseInterval(s)
	if err != nil {
		panic(err)
	}
	return iv
}

func (iv Interval) String() string {
	return iv.Start.String() + "-" + iv.End.String()
}

// Minutes is the length of the interval.
func (iv Interval) Minutes() int {
	return int(iv.End - iv.Start)
}

func (iv Interval) IsEmpty() bool {
	return iv.End <= iv.Start
}

// Overlaps reports whether the intervals share any minute. Touching endpoints do not overlap.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start < other.End && other.Start < iv.End
}

// Contains reports whether other lies entirely within iv.
func (iv Interval) Contains(other Interval) bool {
	return iv.Start <= other.Start && other.End <= iv.End
}

// Subtract returns iv minus other: at most two pieces, in order.
func (iv Interval) Subtract(other Interval) []Interval {
	if !iv.Overlaps(other) {
		return []Interval{iv}
	}
	var out []Interval
	if iv.Start < other.Start {
		out = append(out, Interval{Start: iv.Start, End: min(iv.End, other.Start)})
	}
	if other.End < iv.End {
		out = append(out, Interval{Start: max(iv.Start, other.End), End: iv.End})
	}
	return out
}

// Intersect returns the common part, if any.
func (iv Interval) Intersect(other Interval) (Interval, bool) {
	out := Interval{Start: max(iv.Start, other.Start), End: min(iv.End, other.End)}
	if out.IsEmpty() {
		return Interval{}, false
	}
	return out, true
}

// Align shrinks iv to the grain lattice anchored at midnight: start rounds up, end rounds down.
func (iv Interval) Align(grain int) (Interval, bool) {
	if grain <= 0 {
		return iv, !iv.IsEmpty()
	}
	start := (int(iv.Start) + grain - 1) / grain * grain
	end := int(iv.End) / grain * grain
	out := Interval{Start: TimeOfDay(start), End: TimeOfDay(end)}
	if out.IsEmpty() {
		return Interval{}, false
	}
	return out, true
}

// AlignedTo reports whether both bounds sit on the grain lattice.
func (iv Interval) AlignedTo(grain int) bool {
	if grain <= 0 {
		return true
	}
	return int(iv.Start)%grain == 0 && int(iv.End)%grain == 0
}

func (iv Interval) MarshalText() ([]byte, error) {
	return []byte(iv.String()), nil
}

func (iv *Interval) UnmarshalText(b []byte) error {
	parsed, err := ParseInterval(string(b))
	if err != nil {
		return err
	}
	*iv = parsed
	return nil
}
