// Package slots projects free intervals onto the bookable slot grid.
package slots

import (
	"github.com/hackgods/telehealth-scheduling/internal/availability"
	"github.com/hackgods/telehealth-scheduling/internal/clinictime"
)

// Generate emits [a, a+dur), [a+grain, a+grain+dur), ... for each free interval,
// keeping only slots that end at or before the interval end. Free intervals are
// first aligned to the grain lattice anchored at midnight, so every slot start is
// a multiple of grain.
func Generate(free []clinictime.Interval, grain, duration int) []clinictime.Interval {
	if grain <= 0 || duration <= 0 {
		return []clinictime.Interval{}
	}
	out := []clinictime.Interval{}
	for _, iv := range free {
		aligned, ok := iv.Align(grain)
		if !ok {
			continue
		}
		for start := int(aligned.Start); start+duration <= int(aligned.End); start += grain {
			out = append(out, clinictime.Interval{
				Start: clinictime.TimeOfDay(start),
				End:   clinictime.TimeOfDay(start + duration),
			})
		}
	}
	return out
}

// Format renders slots as "HH:MM-HH:MM".
func Format(in []clinictime.Interval) []string {
	out := make([]string, len(in))
	for i, iv := range in {
		out[i] = iv.String()
	}
	return out
}

type DaySlots struct {
	Date  clinictime.LocalDate
	Free  []clinictime.Interval
	Slots []clinictime.Interval
}

func ForDays(days []availability.Day, grain, duration int) []DaySlots {
	out := make([]DaySlots, 0, len(days))
	for _, d := range days {
		out = append(out, DaySlots{
			Date:  d.Date,
			Free:  d.Free,
			Slots: Generate(d.Free, grain, duration),
		})
	}
	return out
}
