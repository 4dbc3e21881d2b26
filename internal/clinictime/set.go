package clinictime

import "sort"

// Normalize sorts by start (ties by end) and merges overlapping or adjacent intervals.
// The input slice is not modified.
func Normalize(in []Interval) []Interval {
	if len(in) == 0 {
		return nil
	}
	sorted := make([]Interval, 0, len(in))
	for _, iv := range in {
		if !iv.IsEmpty() {
			sorted = append(sorted, iv)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End < sorted[j].End
	})

	var out []Interval
	for _, iv := range sorted {
		if n := len(out); n > 0 && iv.Start <= out[n-1].End {
			if iv.End > out[n-1].End {
				out[n-1].End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

// SubtractAll removes cut from every interval of set.
func SubtractAll(set []Interval, cut Interval) []Interval {
	var out []Interval
	for _, iv := range set {
		out = append(out, iv.Subtract(cut)...)
	}
	return out
}

// ClipBefore drops everything before t.
func ClipBefore(set []Interval, t TimeOfDay) []Interval {
	var out []Interval
	for _, iv := range set {
		if iv.End <= t {
			continue
		}
		if iv.Start < t {
			iv.Start = t
		}
		out = append(out, iv)
	}
	return out
}

// ContainedIn returns the index of the interval in set that fully contains iv.
func ContainedIn(set []Interval, iv Interval) (int, bool) {
	for i, free := range set {
		if free.Contains(iv) {
			return i, true
		}
	}
	return -1, false
}

// ValidateDisjoint checks that set is strictly increasing and non-overlapping, as
// required for stored weekly templates and override records.
func ValidateDisjoint(set []Interval) error {
	for i, iv := range set {
		if _, err := NewInterval(iv.Start, iv.End); err != nil {
			return err
		}
		if i > 0 && iv.Start < set[i-1].End {
			return &TimeFormatError{Input: iv.String(), Reason: "intervals must be increasing and non-overlapping"}
		}
	}
	return nil
}
