package availability

import (
	"sort"
	"time"
)

// FreeIntervals subtracts the padded, merged obstructions from the working
// window and returns the gaps long enough to hold a walk of minDuration.
//
// Each obstruction is widened by buffer on both sides, except that the first
// booking of the day gets no pre-buffer (its start equals the window start)
// and the last gets no post-buffer. Padding never extends past the window.
func FreeIntervals(window Interval, obstructions []Interval, buffer, minDuration time.Duration) []Interval {
	merged := mergeIntervals(padObstructions(window, obstructions, buffer))

	var free []Interval
	cursor := window.Start
	for _, m := range merged {
		if cursor.Before(m.Start) {
			free = append(free, Interval{Start: cursor, End: m.Start})
		}
		if m.End.After(cursor) {
			cursor = m.End
		}
	}
	if cursor.Before(window.End) {
		free = append(free, Interval{Start: cursor, End: window.End})
	}

	usable := free[:0]
	for _, iv := range free {
		if iv.Duration() >= minDuration {
			usable = append(usable, iv)
		}
	}
	return usable
}

func padObstructions(window Interval, obstructions []Interval, buffer time.Duration) []Interval {
	padded := make([]Interval, 0, len(obstructions))
	for _, ob := range obstructions {
		s, e := ob.Start, ob.End
		if s.After(window.Start) {
			s = s.Add(-buffer)
		}
		if e.Before(window.End) {
			e = e.Add(buffer)
		}
		// Clamp to the working window; events entirely outside it are irrelevant.
		if s.Before(window.Start) {
			s = window.Start
		}
		if e.After(window.End) {
			e = window.End
		}
		if e.After(s) {
			padded = append(padded, Interval{Start: s, End: e})
		}
	}
	return padded
}

// mergeIntervals coalesces overlapping or touching intervals into maximal
// blocks, sorted by start.
func mergeIntervals(intervals []Interval) []Interval {
	if len(intervals) < 2 {
		return intervals
	}
	sort.Slice(intervals, func(i, j int) bool {
		return intervals[i].Start.Before(intervals[j].Start)
	})

	merged := []Interval{intervals[0]}
	for _, iv := range intervals[1:] {
		last := &merged[len(merged)-1]
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}
