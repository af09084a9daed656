package availability

import (
	"sort"
	"time"
)

// SlotDecision is the outcome of testing a preferred slot against a date's
// free intervals.
type SlotDecision struct {
	// Fits is true when some free interval fully contains the preferred slot.
	Fits bool
	// Alternatives holds every other start time that would fit, ranked by
	// closeness of hour to the preferred time. Empty when Fits is true or the
	// date has no usable slot at all.
	Alternatives []time.Time
}

// ResolveSlot checks whether [preferredStart, preferredStart+duration] fits
// inside a free interval (the end boundary may touch the interval's end).
// On a miss it enumerates candidate starts on a step-sized grid walked from
// each free interval's start.
func ResolveSlot(free []Interval, preferredStart time.Time, duration, step time.Duration) SlotDecision {
	preferredEnd := preferredStart.Add(duration)
	for _, iv := range free {
		if !preferredStart.Before(iv.Start) && !preferredEnd.After(iv.End) {
			return SlotDecision{Fits: true}
		}
	}

	var candidates []time.Time
	for _, iv := range free {
		for t := iv.Start; !t.Add(duration).After(iv.End); t = t.Add(step) {
			candidates = append(candidates, t)
		}
	}
	rankCandidates(candidates, preferredStart)
	return SlotDecision{Alternatives: candidates}
}

// rankCandidates orders candidates by |hour - preferredHour| ascending,
// breaking ties by the earlier clock time.
func rankCandidates(candidates []time.Time, preferred time.Time) {
	hourDist := func(t time.Time) int {
		d := t.Hour() - preferred.Hour()
		if d < 0 {
			d = -d
		}
		return d
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		di, dj := hourDist(candidates[i]), hourDist(candidates[j])
		if di != dj {
			return di < dj
		}
		return candidates[i].Format("15:04") < candidates[j].Format("15:04")
	})
}
