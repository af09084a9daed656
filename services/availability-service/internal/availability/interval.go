package availability

import "time"

// Interval is a half-open time range [Start, End). Start < End always holds
// for intervals produced by this package.
type Interval struct {
	Start time.Time
	End   time.Time
}

func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}
