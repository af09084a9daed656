package model

import "time"

type Pattern string

const (
	PatternWeekly   Pattern = "weekly"
	PatternBiweekly Pattern = "biweekly"
	PatternCustom   Pattern = "custom"
)

// RecurrenceRequest describes a recurring walk request: which dates the
// customer wants, at what time, and for how long. StartDate must be midnight
// in the business timezone. DaysOfWeek uses ISO numbering (1=Monday ... 7=Sunday)
// and is only consulted for PatternCustom.
type RecurrenceRequest struct {
	OwnerID         string
	ServiceType     string
	DurationMinutes int
	Pattern         Pattern
	DaysOfWeek      []int
	PreferredHour   int
	PreferredMinute int
	StartDate       time.Time
	WeeksAhead      int
}

// BusyEvent is one calendar entry for a single date. Summary and Description
// are only used for exemption classification.
type BusyEvent struct {
	Start       time.Time
	End         time.Time
	AllDay      bool
	Summary     string
	Description string
}

type WalkLimitStatus struct {
	LimitReached bool
	CurrentCount int
	Limit        int
}

type AvailableDate struct {
	Date string
	Time string
}

type ConflictingDate struct {
	Date          string
	RequestedTime string
	Reason        string
	Alternatives  []string
}

type BlockedDate struct {
	Date   string
	Reason string
}

type ResolutionSummary struct {
	TotalRequested int
	Available      int
	Conflicting    int
	Blocked        int
}

// ResolutionResult buckets every candidate date into exactly one of
// Available/Conflicting/Blocked. When Incomplete is true the resolution was
// cut short by cancellation and the buckets cover only the completed dates.
type ResolutionResult struct {
	Available   []AvailableDate
	Conflicting []ConflictingDate
	Blocked     []BlockedDate
	Summary     ResolutionSummary
	Incomplete  bool
}
