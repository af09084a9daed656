package availability

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/waggytails/pawsched/services/availability-service/internal/model"
)

// Sitting bookings occupy the calendar all day but still leave gaps for
// walks, so they never block availability. Detection is by text match on the
// summary/description the booking system writes into the calendar event.
const (
	summaryMultiDaySitting = "multi-day dog sitting"
	summaryDogSitting      = "dog sitting"

	descMultiDayBooking = "multi-day booking"
	descMultiDayType    = "booking type: multi-day"

	// Single-day sittings at or above this length are treated like multi-day
	// ones: the dog is on site, not out with a walker.
	longSittingMinutes = 360
)

var (
	durationMinutesRe = regexp.MustCompile(`(?i)duration:\s*(\d+)\s*minutes`)
	durationHoursRe   = regexp.MustCompile(`(?i)duration:\s*(\d+(?:\.\d+)?)\s*hours`)
)

// DayClassification is the result of filtering one date's raw calendar events.
type DayClassification struct {
	// HardBlocked is set when any non-exempt all-day event exists; the date
	// then has no free time regardless of working hours.
	HardBlocked bool
	// Obstructions are the non-exempt timed events, to be padded and merged
	// by the free-time calculation.
	Obstructions []Interval
}

// ClassifyBusyEvents splits raw busy events into exempt events, timed
// obstructions, and all-day hard blocks.
func ClassifyBusyEvents(events []model.BusyEvent) DayClassification {
	var cls DayClassification
	for _, ev := range events {
		if isExempt(ev.Summary, ev.Description) {
			continue
		}
		if ev.AllDay {
			cls.HardBlocked = true
			continue
		}
		if ev.End.After(ev.Start) {
			cls.Obstructions = append(cls.Obstructions, Interval{Start: ev.Start, End: ev.End})
		}
	}
	return cls
}

func isExempt(summary, description string) bool {
	sum := strings.ToLower(summary)
	desc := strings.ToLower(description)

	if strings.Contains(sum, summaryMultiDaySitting) ||
		strings.Contains(desc, descMultiDayBooking) ||
		strings.Contains(desc, descMultiDayType) {
		return true
	}

	if strings.Contains(sum, summaryDogSitting) {
		if mins, ok := declaredDurationMinutes(description); ok && mins >= longSittingMinutes {
			return true
		}
	}
	return false
}

// declaredDurationMinutes parses "Duration: N minutes" or "Duration: N hours"
// out of an event description.
func declaredDurationMinutes(description string) (int, bool) {
	if m := durationMinutesRe.FindStringSubmatch(description); m != nil {
		mins, err := strconv.Atoi(m[1])
		if err == nil {
			return mins, true
		}
	}
	if m := durationHoursRe.FindStringSubmatch(description); m != nil {
		hours, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			return int(hours * 60), true
		}
	}
	return 0, false
}
