package availability

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/waggytails/pawsched/services/availability-service/internal/model"
)

var isoWeekdays = map[int]rrule.Weekday{
	1: rrule.MO,
	2: rrule.TU,
	3: rrule.WE,
	4: rrule.TH,
	5: rrule.FR,
	6: rrule.SA,
	7: rrule.SU,
}

// ExpandDates turns a recurrence pattern into the ordered list of candidate
// dates in [start, start + weeks*7d). Weekly and biweekly patterns stride from
// the start date; custom patterns keep every date whose ISO weekday is in days.
// The returned times carry start's clock and location (midnight, business tz).
func ExpandDates(start time.Time, weeks int, pattern model.Pattern, days []int) ([]time.Time, error) {
	opt := rrule.ROption{
		Freq:    rrule.WEEKLY,
		Dtstart: start,
	}

	switch pattern {
	case model.PatternWeekly:
		opt.Interval = 1
	case model.PatternBiweekly:
		opt.Interval = 2
	case model.PatternCustom:
		if len(days) == 0 {
			return nil, fmt.Errorf("custom pattern requires at least one weekday")
		}
		opt.Interval = 1
		for _, d := range days {
			wd, ok := isoWeekdays[d]
			if !ok {
				return nil, fmt.Errorf("invalid ISO weekday %d", d)
			}
			opt.Byweekday = append(opt.Byweekday, wd)
		}
	default:
		return nil, fmt.Errorf("unknown recurrence pattern %q", pattern)
	}

	rule, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("build recurrence rule: %w", err)
	}

	end := start.AddDate(0, 0, weeks*7)
	var dates []time.Time
	for _, t := range rule.Between(start, end, true) {
		// Between is inclusive on both ends; the horizon is half-open.
		if !t.Before(end) {
			continue
		}
		dates = append(dates, t)
	}
	return dates, nil
}

// ISOWeekday returns the ISO-8601 weekday number (Monday=1 ... Sunday=7).
func ISOWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}
