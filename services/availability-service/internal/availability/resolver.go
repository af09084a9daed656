package availability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/waggytails/pawsched/services/availability-service/internal/model"
)

// CalendarClient lists the busy events for one calendar day.
type CalendarClient interface {
	ListBusyEvents(ctx context.Context, calendarID string, dayStart, dayEnd time.Time) ([]model.BusyEvent, error)
}

// WalkLimitChecker reports whether a date is already at walk capacity
// (only relevant while a multi-day sitting is in progress).
type WalkLimitChecker interface {
	Check(ctx context.Context, date time.Time) (model.WalkLimitStatus, error)
}

// PreferenceLookup exposes the owner flag that selects the extended travel buffer.
type PreferenceLookup interface {
	ExtendedTravelTime(ctx context.Context, ownerID string) (bool, error)
}

type Config struct {
	Location             *time.Location
	CalendarID           string
	WorkStartHour        int
	WorkEndHour          int
	SlotStep             time.Duration
	TravelBuffer         time.Duration
	ExtendedTravelBuffer time.Duration
	MaxWeeksAhead        int
	Concurrency          int64
	RetryBackoff         time.Duration
}

// Resolver drives one recurring-availability resolution: expand the pattern
// into dates, then per date decide Available / Conflict / Blocked.
type Resolver struct {
	calendar CalendarClient
	limits   WalkLimitChecker
	prefs    PreferenceLookup
	logger   *slog.Logger
	cfg      Config
}

func NewResolver(calendar CalendarClient, limits WalkLimitChecker, prefs PreferenceLookup, logger *slog.Logger, cfg Config) *Resolver {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.WorkEndHour <= cfg.WorkStartHour {
		cfg.WorkStartHour, cfg.WorkEndHour = 8, 20
	}
	if cfg.SlotStep <= 0 {
		cfg.SlotStep = 30 * time.Minute
	}
	if cfg.TravelBuffer <= 0 {
		cfg.TravelBuffer = 15 * time.Minute
	}
	if cfg.ExtendedTravelBuffer <= 0 {
		cfg.ExtendedTravelBuffer = 30 * time.Minute
	}
	if cfg.MaxWeeksAhead <= 0 {
		cfg.MaxWeeksAhead = 12
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 250 * time.Millisecond
	}
	return &Resolver{
		calendar: calendar,
		limits:   limits,
		prefs:    prefs,
		logger:   logger,
		cfg:      cfg,
	}
}

const (
	reasonWeekend      = "Walks not available on weekends"
	reasonNotAvailable = "Requested time not available"
	reasonFullyBooked  = "Fully booked on this date"
	reasonAllDayBlock  = "Unavailable all day"
	reasonUndetermined = "Availability could not be determined"
)

type outcomeKind int

const (
	outcomeAvailable outcomeKind = iota
	outcomeConflict
	outcomeBlocked
)

type dateOutcome struct {
	kind         outcomeKind
	reason       string
	alternatives []string
	completed    bool
}

// ResolveAvailability resolves every candidate date of the request. The
// returned buckets always partition the completed dates; when the context is
// cancelled mid-flight the partial result carries Incomplete=true and the
// context error is returned alongside it.
func (r *Resolver) ResolveAvailability(ctx context.Context, req model.RecurrenceRequest) (*model.ResolutionResult, error) {
	if err := r.validate(req); err != nil {
		return nil, err
	}

	if req.WeeksAhead < 1 {
		req.WeeksAhead = 1
	}
	if req.WeeksAhead > r.cfg.MaxWeeksAhead {
		req.WeeksAhead = r.cfg.MaxWeeksAhead
	}

	dates, err := ExpandDates(req.StartDate, req.WeeksAhead, req.Pattern, req.DaysOfWeek)
	if err != nil {
		return nil, validationErr(err.Error())
	}

	buffer := r.travelBuffer(ctx, req.OwnerID)
	duration := time.Duration(req.DurationMinutes) * time.Minute

	outcomes := make([]dateOutcome, len(dates))
	sem := semaphore.NewWeighted(r.cfg.Concurrency)
	var wg sync.WaitGroup
	for i, date := range dates {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(i int, date time.Time) {
			defer wg.Done()
			defer sem.Release(1)
			outcomes[i] = r.resolveDate(ctx, date, req, buffer, duration)
		}(i, date)
	}
	wg.Wait()

	result := &model.ResolutionResult{}
	for i, date := range dates {
		out := outcomes[i]
		if !out.completed {
			result.Incomplete = true
			continue
		}
		day := date.Format("2006-01-02")
		requested := fmt.Sprintf("%02d:%02d", req.PreferredHour, req.PreferredMinute)
		switch out.kind {
		case outcomeAvailable:
			result.Available = append(result.Available, model.AvailableDate{Date: day, Time: requested})
		case outcomeConflict:
			result.Conflicting = append(result.Conflicting, model.ConflictingDate{
				Date:          day,
				RequestedTime: requested,
				Reason:        out.reason,
				Alternatives:  out.alternatives,
			})
		case outcomeBlocked:
			result.Blocked = append(result.Blocked, model.BlockedDate{Date: day, Reason: out.reason})
		}
	}
	result.Summary = model.ResolutionSummary{
		TotalRequested: len(dates),
		Available:      len(result.Available),
		Conflicting:    len(result.Conflicting),
		Blocked:        len(result.Blocked),
	}
	if result.Incomplete {
		return result, fmt.Errorf("availability resolution incomplete: %w", context.Cause(ctx))
	}
	return result, nil
}

func (r *Resolver) validate(req model.RecurrenceRequest) error {
	if req.OwnerID == "" {
		return validationErr("owner id is required")
	}
	if req.DurationMinutes <= 0 {
		return validationErr("duration must be positive")
	}
	switch req.Pattern {
	case model.PatternWeekly, model.PatternBiweekly:
	case model.PatternCustom:
		if len(req.DaysOfWeek) == 0 {
			return validationErr("custom pattern requires at least one day of week")
		}
		for _, d := range req.DaysOfWeek {
			if d < 1 || d > 7 {
				return validationErr(fmt.Sprintf("day of week %d out of range 1-7", d))
			}
		}
	default:
		return validationErr(fmt.Sprintf("unknown pattern %q", req.Pattern))
	}
	if req.PreferredHour < 0 || req.PreferredHour > 23 {
		return validationErr("preferred hour out of range")
	}
	if req.PreferredMinute < 0 || req.PreferredMinute > 59 {
		return validationErr("preferred minute out of range")
	}
	if req.StartDate.IsZero() {
		return validationErr("start date is required")
	}
	return nil
}

// travelBuffer selects the 15/30-minute buffer from the owner preference.
// Lookup failures fall back to the standard buffer.
func (r *Resolver) travelBuffer(ctx context.Context, ownerID string) time.Duration {
	extended, err := r.prefs.ExtendedTravelTime(ctx, ownerID)
	if err != nil {
		r.logger.Warn("owner preference lookup failed; using standard travel buffer", "owner_id", ownerID, "err", err)
		return r.cfg.TravelBuffer
	}
	if extended {
		return r.cfg.ExtendedTravelBuffer
	}
	return r.cfg.TravelBuffer
}

// resolveDate classifies a single candidate date. It is a pure function of
// that date's inputs; no outcome depends on another date.
func (r *Resolver) resolveDate(ctx context.Context, date time.Time, req model.RecurrenceRequest, buffer, duration time.Duration) dateOutcome {
	if wd := ISOWeekday(date); wd == 6 || wd == 7 {
		return dateOutcome{kind: outcomeBlocked, reason: reasonWeekend, completed: true}
	}

	// Walk-limit failures fail open: over-offering a slot that a human
	// confirms later beats refusing all availability.
	status, err := r.limits.Check(ctx, date)
	if err != nil {
		if ctx.Err() != nil {
			return dateOutcome{}
		}
		r.logger.Warn("walk limit check failed; proceeding as not limited", "date", date.Format("2006-01-02"), "err", err)
	} else if status.LimitReached {
		reason := fmt.Sprintf("Walk limit reached for this date (%d/%d)", status.CurrentCount, status.Limit)
		return dateOutcome{kind: outcomeBlocked, reason: reason, completed: true}
	}

	events, err := r.fetchBusyEvents(ctx, date)
	if err != nil {
		if ctx.Err() != nil {
			return dateOutcome{}
		}
		r.logger.Warn("calendar fetch failed; blocking date", "date", date.Format("2006-01-02"), "err", err)
		return dateOutcome{kind: outcomeBlocked, reason: reasonUndetermined, completed: true}
	}

	cls := ClassifyBusyEvents(events)
	if cls.HardBlocked {
		return dateOutcome{kind: outcomeBlocked, reason: reasonAllDayBlock, completed: true}
	}

	window := r.workingWindow(date)
	free := FreeIntervals(window, cls.Obstructions, buffer, duration)

	preferredStart := time.Date(date.Year(), date.Month(), date.Day(),
		req.PreferredHour, req.PreferredMinute, 0, 0, r.cfg.Location)
	decision := ResolveSlot(free, preferredStart, duration, r.cfg.SlotStep)
	if decision.Fits {
		return dateOutcome{kind: outcomeAvailable, completed: true}
	}
	if len(decision.Alternatives) > 0 {
		alts := make([]string, len(decision.Alternatives))
		for i, t := range decision.Alternatives {
			alts[i] = t.Format("15:04")
		}
		return dateOutcome{kind: outcomeConflict, reason: reasonNotAvailable, alternatives: alts, completed: true}
	}
	return dateOutcome{kind: outcomeBlocked, reason: reasonFullyBooked, completed: true}
}

// fetchBusyEvents queries the calendar with a single retry on transient failure.
func (r *Resolver) fetchBusyEvents(ctx context.Context, date time.Time) ([]model.BusyEvent, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, r.cfg.Location)
	dayEnd := dayStart.AddDate(0, 0, 1)

	events, err := r.calendar.ListBusyEvents(ctx, r.cfg.CalendarID, dayStart, dayEnd)
	if err == nil {
		return events, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(r.cfg.RetryBackoff):
	}
	return r.calendar.ListBusyEvents(ctx, r.cfg.CalendarID, dayStart, dayEnd)
}

func (r *Resolver) workingWindow(date time.Time) Interval {
	return Interval{
		Start: time.Date(date.Year(), date.Month(), date.Day(), r.cfg.WorkStartHour, 0, 0, 0, r.cfg.Location),
		End:   time.Date(date.Year(), date.Month(), date.Day(), r.cfg.WorkEndHour, 0, 0, 0, r.cfg.Location),
	}
}
