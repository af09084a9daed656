package availability

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/waggytails/pawsched/services/availability-service/internal/model"
)

type fakeCalendar struct {
	events []model.BusyEvent
	err    error
	failN  int32 // fail this many calls before succeeding
	calls  atomic.Int32
}

func (f *fakeCalendar) ListBusyEvents(ctx context.Context, calendarID string, dayStart, dayEnd time.Time) ([]model.BusyEvent, error) {
	n := f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	if n <= f.failN {
		return nil, errors.New("feed unreachable")
	}
	return f.events, nil
}

type fakeLimits struct {
	status model.WalkLimitStatus
	err    error
}

func (f *fakeLimits) Check(ctx context.Context, date time.Time) (model.WalkLimitStatus, error) {
	return f.status, f.err
}

type fakePrefs struct {
	extended bool
	err      error
}

func (f *fakePrefs) ExtendedTravelTime(ctx context.Context, ownerID string) (bool, error) {
	return f.extended, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestResolver(cal CalendarClient, limits WalkLimitChecker, prefs PreferenceLookup) *Resolver {
	return NewResolver(cal, limits, prefs, testLogger(), Config{
		Location:     time.UTC,
		CalendarID:   "primary",
		RetryBackoff: time.Millisecond,
	})
}

func weeklyRequest(weeks int) model.RecurrenceRequest {
	return model.RecurrenceRequest{
		OwnerID:         "owner-1",
		ServiceType:     "walk",
		DurationMinutes: 60,
		Pattern:         model.PatternWeekly,
		PreferredHour:   10,
		StartDate:       time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC), // Monday
		WeeksAhead:      weeks,
	}
}

func checkPartition(t *testing.T, result *model.ResolutionResult) {
	t.Helper()
	got := len(result.Available) + len(result.Conflicting) + len(result.Blocked)
	if got != result.Summary.TotalRequested {
		t.Fatalf("buckets must partition the dates: %d bucketed vs %d requested",
			got, result.Summary.TotalRequested)
	}
	if result.Summary.Available != len(result.Available) ||
		result.Summary.Conflicting != len(result.Conflicting) ||
		result.Summary.Blocked != len(result.Blocked) {
		t.Fatal("summary counts disagree with bucket sizes")
	}
}

func TestResolveAvailability_EmptyCalendar(t *testing.T) {
	r := newTestResolver(&fakeCalendar{}, &fakeLimits{}, &fakePrefs{})

	result, err := r.ResolveAvailability(context.Background(), weeklyRequest(2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	checkPartition(t, result)
	if len(result.Available) != 2 {
		t.Fatalf("expected 2 available dates, got %d", len(result.Available))
	}
	if result.Available[0].Date != "2025-02-03" || result.Available[0].Time != "10:00" {
		t.Fatalf("unexpected first date: %+v", result.Available[0])
	}
}

func TestResolveAvailability_WeekendBlocked(t *testing.T) {
	r := newTestResolver(&fakeCalendar{}, &fakeLimits{}, &fakePrefs{})

	req := weeklyRequest(1)
	req.StartDate = time.Date(2025, 2, 8, 0, 0, 0, 0, time.UTC) // Saturday

	result, err := r.ResolveAvailability(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	checkPartition(t, result)
	if len(result.Blocked) != 1 {
		t.Fatalf("expected 1 blocked date, got %d", len(result.Blocked))
	}
	if result.Blocked[0].Reason != reasonWeekend {
		t.Fatalf("unexpected reason: %q", result.Blocked[0].Reason)
	}
}

func TestResolveAvailability_WalkLimitReached(t *testing.T) {
	limits := &fakeLimits{status: model.WalkLimitStatus{LimitReached: true, CurrentCount: 2, Limit: 2}}
	r := newTestResolver(&fakeCalendar{}, limits, &fakePrefs{})

	result, err := r.ResolveAvailability(context.Background(), weeklyRequest(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Blocked) != 1 {
		t.Fatalf("expected 1 blocked date, got %d", len(result.Blocked))
	}
	if want := "Walk limit reached for this date (2/2)"; result.Blocked[0].Reason != want {
		t.Fatalf("expected reason %q, got %q", want, result.Blocked[0].Reason)
	}
}

func TestResolveAvailability_WalkLimitFailsOpen(t *testing.T) {
	limits := &fakeLimits{err: errors.New("db down")}
	r := newTestResolver(&fakeCalendar{}, limits, &fakePrefs{})

	result, err := r.ResolveAvailability(context.Background(), weeklyRequest(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Available) != 1 {
		t.Fatalf("limit check failure must not block the date, got %+v", result)
	}
}

func TestResolveAvailability_CalendarRetrySucceeds(t *testing.T) {
	cal := &fakeCalendar{failN: 1}
	r := newTestResolver(cal, &fakeLimits{}, &fakePrefs{})

	result, err := r.ResolveAvailability(context.Background(), weeklyRequest(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Available) != 1 {
		t.Fatalf("expected retry to recover the date, got %+v", result)
	}
	if got := cal.calls.Load(); got != 2 {
		t.Fatalf("expected 2 calendar calls, got %d", got)
	}
}

func TestResolveAvailability_CalendarFailureBlocks(t *testing.T) {
	cal := &fakeCalendar{err: errors.New("feed unreachable")}
	r := newTestResolver(cal, &fakeLimits{}, &fakePrefs{})

	result, err := r.ResolveAvailability(context.Background(), weeklyRequest(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	checkPartition(t, result)
	if len(result.Blocked) != 1 {
		t.Fatalf("expected 1 blocked date, got %d", len(result.Blocked))
	}
	if result.Blocked[0].Reason != reasonUndetermined {
		t.Fatalf("unexpected reason: %q", result.Blocked[0].Reason)
	}
}

func TestResolveAvailability_ConflictListsAlternatives(t *testing.T) {
	day := time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC)
	cal := &fakeCalendar{events: []model.BusyEvent{{
		Start:   day.Add(9*time.Hour + 30*time.Minute),
		End:     day.Add(10*time.Hour + 30*time.Minute),
		Summary: "Walk - Rex",
	}}}
	r := newTestResolver(cal, &fakeLimits{}, &fakePrefs{})

	result, err := r.ResolveAvailability(context.Background(), weeklyRequest(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	checkPartition(t, result)
	if len(result.Conflicting) != 1 {
		t.Fatalf("expected 1 conflicting date, got %+v", result)
	}
	conflict := result.Conflicting[0]
	if conflict.Reason != reasonNotAvailable {
		t.Fatalf("unexpected reason: %q", conflict.Reason)
	}
	if conflict.RequestedTime != "10:00" {
		t.Fatalf("unexpected requested time: %q", conflict.RequestedTime)
	}
	// The booked walk plus its buffer occupies 09:15-10:45, so the closest
	// alternative to the 10:00 request is 10:45.
	if len(conflict.Alternatives) == 0 || conflict.Alternatives[0] != "10:45" {
		t.Fatalf("expected first alternative 10:45, got %v", conflict.Alternatives)
	}
}

func TestResolveAvailability_ExemptSittingStaysAvailable(t *testing.T) {
	day := time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC)
	cal := &fakeCalendar{events: []model.BusyEvent{{
		Start:   day,
		End:     day.AddDate(0, 0, 1),
		AllDay:  true,
		Summary: "Multi-Day Dog Sitting - Biscuit",
	}}}
	r := newTestResolver(cal, &fakeLimits{}, &fakePrefs{})

	result, err := r.ResolveAvailability(context.Background(), weeklyRequest(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Available) != 1 {
		t.Fatalf("sitting exemption must keep the date open, got %+v", result)
	}
}

func TestResolveAvailability_AllDayEventBlocks(t *testing.T) {
	day := time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC)
	cal := &fakeCalendar{events: []model.BusyEvent{{
		Start:   day,
		End:     day.AddDate(0, 0, 1),
		AllDay:  true,
		Summary: "Vacation",
	}}}
	r := newTestResolver(cal, &fakeLimits{}, &fakePrefs{})

	result, err := r.ResolveAvailability(context.Background(), weeklyRequest(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Blocked) != 1 || result.Blocked[0].Reason != reasonAllDayBlock {
		t.Fatalf("expected all-day block, got %+v", result)
	}
}

func TestResolveAvailability_ExtendedTravelBuffer(t *testing.T) {
	// Booking 11:15-12:00: the standard 15-minute buffer leaves 08:00-11:00
	// free so a 10:00 hour-long walk fits; the extended 30-minute buffer
	// shrinks the gap to 08:00-10:45 and forces a conflict.
	day := time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC)
	booking := model.BusyEvent{
		Start:   day.Add(11*time.Hour + 15*time.Minute),
		End:     day.Add(12 * time.Hour),
		Summary: "Walk - Luna",
	}

	standard := newTestResolver(&fakeCalendar{events: []model.BusyEvent{booking}}, &fakeLimits{}, &fakePrefs{})
	result, err := standard.ResolveAvailability(context.Background(), weeklyRequest(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Available) != 1 {
		t.Fatalf("expected standard buffer to leave the slot open, got %+v", result)
	}

	extended := newTestResolver(&fakeCalendar{events: []model.BusyEvent{booking}}, &fakeLimits{}, &fakePrefs{extended: true})
	result, err = extended.ResolveAvailability(context.Background(), weeklyRequest(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Conflicting) != 1 {
		t.Fatalf("expected extended buffer to push the slot out, got %+v", result)
	}
}

func TestResolveAvailability_PreferenceLookupFailsOpen(t *testing.T) {
	r := newTestResolver(&fakeCalendar{}, &fakeLimits{}, &fakePrefs{err: errors.New("db down")})

	result, err := r.ResolveAvailability(context.Background(), weeklyRequest(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Available) != 1 {
		t.Fatalf("preference failure must fall back to the standard buffer, got %+v", result)
	}
}

func TestResolveAvailability_WeeksAheadClamped(t *testing.T) {
	r := newTestResolver(&fakeCalendar{}, &fakeLimits{}, &fakePrefs{})

	result, err := r.ResolveAvailability(context.Background(), weeklyRequest(50))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Summary.TotalRequested != 12 {
		t.Fatalf("expected horizon clamped to 12 weeks, got %d dates", result.Summary.TotalRequested)
	}

	result, err = r.ResolveAvailability(context.Background(), weeklyRequest(0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Summary.TotalRequested != 1 {
		t.Fatalf("expected horizon raised to 1 week, got %d dates", result.Summary.TotalRequested)
	}
}

func TestResolveAvailability_CancellationReturnsPartial(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := newTestResolver(&fakeCalendar{}, &fakeLimits{}, &fakePrefs{})
	result, err := r.ResolveAvailability(ctx, weeklyRequest(4))
	if err == nil {
		t.Fatal("expected an error for a cancelled resolution")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected wrapped context.Canceled, got %v", err)
	}
	if result == nil || !result.Incomplete {
		t.Fatalf("expected a partial result with Incomplete set, got %+v", result)
	}
}

func TestResolveAvailability_Deterministic(t *testing.T) {
	day := time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC)
	cal := &fakeCalendar{events: []model.BusyEvent{{
		Start:   day.Add(9*time.Hour + 30*time.Minute),
		End:     day.Add(10*time.Hour + 30*time.Minute),
		Summary: "Walk - Rex",
	}}}
	r := newTestResolver(cal, &fakeLimits{}, &fakePrefs{})

	first, err := r.ResolveAvailability(context.Background(), weeklyRequest(3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := r.ResolveAvailability(context.Background(), weeklyRequest(3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("resolution must be deterministic:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestResolveAvailability_Validation(t *testing.T) {
	r := newTestResolver(&fakeCalendar{}, &fakeLimits{}, &fakePrefs{})

	cases := []struct {
		name   string
		mutate func(*model.RecurrenceRequest)
	}{
		{"missing owner", func(req *model.RecurrenceRequest) { req.OwnerID = "" }},
		{"zero duration", func(req *model.RecurrenceRequest) { req.DurationMinutes = 0 }},
		{"unknown pattern", func(req *model.RecurrenceRequest) { req.Pattern = "monthly" }},
		{"custom without days", func(req *model.RecurrenceRequest) { req.Pattern = model.PatternCustom }},
		{"day out of range", func(req *model.RecurrenceRequest) {
			req.Pattern = model.PatternCustom
			req.DaysOfWeek = []int{8}
		}},
		{"hour out of range", func(req *model.RecurrenceRequest) { req.PreferredHour = 24 }},
		{"minute out of range", func(req *model.RecurrenceRequest) { req.PreferredMinute = 60 }},
		{"zero start date", func(req *model.RecurrenceRequest) { req.StartDate = time.Time{} }},
	}
	for _, tc := range cases {
		req := weeklyRequest(1)
		tc.mutate(&req)
		_, err := r.ResolveAvailability(context.Background(), req)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("%s: expected a validation error, got %v", tc.name, err)
		}
	}
}
