package calendar

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"github.com/waggytails/pawsched/services/availability-service/internal/model"
)

const maxFeedBytes = 8 << 20

// Client reads busy events from ICS calendar feeds (e.g. a Google Calendar
// secret address). Feed bodies are cached between per-date lookups; parsing
// and recurrence expansion happen per queried day.
type Client struct {
	feeds  map[string]string // calendar id -> ICS URL
	http   *http.Client
	cache  *FeedCache
	logger *slog.Logger
}

func NewClient(feeds map[string]string, cache *FeedCache, logger *slog.Logger) *Client {
	return &Client{
		feeds: feeds,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
		cache:  cache,
		logger: logger,
	}
}

// ListBusyEvents returns the calendar's events that overlap [dayStart, dayEnd),
// with recurring events expanded into that day.
func (c *Client) ListBusyEvents(ctx context.Context, calendarID string, dayStart, dayEnd time.Time) ([]model.BusyEvent, error) {
	url, ok := c.feeds[calendarID]
	if !ok {
		return nil, fmt.Errorf("unknown calendar id %q", calendarID)
	}

	body, err := c.fetchFeed(ctx, url)
	if err != nil {
		return nil, err
	}

	cal, err := ical.ParseCalendar(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parse ics feed: %w", err)
	}

	var events []model.BusyEvent
	for _, ve := range cal.Events() {
		evs, err := c.busyEventsForDay(ve, dayStart, dayEnd)
		if err != nil {
			// A single malformed event should not take out the whole date.
			c.logger.Warn("skipping unparseable calendar event", "err", err)
			continue
		}
		events = append(events, evs...)
	}
	return events, nil
}

func (c *Client) fetchFeed(ctx context.Context, url string) ([]byte, error) {
	if body, ok := c.cache.Get(ctx, url); ok {
		return body, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch ics feed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ics feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("read ics feed: %w", err)
	}

	c.cache.Set(ctx, url, body)
	return body, nil
}

// busyEventsForDay normalizes one VEVENT into zero or more busy events that
// overlap the queried day, expanding RRULEs when present.
func (c *Client) busyEventsForDay(ve *ical.VEvent, dayStart, dayEnd time.Time) ([]model.BusyEvent, error) {
	var summary, description string
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		description = p.Value
	}

	allDay := isAllDay(ve)
	start, end, err := eventTimes(ve, allDay, dayStart.Location())
	if err != nil {
		return nil, err
	}

	var rawRRule string
	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		rawRRule = p.Value
	}

	if rawRRule == "" {
		if !overlaps(start, end, dayStart, dayEnd) {
			return nil, nil
		}
		return []model.BusyEvent{{
			Start:       start,
			End:         end,
			AllDay:      allDay,
			Summary:     summary,
			Description: description,
		}}, nil
	}

	rule, err := rrule.StrToRRule(rawRRule)
	if err != nil {
		return nil, fmt.Errorf("parse rrule %q: %w", rawRRule, err)
	}
	rule.DTStart(start)

	// Search back the full event span so occurrences that begin earlier and
	// run into the queried day are still caught.
	duration := end.Sub(start)
	spanDays := 1
	if allDay {
		if d := int(duration.Hours() / 24); d > 1 {
			spanDays = d
		}
	}
	var events []model.BusyEvent
	for _, occStart := range rule.Between(dayStart.AddDate(0, 0, -spanDays), dayEnd, true) {
		occEnd := occStart.Add(duration)
		if allDay {
			occStart = time.Date(occStart.Year(), occStart.Month(), occStart.Day(), 0, 0, 0, 0, dayStart.Location())
			occEnd = occStart.AddDate(0, 0, spanDays)
		}
		if !overlaps(occStart, occEnd, dayStart, dayEnd) {
			continue
		}
		events = append(events, model.BusyEvent{
			Start:       occStart,
			End:         occEnd,
			AllDay:      allDay,
			Summary:     summary,
			Description: description,
		})
	}
	return events, nil
}

// isAllDay detects DATE-valued DTSTART (VALUE=DATE parameter or a value
// without a time component).
func isAllDay(ve *ical.VEvent) bool {
	p := ve.GetProperty(ical.ComponentPropertyDtStart)
	if p == nil {
		return false
	}
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

func eventTimes(ve *ical.VEvent, allDay bool, loc *time.Location) (time.Time, time.Time, error) {
	if allDay {
		p := ve.GetProperty(ical.ComponentPropertyDtStart)
		if p == nil {
			return time.Time{}, time.Time{}, fmt.Errorf("all-day event missing DTSTART")
		}
		day, err := time.ParseInLocation("20060102", strings.TrimSpace(p.Value), loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parse all-day DTSTART: %w", err)
		}
		end := day.AddDate(0, 0, 1)
		// DATE-valued DTEND is exclusive (RFC 5545), so a multi-day block
		// carries its real span; without DTEND the event covers one day.
		if pe := ve.GetProperty(ical.ComponentPropertyDtEnd); pe != nil {
			e, err := time.ParseInLocation("20060102", strings.TrimSpace(pe.Value), loc)
			if err != nil {
				return time.Time{}, time.Time{}, fmt.Errorf("parse all-day DTEND: %w", err)
			}
			if e.After(day) {
				end = e
			}
		}
		return day, end, nil
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse DTSTART: %w", err)
	}
	end, err := ve.GetEndAt()
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse DTEND: %w", err)
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("event end %s not after start %s", end, start)
	}
	return start, end, nil
}

// overlaps reports whether half-open ranges [aStart,aEnd) and [bStart,bEnd) intersect.
func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}
