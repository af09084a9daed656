package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/waggytails/pawsched/services/availability-service/internal/availability"
	"github.com/waggytails/pawsched/services/availability-service/internal/events"
	"github.com/waggytails/pawsched/services/availability-service/internal/model"
)

// Resolver is the availability engine surface the handler needs.
type Resolver interface {
	ResolveAvailability(ctx context.Context, req model.RecurrenceRequest) (*model.ResolutionResult, error)
}

type AvailabilityHandler struct {
	resolver Resolver
	events   *events.Publisher
	logger   *slog.Logger
	loc      *time.Location
}

func NewAvailabilityHandler(resolver Resolver, publisher *events.Publisher, logger *slog.Logger, loc *time.Location) *AvailabilityHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &AvailabilityHandler{
		resolver: resolver,
		events:   publisher,
		logger:   logger,
		loc:      loc,
	}
}

type recurringRequest struct {
	OwnerID         string `json:"owner_id"`
	ServiceType     string `json:"service_type"`
	DurationMinutes int    `json:"duration_minutes"`
	Pattern         string `json:"pattern"`
	DaysOfWeek      []int  `json:"days_of_week,omitempty"`
	PreferredTime   string `json:"preferred_time"`
	StartDate       string `json:"start_date"`
	WeeksAhead      int    `json:"weeks_ahead"`
}

type availableItem struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type conflictItem struct {
	Date          string   `json:"date"`
	RequestedTime string   `json:"requested_time"`
	Reason        string   `json:"reason"`
	Alternatives  []string `json:"alternatives"`
}

type blockedItem struct {
	Date   string `json:"date"`
	Reason string `json:"reason"`
}

type recurringResponse struct {
	Available   []availableItem `json:"available"`
	Conflicting []conflictItem  `json:"conflicting"`
	Blocked     []blockedItem   `json:"blocked"`
	Summary     summaryItem     `json:"summary"`
	Incomplete  bool            `json:"incomplete"`
}

type summaryItem struct {
	TotalRequested int `json:"total_requested"`
	Available      int `json:"available"`
	Conflicting    int `json:"conflicting"`
	Blocked        int `json:"blocked"`
}

func (h *AvailabilityHandler) Recurring(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req recurringRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	req.OwnerID = strings.TrimSpace(req.OwnerID)
	req.ServiceType = strings.TrimSpace(req.ServiceType)
	req.Pattern = strings.ToLower(strings.TrimSpace(req.Pattern))

	preferred, err := time.Parse("15:04", strings.TrimSpace(req.PreferredTime))
	if err != nil {
		http.Error(w, "preferred_time must be HH:MM", http.StatusBadRequest)
		return
	}
	startDate, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(req.StartDate), h.loc)
	if err != nil {
		http.Error(w, "start_date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	resolveReq := model.RecurrenceRequest{
		OwnerID:         req.OwnerID,
		ServiceType:     req.ServiceType,
		DurationMinutes: req.DurationMinutes,
		Pattern:         model.Pattern(req.Pattern),
		DaysOfWeek:      req.DaysOfWeek,
		PreferredHour:   preferred.Hour(),
		PreferredMinute: preferred.Minute(),
		StartDate:       startDate,
		WeeksAhead:      req.WeeksAhead,
	}

	result, err := h.resolver.ResolveAvailability(r.Context(), resolveReq)
	if err != nil {
		var verr *availability.ValidationError
		if errors.As(err, &verr) {
			http.Error(w, verr.Reason, http.StatusBadRequest)
			return
		}
		if result != nil && result.Incomplete {
			h.writeResult(w, http.StatusServiceUnavailable, result)
			return
		}
		h.logger.Error("availability resolution failed", "err", err)
		http.Error(w, "availability resolution failed", http.StatusInternalServerError)
		return
	}

	h.publishCompleted(r.Context(), resolveReq, result)
	h.writeResult(w, http.StatusOK, result)
}

func (h *AvailabilityHandler) writeResult(w http.ResponseWriter, status int, result *model.ResolutionResult) {
	resp := recurringResponse{
		Available:   make([]availableItem, 0, len(result.Available)),
		Conflicting: make([]conflictItem, 0, len(result.Conflicting)),
		Blocked:     make([]blockedItem, 0, len(result.Blocked)),
		Summary: summaryItem{
			TotalRequested: result.Summary.TotalRequested,
			Available:      result.Summary.Available,
			Conflicting:    result.Summary.Conflicting,
			Blocked:        result.Summary.Blocked,
		},
		Incomplete: result.Incomplete,
	}
	for _, a := range result.Available {
		resp.Available = append(resp.Available, availableItem{Date: a.Date, Time: a.Time})
	}
	for _, c := range result.Conflicting {
		alts := c.Alternatives
		if alts == nil {
			alts = []string{}
		}
		resp.Conflicting = append(resp.Conflicting, conflictItem{
			Date:          c.Date,
			RequestedTime: c.RequestedTime,
			Reason:        c.Reason,
			Alternatives:  alts,
		})
	}
	for _, b := range result.Blocked {
		resp.Blocked = append(resp.Blocked, blockedItem{Date: b.Date, Reason: b.Reason})
	}

	body, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func (h *AvailabilityHandler) publishCompleted(ctx context.Context, req model.RecurrenceRequest, result *model.ResolutionResult) {
	if h.events == nil {
		return
	}
	ev := events.ResolutionCompleted{
		OwnerID:        req.OwnerID,
		ServiceType:    req.ServiceType,
		Pattern:        string(req.Pattern),
		RequestedDates: result.Summary.TotalRequested,
		Available:      result.Summary.Available,
		Conflicting:    result.Summary.Conflicting,
		Blocked:        result.Summary.Blocked,
		Incomplete:     result.Incomplete,
	}
	// Detached from the request lifecycle so a slow broker cannot delay the response.
	go func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		h.events.PublishResolutionCompleted(ctx, ev)
	}(context.WithoutCancel(ctx))
}
