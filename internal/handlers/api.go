// Admin JSON API: bookings, dashboard, calendars, availability,
// settings, and the merged calendar view (spec §6). Routing/PathValue
// idiom grounded in the teacher's handlers package; bodies authored fresh
// for Michael's JSON contract.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/bromanko/michael/internal/apperr"
	"github.com/bromanko/michael/internal/httpapi"
	"github.com/bromanko/michael/internal/models"
	"github.com/bromanko/michael/internal/validate"
)

type AdminHandlers struct {
	deps *Deps
}

func NewAdminHandlers(deps *Deps) *AdminHandlers {
	return &AdminHandlers{deps: deps}
}

type bookingsListResponse struct {
	Bookings   []*models.Booking `json:"bookings"`
	TotalCount int               `json:"totalCount"`
	Page       int               `json:"page"`
	PageSize   int               `json:"pageSize"`
}

// ListBookings implements GET /api/admin/bookings?page&pageSize&status.
// Any status other than confirmed/cancelled (including "all" or absent)
// returns every booking, per spec §6.
func (h *AdminHandlers) ListBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := atoiDefault(q.Get("page"), 1)
	pageSize := validate.ClampPageSize(atoiDefault(q.Get("pageSize"), validate.DefaultPageSize))
	status := q.Get("status")

	bookings, total, err := h.deps.Booking.List(r.Context(), status, page, pageSize)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, bookingsListResponse{
		Bookings: bookings, TotalCount: total, Page: page, PageSize: pageSize,
	})
}

// GetBooking implements GET /api/admin/bookings/{id}.
func (h *AdminHandlers) GetBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.deps.Booking.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, b)
}

// CancelBooking implements POST /api/admin/bookings/{id}/cancel.
// Idempotent; 404 when the booking never existed at all.
func (h *AdminHandlers) CancelBooking(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	found, err := h.deps.Booking.CancelByID(r.Context(), id)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	if !found {
		httpapi.WriteError(w, apperr.NotFound("booking not found"))
		return
	}

	if b, lookupErr := h.deps.Repos.Bookings.GetByID(r.Context(), id); lookupErr == nil && b != nil && h.deps.Notifier != nil {
		if sendErr := h.deps.Notifier.SendCancellation(notifyCancellationInput(b, "host")); sendErr != nil {
			h.deps.Logger.Printf("[NOTIFY] cancellation email failed for booking %s: %v", id, sendErr)
		}
	}

	httpapi.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type dashboardResponse struct {
	UpcomingCount    int        `json:"upcomingCount"`
	NextBookingTime  *time.Time `json:"nextBookingTime,omitempty"`
	NextBookingTitle string     `json:"nextBookingTitle,omitempty"`
}

// Dashboard implements GET /api/admin/dashboard.
func (h *AdminHandlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	summary, err := h.deps.Booking.Dashboard(r.Context())
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, dashboardResponse{
		UpcomingCount:    summary.UpcomingCount,
		NextBookingTime:  summary.NextBookingTime,
		NextBookingTitle: summary.NextBookingTitle,
	})
}

// ListCalendars implements GET /api/admin/calendars.
func (h *AdminHandlers) ListCalendars(w http.ResponseWriter, r *http.Request) {
	sources, err := h.deps.Repos.Calendars.List(r.Context())
	if err != nil {
		httpapi.WriteError(w, apperr.Internal("failed to list calendar sources", err))
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"calendars": sources})
}

// CalendarHistory implements GET /api/admin/calendars/{id}/history?limit=1..50.
func (h *AdminHandlers) CalendarHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	limit := validate.ClampHistoryLimit(atoiDefault(r.URL.Query().Get("limit"), validate.DefaultHistoryLimit))

	entries, err := h.deps.Repos.History.ListLatest(r.Context(), id, limit)
	if err != nil {
		httpapi.WriteError(w, apperr.Internal("failed to load sync history", err))
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"history": entries})
}

// SyncCalendar implements POST /api/admin/calendars/{id}/sync — triggers
// an out-of-band sync for one source immediately rather than waiting for
// the next scheduled tick.
func (h *AdminHandlers) SyncCalendar(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	source, err := h.deps.Repos.Calendars.GetByID(r.Context(), id)
	if err != nil {
		httpapi.WriteError(w, apperr.Internal("failed to load calendar source", err))
		return
	}
	if source == nil {
		httpapi.WriteError(w, apperr.NotFound("calendar source not found"))
		return
	}

	go h.deps.Sync.SyncNow(id)
	httpapi.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type availabilitySlotDTO struct {
	DayOfWeek int    `json:"dayOfWeek"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

type availabilityRequest struct {
	Slots []availabilitySlotDTO `json:"slots"`
}

// GetAvailability implements GET /api/admin/availability.
func (h *AdminHandlers) GetAvailability(w http.ResponseWriter, r *http.Request) {
	slots, err := h.deps.Repos.Availability.List(r.Context())
	if err != nil {
		httpapi.WriteError(w, apperr.Internal("failed to load availability", err))
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"slots": slots})
}

// PutAvailability implements PUT /api/admin/availability.
func (h *AdminHandlers) PutAvailability(w http.ResponseWriter, r *http.Request) {
	var req availabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, apperr.Validation("invalid request body"))
		return
	}
	if len(req.Slots) == 0 {
		httpapi.WriteError(w, apperr.Validation("slots must not be empty"))
		return
	}

	slots := make([]models.HostAvailabilitySlot, 0, len(req.Slots))
	for _, s := range req.Slots {
		if s.DayOfWeek < 1 || s.DayOfWeek > 7 {
			httpapi.WriteError(w, apperr.Validation("dayOfWeek must be between 1 and 7"))
			return
		}
		if s.StartTime >= s.EndTime {
			httpapi.WriteError(w, apperr.Validation("startTime must precede endTime"))
			return
		}
		slots = append(slots, models.HostAvailabilitySlot{
			ID:        uuid.New().String(),
			DayOfWeek: s.DayOfWeek,
			StartTime: s.StartTime,
			EndTime:   s.EndTime,
		})
	}

	if err := h.deps.Repos.Availability.ReplaceAll(r.Context(), slots); err != nil {
		httpapi.WriteError(w, apperr.Internal("failed to replace availability", err))
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"slots": slots})
}

// GetSettings implements GET /api/admin/settings.
func (h *AdminHandlers) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.deps.Repos.Settings.Get(r.Context())
	if err != nil {
		httpapi.WriteError(w, apperr.Internal("failed to load settings", err))
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, settings)
}

// PutSettings implements PUT /api/admin/settings.
func (h *AdminHandlers) PutSettings(w http.ResponseWriter, r *http.Request) {
	var s models.SchedulingSettings
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		httpapi.WriteError(w, apperr.Validation("invalid request body"))
		return
	}
	if s.MinNoticeHours < 0 {
		httpapi.WriteError(w, apperr.Validation("minNoticeHours must be >= 0"))
		return
	}
	if s.BookingWindowDays < 1 {
		httpapi.WriteError(w, apperr.Validation("bookingWindowDays must be >= 1"))
		return
	}
	if s.DefaultDurationMinutes < 5 || s.DefaultDurationMinutes > 480 {
		httpapi.WriteError(w, apperr.Validation("defaultDurationMinutes must be between 5 and 480"))
		return
	}

	if err := h.deps.Repos.Settings.Replace(r.Context(), s); err != nil {
		httpapi.WriteError(w, apperr.Internal("failed to replace settings", err))
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, s)
}

// CalendarView implements GET /api/admin/calendar-view?start&end&tz?.
func (h *AdminHandlers) CalendarView(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	loc := h.deps.HostLocation
	if tz := q.Get("tz"); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			httpapi.WriteError(w, apperr.Validation("invalid IANA timezone"))
			return
		}
		loc = l
	}

	start, err := time.Parse(time.RFC3339, q.Get("start"))
	if err != nil {
		httpapi.WriteError(w, apperr.Validation("invalid start"))
		return
	}
	end, err := time.Parse(time.RFC3339, q.Get("end"))
	if err != nil {
		httpapi.WriteError(w, apperr.Validation("invalid end"))
		return
	}
	if !start.Before(end) {
		httpapi.WriteError(w, apperr.Validation("start must precede end"))
		return
	}

	entries, err := h.deps.CalendarView.Range(r.Context(), start.In(loc), end.In(loc))
	if err != nil {
		httpapi.WriteError(w, apperr.Internal("failed to build calendar view", err))
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"events": entries})
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
