// Public JSON handlers: natural-language parsing, slot computation, and
// booking creation/cancellation (spec §6). Grounded in the teacher's
// handlers package for the routing/PathValue idiom; the handler bodies
// themselves are authored fresh since the teacher's public.go renders
// HTML, not JSON.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/bromanko/michael/internal/apperr"
	"github.com/bromanko/michael/internal/booking"
	"github.com/bromanko/michael/internal/httpapi"
	"github.com/bromanko/michael/internal/parser"
	"github.com/bromanko/michael/internal/scheduling"
	"github.com/bromanko/michael/internal/validate"
)

type PublicHandlers struct {
	deps *Deps
}

func NewPublicHandlers(deps *Deps) *PublicHandlers {
	return &PublicHandlers{deps: deps}
}

type parseRequest struct {
	Message          string           `json:"message"`
	Timezone         string           `json:"timezone"`
	PreviousMessages []parser.Message `json:"previousMessages"`
}

type parseResponse struct {
	ParseResult   *parser.Result `json:"parseResult"`
	SystemMessage string         `json:"systemMessage"`
}

// Parse implements POST /api/parse.
func (h *PublicHandlers) Parse(w http.ResponseWriter, r *http.Request) {
	var req parseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, apperr.Validation("invalid request body"))
		return
	}
	req.Message = validate.StripControl(req.Message)
	if req.Message == "" {
		httpapi.WriteError(w, apperr.Validation("message must not be empty"))
		return
	}
	if _, err := time.LoadLocation(req.Timezone); err != nil {
		httpapi.WriteError(w, apperr.Validation("invalid IANA timezone"))
		return
	}

	result, err := h.deps.Parser.Parse(r.Context(), req.Message, req.Timezone, req.PreviousMessages)
	if err != nil {
		httpapi.WriteError(w, apperr.Internal("upstream parser failure", err))
		return
	}

	httpapi.WriteJSON(w, http.StatusOK, parseResponse{ParseResult: result, SystemMessage: result.SystemMessage})
}

type slotsWindow struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Timezone string    `json:"timezone,omitempty"`
}

type slotsRequest struct {
	AvailabilityWindows []slotsWindow `json:"availabilityWindows"`
	DurationMinutes     int           `json:"durationMinutes"`
	Timezone            string        `json:"timezone"`
}

type timeSlotDTO struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type slotsResponse struct {
	Slots []timeSlotDTO `json:"slots"`
}

// Slots implements POST /api/slots.
func (h *PublicHandlers) Slots(w http.ResponseWriter, r *http.Request) {
	var req slotsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, apperr.Validation("invalid request body"))
		return
	}
	if len(req.AvailabilityWindows) == 0 {
		httpapi.WriteError(w, apperr.Validation("availabilityWindows must not be empty"))
		return
	}

	participantLoc, err := time.LoadLocation(req.Timezone)
	if err != nil {
		httpapi.WriteError(w, apperr.Validation("invalid IANA timezone"))
		return
	}

	windows := make([]scheduling.Window, 0, len(req.AvailabilityWindows))
	var rangeStart, rangeEnd time.Time
	for i, w := range req.AvailabilityWindows {
		windows = append(windows, scheduling.Window{Start: w.Start, End: w.End})
		if i == 0 || w.Start.Before(rangeStart) {
			rangeStart = w.Start
		}
		if i == 0 || w.End.After(rangeEnd) {
			rangeEnd = w.End
		}
	}

	ctx := r.Context()
	settings, err := h.deps.Repos.Settings.Get(ctx)
	if err != nil {
		httpapi.WriteError(w, apperr.Internal("failed to load scheduling settings", err))
		return
	}
	weeklySlots, err := h.deps.Repos.Availability.List(ctx)
	if err != nil {
		httpapi.WriteError(w, apperr.Internal("failed to load host availability", err))
		return
	}

	startEpoch := rangeStart.UTC().Unix()
	endEpoch := rangeEnd.UTC().Unix()

	bookings, err := h.deps.Repos.Bookings.RangeQuery(ctx, startEpoch, endEpoch)
	if err != nil {
		httpapi.WriteError(w, apperr.Internal("failed to load existing bookings", err))
		return
	}
	events, err := h.deps.Repos.Events.RangeQuery(ctx, startEpoch, endEpoch)
	if err != nil {
		httpapi.WriteError(w, apperr.Internal("failed to load cached events", err))
		return
	}

	bookingIntervals := bookingsToIntervals(bookings)
	eventIntervals := eventsToIntervals(events)

	slots, err := scheduling.ComputeSlots(scheduling.Input{
		ParticipantWindows:  windows,
		HostWeeklySlots:     weeklySlots,
		HostLocation:        h.deps.HostLocation,
		Bookings:            bookingIntervals,
		CachedEvents:        eventIntervals,
		DurationMinutes:     req.DurationMinutes,
		ParticipantLocation: participantLoc,
		Now:                 h.deps.Clock.Now(),
		Settings:            settings,
	})
	if err != nil {
		httpapi.WriteError(w, apperr.Validation(err.Error()))
		return
	}

	out := make([]timeSlotDTO, 0, len(slots))
	for _, s := range slots {
		out = append(out, timeSlotDTO{Start: s.Start, End: s.End})
	}
	httpapi.WriteJSON(w, http.StatusOK, slotsResponse{Slots: out})
}

type bookRequest struct {
	Name            string      `json:"name"`
	Email           string      `json:"email"`
	Phone           string      `json:"phone"`
	Title           string      `json:"title"`
	Description     string      `json:"description"`
	Slot            slotsWindow `json:"slot"`
	DurationMinutes int         `json:"durationMinutes"`
	Timezone        string      `json:"timezone"`
}

type bookResponse struct {
	BookingID   string `json:"bookingId"`
	Confirmed   bool   `json:"confirmed"`
	CancelToken string `json:"cancelToken"`
}

// Book implements POST /api/book.
func (h *PublicHandlers) Book(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, apperr.Validation("invalid request body"))
		return
	}

	req.Name = validate.StripControl(req.Name)
	req.Title = validate.StripControl(req.Title)
	req.Description = validate.StripControl(req.Description)
	req.Phone = validate.StripControl(req.Phone)
	req.Email = validate.StripControl(req.Email)

	if req.Name == "" {
		httpapi.WriteError(w, apperr.Validation("name is required"))
		return
	}
	if req.Title == "" {
		httpapi.WriteError(w, apperr.Validation("title is required"))
		return
	}
	if !validate.Email(req.Email) {
		httpapi.WriteError(w, apperr.Validation("invalid email address"))
		return
	}
	if !req.Slot.Start.Before(req.Slot.End) {
		httpapi.WriteError(w, apperr.Validation("slot start must precede end"))
		return
	}
	if req.DurationMinutes < 5 || req.DurationMinutes > 480 {
		httpapi.WriteError(w, apperr.Validation("durationMinutes must be between 5 and 480"))
		return
	}
	if req.Slot.End.Sub(req.Slot.Start) != time.Duration(req.DurationMinutes)*time.Minute {
		httpapi.WriteError(w, apperr.Validation("slot length must equal durationMinutes"))
		return
	}
	if _, err := time.LoadLocation(req.Timezone); err != nil {
		httpapi.WriteError(w, apperr.Validation("invalid IANA timezone"))
		return
	}

	b, err := h.deps.Booking.Create(r.Context(), booking.CreateInput{
		Name:            req.Name,
		Email:           req.Email,
		Phone:           req.Phone,
		Title:           req.Title,
		Description:     req.Description,
		Start:           req.Slot.Start,
		End:             req.Slot.End,
		DurationMinutes: req.DurationMinutes,
		Timezone:        req.Timezone,
	})
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}

	httpapi.WriteJSON(w, http.StatusOK, bookResponse{BookingID: b.ID, Confirmed: true, CancelToken: b.CancelToken})
}

// CancelByToken implements POST /api/bookings/{id}/cancel — the public,
// token-authenticated cancellation variant resolved by spec §9's Open
// Question. An unknown id, absent token, or mismatched token all produce
// the identical 404 response to avoid booking enumeration.
func (h *PublicHandlers) CancelByToken(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	token := r.URL.Query().Get("token")

	found, err := h.deps.Booking.CancelByToken(r.Context(), id, token)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	if !found {
		httpapi.WriteError(w, apperr.NotFound("booking not found"))
		return
	}

	if b, lookupErr := h.deps.Repos.Bookings.GetByID(r.Context(), id); lookupErr == nil && b != nil && h.deps.Notifier != nil {
		if sendErr := h.deps.Notifier.SendCancellation(notifyCancellationInput(b, "invitee")); sendErr != nil {
			h.deps.Logger.Printf("[NOTIFY] cancellation email failed for booking %s: %v", id, sendErr)
		}
	}

	httpapi.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
