// Package booking implements the Revalidator (spec §4.3) and the booking
// lifecycle operations (create, cancel, list) that sit on top of it.
// Grounded in the teacher's BookingService, whose CreateBooking left the
// equivalent revalidation step as a TODO ("rely on calendar event
// creation to catch conflicts") — this fully implements what the teacher
// stubbed out, using the transactional idiom it uses elsewhere.
package booking

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bromanko/michael/internal/apperr"
	"github.com/bromanko/michael/internal/models"
	"github.com/bromanko/michael/internal/repository"
	"github.com/bromanko/michael/internal/scheduling"
	"github.com/bromanko/michael/internal/validate"
)

// Clock abstracts "now" so tests can inject a fixed instant.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock is the production Clock.
var SystemClock Clock = systemClock{}

// Service implements booking creation, cancellation, and lookup.
type Service struct {
	repos    *repository.Repositories
	clock    Clock
	hostLoc  *time.Location
}

func New(repos *repository.Repositories, clock Clock, hostLoc *time.Location) *Service {
	if clock == nil {
		clock = SystemClock
	}
	return &Service{repos: repos, clock: clock, hostLoc: hostLoc}
}

// CreateInput is a validated booking request: shape-checked by the HTTP
// layer before reaching the Revalidator (spec §4.3 preamble).
type CreateInput struct {
	Name            string
	Email           string
	Phone           string
	Title           string
	Description     string
	Start           time.Time
	End             time.Time
	DurationMinutes int
	Timezone        string
}

// Create runs the Revalidator: optimistic slot-engine precheck, then a
// transactional re-check-and-insert. Returns apperr.ErrSlotUnavailable on
// conflict.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Booking, error) {
	now := s.clock.Now()

	settings, err := s.repos.Settings.Get(ctx)
	if err != nil {
		return nil, apperr.Internal("failed to load scheduling settings", err)
	}
	weeklySlots, err := s.repos.Availability.List(ctx)
	if err != nil {
		return nil, apperr.Internal("failed to load host availability", err)
	}

	startEpoch := in.Start.UTC().Unix()
	endEpoch := in.End.UTC().Unix()

	existingBookings, err := s.repos.Bookings.RangeQuery(ctx, startEpoch, endEpoch)
	if err != nil {
		return nil, apperr.Internal("failed to load existing bookings", err)
	}
	cachedEvents, err := s.repos.Events.RangeQuery(ctx, startEpoch, endEpoch)
	if err != nil {
		return nil, apperr.Internal("failed to load cached events", err)
	}

	bookingIntervals := make([]models.Interval, 0, len(existingBookings))
	for _, b := range existingBookings {
		bookingIntervals = append(bookingIntervals, models.Interval{Start: b.Start.Time, End: b.End.Time})
	}
	eventIntervals := make([]models.Interval, 0, len(cachedEvents))
	for _, e := range cachedEvents {
		eventIntervals = append(eventIntervals, models.Interval{Start: e.Start.Time, End: e.End.Time})
	}

	participantLoc := in.Start.Location()

	// Step 2: run the slot engine over a single-window input equal to the
	// proposed slot, and verify the proposed slot survives.
	slots, err := scheduling.ComputeSlots(scheduling.Input{
		ParticipantWindows:  []scheduling.Window{{Start: in.Start, End: in.End}},
		HostWeeklySlots:     weeklySlots,
		HostLocation:        s.hostLoc,
		Bookings:            bookingIntervals,
		CachedEvents:        eventIntervals,
		DurationMinutes:     in.DurationMinutes,
		ParticipantLocation: participantLoc,
		Now:                 now,
		Settings:            settings,
	})
	if err != nil {
		return nil, apperr.Validation(err.Error())
	}

	found := false
	for _, sl := range slots {
		if sl.Start.Equal(in.Start) && sl.End.Equal(in.End) {
			found = true
			break
		}
	}
	if !found {
		return nil, apperr.ErrSlotUnavailable
	}

	cancelToken, err := randomToken()
	if err != nil {
		return nil, apperr.Internal("failed to generate cancel token", err)
	}

	b := &models.Booking{
		ID:              uuid.New().String(),
		CancelToken:     cancelToken,
		Status:          models.BookingStatusConfirmed,
		Name:            validate.Truncate(in.Name, validate.MaxName),
		Email:           in.Email,
		Phone:           validate.Truncate(in.Phone, validate.MaxPhone),
		Title:           validate.Truncate(in.Title, validate.MaxTitle),
		Description:     validate.Truncate(in.Description, validate.MaxDescription),
		Start:           models.NewSQLiteTime(in.Start),
		End:             models.NewSQLiteTime(in.End),
		Timezone:        in.Timezone,
		DurationMinutes: in.DurationMinutes,
		StartEpoch:      startEpoch,
		EndEpoch:        endEpoch,
		CreatedAt:       models.Now(),
	}

	// Step 4: the transaction is the authoritative serialization point.
	conflict, err := s.repos.Bookings.InsertIfNoConflict(ctx, b)
	if err != nil {
		return nil, apperr.Internal("failed to insert booking", err)
	}
	if conflict {
		return nil, apperr.ErrSlotUnavailable
	}

	return b, nil
}

// CancelByID cancels a booking as an admin action. Idempotent; returns
// found=false when the id does not exist at all.
func (s *Service) CancelByID(ctx context.Context, id string) (found bool, err error) {
	found, err = s.repos.Bookings.Cancel(ctx, id, "host", "")
	if err != nil {
		return false, apperr.Internal("failed to cancel booking", err)
	}
	return found, nil
}

// CancelByToken cancels a booking as the participant, authenticated by
// the per-booking cancel token. Per spec §9's Open Question resolution,
// an unknown id, absent token, or mismatching token must all look
// identical to callers to avoid booking enumeration — this returns
// found=false in every one of those cases; callers render a uniform 404.
func (s *Service) CancelByToken(ctx context.Context, id, token string) (found bool, err error) {
	if token == "" {
		return false, nil
	}
	b, err := s.repos.Bookings.GetByCancelToken(ctx, id, token)
	if err != nil {
		return false, apperr.Internal("failed to look up booking", err)
	}
	if b == nil {
		return false, nil
	}
	if _, err := s.repos.Bookings.Cancel(ctx, id, "invitee", ""); err != nil {
		return false, apperr.Internal("failed to cancel booking", err)
	}
	return true, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	b, err := s.repos.Bookings.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Internal("failed to load booking", err)
	}
	if b == nil {
		return nil, apperr.NotFound("booking not found")
	}
	return b, nil
}

func (s *Service) List(ctx context.Context, status string, page, pageSize int) ([]*models.Booking, int, error) {
	pageSize = validate.ClampPageSize(pageSize)
	if page < 1 {
		page = 1
	}
	bookings, total, err := s.repos.Bookings.List(ctx, status, page, pageSize)
	if err != nil {
		return nil, 0, apperr.Internal("failed to list bookings", err)
	}
	return bookings, total, nil
}

// DashboardSummary backs GET /api/admin/dashboard.
type DashboardSummary struct {
	UpcomingCount     int
	NextBookingTime   *time.Time
	NextBookingTitle  string
}

func (s *Service) Dashboard(ctx context.Context) (*DashboardSummary, error) {
	now := s.clock.Now()
	count, err := s.repos.Bookings.UpcomingCount(ctx, now.Unix())
	if err != nil {
		return nil, apperr.Internal("failed to count upcoming bookings", err)
	}
	next, err := s.repos.Bookings.NextUpcoming(ctx, now.Unix())
	if err != nil {
		return nil, apperr.Internal("failed to load next booking", err)
	}

	summary := &DashboardSummary{UpcomingCount: count}
	if next != nil {
		t := next.Start.Time
		summary.NextBookingTime = &t
		summary.NextBookingTitle = next.Title
	}
	return summary, nil
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("booking: rand.Read: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
