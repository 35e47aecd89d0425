// Shared handler dependencies and small conversion helpers.
package handlers

import (
	"log"
	"time"

	"github.com/bromanko/michael/internal/booking"
	"github.com/bromanko/michael/internal/calendarview"
	"github.com/bromanko/michael/internal/caldav"
	"github.com/bromanko/michael/internal/models"
	"github.com/bromanko/michael/internal/notify"
	"github.com/bromanko/michael/internal/parser"
	"github.com/bromanko/michael/internal/repository"
	"github.com/bromanko/michael/internal/session"
)

// Deps bundles every service the handler package needs, assembled once
// in cmd/server/main.go and threaded into each handler group.
type Deps struct {
	Repos        *repository.Repositories
	Booking      *booking.Service
	Sessions     *session.Service
	CalendarView *calendarview.Service
	Sync         *caldav.SyncService
	Parser       *parser.Client
	Notifier     *notify.Notifier
	HostLocation *time.Location
	Clock        booking.Clock
	AdminPassword string
	SecureCookies bool
	Logger       *log.Logger
}

func bookingsToIntervals(bookings []*models.Booking) []models.Interval {
	out := make([]models.Interval, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, models.Interval{Start: b.Start.Time, End: b.End.Time})
	}
	return out
}

func eventsToIntervals(events []*models.CachedEvent) []models.Interval {
	out := make([]models.Interval, 0, len(events))
	for _, e := range events {
		out = append(out, models.Interval{Start: e.Start.Time, End: e.End.Time})
	}
	return out
}

func notifyCancellationInput(b *models.Booking, cancelledBy string) notify.CancellationInput {
	return notify.CancellationInput{
		To:          b.Email,
		Title:       b.Title,
		Start:       b.Start.Time,
		CancelledBy: cancelledBy,
		Reason:      b.CancelReason,
	}
}
