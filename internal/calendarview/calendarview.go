// Package calendarview merges availability, bookings, and synced external
// events into one tagged timeline for the admin calendar view (spec §6).
// A supplemented feature beyond the distilled spec's scope: the teacher's
// dashboard.go builds an analogous merged-events view for its own
// calendar page, which this generalizes to Michael's three event kinds.
package calendarview

import (
	"context"
	"sort"
	"time"

	"github.com/bromanko/michael/internal/repository"
	"github.com/bromanko/michael/internal/scheduling"
)

// Kind tags each entry in the merged timeline.
type Kind string

const (
	KindAvailability Kind = "availability"
	KindBooking      Kind = "booking"
	KindCalendar     Kind = "calendar"
)

// Entry is one tagged block on the admin calendar timeline.
type Entry struct {
	Kind    Kind      `json:"kind"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Title   string    `json:"title,omitempty"`
	AllDay  bool      `json:"allDay,omitempty"`
	SourceID string   `json:"sourceId,omitempty"`
}

// Service builds the merged timeline on demand.
type Service struct {
	repos   *repository.Repositories
	hostLoc *time.Location
}

func New(repos *repository.Repositories, hostLoc *time.Location) *Service {
	return &Service{repos: repos, hostLoc: hostLoc}
}

// Range returns every availability block, booking, and synced event
// overlapping [start, end), sorted by start time. Per spec §6 scenario 6,
// an availability block is suppressed on any local date carrying an
// all-day synced event, since the host is presumptively unavailable that
// day regardless of the weekly template.
func (s *Service) Range(ctx context.Context, start, end time.Time) ([]Entry, error) {
	startEpoch := start.UTC().Unix()
	endEpoch := end.UTC().Unix()

	weeklySlots, err := s.repos.Availability.List(ctx)
	if err != nil {
		return nil, err
	}
	bookings, err := s.repos.Bookings.RangeQuery(ctx, startEpoch, endEpoch)
	if err != nil {
		return nil, err
	}
	events, err := s.repos.Events.RangeQuery(ctx, startEpoch, endEpoch)
	if err != nil {
		return nil, err
	}

	suppressedDates := make(map[string]bool)
	var out []Entry
	for _, e := range events {
		entry := Entry{
			Kind:     KindCalendar,
			Start:    e.Start.Time,
			End:      e.End.Time,
			Title:    e.Summary,
			AllDay:   e.AllDay,
			SourceID: e.SourceID,
		}
		out = append(out, entry)
		if e.AllDay {
			// Mark every local date the event spans; DTEND is exclusive.
			for d := e.Start.Time.In(s.hostLoc); ; d = d.AddDate(0, 0, 1) {
				suppressedDates[d.Format("2006-01-02")] = true
				if !d.AddDate(0, 0, 1).Before(e.End.Time) {
					break
				}
			}
		}
	}

	for _, b := range bookings {
		out = append(out, Entry{
			Kind:  KindBooking,
			Start: b.Start.Time,
			End:   b.End.Time,
			Title: b.Title,
		})
	}

	for _, iv := range scheduling.ExpandHostAvailability(weeklySlots, s.hostLoc, start, end) {
		localDate := iv.Start.In(s.hostLoc).Format("2006-01-02")
		if suppressedDates[localDate] {
			continue
		}
		out = append(out, Entry{
			Kind:  KindAvailability,
			Start: iv.Start,
			End:   iv.End,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Start.Before(out[j].Start)
	})

	return out, nil
}
