package scheduling

import (
	"testing"
	"time"

	"github.com/bromanko/michael/internal/models"
)

func TestComputeSlots_RejectsOutOfRangeDuration(t *testing.T) {
	loc, _ := time.LoadLocation("UTC")
	base := Input{
		ParticipantWindows: []Window{{Start: time.Now(), End: time.Now().Add(time.Hour)}},
		HostLocation:       loc,
		DurationMinutes:    4,
		Now:                time.Now(),
		Settings:           models.DefaultSchedulingSettings(),
	}
	if _, err := ComputeSlots(base); err != ErrInvalidDuration {
		t.Errorf("expected ErrInvalidDuration, got %v", err)
	}

	base.DurationMinutes = 481
	if _, err := ComputeSlots(base); err != ErrInvalidDuration {
		t.Errorf("expected ErrInvalidDuration, got %v", err)
	}
}

func TestComputeSlots_RejectsNoWindows(t *testing.T) {
	loc, _ := time.LoadLocation("UTC")
	in := Input{
		HostLocation:    loc,
		DurationMinutes: 30,
		Now:             time.Now(),
		Settings:        models.DefaultSchedulingSettings(),
	}
	if _, err := ComputeSlots(in); err != ErrNoWindows {
		t.Errorf("expected ErrNoWindows, got %v", err)
	}
}

func TestComputeSlots_IntersectsHostAndParticipantWindows(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	// Monday 2026-03-02, host available 09:00-17:00 local.
	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, loc)
	dow := isoWeekday(monday.Weekday())

	hostSlots := []models.HostAvailabilitySlot{
		{DayOfWeek: dow, StartTime: "09:00", EndTime: "17:00"},
	}

	// Participant only free 10:00-11:00 local that day.
	participantStart := time.Date(2026, 3, 2, 10, 0, 0, 0, loc)
	participantEnd := time.Date(2026, 3, 2, 11, 0, 0, 0, loc)

	settings := models.DefaultSchedulingSettings()
	settings.MinNoticeHours = 0
	settings.BookingWindowDays = 30

	in := Input{
		ParticipantWindows:  []Window{{Start: participantStart, End: participantEnd}},
		HostWeeklySlots:     hostSlots,
		HostLocation:        loc,
		DurationMinutes:     30,
		ParticipantLocation: loc,
		Now:                 time.Date(2026, 3, 1, 0, 0, 0, 0, loc),
		Settings:            settings,
	}

	slots, err := ComputeSlots(in)
	if err != nil {
		t.Fatalf("ComputeSlots: %v", err)
	}
	if len(slots) != 2 {
		t.Fatalf("expected 2 30-minute slots in a 1-hour window, got %d: %v", len(slots), slots)
	}
	if !slots[0].Start.Equal(participantStart) {
		t.Errorf("first slot should start at window start, got %v", slots[0].Start)
	}
}

func TestComputeSlots_BlockersRemoveOverlappingSlots(t *testing.T) {
	loc := time.UTC
	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, loc)
	dow := isoWeekday(monday.Weekday())

	hostSlots := []models.HostAvailabilitySlot{
		{DayOfWeek: dow, StartTime: "09:00", EndTime: "10:00"},
	}

	booking := models.Interval{
		Start: time.Date(2026, 3, 2, 9, 30, 0, 0, loc),
		End:   time.Date(2026, 3, 2, 10, 0, 0, 0, loc),
	}

	settings := models.DefaultSchedulingSettings()
	settings.MinNoticeHours = 0
	settings.BookingWindowDays = 30

	in := Input{
		ParticipantWindows: []Window{{
			Start: time.Date(2026, 3, 2, 9, 0, 0, 0, loc),
			End:   time.Date(2026, 3, 2, 10, 0, 0, 0, loc),
		}},
		HostWeeklySlots:     hostSlots,
		HostLocation:        loc,
		Bookings:            []models.Interval{booking},
		DurationMinutes:     30,
		ParticipantLocation: loc,
		Now:                 time.Date(2026, 3, 1, 0, 0, 0, 0, loc),
		Settings:            settings,
	}

	slots, err := ComputeSlots(in)
	if err != nil {
		t.Fatalf("ComputeSlots: %v", err)
	}
	if len(slots) != 1 {
		t.Fatalf("expected exactly 1 free slot after the booking blocks the second half, got %d: %v", len(slots), slots)
	}
	if !slots[0].Start.Equal(time.Date(2026, 3, 2, 9, 0, 0, 0, loc)) {
		t.Errorf("unexpected slot start: %v", slots[0].Start)
	}
}

func TestComputeSlots_FiltersByMinNoticeAndBookingWindow(t *testing.T) {
	loc := time.UTC
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, loc)
	dow := isoWeekday(now.Weekday())

	hostSlots := []models.HostAvailabilitySlot{
		{DayOfWeek: dow, StartTime: "00:00", EndTime: "23:59"},
	}

	settings := models.DefaultSchedulingSettings()
	settings.MinNoticeHours = 4
	settings.BookingWindowDays = 1

	in := Input{
		ParticipantWindows: []Window{{
			Start: time.Date(2026, 3, 2, 0, 0, 0, 0, loc),
			End:   time.Date(2026, 3, 2, 23, 0, 0, 0, loc),
		}},
		HostWeeklySlots:     hostSlots,
		HostLocation:        loc,
		DurationMinutes:     60,
		ParticipantLocation: loc,
		Now:                 now,
		Settings:            settings,
	}

	slots, err := ComputeSlots(in)
	if err != nil {
		t.Fatalf("ComputeSlots: %v", err)
	}
	windowStart := now.Add(4 * time.Hour)
	windowEnd := now.Add(24 * time.Hour)
	for _, s := range slots {
		if s.Start.Before(windowStart) || s.Start.After(windowEnd) {
			t.Errorf("slot %v falls outside [%v, %v]", s.Start, windowStart, windowEnd)
		}
	}
}

func TestExpandHostAvailability_DSTSpringForwardShortensSlot(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	// 2026-03-08 is the US spring-forward date; 2:00-3:00 local doesn't exist.
	springForward := time.Date(2026, 3, 8, 0, 0, 0, 0, loc)
	dow := isoWeekday(springForward.Weekday())

	slots := []models.HostAvailabilitySlot{
		{DayOfWeek: dow, StartTime: "01:30", EndTime: "03:30"},
	}

	rangeStart := time.Date(2026, 3, 8, 0, 0, 0, 0, loc)
	rangeEnd := time.Date(2026, 3, 9, 0, 0, 0, 0, loc)

	out := ExpandHostAvailability(slots, loc, rangeStart, rangeEnd)
	if len(out) == 0 {
		t.Fatal("expected at least one expanded interval across the DST boundary")
	}
	for _, iv := range out {
		if !iv.Start.Before(iv.End) {
			t.Errorf("DST-affected interval is inverted or empty: %v", iv)
		}
		// 01:30 EST to 03:30 EDT is one elapsed hour, not the two wall hours.
		if got := iv.End.Sub(iv.Start); got != time.Hour {
			t.Errorf("expected the slot shortened to 1h across spring-forward, got %v", got)
		}
	}
}
