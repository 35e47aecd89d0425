package calendarview

import (
	"context"
	"testing"
	"time"

	"github.com/bromanko/michael/internal/config"
	"github.com/bromanko/michael/internal/database"
	"github.com/bromanko/michael/internal/models"
	"github.com/bromanko/michael/internal/repository"
)

func setupTestRepos(t *testing.T) *repository.Repositories {
	t.Helper()

	cfg := config.DatabaseConfig{Path: ":memory:", MigrationsPath: "../../migrations"}
	db, err := database.New(cfg)
	if err != nil {
		t.Fatalf("database.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.Migrate(db, cfg.MigrationsPath); err != nil {
		t.Fatalf("database.Migrate: %v", err)
	}
	return repository.New(db)
}

func isoWeekdayOf(t time.Time) int {
	if t.Weekday() == time.Sunday {
		return 7
	}
	return int(t.Weekday())
}

func TestRange_SuppressesAvailabilityOnAllDayEventDate(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	tuesday := monday.AddDate(0, 0, 1)

	slots := []models.HostAvailabilitySlot{
		{ID: "slot-mon", DayOfWeek: isoWeekdayOf(monday), StartTime: "09:00", EndTime: "17:00"},
		{ID: "slot-tue", DayOfWeek: isoWeekdayOf(tuesday), StartTime: "09:00", EndTime: "17:00"},
	}
	if err := repos.Availability.ReplaceAll(ctx, slots); err != nil {
		t.Fatalf("seed availability: %v", err)
	}

	source := &models.CalendarSource{
		ID: "source-1", Provider: models.CalendarProviderFastmail, BaseURL: "https://caldav.example.com/",
		LastSyncResult: "pending", CreatedAt: models.Now(),
	}
	if err := repos.Calendars.Upsert(ctx, source); err != nil {
		t.Fatalf("seed calendar source: %v", err)
	}

	allDay := &models.CachedEvent{
		ID: "event-1", SourceID: source.ID, CalendarURL: "https://caldav.example.com/cal/",
		UID: "offsite-1", Summary: "Offsite", AllDay: true,
		Start:      models.NewSQLiteTime(monday),
		End:        models.NewSQLiteTime(monday.AddDate(0, 0, 1)),
		StartEpoch: monday.Unix(), EndEpoch: monday.AddDate(0, 0, 1).Unix(),
	}
	if err := repos.Events.ReplaceAllForSource(ctx, source.ID, []*models.CachedEvent{allDay}); err != nil {
		t.Fatalf("seed cached event: %v", err)
	}

	svc := New(repos, time.UTC)
	entries, err := svc.Range(ctx, monday, tuesday.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("Range: %v", err)
	}

	var mondayAvailability, tuesdayAvailability, calendarEntries int
	for _, e := range entries {
		switch e.Kind {
		case KindCalendar:
			calendarEntries++
		case KindAvailability:
			switch e.Start.Format("2006-01-02") {
			case monday.Format("2006-01-02"):
				mondayAvailability++
			case tuesday.Format("2006-01-02"):
				tuesdayAvailability++
			}
		}
	}

	if calendarEntries != 1 {
		t.Errorf("expected 1 synced calendar entry, got %d", calendarEntries)
	}
	if mondayAvailability != 0 {
		t.Errorf("expected availability on the all-day event's date to be suppressed, got %d entries", mondayAvailability)
	}
	if tuesdayAvailability == 0 {
		t.Error("expected availability on the following date to survive, got none")
	}
}

func TestRange_BookingAlwaysAppearsRegardlessOfSuppression(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	slots := []models.HostAvailabilitySlot{
		{ID: "slot-mon", DayOfWeek: isoWeekdayOf(monday), StartTime: "09:00", EndTime: "17:00"},
	}
	if err := repos.Availability.ReplaceAll(ctx, slots); err != nil {
		t.Fatalf("seed availability: %v", err)
	}

	booking := &models.Booking{
		ID: "booking-1", CancelToken: "tok-1", Status: models.BookingStatusConfirmed,
		Name: "Ada Lovelace", Email: "ada@example.com", Title: "Planning",
		Start: models.NewSQLiteTime(monday.Add(10 * time.Hour)),
		End:   models.NewSQLiteTime(monday.Add(11 * time.Hour)),
		Timezone: "UTC", DurationMinutes: 60,
		StartEpoch: monday.Add(10 * time.Hour).Unix(),
		EndEpoch:   monday.Add(11 * time.Hour).Unix(),
		CreatedAt:  models.Now(),
	}
	if conflict, err := repos.Bookings.InsertIfNoConflict(ctx, booking); err != nil || conflict {
		t.Fatalf("seed booking: conflict=%v err=%v", conflict, err)
	}

	svc := New(repos, time.UTC)
	entries, err := svc.Range(ctx, monday, monday.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("Range: %v", err)
	}

	found := false
	for _, e := range entries {
		if e.Kind == KindBooking && e.Title == "Planning" {
			found = true
		}
	}
	if !found {
		t.Error("expected the confirmed booking to appear in the merged timeline")
	}
}
