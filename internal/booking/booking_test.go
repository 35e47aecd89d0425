package booking

import (
	"context"
	"testing"
	"time"

	"github.com/bromanko/michael/internal/apperr"
	"github.com/bromanko/michael/internal/config"
	"github.com/bromanko/michael/internal/database"
	"github.com/bromanko/michael/internal/models"
	"github.com/bromanko/michael/internal/repository"
)

type fixedClock struct{ t time.Time }

func (f fixedClock) Now() time.Time { return f.t }

func setupTestService(t *testing.T, hostSlots []models.HostAvailabilitySlot, now time.Time) *Service {
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

	repos := repository.New(db)
	if err := repos.Availability.ReplaceAll(context.Background(), hostSlots); err != nil {
		t.Fatalf("seed availability: %v", err)
	}

	return New(repos, fixedClock{t: now}, time.UTC)
}

func TestCreate_SucceedsOnOpenSlot(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	slots := []models.HostAvailabilitySlot{
		{ID: "s1", DayOfWeek: isoWeekdayOf(monday), StartTime: "09:00", EndTime: "17:00"},
	}

	svc := setupTestService(t, slots, now)

	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)

	b, err := svc.Create(context.Background(), CreateInput{
		Name: "Ada Lovelace", Email: "ada@example.com", Title: "Sync",
		Start: start, End: end, DurationMinutes: 30, Timezone: "UTC",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if b.Status != models.BookingStatusConfirmed {
		t.Errorf("expected confirmed booking, got %v", b.Status)
	}
	if b.CancelToken == "" {
		t.Error("expected a non-empty cancel token")
	}
}

func TestCreate_RejectsOverlappingBooking(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	slots := []models.HostAvailabilitySlot{
		{ID: "s1", DayOfWeek: isoWeekdayOf(monday), StartTime: "09:00", EndTime: "17:00"},
	}
	svc := setupTestService(t, slots, now)

	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)

	in := CreateInput{
		Name: "Ada Lovelace", Email: "ada@example.com", Title: "Sync",
		Start: start, End: end, DurationMinutes: 30, Timezone: "UTC",
	}
	if _, err := svc.Create(context.Background(), in); err != nil {
		t.Fatalf("first Create: %v", err)
	}

	// Second request for the identical slot must be rejected. The first
	// booking is already visible to the optimistic precheck, so it is the
	// precheck that rejects here; the transactional re-check is not reached.
	in2 := in
	in2.Email = "grace@example.com"
	_, err := svc.Create(context.Background(), in2)
	if err != apperr.ErrSlotUnavailable {
		t.Fatalf("expected ErrSlotUnavailable, got %v", err)
	}
}

func TestCreate_RejectsSlotOutsideHostAvailability(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	slots := []models.HostAvailabilitySlot{
		{ID: "s1", DayOfWeek: isoWeekdayOf(monday), StartTime: "09:00", EndTime: "10:00"},
	}
	svc := setupTestService(t, slots, now)

	// 18:00 is outside the 09:00-10:00 host window.
	start := time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)

	_, err := svc.Create(context.Background(), CreateInput{
		Name: "Ada Lovelace", Email: "ada@example.com", Title: "Sync",
		Start: start, End: end, DurationMinutes: 30, Timezone: "UTC",
	})
	if err != apperr.ErrSlotUnavailable {
		t.Fatalf("expected ErrSlotUnavailable, got %v", err)
	}
}

func TestCancelByToken_WrongTokenLooksLikeNotFound(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	slots := []models.HostAvailabilitySlot{
		{ID: "s1", DayOfWeek: isoWeekdayOf(monday), StartTime: "09:00", EndTime: "17:00"},
	}
	svc := setupTestService(t, slots, now)

	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	b, err := svc.Create(context.Background(), CreateInput{
		Name: "Ada Lovelace", Email: "ada@example.com", Title: "Sync",
		Start: start, End: start.Add(30 * time.Minute), DurationMinutes: 30, Timezone: "UTC",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	found, err := svc.CancelByToken(context.Background(), b.ID, "not-the-real-token")
	if err != nil {
		t.Fatalf("CancelByToken: %v", err)
	}
	if found {
		t.Error("mismatched token should report found=false, not an error")
	}

	found, err = svc.CancelByToken(context.Background(), b.ID, b.CancelToken)
	if err != nil {
		t.Fatalf("CancelByToken: %v", err)
	}
	if !found {
		t.Error("correct token should successfully cancel the booking")
	}
}

func isoWeekdayOf(t time.Time) int {
	if t.Weekday() == time.Sunday {
		return 7
	}
	return int(t.Weekday())
}
