// Package repository implements the Store operations from spec §4.6: one
// struct per entity, each method a short-lived query against the shared
// *sql.DB, in the teacher's repository idiom (QueryRowContext/QueryContext,
// deferred rows.Close with logged close errors, explicit transactions for
// replace-all operations).
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/bromanko/michael/internal/models"
)

// Repositories aggregates every entity repository behind one handle,
// mirroring the teacher's Repositories struct.
type Repositories struct {
	Bookings     *BookingRepository
	Availability *AvailabilityRepository
	Settings     *SettingsRepository
	Calendars    *CalendarRepository
	Events       *CachedEventRepository
	History      *SyncHistoryRepository
	Sessions     *SessionRepository
}

// New builds a Repositories handle over db.
func New(db *sql.DB) *Repositories {
	return &Repositories{
		Bookings:     &BookingRepository{db: db},
		Availability: &AvailabilityRepository{db: db},
		Settings:     &SettingsRepository{db: db},
		Calendars:    &CalendarRepository{db: db},
		Events:       &CachedEventRepository{db: db},
		History:      &SyncHistoryRepository{db: db},
		Sessions:     &SessionRepository{db: db},
	}
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		log.Printf("[REPOSITORY] error closing rows: %v", err)
	}
}

func rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
		log.Printf("[REPOSITORY] error rolling back transaction: %v", err)
	}
}

// BookingRepository persists Booking rows.
type BookingRepository struct {
	db *sql.DB
}

// InsertIfNoConflict is the transactional step of the Revalidator (§4.3
// step 4): within a single transaction, re-query confirmed bookings
// overlapping [start,end); if any exist, abort with slot_unavailable;
// otherwise insert the new booking as confirmed.
func (r *BookingRepository) InsertIfNoConflict(ctx context.Context, b *models.Booking) (conflict bool, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("repository: begin tx: %w", err)
	}
	defer rollback(tx)

	var count int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM bookings
		WHERE status = 'confirmed' AND start_epoch < ? AND end_epoch > ?
	`, b.EndEpoch, b.StartEpoch).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("repository: overlap check: %w", err)
	}
	if count > 0 {
		return true, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO bookings (
			id, cancel_token, status, name, email, phone, title, description,
			start_at, end_at, timezone, duration_minutes, start_epoch, end_epoch,
			cancelled_by, cancel_reason, created_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	`,
		b.ID, b.CancelToken, b.Status, b.Name, b.Email, b.Phone, b.Title, b.Description,
		b.Start, b.End, b.Timezone, b.DurationMinutes, b.StartEpoch, b.EndEpoch,
		b.CancelledBy, b.CancelReason, b.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("repository: insert booking: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("repository: commit booking insert: %w", err)
	}
	return false, nil
}

func (r *BookingRepository) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	row := r.db.QueryRowContext(ctx, bookingSelect+" WHERE id = ?", id)
	b, err := scanBooking(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return b, err
}

// GetByCancelToken looks up a booking by its secret cancel token, used by
// the public cancel-by-token endpoint. Returns (nil, nil) when absent so
// callers can produce the spec's identical-404 response without leaking
// which of id/token was wrong.
func (r *BookingRepository) GetByCancelToken(ctx context.Context, id, token string) (*models.Booking, error) {
	row := r.db.QueryRowContext(ctx, bookingSelect+" WHERE id = ? AND cancel_token = ?", id, token)
	b, err := scanBooking(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return b, err
}

// List returns a page of bookings, optionally filtered by status, newest
// first, plus the total matching count.
func (r *BookingRepository) List(ctx context.Context, status string, page, pageSize int) ([]*models.Booking, int, error) {
	where := ""
	args := []interface{}{}
	if status == "confirmed" || status == "cancelled" {
		where = "WHERE status = ?"
		args = append(args, status)
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM bookings " + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("repository: count bookings: %w", err)
	}

	offset := (page - 1) * pageSize
	query := bookingSelect + " " + where + " ORDER BY start_epoch DESC LIMIT ? OFFSET ?"
	args = append(args, pageSize, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("repository: list bookings: %w", err)
	}
	defer closeRows(rows)

	var out []*models.Booking
	for rows.Next() {
		b, err := scanBookingRows(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, b)
	}
	return out, total, rows.Err()
}

// RangeQuery returns confirmed bookings whose interval intersects
// [start, end), by epoch seconds.
func (r *BookingRepository) RangeQuery(ctx context.Context, startEpoch, endEpoch int64) ([]*models.Booking, error) {
	rows, err := r.db.QueryContext(ctx, bookingSelect+`
		WHERE status = 'confirmed' AND start_epoch < ? AND end_epoch > ?
		ORDER BY start_epoch
	`, endEpoch, startEpoch)
	if err != nil {
		return nil, fmt.Errorf("repository: range query bookings: %w", err)
	}
	defer closeRows(rows)

	var out []*models.Booking
	for rows.Next() {
		b, err := scanBookingRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Cancel transitions a confirmed booking to cancelled. Idempotent: if the
// booking is already cancelled this still reports success.
func (r *BookingRepository) Cancel(ctx context.Context, id, cancelledBy, reason string) (found bool, err error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE bookings SET status = 'cancelled', cancelled_by = ?, cancel_reason = ?
		WHERE id = ? AND status = 'confirmed'
	`, cancelledBy, reason, id)
	if err != nil {
		return false, fmt.Errorf("repository: cancel booking: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		return true, nil
	}
	// Idempotent: treat already-cancelled bookings as found too.
	var exists int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM bookings WHERE id = ?", id).Scan(&exists); err != nil {
		return false, fmt.Errorf("repository: cancel existence check: %w", err)
	}
	return exists > 0, nil
}

// UpcomingCount and NextUpcoming back the admin dashboard summary.
func (r *BookingRepository) UpcomingCount(ctx context.Context, nowEpoch int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM bookings WHERE status = 'confirmed' AND start_epoch >= ?
	`, nowEpoch).Scan(&n)
	return n, err
}

func (r *BookingRepository) NextUpcoming(ctx context.Context, nowEpoch int64) (*models.Booking, error) {
	row := r.db.QueryRowContext(ctx, bookingSelect+`
		WHERE status = 'confirmed' AND start_epoch >= ?
		ORDER BY start_epoch ASC LIMIT 1
	`, nowEpoch)
	b, err := scanBooking(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return b, err
}

const bookingSelect = `
	SELECT id, cancel_token, status, name, email, phone, title, description,
	       start_at, end_at, timezone, duration_minutes, start_epoch, end_epoch,
	       cancelled_by, cancel_reason, created_at
	FROM bookings
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBooking(row *sql.Row) (*models.Booking, error) {
	return scanBookingScanner(row)
}

func scanBookingRows(rows *sql.Rows) (*models.Booking, error) {
	return scanBookingScanner(rows)
}

func scanBookingScanner(s rowScanner) (*models.Booking, error) {
	var b models.Booking
	err := s.Scan(
		&b.ID, &b.CancelToken, &b.Status, &b.Name, &b.Email, &b.Phone, &b.Title, &b.Description,
		&b.Start, &b.End, &b.Timezone, &b.DurationMinutes, &b.StartEpoch, &b.EndEpoch,
		&b.CancelledBy, &b.CancelReason, &b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// AvailabilityRepository persists the host's weekly template.
type AvailabilityRepository struct {
	db *sql.DB
}

func (r *AvailabilityRepository) List(ctx context.Context) ([]models.HostAvailabilitySlot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, day_of_week, start_time, end_time FROM host_availability_slots
		ORDER BY day_of_week, start_time
	`)
	if err != nil {
		return nil, fmt.Errorf("repository: list availability: %w", err)
	}
	defer closeRows(rows)

	var out []models.HostAvailabilitySlot
	for rows.Next() {
		var s models.HostAvailabilitySlot
		if err := rows.Scan(&s.ID, &s.DayOfWeek, &s.StartTime, &s.EndTime); err != nil {
			return nil, fmt.Errorf("repository: scan availability: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ReplaceAll atomically replaces the entire weekly template, per spec §3.
func (r *AvailabilityRepository) ReplaceAll(ctx context.Context, slots []models.HostAvailabilitySlot) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("repository: begin tx: %w", err)
	}
	defer rollback(tx)

	if _, err := tx.ExecContext(ctx, "DELETE FROM host_availability_slots"); err != nil {
		return fmt.Errorf("repository: clear availability: %w", err)
	}
	for _, s := range slots {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO host_availability_slots (id, day_of_week, start_time, end_time)
			VALUES (?, ?, ?, ?)
		`, s.ID, s.DayOfWeek, s.StartTime, s.EndTime); err != nil {
			return fmt.Errorf("repository: insert availability: %w", err)
		}
	}
	return tx.Commit()
}

// SettingsRepository persists the singleton SchedulingSettings row.
type SettingsRepository struct {
	db *sql.DB
}

func (r *SettingsRepository) Get(ctx context.Context) (models.SchedulingSettings, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT min_notice_hours, booking_window_days, default_duration_minutes, video_link
		FROM scheduling_settings WHERE id = 1
	`)
	var s models.SchedulingSettings
	err := row.Scan(&s.MinNoticeHours, &s.BookingWindowDays, &s.DefaultDurationMinutes, &s.VideoLink)
	if err == sql.ErrNoRows {
		return models.DefaultSchedulingSettings(), nil
	}
	if err != nil {
		return models.SchedulingSettings{}, fmt.Errorf("repository: get settings: %w", err)
	}
	return s, nil
}

func (r *SettingsRepository) Replace(ctx context.Context, s models.SchedulingSettings) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO scheduling_settings (id, min_notice_hours, booking_window_days, default_duration_minutes, video_link)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			min_notice_hours = excluded.min_notice_hours,
			booking_window_days = excluded.booking_window_days,
			default_duration_minutes = excluded.default_duration_minutes,
			video_link = excluded.video_link
	`, s.MinNoticeHours, s.BookingWindowDays, s.DefaultDurationMinutes, s.VideoLink)
	if err != nil {
		return fmt.Errorf("repository: replace settings: %w", err)
	}
	return nil
}

// CalendarRepository persists CalendarSource rows.
type CalendarRepository struct {
	db *sql.DB
}

// Upsert inserts the source if absent (by its deterministic id) and
// leaves an existing row untouched, so restarts do not create duplicate
// sources.
func (r *CalendarRepository) Upsert(ctx context.Context, s *models.CalendarSource) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO calendar_sources (id, provider, base_url, calendar_home_url, last_sync_at, last_sync_result, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, s.ID, s.Provider, s.BaseURL, s.CalendarHomeURL, s.LastSyncAt, s.LastSyncResult, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("repository: upsert calendar source: %w", err)
	}
	return nil
}

func (r *CalendarRepository) UpdateSyncStatus(ctx context.Context, id string, homeURL *string, syncedAt models.SQLiteTime, result string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE calendar_sources
		SET calendar_home_url = COALESCE(?, calendar_home_url), last_sync_at = ?, last_sync_result = ?
		WHERE id = ?
	`, homeURL, syncedAt, result, id)
	if err != nil {
		return fmt.Errorf("repository: update sync status: %w", err)
	}
	return nil
}

func (r *CalendarRepository) GetByID(ctx context.Context, id string) (*models.CalendarSource, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, provider, base_url, calendar_home_url, last_sync_at, last_sync_result, created_at
		FROM calendar_sources WHERE id = ?
	`, id)
	var s models.CalendarSource
	err := row.Scan(&s.ID, &s.Provider, &s.BaseURL, &s.CalendarHomeURL, &s.LastSyncAt, &s.LastSyncResult, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository: get calendar source: %w", err)
	}
	return &s, nil
}

func (r *CalendarRepository) List(ctx context.Context) ([]*models.CalendarSource, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, provider, base_url, calendar_home_url, last_sync_at, last_sync_result, created_at
		FROM calendar_sources ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("repository: list calendar sources: %w", err)
	}
	defer closeRows(rows)

	var out []*models.CalendarSource
	for rows.Next() {
		var s models.CalendarSource
		if err := rows.Scan(&s.ID, &s.Provider, &s.BaseURL, &s.CalendarHomeURL, &s.LastSyncAt, &s.LastSyncResult, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("repository: scan calendar source: %w", err)
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

// CachedEventRepository persists per-source blocker caches.
type CachedEventRepository struct {
	db *sql.DB
}

// ReplaceAllForSource atomically deletes and reinserts a source's cached
// events, per spec §4.4 step 6: a concurrent reader sees either the
// complete old set or the complete new set.
func (r *CachedEventRepository) ReplaceAllForSource(ctx context.Context, sourceID string, events []*models.CachedEvent) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("repository: begin tx: %w", err)
	}
	defer rollback(tx)

	if _, err := tx.ExecContext(ctx, "DELETE FROM cached_events WHERE source_id = ?", sourceID); err != nil {
		return fmt.Errorf("repository: clear cached events: %w", err)
	}
	for _, e := range events {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO cached_events (id, source_id, calendar_url, uid, summary, start_at, end_at, start_epoch, end_epoch, all_day)
			VALUES (?,?,?,?,?,?,?,?,?,?)
		`, e.ID, sourceID, e.CalendarURL, e.UID, e.Summary, e.Start, e.End, e.StartEpoch, e.EndEpoch, e.AllDay); err != nil {
			return fmt.Errorf("repository: insert cached event: %w", err)
		}
	}
	return tx.Commit()
}

// RangeQuery returns cached events across all sources intersecting
// [startEpoch, endEpoch).
func (r *CachedEventRepository) RangeQuery(ctx context.Context, startEpoch, endEpoch int64) ([]*models.CachedEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, source_id, calendar_url, uid, summary, start_at, end_at, start_epoch, end_epoch, all_day
		FROM cached_events
		WHERE start_epoch < ? AND end_epoch > ?
		ORDER BY start_epoch
	`, endEpoch, startEpoch)
	if err != nil {
		return nil, fmt.Errorf("repository: range query cached events: %w", err)
	}
	defer closeRows(rows)

	var out []*models.CachedEvent
	for rows.Next() {
		var e models.CachedEvent
		if err := rows.Scan(&e.ID, &e.SourceID, &e.CalendarURL, &e.UID, &e.Summary, &e.Start, &e.End, &e.StartEpoch, &e.EndEpoch, &e.AllDay); err != nil {
			return nil, fmt.Errorf("repository: scan cached event: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// SyncHistoryRepository persists sync attempt history.
type SyncHistoryRepository struct {
	db *sql.DB
}

func (r *SyncHistoryRepository) Append(ctx context.Context, e *models.SyncHistoryEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_history (id, source_id, synced_at, status, error_message)
		VALUES (?, ?, ?, ?, ?)
	`, e.ID, e.SourceID, e.SyncedAt, e.Status, e.Error)
	if err != nil {
		return fmt.Errorf("repository: append sync history: %w", err)
	}
	return nil
}

func (r *SyncHistoryRepository) ListLatest(ctx context.Context, sourceID string, limit int) ([]*models.SyncHistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, source_id, synced_at, status, error_message
		FROM sync_history WHERE source_id = ?
		ORDER BY synced_at DESC LIMIT ?
	`, sourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("repository: list sync history: %w", err)
	}
	defer closeRows(rows)

	var out []*models.SyncHistoryEntry
	for rows.Next() {
		var e models.SyncHistoryEntry
		if err := rows.Scan(&e.ID, &e.SourceID, &e.SyncedAt, &e.Status, &e.Error); err != nil {
			return nil, fmt.Errorf("repository: scan sync history: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// PruneToN deletes all but the most recent keep rows for a source, per
// spec §3's "pruned to the most recent 50 entries per source".
func (r *SyncHistoryRepository) PruneToN(ctx context.Context, sourceID string, keep int) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM sync_history
		WHERE source_id = ? AND id NOT IN (
			SELECT id FROM sync_history WHERE source_id = ?
			ORDER BY synced_at DESC LIMIT ?
		)
	`, sourceID, sourceID, keep)
	if err != nil {
		return fmt.Errorf("repository: prune sync history: %w", err)
	}
	return nil
}

// SessionRepository persists AdminSession rows.
type SessionRepository struct {
	db *sql.DB
}

func (r *SessionRepository) Create(ctx context.Context, s *models.AdminSession) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("repository: begin tx: %w", err)
	}
	defer rollback(tx)

	if _, err := tx.ExecContext(ctx, "DELETE FROM admin_sessions WHERE expires_at <= ?", models.Now()); err != nil {
		return fmt.Errorf("repository: prune expired sessions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO admin_sessions (token, created_at, expires_at) VALUES (?, ?, ?)
	`, s.Token, s.CreatedAt, s.ExpiresAt); err != nil {
		return fmt.Errorf("repository: insert session: %w", err)
	}
	return tx.Commit()
}

// Validate returns the session if present and unexpired. An
// already-expired row is deleted opportunistically.
func (r *SessionRepository) Validate(ctx context.Context, token string, now models.SQLiteTime) (*models.AdminSession, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT token, created_at, expires_at FROM admin_sessions WHERE token = ?
	`, token)
	var s models.AdminSession
	err := row.Scan(&s.Token, &s.CreatedAt, &s.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository: validate session: %w", err)
	}
	if !s.ExpiresAt.Time.After(now.Time) {
		_, _ = r.db.ExecContext(ctx, "DELETE FROM admin_sessions WHERE token = ?", token)
		return nil, nil
	}
	return &s, nil
}

func (r *SessionRepository) Revoke(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM admin_sessions WHERE token = ?", token)
	if err != nil {
		return fmt.Errorf("repository: revoke session: %w", err)
	}
	return nil
}
