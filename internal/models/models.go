// Package models holds Michael's persisted entities and the small set of
// database/sql adapter types used to store them in SQLite.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// SQLiteTime is a time.Time wrapper that always stores and compares as UTC
// text, so range queries over the embedded database are lexicographic.
type SQLiteTime struct {
	time.Time
}

// Scan implements sql.Scanner for SQLiteTime.
func (st *SQLiteTime) Scan(value interface{}) error {
	if value == nil {
		st.Time = time.Time{}
		return nil
	}

	switch v := value.(type) {
	case time.Time:
		st.Time = v
		return nil
	case string:
		layouts := []string{
			time.RFC3339Nano,
			time.RFC3339,
			"2006-01-02T15:04:05Z",
			"2006-01-02 15:04:05",
		}
		for _, layout := range layouts {
			if t, err := time.Parse(layout, v); err == nil {
				st.Time = t
				return nil
			}
		}
		return errors.New("models: unable to parse time: " + v)
	default:
		return errors.New("models: unsupported type for SQLiteTime")
	}
}

// Value implements driver.Valuer for SQLiteTime.
func (st SQLiteTime) Value() (driver.Value, error) {
	return st.Time.UTC().Format("2006-01-02T15:04:05Z"), nil
}

// Now returns the current time as SQLiteTime (UTC).
func Now() SQLiteTime {
	return SQLiteTime{Time: time.Now().UTC()}
}

// NewSQLiteTime wraps t, normalizing to UTC.
func NewSQLiteTime(t time.Time) SQLiteTime {
	return SQLiteTime{Time: t.UTC()}
}

// StringSlice is a []string stored as a JSON array column.
type StringSlice []string

func (s StringSlice) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	return json.Marshal(s)
}

func (s *StringSlice) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		if str, ok := value.(string); ok {
			b = []byte(str)
		} else {
			return errors.New("models: type assertion to []byte failed")
		}
	}
	return json.Unmarshal(b, s)
}

// BookingStatus is a closed set of lifecycle states for a Booking.
type BookingStatus string

const (
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// Booking is a scheduled meeting. Once confirmed it is never deleted, only
// transitioned to cancelled.
type Booking struct {
	ID              string        `json:"id" db:"id"`
	CancelToken     string        `json:"-" db:"cancel_token"`
	Status          BookingStatus `json:"status" db:"status"`
	Name            string        `json:"name" db:"name"`
	Email           string        `json:"email" db:"email"`
	Phone           string        `json:"phone" db:"phone"`
	Title           string        `json:"title" db:"title"`
	Description     string        `json:"description" db:"description"`
	Start           SQLiteTime    `json:"start" db:"start_at"`
	End             SQLiteTime    `json:"end" db:"end_at"`
	Timezone        string        `json:"timezone" db:"timezone"`
	DurationMinutes int           `json:"durationMinutes" db:"duration_minutes"`
	StartEpoch      int64         `json:"-" db:"start_epoch"`
	EndEpoch        int64         `json:"-" db:"end_epoch"`
	CancelledBy     string        `json:"cancelledBy,omitempty" db:"cancelled_by"`
	CancelReason    string        `json:"cancelReason,omitempty" db:"cancel_reason"`
	CreatedAt       SQLiteTime    `json:"createdAt" db:"created_at"`
}

// HostAvailabilitySlot is one row of the host's recurring weekly template.
// DayOfWeek is 1=Monday .. 7=Sunday. StartTime/EndTime are "HH:MM" in the
// host's configured timezone.
type HostAvailabilitySlot struct {
	ID        string `json:"id" db:"id"`
	DayOfWeek int    `json:"dayOfWeek" db:"day_of_week"`
	StartTime string `json:"startTime" db:"start_time"`
	EndTime   string `json:"endTime" db:"end_time"`
}

// SchedulingSettings is the single mutable policy row.
type SchedulingSettings struct {
	MinNoticeHours          int     `json:"minNoticeHours" db:"min_notice_hours"`
	BookingWindowDays       int     `json:"bookingWindowDays" db:"booking_window_days"`
	DefaultDurationMinutes  int     `json:"defaultDurationMinutes" db:"default_duration_minutes"`
	VideoLink               *string `json:"videoLink" db:"video_link"`
}

// DefaultSchedulingSettings mirrors the spec's defaults for an unset row.
func DefaultSchedulingSettings() SchedulingSettings {
	return SchedulingSettings{
		MinNoticeHours:         6,
		BookingWindowDays:      30,
		DefaultDurationMinutes: 30,
	}
}

// CalendarProvider is the closed set of supported CalDAV providers.
type CalendarProvider string

const (
	CalendarProviderFastmail CalendarProvider = "fastmail"
	CalendarProviderICloud   CalendarProvider = "icloud"
)

// CalendarSource is a configured CalDAV account. Credentials are never
// persisted here; they live only in process configuration.
type CalendarSource struct {
	ID               string           `json:"id" db:"id"`
	Provider         CalendarProvider `json:"provider" db:"provider"`
	BaseURL          string           `json:"baseUrl" db:"base_url"`
	CalendarHomeURL  *string          `json:"calendarHomeUrl" db:"calendar_home_url"`
	LastSyncAt       *SQLiteTime      `json:"lastSyncAt" db:"last_sync_at"`
	LastSyncResult   string           `json:"lastSyncResult" db:"last_sync_result"`
	CreatedAt        SQLiteTime       `json:"createdAt" db:"created_at"`
}

// CachedEvent is a blocker synced from an external calendar. The set of
// CachedEvents for a source is replaced atomically on each sync.
type CachedEvent struct {
	ID          string     `json:"id" db:"id"`
	SourceID    string     `json:"sourceId" db:"source_id"`
	CalendarURL string     `json:"calendarUrl" db:"calendar_url"`
	UID         string     `json:"uid" db:"uid"`
	Summary     string     `json:"summary" db:"summary"`
	Start       SQLiteTime `json:"start" db:"start_at"`
	End         SQLiteTime `json:"end" db:"end_at"`
	StartEpoch  int64      `json:"-" db:"start_epoch"`
	EndEpoch    int64      `json:"-" db:"end_epoch"`
	AllDay      bool       `json:"allDay" db:"all_day"`
}

// SyncStatus is the closed outcome set for a SyncHistoryEntry.
type SyncStatus string

const (
	SyncStatusOK    SyncStatus = "ok"
	SyncStatusError SyncStatus = "error"
)

// SyncHistoryEntry records one sync attempt for a CalendarSource. Pruned to
// the most recent 50 rows per source.
type SyncHistoryEntry struct {
	ID       string     `json:"id" db:"id"`
	SourceID string     `json:"sourceId" db:"source_id"`
	SyncedAt SQLiteTime `json:"syncedAt" db:"synced_at"`
	Status   SyncStatus `json:"status" db:"status"`
	Error    string     `json:"error,omitempty" db:"error_message"`
}

// AdminSession is an opaque-token session for the single admin identity.
type AdminSession struct {
	Token     string     `json:"-" db:"token"`
	CreatedAt SQLiteTime `json:"createdAt" db:"created_at"`
	ExpiresAt SQLiteTime `json:"expiresAt" db:"expires_at"`
}

// Interval is a half-open instant interval [Start, End). It is the
// currency of the interval algebra and the slot engine; never persisted
// directly.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Duration is End - Start.
func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// TimeSlot is a candidate bookable interval returned to callers, expressed
// as offset datetimes in a particular timezone.
type TimeSlot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}
