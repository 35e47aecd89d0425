package scheduling

import (
	"errors"
	"sort"
	"time"

	"github.com/bromanko/michael/internal/models"
)

// ErrInvalidDuration is returned when the requested duration falls outside
// the [5, 480] minute bound.
var ErrInvalidDuration = errors.New("scheduling: duration must be between 5 and 480 minutes")

// ErrNoWindows is returned when the participant supplied no availability
// windows.
var ErrNoWindows = errors.New("scheduling: no participant windows supplied")

// Window is one participant-supplied availability window, expressed as an
// offset datetime interval. Timezone is advisory only; Start/End already
// carry their own offset.
type Window struct {
	Start time.Time
	End   time.Time
}

// Input bundles everything the slot engine needs to compute candidate
// slots. It never touches the store directly; callers load everything in
// advance so the engine stays pure and synchronous.
type Input struct {
	ParticipantWindows []Window
	HostWeeklySlots    []models.HostAvailabilitySlot
	HostLocation       *time.Location
	Bookings           []models.Interval // confirmed bookings overlapping the range
	CachedEvents       []models.Interval // synced external events overlapping the range
	DurationMinutes    int
	ParticipantLocation *time.Location
	Now                time.Time
	Settings           models.SchedulingSettings
}

// ComputeSlots runs the 10-step slot algorithm described in the spec and
// returns candidate slots converted back to the participant's timezone,
// in stable lexicographic order.
func ComputeSlots(in Input) ([]models.TimeSlot, error) {
	if in.DurationMinutes < 5 || in.DurationMinutes > 480 {
		return nil, ErrInvalidDuration
	}
	if len(in.ParticipantWindows) == 0 {
		return nil, ErrNoWindows
	}

	duration := time.Duration(in.DurationMinutes) * time.Minute

	// 2. Convert participant windows to instant intervals (time.Time is
	// already an instant once normalized to UTC for comparison).
	participantIntervals := make([]models.Interval, 0, len(in.ParticipantWindows))
	var rangeStart, rangeEnd time.Time
	for i, w := range in.ParticipantWindows {
		iv := models.Interval{Start: w.Start.UTC(), End: w.End.UTC()}
		participantIntervals = append(participantIntervals, iv)
		if i == 0 || iv.Start.Before(rangeStart) {
			rangeStart = iv.Start
		}
		if i == 0 || iv.End.After(rangeEnd) {
			rangeEnd = iv.End
		}
	}

	// 4. Expand host weekly slots into concrete instant intervals across
	// every local date the participant range could touch, in host tz.
	hostIntervals := expandHostSlots(in.HostWeeklySlots, in.HostLocation, rangeStart, rangeEnd)

	// Blockers: confirmed bookings ∪ cached events.
	blockers := make([]models.Interval, 0, len(in.Bookings)+len(in.CachedEvents))
	blockers = append(blockers, in.Bookings...)
	blockers = append(blockers, in.CachedEvents...)

	var chunks []models.Interval
	for _, p := range participantIntervals {
		for _, h := range hostIntervals {
			// 5. Intersect participant and host intervals.
			overlap, ok := Intersect(p, h)
			if !ok {
				continue
			}
			// 7. Subtract blockers.
			free := Subtract(overlap, blockers)
			// 8. Chunk into duration-sized pieces.
			for _, f := range free {
				chunks = append(chunks, Chunk(duration, f)...)
			}
		}
	}

	windowStart := in.Now.Add(time.Duration(in.Settings.MinNoticeHours) * time.Hour)
	windowEnd := in.Now.Add(time.Duration(in.Settings.BookingWindowDays) * 24 * time.Hour)

	out := make([]models.TimeSlot, 0, len(chunks))
	loc := in.ParticipantLocation
	if loc == nil {
		loc = time.UTC
	}
	for _, c := range chunks {
		// 9. Filter by scheduling-window policy.
		if c.Start.Before(windowStart) || c.Start.After(windowEnd) {
			continue
		}
		out = append(out, models.TimeSlot{
			Start: c.Start.In(loc),
			End:   c.End.In(loc),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})

	return out, nil
}

// ExpandHostAvailability exposes the host weekly template expansion for
// callers outside the slot engine (the admin calendar-view merges it
// alongside bookings and synced events).
func ExpandHostAvailability(slots []models.HostAvailabilitySlot, loc *time.Location, rangeStart, rangeEnd time.Time) []models.Interval {
	return expandHostSlots(slots, loc, rangeStart, rangeEnd)
}

// expandHostSlots expands the weekly template into concrete instant
// intervals for every local date in [rangeStart, rangeEnd] (inclusive,
// host-local dates) matching each slot's day-of-week. DST gaps are
// resolved forward-leniently: a skipped local time maps to the first
// valid instant after the gap, shortening the slot; an ambiguous local
// time maps to its first occurrence (Go's time.Date already does the
// latter; the former is handled by localAt below).
func expandHostSlots(slots []models.HostAvailabilitySlot, loc *time.Location, rangeStart, rangeEnd time.Time) []models.Interval {
	if loc == nil || len(slots) == 0 {
		return nil
	}

	// time.Date maps a skipped wall time to the pre-gap offset (02:30 in a
	// 02:00-03:00 gap comes back as 01:30), so such times are moved to the
	// instant the gap ends instead.
	localAt := func(day time.Time, hour, minute int) time.Time {
		t := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc)
		if t.Hour() != hour || t.Minute() != minute {
			if _, gapEnd := t.ZoneBounds(); !gapEnd.IsZero() {
				return gapEnd
			}
		}
		return t
	}

	firstLocalDay := rangeStart.In(loc)
	startDate := time.Date(firstLocalDay.Year(), firstLocalDay.Month(), firstLocalDay.Day(), 0, 0, 0, 0, loc)
	// Walk one day earlier to catch host slots that start the previous
	// local day but whose instant still falls within range (defensive;
	// in practice rangeStart already pins the earliest relevant day).
	startDate = startDate.AddDate(0, 0, -1)

	lastLocalDay := rangeEnd.In(loc)
	endDate := time.Date(lastLocalDay.Year(), lastLocalDay.Month(), lastLocalDay.Day(), 0, 0, 0, 0, loc)

	var out []models.Interval
	for day := startDate; !day.After(endDate); day = day.AddDate(0, 0, 1) {
		dow := isoWeekday(day.Weekday())
		for _, slot := range slots {
			if slot.DayOfWeek != dow {
				continue
			}
			startH, startM, ok1 := parseHHMM(slot.StartTime)
			endH, endM, ok2 := parseHHMM(slot.EndTime)
			if !ok1 || !ok2 {
				continue
			}
			start := localAt(day, startH, startM)
			end := localAt(day, endH, endM)
			if !start.Before(end) {
				continue
			}
			out = append(out, models.Interval{Start: start.UTC(), End: end.UTC()})
		}
	}
	return out
}

// isoWeekday converts Go's Sunday=0 weekday to the spec's Monday=1..Sunday=7.
func isoWeekday(d time.Weekday) int {
	if d == time.Sunday {
		return 7
	}
	return int(d)
}

func parseHHMM(s string) (hour, minute int, ok bool) {
	if len(s) != 5 || s[2] != ':' {
		return 0, 0, false
	}
	h := int(s[0]-'0')*10 + int(s[1]-'0')
	m := int(s[3]-'0')*10 + int(s[4]-'0')
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, false
	}
	return h, m, true
}
