// ICS parsing and recurrence expansion (spec §4.4 step 5). Uses
// github.com/arran4/golang-ical (grounded via the kezhenxu94-bmw-saver
// example's go.mod) for VEVENT/VCALENDAR parsing primitives. golang-ical
// does not expand RRULEs, and no library in the example pack does either,
// so the expansion walk below is hand-rolled.
package caldav

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/bromanko/michael/internal/models"
)

// BusyInterval is one opaque busy block extracted from a calendar, in the
// host's local time zone convention used for scheduling.
type BusyInterval struct {
	UID     string
	Summary string
	Start   time.Time
	End     time.Time
	AllDay  bool
}

// ParseEvents decodes a raw ICS payload (a single VCALENDAR, typically
// wrapping one VEVENT plus its recurrence overrides) and expands any
// recurrence rule into concrete busy intervals overlapping
// [windowStart, windowEnd). Cancelled events (STATUS:CANCELLED) and
// events marked TRANSP:TRANSPARENT are dropped, per spec §4.4.
func ParseEvents(raw string, windowStart, windowEnd time.Time, hostLoc *time.Location) ([]BusyInterval, error) {
	cal, err := ics.ParseCalendar(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("caldav: parse ics: %w", err)
	}

	var out []BusyInterval
	for _, ev := range cal.Events() {
		if isTransparentOrCancelled(ev) {
			continue
		}

		uid := propValue(ev, ics.ComponentPropertyUniqueId)
		summary := propValue(ev, ics.ComponentPropertySummary)

		dtstart, allDay, err := parseDateTimeProp(ev, ics.ComponentPropertyDtStart, hostLoc)
		if err != nil {
			continue
		}
		dtend, _, err := parseDateTimeProp(ev, ics.ComponentPropertyDtEnd, hostLoc)
		if err != nil {
			// DTEND absent: synthesize per RFC 5545 defaults.
			if allDay {
				dtend = dtstart.AddDate(0, 0, 1)
			} else {
				dtend = dtstart
			}
		}

		duration := dtend.Sub(dtstart)
		rruleVal := propValue(ev, ics.ComponentPropertyRrule)
		exdates := parseExdates(ev, hostLoc)

		if rruleVal == "" {
			if overlaps(dtstart, dtend, windowStart, windowEnd) {
				out = append(out, BusyInterval{UID: uid, Summary: summary, Start: dtstart, End: dtend, AllDay: allDay})
			}
			continue
		}

		occurrences, err := expandRRule(rruleVal, dtstart, windowStart, windowEnd)
		if err != nil {
			continue
		}
		for _, occStart := range occurrences {
			if isExcluded(occStart, exdates) {
				continue
			}
			occEnd := occStart.Add(duration)
			if overlaps(occStart, occEnd, windowStart, windowEnd) {
				out = append(out, BusyInterval{UID: uid, Summary: summary, Start: occStart, End: occEnd, AllDay: allDay})
			}
		}
	}
	return out, nil
}

func isTransparentOrCancelled(ev *ics.VEvent) bool {
	if propValue(ev, ics.ComponentPropertyStatus) == "CANCELLED" {
		return true
	}
	if propValue(ev, ics.ComponentPropertyTransp) == "TRANSPARENT" {
		return true
	}
	return false
}

func propValue(ev *ics.VEvent, prop ics.ComponentProperty) string {
	p := ev.GetProperty(prop)
	if p == nil {
		return ""
	}
	return p.Value
}

// parseDateTimeProp parses a DTSTART/DTEND property, handling both
// floating/zoned date-times and VALUE=DATE all-day markers.
func parseDateTimeProp(ev *ics.VEvent, prop ics.ComponentProperty, hostLoc *time.Location) (time.Time, bool, error) {
	p := ev.GetProperty(prop)
	if p == nil {
		return time.Time{}, false, fmt.Errorf("caldav: missing %s", prop)
	}

	valueParam := ""
	for k, v := range p.ICalParameters {
		if strings.EqualFold(k, "VALUE") && len(v) > 0 {
			valueParam = v[0]
		}
	}

	if valueParam == "DATE" || len(p.Value) == 8 {
		t, err := time.ParseInLocation("20060102", p.Value, hostLoc)
		if err != nil {
			return time.Time{}, false, err
		}
		return t, true, nil
	}

	tzid := ""
	for k, v := range p.ICalParameters {
		if strings.EqualFold(k, "TZID") && len(v) > 0 {
			tzid = v[0]
		}
	}

	if strings.HasSuffix(p.Value, "Z") {
		t, err := time.Parse("20060102T150405Z", p.Value)
		return t, false, err
	}

	loc := hostLoc
	if tzid != "" {
		if l, err := time.LoadLocation(tzid); err == nil {
			loc = l
		}
	}
	t, err := time.ParseInLocation("20060102T150405", p.Value, loc)
	return t, false, err
}

func parseExdates(ev *ics.VEvent, hostLoc *time.Location) []time.Time {
	p := ev.GetProperty(ics.ComponentPropertyExdate)
	if p == nil {
		return nil
	}
	var out []time.Time
	for _, raw := range strings.Split(p.Value, ",") {
		raw = strings.TrimSuffix(strings.TrimSpace(raw), "Z")
		if t, err := time.ParseInLocation("20060102T150405", raw, hostLoc); err == nil {
			out = append(out, t)
		}
	}
	return out
}

func isExcluded(t time.Time, exdates []time.Time) bool {
	for _, ex := range exdates {
		if ex.Equal(t) {
			return true
		}
	}
	return false
}

func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// expandRRule walks an RFC 5545 recurrence rule from dtstart, returning
// every occurrence start time that falls within [windowStart, windowEnd).
// Supports FREQ in {DAILY,WEEKLY,MONTHLY,YEARLY}, INTERVAL, COUNT, UNTIL,
// and BYDAY (only meaningful for WEEKLY here). This is the one piece of
// the CalDAV pipeline with no library grounding in the pack — documented
// in DESIGN.md.
func expandRRule(rrule string, dtstart, windowStart, windowEnd time.Time) ([]time.Time, error) {
	parts := make(map[string]string)
	for _, kv := range strings.Split(rrule, ";") {
		pair := strings.SplitN(kv, "=", 2)
		if len(pair) == 2 {
			parts[strings.ToUpper(pair[0])] = pair[1]
		}
	}

	freq := parts["FREQ"]
	interval := 1
	if v, ok := parts["INTERVAL"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			interval = n
		}
	}

	count := -1
	if v, ok := parts["COUNT"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			count = n
		}
	}

	until := time.Time{}
	if v, ok := parts["UNTIL"]; ok {
		if t, err := time.Parse("20060102T150405Z", v); err == nil {
			until = t
		} else if t, err := time.Parse("20060102", v); err == nil {
			until = t
		}
	}

	var byday []time.Weekday
	if v, ok := parts["BYDAY"]; ok && freq == "WEEKLY" {
		for _, d := range strings.Split(v, ",") {
			if wd, ok := weekdayFromICal(d); ok {
				byday = append(byday, wd)
			}
		}
	}

	const hardCap = 10000
	var out []time.Time
	cursor := dtstart
	emitted := 0

	for i := 0; i < hardCap; i++ {
		if !until.IsZero() && cursor.After(until) {
			break
		}
		if count >= 0 && emitted >= count {
			break
		}
		if !cursor.Before(windowEnd) {
			if count < 0 && until.IsZero() {
				break
			}
		}

		candidates := []time.Time{cursor}
		if len(byday) > 0 {
			candidates = weekOccurrences(cursor, byday)
		}

		for _, c := range candidates {
			if count >= 0 && emitted >= count {
				break
			}
			if !until.IsZero() && c.After(until) {
				continue
			}
			emitted++
			if !c.Before(windowStart) && c.Before(windowEnd) {
				out = append(out, c)
			}
		}

		if cursor.After(windowEnd) && until.IsZero() && count < 0 {
			break
		}

		next, err := advance(cursor, freq, interval)
		if err != nil {
			return out, err
		}
		cursor = next
	}

	return out, nil
}

func weekdayFromICal(code string) (time.Weekday, bool) {
	switch strings.ToUpper(strings.TrimLeft(code, "-0123456789")) {
	case "SU":
		return time.Sunday, true
	case "MO":
		return time.Monday, true
	case "TU":
		return time.Tuesday, true
	case "WE":
		return time.Wednesday, true
	case "TH":
		return time.Thursday, true
	case "FR":
		return time.Friday, true
	case "SA":
		return time.Saturday, true
	}
	return 0, false
}

// weekOccurrences returns, for the week containing anchor, the instants
// on each requested weekday at anchor's time-of-day.
func weekOccurrences(anchor time.Time, days []time.Weekday) []time.Time {
	weekStart := anchor.AddDate(0, 0, -int(anchor.Weekday()))
	out := make([]time.Time, 0, len(days))
	for _, d := range days {
		offset := int(d)
		candidate := time.Date(weekStart.Year(), weekStart.Month(), weekStart.Day()+offset,
			anchor.Hour(), anchor.Minute(), anchor.Second(), 0, anchor.Location())
		out = append(out, candidate)
	}
	return out
}

func advance(t time.Time, freq string, interval int) (time.Time, error) {
	switch freq {
	case "DAILY":
		return t.AddDate(0, 0, interval), nil
	case "WEEKLY":
		return t.AddDate(0, 0, 7*interval), nil
	case "MONTHLY":
		return t.AddDate(0, interval, 0), nil
	case "YEARLY":
		return t.AddDate(interval, 0, 0), nil
	default:
		return time.Time{}, fmt.Errorf("caldav: unsupported FREQ %q", freq)
	}
}

// ToCachedEvent converts a BusyInterval into the persisted row shape.
func ToCachedEvent(sourceID, calendarURL string, b BusyInterval) models.CachedEvent {
	return models.CachedEvent{
		SourceID:    sourceID,
		CalendarURL: calendarURL,
		UID:         b.UID,
		Summary:     b.Summary,
		Start:       models.NewSQLiteTime(b.Start),
		End:         models.NewSQLiteTime(b.End),
		StartEpoch:  b.Start.UTC().Unix(),
		EndEpoch:    b.End.UTC().Unix(),
		AllDay:      b.AllDay,
	}
}
