// Package scheduling implements the pure interval algebra and the slot
// engine that composes it with a host's weekly template and blockers.
package scheduling

import (
	"sort"
	"time"

	"github.com/bromanko/michael/internal/models"
)

// Intersect returns the overlap of a and b, or false if they do not
// overlap. Intersect is symmetric and idempotent with itself.
func Intersect(a, b models.Interval) (models.Interval, bool) {
	start := a.Start
	if b.Start.After(start) {
		start = b.Start
	}
	end := a.End
	if b.End.Before(end) {
		end = b.End
	}
	if !start.Before(end) {
		return models.Interval{}, false
	}
	return models.Interval{Start: start, End: end}, true
}

// Subtract removes every removal that overlaps source from source, and
// returns the ordered, non-overlapping gaps that remain. Removals may
// overlap each other.
func Subtract(source models.Interval, removals []models.Interval) []models.Interval {
	var overlapping []models.Interval
	for _, r := range removals {
		if _, ok := Intersect(source, r); ok {
			overlapping = append(overlapping, r)
		}
	}
	sort.Slice(overlapping, func(i, j int) bool {
		return overlapping[i].Start.Before(overlapping[j].Start)
	})

	var out []models.Interval
	cursor := source.Start
	for _, r := range overlapping {
		clampedStart := r.Start
		if clampedStart.Before(source.Start) {
			clampedStart = source.Start
		}
		clampedEnd := r.End
		if clampedEnd.After(source.End) {
			clampedEnd = source.End
		}
		if clampedStart.After(cursor) {
			out = append(out, models.Interval{Start: cursor, End: clampedStart})
		}
		if clampedEnd.After(cursor) {
			cursor = clampedEnd
		}
	}
	if cursor.Before(source.End) {
		out = append(out, models.Interval{Start: cursor, End: source.End})
	}
	return out
}

// Chunk packs interval into fixed-duration sub-intervals, greedily from
// the start. A trailing remainder shorter than d is discarded.
func Chunk(d time.Duration, interval models.Interval) []models.Interval {
	if d <= 0 {
		return nil
	}
	var out []models.Interval
	cursor := interval.Start
	for {
		next := cursor.Add(d)
		if next.After(interval.End) {
			break
		}
		out = append(out, models.Interval{Start: cursor, End: next})
		cursor = next
	}
	return out
}
