package scheduling

import (
	"testing"
	"time"

	"github.com/bromanko/michael/internal/models"
)

func mustInterval(startOffset, endOffset time.Duration) models.Interval {
	base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	return models.Interval{Start: base.Add(startOffset), End: base.Add(endOffset)}
}

func TestIntersect_Overlapping(t *testing.T) {
	a := mustInterval(0, 2*time.Hour)
	b := mustInterval(time.Hour, 3*time.Hour)

	got, ok := Intersect(a, b)
	if !ok {
		t.Fatal("expected overlap")
	}
	want := mustInterval(time.Hour, 2*time.Hour)
	if got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestIntersect_Disjoint(t *testing.T) {
	a := mustInterval(0, time.Hour)
	b := mustInterval(time.Hour, 2*time.Hour)

	if _, ok := Intersect(a, b); ok {
		t.Error("touching-but-not-overlapping intervals should not intersect")
	}
}

func TestIntersect_Symmetric(t *testing.T) {
	a := mustInterval(0, 2*time.Hour)
	b := mustInterval(time.Hour, 3*time.Hour)

	ab, okAB := Intersect(a, b)
	ba, okBA := Intersect(b, a)
	if okAB != okBA || ab != ba {
		t.Errorf("Intersect not symmetric: a∩b=%v(%v), b∩a=%v(%v)", ab, okAB, ba, okBA)
	}
}

func TestSubtract_NoRemovals(t *testing.T) {
	source := mustInterval(0, 4*time.Hour)
	got := Subtract(source, nil)
	if len(got) != 1 || got[0] != source {
		t.Errorf("expected source unchanged, got %v", got)
	}
}

func TestSubtract_MiddleGap(t *testing.T) {
	source := mustInterval(0, 4*time.Hour)
	removals := []models.Interval{mustInterval(time.Hour, 2*time.Hour)}

	got := Subtract(source, removals)
	want := []models.Interval{
		mustInterval(0, time.Hour),
		mustInterval(2*time.Hour, 4*time.Hour),
	}
	if len(got) != len(want) {
		t.Fatalf("got %d gaps, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("gap %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSubtract_OverlappingRemovalsMerge(t *testing.T) {
	source := mustInterval(0, 4*time.Hour)
	// Two overlapping removals covering [1h,3h) combined.
	removals := []models.Interval{
		mustInterval(time.Hour, 2*time.Hour+30*time.Minute),
		mustInterval(2*time.Hour, 3*time.Hour),
	}

	got := Subtract(source, removals)
	want := []models.Interval{
		mustInterval(0, time.Hour),
		mustInterval(3*time.Hour, 4*time.Hour),
	}
	if len(got) != len(want) {
		t.Fatalf("got %d gaps, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("gap %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSubtract_RemovalCoversEntireSource(t *testing.T) {
	source := mustInterval(0, 2*time.Hour)
	removals := []models.Interval{mustInterval(0, 3*time.Hour)}

	got := Subtract(source, removals)
	if len(got) != 0 {
		t.Errorf("expected no remaining gaps, got %v", got)
	}
}

func TestSubtract_RemovalOutsideSourceIgnored(t *testing.T) {
	source := mustInterval(time.Hour, 2*time.Hour)
	removals := []models.Interval{mustInterval(10*time.Hour, 11*time.Hour)}

	got := Subtract(source, removals)
	if len(got) != 1 || got[0] != source {
		t.Errorf("unrelated removal should not affect source, got %v", got)
	}
}

func TestChunk_ExactMultiple(t *testing.T) {
	interval := mustInterval(0, time.Hour)
	got := Chunk(20*time.Minute, interval)
	if len(got) != 3 {
		t.Fatalf("expected 3 chunks, got %d: %v", len(got), got)
	}
	if got[0].Start != interval.Start || got[2].End != interval.End {
		t.Errorf("chunks don't tile the source interval: %v", got)
	}
}

func TestChunk_RemainderDiscarded(t *testing.T) {
	interval := mustInterval(0, 50*time.Minute)
	got := Chunk(20*time.Minute, interval)
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks with 10m remainder discarded, got %d: %v", len(got), got)
	}
}

func TestChunk_ZeroDuration(t *testing.T) {
	if got := Chunk(0, mustInterval(0, time.Hour)); got != nil {
		t.Errorf("zero duration should produce no chunks, got %v", got)
	}
}
