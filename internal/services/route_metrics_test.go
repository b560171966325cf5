package services

import (
	"context"
	"stop-sequencing-service/internal/domain"
	"stop-sequencing-service/internal/ports"
	"testing"
	"time"
)

var fixedNow = time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

func newTestEstimator(dir *fixedDirections, legs *memLegCache) *MetricsEstimator {
	// A nil *memLegCache stored in the interface would not compare equal to nil.
	var cache ports.LegCache
	if legs != nil {
		cache = legs
	}
	e := NewMetricsEstimator(dir, cache, 50, nil)
	e.Now = func() time.Time { return fixedNow }
	return e
}

func TestEstimateTotals(t *testing.T) {
	dir := &fixedDirections{leg: domain.Leg{DistanceMeters: 1000, DurationSeconds: 300}}
	e := newTestEstimator(dir, nil)

	m := e.Estimate(context.Background(), scatteredStops(3), testStart, testEnd, 5)

	if !m.Available {
		t.Fatalf("expected metrics to be available")
	}
	// start -> 3 stops -> end is 4 legs.
	if len(m.Legs) != 4 || m.TotalDistanceMeters != 4000 || m.DriveSeconds != 1200 {
		t.Fatalf("legs = %d, distance = %d, drive = %d", len(m.Legs), m.TotalDistanceMeters, m.DriveSeconds)
	}
	if m.DwellSeconds != 900 {
		t.Fatalf("dwell = %d, want 900", m.DwellSeconds)
	}
	if want := fixedNow.Add(2100 * time.Second); !m.CompletionAt.Equal(want) {
		t.Fatalf("completion = %v, want %v", m.CompletionAt, want)
	}
	if m.FormattedDuration != "35m" {
		t.Fatalf("formatted = %q, want 35m", m.FormattedDuration)
	}
}

func TestEstimateWithoutLegCache(t *testing.T) {
	dir := &fixedDirections{leg: domain.Leg{DistanceMeters: 500, DurationSeconds: 60}}
	e := NewMetricsEstimator(dir, nil, 0, nil)

	m := e.Estimate(context.Background(), scatteredStops(2), testStart, testEnd, 0)

	if !m.Available || len(m.Legs) != 3 || m.TotalDistanceMeters != 1500 {
		t.Fatalf("unexpected metrics without leg cache: %+v", m)
	}
	if dir.calls != 1 {
		t.Fatalf("directions calls = %d, want 1", dir.calls)
	}
}

func TestEstimateUnavailable(t *testing.T) {
	t.Run("directions error", func(t *testing.T) {
		e := newTestEstimator(&fixedDirections{err: errRemoteDown}, nil)
		m := e.Estimate(context.Background(), scatteredStops(3), testStart, testEnd, 5)
		if m.Available || m.TotalDistanceMeters != 0 || m.DriveSeconds != 0 || m.DwellSeconds != 0 {
			t.Fatalf("expected zeroed unavailable metrics, got %+v", m)
		}
		if m.StopCount != 3 {
			t.Fatalf("stop count = %d, want 3", m.StopCount)
		}
	})

	t.Run("too many waypoints", func(t *testing.T) {
		dir := &fixedDirections{leg: domain.Leg{DistanceMeters: 1, DurationSeconds: 1}}
		e := newTestEstimator(dir, nil)
		m := e.Estimate(context.Background(), scatteredStops(49), testStart, testEnd, 5)
		if m.Available {
			t.Fatalf("expected unavailable metrics for 51 waypoints")
		}
		if dir.calls != 0 {
			t.Fatalf("expected no directions call, got %d", dir.calls)
		}
	})
}

func TestEstimateUsesLegCache(t *testing.T) {
	dir := &fixedDirections{leg: domain.Leg{DistanceMeters: 500, DurationSeconds: 60}}
	cache := &memLegCache{}
	e := newTestEstimator(dir, cache)
	stops := scatteredStops(4)

	first := e.Estimate(context.Background(), stops, testStart, testEnd, 0)
	second := e.Estimate(context.Background(), stops, testStart, testEnd, 0)

	if dir.calls != 1 {
		t.Fatalf("directions calls = %d, want 1", dir.calls)
	}
	if first.TotalDistanceMeters != second.TotalDistanceMeters || !second.Available {
		t.Fatalf("cached estimate differs: %+v vs %+v", first, second)
	}
}

func TestRemaining(t *testing.T) {
	m := domain.RouteMetrics{
		StopCount:           4,
		TotalDistanceMeters: 5000,
		DriveSeconds:        1000,
		DwellSeconds:        1200,
		Legs: []domain.Leg{
			{DistanceMeters: 1000}, {DistanceMeters: 1000}, {DistanceMeters: 1000},
			{DistanceMeters: 1000}, {DistanceMeters: 1000},
		},
		Available: true,
	}

	p := Remaining(m, 2, fixedNow)
	if p.RemainingStops != 2 || p.RemainingDistanceMeters != 3000 {
		t.Fatalf("remaining stops = %d, distance = %d", p.RemainingStops, p.RemainingDistanceMeters)
	}
	if p.RemainingDriveSeconds != 600 || p.RemainingDwellSeconds != 600 {
		t.Fatalf("drive = %d, dwell = %d", p.RemainingDriveSeconds, p.RemainingDwellSeconds)
	}
	if want := fixedNow.Add(1200 * time.Second); !p.CompletionAt.Equal(want) {
		t.Fatalf("completion = %v, want %v", p.CompletionAt, want)
	}

	done := Remaining(m, 10, fixedNow)
	if done.CompletedStops != 4 || done.RemainingStops != 0 || done.RemainingDwellSeconds != 0 {
		t.Fatalf("over-completed route: %+v", done)
	}
}

func TestRemainingWithoutLegs(t *testing.T) {
	m := domain.RouteMetrics{StopCount: 4, DriveSeconds: 800, DwellSeconds: 400}

	p := Remaining(m, 1, fixedNow)
	if p.RemainingDriveSeconds != 600 || p.RemainingDwellSeconds != 300 {
		t.Fatalf("drive = %d, dwell = %d", p.RemainingDriveSeconds, p.RemainingDwellSeconds)
	}
}

func TestMilestone(t *testing.T) {
	tests := []struct {
		before, after, total int
		want                 int
		ok                   bool
	}{
		{0, 1, 4, 25, true},
		{1, 2, 4, 50, true},
		{3, 4, 4, 100, true},
		{0, 1, 10, 0, false},
		{2, 3, 10, 25, true},
		{0, 10, 10, 100, true},
		{4, 4, 10, 0, false},
		{0, 1, 0, 0, false},
	}

	for _, tc := range tests {
		got, ok := Milestone(tc.before, tc.after, tc.total)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("Milestone(%d, %d, %d) = %d, %v; want %d, %v", tc.before, tc.after, tc.total, got, ok, tc.want, tc.ok)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := map[int]string{
		0:    "0m",
		89:   "1m",
		2700: "45m",
		3600: "1h 00m",
		7500: "2h 05m",
	}
	for in, want := range tests {
		if got := formatDuration(in); got != want {
			t.Fatalf("formatDuration(%d) = %q, want %q", in, got, want)
		}
	}
}
