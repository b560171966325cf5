package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"stop-sequencing-service/internal/domain"
	"stop-sequencing-service/internal/ports"
	"time"

	"go.uber.org/zap"
)

const DefaultDirectionsMaxWaypoints = 50

// MetricsEstimator measures an ordered route with one directions request
// and projects completion times. It never fails: when the path cannot be
// measured it reports zeroed metrics with Available=false.
type MetricsEstimator struct {
	Directions   ports.DirectionsProvider
	Legs         ports.LegCache
	MaxWaypoints int
	Now          func() time.Time
	Logger       *zap.Logger
}

func NewMetricsEstimator(directions ports.DirectionsProvider, legs ports.LegCache, maxWaypoints int, logger *zap.Logger) *MetricsEstimator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MetricsEstimator{
		Directions:   directions,
		Legs:         legs,
		MaxWaypoints: maxWaypoints,
		Now:          time.Now,
		Logger:       logger,
	}
}

// Estimate measures start -> stops... -> end. Stops without coordinates
// are skipped.
func (e *MetricsEstimator) Estimate(
	ctx context.Context,
	stops []domain.Stop,
	start domain.Coordinates,
	end domain.Coordinates,
	dwellMinutes float64,
) domain.RouteMetrics {
	log := e.logger()

	points := make([]domain.Coordinates, 0, len(stops)+2)
	points = append(points, start)
	count := 0
	for _, s := range stops {
		if s.HasCoordinates() {
			points = append(points, *s.Location)
			count++
		}
	}
	points = append(points, end)

	now := e.now()
	m := domain.RouteMetrics{StopCount: count, CompletionAt: now, FormattedDuration: formatDuration(0)}

	legs, err := e.measure(ctx, points)
	if err != nil {
		log.Warn("route metrics unavailable", zap.Int("points", len(points)), zap.Error(err))
		return m
	}

	for _, l := range legs {
		m.TotalDistanceMeters += l.DistanceMeters
		m.DriveSeconds += l.DurationSeconds
	}
	m.Legs = legs
	m.DwellSeconds = int(math.Round(dwellMinutes * 60 * float64(count)))
	m.FormattedDuration = formatDuration(m.DriveSeconds + m.DwellSeconds)
	m.CompletionAt = now.Add(time.Duration(m.DriveSeconds+m.DwellSeconds) * time.Second)
	m.Available = true
	return m
}

var errTooManyWaypoints = errors.New("too many waypoints for one directions request")

// measure returns one leg per consecutive pair of points, from the leg cache
// when every leg is known, otherwise from one directions request.
func (e *MetricsEstimator) measure(ctx context.Context, points []domain.Coordinates) ([]domain.Leg, error) {
	limit := e.MaxWaypoints
	if limit == 0 {
		limit = DefaultDirectionsMaxWaypoints
	}
	if len(points) > limit {
		return nil, fmt.Errorf("%w: %d > %d", errTooManyWaypoints, len(points), limit)
	}

	if legs, ok := e.cached(ctx, points); ok {
		return legs, nil
	}

	if e.Directions == nil {
		return nil, errors.New("no directions provider configured")
	}

	legs, err := e.Directions.Directions(ctx, points)
	if err != nil {
		return nil, fmt.Errorf("directions: %w", err)
	}
	if len(legs) != len(points)-1 {
		return nil, fmt.Errorf("directions: got %d legs for %d points", len(legs), len(points))
	}

	e.store(ctx, points, legs)
	return legs, nil
}

func (e *MetricsEstimator) cached(ctx context.Context, points []domain.Coordinates) ([]domain.Leg, bool) {
	if e.Legs == nil {
		return nil, false
	}

	legs := make([]domain.Leg, 0, len(points)-1)
	for i := 0; i+1 < len(points); i++ {
		from, to := points[i].Key(), points[i+1].Key()
		if from == to {
			legs = append(legs, domain.Leg{})
			continue
		}
		hit, err := e.Legs.GetMany(ctx, from, []string{to})
		if err != nil {
			e.logger().Debug("leg cache lookup failed", zap.Error(err))
			return nil, false
		}
		l, ok := hit[to]
		if !ok {
			return nil, false
		}
		legs = append(legs, l)
	}
	return legs, true
}

func (e *MetricsEstimator) store(ctx context.Context, points []domain.Coordinates, legs []domain.Leg) {
	if e.Legs == nil {
		return
	}

	byOrigin := make(map[string]map[string]domain.Leg)
	for i, l := range legs {
		from, to := points[i].Key(), points[i+1].Key()
		if from == to {
			continue
		}
		if byOrigin[from] == nil {
			byOrigin[from] = make(map[string]domain.Leg)
		}
		byOrigin[from][to] = l
	}

	for origin, results := range byOrigin {
		if err := e.Legs.PutMany(ctx, origin, results); err != nil {
			e.logger().Warn("leg cache write failed", zap.String("origin", origin), zap.Error(err))
		}
	}
}

func (e *MetricsEstimator) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

func (e *MetricsEstimator) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

// Remaining projects the rest of a route after completedStops stops have
// been worked. The worker is assumed to be at the last completed stop.
func Remaining(m domain.RouteMetrics, completedStops int, now time.Time) domain.RouteProgress {
	total := m.StopCount
	done := min(max(completedStops, 0), total)
	left := total - done

	p := domain.RouteProgress{
		CompletedStops: done,
		RemainingStops: left,
	}

	if len(m.Legs) > 0 {
		for _, l := range m.Legs[min(done, len(m.Legs)):] {
			p.RemainingDistanceMeters += l.DistanceMeters
		}
	}

	switch {
	case m.TotalDistanceMeters > 0 && len(m.Legs) > 0:
		p.RemainingDriveSeconds = int(math.Round(
			float64(m.DriveSeconds) * float64(p.RemainingDistanceMeters) / float64(m.TotalDistanceMeters),
		))
	case total > 0:
		p.RemainingDriveSeconds = int(math.Round(float64(m.DriveSeconds) * float64(left) / float64(total)))
	}

	if total > 0 {
		p.RemainingDwellSeconds = int(math.Round(float64(m.DwellSeconds) * float64(left) / float64(total)))
	}

	remaining := p.RemainingDriveSeconds + p.RemainingDwellSeconds
	p.FormattedRemaining = formatDuration(remaining)
	p.CompletionAt = now.Add(time.Duration(remaining) * time.Second)
	return p
}

var milestones = []int{25, 50, 75, 100}

// Milestone reports the highest progress threshold (25, 50, 75 or 100
// percent) crossed when completed stops go from before to after.
func Milestone(before, after, total int) (int, bool) {
	if total <= 0 || after <= before {
		return 0, false
	}

	crossed, ok := 0, false
	for _, pct := range milestones {
		// Integer form of before/total < pct/100 <= after/total.
		if before*100 < pct*total && pct*total <= after*100 {
			crossed, ok = pct, true
		}
	}
	return crossed, ok
}

// formatDuration renders seconds as "2h 05m" or "45m", rounded to the
// nearest minute.
func formatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	minutes := (seconds + 30) / 60
	if h := minutes / 60; h > 0 {
		return fmt.Sprintf("%dh %02dm", h, minutes%60)
	}
	return fmt.Sprintf("%dm", minutes)
}
