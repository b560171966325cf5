package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"stop-sequencing-service/internal/domain"
	"stop-sequencing-service/internal/platform/obs"
	"stop-sequencing-service/internal/ports"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var ErrInvalidAnchor = errors.New("invalid anchor coordinates")

const (
	EventRouteOptimized = "route.optimized"
	EventRouteShuffled  = "route.shuffled"
)

type OptimizeRouteRequest struct {
	RouteID string
	Start   *domain.Coordinates
	End     *domain.Coordinates
}

type OptimizeRouteResult struct {
	RunID           string
	RouteID         string
	Status          Status
	Strategy        Strategy
	OrderedStopIDs  []string
	Excluded        []string
	Batches         int
	DegradedBatches int
	Version         int
	Metrics         domain.RouteMetrics
}

type ShuffleResult struct {
	RouteID        string
	OrderedStopIDs []string
	Version        int
}

type RouteMetricsResult struct {
	RouteID   string
	Metrics   domain.RouteMetrics
	Progress  *domain.RouteProgress
	Milestone int
}

// RouteService is the caller-facing surface over the stop store, the
// geocoder and the optimization engine.
type RouteService struct {
	Repo      ports.StopRepository
	Optimizer *HybridOptimizer
	Estimator *MetricsEstimator
	Geocoder  ports.Geocoder
	Geocodes  ports.GeocodeCache
	Events    ports.RouteEventPublisher

	DwellMinutes       float64
	GeocodeConcurrency int

	Logger  *zap.Logger
	Shuffle func(n int, swap func(i, j int))
	Now     func() time.Time
}

func NewRouteService(
	repo ports.StopRepository,
	optimizer *HybridOptimizer,
	estimator *MetricsEstimator,
	geocoder ports.Geocoder,
	geocodes ports.GeocodeCache,
	events ports.RouteEventPublisher,
	dwellMinutes float64,
	geocodeConcurrency int,
	logger *zap.Logger,
) *RouteService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RouteService{
		Repo:               repo,
		Optimizer:          optimizer,
		Estimator:          estimator,
		Geocoder:           geocoder,
		Geocodes:           geocodes,
		Events:             events,
		DwellMinutes:       dwellMinutes,
		GeocodeConcurrency: geocodeConcurrency,
		Logger:             logger,
		Shuffle:            rand.Shuffle,
		Now:                time.Now,
	}
}

// ListStops returns a route's stops in persisted order.
func (s *RouteService) ListStops(ctx context.Context, routeID string) (stops []domain.Stop, err error) {
	defer obs.Time(ctx, "routes.list_stops")(&err)

	if _, err := s.Repo.GetRoute(ctx, routeID); err != nil {
		return nil, fmt.Errorf("list stops: %w", err)
	}
	stops, err = s.Repo.ListStops(ctx, routeID)
	if err != nil {
		return nil, fmt.Errorf("list stops: %w", err)
	}
	return stops, nil
}

// OptimizeRoute geocodes what it can, sequences the located stops and
// commits the new order in one versioned write. Stops that could not be
// located keep their relative order after the sequenced ones.
func (s *RouteService) OptimizeRoute(ctx context.Context, req OptimizeRouteRequest) (out OptimizeRouteResult, err error) {
	defer obs.Time(ctx, "routes.optimize")(&err)

	runID := uuid.NewString()
	log := s.logger().With(zap.String("run_id", runID), zap.String("route_id", req.RouteID))

	if req.Start == nil || !req.Start.Valid() {
		return OptimizeRouteResult{}, fmt.Errorf("optimize route: start: %w", ErrInvalidAnchor)
	}
	if req.End != nil && !req.End.Valid() {
		return OptimizeRouteResult{}, fmt.Errorf("optimize route: end: %w", ErrInvalidAnchor)
	}

	route, err := s.Repo.GetRoute(ctx, req.RouteID)
	if err != nil {
		return OptimizeRouteResult{}, fmt.Errorf("optimize route: %w", err)
	}
	stops, err := s.Repo.ListStops(ctx, req.RouteID)
	if err != nil {
		return OptimizeRouteResult{}, fmt.Errorf("optimize route: list stops: %w", err)
	}

	stops, err = s.locate(ctx, log, stops)
	if err != nil {
		return OptimizeRouteResult{}, fmt.Errorf("optimize route: geocode: %w", err)
	}

	located := make([]domain.Stop, 0, len(stops))
	excluded := make([]domain.Stop, 0)
	for _, st := range stops {
		if st.HasCoordinates() {
			located = append(located, st)
		} else {
			excluded = append(excluded, st)
		}
	}

	start := *req.Start
	end := resolveEnd(req.End, route.Destination, start)

	out = OptimizeRouteResult{
		RunID:    runID,
		RouteID:  route.RouteID,
		Excluded: domain.StopIDs(excluded),
		Version:  route.Version,
	}

	if len(located) == 0 {
		log.Info("nothing to optimize", zap.Int("excluded", len(excluded)))
		out.Status = StatusNothingToOptimize
		out.Strategy = StrategyNone
		out.OrderedStopIDs = []string{}
		return out, nil
	}

	res, err := s.Optimizer.Optimize(ctx, located, start, end)
	if err != nil {
		return OptimizeRouteResult{}, fmt.Errorf("optimize route: %w", err)
	}

	ordered := append(domain.StopIDs(res.Stops), out.Excluded...)
	version, err := s.Repo.ApplyPositions(ctx, route.RouteID, route.Version, ordered)
	if err != nil {
		return OptimizeRouteResult{}, fmt.Errorf("optimize route: commit positions: %w", err)
	}

	out.Status = res.Status
	out.Strategy = res.Strategy
	out.OrderedStopIDs = domain.StopIDs(res.Stops)
	out.Batches = res.Batches
	out.DegradedBatches = res.DegradedBatches
	out.Version = version

	if s.Estimator != nil {
		out.Metrics = s.Estimator.Estimate(ctx, res.Stops, start, end, s.DwellMinutes)
	}

	log.Info("route optimized",
		zap.String("status", string(out.Status)),
		zap.String("strategy", string(out.Strategy)),
		zap.Int("stops", len(out.OrderedStopIDs)),
		zap.Int("excluded", len(out.Excluded)),
		zap.Int("degraded_batches", out.DegradedBatches),
		zap.Int("version", version),
	)

	s.publish(ctx, log, domain.RouteEvent{
		Type:           EventRouteOptimized,
		RouteID:        route.RouteID,
		RunID:          runID,
		Status:         string(out.Status),
		OrderedStopIDs: ordered,
		Version:        version,
		At:             s.now(),
	})

	return out, nil
}

// ShuffleRoute assigns a random order to a route's stops without consulting the
// engine.
func (s *RouteService) ShuffleRoute(ctx context.Context, routeID string) (out ShuffleResult, err error) {
	defer obs.Time(ctx, "routes.shuffle")(&err)

	route, err := s.Repo.GetRoute(ctx, routeID)
	if err != nil {
		return ShuffleResult{}, fmt.Errorf("shuffle route: %w", err)
	}
	stops, err := s.Repo.ListStops(ctx, routeID)
	if err != nil {
		return ShuffleResult{}, fmt.Errorf("shuffle route: list stops: %w", err)
	}

	ids := domain.StopIDs(stops)
	shuffle := s.Shuffle
	if shuffle == nil {
		shuffle = rand.Shuffle
	}
	shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })

	version, err := s.Repo.ApplyPositions(ctx, routeID, route.Version, ids)
	if err != nil {
		return ShuffleResult{}, fmt.Errorf("shuffle route: commit positions: %w", err)
	}

	s.publish(ctx, s.logger().With(zap.String("route_id", routeID)), domain.RouteEvent{
		Type:           EventRouteShuffled,
		RouteID:        routeID,
		OrderedStopIDs: ids,
		Version:        version,
		At:             s.now(),
	})

	return ShuffleResult{RouteID: routeID, OrderedStopIDs: ids, Version: version}, nil
}

// Metrics measures the route in its persisted order. When completedStops is
// positive it also projects the remaining time.
func (s *RouteService) Metrics(
	ctx context.Context,
	routeID string,
	start *domain.Coordinates,
	end *domain.Coordinates,
	completedStops int,
) (out RouteMetricsResult, err error) {
	defer obs.Time(ctx, "routes.metrics")(&err)

	if start == nil || !start.Valid() {
		return RouteMetricsResult{}, fmt.Errorf("route metrics: start: %w", ErrInvalidAnchor)
	}
	if end != nil && !end.Valid() {
		return RouteMetricsResult{}, fmt.Errorf("route metrics: end: %w", ErrInvalidAnchor)
	}

	route, err := s.Repo.GetRoute(ctx, routeID)
	if err != nil {
		return RouteMetricsResult{}, fmt.Errorf("route metrics: %w", err)
	}
	stops, err := s.Repo.ListStops(ctx, routeID)
	if err != nil {
		return RouteMetricsResult{}, fmt.Errorf("route metrics: list stops: %w", err)
	}

	if s.Estimator == nil {
		return RouteMetricsResult{}, errors.New("route metrics: no estimator configured")
	}

	m := s.Estimator.Estimate(ctx, stops, *start, resolveEnd(end, route.Destination, *start), s.DwellMinutes)
	out = RouteMetricsResult{RouteID: routeID, Metrics: m}

	if completedStops > 0 {
		p := Remaining(m, completedStops, s.now())
		out.Progress = &p
		if pct, ok := Milestone(completedStops-1, completedStops, m.StopCount); ok {
			out.Milestone = pct
		}
	}
	return out, nil
}

// locate fills in coordinates for stops that have an address but no
// location: first from the geocode cache, then from the geocoder with
// bounded concurrency. Geocoding failures are logged and leave the stop
// unlocated; failed coordinate writes are logged and do not abort the run.
func (s *RouteService) locate(ctx context.Context, log *zap.Logger, stops []domain.Stop) ([]domain.Stop, error) {
	pending := make(map[string][]int)
	for i, st := range stops {
		if st.HasCoordinates() {
			continue
		}
		addr := NormalizeAddress(st.Address)
		if addr == "" {
			continue
		}
		pending[addr] = append(pending[addr], i)
	}
	if len(pending) == 0 {
		return stops, nil
	}

	addresses := make([]string, 0, len(pending))
	for a := range pending {
		addresses = append(addresses, a)
	}

	found := make(map[string]domain.Coordinates, len(addresses))
	if s.Geocodes != nil {
		hits, err := s.Geocodes.GetMany(ctx, addresses)
		if err != nil {
			log.Warn("geocode cache lookup failed", zap.Error(err))
		}
		for a, c := range hits {
			if c.Valid() {
				found[a] = c
			}
		}
	}

	misses := make([]string, 0, len(addresses))
	for _, a := range addresses {
		if _, ok := found[a]; !ok {
			misses = append(misses, a)
		}
	}

	fresh := make(map[string]domain.Coordinates, len(misses))
	if len(misses) > 0 && s.Geocoder != nil {
		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(max(s.GeocodeConcurrency, 1))

		for _, addr := range misses {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				c, err := s.Geocoder.Geocode(gctx, addr)
				if err == nil && !c.Valid() {
					err = fmt.Errorf("geocoder returned invalid coordinates %s", c.Key())
				}
				if err != nil {
					if ctxErr := ctx.Err(); ctxErr != nil {
						return ctxErr
					}
					log.Warn("geocode failed; stop excluded", zap.String("address", addr), zap.Error(err))
					return nil
				}
				mu.Lock()
				fresh[addr] = c
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	if len(fresh) > 0 && s.Geocodes != nil {
		if err := s.Geocodes.PutMany(ctx, fresh); err != nil {
			log.Warn("geocode cache write failed", zap.Error(err))
		}
	}
	for a, c := range fresh {
		found[a] = c
	}

	out := make([]domain.Stop, len(stops))
	copy(out, stops)
	for addr, idxs := range pending {
		c, ok := found[addr]
		if !ok {
			continue
		}
		for _, i := range idxs {
			// The stop is sequenced even when its write-back fails.
			if err := s.Repo.UpdateCoordinates(ctx, out[i].StopID, c); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}
				log.Warn("stop coordinates not saved", zap.String("stop_id", out[i].StopID), zap.Error(err))
			}
			loc := c
			out[i].Location = &loc
		}
	}
	return out, nil
}

// NormalizeAddress collapses whitespace so equivalent addresses share one
// cache entry.
func NormalizeAddress(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func resolveEnd(requested, saved *domain.Coordinates, start domain.Coordinates) domain.Coordinates {
	if requested != nil {
		return *requested
	}
	if saved != nil && saved.Valid() {
		return *saved
	}
	return start
}

func (s *RouteService) publish(ctx context.Context, log *zap.Logger, evt domain.RouteEvent) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Publish(ctx, evt.RouteID, evt); err != nil {
		log.Warn("publish route event failed", zap.String("type", evt.Type), zap.Error(err))
	}
}

func (s *RouteService) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *RouteService) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
