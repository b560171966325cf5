package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"stop-sequencing-service/internal/domain"
	"stop-sequencing-service/internal/ports"
	"sync"
)

var errRemoteDown = errors.New("remote down")

// sequenceFunc adapts a function to ports.SequenceClient and records calls.
type sequenceFunc struct {
	mu    sync.Mutex
	calls []ports.SequenceRequest
	fn    func(call int, req ports.SequenceRequest) ([]string, error)
}

func (f *sequenceFunc) Sequence(_ context.Context, req ports.SequenceRequest) ([]string, error) {
	f.mu.Lock()
	call := len(f.calls)
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	return f.fn(call, req)
}

func (f *sequenceFunc) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func reversingClient() *sequenceFunc {
	return &sequenceFunc{fn: func(_ int, req ports.SequenceRequest) ([]string, error) {
		ids := domain.StopIDs(req.Stops)
		slices.Reverse(ids)
		return ids, nil
	}}
}

// exactClient tries every order of a batch and returns the one with the
// shortest path from the batch start to the batch end. Small batches only.
func exactClient() *sequenceFunc {
	return &sequenceFunc{fn: func(_ int, req ports.SequenceRequest) ([]string, error) {
		best, bestDist := []domain.Stop(nil), math.Inf(1)
		permute(slices.Clone(req.Stops), 0, func(order []domain.Stop) {
			if d := pathMeters(req.Start, order, req.End); d < bestDist {
				best, bestDist = slices.Clone(order), d
			}
		})
		return domain.StopIDs(best), nil
	}}
}

func permute(stops []domain.Stop, k int, visit func([]domain.Stop)) {
	if k == len(stops) {
		visit(stops)
		return
	}
	for i := k; i < len(stops); i++ {
		stops[k], stops[i] = stops[i], stops[k]
		permute(stops, k+1, visit)
		stops[k], stops[i] = stops[i], stops[k]
	}
}

// pathMeters is the straight-line length of start -> stops... -> end.
func pathMeters(start domain.Coordinates, stops []domain.Stop, end domain.Coordinates) float64 {
	total, cur := 0.0, start
	for _, s := range stops {
		total += DistanceMeters(cur, *s.Location)
		cur = *s.Location
	}
	return total + DistanceMeters(cur, end)
}

func failingClient() *sequenceFunc {
	return &sequenceFunc{fn: func(int, ports.SequenceRequest) ([]string, error) {
		return nil, errRemoteDown
	}}
}

// failOnceClient fails the first call and reverses afterwards.
func failOnceClient() *sequenceFunc {
	return &sequenceFunc{fn: func(call int, req ports.SequenceRequest) ([]string, error) {
		if call == 0 {
			return nil, errRemoteDown
		}
		ids := domain.StopIDs(req.Stops)
		slices.Reverse(ids)
		return ids, nil
	}}
}

func coord(lat, lon float64) *domain.Coordinates {
	return &domain.Coordinates{Lat: lat, Lon: lon}
}

// scatteredStops returns n located stops spread deterministically over a
// small area so nearest-neighbour order differs from input order.
func scatteredStops(n int) []domain.Stop {
	stops := make([]domain.Stop, 0, n)
	for i := 0; i < n; i++ {
		stops = append(stops, domain.Stop{
			StopID:  fmt.Sprintf("s%02d", i),
			RouteID: "r1",
			Address: fmt.Sprintf("%d Main St", i),
			Location: coord(
				40+float64((i*7)%n)*0.001,
				-75+float64((i*11)%n)*0.001,
			),
		})
	}
	return stops
}

func reversedIDs(stops []domain.Stop) []string {
	ids := domain.StopIDs(stops)
	slices.Reverse(ids)
	return ids
}

// memRepo is an in-memory ports.StopRepository.
type memRepo struct {
	mu      sync.Mutex
	routes  map[string]*domain.Route
	stops   map[string][]domain.Stop
	applied [][]string
	updates map[string]domain.Coordinates
	// updateErr fails UpdateCoordinates for the listed stops.
	updateErr map[string]error
}

func newMemRepo(route domain.Route, stops []domain.Stop) *memRepo {
	r := &memRepo{
		routes:  map[string]*domain.Route{route.RouteID: &route},
		stops:   map[string][]domain.Stop{route.RouteID: slices.Clone(stops)},
		updates: map[string]domain.Coordinates{},
	}
	return r
}

func (m *memRepo) GetRoute(_ context.Context, routeID string) (*domain.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.routes[routeID]
	if !ok {
		return nil, fmt.Errorf("route %q: %w", routeID, domain.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (m *memRepo) ListStops(_ context.Context, routeID string) ([]domain.Stop, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.stops[routeID]), nil
}

func (m *memRepo) UpdateCoordinates(_ context.Context, stopID string, c domain.Coordinates) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.updateErr[stopID]; err != nil {
		return err
	}
	m.updates[stopID] = c
	for rid, stops := range m.stops {
		for i := range stops {
			if stops[i].StopID == stopID {
				loc := c
				m.stops[rid][i].Location = &loc
			}
		}
	}
	return nil
}

func (m *memRepo) ApplyPositions(_ context.Context, routeID string, version int, orderedIDs []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.routes[routeID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	if r.Version != version {
		return 0, domain.ErrVersionConflict
	}
	byID := make(map[string]domain.Stop)
	for _, s := range m.stops[routeID] {
		byID[s.StopID] = s
	}
	if len(orderedIDs) != len(byID) {
		return 0, fmt.Errorf("expected %d ids, got %d", len(byID), len(orderedIDs))
	}
	next := make([]domain.Stop, 0, len(orderedIDs))
	for i, id := range orderedIDs {
		s := byID[id]
		s.Position = i + 1
		next = append(next, s)
	}
	m.stops[routeID] = next
	r.Version++
	m.applied = append(m.applied, slices.Clone(orderedIDs))
	return r.Version, nil
}

// mapGeocoder resolves addresses from a fixed table; others fail.
type mapGeocoder struct {
	mu    sync.Mutex
	known map[string]domain.Coordinates
	calls []string
}

func (g *mapGeocoder) Geocode(_ context.Context, address string) (domain.Coordinates, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, address)
	c, ok := g.known[address]
	if !ok {
		return domain.Coordinates{}, fmt.Errorf("no match for %q", address)
	}
	return c, nil
}

// memGeocodeCache is an in-memory ports.GeocodeCache.
type memGeocodeCache struct {
	mu      sync.Mutex
	entries map[string]domain.Coordinates
}

func (c *memGeocodeCache) GetMany(_ context.Context, addresses []string) (map[string]domain.Coordinates, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]domain.Coordinates)
	for _, a := range addresses {
		if v, ok := c.entries[a]; ok {
			out[a] = v
		}
	}
	return out, nil
}

func (c *memGeocodeCache) PutMany(_ context.Context, results map[string]domain.Coordinates) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = map[string]domain.Coordinates{}
	}
	for k, v := range results {
		c.entries[k] = v
	}
	return nil
}

// fixedDirections returns a constant leg per pair of points.
type fixedDirections struct {
	leg   domain.Leg
	err   error
	calls int
}

func (d *fixedDirections) Directions(_ context.Context, points []domain.Coordinates) ([]domain.Leg, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	legs := make([]domain.Leg, len(points)-1)
	for i := range legs {
		legs[i] = d.leg
	}
	return legs, nil
}

// memLegCache is an in-memory ports.LegCache.
type memLegCache struct {
	legs map[string]map[string]domain.Leg
}

func (c *memLegCache) GetMany(_ context.Context, origin string, destinations []string) (map[string]domain.Leg, error) {
	out := make(map[string]domain.Leg)
	for _, d := range destinations {
		if l, ok := c.legs[origin][d]; ok {
			out[d] = l
		}
	}
	return out, nil
}

func (c *memLegCache) PutMany(_ context.Context, origin string, results map[string]domain.Leg) error {
	if c.legs == nil {
		c.legs = map[string]map[string]domain.Leg{}
	}
	if c.legs[origin] == nil {
		c.legs[origin] = map[string]domain.Leg{}
	}
	for d, l := range results {
		c.legs[origin][d] = l
	}
	return nil
}

// recordingPublisher keeps published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.RouteEvent
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, evt domain.RouteEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}
