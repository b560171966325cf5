package ports

import (
	"context"
	"stop-sequencing-service/internal/domain"
)

// Port: the store holding routes and their stops.
type StopRepository interface {
	// Return the route, or domain.ErrNotFound.
	GetRoute(ctx context.Context, routeID string) (*domain.Route, error)
	// Return all stops of a route ordered by position, then stop id.
	ListStops(ctx context.Context, routeID string) ([]domain.Stop, error)
	// Persist geocoded coordinates for a stop.
	UpdateCoordinates(ctx context.Context, stopID string, c domain.Coordinates) error
	// Atomically assign positions 1..n in the given order and bump the route
	// version. orderedIDs must be exactly the route's stop set; a stale
	// version returns domain.ErrVersionConflict.
	ApplyPositions(ctx context.Context, routeID string, version int, orderedIDs []string) (int, error)
}
