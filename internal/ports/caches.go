package ports

import (
	"context"
	"stop-sequencing-service/internal/domain"
)

// Persistent address -> coordinates cache.
// Keys are expected to be normalized by the caller.
type GeocodeCache interface {
	GetMany(ctx context.Context, addresses []string) (map[string]domain.Coordinates, error)
	PutMany(ctx context.Context, results map[string]domain.Coordinates) error
}

// Persistent cache of measured legs keyed by origin and destination
// coordinate keys (domain.Coordinates.Key).
type LegCache interface {
	GetMany(ctx context.Context, origin string, destinations []string) (map[string]domain.Leg, error)
	PutMany(ctx context.Context, origin string, results map[string]domain.Leg) error
}
