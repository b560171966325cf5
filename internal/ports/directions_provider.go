package ports

import (
	"context"
	"stop-sequencing-service/internal/domain"
)

// Contract for measuring a driven path through an ordered list of points.
type DirectionsProvider interface {
	// Return one leg per consecutive pair of points (len(points)-1 legs).
	Directions(ctx context.Context, points []domain.Coordinates) ([]domain.Leg, error)
}
