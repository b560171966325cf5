package ports

import (
	"context"
	"stop-sequencing-service/internal/domain"
)

// Port: fan-out of route changes to interested consumers.
type RouteEventPublisher interface {
	Publish(ctx context.Context, routeID string, evt domain.RouteEvent) error
}
