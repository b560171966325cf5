package ports

import (
	"context"
	"stop-sequencing-service/internal/domain"
)

// One remote sequencing call: a bounded batch of stops between two anchors.
type SequenceRequest struct {
	Start domain.Coordinates
	End   domain.Coordinates
	Stops []domain.Stop
}

// Contract for an external service that returns a near-optimal visiting
// order for a single batch.
type SequenceClient interface {
	// Return the batch's stop IDs in visiting order (anchors excluded).
	Sequence(ctx context.Context, req SequenceRequest) ([]string, error)
}
