package services

import (
	"math"
	"stop-sequencing-service/internal/domain"
)

// GreedySequence orders stops with a nearest-unvisited heuristic.
//
// Starting from start, it repeatedly appends the remaining stop closest to
// the current position and moves there. Ties go to the stop that appears
// first in the input, so the result is deterministic for a given input order.
// It does not attempt global optimization; it is the pre-sort that keeps
// batches geographically compact before remote sequencing.
//
// Stops without coordinates are not sequenced; they are appended after the
// sequenced stops in input order so no stop is ever dropped.
func GreedySequence(stops []domain.Stop, start domain.Coordinates) []domain.Stop {
	ordered := make([]domain.Stop, 0, len(stops))
	if len(stops) == 0 {
		return ordered
	}

	remaining := make([]domain.Stop, 0, len(stops))
	var unlocated []domain.Stop
	for _, s := range stops {
		if !s.HasCoordinates() {
			unlocated = append(unlocated, s)
			continue
		}
		remaining = append(remaining, s)
	}

	current := start
	for len(remaining) > 0 {
		bestIdx := -1
		bestDist := math.Inf(1)

		// Strict comparison keeps the earliest candidate on ties.
		for i, s := range remaining {
			d := DistanceFeet(current, *s.Location)
			if d < bestDist {
				bestDist = d
				bestIdx = i
			}
		}

		// Only reachable when every distance is NaN (invalid start anchor);
		// fall back to input order rather than loop forever.
		if bestIdx < 0 {
			bestIdx = 0
		}

		next := remaining[bestIdx]
		ordered = append(ordered, next)
		current = *next.Location
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	return append(ordered, unlocated...)
}
