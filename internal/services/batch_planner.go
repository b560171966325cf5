package services

import (
	"errors"
	"fmt"
	"stop-sequencing-service/internal/domain"
)

var ErrInvalidBatchSize = errors.New("batch size must be at least 1")

// AnchorStrategy selects the end anchor of a non-final batch.
type AnchorStrategy int

const (
	// AnchorNextFirst ends a batch at the first stop of the next batch in
	// pre-sort order.
	AnchorNextFirst AnchorStrategy = iota
	// AnchorNextCentroid ends a batch at the centroid of the next batch.
	AnchorNextCentroid
)

// ParseAnchorStrategy maps a configuration value to an AnchorStrategy.
func ParseAnchorStrategy(s string) (AnchorStrategy, error) {
	switch s {
	case "", "next-first":
		return AnchorNextFirst, nil
	case "next-centroid":
		return AnchorNextCentroid, nil
	}
	return AnchorNextFirst, fmt.Errorf("unknown anchor strategy %q", s)
}

func (a AnchorStrategy) String() string {
	if a == AnchorNextCentroid {
		return "next-centroid"
	}
	return "next-first"
}

// Batch is a contiguous slice of the pre-sorted route submitted to the
// remote sequencer in one call, bracketed by its anchors.
type Batch struct {
	Index int
	Stops []domain.Stop
	Start domain.Coordinates
	End   domain.Coordinates
}

// PlanBatches splits ordered stops into contiguous batches of at most
// batchSize, preserving order, and assigns anchors.
//
// Batch 0 starts at the route start and the last batch ends at the route
// end. Every other start is provisional (the previous batch's last pre-sort
// stop): the optimizer replaces it with the previous batch's finalized last
// stop before the batch is sent. Non-final ends come from the next batch
// according to strategy, because the next batch has not been optimized yet.
func PlanBatches(
	ordered []domain.Stop,
	batchSize int,
	start domain.Coordinates,
	end domain.Coordinates,
	strategy AnchorStrategy,
) ([]Batch, error) {
	if batchSize < 1 {
		return nil, fmt.Errorf("plan batches: %w (got %d)", ErrInvalidBatchSize, batchSize)
	}

	n := len(ordered)
	if n == 0 {
		return []Batch{}, nil
	}

	// Ceiling division: every batch is full except possibly the last.
	count := (n + batchSize - 1) / batchSize
	batches := make([]Batch, 0, count)

	for i := 0; i < count; i++ {
		lo := i * batchSize
		hi := min(lo+batchSize, n)

		b := Batch{
			Index: i,
			Stops: ordered[lo:hi:hi],
			Start: start,
			End:   end,
		}
		batches = append(batches, b)
	}

	for i := range batches {
		if i > 0 {
			prev := batches[i-1].Stops
			if last := prev[len(prev)-1]; last.HasCoordinates() {
				batches[i].Start = *last.Location
			}
		}
		if i < len(batches)-1 {
			if c, ok := nextAnchor(batches[i+1].Stops, strategy); ok {
				batches[i].End = c
			}
		}
	}

	return batches, nil
}

// nextAnchor derives the end anchor from the following batch's stops.
func nextAnchor(next []domain.Stop, strategy AnchorStrategy) (domain.Coordinates, bool) {
	switch strategy {
	case AnchorNextCentroid:
		return centroid(next)
	default:
		for _, s := range next {
			if s.HasCoordinates() {
				return *s.Location, true
			}
		}
		return domain.Coordinates{}, false
	}
}

// centroid is the arithmetic mean of the located stops' coordinates.
// Batches are small and local, so averaging degrees is adequate.
func centroid(stops []domain.Stop) (domain.Coordinates, bool) {
	var lat, lon float64
	n := 0
	for _, s := range stops {
		if !s.HasCoordinates() {
			continue
		}
		lat += s.Location.Lat
		lon += s.Location.Lon
		n++
	}
	if n == 0 {
		return domain.Coordinates{}, false
	}
	return domain.Coordinates{Lat: lat / float64(n), Lon: lon / float64(n)}, true
}
