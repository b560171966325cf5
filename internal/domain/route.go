package domain

import (
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("route version conflict")
)

// Represents one worker's route: the set of stops they are assigned and
// an optional saved destination used as the default end anchor.
// Version increases on every committed re-ordering of the route's stops.
type Route struct {
	RouteID     string
	WorkerID    string
	Destination *Coordinates
	Version     int
}

// Leg is the measured travel between two consecutive points of a route.
type Leg struct {
	DistanceMeters  int
	DurationSeconds int
}

// Aggregate travel estimate for an ordered route, from the start anchor
// through every stop to the end anchor. Recomputed on demand, never
// maintained incrementally. Available is false when the directions
// service could not measure the path; all totals are then zero.
type RouteMetrics struct {
	StopCount           int
	TotalDistanceMeters int
	DriveSeconds        int
	DwellSeconds        int
	FormattedDuration   string
	CompletionAt        time.Time
	Legs                []Leg
	Available           bool
}

// Remaining-time projection for a route that is partially worked.
type RouteProgress struct {
	CompletedStops          int
	RemainingStops          int
	RemainingDistanceMeters int
	RemainingDriveSeconds   int
	RemainingDwellSeconds   int
	FormattedRemaining      string
	CompletionAt            time.Time
}

// RouteEvent is published after a route's order changes.
type RouteEvent struct {
	Type           string    `json:"type"`
	RouteID        string    `json:"route_id"`
	RunID          string    `json:"run_id,omitempty"`
	Status         string    `json:"status,omitempty"`
	OrderedStopIDs []string  `json:"ordered_stop_ids"`
	Version        int       `json:"version"`
	At             time.Time `json:"at"`
}
