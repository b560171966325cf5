package dto

import "time"

type OptimizeRequest struct {
	Start *Coordinates `json:"start"`
	End   *Coordinates `json:"end"`
}

type MetricsRequest struct {
	Start          *Coordinates `json:"start"`
	End            *Coordinates `json:"end"`
	CompletedStops int          `json:"completed_stops"`
}

type LegResponse struct {
	DistanceMeters  int `json:"distance_meters"`
	DurationSeconds int `json:"duration_seconds"`
}

type MetricsResponse struct {
	Available           bool          `json:"available"`
	StopCount           int           `json:"stop_count"`
	TotalDistanceMeters int           `json:"total_distance_meters"`
	DriveSeconds        int           `json:"drive_seconds"`
	DwellSeconds        int           `json:"dwell_seconds"`
	FormattedDuration   string        `json:"formatted_duration"`
	CompletionAt        time.Time     `json:"completion_at"`
	Legs                []LegResponse `json:"legs,omitempty"`
}

type ProgressResponse struct {
	CompletedStops          int       `json:"completed_stops"`
	RemainingStops          int       `json:"remaining_stops"`
	RemainingDistanceMeters int       `json:"remaining_distance_meters"`
	RemainingDriveSeconds   int       `json:"remaining_drive_seconds"`
	RemainingDwellSeconds   int       `json:"remaining_dwell_seconds"`
	FormattedRemaining      string    `json:"formatted_remaining"`
	CompletionAt            time.Time `json:"completion_at"`
}

type OptimizeResponse struct {
	RunID           string          `json:"run_id"`
	RouteID         string          `json:"route_id"`
	Status          string          `json:"status"`
	Strategy        string          `json:"strategy"`
	OrderedStopIDs  []string        `json:"ordered_stop_ids"`
	Excluded        []string        `json:"excluded"`
	Batches         int             `json:"batches"`
	DegradedBatches int             `json:"degraded_batches"`
	Version         int             `json:"version"`
	Metrics         MetricsResponse `json:"metrics"`
}

type RouteMetricsResponse struct {
	RouteID   string            `json:"route_id"`
	Metrics   MetricsResponse   `json:"metrics"`
	Progress  *ProgressResponse `json:"progress,omitempty"`
	Milestone int               `json:"milestone,omitempty"`
}
