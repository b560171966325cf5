package handlers

import (
	"context"
	"net/http"
	"stop-sequencing-service/internal/api/dto"
	"stop-sequencing-service/internal/domain"
	"stop-sequencing-service/internal/services"
)

// RouteService is the subset of services.RouteService the handlers use.
type RouteService interface {
	ListStops(ctx context.Context, routeID string) ([]domain.Stop, error)
	OptimizeRoute(ctx context.Context, req services.OptimizeRouteRequest) (services.OptimizeRouteResult, error)
	ShuffleRoute(ctx context.Context, routeID string) (services.ShuffleResult, error)
	Metrics(ctx context.Context, routeID string, start, end *domain.Coordinates, completedStops int) (services.RouteMetricsResult, error)
}

type RouteHandler struct {
	Service RouteService
}

func (h *RouteHandler) ListStops(w http.ResponseWriter, r *http.Request) {
	routeID := r.PathValue("routeID")

	stops, err := h.Service.ListStops(r.Context(), routeID)
	if err != nil {
		writeServiceError(w, r, "list stops", err)
		return
	}

	res := dto.ListStopsResponse{RouteID: routeID, Stops: make([]dto.StopResponse, 0, len(stops))}
	for _, s := range stops {
		res.Stops = append(res.Stops, dto.StopResponse{
			StopID:   s.StopID,
			Address:  s.Address,
			Location: toDTOCoords(s.Location),
			Position: s.Position,
		})
	}

	writeJSON(w, r, http.StatusOK, res)
}

// Optimize sequences the route's stops and commits the new order.
func (h *RouteHandler) Optimize(w http.ResponseWriter, r *http.Request) {
	var req dto.OptimizeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Start == nil {
		writeError(w, r, http.StatusBadRequest, "start is required")
		return
	}

	out, err := h.Service.OptimizeRoute(r.Context(), services.OptimizeRouteRequest{
		RouteID: r.PathValue("routeID"),
		Start:   fromDTOCoords(req.Start),
		End:     fromDTOCoords(req.End),
	})
	if err != nil {
		writeServiceError(w, r, "optimize route", err)
		return
	}

	writeJSON(w, r, http.StatusOK, dto.OptimizeResponse{
		RunID:           out.RunID,
		RouteID:         out.RouteID,
		Status:          string(out.Status),
		Strategy:        string(out.Strategy),
		OrderedStopIDs:  nonNil(out.OrderedStopIDs),
		Excluded:        nonNil(out.Excluded),
		Batches:         out.Batches,
		DegradedBatches: out.DegradedBatches,
		Version:         out.Version,
		Metrics:         toMetricsResponse(out.Metrics),
	})
}

func (h *RouteHandler) Shuffle(w http.ResponseWriter, r *http.Request) {
	out, err := h.Service.ShuffleRoute(r.Context(), r.PathValue("routeID"))
	if err != nil {
		writeServiceError(w, r, "shuffle route", err)
		return
	}

	writeJSON(w, r, http.StatusOK, dto.ShuffleResponse{
		RouteID:        out.RouteID,
		OrderedStopIDs: nonNil(out.OrderedStopIDs),
		Version:        out.Version,
	})
}

func (h *RouteHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	var req dto.MetricsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Start == nil {
		writeError(w, r, http.StatusBadRequest, "start is required")
		return
	}
	if req.CompletedStops < 0 {
		writeError(w, r, http.StatusBadRequest, "completed_stops must not be negative")
		return
	}

	out, err := h.Service.Metrics(r.Context(), r.PathValue("routeID"), fromDTOCoords(req.Start), fromDTOCoords(req.End), req.CompletedStops)
	if err != nil {
		writeServiceError(w, r, "route metrics", err)
		return
	}

	res := dto.RouteMetricsResponse{
		RouteID:   out.RouteID,
		Metrics:   toMetricsResponse(out.Metrics),
		Milestone: out.Milestone,
	}
	if p := out.Progress; p != nil {
		res.Progress = &dto.ProgressResponse{
			CompletedStops:          p.CompletedStops,
			RemainingStops:          p.RemainingStops,
			RemainingDistanceMeters: p.RemainingDistanceMeters,
			RemainingDriveSeconds:   p.RemainingDriveSeconds,
			RemainingDwellSeconds:   p.RemainingDwellSeconds,
			FormattedRemaining:      p.FormattedRemaining,
			CompletionAt:            p.CompletionAt,
		}
	}

	writeJSON(w, r, http.StatusOK, res)
}

func toMetricsResponse(m domain.RouteMetrics) dto.MetricsResponse {
	legs := make([]dto.LegResponse, 0, len(m.Legs))
	for _, l := range m.Legs {
		legs = append(legs, dto.LegResponse{DistanceMeters: l.DistanceMeters, DurationSeconds: l.DurationSeconds})
	}
	return dto.MetricsResponse{
		Available:           m.Available,
		StopCount:           m.StopCount,
		TotalDistanceMeters: m.TotalDistanceMeters,
		DriveSeconds:        m.DriveSeconds,
		DwellSeconds:        m.DwellSeconds,
		FormattedDuration:   m.FormattedDuration,
		CompletionAt:        m.CompletionAt,
		Legs:                legs,
	}
}

func toDTOCoords(c *domain.Coordinates) *dto.Coordinates {
	if c == nil {
		return nil
	}
	return &dto.Coordinates{Lat: c.Lat, Lon: c.Lon}
}

func fromDTOCoords(c *dto.Coordinates) *domain.Coordinates {
	if c == nil {
		return nil
	}
	return &domain.Coordinates{Lat: c.Lat, Lon: c.Lon}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
