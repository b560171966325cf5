package ors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"stop-sequencing-service/internal/platform/obs"
	"stop-sequencing-service/internal/ports"
)

type optimizationJob struct {
	ID       int       `json:"id"`
	Location []float64 `json:"location"`
}

type optimizationVehicle struct {
	ID      int       `json:"id"`
	Profile string    `json:"profile"`
	Start   []float64 `json:"start"`
	End     []float64 `json:"end"`
}

type optimizationRequest struct {
	Jobs     []optimizationJob     `json:"jobs"`
	Vehicles []optimizationVehicle `json:"vehicles"`
}

type optimizationStep struct {
	Type string `json:"type"`
	// Older responses name the job "job", newer ones "id".
	Job *int `json:"job"`
	ID  *int `json:"id"`
}

type optimizationResponse struct {
	Code   int `json:"code"`
	Routes []struct {
		Vehicle int                `json:"vehicle"`
		Steps   []optimizationStep `json:"steps"`
	} `json:"routes"`
	Unassigned []struct {
		ID int `json:"id"`
	} `json:"unassigned"`
}

// Sequence asks the optimization endpoint for the visiting order of one
// batch: a single vehicle from req.Start to req.End, one job per stop.
// Job ids are the 1-based positions of the stops in req.Stops.
func (c *Client) Sequence(ctx context.Context, req ports.SequenceRequest) (_ []string, err error) {
	defer obs.Time(ctx, "ors.Sequence")(&err)

	if len(req.Stops) == 0 {
		return []string{}, nil
	}

	jobs := make([]optimizationJob, 0, len(req.Stops))
	for i, s := range req.Stops {
		if !s.HasCoordinates() {
			return nil, fmt.Errorf("stop %q has no coordinates", s.StopID)
		}
		jobs = append(jobs, optimizationJob{ID: i + 1, Location: s.Location.CoordsToList()})
	}

	payload, err := json.Marshal(optimizationRequest{
		Jobs: jobs,
		Vehicles: []optimizationVehicle{{
			ID:      1,
			Profile: c.profile,
			Start:   req.Start.CoordsToList(),
			End:     req.End.CoordsToList(),
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal optimization request: %w", err)
	}

	endpoint := c.baseURL + "/optimization"
	resp, err := c.doWithRetry(ctx, "optimization", func() (*http.Request, error) {
		return c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	})
	if err != nil {
		return nil, fmt.Errorf("optimization request failed: %w", err)
	}
	defer resp.Body.Close()

	var out optimizationResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode optimization response: %w", err)
	}

	if out.Code != 0 {
		return nil, fmt.Errorf("optimization returned code %d", out.Code)
	}
	if len(out.Unassigned) > 0 {
		return nil, fmt.Errorf("optimization left %d jobs unassigned", len(out.Unassigned))
	}
	if len(out.Routes) == 0 {
		return nil, errors.New("optimization returned no route")
	}

	ids := make([]string, 0, len(req.Stops))
	for _, step := range out.Routes[0].Steps {
		if step.Type != "job" {
			continue
		}
		jobID := step.Job
		if jobID == nil {
			jobID = step.ID
		}
		if jobID == nil {
			return nil, errors.New("optimization returned a job step without id")
		}
		if *jobID < 1 || *jobID > len(req.Stops) {
			return nil, fmt.Errorf("optimization returned unknown job %d", *jobID)
		}
		ids = append(ids, req.Stops[*jobID-1].StopID)
	}

	return ids, nil
}
