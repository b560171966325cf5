package ors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"stop-sequencing-service/internal/domain"
	"stop-sequencing-service/internal/platform/obs"
)

type directionsRequest struct {
	Coordinates  [][]float64 `json:"coordinates"`
	Instructions bool        `json:"instructions"`
}

type directionsResponse struct {
	Routes []struct {
		Summary struct {
			Distance float64 `json:"distance"`
			Duration float64 `json:"duration"`
		} `json:"summary"`
		Segments []struct {
			Distance float64 `json:"distance"`
			Duration float64 `json:"duration"`
		} `json:"segments"`
	} `json:"routes"`
}

// Directions measures the driven path through points in order and returns
// one leg per consecutive pair.
func (c *Client) Directions(ctx context.Context, points []domain.Coordinates) (_ []domain.Leg, err error) {
	defer obs.Time(ctx, "ors.Directions")(&err)

	if len(points) < 2 {
		return nil, errors.New("directions need at least two points")
	}

	coords := make([][]float64, 0, len(points))
	for _, p := range points {
		coords = append(coords, p.CoordsToList())
	}

	payload, err := json.Marshal(directionsRequest{Coordinates: coords})
	if err != nil {
		return nil, fmt.Errorf("marshal directions request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v2/directions/%s", c.baseURL, c.profile)
	resp, err := c.doWithRetry(ctx, "directions", func() (*http.Request, error) {
		return c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	})
	if err != nil {
		return nil, fmt.Errorf("directions request failed: %w", err)
	}
	defer resp.Body.Close()

	var dr directionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return nil, fmt.Errorf("decode directions response: %w", err)
	}

	if len(dr.Routes) == 0 {
		return nil, errors.New("directions returned no route")
	}

	segments := dr.Routes[0].Segments
	if len(segments) != len(points)-1 {
		return nil, fmt.Errorf(
			"directions returned %d segments for %d points",
			len(segments), len(points),
		)
	}

	// ORS returns float metrics; round to nearest integer for domain consistency.
	legs := make([]domain.Leg, 0, len(segments))
	for _, s := range segments {
		legs = append(legs, domain.Leg{
			DistanceMeters:  int(math.Round(s.Distance)),
			DurationSeconds: int(math.Round(s.Duration)),
		})
	}

	return legs, nil
}
