package ors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"stop-sequencing-service/internal/domain"
	"stop-sequencing-service/internal/ports"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewClient("test-key",
		WithBaseURL(srv.URL),
		WithRetryBackoff(time.Millisecond),
	)
	require.NoError(t, err)
	return c
}

func stop(id string, lat, lon float64) domain.Stop {
	return domain.Stop{StopID: id, Location: &domain.Coordinates{Lat: lat, Lon: lon}}
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient("")
	require.Error(t, err)
}

func TestSequence(t *testing.T) {
	var got optimizationRequest
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/optimization", r.URL.Path)
		require.Equal(t, "test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"code": 0,
			"routes": [{"vehicle": 1, "steps": [
				{"type": "start"},
				{"type": "job", "job": 3},
				{"type": "job", "id": 1},
				{"type": "job", "job": 2},
				{"type": "end"}
			]}],
			"unassigned": []
		}`))
	}))

	ids, err := c.Sequence(context.Background(), ports.SequenceRequest{
		Start: domain.Coordinates{Lat: 40, Lon: -75},
		End:   domain.Coordinates{Lat: 41, Lon: -74},
		Stops: []domain.Stop{stop("a", 40.1, -75), stop("b", 40.2, -75), stop("c", 40.3, -75)},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"c", "a", "b"}, ids)

	require.Len(t, got.Jobs, 3)
	require.Equal(t, 1, got.Jobs[0].ID)
	require.Equal(t, []float64{-75, 40.1}, got.Jobs[0].Location)
	require.Len(t, got.Vehicles, 1)
	require.Equal(t, DefaultProfile, got.Vehicles[0].Profile)
	require.Equal(t, []float64{-75, 40}, got.Vehicles[0].Start)
	require.Equal(t, []float64{-74, 41}, got.Vehicles[0].End)
}

func TestSequenceUnassignedIsError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":0,"routes":[{"steps":[{"type":"job","job":1}]}],"unassigned":[{"id":2}]}`))
	}))

	_, err := c.Sequence(context.Background(), ports.SequenceRequest{
		Stops: []domain.Stop{stop("a", 40.1, -75), stop("b", 40.2, -75)},
	})
	require.Error(t, err)
}

func TestSequenceUnknownJobIsError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":0,"routes":[{"steps":[{"type":"job","job":9}]}]}`))
	}))

	_, err := c.Sequence(context.Background(), ports.SequenceRequest{
		Stops: []domain.Stop{stop("a", 40.1, -75)},
	})
	require.Error(t, err)
}

func TestRetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"features":[{"geometry":{"coordinates":[-75.1,40.2]}}]}`))
	}))

	got, err := c.Geocode(context.Background(), "1 Main St")
	require.NoError(t, err)
	require.Equal(t, domain.Coordinates{Lat: 40.2, Lon: -75.1}, got)
	require.EqualValues(t, 3, calls.Load())
}

func TestDoesNotRetryClientError(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad key", http.StatusForbidden)
	}))

	_, err := c.Geocode(context.Background(), "1 Main St")
	require.Error(t, err)

	var he *HTTPStatusError
	require.True(t, errors.As(err, &he))
	require.Equal(t, http.StatusForbidden, he.Code)
	require.EqualValues(t, 1, calls.Load())
}

func TestGiveUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))

	_, err := c.Directions(context.Background(), []domain.Coordinates{{Lat: 40, Lon: -75}, {Lat: 41, Lon: -75}})
	require.Error(t, err)
	require.EqualValues(t, 4, calls.Load())
}

func TestGeocode(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/geocode/search", r.URL.Path)
		require.Equal(t, "12 Elm St", r.URL.Query().Get("text"))
		require.Equal(t, "US", r.URL.Query().Get("boundary.country"))
		require.Equal(t, "1", r.URL.Query().Get("size"))
		_, _ = w.Write([]byte(`{"features":[{"geometry":{"coordinates":[-73.5,40.25]}}]}`))
	}))

	got, err := c.Geocode(context.Background(), "  12   Elm St ")
	require.NoError(t, err)
	require.Equal(t, domain.Coordinates{Lat: 40.25, Lon: -73.5}, got)
}

func TestGeocodeNoMatch(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"features":[]}`))
	}))

	_, err := c.Geocode(context.Background(), "nowhere")
	require.ErrorIs(t, err, ErrNoMatch)
}

func TestDirections(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/directions/"+DefaultProfile, r.URL.Path)

		var req directionsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Coordinates, 3)

		_, _ = w.Write([]byte(`{"routes":[{"summary":{"distance":3000.4,"duration":400.6},
			"segments":[{"distance":1000.4,"duration":100.5},{"distance":2000,"duration":300.1}]}]}`))
	}))

	legs, err := c.Directions(context.Background(), []domain.Coordinates{
		{Lat: 40, Lon: -75}, {Lat: 40.1, Lon: -75}, {Lat: 40.2, Lon: -75},
	})
	require.NoError(t, err)
	require.Equal(t, []domain.Leg{
		{DistanceMeters: 1000, DurationSeconds: 101},
		{DistanceMeters: 2000, DurationSeconds: 300},
	}, legs)
}

func TestDirectionsSegmentMismatch(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"routes":[{"segments":[{"distance":1,"duration":1}]}]}`))
	}))

	_, err := c.Directions(context.Background(), []domain.Coordinates{
		{Lat: 40, Lon: -75}, {Lat: 40.1, Lon: -75}, {Lat: 40.2, Lon: -75},
	})
	require.Error(t, err)
}

func TestContextCancelStopsRetry(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	c.retryBackoff = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Geocode(ctx, "1 Main St")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
