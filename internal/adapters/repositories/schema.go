package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"stop-sequencing-service/internal/domain"
	"stop-sequencing-service/internal/platform/db"
	"strings"
)

// Initialize the database schema. The statements are valid for both
// SQLite and Postgres.
func InitSchema(ctx context.Context, conn *sql.DB) error {
	if conn == nil {
		return errors.New("init schema: DB is nil")
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("init schema: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	createRoutesQuery := `
	CREATE TABLE IF NOT EXISTS routes (
		route_id TEXT PRIMARY KEY,
		worker_id TEXT NOT NULL DEFAULT '',
		end_lat DOUBLE PRECISION,
		end_lon DOUBLE PRECISION,
		version INTEGER NOT NULL DEFAULT 0
	);
	`

	createStopsQuery := `
	CREATE TABLE IF NOT EXISTS stops (
		stop_id TEXT PRIMARY KEY,
		route_id TEXT NOT NULL REFERENCES routes(route_id) ON DELETE CASCADE,
		address TEXT NOT NULL DEFAULT '',
		lat DOUBLE PRECISION,
		lon DOUBLE PRECISION,
		position INTEGER NOT NULL DEFAULT 0
	);
	`

	createStopsIndexQuery := `
	CREATE INDEX IF NOT EXISTS idx_stops_route_position
	ON stops(route_id, position);
	`

	createLegCacheQuery := `
	CREATE TABLE IF NOT EXISTS leg_cache (
		origin TEXT NOT NULL,
		destination TEXT NOT NULL,
		distance_meters INTEGER NOT NULL,
		duration_seconds INTEGER NOT NULL,
		PRIMARY KEY (origin, destination)
	);
	`

	createGeocodeCacheQuery := `
	CREATE TABLE IF NOT EXISTS geocode_cache (
		address TEXT PRIMARY KEY,
		lon DOUBLE PRECISION NOT NULL,
		lat DOUBLE PRECISION NOT NULL
	);
	`

	statements := []string{
		createRoutesQuery,
		createStopsQuery,
		createStopsIndexQuery,
		createLegCacheQuery,
		createGeocodeCacheQuery,
	}

	for i, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: exec statement #%d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("init schema: commit tx: %w", err)
	}

	return nil
}

type CoordinatesSeed struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type StopSeed struct {
	StopID   string           `json:"stop_id"`
	Address  string           `json:"address"`
	Location *CoordinatesSeed `json:"location,omitempty"`
}

type RouteSeed struct {
	RouteID     string           `json:"route_id"`
	WorkerID    string           `json:"worker_id"`
	Destination *CoordinatesSeed `json:"destination,omitempty"`
	Stops       []StopSeed       `json:"stops"`
}

// Populate the database with routes and stops from a JSON file.
// Only missing routes and stops are inserted: existing rows keep their
// committed order, coordinates and version. New stops get positions that
// follow their order in the file.
func SeedFromJSON(ctx context.Context, conn *sql.DB, dialect db.Dialect, jsonPath string) error {
	bytes, err := os.ReadFile(jsonPath)
	if err != nil {
		return fmt.Errorf("seed routes: read %q: %w", jsonPath, err)
	}

	var data []RouteSeed
	if err := json.Unmarshal(bytes, &data); err != nil {
		return fmt.Errorf("seed routes: parse json: %w", err)
	}

	seenStops := make(map[string]struct{})
	for i, r := range data {
		if strings.TrimSpace(r.RouteID) == "" {
			return fmt.Errorf("seed routes: route at index %d: route_id cannot be empty", i+1)
		}
		if r.Destination != nil && !seedCoords(r.Destination).Valid() {
			return fmt.Errorf("seed routes: route %q: invalid destination", r.RouteID)
		}
		for j, s := range r.Stops {
			if strings.TrimSpace(s.StopID) == "" {
				return fmt.Errorf("seed routes: route %q stop at index %d: stop_id cannot be empty", r.RouteID, j+1)
			}
			if _, dup := seenStops[s.StopID]; dup {
				return fmt.Errorf("seed routes: duplicate stop_id %q", s.StopID)
			}
			seenStops[s.StopID] = struct{}{}
			if s.Location == nil && strings.TrimSpace(s.Address) == "" {
				return fmt.Errorf("seed routes: stop %q needs an address or a location", s.StopID)
			}
			if s.Location != nil && !seedCoords(s.Location).Valid() {
				return fmt.Errorf("seed routes: stop %q: invalid location", s.StopID)
			}
		}
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("seed routes: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	routeStmt, err := tx.PrepareContext(ctx, db.Rebind(dialect, `
	INSERT INTO routes (route_id, worker_id, end_lat, end_lon, version)
	VALUES (?, ?, ?, ?, 0)
	ON CONFLICT (route_id) DO NOTHING;
	`))
	if err != nil {
		return fmt.Errorf("seed routes: prepare route insert: %w", err)
	}
	defer routeStmt.Close()

	stopStmt, err := tx.PrepareContext(ctx, db.Rebind(dialect, `
	INSERT INTO stops (stop_id, route_id, address, lat, lon, position)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT (stop_id) DO NOTHING;
	`))
	if err != nil {
		return fmt.Errorf("seed routes: prepare stop insert: %w", err)
	}
	defer stopStmt.Close()

	for _, r := range data {
		endLat, endLon := nullCoords(r.Destination)
		if _, err := routeStmt.ExecContext(ctx, r.RouteID, r.WorkerID, endLat, endLon); err != nil {
			return fmt.Errorf("seed routes: insert route_id=%q: %w", r.RouteID, err)
		}

		for i, s := range r.Stops {
			lat, lon := nullCoords(s.Location)
			addr := strings.TrimSpace(s.Address)
			if _, err := stopStmt.ExecContext(ctx, s.StopID, r.RouteID, addr, lat, lon, i+1); err != nil {
				return fmt.Errorf("seed routes: insert stop_id=%q: %w", s.StopID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("seed routes: commit tx: %w", err)
	}

	return nil
}

func seedCoords(c *CoordinatesSeed) domain.Coordinates {
	return domain.Coordinates{Lat: c.Lat, Lon: c.Lon}
}

func nullCoords(c *CoordinatesSeed) (sql.NullFloat64, sql.NullFloat64) {
	if c == nil {
		return sql.NullFloat64{}, sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: c.Lat, Valid: true}, sql.NullFloat64{Float64: c.Lon, Valid: true}
}
