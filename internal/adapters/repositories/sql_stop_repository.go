package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"stop-sequencing-service/internal/domain"
	"stop-sequencing-service/internal/platform/db"
	"stop-sequencing-service/internal/platform/obs"
)

// SQL-backed implementation of the StopRepository port for SQLite and
// Postgres.
type SQLStopRepository struct {
	DB      *sql.DB
	Dialect db.Dialect
}

func NewSQLStopRepository(conn *sql.DB, dialect db.Dialect) *SQLStopRepository {
	return &SQLStopRepository{DB: conn, Dialect: dialect}
}

func (s *SQLStopRepository) q(query string) string { return db.Rebind(s.Dialect, query) }

// Return the route, or domain.ErrNotFound.
func (s *SQLStopRepository) GetRoute(ctx context.Context, routeID string) (_ *domain.Route, err error) {
	defer obs.Time(ctx, "repo.GetRoute")(&err)

	if s.DB == nil {
		return nil, errors.New("stop repository: DB is nil")
	}

	var r domain.Route
	var endLat, endLon sql.NullFloat64

	row := s.DB.QueryRowContext(ctx, s.q(`
	SELECT route_id, worker_id, end_lat, end_lon, version
	FROM routes
	WHERE route_id = ?;
	`), routeID)
	if err := row.Scan(&r.RouteID, &r.WorkerID, &endLat, &endLon, &r.Version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get route %q: %w", routeID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get route %q: %w", routeID, err)
	}

	if endLat.Valid && endLon.Valid {
		r.Destination = &domain.Coordinates{Lat: endLat.Float64, Lon: endLon.Float64}
	}

	return &r, nil
}

// Return all stops of a route ordered by position, then stop id.
func (s *SQLStopRepository) ListStops(ctx context.Context, routeID string) (_ []domain.Stop, err error) {
	defer obs.Time(ctx, "repo.ListStops")(&err)

	if s.DB == nil {
		return nil, errors.New("stop repository: DB is nil")
	}

	rows, err := s.DB.QueryContext(ctx, s.q(`
	SELECT stop_id, route_id, address, lat, lon, position
	FROM stops
	WHERE route_id = ?
	ORDER BY position, stop_id;
	`), routeID)
	if err != nil {
		return nil, fmt.Errorf("list stops: query stops table: %w", err)
	}
	defer rows.Close()

	stops := make([]domain.Stop, 0, 64)
	for rows.Next() {
		var st domain.Stop
		var lat, lon sql.NullFloat64
		if err := rows.Scan(&st.StopID, &st.RouteID, &st.Address, &lat, &lon, &st.Position); err != nil {
			return nil, fmt.Errorf("list stops: scan row: %w", err)
		}
		if lat.Valid && lon.Valid {
			st.Location = &domain.Coordinates{Lat: lat.Float64, Lon: lon.Float64}
		}
		stops = append(stops, st)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list stops: row iteration: %w", err)
	}

	return stops, nil
}

// Persist geocoded coordinates for a stop.
func (s *SQLStopRepository) UpdateCoordinates(ctx context.Context, stopID string, c domain.Coordinates) (err error) {
	defer obs.Time(ctx, "repo.UpdateCoordinates")(&err)

	if s.DB == nil {
		return errors.New("stop repository: DB is nil")
	}
	if !c.Valid() {
		return fmt.Errorf("update coordinates for %q: invalid coordinates %s", stopID, c.Key())
	}

	res, err := s.DB.ExecContext(ctx, s.q(`
	UPDATE stops SET lat = ?, lon = ? WHERE stop_id = ?;
	`), c.Lat, c.Lon, stopID)
	if err != nil {
		return fmt.Errorf("update coordinates for %q: %w", stopID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update coordinates for %q: rows affected: %w", stopID, err)
	}
	if n == 0 {
		return fmt.Errorf("update coordinates for %q: %w", stopID, domain.ErrNotFound)
	}

	return nil
}

// ApplyPositions writes positions 1..n in orderedIDs order and bumps the
// route version, all in one transaction. It fails with
// domain.ErrVersionConflict when the route changed since version was read.
func (s *SQLStopRepository) ApplyPositions(
	ctx context.Context,
	routeID string,
	version int,
	orderedIDs []string,
) (_ int, err error) {
	defer obs.Time(ctx, "repo.ApplyPositions")(&err)

	if s.DB == nil {
		return 0, errors.New("stop repository: DB is nil")
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("apply positions: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, s.q(`
	UPDATE routes SET version = version + 1
	WHERE route_id = ? AND version = ?;
	`), routeID, version)
	if err != nil {
		return 0, fmt.Errorf("apply positions: bump version: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("apply positions: rows affected: %w", err)
	}
	if n == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, s.q(`SELECT 1 FROM routes WHERE route_id = ?;`), routeID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("apply positions %q: %w", routeID, domain.ErrNotFound)
		}
		if err != nil {
			return 0, fmt.Errorf("apply positions: check route: %w", err)
		}
		return 0, fmt.Errorf("apply positions %q at version %d: %w", routeID, version, domain.ErrVersionConflict)
	}

	current, err := stopIDsTx(ctx, tx, s.q(`SELECT stop_id FROM stops WHERE route_id = ?;`), routeID)
	if err != nil {
		return 0, fmt.Errorf("apply positions: %w", err)
	}
	if err := sameStopSet(current, orderedIDs); err != nil {
		return 0, fmt.Errorf("apply positions %q: %w", routeID, err)
	}

	stmt, err := tx.PrepareContext(ctx, s.q(`
	UPDATE stops SET position = ? WHERE stop_id = ? AND route_id = ?;
	`))
	if err != nil {
		return 0, fmt.Errorf("apply positions: prepare: %w", err)
	}
	defer stmt.Close()

	for i, id := range orderedIDs {
		if _, err := stmt.ExecContext(ctx, i+1, id, routeID); err != nil {
			return 0, fmt.Errorf("apply positions: stop_id=%q: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("apply positions: commit tx: %w", err)
	}

	return version + 1, nil
}

func stopIDsTx(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]string, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query stop ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stop id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// sameStopSet checks that ordered names every stored stop exactly once.
func sameStopSet(stored, ordered []string) error {
	if len(stored) != len(ordered) {
		return fmt.Errorf("got %d stop ids, route has %d", len(ordered), len(stored))
	}
	want := make(map[string]bool, len(stored))
	for _, id := range stored {
		want[id] = false
	}
	for _, id := range ordered {
		used, ok := want[id]
		if !ok {
			return fmt.Errorf("stop %q is not on the route", id)
		}
		if used {
			return fmt.Errorf("stop %q listed twice", id)
		}
		want[id] = true
	}
	return nil
}
