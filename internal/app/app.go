// Package app assembles concrete adapters behind the ports. It is shared by
// the HTTP server and the operator CLI.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"stop-sequencing-service/internal/adapters/cache"
	"stop-sequencing-service/internal/adapters/events"
	"stop-sequencing-service/internal/adapters/ors"
	"stop-sequencing-service/internal/adapters/repositories"
	"stop-sequencing-service/internal/config"
	"stop-sequencing-service/internal/platform/db"
	"stop-sequencing-service/internal/platform/kv"
	"stop-sequencing-service/internal/ports"
	"stop-sequencing-service/internal/services"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Store is the opened database plus optional Redis.
type Store struct {
	DB      *sql.DB
	Dialect db.Dialect
	Redis   *redis.Client
}

// OpenStore connects to Postgres when DATABASE_URL is set, otherwise to the
// SQLite file at DB_PATH. Redis is connected when REDIS_URL is set.
func OpenStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Store, error) {
	st := &Store{}

	if strings.TrimSpace(cfg.DBURL) != "" {
		conn, err := db.Open(cfg.DBURL)
		if err != nil {
			return nil, err
		}
		st.DB, st.Dialect = conn, db.Postgres
	} else {
		conn, err := db.OpenSQLite(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		st.DB, st.Dialect = conn, db.SQLite
	}
	logger.Info("database ready", zap.String("dialect", st.Dialect.String()))

	rdb, err := kv.OpenRedis(ctx, cfg.RedisURL)
	if err != nil {
		st.DB.Close()
		return nil, err
	}
	st.Redis = rdb
	if rdb != nil {
		logger.Info("redis ready")
	}

	return st, nil
}

// Migrate creates the schema.
func (s *Store) Migrate(ctx context.Context) error {
	if err := repositories.InitSchema(ctx, s.DB); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Seed loads demo routes from a JSON file.
func (s *Store) Seed(ctx context.Context, path string) error {
	if err := repositories.SeedFromJSON(ctx, s.DB, s.Dialect, path); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	var errs []error
	if s.Redis != nil {
		errs = append(errs, s.Redis.Close())
	}
	if s.DB != nil {
		errs = append(errs, s.DB.Close())
	}
	return errors.Join(errs...)
}

// NewRouteService wires the engine, the ORS client and the caches.
func NewRouteService(cfg config.Config, st *Store, logger *zap.Logger) (*services.RouteService, error) {
	if strings.TrimSpace(cfg.ORS.APIKey) == "" {
		return nil, errors.New("ORS_API_KEY is required")
	}

	anchor, err := services.ParseAnchorStrategy(cfg.Engine.AnchorStrategy)
	if err != nil {
		return nil, err
	}

	client, err := ors.NewClient(cfg.ORS.APIKey,
		ors.WithBaseURL(cfg.ORS.BaseURL),
		ors.WithProfile(cfg.ORS.Profile),
		ors.WithCountry(cfg.Geocoder.Country),
		ors.WithLimiter(ors.NewLimiter(cfg.ORS.RatePerSec)),
		ors.WithLogger(logger.Named("ors")),
	)
	if err != nil {
		return nil, err
	}

	// Redis, when present, shares geocodes across instances; SQL otherwise.
	var geocodes ports.GeocodeCache = cache.NewSQLGeocodeCache(st.DB, st.Dialect)
	var publisher ports.RouteEventPublisher = events.NewLogPublisher(logger.Named("events"))
	if st.Redis != nil {
		geocodes = cache.NewRedisGeocodeCache(st.Redis, cfg.Geocoder.CacheTTL)
		publisher = events.NewRedisPublisher(st.Redis)
	}

	optimizer := services.NewHybridOptimizer(client, cfg.Engine.BatchSize, anchor, logger.Named("optimizer"))
	estimator := services.NewMetricsEstimator(
		client,
		cache.NewSQLLegCache(st.DB, st.Dialect),
		cfg.Engine.DirectionsMaxWaypoints,
		logger.Named("metrics"),
	)

	return services.NewRouteService(
		repositories.NewSQLStopRepository(st.DB, st.Dialect),
		optimizer,
		estimator,
		client,
		geocodes,
		publisher,
		cfg.Engine.DwellMinutes,
		cfg.Geocoder.Concurrency,
		logger.Named("routes"),
	), nil
}
