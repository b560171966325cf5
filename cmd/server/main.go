package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"stop-sequencing-service/internal/api"
	"stop-sequencing-service/internal/app"
	"stop-sequencing-service/internal/config"
	"stop-sequencing-service/internal/platform/metrics"
	"stop-sequencing-service/internal/platform/obs"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// main is the application composition root.
// It wires concrete adapters (SQL store, ORS, Redis) behind ports and starts the HTTP server.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := obs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer store.Close()

	// Initialize schema and seed demo data on startup for local runs.
	if err := store.Migrate(ctx); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}
	if cfg.SeedPath != "" {
		if err := store.Seed(ctx, cfg.SeedPath); err != nil {
			logger.Fatal("seed", zap.Error(err))
		}
	}

	svc, err := app.NewRouteService(cfg, store, logger)
	if err != nil {
		logger.Fatal("build route service", zap.Error(err))
	}

	metrics.Register()
	router := api.NewRouter(svc, logger.Named("http"))

	// Timeouts are tuned for cold-cache optimization (geocoding plus one
	// remote call per batch).
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown", zap.Error(err))
		}
	}()

	logger.Info("server listening", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("listen", zap.Error(err))
	}
	logger.Info("server stopped")
}
