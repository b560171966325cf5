package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"stop-sequencing-service/internal/app"
	"stop-sequencing-service/internal/config"
	"stop-sequencing-service/internal/domain"
	"stop-sequencing-service/internal/platform/obs"
	"stop-sequencing-service/internal/services"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	verbose bool
	timeout time.Duration

	// Seed flags
	seedFile string

	// Optimize flags
	startLat, startLon float64
	endLat, endLon     float64

	cfg    config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "dbtool",
	Short: "Operator tool for the stop-sequencing database",
	Long: `dbtool manages the route database and runs the engine offline.

It reads the same configuration as the server (.env, CONFIG_FILE and
environment). DATABASE_URL selects Postgres; otherwise DB_PATH (SQLite).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}

		level := cfg.LogLevel
		if verbose {
			level = "debug"
		}
		logger, err = obs.NewLogger(level, "console")
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		zap.ReplaceGlobals(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// migrateCmd creates the schema
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create tables and indexes if they do not exist",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(ctx context.Context, st *app.Store) error {
			if err := st.Migrate(ctx); err != nil {
				return err
			}
			logger.Info("schema ready")
			return nil
		})
	},
}

// seedCmd loads routes and stops from JSON
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load demo routes and stops from a JSON file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := seedFile
		if path == "" {
			path = cfg.SeedPath
		}
		return withStore(cmd.Context(), func(ctx context.Context, st *app.Store) error {
			if err := st.Migrate(ctx); err != nil {
				return err
			}
			if err := st.Seed(ctx, path); err != nil {
				return err
			}
			logger.Info("seeding complete", zap.String("file", path))
			return nil
		})
	},
}

// optimizeCmd runs one optimization and commits the result
var optimizeCmd = &cobra.Command{
	Use:   "optimize [route-id]",
	Short: "Optimize a route's stop order from a start position",
	Long: `Geocodes missing stops, sequences the route and commits the new order.

Example:
  dbtool optimize r1 --lat 40.7128 --lon -74.0060`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		start := &domain.Coordinates{Lat: startLat, Lon: startLon}
		var end *domain.Coordinates
		if cmd.Flags().Changed("end-lat") || cmd.Flags().Changed("end-lon") {
			end = &domain.Coordinates{Lat: endLat, Lon: endLon}
		}

		return withService(cmd.Context(), func(ctx context.Context, svc *services.RouteService) error {
			res, err := svc.OptimizeRoute(ctx, services.OptimizeRouteRequest{
				RouteID: args[0],
				Start:   start,
				End:     end,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		})
	},
}

// shuffleCmd randomizes a route's order
var shuffleCmd = &cobra.Command{
	Use:   "shuffle [route-id]",
	Short: "Assign a random stop order to a route",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd.Context(), func(ctx context.Context, svc *services.RouteService) error {
			res, err := svc.ShuffleRoute(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		})
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "Operation timeout")

	seedCmd.Flags().StringVar(&seedFile, "file", "", "Seed JSON file (default: SEED_PATH)")

	optimizeCmd.Flags().Float64Var(&startLat, "lat", 0, "Start latitude (required)")
	optimizeCmd.Flags().Float64Var(&startLon, "lon", 0, "Start longitude (required)")
	optimizeCmd.Flags().Float64Var(&endLat, "end-lat", 0, "End latitude (default: route destination, else start)")
	optimizeCmd.Flags().Float64Var(&endLon, "end-lon", 0, "End longitude")
	optimizeCmd.MarkFlagRequired("lat")
	optimizeCmd.MarkFlagRequired("lon")
	optimizeCmd.MarkFlagsRequiredTogether("end-lat", "end-lon")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(optimizeCmd)
	rootCmd.AddCommand(shuffleCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func withStore(parent context.Context, fn func(context.Context, *app.Store) error) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	st, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	return fn(ctx, st)
}

func withService(parent context.Context, fn func(context.Context, *services.RouteService) error) error {
	return withStore(parent, func(ctx context.Context, st *app.Store) error {
		svc, err := app.NewRouteService(cfg, st, logger)
		if err != nil {
			return err
		}
		return fn(ctx, svc)
	})
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
