package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the process configuration. Values come from an optional YAML
// file (CONFIG_FILE) and are overridden by environment variables.
type Config struct {
	Port     string `yaml:"port"`
	DBPath   string `yaml:"db_path"`
	DBURL    string `yaml:"database_url"`
	SeedPath string `yaml:"seed_path"`
	RedisURL string `yaml:"redis_url"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	ORS      ORSConfig      `yaml:"ors"`
	Engine   EngineConfig   `yaml:"engine"`
	Geocoder GeocoderConfig `yaml:"geocoder"`
}

type ORSConfig struct {
	APIKey     string  `yaml:"api_key"`
	BaseURL    string  `yaml:"base_url"`
	Profile    string  `yaml:"profile"`
	RatePerSec float64 `yaml:"rate_per_sec"`
}

type EngineConfig struct {
	BatchSize              int     `yaml:"batch_size"`
	DirectionsMaxWaypoints int     `yaml:"directions_max_waypoints"`
	DwellMinutes           float64 `yaml:"dwell_minutes"`
	AnchorStrategy         string  `yaml:"anchor_strategy"`
}

type GeocoderConfig struct {
	Country     string        `yaml:"country"`
	Concurrency int           `yaml:"concurrency"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Port:      "8080",
		DBPath:    "data/app.db",
		SeedPath:  "data/seeds/routes.json",
		LogLevel:  "info",
		LogFormat: "json",
		ORS: ORSConfig{
			BaseURL:    "https://api.openrouteservice.org",
			Profile:    "driving-car",
			RatePerSec: 1,
		},
		Engine: EngineConfig{
			BatchSize:              25,
			DirectionsMaxWaypoints: 50,
			DwellMinutes:           5,
			AnchorStrategy:         "next-first",
		},
		Geocoder: GeocoderConfig{
			Country:     "US",
			Concurrency: 4,
			CacheTTL:    30 * 24 * time.Hour,
		},
	}
}

// Get returns the environment value for key, or fallback when unset.
func Get(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Load reads .env (if present), the optional YAML file and the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("load config: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("load config: parse %q: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	return cfg, nil
}

func applyEnv(cfg *Config) error {
	cfg.Port = Get("PORT", cfg.Port)
	cfg.DBPath = Get("DB_PATH", cfg.DBPath)
	cfg.DBURL = Get("DATABASE_URL", cfg.DBURL)
	cfg.SeedPath = Get("SEED_PATH", cfg.SeedPath)
	cfg.RedisURL = Get("REDIS_URL", cfg.RedisURL)
	cfg.LogLevel = Get("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = Get("LOG_FORMAT", cfg.LogFormat)

	cfg.ORS.APIKey = Get("ORS_API_KEY", cfg.ORS.APIKey)
	cfg.ORS.BaseURL = Get("ORS_BASE_URL", cfg.ORS.BaseURL)
	cfg.ORS.Profile = Get("ORS_PROFILE", cfg.ORS.Profile)
	cfg.Geocoder.Country = Get("GEOCODE_COUNTRY", cfg.Geocoder.Country)
	cfg.Engine.AnchorStrategy = Get("ANCHOR_STRATEGY", cfg.Engine.AnchorStrategy)

	var errs []error
	setFloat := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	setFloat("ORS_RATE_PER_SEC", &cfg.ORS.RatePerSec)
	setFloat("DWELL_MINUTES", &cfg.Engine.DwellMinutes)
	setInt("BATCH_SIZE", &cfg.Engine.BatchSize)
	setInt("DIRECTIONS_MAX_WAYPOINTS", &cfg.Engine.DirectionsMaxWaypoints)
	setInt("GEOCODE_CONCURRENCY", &cfg.Geocoder.Concurrency)

	if v := os.Getenv("GEOCODE_CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("GEOCODE_CACHE_TTL: %w", err))
		} else {
			cfg.Geocoder.CacheTTL = d
		}
	}

	return errors.Join(errs...)
}

// Validate checks ranges that would otherwise fail deep inside the engine.
func (c Config) Validate() error {
	if c.Engine.BatchSize < 1 {
		return fmt.Errorf("batch size must be >= 1, got %d", c.Engine.BatchSize)
	}
	if c.Engine.DirectionsMaxWaypoints < 2 {
		return fmt.Errorf("directions max waypoints must be >= 2, got %d", c.Engine.DirectionsMaxWaypoints)
	}
	if c.Engine.DwellMinutes < 0 {
		return fmt.Errorf("dwell minutes must be >= 0, got %v", c.Engine.DwellMinutes)
	}
	if c.Geocoder.Concurrency < 1 {
		return fmt.Errorf("geocode concurrency must be >= 1, got %d", c.Geocoder.Concurrency)
	}
	switch c.Engine.AnchorStrategy {
	case "next-first", "next-centroid":
	default:
		return fmt.Errorf("unknown anchor strategy %q", c.Engine.AnchorStrategy)
	}
	return nil
}
