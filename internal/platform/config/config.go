package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	Port        string `env:"PORT" default:"8080"`
	DatabaseURL string `env:"DATABASE_URL" default:"file:data/neighborhoods.db"`
	RedisURL    string `env:"REDIS_URL"`
	LogLevel    string `env:"LOG_LEVEL" default:"info"`
	LogFormat   string `env:"LOG_FORMAT" default:"text"`
	SourcesFile string `env:"SOURCES_FILE"`

	CacheExpiry           time.Duration `env:"CACHE_EXPIRY" default:"720h"`            // 30 days
	CacheRefreshThreshold time.Duration `env:"CACHE_REFRESH_THRESHOLD" default:"600h"` // 25 days

	BackgroundRefresh bool          `env:"BACKGROUND_REFRESH" default:"true"`
	RefreshWorkers    int           `env:"REFRESH_WORKERS" default:"1"`
	RefreshQueueSize  int           `env:"REFRESH_QUEUE_SIZE" default:"256"`
	RefreshDebounce   time.Duration `env:"REFRESH_DEBOUNCE" default:"10m"`
	RefreshLease      time.Duration `env:"REFRESH_LEASE" default:"15m"`
	CrawlTimeout      time.Duration `env:"CRAWL_TIMEOUT" default:"2m"`
	RefreshSkipAge    time.Duration `env:"REFRESH_SKIP_AGE" default:"336h"` // 14 days
	RefreshSchedule   string        `env:"REFRESH_SCHEDULE" default:"@every 1h"`
	RefreshBatchSize  int           `env:"REFRESH_BATCH_SIZE" default:"5"`

	RouterStrategy string `env:"ROUTER_STRATEGY" default:"success_rate"`

	APIRateLimit float64 `env:"API_RATE_LIMIT" default:"5"`
	APIRateBurst int     `env:"API_RATE_BURST" default:"20"`

	ReputationSnapshotMaxAge time.Duration `env:"REPUTATION_SNAPSHOT_MAX_AGE" default:"168h"` // 7 days
}

// UsesPostgres reports whether DATABASE_URL points at PostgreSQL rather than SQLite.
func (c *Config) UsesPostgres() bool {
	return strings.HasPrefix(c.DatabaseURL, "postgres://") || strings.HasPrefix(c.DatabaseURL, "postgresql://")
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a valid port number, got %q", cfg.Port)
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error, got %q", cfg.LogLevel)
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}

	if cfg.CacheExpiry <= 0 {
		return errors.New("CACHE_EXPIRY must be positive")
	}
	if cfg.CacheRefreshThreshold <= 0 || cfg.CacheRefreshThreshold > cfg.CacheExpiry {
		return errors.New("CACHE_REFRESH_THRESHOLD must be positive and not exceed CACHE_EXPIRY")
	}

	positive := []struct {
		name  string
		value int
	}{
		{"REFRESH_WORKERS", cfg.RefreshWorkers},
		{"REFRESH_QUEUE_SIZE", cfg.RefreshQueueSize},
		{"REFRESH_BATCH_SIZE", cfg.RefreshBatchSize},
	}
	for _, p := range positive {
		if p.value < 1 {
			return fmt.Errorf("%s must be at least 1", p.name)
		}
	}
	if cfg.RefreshLease <= 0 || cfg.CrawlTimeout <= 0 {
		return errors.New("REFRESH_LEASE and CRAWL_TIMEOUT must be positive")
	}
	if cfg.CrawlTimeout >= cfg.RefreshLease {
		return errors.New("CRAWL_TIMEOUT must be shorter than REFRESH_LEASE")
	}
	if cfg.RefreshSchedule == "" {
		return errors.New("REFRESH_SCHEDULE is required")
	}

	switch cfg.RouterStrategy {
	case "success_rate", "primary", "random":
	default:
		return fmt.Errorf("ROUTER_STRATEGY must be one of success_rate, primary, random, got %q", cfg.RouterStrategy)
	}

	if cfg.APIRateLimit < 0 {
		return errors.New("API_RATE_LIMIT must not be negative")
	}
	if cfg.APIRateLimit > 0 && cfg.APIRateBurst < 1 {
		return errors.New("API_RATE_BURST must be at least 1 when API_RATE_LIMIT is set")
	}

	if cfg.AppEnv == "production" && cfg.UsesPostgres() {
		if err := requireSecureSSL(cfg.DatabaseURL); err != nil {
			return err
		}
	}
	return nil
}

func requireSecureSSL(databaseURL string) error {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return fmt.Errorf("DATABASE_URL must be a valid URL: %w", err)
	}
	mode := strings.ToLower(u.Query().Get("sslmode"))
	if mode == "disable" || mode == "allow" {
		return fmt.Errorf("DATABASE_URL uses sslmode=%s which is not allowed in production", mode)
	}
	return nil
}
