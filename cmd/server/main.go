package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/hoodpulse/internal/adapter/crawler"
	"github.com/pscheid92/hoodpulse/internal/adapter/httpserver"
	"github.com/pscheid92/hoodpulse/internal/adapter/metrics"
	"github.com/pscheid92/hoodpulse/internal/adapter/redis"
	"github.com/pscheid92/hoodpulse/internal/adapter/storage"
	"github.com/pscheid92/hoodpulse/internal/app"
	"github.com/pscheid92/hoodpulse/internal/domain"
	"github.com/pscheid92/hoodpulse/internal/platform/config"
	"github.com/pscheid92/hoodpulse/internal/platform/logging"
	"github.com/pscheid92/hoodpulse/internal/sentiment"
	goredis "github.com/redis/go-redis/v9"
)

type appMetrics struct {
	registry *prometheus.Registry
	cache    *metrics.CacheMetrics
	refresh  *metrics.RefreshMetrics
	router   *metrics.RouterMetrics
	http     *metrics.HTTPMetrics
	redis    *metrics.RedisMetrics
	db       *metrics.DBMetrics
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// slog is not configured yet
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupMetrics() appMetrics {
	reg := metrics.NewRegistry()
	return appMetrics{
		registry: reg,
		cache:    metrics.NewCacheMetrics(reg),
		refresh:  metrics.NewRefreshMetrics(reg),
		router:   metrics.NewRouterMetrics(reg),
		http:     metrics.NewHTTPMetrics(reg),
		redis:    metrics.NewRedisMetrics(reg),
		db:       metrics.NewDBMetrics(reg),
	}
}

func setupStore(cfg *config.Config, m *metrics.DBMetrics) domain.Store {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := storage.Open(ctx, cfg.DatabaseURL, m)
	if err != nil {
		slog.Error("Failed to open store", "error", err)
		os.Exit(1)
	}
	return store
}

// setupDebouncer uses Redis when configured so replicas share one debounce window.
func setupDebouncer(cfg *config.Config, clock clockwork.Clock, m *metrics.RedisMetrics) (domain.RefreshDebouncer, *goredis.Client) {
	if cfg.RedisURL == "" {
		slog.Info("REDIS_URL not set, using in-process refresh debouncer")
		return app.NewMemoryDebouncer(clock, cfg.RefreshDebounce), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := redis.NewClient(ctx, cfg.RedisURL, m)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return redis.NewRefreshDebouncer(client, cfg.RefreshDebounce), client
}

func loadSources(cfg *config.Config) *crawler.Config {
	sources, err := crawler.LoadConfig(cfg.SourcesFile)
	if err != nil {
		slog.Error("Failed to load sources", "file", cfg.SourcesFile, "error", err)
		os.Exit(1)
	}
	if len(sources.Sources) == 0 {
		slog.Warn("No crawl sources configured, refreshes will fail until SOURCES_FILE is set")
	}
	return sources
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.Init("hoodpulse", cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "postgres", cfg.UsesPostgres())

	m := setupMetrics()

	store := setupStore(cfg, m.db)
	defer func() { _ = store.Close() }()

	debouncer, redisClient := setupDebouncer(cfg, clock, m.redis)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	sources := loadSources(cfg)
	regions := app.NewRegionTable(sources.Regions)
	crawl := crawler.New(sources, crawler.Options{Regions: regions, Clock: clock, Metrics: m.router})

	strategy, err := app.NewStrategy(cfg.RouterStrategy, store, uint64(clock.Now().UnixNano()))
	if err != nil {
		slog.Error("Failed to create router strategy", "error", err)
		os.Exit(1)
	}
	router := app.NewRouter(regions, strategy, store, clock, m.router, app.WithAvailableSources(crawl.Sources()))

	refresher := app.NewRefresher(store, crawl, router, sentiment.NewAnalyzer(clock), clock, app.RefresherConfig{
		CacheExpiry:  cfg.CacheExpiry,
		Lease:        cfg.RefreshLease,
		CrawlTimeout: cfg.CrawlTimeout,
	}, m.refresh)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A nil *RefreshQueue must not reach the cache as a non-nil Enqueuer.
	var enqueuer app.Enqueuer
	var queue *app.RefreshQueue
	if cfg.BackgroundRefresh {
		queue = app.NewRefreshQueue(cfg.RefreshQueueSize, cfg.RefreshWorkers, refresher.RunJob, m.refresh)
		queue.Start(ctx)
		enqueuer = queue
	}

	policy := app.StalenessPolicy{
		CacheExpiry:      cfg.CacheExpiry,
		RefreshThreshold: cfg.CacheRefreshThreshold,
		RefreshLease:     cfg.RefreshLease,
	}
	cache := app.NewNeighborhoodCache(store, refresher, enqueuer, debouncer, policy, clock, m.cache)
	agent := app.NewRefreshAgent(store, refresher, clock, cfg.RefreshSkipAge, cfg.RefreshLease)
	reputation := app.NewReputationIndex(store, clock, cfg.ReputationSnapshotMaxAge)

	var scheduler *app.Scheduler
	if cfg.BackgroundRefresh {
		batchTimeout := time.Duration(cfg.RefreshBatchSize) * cfg.RefreshLease
		scheduler, err = app.NewScheduler(agent, cfg.RefreshSchedule, cfg.RefreshBatchSize, batchTimeout, m.refresh)
		if err != nil {
			slog.Error("Failed to create scheduler", "error", err)
			os.Exit(1)
		}
		scheduler.Start()
	}

	healthChecks := []httpserver.HealthCheck{{Name: "database", Check: store.Ping}}
	if redisClient != nil {
		healthChecks = append(healthChecks, httpserver.HealthCheck{
			Name:     "redis",
			Check:    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
			Optional: true,
		})
	}

	srv := httpserver.NewServer(httpserver.Services{
		Cache:      cache,
		Refresh:    agent,
		Reputation: reputation,
		Router:     router,
	}, httpserver.Options{
		Port:           cfg.Port,
		HealthChecks:   healthChecks,
		MetricsHandler: metrics.Handler(m.registry),
		HTTPMetrics:    m.http,
		RateLimit:      cfg.APIRateLimit,
		RateBurst:      cfg.APIRateBurst,
	})

	serverErr := make(chan error, 1)
	go func() { serverErr <- srv.Start() }()

	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received, cleaning up...")
	case err := <-serverErr:
		if err != nil {
			slog.Error("Server error", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown error", "error", err)
	}
	if scheduler != nil {
		scheduler.Stop(shutdownCtx)
	}
	if queue != nil {
		queue.Stop()
	}
	slog.Info("Shutdown complete")
}
