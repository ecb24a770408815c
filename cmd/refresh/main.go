package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/hoodpulse/internal/adapter/crawler"
	"github.com/pscheid92/hoodpulse/internal/adapter/storage"
	"github.com/pscheid92/hoodpulse/internal/app"
	"github.com/pscheid92/hoodpulse/internal/platform/config"
	"github.com/pscheid92/hoodpulse/internal/platform/logging"
	"github.com/pscheid92/hoodpulse/internal/sentiment"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var (
		databaseURL = flag.String("db", cfg.DatabaseURL, "Database URL (or set DATABASE_URL env)")
		sourcesFile = flag.String("sources", cfg.SourcesFile, "Crawl sources YAML (or set SOURCES_FILE env)")
		key         = flag.String("key", "", "Neighborhood key to refresh")
		city        = flag.String("city", "", "City name used in crawl queries")
		force       = flag.Bool("force", false, "Refresh even if the cache is fresh")
		batch       = flag.Int("batch", 0, "Refresh up to N idle or errored neighborhoods")
		list        = flag.Bool("list", false, "Only list refresh candidates")
		verbose     = flag.Bool("verbose", false, "Verbose logging")
	)
	flag.Parse()

	if *key == "" && *batch <= 0 && !*list {
		log.Fatal("One of -key, -batch or -list is required")
	}

	level := cfg.LogLevel
	if *verbose {
		level = "debug"
	}
	logging.Init("hoodpulse-refresh", level, "text")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	openCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	store, err := storage.Open(openCtx, *databaseURL, nil)
	cancel()
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer func() { _ = store.Close() }()
	slog.Info("Connected to store", "url", sanitizeURL(*databaseURL))

	sources, err := crawler.LoadConfig(*sourcesFile)
	if err != nil {
		log.Fatalf("Failed to load sources: %v", err)
	}

	clock := clockwork.NewRealClock()
	regions := app.NewRegionTable(sources.Regions)
	strategy, err := app.NewStrategy(cfg.RouterStrategy, store, uint64(clock.Now().UnixNano()))
	if err != nil {
		log.Fatalf("Failed to create router strategy: %v", err)
	}
	crawl := crawler.New(sources, crawler.Options{Regions: regions, Clock: clock})
	router := app.NewRouter(regions, strategy, store, clock, nil, app.WithAvailableSources(crawl.Sources()))

	refresher := app.NewRefresher(store, crawl, router, sentiment.NewAnalyzer(clock), clock, app.RefresherConfig{
		CacheExpiry:  cfg.CacheExpiry,
		Lease:        cfg.RefreshLease,
		CrawlTimeout: cfg.CrawlTimeout,
	}, nil)
	agent := app.NewRefreshAgent(store, refresher, clock, cfg.RefreshSkipAge, cfg.RefreshLease)

	var out any
	switch {
	case *list:
		limit := *batch
		if limit <= 0 {
			limit = cfg.RefreshBatchSize
		}
		refs, err := agent.GetNeighborhoodsToRefresh(ctx, limit)
		if err != nil {
			log.Fatalf("Failed to list candidates: %v", err)
		}
		out = refs
	case *key != "":
		out = agent.RefreshSentimentForZip(ctx, *key, *city, *force)
	default:
		out = agent.RefreshBatch(ctx, *batch)
	}

	if err := printJSON(os.Stdout, out); err != nil {
		log.Fatalf("Failed to write result: %v", err)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode: %w", err)
	}
	return nil
}

// sanitizeURL hides the password of a database URL for logging.
func sanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Redacted()
}
