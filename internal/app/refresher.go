package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/hoodpulse/internal/adapter/metrics"
	"github.com/pscheid92/hoodpulse/internal/domain"
	"golang.org/x/sync/singleflight"
)

const (
	TriggerSync       = "sync"
	TriggerBackground = "background"
	TriggerAgent      = "agent"
)

// SourceRouter is the part of Router the refresher depends on.
type SourceRouter interface {
	ChooseSource(ctx context.Context, key string) string
	ReportResult(ctx context.Context, key, source string, success bool) error
}

// PostAggregator reduces a neighborhood's posts to one analysis.
type PostAggregator interface {
	Aggregate(neighborhood string, posts []domain.Post) domain.AggregatedAnalysis
}

type RefreshRequest struct {
	Neighborhood string
	City         string
	Force        bool
	Trigger      string
}

type RefresherConfig struct {
	CacheExpiry  time.Duration
	Lease        time.Duration
	CrawlTimeout time.Duration
}

func DefaultRefresherConfig() RefresherConfig {
	return RefresherConfig{CacheExpiry: 30 * day, Lease: 15 * time.Minute, CrawlTimeout: 2 * time.Minute}
}

// Refresher runs the crawl, analyze and store pipeline for one neighborhood.
// The store-level status CAS guarantees at most one refresh per key across
// processes; singleflight collapses concurrent callers within this one.
type Refresher struct {
	store    domain.Store
	crawler  domain.Crawler
	router   SourceRouter
	analyzer PostAggregator
	clock    clockwork.Clock
	cfg      RefresherConfig
	metrics  *metrics.RefreshMetrics
	group    singleflight.Group
}

// NewRefresher wires a refresher. m may be nil.
func NewRefresher(store domain.Store, crawler domain.Crawler, router SourceRouter, analyzer PostAggregator, clock clockwork.Clock, cfg RefresherConfig, m *metrics.RefreshMetrics) *Refresher {
	return &Refresher{
		store:    store,
		crawler:  crawler,
		router:   router,
		analyzer: analyzer,
		clock:    clock,
		cfg:      cfg,
		metrics:  m,
	}
}

// Refresh returns ErrRefreshInProgress when another refresh holds the key.
// A caller whose ctx ends gets ctx.Err() right away; the shared refresh keeps
// running for the other callers, bounded by the crawl timeout.
func (r *Refresher) Refresh(ctx context.Context, req RefreshRequest) (domain.NeighborhoodData, error) {
	if req.Neighborhood == "" {
		return domain.NeighborhoodData{}, domain.ErrInvalidNeighborhood
	}

	ch := r.group.DoChan(req.Neighborhood, func() (any, error) {
		return r.refresh(context.WithoutCancel(ctx), req)
	})

	select {
	case <-ctx.Done():
		return domain.NeighborhoodData{}, ctx.Err()
	case res := <-ch:
		if res.Shared {
			slog.DebugContext(ctx, "Refresher: joined in-flight refresh", "neighborhood", req.Neighborhood)
		}
		if res.Err != nil {
			return domain.NeighborhoodData{}, res.Err
		}
		return res.Val.(domain.NeighborhoodData), nil
	}
}

// RunJob adapts Refresh to the background queue.
func (r *Refresher) RunJob(ctx context.Context, job RefreshJob) error {
	_, err := r.Refresh(ctx, RefreshRequest{Neighborhood: job.Neighborhood, City: job.City, Trigger: TriggerBackground})
	return err
}

func (r *Refresher) refresh(ctx context.Context, req RefreshRequest) (domain.NeighborhoodData, error) {
	trigger := req.Trigger
	if trigger == "" {
		trigger = TriggerSync
	}

	now := r.clock.Now()
	claimed, err := r.store.TryBeginRefresh(ctx, req.Neighborhood, req.City, now, now.Add(-r.cfg.Lease))
	if err != nil {
		r.metrics.ObserveRefresh(trigger, "failure", 0)
		return domain.NeighborhoodData{}, fmt.Errorf("failed to begin refresh: %w", err)
	}
	if !claimed {
		r.metrics.ObserveRefresh(trigger, "in_progress", 0)
		return domain.NeighborhoodData{}, domain.ErrRefreshInProgress
	}

	start := r.clock.Now()
	data, err := r.run(ctx, req, now)
	took := r.clock.Since(start)
	if err != nil {
		// The status must leave "refreshing" even when the caller went away.
		if failErr := r.store.FailRefresh(context.WithoutCancel(ctx), req.Neighborhood); failErr != nil {
			slog.ErrorContext(ctx, "Refresher: failed to mark refresh error", "neighborhood", req.Neighborhood, "error", failErr)
		}
		r.metrics.ObserveRefresh(trigger, "failure", took)
		slog.WarnContext(ctx, "Refresher: refresh failed", "neighborhood", req.Neighborhood, "trigger", trigger, "error", err)
		return domain.NeighborhoodData{}, err
	}

	r.metrics.ObserveRefresh(trigger, "success", took)
	slog.InfoContext(ctx, "Refresher: refreshed", "neighborhood", req.Neighborhood, "trigger", trigger,
		"posts", data.PostCount, "score", data.Analysis.OverallSentiment.Score)
	return data, nil
}

func (r *Refresher) run(ctx context.Context, req RefreshRequest, now time.Time) (domain.NeighborhoodData, error) {
	source := r.router.ChooseSource(ctx, req.Neighborhood)

	crawlCtx, cancel := context.WithTimeout(ctx, r.cfg.CrawlTimeout)
	posts, crawlErr := r.crawler.CrawlNeighborhood(crawlCtx, domain.CrawlRequest{
		Neighborhood: req.Neighborhood,
		City:         req.City,
		Source:       source,
		ForceRefresh: req.Force,
	})
	cancel()

	// Only a picked source was crawled alone, so only then does the outcome belong to it.
	if source != "" {
		success := crawlErr == nil && len(posts) > 0
		if err := r.router.ReportResult(context.WithoutCancel(ctx), req.Neighborhood, source, success); err != nil {
			slog.WarnContext(ctx, "Refresher: failed to report source result", "source", source, "error", err)
		}
	}
	if crawlErr != nil {
		if errors.Is(crawlErr, domain.ErrCrawlFailed) {
			return domain.NeighborhoodData{}, fmt.Errorf("failed to crawl %s: %w", source, crawlErr)
		}
		return domain.NeighborhoodData{}, fmt.Errorf("failed to crawl %s: %w: %w", source, domain.ErrCrawlFailed, crawlErr)
	}

	for i := range posts {
		if posts[i].Neighborhood == "" {
			posts[i].Neighborhood = req.Neighborhood
		}
		if posts[i].CrawlDate.IsZero() {
			posts[i].CrawlDate = now
		}
		posts[i].EnsureID()
	}

	inserted, err := r.store.SavePosts(ctx, posts)
	if err != nil {
		return domain.NeighborhoodData{}, fmt.Errorf("failed to save posts: %w", err)
	}
	r.metrics.AddPosts(inserted)

	all, err := r.store.ListPosts(ctx, req.Neighborhood)
	if err != nil {
		return domain.NeighborhoodData{}, fmt.Errorf("failed to list posts: %w", err)
	}
	if len(all) == 0 {
		return domain.NeighborhoodData{}, domain.ErrNoPosts
	}

	analysis := r.analyzer.Aggregate(req.Neighborhood, all)
	data := domain.NeighborhoodData{
		Neighborhood: req.Neighborhood,
		City:         req.City,
		PostCount:    analysis.PostCount,
		Analysis:     analysis,
		LastUpdated:  now,
		Expiry:       now.Add(r.cfg.CacheExpiry),
	}

	if err := r.store.CompleteRefresh(ctx, data); err != nil {
		return domain.NeighborhoodData{}, fmt.Errorf("failed to store refresh: %w", err)
	}
	return data, nil
}
