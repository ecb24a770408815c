package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/hoodpulse/internal/adapter/metrics"
	"github.com/pscheid92/hoodpulse/internal/app"
	"github.com/pscheid92/hoodpulse/internal/domain"
	"github.com/pscheid92/hoodpulse/internal/platform/retry"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const maxParallelSources = 4

// Fetcher retrieves posts for one query from one upstream.
type Fetcher interface {
	Fetch(ctx context.Context, q Query) ([]domain.Post, error)
}

type source struct {
	name    string
	fetcher Fetcher
	limiter *rate.Limiter
	breaker circuitbreaker.CircuitBreaker[any]
}

type Options struct {
	Client  *http.Client
	Regions *app.RegionTable
	Clock   clockwork.Clock
	Metrics *metrics.RouterMetrics
}

// Crawler implements domain.Crawler over the configured sources. Every fetch
// is rate limited, guarded by a per-source circuit breaker and retried.
type Crawler struct {
	sources map[string]*source
	names   []string
	regions *app.RegionTable
	policy  retry.Policy
	clock   clockwork.Clock
}

var _ domain.Crawler = (*Crawler)(nil)

func New(cfg *Config, opts Options) *Crawler {
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Regions == nil {
		opts.Regions = app.NewRegionTable(cfg.Regions)
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	var robots *robotsCache
	if cfg.RespectRobots {
		robots = newRobotsCache(opts.Client, opts.Clock)
	}

	fetchers := make(map[string]Fetcher, len(cfg.Sources))
	for _, name := range cfg.SourceNames() {
		fetchers[name] = NewSelectorSource(cfg.Sources[name], opts.Client, cfg.UserAgent, robots)
	}
	return newCrawler(cfg, fetchers, opts)
}

func newCrawler(cfg *Config, fetchers map[string]Fetcher, opts Options) *Crawler {
	c := &Crawler{
		sources: make(map[string]*source, len(fetchers)),
		regions: opts.Regions,
		clock:   opts.Clock,
		policy: retry.Policy{
			MaxAttempts:      cfg.Retry.MaxAttempts,
			InitialBackoff:   cfg.Retry.InitialBackoff,
			RateLimitBackoff: cfg.Retry.RateLimitBackoff,
			MaxBackoff:       cfg.Retry.MaxBackoff,
		},
	}

	for _, name := range cfg.SourceNames() {
		f, ok := fetchers[name]
		if !ok {
			continue
		}
		sc := cfg.Sources[name]
		c.sources[name] = &source{
			name:    name,
			fetcher: f,
			limiter: rate.NewLimiter(rate.Limit(sc.RatePerSecond), sc.Burst),
			breaker: newSourceBreaker(name, opts.Metrics),
		}
		c.names = append(c.names, name)
	}
	slog.Info("Crawler configured", "sources", c.names)
	return c
}

// Half of at least 4 calls failing within a minute opens the breaker for 2 minutes.
func newSourceBreaker(name string, m *metrics.RouterMetrics) circuitbreaker.CircuitBreaker[any] {
	m.SetBreakerState(name, 0)
	return circuitbreaker.NewBuilder[any]().
		WithFailureRateThreshold(50, 4, time.Minute).
		WithDelay(2 * time.Minute).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			slog.Warn("Circuit breaker state changed",
				"component", "crawler",
				"source", name,
				"from", e.OldState.String(),
				"to", e.NewState.String(),
			)
			m.SetBreakerState(name, breakerGauge(e.NewState))
		}).
		Build()
}

func breakerGauge(s circuitbreaker.State) float64 {
	switch s {
	case circuitbreaker.HalfOpenState:
		return 1
	case circuitbreaker.OpenState:
		return 2
	default:
		return 0
	}
}

// Sources returns the configured source names, sorted.
func (c *Crawler) Sources() []string {
	return append([]string(nil), c.names...)
}

// CrawlNeighborhood crawls the requested source, or every configured source
// of the neighborhood's region. It fails only when no source produced posts.
func (c *Crawler) CrawlNeighborhood(ctx context.Context, req domain.CrawlRequest) ([]domain.Post, error) {
	names := c.sourcesFor(req)
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no sources configured", domain.ErrCrawlFailed)
	}
	q := Query{Neighborhood: req.Neighborhood, City: req.City}

	results := make([][]domain.Post, len(names))
	errs := make([]error, len(names))

	var g errgroup.Group
	g.SetLimit(maxParallelSources)
	for i, name := range names {
		g.Go(func() error {
			posts, err := c.crawlSource(ctx, c.sources[name], q)
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", name, err)
				return nil
			}
			results[i] = posts
			return nil
		})
	}
	_ = g.Wait()

	now := c.clock.Now()
	var posts []domain.Post
	for _, batch := range results {
		for _, p := range batch {
			p.Neighborhood = req.Neighborhood
			p.CrawlDate = now
			p.EnsureID()
			posts = append(posts, p)
		}
	}

	failed := errors.Join(errs...)
	if failed != nil && len(posts) == 0 {
		return nil, fmt.Errorf("%w: %w", domain.ErrCrawlFailed, failed)
	}
	if failed != nil {
		slog.WarnContext(ctx, "Crawler: partial crawl", "neighborhood", req.Neighborhood, "posts", len(posts), "error", failed)
	}
	slog.DebugContext(ctx, "Crawler: crawl complete", "neighborhood", req.Neighborhood, "sources", names, "posts", len(posts))
	return posts, nil
}

// sourcesFor honors req.Source when it is configured and otherwise falls back
// to the region's configured sources, then to all sources.
func (c *Crawler) sourcesFor(req domain.CrawlRequest) []string {
	if _, ok := c.sources[req.Source]; ok {
		return []string{req.Source}
	}

	var names []string
	for _, name := range c.regions.Sources(c.regions.Resolve(req.Neighborhood)) {
		if _, ok := c.sources[name]; ok {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		names = append(names, c.names...)
	}
	return names
}

func (c *Crawler) crawlSource(ctx context.Context, s *source, q Query) ([]domain.Post, error) {
	return retry.Do(ctx, c.policy, classify, func(ctx context.Context) ([]domain.Post, error) {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		if !s.breaker.TryAcquirePermit() {
			return nil, fmt.Errorf("source circuit breaker open: %w", circuitbreaker.ErrOpen)
		}

		posts, err := s.fetcher.Fetch(ctx, q)
		if err != nil {
			s.breaker.RecordError(err)
			return nil, err
		}
		s.breaker.RecordSuccess()
		return posts, nil
	})
}

func classify(err error) retry.Action {
	var se *StatusError
	switch {
	case errors.As(err, &se):
		return retry.ClassifyStatus(se.Code)
	case errors.Is(err, circuitbreaker.ErrOpen),
		errors.Is(err, errDisallowed),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return retry.Stop
	default:
		return retry.Retry
	}
}
