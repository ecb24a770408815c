package crawler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/pscheid92/hoodpulse/internal/adapter/metrics"
	"github.com/pscheid92/hoodpulse/internal/app"
	"github.com/pscheid92/hoodpulse/internal/domain"
	"github.com/pscheid92/hoodpulse/internal/platform/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockFetcher struct {
	mu      sync.Mutex
	queries []Query
	fetchFn func(ctx context.Context, q Query) ([]domain.Post, error)
}

func (m *mockFetcher) Fetch(ctx context.Context, q Query) ([]domain.Post, error) {
	m.mu.Lock()
	m.queries = append(m.queries, q)
	m.mu.Unlock()
	if m.fetchFn != nil {
		return m.fetchFn(ctx, q)
	}
	return nil, nil
}

func (m *mockFetcher) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queries)
}

func returning(source string, titles ...string) *mockFetcher {
	return &mockFetcher{fetchFn: func(context.Context, Query) ([]domain.Post, error) {
		posts := make([]domain.Post, 0, len(titles))
		for _, title := range titles {
			posts = append(posts, domain.Post{Source: source, Title: title, URL: "https://example.com/" + title})
		}
		return posts, nil
	}}
}

func failing(err error) *mockFetcher {
	return &mockFetcher{fetchFn: func(context.Context, Query) ([]domain.Post, error) {
		return nil, err
	}}
}

var crawlNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func testConfig(t *testing.T, names ...string) *Config {
	t.Helper()
	cfg, err := ParseConfig(nil)
	require.NoError(t, err)
	cfg.Retry = RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, RateLimitBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
	cfg.Sources = make(map[string]SourceConfig, len(names))
	for _, name := range names {
		cfg.Sources[name] = SourceConfig{Name: name, RatePerSecond: 1000, Burst: 10, MaxItems: 10}
	}
	return cfg
}

func newTestCrawler(t *testing.T, fetchers map[string]Fetcher, opts Options) *Crawler {
	t.Helper()
	names := make([]string, 0, len(fetchers))
	for name := range fetchers {
		names = append(names, name)
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewFakeClockAt(crawlNow)
	}
	if opts.Regions == nil {
		opts.Regions = app.NewRegionTable([]app.Region{{Name: "denver", Prefixes: []string{"802"}, Sources: []string{"Local", "Reddit"}}})
	}
	return newCrawler(testConfig(t, names...), fetchers, opts)
}

func TestCrawl_RequestedSource(t *testing.T) {
	reddit := returning("Reddit", "a", "b")
	local := returning("Local", "c")
	c := newTestCrawler(t, map[string]Fetcher{"Reddit": reddit, "Local": local}, Options{})

	posts, err := c.CrawlNeighborhood(context.Background(), domain.CrawlRequest{Neighborhood: "80202", City: "Denver", Source: "Reddit"})
	require.NoError(t, err)

	require.Len(t, posts, 2)
	assert.Equal(t, 1, reddit.calls())
	assert.Zero(t, local.calls())
	assert.Equal(t, Query{Neighborhood: "80202", City: "Denver"}, reddit.queries[0])

	for _, p := range posts {
		assert.Equal(t, "80202", p.Neighborhood)
		assert.Equal(t, crawlNow, p.CrawlDate)
		assert.NotEmpty(t, p.ID)
	}
}

func TestCrawl_UnconfiguredSourceFallsBackToRegion(t *testing.T) {
	reddit := returning("Reddit", "a")
	local := returning("Local", "b")
	other := returning("Other", "c")
	c := newTestCrawler(t, map[string]Fetcher{"Reddit": reddit, "Local": local, "Other": other}, Options{})

	posts, err := c.CrawlNeighborhood(context.Background(), domain.CrawlRequest{Neighborhood: "80202", Source: "Nextdoor"})
	require.NoError(t, err)

	assert.Len(t, posts, 2)
	assert.Equal(t, 1, reddit.calls())
	assert.Equal(t, 1, local.calls())
	assert.Zero(t, other.calls())
}

func TestCrawl_UnknownRegionUsesAllSources(t *testing.T) {
	a := returning("A", "a")
	b := returning("B", "b")
	c := newTestCrawler(t, map[string]Fetcher{"A": a, "B": b}, Options{})

	posts, err := c.CrawlNeighborhood(context.Background(), domain.CrawlRequest{Neighborhood: "Mission"})
	require.NoError(t, err)

	assert.Len(t, posts, 2)
	assert.Equal(t, []string{"A", "B"}, c.sourcesFor(domain.CrawlRequest{Neighborhood: "Mission"}))
}

func TestCrawl_NoSources(t *testing.T) {
	c := newTestCrawler(t, map[string]Fetcher{}, Options{})

	_, err := c.CrawlNeighborhood(context.Background(), domain.CrawlRequest{Neighborhood: "80202"})
	assert.ErrorIs(t, err, domain.ErrCrawlFailed)
}

func TestCrawl_PartialFailure(t *testing.T) {
	c := newTestCrawler(t, map[string]Fetcher{
		"Reddit": returning("Reddit", "a"),
		"Local":  failing(&StatusError{Code: http.StatusNotFound}),
	}, Options{})

	posts, err := c.CrawlNeighborhood(context.Background(), domain.CrawlRequest{Neighborhood: "80202"})
	require.NoError(t, err)
	assert.Len(t, posts, 1)
}

func TestCrawl_AllSourcesFail(t *testing.T) {
	c := newTestCrawler(t, map[string]Fetcher{
		"Reddit": failing(&StatusError{Code: http.StatusForbidden}),
		"Local":  failing(&StatusError{Code: http.StatusNotFound}),
	}, Options{})

	_, err := c.CrawlNeighborhood(context.Background(), domain.CrawlRequest{Neighborhood: "80202"})
	require.ErrorIs(t, err, domain.ErrCrawlFailed)
	assert.Contains(t, err.Error(), "Reddit")
	assert.Contains(t, err.Error(), "Local")
}

func TestCrawl_RetriesTransientErrors(t *testing.T) {
	attempts := 0
	flaky := &mockFetcher{fetchFn: func(context.Context, Query) ([]domain.Post, error) {
		attempts++
		if attempts < 3 {
			return nil, &StatusError{Code: http.StatusBadGateway}
		}
		return []domain.Post{{Source: "Reddit", Title: "ok"}}, nil
	}}
	c := newTestCrawler(t, map[string]Fetcher{"Reddit": flaky}, Options{})

	posts, err := c.CrawlNeighborhood(context.Background(), domain.CrawlRequest{Neighborhood: "x", Source: "Reddit"})
	require.NoError(t, err)
	assert.Len(t, posts, 1)
	assert.Equal(t, 3, attempts)
}

func TestCrawl_ClientErrorsAreNotRetried(t *testing.T) {
	notFound := failing(&StatusError{Code: http.StatusNotFound})
	c := newTestCrawler(t, map[string]Fetcher{"Reddit": notFound}, Options{})

	_, err := c.CrawlNeighborhood(context.Background(), domain.CrawlRequest{Neighborhood: "x", Source: "Reddit"})
	require.ErrorIs(t, err, domain.ErrCrawlFailed)
	assert.Equal(t, 1, notFound.calls())
}

func TestCrawl_RateLimitedIsRetried(t *testing.T) {
	limited := failing(&StatusError{Code: http.StatusTooManyRequests, After: time.Millisecond})
	c := newTestCrawler(t, map[string]Fetcher{"Reddit": limited}, Options{})

	_, err := c.CrawlNeighborhood(context.Background(), domain.CrawlRequest{Neighborhood: "x", Source: "Reddit"})
	require.Error(t, err)
	assert.Equal(t, 3, limited.calls())
}

func TestCrawl_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewRouterMetrics(reg)
	broken := failing(&StatusError{Code: http.StatusForbidden})
	c := newTestCrawler(t, map[string]Fetcher{"Reddit": broken}, Options{Metrics: m})
	req := domain.CrawlRequest{Neighborhood: "x", Source: "Reddit"}

	for range 4 {
		_, err := c.CrawlNeighborhood(context.Background(), req)
		require.Error(t, err)
	}
	require.Equal(t, 4, broken.calls())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BreakerState.WithLabelValues("Reddit")))

	_, err := c.CrawlNeighborhood(context.Background(), req)
	require.ErrorIs(t, err, domain.ErrCrawlFailed)
	assert.Contains(t, err.Error(), "circuit breaker open")
	assert.Equal(t, 4, broken.calls(), "open breaker short-circuits the fetch")
}

func TestCrawl_BreakerToleratesOccasionalFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewRouterMetrics(reg)
	var mu sync.Mutex
	n := 0
	flaky := &mockFetcher{fetchFn: func(context.Context, Query) ([]domain.Post, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		if n == 1 {
			return nil, &StatusError{Code: http.StatusForbidden}
		}
		return []domain.Post{{Source: "Reddit", Title: "ok", URL: "https://example.com/ok"}}, nil
	}}
	c := newTestCrawler(t, map[string]Fetcher{"Reddit": flaky}, Options{Metrics: m})
	req := domain.CrawlRequest{Neighborhood: "x", Source: "Reddit"}

	for range 6 {
		_, _ = c.CrawlNeighborhood(context.Background(), req)
	}

	assert.Equal(t, 6, flaky.calls(), "one failure in six stays under the 50% threshold")
	assert.Equal(t, 0.0, testutil.ToFloat64(m.BreakerState.WithLabelValues("Reddit")))
}

func TestCrawler_Sources(t *testing.T) {
	c := newTestCrawler(t, map[string]Fetcher{"Reddit": returning("Reddit"), "CityBlog": returning("CityBlog")}, Options{})

	assert.Equal(t, []string{"CityBlog", "Reddit"}, c.Sources())
}

func TestCrawl_CancelledContext(t *testing.T) {
	slow := &mockFetcher{fetchFn: func(ctx context.Context, _ Query) ([]domain.Post, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	c := newTestCrawler(t, map[string]Fetcher{"Reddit": slow}, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := c.CrawlNeighborhood(ctx, domain.CrawlRequest{Neighborhood: "x", Source: "Reddit"})

	require.ErrorIs(t, err, domain.ErrCrawlFailed)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, 1, slow.calls())
}

func TestCrawl_EndToEndOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(searchPage))
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Sources["Reddit"] = testSourceConfig(srv.URL)
	c := New(cfg, Options{Client: srv.Client(), Clock: clockwork.NewFakeClockAt(crawlNow)})

	posts, err := c.CrawlNeighborhood(context.Background(), domain.CrawlRequest{Neighborhood: "Park Slope", City: "Brooklyn"})
	require.NoError(t, err)

	require.Len(t, posts, 2)
	assert.Equal(t, "Great schools", posts[0].Title)
	assert.Equal(t, domain.PostID("Reddit", posts[0].URL, posts[0].Title), posts[0].ID)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, retry.Stop, classify(&StatusError{Code: http.StatusNotFound}))
	assert.Equal(t, retry.After, classify(&StatusError{Code: http.StatusTooManyRequests}))
	assert.Equal(t, retry.Retry, classify(&StatusError{Code: http.StatusServiceUnavailable}))
	assert.Equal(t, retry.Stop, classify(errDisallowed))
	assert.Equal(t, retry.Stop, classify(context.Canceled))
	assert.Equal(t, retry.Retry, classify(errors.New("connection reset")))
}
