package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/hoodpulse/internal/domain"
	"github.com/pscheid92/hoodpulse/internal/sentiment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type refreshFixture struct {
	store     *memStore
	crawler   *mockCrawler
	router    *Router
	refresher *Refresher
	clock     *clockwork.FakeClock
}

func newRefreshFixture() *refreshFixture {
	clock := clockwork.NewFakeClockAt(testNow)
	store := newMemStore()
	crawler := &mockCrawler{}
	router := NewRouter(DefaultRegionTable(), PrimaryStrategy{}, store, clock, nil)
	cfg := DefaultRefresherConfig()
	cfg.CrawlTimeout = time.Second
	return &refreshFixture{
		store:     store,
		crawler:   crawler,
		router:    router,
		refresher: NewRefresher(store, crawler, router, sentiment.NewAnalyzer(clock), clock, cfg, nil),
		clock:     clock,
	}
}

func threeMixedPosts() []domain.Post {
	return []domain.Post{
		testPost("Reddit", "p1", "great schools, very safe"),
		testPost("Nextdoor", "p2", "great schools, very safe"),
		testPost("Reddit", "p3", "traffic is terrible"),
	}
}

func TestRefresh_EndToEndFromEmptyCache(t *testing.T) {
	f := newRefreshFixture()
	f.crawler.returned = threeMixedPosts()
	cache := NewNeighborhoodCache(f.store, f.refresher, nil, nil, DefaultStalenessPolicy(), f.clock, nil)

	env, err := cache.GetNeighborhoodData(context.Background(), "Park Slope", "Brooklyn", false)
	require.NoError(t, err)

	fresh, ok := env.(domain.Fresh)
	require.True(t, ok, "got %T", env)
	overall := fresh.Data.Analysis.OverallSentiment
	assert.Equal(t, domain.LabelPositive, overall.Label)
	assert.InDelta(t, 0.67, overall.Distribution.Positive, 0.01)
	schools, ok := fresh.Data.Analysis.Aspect("schools")
	require.True(t, ok)
	assert.Greater(t, schools.Score, 0.0)
	assert.Equal(t, 3, fresh.Data.PostCount)
	assert.Equal(t, testNow.Add(30*day), fresh.Data.Expiry)

	entry := f.store.entry("Park Slope")
	require.True(t, entry.HasData())
	assert.Equal(t, domain.RefreshIdle, entry.RefreshStatus)
	assert.Equal(t, testNow, entry.LastUpdated)

	posts, _ := f.store.ListPosts(context.Background(), "Park Slope")
	require.Len(t, posts, 3)
	for _, p := range posts {
		assert.NotEmpty(t, p.ID)
		assert.Equal(t, testNow, p.CrawlDate)
	}

	stats, _ := f.store.ListSourceStats(context.Background(), DefaultRegion)
	require.Len(t, stats, 1)
	assert.Equal(t, "Reddit", stats[0].Source)
	assert.Equal(t, int64(1), stats[0].SuccessCount)
}

func TestRefresh_EndToEndCrawlFailureServesFallback(t *testing.T) {
	f := newRefreshFixture()
	f.store.seed("Park Slope", "Brooklyn", 0.42, 12, daysAgo(40))
	f.crawler.crawlFn = func(context.Context, domain.CrawlRequest) ([]domain.Post, error) {
		return nil, errors.New("connection reset")
	}
	cache := NewNeighborhoodCache(f.store, f.refresher, nil, nil, DefaultStalenessPolicy(), f.clock, nil)

	env, err := cache.GetNeighborhoodData(context.Background(), "Park Slope", "", false)
	require.NoError(t, err)

	view := domain.Describe(env)
	assert.True(t, view.IsFallback)
	assert.Equal(t, 0.42, view.Analysis.OverallSentiment.Score)
	assert.Equal(t, 40, view.CacheMetadata.AgeDays)

	entry := f.store.entry("Park Slope")
	assert.Equal(t, domain.RefreshError, entry.RefreshStatus)
	assert.Equal(t, daysAgo(40), entry.LastUpdated, "failed refresh keeps the previous data")

	stats, _ := f.store.ListSourceStats(context.Background(), DefaultRegion)
	require.Len(t, stats, 1)
	assert.Equal(t, int64(1), stats[0].FailureCount)
}

func TestRefresh_CrawlErrorWrapsErrCrawlFailed(t *testing.T) {
	f := newRefreshFixture()
	f.crawler.crawlFn = func(context.Context, domain.CrawlRequest) ([]domain.Post, error) {
		return nil, errors.New("503 Service Unavailable")
	}

	_, err := f.refresher.Refresh(context.Background(), RefreshRequest{Neighborhood: "Park Slope"})

	assert.ErrorIs(t, err, domain.ErrCrawlFailed)
	assert.ErrorContains(t, err, "503")
}

func TestRefresh_PassesChosenSourceToCrawler(t *testing.T) {
	f := newRefreshFixture()
	f.crawler.returned = threeMixedPosts()

	_, err := f.refresher.Refresh(context.Background(), RefreshRequest{Neighborhood: "10001", City: "New York", Force: true})
	require.NoError(t, err)

	require.Equal(t, 1, f.crawler.callCount())
	req := f.crawler.calls[0]
	assert.Equal(t, "Reddit", req.Source)
	assert.Equal(t, "New York", req.City)
	assert.True(t, req.ForceRefresh)
}

func TestRefresh_ClaimHeldElsewhere(t *testing.T) {
	f := newRefreshFixture()
	f.store.tryBeginFn = func(context.Context, string, string, time.Time, time.Time) (bool, error) {
		return false, nil
	}

	_, err := f.refresher.Refresh(context.Background(), RefreshRequest{Neighborhood: "Park Slope"})

	assert.ErrorIs(t, err, domain.ErrRefreshInProgress)
	assert.Zero(t, f.crawler.callCount())
}

func TestRefresh_ExpiredLeaseIsTakenOver(t *testing.T) {
	f := newRefreshFixture()
	f.crawler.returned = threeMixedPosts()
	f.store.entries["Park Slope"] = &domain.CacheEntry{
		Neighborhood:     "Park Slope",
		RefreshStatus:    domain.RefreshInProgress,
		RefreshStartedAt: testNow.Add(-20 * time.Minute),
	}

	_, err := f.refresher.Refresh(context.Background(), RefreshRequest{Neighborhood: "Park Slope"})
	require.NoError(t, err)
	assert.Equal(t, domain.RefreshIdle, f.store.entry("Park Slope").RefreshStatus)
}

func TestRefresh_LiveLeaseBlocks(t *testing.T) {
	f := newRefreshFixture()
	f.store.entries["Park Slope"] = &domain.CacheEntry{
		Neighborhood:     "Park Slope",
		RefreshStatus:    domain.RefreshInProgress,
		RefreshStartedAt: testNow.Add(-time.Minute),
	}

	_, err := f.refresher.Refresh(context.Background(), RefreshRequest{Neighborhood: "Park Slope"})
	assert.ErrorIs(t, err, domain.ErrRefreshInProgress)
}

func TestRefresh_NoPosts(t *testing.T) {
	f := newRefreshFixture()

	_, err := f.refresher.Refresh(context.Background(), RefreshRequest{Neighborhood: "Park Slope"})

	assert.ErrorIs(t, err, domain.ErrNoPosts)
	assert.Equal(t, domain.RefreshError, f.store.entry("Park Slope").RefreshStatus)
	stats, _ := f.store.ListSourceStats(context.Background(), DefaultRegion)
	require.Len(t, stats, 1)
	assert.Equal(t, int64(1), stats[0].FailureCount, "an empty crawl counts against the source")
}

func TestRefresh_EmptyCrawlReusesStoredPosts(t *testing.T) {
	f := newRefreshFixture()
	f.crawler.returned = threeMixedPosts()
	_, err := f.refresher.Refresh(context.Background(), RefreshRequest{Neighborhood: "Park Slope"})
	require.NoError(t, err)

	f.crawler.returned = nil
	data, err := f.refresher.Refresh(context.Background(), RefreshRequest{Neighborhood: "Park Slope"})
	require.NoError(t, err)
	assert.Equal(t, 3, data.PostCount)
}

func TestRefresh_RecrawlDoesNotDuplicatePosts(t *testing.T) {
	f := newRefreshFixture()
	f.crawler.returned = threeMixedPosts()

	for range 2 {
		_, err := f.refresher.Refresh(context.Background(), RefreshRequest{Neighborhood: "Park Slope"})
		require.NoError(t, err)
	}

	posts, _ := f.store.ListPosts(context.Background(), "Park Slope")
	assert.Len(t, posts, 3)
}

func TestRefresh_CrawlTimeout(t *testing.T) {
	f := newRefreshFixture()
	f.refresher.cfg.CrawlTimeout = 10 * time.Millisecond
	f.crawler.crawlFn = func(ctx context.Context, _ domain.CrawlRequest) ([]domain.Post, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	_, err := f.refresher.Refresh(context.Background(), RefreshRequest{Neighborhood: "Park Slope"})

	assert.ErrorIs(t, err, domain.ErrCrawlFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, domain.RefreshError, f.store.entry("Park Slope").RefreshStatus)
}

func TestRefresh_CallerCancelStillReleasesClaim(t *testing.T) {
	f := newRefreshFixture()
	ctx, cancel := context.WithCancel(context.Background())
	f.crawler.crawlFn = func(context.Context, domain.CrawlRequest) ([]domain.Post, error) {
		cancel()
		return nil, errors.New("connection reset")
	}

	_, err := f.refresher.Refresh(ctx, RefreshRequest{Neighborhood: "Park Slope"})

	require.Error(t, err)
	assert.Eventually(t, func() bool {
		return f.store.entry("Park Slope").RefreshStatus == domain.RefreshError
	}, time.Second, 5*time.Millisecond)
}

func TestRefresh_CallerCancelDoesNotAbortSharedRefresh(t *testing.T) {
	f := newRefreshFixture()
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.crawler.crawlFn = func(ctx context.Context, _ domain.CrawlRequest) ([]domain.Post, error) {
		once.Do(func() { close(started) })
		<-release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return threeMixedPosts(), nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := f.refresher.Refresh(ctx, RefreshRequest{Neighborhood: "Park Slope"})
		first <- err
	}()
	<-started

	joined := make(chan error, 1)
	go func() {
		_, err := f.refresher.Refresh(context.Background(), RefreshRequest{Neighborhood: "Park Slope"})
		joined <- err
	}()

	cancel()
	assert.ErrorIs(t, <-first, context.Canceled, "the cancelled caller returns at once")

	// Give the second caller time to join the in-flight call before it finishes.
	time.Sleep(20 * time.Millisecond)
	close(release)

	require.NoError(t, <-joined)
	assert.Equal(t, 1, f.crawler.callCount())
	assert.Equal(t, domain.RefreshIdle, f.store.entry("Park Slope").RefreshStatus)
}

func TestRefresh_ConcurrentRefreshersCrawlOnce(t *testing.T) {
	f := newRefreshFixture()
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.crawler.crawlFn = func(context.Context, domain.CrawlRequest) ([]domain.Post, error) {
		once.Do(func() { close(started) })
		<-release
		return threeMixedPosts(), nil
	}
	// A second refresher over the same store stands in for another process.
	other := NewRefresher(f.store, f.crawler, f.router, sentiment.NewAnalyzer(f.clock), f.clock, DefaultRefresherConfig(), nil)

	first := make(chan error, 1)
	go func() {
		_, err := f.refresher.Refresh(context.Background(), RefreshRequest{Neighborhood: "Park Slope"})
		first <- err
	}()
	<-started

	_, err := other.Refresh(context.Background(), RefreshRequest{Neighborhood: "Park Slope"})
	assert.ErrorIs(t, err, domain.ErrRefreshInProgress)

	close(release)
	require.NoError(t, <-first)
	assert.Equal(t, 1, f.crawler.callCount())
}

func TestRefresh_BlankNeighborhood(t *testing.T) {
	f := newRefreshFixture()

	_, err := f.refresher.Refresh(context.Background(), RefreshRequest{})
	assert.ErrorIs(t, err, domain.ErrInvalidNeighborhood)
}

func TestRunJob_UsesBackgroundTrigger(t *testing.T) {
	f := newRefreshFixture()
	f.crawler.returned = threeMixedPosts()

	require.NoError(t, f.refresher.RunJob(context.Background(), RefreshJob{Neighborhood: "Park Slope", City: "Brooklyn"}))

	assert.Equal(t, "Brooklyn", f.store.entry("Park Slope").City)
}

func TestRefresh_CreditsOnlyTheCrawledSource(t *testing.T) {
	f := newRefreshFixture()
	f.router = NewRouter(DefaultRegionTable(), NewSuccessRateStrategy(f.store), f.store, f.clock, nil,
		WithAvailableSources([]string{"CityBlog"}))
	f.refresher = NewRefresher(f.store, f.crawler, f.router, sentiment.NewAnalyzer(f.clock), f.clock, DefaultRefresherConfig(), nil)
	f.crawler.returned = []domain.Post{testPost("CityBlog", "c1", "great parks")}

	_, err := f.refresher.Refresh(context.Background(), RefreshRequest{Neighborhood: "10001", City: "New York"})
	require.NoError(t, err)

	require.Equal(t, 1, f.crawler.callCount())
	assert.Equal(t, "CityBlog", f.crawler.calls[0].Source)

	stats, _ := f.store.ListSourceStats(context.Background(), "nyc")
	require.Len(t, stats, 1)
	assert.Equal(t, "CityBlog", stats[0].Source)
	assert.Equal(t, int64(1), stats[0].SuccessCount)
}

func TestRefresh_NoAvailableSourceRecordsNothing(t *testing.T) {
	f := newRefreshFixture()
	f.router = NewRouter(DefaultRegionTable(), PrimaryStrategy{}, f.store, f.clock, nil, WithAvailableSources(nil))
	f.refresher = NewRefresher(f.store, f.crawler, f.router, sentiment.NewAnalyzer(f.clock), f.clock, DefaultRefresherConfig(), nil)
	f.crawler.crawlFn = func(context.Context, domain.CrawlRequest) ([]domain.Post, error) {
		return nil, domain.ErrCrawlFailed
	}

	_, err := f.refresher.Refresh(context.Background(), RefreshRequest{Neighborhood: "10001"})
	require.ErrorIs(t, err, domain.ErrCrawlFailed)

	stats, _ := f.store.ListSourceStats(context.Background(), "nyc")
	assert.Empty(t, stats)
}
