package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pscheid92/hoodpulse/internal/domain"
)

// --- In-memory store ---

// memStore is an in-memory domain.Store. The Fn fields override single
// operations for error injection.
type memStore struct {
	mu      sync.Mutex
	posts   map[string][]domain.Post
	entries map[string]*domain.CacheEntry
	stats   map[string]*domain.SourceStats
	reps    map[string]domain.ReputationRecord

	getCacheEntryFn   func(ctx context.Context, neighborhood string) (*domain.CacheEntry, error)
	findCacheEntryFn  func(ctx context.Context, key string) (*domain.CacheEntry, error)
	tryBeginFn        func(ctx context.Context, neighborhood, city string, now, staleBefore time.Time) (bool, error)
	recordAccessFn    func(ctx context.Context, neighborhood, city string, at time.Time) error
	listCandidatesFn  func(ctx context.Context, staleBefore time.Time) ([]domain.RefreshCandidate, error)
	listSourceStatsFn func(ctx context.Context, region string) ([]domain.SourceStats, error)
	saveReputationFn  func(ctx context.Context, rec domain.ReputationRecord) error
}

var _ domain.Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		posts:   make(map[string][]domain.Post),
		entries: make(map[string]*domain.CacheEntry),
		stats:   make(map[string]*domain.SourceStats),
		reps:    make(map[string]domain.ReputationRecord),
	}
}

// seed stores a completed analysis for neighborhood as of lastUpdated.
func (s *memStore) seed(neighborhood, city string, score float64, posts int, lastUpdated time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	analysis := domain.EmptyAnalysis(neighborhood, lastUpdated)
	analysis.PostCount = posts
	analysis.OverallSentiment = domain.OverallSentiment{Label: domain.LabelFor(score), Score: score}
	s.entries[neighborhood] = &domain.CacheEntry{
		Neighborhood: neighborhood,
		City:         city,
		Data: &domain.NeighborhoodData{
			Neighborhood: neighborhood,
			City:         city,
			PostCount:    posts,
			Analysis:     analysis,
			LastUpdated:  lastUpdated,
		},
		LastUpdated:   lastUpdated,
		RefreshStatus: domain.RefreshIdle,
	}
}

func (s *memStore) entry(neighborhood string) *domain.CacheEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[neighborhood]
	if !ok {
		return nil
	}
	cp := *e
	return &cp
}

func (s *memStore) SavePosts(_ context.Context, posts []domain.Post) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inserted := 0
	for _, p := range posts {
		dup := false
		for _, existing := range s.posts[p.Neighborhood] {
			if existing.ID == p.ID {
				dup = true
				break
			}
		}
		if !dup {
			s.posts[p.Neighborhood] = append(s.posts[p.Neighborhood], p)
			inserted++
		}
	}
	return inserted, nil
}

func (s *memStore) ListPosts(_ context.Context, neighborhood string) ([]domain.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Post(nil), s.posts[neighborhood]...), nil
}

func (s *memStore) GetAnalysis(_ context.Context, neighborhood string) (*domain.AggregatedAnalysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[neighborhood]
	if !ok || e.Data == nil {
		return nil, domain.ErrAnalysisNotFound
	}
	a := e.Data.Analysis
	return &a, nil
}

func (s *memStore) GetCacheEntry(ctx context.Context, neighborhood string) (*domain.CacheEntry, error) {
	if s.getCacheEntryFn != nil {
		return s.getCacheEntryFn(ctx, neighborhood)
	}
	if e := s.entry(neighborhood); e != nil {
		return e, nil
	}
	return nil, domain.ErrCacheEntryNotFound
}

func (s *memStore) FindCacheEntry(ctx context.Context, key string) (*domain.CacheEntry, error) {
	if s.findCacheEntryFn != nil {
		return s.findCacheEntryFn(ctx, key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok && e.HasData() {
		cp := *e
		return &cp, nil
	}
	var best *domain.CacheEntry
	for _, e := range s.entries {
		if e.City == key && e.HasData() && (best == nil || e.LastUpdated.After(best.LastUpdated)) {
			best = e
		}
	}
	if best == nil {
		return nil, domain.ErrCacheEntryNotFound
	}
	cp := *best
	return &cp, nil
}

func (s *memStore) TryBeginRefresh(ctx context.Context, neighborhood, city string, now, staleBefore time.Time) (bool, error) {
	if s.tryBeginFn != nil {
		return s.tryBeginFn(ctx, neighborhood, city, now, staleBefore)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[neighborhood]
	if !ok {
		s.entries[neighborhood] = &domain.CacheEntry{
			Neighborhood:     neighborhood,
			City:             city,
			RefreshStatus:    domain.RefreshInProgress,
			RefreshStartedAt: now,
		}
		return true, nil
	}
	if e.RefreshStatus == domain.RefreshInProgress && !e.RefreshStartedAt.Before(staleBefore) {
		return false, nil
	}
	e.RefreshStatus = domain.RefreshInProgress
	e.RefreshStartedAt = now
	if e.City == "" {
		e.City = city
	}
	return true, nil
}

func (s *memStore) CompleteRefresh(_ context.Context, data domain.NeighborhoodData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[data.Neighborhood]
	if !ok {
		e = &domain.CacheEntry{Neighborhood: data.Neighborhood}
		s.entries[data.Neighborhood] = e
	}
	d := data
	e.Data = &d
	e.City = data.City
	e.LastUpdated = data.LastUpdated
	e.RefreshStatus = domain.RefreshIdle
	e.RefreshStartedAt = time.Time{}
	return nil
}

func (s *memStore) FailRefresh(_ context.Context, neighborhood string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[neighborhood]; ok {
		e.RefreshStatus = domain.RefreshError
		e.RefreshStartedAt = time.Time{}
	}
	return nil
}

func (s *memStore) RecordAccess(ctx context.Context, neighborhood, city string, at time.Time) error {
	if s.recordAccessFn != nil {
		return s.recordAccessFn(ctx, neighborhood, city, at)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[neighborhood]
	if !ok {
		e = &domain.CacheEntry{Neighborhood: neighborhood, City: city, RefreshStatus: domain.RefreshIdle}
		s.entries[neighborhood] = e
	}
	e.AccessCount++
	e.LastAccess = at
	return nil
}

func (s *memStore) ListRefreshCandidates(ctx context.Context, staleBefore time.Time) ([]domain.RefreshCandidate, error) {
	if s.listCandidatesFn != nil {
		return s.listCandidatesFn(ctx, staleBefore)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.RefreshCandidate
	for _, e := range s.entries {
		if !e.RefreshClaimable(staleBefore) {
			continue
		}
		out = append(out, domain.RefreshCandidate{
			NeighborhoodRef: domain.NeighborhoodRef{Neighborhood: e.Neighborhood, City: e.City},
			LastUpdated:     e.LastUpdated,
			AccessCount:     e.AccessCount,
			Status:          e.RefreshStatus,
		})
	}
	return out, nil
}

func (s *memStore) RecordSourceResult(_ context.Context, region, source string, success bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := region + "|" + source
	st, ok := s.stats[key]
	if !ok {
		st = &domain.SourceStats{Region: region, Source: source}
		s.stats[key] = st
	}
	if success {
		st.SuccessCount++
		st.LastSuccess = at
	} else {
		st.FailureCount++
		st.LastFailure = at
	}
	return nil
}

func (s *memStore) ListSourceStats(ctx context.Context, region string) ([]domain.SourceStats, error) {
	if s.listSourceStatsFn != nil {
		return s.listSourceStatsFn(ctx, region)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.SourceStats
	for _, st := range s.stats {
		if st.Region == region {
			out = append(out, *st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out, nil
}

func (s *memStore) SaveReputation(ctx context.Context, rec domain.ReputationRecord) error {
	if s.saveReputationFn != nil {
		return s.saveReputationFn(ctx, rec)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reps[rec.ZipCode] = rec
	return nil
}

func (s *memStore) GetReputation(_ context.Context, zipCode string) (*domain.ReputationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.reps[zipCode]
	if !ok {
		return nil, domain.ErrReputationNotFound
	}
	return &rec, nil
}

func (s *memStore) Ping(context.Context) error { return nil }
func (s *memStore) Close() error               { return nil }

// --- Crawler ---

type mockCrawler struct {
	mu       sync.Mutex
	calls    []domain.CrawlRequest
	crawlFn  func(ctx context.Context, req domain.CrawlRequest) ([]domain.Post, error)
	returned []domain.Post
}

func (m *mockCrawler) CrawlNeighborhood(ctx context.Context, req domain.CrawlRequest) ([]domain.Post, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()
	if m.crawlFn != nil {
		return m.crawlFn(ctx, req)
	}
	return append([]domain.Post(nil), m.returned...), nil
}

func (m *mockCrawler) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// --- Refresher ---

type mockRefresher struct {
	mu        sync.Mutex
	requests  []RefreshRequest
	refreshFn func(ctx context.Context, req RefreshRequest) (domain.NeighborhoodData, error)
}

func (m *mockRefresher) Refresh(ctx context.Context, req RefreshRequest) (domain.NeighborhoodData, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.refreshFn != nil {
		return m.refreshFn(ctx, req)
	}
	return domain.NeighborhoodData{}, domain.ErrCrawlFailed
}

func (m *mockRefresher) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// --- Queue ---

type mockEnqueuer struct {
	mu     sync.Mutex
	jobs   []RefreshJob
	reject bool
}

func (m *mockEnqueuer) Enqueue(job RefreshJob) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reject {
		return false
	}
	m.jobs = append(m.jobs, job)
	return true
}

func (m *mockEnqueuer) enqueued() []RefreshJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RefreshJob(nil), m.jobs...)
}

// --- Debouncer ---

type mockDebouncer struct {
	shouldFn func(ctx context.Context, neighborhood string) (bool, error)

	mu       sync.Mutex
	released []string
}

func (m *mockDebouncer) ShouldEnqueue(ctx context.Context, neighborhood string) (bool, error) {
	if m.shouldFn != nil {
		return m.shouldFn(ctx, neighborhood)
	}
	return true, nil
}

func (m *mockDebouncer) Release(_ context.Context, neighborhood string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released = append(m.released, neighborhood)
	return nil
}

func (m *mockDebouncer) releasedKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.released...)
}

// --- Helpers ---

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func daysAgo(n int) time.Time {
	return testNow.Add(-time.Duration(n) * day)
}

func testPost(source, slug, content string) domain.Post {
	return domain.Post{Source: source, Content: content, URL: "https://example.com/" + slug}
}
