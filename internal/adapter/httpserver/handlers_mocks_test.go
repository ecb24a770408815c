package httpserver

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/pscheid92/hoodpulse/internal/app"
	"github.com/pscheid92/hoodpulse/internal/domain"
)

// --- Mock implementations ---

type mockCache struct {
	getFn func(ctx context.Context, neighborhood, city string, force bool) (domain.Envelope, error)
}

func (m *mockCache) GetNeighborhoodData(ctx context.Context, neighborhood, city string, force bool) (domain.Envelope, error) {
	if m.getFn != nil {
		return m.getFn(ctx, neighborhood, city, force)
	}
	return domain.Generic{Data: domain.NeighborhoodData{Neighborhood: neighborhood}, Reason: "no data"}, nil
}

type mockRefresh struct {
	refreshFn    func(ctx context.Context, key, city string, force bool) app.RefreshResult
	batchFn      func(ctx context.Context, limit int) app.BatchResult
	candidatesFn func(ctx context.Context, limit int) ([]domain.NeighborhoodRef, error)
}

func (m *mockRefresh) RefreshSentimentForZip(ctx context.Context, key, city string, force bool) app.RefreshResult {
	if m.refreshFn != nil {
		return m.refreshFn(ctx, key, city, force)
	}
	return app.RefreshResult{Neighborhood: key, City: city, Refreshed: true, Reason: app.ReasonRefreshed}
}

func (m *mockRefresh) RefreshBatch(ctx context.Context, limit int) app.BatchResult {
	if m.batchFn != nil {
		return m.batchFn(ctx, limit)
	}
	return app.BatchResult{Results: []app.RefreshResult{}}
}

func (m *mockRefresh) GetNeighborhoodsToRefresh(ctx context.Context, limit int) ([]domain.NeighborhoodRef, error) {
	if m.candidatesFn != nil {
		return m.candidatesFn(ctx, limit)
	}
	return nil, nil
}

type mockReputation struct {
	computeFn func(ctx context.Context, key string) (domain.ReputationRecord, error)
	compareFn func(ctx context.Context, keys []string) (app.Comparison, error)
}

func (m *mockReputation) ComputeReputationIndex(ctx context.Context, key string) (domain.ReputationRecord, error) {
	if m.computeFn != nil {
		return m.computeFn(ctx, key)
	}
	return domain.ReputationRecord{}, errors.New("not implemented")
}

func (m *mockReputation) CompareNeighborhoods(ctx context.Context, keys []string) (app.Comparison, error) {
	if m.compareFn != nil {
		return m.compareFn(ctx, keys)
	}
	return app.Comparison{}, errors.New("not implemented")
}

type reportedResult struct {
	key, source string
	success     bool
}

type mockRouter struct {
	reported []reportedResult
	reportFn func(ctx context.Context, key, source string, success bool) error
}

func (m *mockRouter) Region(string) string       { return "nyc" }
func (m *mockRouter) Candidates(string) []string { return []string{"Reddit", "NYTimes"} }

func (m *mockRouter) ChooseSource(context.Context, string) string {
	return "NYTimes"
}

func (m *mockRouter) ReportResult(ctx context.Context, key, source string, success bool) error {
	m.reported = append(m.reported, reportedResult{key: key, source: source, success: success})
	if m.reportFn != nil {
		return m.reportFn(ctx, key, source, success)
	}
	return nil
}

// --- Test helpers ---

func newTestServer(t *testing.T, svc Services, opts ...func(*Server)) *Server {
	t.Helper()

	if svc.Cache == nil {
		svc.Cache = &mockCache{}
	}
	if svc.Refresh == nil {
		svc.Refresh = &mockRefresh{}
	}
	if svc.Reputation == nil {
		svc.Reputation = &mockReputation{}
	}
	if svc.Router == nil {
		svc.Router = &mockRouter{}
	}

	srv := &Server{
		echo:       newEcho(),
		port:       "0",
		cache:      svc.Cache,
		refresh:    svc.Refresh,
		reputation: svc.Reputation,
		router:     svc.Router,
	}

	for _, opt := range opts {
		opt(srv)
	}

	srv.registerRoutes()

	return srv
}

func withHealthChecks(checks ...HealthCheck) func(*Server) {
	return func(s *Server) {
		s.healthChecks = checks
	}
}

func withRateLimit(perSecond float64, burst int) func(*Server) {
	return func(s *Server) {
		s.rateLimit = perSecond
		s.rateBurst = burst
	}
}

// serve runs a request through the full router, middleware included.
func serve(t *testing.T, srv *Server, method, target string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}
