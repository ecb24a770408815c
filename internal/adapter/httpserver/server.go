package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/hoodpulse/internal/adapter/metrics"
	"github.com/pscheid92/hoodpulse/internal/app"
	"github.com/pscheid92/hoodpulse/internal/domain"
)

type neighborhoodService interface {
	GetNeighborhoodData(ctx context.Context, neighborhood, city string, forceRefresh bool) (domain.Envelope, error)
}

type refreshService interface {
	RefreshSentimentForZip(ctx context.Context, key, city string, force bool) app.RefreshResult
	RefreshBatch(ctx context.Context, limit int) app.BatchResult
	GetNeighborhoodsToRefresh(ctx context.Context, limit int) ([]domain.NeighborhoodRef, error)
}

type reputationService interface {
	ComputeReputationIndex(ctx context.Context, key string) (domain.ReputationRecord, error)
	CompareNeighborhoods(ctx context.Context, keys []string) (app.Comparison, error)
}

type sourceRouter interface {
	Region(key string) string
	Candidates(key string) []string
	ChooseSource(ctx context.Context, key string) string
	ReportResult(ctx context.Context, key, source string, success bool) error
}

// Services are the application operations exposed over HTTP.
type Services struct {
	Cache      neighborhoodService
	Refresh    refreshService
	Reputation reputationService
	Router     sourceRouter
}

type Options struct {
	Port           string
	HealthChecks   []HealthCheck
	MetricsHandler http.Handler
	HTTPMetrics    *metrics.HTTPMetrics

	// RateLimit is requests per second per client IP on /api. Zero disables limiting.
	RateLimit float64
	RateBurst int
}

type Server struct {
	echo *echo.Echo
	port string

	cache      neighborhoodService
	refresh    refreshService
	reputation reputationService
	router     sourceRouter

	healthChecks   []HealthCheck
	metricsHandler http.Handler
	httpMetrics    *metrics.HTTPMetrics
	rateLimit      float64
	rateBurst      int
	startTime      time.Time
}

func newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	return e
}

func NewServer(svc Services, opts Options) *Server {
	srv := &Server{
		echo:           newEcho(),
		port:           opts.Port,
		cache:          svc.Cache,
		refresh:        svc.Refresh,
		reputation:     svc.Reputation,
		router:         svc.Router,
		healthChecks:   opts.HealthChecks,
		metricsHandler: opts.MetricsHandler,
		httpMetrics:    opts.HTTPMetrics,
		rateLimit:      opts.RateLimit,
		rateBurst:      opts.RateBurst,
		startTime:      time.Now(),
	}

	srv.registerRoutes()

	return srv
}

// Start blocks until the server stops. A graceful shutdown is not an error.
func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.port)
	if err := s.echo.Start(":" + s.port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
