package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/hoodpulse/internal/platform/version"
)

const (
	startupProbeTimeout   = 2 * time.Second
	readinessProbeTimeout = 5 * time.Second
)

const (
	statusReady     = "ready"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

// HealthCheck is a named dependency check. An Optional dependency, like the
// Redis debouncer which fails open, degrades readiness without failing it.
type HealthCheck struct {
	Name     string
	Check    func(ctx context.Context) error
	Optional bool
}

type healthResponse struct {
	Status      string            `json:"status"`
	FailedCheck string            `json:"failed_check,omitempty"`
	Error       string            `json:"error,omitempty"`
	Checks      map[string]string `json:"checks,omitempty"`
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health/startup", s.handleStartup)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/version", s.handleVersion)
	if s.metricsHandler != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metricsHandler))
	}
}

func (s *Server) handleStartup(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), startupProbeTimeout)
	defer cancel()

	return s.writeHealth(c, s.runHealthChecks(ctx))
}

func (s *Server) handleLiveness(c echo.Context) error {
	response := map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startTime).Seconds(),
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to write liveness response: %w", err)
	}
	return nil
}

func (s *Server) handleReadiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readinessProbeTimeout)
	defer cancel()

	return s.writeHealth(c, s.runHealthChecks(ctx))
}

// runHealthChecks runs every check so the response lists each dependency.
// The first failing required check names the outage.
func (s *Server) runHealthChecks(ctx context.Context) healthResponse {
	resp := healthResponse{Status: statusReady}
	if len(s.healthChecks) == 0 {
		return resp
	}

	resp.Checks = make(map[string]string, len(s.healthChecks))
	for _, hc := range s.healthChecks {
		err := hc.Check(ctx)
		if err == nil {
			resp.Checks[hc.Name] = "ok"
			continue
		}
		resp.Checks[hc.Name] = err.Error()

		if hc.Optional {
			if resp.Status == statusReady {
				resp.Status = statusDegraded
			}
			continue
		}
		if resp.Status != statusUnhealthy {
			resp.Status = statusUnhealthy
			resp.FailedCheck = hc.Name
			resp.Error = err.Error()
		}
	}
	return resp
}

func (s *Server) writeHealth(c echo.Context, resp healthResponse) error {
	code := http.StatusOK
	if resp.Status == statusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	if err := c.JSON(code, resp); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleVersion(c echo.Context) error {
	if err := c.JSON(http.StatusOK, version.Get()); err != nil {
		return fmt.Errorf("failed to write version response: %w", err)
	}
	return nil
}
