package httpserver

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	apperrors "github.com/pscheid92/hoodpulse/internal/platform/errors"
)

type sourceResultRequest struct {
	Source  string `json:"source"`
	Success *bool  `json:"success"`
}

func (s *Server) registerSourceRoutes(api *echo.Group) {
	api.GET("/sources/:key", s.handleChooseSource)
	api.POST("/sources/:key/results", s.handleReportSourceResult)
}

// handleChooseSource resolves the key's region and picks a source for it.
func (s *Server) handleChooseSource(c echo.Context) error {
	key := strings.TrimSpace(c.Param("key"))
	if key == "" {
		return apperrors.ValidationError("key is required")
	}

	response := map[string]any{
		"key":        key,
		"region":     s.router.Region(key),
		"source":     s.router.ChooseSource(c.Request().Context(), key),
		"candidates": s.router.Candidates(key),
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleReportSourceResult(c echo.Context) error {
	key := strings.TrimSpace(c.Param("key"))
	if key == "" {
		return apperrors.ValidationError("key is required")
	}

	var req sourceResultRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	req.Source = strings.TrimSpace(req.Source)
	if req.Source == "" {
		return apperrors.ValidationError("source is required")
	}
	if req.Success == nil {
		return apperrors.ValidationError("success is required")
	}

	if err := s.router.ReportResult(c.Request().Context(), key, req.Source, *req.Success); err != nil {
		return fmt.Errorf("failed to report source result: %w", err)
	}

	if err := c.JSON(http.StatusOK, map[string]string{"status": "ok", "region": s.router.Region(key)}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
