package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/hoodpulse/internal/domain"
	apperrors "github.com/pscheid92/hoodpulse/internal/platform/errors"
)

func (s *Server) registerNeighborhoodRoutes(api *echo.Group) {
	api.GET("/neighborhoods/:name", s.handleGetNeighborhood)
	api.POST("/neighborhoods/:name/refresh", s.handleRefreshNeighborhood)
}

// handleGetNeighborhood serves cached data in whatever tier the cache returns.
// Stale, fallback and generic responses are still 200; the tier is in cache_metadata.
func (s *Server) handleGetNeighborhood(c echo.Context) error {
	name := strings.TrimSpace(c.Param("name"))
	if name == "" {
		return apperrors.ValidationError("neighborhood is required")
	}
	force, err := queryBool(c, "force")
	if err != nil {
		return err
	}

	env, err := s.cache.GetNeighborhoodData(c.Request().Context(), name, c.QueryParam("city"), force)
	status := http.StatusOK
	if err != nil {
		if env == nil {
			return fmt.Errorf("failed to get neighborhood data: %w", err)
		}
		status = envelopeErrorStatus(err)
	}

	if err := c.JSON(status, domain.Describe(env)); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

// envelopeErrorStatus maps the errors the cache returns alongside an envelope.
func envelopeErrorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidNeighborhood):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleRefreshNeighborhood(c echo.Context) error {
	name := strings.TrimSpace(c.Param("name"))
	if name == "" {
		return apperrors.ValidationError("neighborhood is required")
	}
	force, err := queryBool(c, "force")
	if err != nil {
		return err
	}

	result := s.refresh.RefreshSentimentForZip(c.Request().Context(), name, c.QueryParam("city"), force)
	if err := c.JSON(http.StatusOK, result); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
