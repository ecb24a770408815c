package httpserver

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	apperrors "github.com/pscheid92/hoodpulse/internal/platform/errors"
)

func (s *Server) registerReputationRoutes(api *echo.Group) {
	api.GET("/reputation", s.handleCompareNeighborhoods)
	api.GET("/reputation/:key", s.handleGetReputation)
}

func (s *Server) handleGetReputation(c echo.Context) error {
	key := strings.TrimSpace(c.Param("key"))
	if key == "" {
		return apperrors.ValidationError("key is required")
	}

	record, err := s.reputation.ComputeReputationIndex(c.Request().Context(), key)
	if err != nil {
		return fmt.Errorf("failed to compute reputation index: %w", err)
	}

	if err := c.JSON(http.StatusOK, record); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleCompareNeighborhoods(c echo.Context) error {
	keys := splitKeys(c.QueryParam("keys"))
	if len(keys) == 0 {
		return apperrors.ValidationError("keys is required")
	}
	if len(keys) > maxCompareKeys {
		return apperrors.ValidationError(fmt.Sprintf("at most %d keys can be compared", maxCompareKeys)).
			WithContext("count", len(keys))
	}

	comparison, err := s.reputation.CompareNeighborhoods(c.Request().Context(), keys)
	if err != nil {
		return fmt.Errorf("failed to compare neighborhoods: %w", err)
	}

	if err := c.JSON(http.StatusOK, comparison); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
