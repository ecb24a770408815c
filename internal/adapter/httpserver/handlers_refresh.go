package httpserver

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/hoodpulse/internal/domain"
)

const defaultBatchLimit = 5

func (s *Server) registerRefreshRoutes(api *echo.Group) {
	api.POST("/refresh/batch", s.handleRefreshBatch)
	api.GET("/refresh/candidates", s.handleRefreshCandidates)
}

func (s *Server) handleRefreshBatch(c echo.Context) error {
	limit, err := queryLimit(c, defaultBatchLimit)
	if err != nil {
		return err
	}

	result := s.refresh.RefreshBatch(c.Request().Context(), limit)
	if err := c.JSON(http.StatusOK, result); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleRefreshCandidates(c echo.Context) error {
	limit, err := queryLimit(c, defaultListLimit)
	if err != nil {
		return err
	}

	refs, err := s.refresh.GetNeighborhoodsToRefresh(c.Request().Context(), limit)
	if err != nil {
		return fmt.Errorf("failed to list refresh candidates: %w", err)
	}
	if refs == nil {
		refs = []domain.NeighborhoodRef{}
	}

	response := map[string]any{
		"count":         len(refs),
		"neighborhoods": refs,
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
