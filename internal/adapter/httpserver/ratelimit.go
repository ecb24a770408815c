package httpserver

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	apperrors "github.com/pscheid92/hoodpulse/internal/platform/errors"
	"golang.org/x/time/rate"
)

const rateLimiterExpiry = 5 * time.Minute

const typeRateLimited apperrors.ErrorType = "rate_limited"

// newRateLimiter limits each client IP. Refresh endpoints trigger crawls, so
// the whole /api group shares one budget per client.
func newRateLimiter(ratePerSecond float64, burst int) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(ratePerSecond),
			Burst:     burst,
			ExpiresIn: rateLimiterExpiry,
		},
	)
	retryAfter := strconv.Itoa(int(math.Ceil(1 / ratePerSecond)))

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		Store: store,
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			c.Response().Header().Set("Retry-After", retryAfter)
			resp := apperrors.ErrorResponse{Error: "rate limit exceeded", Type: typeRateLimited}
			if err := c.JSON(http.StatusTooManyRequests, resp); err != nil {
				return fmt.Errorf("failed to send JSON response: %w", err)
			}
			return nil
		},
	})
}
