package httpserver

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	apperrors "github.com/pscheid92/hoodpulse/internal/platform/errors"
)

const (
	defaultListLimit = 10
	maxListLimit     = 100
	maxCompareKeys   = 20
)

// queryLimit reads ?limit= in [1, maxListLimit], defaulting to def.
func queryLimit(c echo.Context, def int) (int, error) {
	raw := c.QueryParam("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxListLimit {
		return 0, apperrors.ValidationError("limit must be between 1 and 100").WithContext("limit", raw)
	}
	return n, nil
}

func queryBool(c echo.Context, name string) (bool, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, apperrors.ValidationError(name + " must be a boolean").WithContext(name, raw)
	}
	return v, nil
}

// splitKeys parses a comma-separated key list, dropping blanks.
func splitKeys(raw string) []string {
	var keys []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}
