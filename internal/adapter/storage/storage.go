// Package storage picks the store implementation for a DATABASE_URL.
package storage

import (
	"context"
	"fmt"

	"github.com/pscheid92/hoodpulse/internal/adapter/metrics"
	"github.com/pscheid92/hoodpulse/internal/adapter/postgres"
	"github.com/pscheid92/hoodpulse/internal/adapter/sqlite"
	"github.com/pscheid92/hoodpulse/internal/domain"
)

// Open returns a migrated store: PostgreSQL for postgres:// URLs, SQLite otherwise.
// dbMetrics only applies to PostgreSQL and may be nil.
func Open(ctx context.Context, databaseURL string, dbMetrics *metrics.DBMetrics) (domain.Store, error) {
	if sqlite.IsSQLiteDSN(databaseURL) {
		s, err := sqlite.Open(ctx, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return s, nil
	}

	s, err := postgres.Open(ctx, databaseURL, dbMetrics)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres store: %w", err)
	}
	return s, nil
}
