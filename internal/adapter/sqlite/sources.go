package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pscheid92/hoodpulse/internal/domain"
)

func (s *Store) RecordSourceResult(ctx context.Context, region, source string, success bool, at time.Time) error {
	var successes, failures int64
	var lastSuccess, lastFailure sql.NullInt64
	if success {
		successes, lastSuccess = 1, toMillis(at)
	} else {
		failures, lastFailure = 1, toMillis(at)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO source_tracking (region, source, success_count, failure_count, last_success, last_failure)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(region, source) DO UPDATE SET
			success_count = source_tracking.success_count + excluded.success_count,
			failure_count = source_tracking.failure_count + excluded.failure_count,
			last_success = COALESCE(excluded.last_success, source_tracking.last_success),
			last_failure = COALESCE(excluded.last_failure, source_tracking.last_failure)
	`, region, source, successes, failures, lastSuccess, lastFailure); err != nil {
		return fmt.Errorf("failed to record source result: %w", err)
	}
	return nil
}

func (s *Store) ListSourceStats(ctx context.Context, region string) ([]domain.SourceStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT region, source, success_count, failure_count, last_success, last_failure
		FROM source_tracking WHERE region = ?
		ORDER BY source
	`, region)
	if err != nil {
		return nil, fmt.Errorf("failed to list source stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.SourceStats
	for rows.Next() {
		var (
			st                       domain.SourceStats
			lastSuccess, lastFailure sql.NullInt64
		)
		if err := rows.Scan(&st.Region, &st.Source, &st.SuccessCount, &st.FailureCount, &lastSuccess, &lastFailure); err != nil {
			return nil, fmt.Errorf("failed to scan source stats: %w", err)
		}
		st.LastSuccess = fromMillis(lastSuccess)
		st.LastFailure = fromMillis(lastFailure)
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate source stats: %w", err)
	}
	return out, nil
}
