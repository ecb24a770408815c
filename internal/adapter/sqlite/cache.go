package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pscheid92/hoodpulse/internal/domain"
)

const cacheEntryColumns = `neighborhood, city, data_json, last_updated, refresh_status, refresh_started_at, access_count, last_access`

func scanCacheEntry(row scanner) (*domain.CacheEntry, error) {
	var (
		e                                  domain.CacheEntry
		data                               sql.NullString
		status                             string
		lastUpdated, startedAt, lastAccess sql.NullInt64
	)
	if err := row.Scan(&e.Neighborhood, &e.City, &data, &lastUpdated, &status, &startedAt, &e.AccessCount, &lastAccess); err != nil {
		return nil, err
	}

	e.LastUpdated = fromMillis(lastUpdated)
	e.RefreshStatus = domain.ParseRefreshStatus(status)
	e.RefreshStartedAt = fromMillis(startedAt)
	e.LastAccess = fromMillis(lastAccess)

	if data.Valid && data.String != "" {
		var nd domain.NeighborhoodData
		if err := json.Unmarshal([]byte(data.String), &nd); err != nil {
			return nil, fmt.Errorf("failed to decode cache data: %w", err)
		}
		e.Data = &nd
	}
	return &e, nil
}

func (s *Store) GetCacheEntry(ctx context.Context, neighborhood string) (*domain.CacheEntry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+cacheEntryColumns+` FROM cache_entry WHERE neighborhood = ?`, neighborhood)
	e, err := scanCacheEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCacheEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}
	return e, nil
}

func (s *Store) FindCacheEntry(ctx context.Context, key string) (*domain.CacheEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+cacheEntryColumns+` FROM cache_entry
		WHERE data_json IS NOT NULL AND (neighborhood = ? OR city = ?)
		ORDER BY CASE WHEN neighborhood = ? THEN 0 ELSE 1 END, last_updated DESC
		LIMIT 1
	`, key, key, key)
	e, err := scanCacheEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCacheEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find cache entry: %w", err)
	}
	return e, nil
}

func (s *Store) TryBeginRefresh(ctx context.Context, neighborhood, city string, now, staleBefore time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_entry (neighborhood, city, refresh_status, refresh_started_at)
		VALUES (?, ?, 'refreshing', ?)
		ON CONFLICT(neighborhood) DO UPDATE SET
			refresh_status = 'refreshing',
			refresh_started_at = excluded.refresh_started_at,
			city = CASE WHEN excluded.city <> '' THEN excluded.city ELSE cache_entry.city END
		WHERE cache_entry.refresh_status <> 'refreshing'
		   OR cache_entry.refresh_started_at IS NULL
		   OR cache_entry.refresh_started_at < ?
	`, neighborhood, city, now.UnixMilli(), staleBefore.UnixMilli())
	if err != nil {
		return false, fmt.Errorf("failed to begin refresh: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read refresh claim result: %w", err)
	}
	return n == 1, nil
}

func (s *Store) CompleteRefresh(ctx context.Context, data domain.NeighborhoodData) error {
	blob, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode cache data: %w", err)
	}
	analysis, err := json.Marshal(data.Analysis)
	if err != nil {
		return fmt.Errorf("failed to encode analysis: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	updated := data.LastUpdated.UnixMilli()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO cache_entry (neighborhood, city, data_json, last_updated, refresh_status, refresh_started_at)
		VALUES (?, ?, ?, ?, 'idle', NULL)
		ON CONFLICT(neighborhood) DO UPDATE SET
			city = CASE WHEN excluded.city <> '' THEN excluded.city ELSE cache_entry.city END,
			data_json = excluded.data_json,
			last_updated = excluded.last_updated,
			refresh_status = 'idle',
			refresh_started_at = NULL
	`, data.Neighborhood, data.City, string(blob), updated); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sentiment_analysis (neighborhood, analysis_json, last_updated)
		VALUES (?, ?, ?)
		ON CONFLICT(neighborhood) DO UPDATE SET
			analysis_json = excluded.analysis_json,
			last_updated = excluded.last_updated
	`, data.Neighborhood, string(analysis), updated); err != nil {
		return fmt.Errorf("failed to write analysis: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit refresh: %w", err)
	}
	return nil
}

func (s *Store) FailRefresh(ctx context.Context, neighborhood string) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE cache_entry SET refresh_status = 'error', refresh_started_at = NULL
		WHERE neighborhood = ?
	`, neighborhood); err != nil {
		return fmt.Errorf("failed to mark refresh error: %w", err)
	}
	return nil
}

func (s *Store) RecordAccess(ctx context.Context, neighborhood, city string, at time.Time) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_entry (neighborhood, city, access_count, last_access)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(neighborhood) DO UPDATE SET
			access_count = cache_entry.access_count + 1,
			last_access = excluded.last_access,
			city = CASE WHEN excluded.city <> '' THEN excluded.city ELSE cache_entry.city END
	`, neighborhood, city, at.UnixMilli()); err != nil {
		return fmt.Errorf("failed to record access: %w", err)
	}
	return nil
}

func (s *Store) ListRefreshCandidates(ctx context.Context, staleBefore time.Time) ([]domain.RefreshCandidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT neighborhood, city, last_updated, access_count, refresh_status
		FROM cache_entry
		WHERE refresh_status IN ('idle', 'error')
		   OR refresh_started_at IS NULL
		   OR refresh_started_at < ?
	`, staleBefore.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to list refresh candidates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.RefreshCandidate
	for rows.Next() {
		var (
			c           domain.RefreshCandidate
			lastUpdated sql.NullInt64
			status      string
		)
		if err := rows.Scan(&c.Neighborhood, &c.City, &lastUpdated, &c.AccessCount, &status); err != nil {
			return nil, fmt.Errorf("failed to scan refresh candidate: %w", err)
		}
		c.LastUpdated = fromMillis(lastUpdated)
		c.Status = domain.ParseRefreshStatus(status)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate refresh candidates: %w", err)
	}
	return out, nil
}
