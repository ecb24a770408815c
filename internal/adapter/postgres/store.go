package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pscheid92/hoodpulse/internal/domain"
)

// Store implements domain.Store on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ domain.Store = (*Store)(nil)

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func fromNull(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}

func (s *Store) SavePosts(ctx context.Context, posts []domain.Post) (int, error) {
	if len(posts) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, p := range posts {
		p.EnsureID()
		meta, err := json.Marshal(p.Metadata)
		if err != nil {
			return 0, fmt.Errorf("failed to encode post metadata: %w", err)
		}
		batch.Queue(`
			INSERT INTO posts (id, neighborhood, source, title, content, url, post_date, crawl_date, metadata)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO NOTHING
		`, p.ID, p.Neighborhood, p.Source, p.Title, p.Content, p.URL, nullTime(p.PostDate), p.CrawlDate.UTC(), meta)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	results := tx.SendBatch(ctx, batch)
	inserted := 0
	for range posts {
		tag, err := results.Exec()
		if err != nil {
			_ = results.Close()
			return 0, fmt.Errorf("failed to insert post: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("failed to close post batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit posts: %w", err)
	}
	return inserted, nil
}

func (s *Store) ListPosts(ctx context.Context, neighborhood string) ([]domain.Post, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, neighborhood, source, title, content, url, post_date, crawl_date, metadata
		FROM posts WHERE neighborhood = $1
		ORDER BY crawl_date, id
	`, neighborhood)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	defer rows.Close()

	var posts []domain.Post
	for rows.Next() {
		var (
			p        domain.Post
			postDate *time.Time
			meta     []byte
		)
		if err := rows.Scan(&p.ID, &p.Neighborhood, &p.Source, &p.Title, &p.Content, &p.URL, &postDate, &p.CrawlDate, &meta); err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		p.PostDate = fromNull(postDate)
		p.CrawlDate = p.CrawlDate.UTC()
		if err := json.Unmarshal(meta, &p.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode post metadata: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate posts: %w", err)
	}
	return posts, nil
}

func (s *Store) GetAnalysis(ctx context.Context, neighborhood string) (*domain.AggregatedAnalysis, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT analysis_json FROM sentiment_analysis WHERE neighborhood = $1`, neighborhood).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAnalysisNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}

	var a domain.AggregatedAnalysis
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("failed to decode analysis: %w", err)
	}
	return &a, nil
}

const cacheEntryColumns = `neighborhood, city, data_json, last_updated, refresh_status, refresh_started_at, access_count, last_access`

func scanCacheEntry(row pgx.Row) (*domain.CacheEntry, error) {
	var (
		e                                  domain.CacheEntry
		data                               []byte
		status                             string
		lastUpdated, startedAt, lastAccess *time.Time
	)
	if err := row.Scan(&e.Neighborhood, &e.City, &data, &lastUpdated, &status, &startedAt, &e.AccessCount, &lastAccess); err != nil {
		return nil, err
	}

	e.LastUpdated = fromNull(lastUpdated)
	e.RefreshStatus = domain.ParseRefreshStatus(status)
	e.RefreshStartedAt = fromNull(startedAt)
	e.LastAccess = fromNull(lastAccess)

	if len(data) > 0 {
		var nd domain.NeighborhoodData
		if err := json.Unmarshal(data, &nd); err != nil {
			return nil, fmt.Errorf("failed to decode cache data: %w", err)
		}
		e.Data = &nd
	}
	return &e, nil
}

func (s *Store) GetCacheEntry(ctx context.Context, neighborhood string) (*domain.CacheEntry, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+cacheEntryColumns+` FROM cache_entry WHERE neighborhood = $1`, neighborhood)
	e, err := scanCacheEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrCacheEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}
	return e, nil
}

func (s *Store) FindCacheEntry(ctx context.Context, key string) (*domain.CacheEntry, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+cacheEntryColumns+` FROM cache_entry
		WHERE data_json IS NOT NULL AND (neighborhood = $1 OR city = $1)
		ORDER BY (neighborhood = $1) DESC, last_updated DESC NULLS LAST
		LIMIT 1
	`, key)
	e, err := scanCacheEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrCacheEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find cache entry: %w", err)
	}
	return e, nil
}

func (s *Store) TryBeginRefresh(ctx context.Context, neighborhood, city string, now, staleBefore time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO cache_entry (neighborhood, city, refresh_status, refresh_started_at)
		VALUES ($1, $2, 'refreshing', $3)
		ON CONFLICT (neighborhood) DO UPDATE SET
			refresh_status = 'refreshing',
			refresh_started_at = EXCLUDED.refresh_started_at,
			city = CASE WHEN EXCLUDED.city <> '' THEN EXCLUDED.city ELSE cache_entry.city END
		WHERE cache_entry.refresh_status <> 'refreshing'
		   OR cache_entry.refresh_started_at IS NULL
		   OR cache_entry.refresh_started_at < $4
	`, neighborhood, city, now.UTC(), staleBefore.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to begin refresh: %w", err)
	}
	return tag.RowsAffected() == 1, nil
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

	updated := data.LastUpdated.UTC()
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO cache_entry (neighborhood, city, data_json, last_updated, refresh_status, refresh_started_at)
			VALUES ($1, $2, $3, $4, 'idle', NULL)
			ON CONFLICT (neighborhood) DO UPDATE SET
				city = CASE WHEN EXCLUDED.city <> '' THEN EXCLUDED.city ELSE cache_entry.city END,
				data_json = EXCLUDED.data_json,
				last_updated = EXCLUDED.last_updated,
				refresh_status = 'idle',
				refresh_started_at = NULL
		`, data.Neighborhood, data.City, blob, updated); err != nil {
			return fmt.Errorf("failed to write cache entry: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO sentiment_analysis (neighborhood, analysis_json, last_updated)
			VALUES ($1, $2, $3)
			ON CONFLICT (neighborhood) DO UPDATE SET
				analysis_json = EXCLUDED.analysis_json,
				last_updated = EXCLUDED.last_updated
		`, data.Neighborhood, analysis, updated); err != nil {
			return fmt.Errorf("failed to write analysis: %w", err)
		}
		return nil
	})
}

func (s *Store) FailRefresh(ctx context.Context, neighborhood string) error {
	if _, err := s.pool.Exec(ctx, `
		UPDATE cache_entry SET refresh_status = 'error', refresh_started_at = NULL
		WHERE neighborhood = $1
	`, neighborhood); err != nil {
		return fmt.Errorf("failed to mark refresh error: %w", err)
	}
	return nil
}

func (s *Store) RecordAccess(ctx context.Context, neighborhood, city string, at time.Time) error {
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO cache_entry (neighborhood, city, access_count, last_access)
		VALUES ($1, $2, 1, $3)
		ON CONFLICT (neighborhood) DO UPDATE SET
			access_count = cache_entry.access_count + 1,
			last_access = EXCLUDED.last_access,
			city = CASE WHEN EXCLUDED.city <> '' THEN EXCLUDED.city ELSE cache_entry.city END
	`, neighborhood, city, at.UTC()); err != nil {
		return fmt.Errorf("failed to record access: %w", err)
	}
	return nil
}

func (s *Store) ListRefreshCandidates(ctx context.Context, staleBefore time.Time) ([]domain.RefreshCandidate, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT neighborhood, city, last_updated, access_count, refresh_status
		FROM cache_entry
		WHERE refresh_status IN ('idle', 'error')
		   OR refresh_started_at IS NULL
		   OR refresh_started_at < $1
	`, staleBefore.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list refresh candidates: %w", err)
	}
	defer rows.Close()

	var out []domain.RefreshCandidate
	for rows.Next() {
		var (
			c           domain.RefreshCandidate
			lastUpdated *time.Time
			status      string
		)
		if err := rows.Scan(&c.Neighborhood, &c.City, &lastUpdated, &c.AccessCount, &status); err != nil {
			return nil, fmt.Errorf("failed to scan refresh candidate: %w", err)
		}
		c.LastUpdated = fromNull(lastUpdated)
		c.Status = domain.ParseRefreshStatus(status)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate refresh candidates: %w", err)
	}
	return out, nil
}

func (s *Store) RecordSourceResult(ctx context.Context, region, source string, success bool, at time.Time) error {
	var successes, failures int64
	var lastSuccess, lastFailure *time.Time
	if success {
		successes, lastSuccess = 1, nullTime(at)
	} else {
		failures, lastFailure = 1, nullTime(at)
	}

	if _, err := s.pool.Exec(ctx, `
		INSERT INTO source_tracking (region, source, success_count, failure_count, last_success, last_failure)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (region, source) DO UPDATE SET
			success_count = source_tracking.success_count + EXCLUDED.success_count,
			failure_count = source_tracking.failure_count + EXCLUDED.failure_count,
			last_success = COALESCE(EXCLUDED.last_success, source_tracking.last_success),
			last_failure = COALESCE(EXCLUDED.last_failure, source_tracking.last_failure)
	`, region, source, successes, failures, lastSuccess, lastFailure); err != nil {
		return fmt.Errorf("failed to record source result: %w", err)
	}
	return nil
}

func (s *Store) ListSourceStats(ctx context.Context, region string) ([]domain.SourceStats, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT region, source, success_count, failure_count, last_success, last_failure
		FROM source_tracking WHERE region = $1
		ORDER BY source
	`, region)
	if err != nil {
		return nil, fmt.Errorf("failed to list source stats: %w", err)
	}
	defer rows.Close()

	var out []domain.SourceStats
	for rows.Next() {
		var (
			st                       domain.SourceStats
			lastSuccess, lastFailure *time.Time
		)
		if err := rows.Scan(&st.Region, &st.Source, &st.SuccessCount, &st.FailureCount, &lastSuccess, &lastFailure); err != nil {
			return nil, fmt.Errorf("failed to scan source stats: %w", err)
		}
		st.LastSuccess = fromNull(lastSuccess)
		st.LastFailure = fromNull(lastFailure)
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate source stats: %w", err)
	}
	return out, nil
}

func (s *Store) SaveReputation(ctx context.Context, rec domain.ReputationRecord) error {
	components, err := json.Marshal(rec.Components)
	if err != nil {
		return fmt.Errorf("failed to encode reputation components: %w", err)
	}

	if _, err := s.pool.Exec(ctx, `
		INSERT INTO reputation_index (zip_code, neighborhood, city, index_score, data_volume, data_freshness,
			sentiment_score, last_updated, components_json, summary)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (zip_code) DO UPDATE SET
			neighborhood = EXCLUDED.neighborhood,
			city = EXCLUDED.city,
			index_score = EXCLUDED.index_score,
			data_volume = EXCLUDED.data_volume,
			data_freshness = EXCLUDED.data_freshness,
			sentiment_score = EXCLUDED.sentiment_score,
			last_updated = EXCLUDED.last_updated,
			components_json = EXCLUDED.components_json,
			summary = EXCLUDED.summary
	`, rec.ZipCode, rec.Neighborhood, rec.City, rec.IndexScore, rec.DataVolume, rec.DataFreshness,
		rec.SentimentScore, rec.LastUpdated.UTC(), components, rec.Summary); err != nil {
		return fmt.Errorf("failed to save reputation: %w", err)
	}
	return nil
}

func (s *Store) GetReputation(ctx context.Context, zipCode string) (*domain.ReputationRecord, error) {
	var (
		rec        domain.ReputationRecord
		components []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT zip_code, neighborhood, city, index_score, data_volume, data_freshness,
			sentiment_score, last_updated, components_json, summary
		FROM reputation_index WHERE zip_code = $1
	`, zipCode).Scan(&rec.ZipCode, &rec.Neighborhood, &rec.City, &rec.IndexScore, &rec.DataVolume, &rec.DataFreshness,
		&rec.SentimentScore, &rec.LastUpdated, &components, &rec.Summary)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrReputationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reputation: %w", err)
	}

	rec.LastUpdated = rec.LastUpdated.UTC()
	if err := json.Unmarshal(components, &rec.Components); err != nil {
		return nil, fmt.Errorf("failed to decode reputation components: %w", err)
	}
	return &rec, nil
}
